package services

import (
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"theater-site/internal/store"
	"theater-site/internal/tickets"
	"theater-site/models"
)

// ReportHeader is the fixed column order of the sales report.
var ReportHeader = []string{"Evento", "Data", "Local", "Nome", "Quantidade"}

type ReportService struct {
	store store.PaymentStore
}

func NewReportService(s store.PaymentStore) *ReportService {
	return &ReportService{store: s}
}

// Rows returns one row per approved payment, optionally for one event,
// ordered by event and buyer name.
func (s *ReportService) Rows(ctx context.Context, eventID string) ([]models.ReportRow, error) {
	payments, err := s.store.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}

	rows := make([]models.ReportRow, 0, len(payments))
	for _, p := range payments {
		if p.Status != models.PaymentApproved {
			continue
		}
		if eventID != "" && p.Event.ID != eventID {
			continue
		}
		rows = append(rows, models.ReportRow{
			Event:    p.Event.Title,
			Date:     p.Event.Date,
			Location: p.Event.Location,
			Name:     p.Customer.Name,
			Quantity: p.Breakdown().Total(),
		})
	}

	slices.SortStableFunc(rows, func(a, b models.ReportRow) int {
		return cmp.Or(cmp.Compare(a.Event, b.Event), cmp.Compare(a.Name, b.Name))
	})
	return rows, nil
}

func WriteCSV(w io.Writer, rows []models.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Event, r.Date, r.Location, r.Name, strconv.Itoa(r.Quantity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *ReportService) CSV(ctx context.Context, w io.Writer, eventID string) error {
	rows, err := s.Rows(ctx, eventID)
	if err != nil {
		return err
	}
	return WriteCSV(w, rows)
}

func (s *ReportService) PDF(ctx context.Context, eventID string) ([]byte, error) {
	rows, err := s.Rows(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return tickets.RenderReportPDF("Relatório de vendas", time.Now(), rows)
}
