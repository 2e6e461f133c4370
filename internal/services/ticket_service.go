package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"theater-site/internal/events"
	"theater-site/internal/mailer"
	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/internal/tickets"
	"theater-site/models"
	"theater-site/monitoring"
	"theater-site/security"
	"theater-site/utils"
)

// Validation outcomes.
const (
	ValidationInvalid   = "invalid"
	ValidationUsed      = "used"
	ValidationValidated = "validated"
)

const (
	ValidationMethodQR       = "qr"
	ValidationMethodPassword = "password"
)

type ValidationResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Ticket  *models.Ticket `json:"ticketInfo,omitempty"`
}

func (r *ValidationResult) Valid() bool {
	return r.Status == ValidationValidated
}

type TicketService struct {
	store     store.Store
	mailer    mailer.Mailer
	publisher events.Publisher
	gate      *security.PasswordGate
	monitor   *monitoring.Monitor

	baseURL string
	now     func() time.Time
}

func NewTicketService(s store.Store, m mailer.Mailer, pub events.Publisher, gate *security.PasswordGate, monitor *monitoring.Monitor, baseURL string) *TicketService {
	if pub == nil {
		pub = events.Noop()
	}
	return &TicketService{
		store:     s,
		mailer:    m,
		publisher: pub,
		gate:      gate,
		monitor:   monitor,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Build derives the tickets of a payment: one per seat, the first Inteira
// of them full price and the rest half price.
func (s *TicketService) Build(p *models.Payment) []*models.Ticket {
	b := p.Breakdown()
	n := b.Total()
	now := s.now()

	list := make([]*models.Ticket, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, &models.Ticket{
			TicketID:     utils.NewTicketID(),
			TicketNumber: models.TicketNumber(p.Event, p.PaymentID, i),
			Type:         b.TypeFor(i),
			Event:        p.Event,
			Customer:     p.Customer,
			PaymentID:    p.PaymentID,
			TicketIndex:  i,
			TotalTickets: n,
			GeneratedAt:  now,
			IsValid:      true,
		})
	}
	return list
}

// Mint stores the tickets of p unless they already exist. created reports
// whether this call issued them.
func (s *TicketService) Mint(ctx context.Context, p *models.Payment) ([]*models.Ticket, bool, error) {
	list, created, err := s.store.MintTickets(ctx, p.PaymentID, s.Build(p))
	if err != nil {
		return nil, false, fmt.Errorf("MintTickets: %w", err)
	}
	if created {
		s.monitor.TrackTicketsMinted(len(list))
		slog.Info("tickets minted", "payment_id", p.PaymentID, "count", len(list))
	}
	return list, created, nil
}

// Deliver renders the PDF and emails it to the buyer.
func (s *TicketService) Deliver(ctx context.Context, p *models.Payment, list []*models.Ticket) error {
	if len(list) == 0 {
		return status.ErrNoTickets
	}

	pdf, err := tickets.RenderPDF(s.baseURL, list)
	if err != nil {
		s.monitor.TrackSideEffectFailure("pdf")
		return fmt.Errorf("RenderPDF: %w", err)
	}

	msg, err := mailer.TicketMessage(p.Customer, p.Event, len(list), pdf)
	if err != nil {
		s.monitor.TrackSideEffectFailure("email")
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.monitor.TrackSideEffectFailure("email")
		return fmt.Errorf("mailer.Send: %w", err)
	}

	slog.Info("tickets emailed", "payment_id", p.PaymentID, "to", p.Customer.Email, "count", len(list))
	return nil
}

func (s *TicketService) ListByPayment(ctx context.Context, paymentID string) ([]*models.Ticket, error) {
	return s.store.ListTicketsByPayment(ctx, paymentID)
}

func (s *TicketService) List(ctx context.Context) ([]*models.Ticket, error) {
	return s.store.ListTickets(ctx)
}

// ValidateQR validates the ticket named by a scanned QR payload. The payload
// is either the JSON {"ticketId": "..."}, the validation URL printed on the
// ticket or the bare ticket id.
func (s *TicketService) ValidateQR(ctx context.Context, qrData string) (*ValidationResult, error) {
	qrData = strings.TrimSpace(qrData)
	if qrData == "" {
		return nil, fmt.Errorf("%w: qrData is required", status.ErrInvalidInput)
	}

	ticketID, ok := parseQRData(qrData)
	if !ok {
		s.monitor.TrackValidation(ValidationMethodQR, ValidationInvalid)
		return &ValidationResult{Status: ValidationInvalid, Message: "QR code inválido"}, nil
	}
	return s.validate(ctx, ValidationMethodQR, ticketID)
}

// ValidateWithPassword validates by ticket id for staff holding the shared
// validation password.
func (s *TicketService) ValidateWithPassword(ctx context.Context, ticketID, password string) (*ValidationResult, error) {
	if s.gate == nil || !s.gate.Check(password) {
		return nil, status.ErrUnauthorized
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticketId is required", status.ErrInvalidInput)
	}
	return s.validate(ctx, ValidationMethodPassword, ticketID)
}

func (s *TicketService) validate(ctx context.Context, method, ticketID string) (*ValidationResult, error) {
	ticket, err := s.store.MarkTicketUsed(ctx, ticketID, s.now())

	var res *ValidationResult
	switch {
	case err == nil:
		res = &ValidationResult{Status: ValidationValidated, Message: "Ingresso validado com sucesso", Ticket: ticket}
	case errors.Is(err, status.ErrTicketNotFound):
		res = &ValidationResult{Status: ValidationInvalid, Message: "Ingresso não encontrado"}
	case errors.Is(err, status.ErrTicketInvalid):
		res = &ValidationResult{Status: ValidationInvalid, Message: "Ingresso inválido", Ticket: ticket}
	case errors.Is(err, status.ErrTicketAlreadyUsed):
		msg := "Ingresso já utilizado"
		if ticket != nil && ticket.UsedAt != nil {
			msg += " em " + ticket.UsedAt.Format("02/01/2006 15:04")
		}
		res = &ValidationResult{Status: ValidationUsed, Message: msg, Ticket: ticket}
	default:
		return nil, fmt.Errorf("MarkTicketUsed: %w", err)
	}

	s.monitor.TrackValidation(method, res.Status)
	slog.Info("ticket validation", "method", method, "ticket_id", ticketID, "status", res.Status)

	if res.Valid() {
		e := events.New(events.TypeTicketValidated, ticket.TicketID, map[string]any{
			"ticketId":     ticket.TicketID,
			"ticketNumber": ticket.TicketNumber,
			"eventId":      ticket.Event.ID,
			"usedAt":       ticket.UsedAt,
			"method":       method,
		})
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.monitor.TrackSideEffectFailure("publish")
			slog.Warn("ticket.Publish()", "ticket_id", ticket.TicketID, "error", err)
		}
	}
	return res, nil
}

func parseQRData(data string) (string, bool) {
	if strings.HasPrefix(data, "{") {
		var payload struct {
			TicketID  string `json:"ticketId"`
			TicketID2 string `json:"ticket_id"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return "", false
		}
		id := payload.TicketID
		if id == "" {
			id = payload.TicketID2
		}
		return id, id != ""
	}

	if strings.Contains(data, "://") || strings.Contains(data, "?") {
		id, err := tickets.TicketIDFromPayload(data)
		return id, err == nil
	}

	if _, err := uuid.Parse(data); err == nil {
		return data, true
	}
	return "", false
}
