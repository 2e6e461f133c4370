package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"theater-site/internal/services"
	"theater-site/internal/store"
	"theater-site/models"
)

// AdminHandler serves the back-office API. Every route sits behind the admin
// password gate bound in the router.
type AdminHandler struct {
	store    store.Store
	content  *services.ContentService
	webhooks *services.WebhookService
	tickets  *services.TicketService
	reports  *services.ReportService
}

func NewAdminHandler(s store.Store, content *services.ContentService, webhooks *services.WebhookService, tickets *services.TicketService, reports *services.ReportService) *AdminHandler {
	return &AdminHandler{
		store:    s,
		content:  content,
		webhooks: webhooks,
		tickets:  tickets,
		reports:  reports,
	}
}

func (h *AdminHandler) GetContent(e *core.RequestEvent) error {
	c, err := h.content.GetSiteContent(e.Request.Context())
	if err != nil {
		return apiError("admin.GetSiteContent()", err)
	}
	return e.JSON(http.StatusOK, c)
}

// PutContent - Replace the whole site content document
func (h *AdminHandler) PutContent(e *core.RequestEvent) error {
	var c models.SiteContent
	if err := e.BindBody(&c); err != nil {
		return apis.NewBadRequestError("Invalid content", err)
	}

	saved, err := h.content.SaveSiteContent(e.Request.Context(), &c)
	if err != nil {
		return apiError("admin.SaveSiteContent()", err)
	}
	return e.JSON(http.StatusOK, saved)
}

func (h *AdminHandler) ListPayments(e *core.RequestEvent) error {
	list, err := h.store.ListPayments(e.Request.Context())
	if err != nil {
		return apiError("admin.ListPayments()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": nonNil(list)})
}

func (h *AdminHandler) ListTransactions(e *core.RequestEvent) error {
	list, err := h.store.ListTransactions(e.Request.Context())
	if err != nil {
		return apiError("admin.ListTransactions()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": nonNil(list)})
}

// ListTickets - All tickets, or the tickets of one payment with ?paymentId=
func (h *AdminHandler) ListTickets(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	var (
		list []*models.Ticket
		err  error
	)
	if paymentID := e.Request.URL.Query().Get("paymentId"); paymentID != "" {
		list, err = h.tickets.ListByPayment(ctx, paymentID)
	} else {
		list, err = h.tickets.List(ctx)
	}
	if err != nil {
		return apiError("admin.ListTickets()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": nonNil(list)})
}

func (h *AdminHandler) ReportCSV(e *core.RequestEvent) error {
	var buf bytes.Buffer
	if err := h.reports.CSV(e.Request.Context(), &buf, e.Request.URL.Query().Get("eventId")); err != nil {
		return apiError("admin.ReportCSV()", err)
	}
	e.Response.Header().Set("Content-Disposition", attachment("csv"))
	return e.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *AdminHandler) ReportPDF(e *core.RequestEvent) error {
	data, err := h.reports.PDF(e.Request.Context(), e.Request.URL.Query().Get("eventId"))
	if err != nil {
		return apiError("admin.ReportPDF()", err)
	}
	e.Response.Header().Set("Content-Disposition", attachment("pdf"))
	return e.Blob(http.StatusOK, "application/pdf", data)
}

// ProcessPayment - Re-drive a payment as if its webhook had arrived
func (h *AdminHandler) ProcessPayment(e *core.RequestEvent) error {
	var req struct {
		PaymentID string          `json:"paymentId"`
		Provider  models.Provider `json:"provider"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.webhooks.ProcessPayment(e.Request.Context(), req.Provider, req.PaymentID)
	if err != nil {
		return apiError("admin.ProcessPayment()", err)
	}
	return e.JSON(http.StatusOK, res)
}

// GenerateTickets - Mint missing tickets of a stored payment, optionally
// emailing them again
func (h *AdminHandler) GenerateTickets(e *core.RequestEvent) error {
	var req struct {
		PaymentID string `json:"paymentId"`
		Resend    bool   `json:"resend"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.webhooks.GenerateTickets(e.Request.Context(), req.PaymentID, req.Resend)
	if err != nil {
		return apiError("admin.GenerateTickets()", err)
	}
	return e.JSON(http.StatusOK, res)
}

func attachment(ext string) string {
	return fmt.Sprintf(`attachment; filename="relatorio-vendas-%s.%s"`, time.Now().Format("2006-01-02"), ext)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
