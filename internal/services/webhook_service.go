package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"theater-site/internal/events"
	"theater-site/internal/services/provider"
	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
	"theater-site/monitoring"
)

// Webhook outcomes.
const (
	WebhookIgnored   = "ignored"
	WebhookLocked    = "locked"
	WebhookProcessed = "processed"
)

// Locker serializes concurrent deliveries for one payment.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type WebhookResult struct {
	Outcome       string                   `json:"outcome"`
	PaymentID     string                   `json:"paymentId,omitempty"`
	PaymentStatus string                   `json:"paymentStatus,omitempty"`
	Transaction   models.TransactionStatus `json:"transactionStatus,omitempty"`
	Tickets       int                      `json:"tickets"`
	Created       bool                     `json:"created"`
	Emailed       bool                     `json:"emailed"`
}

type WebhookService struct {
	store     store.Store
	providers *provider.Registry
	tickets   *TicketService
	locker    Locker
	publisher events.Publisher
	monitor   *monitoring.Monitor
}

func NewWebhookService(s store.Store, providers *provider.Registry, ts *TicketService, locker Locker, pub events.Publisher, monitor *monitoring.Monitor) *WebhookService {
	if pub == nil {
		pub = events.Noop()
	}
	return &WebhookService{
		store:     s,
		providers: providers,
		tickets:   ts,
		locker:    locker,
		publisher: pub,
		monitor:   monitor,
	}
}

// HandleNotification processes one verified webhook delivery. Deliveries for
// a payment already being processed are acknowledged without work; ticket
// minting stays idempotent at the store either way.
func (s *WebhookService) HandleNotification(ctx context.Context, n *provider.Notification) (*WebhookResult, error) {
	if !n.IsPayment() {
		s.monitor.TrackWebhook(string(n.Provider), WebhookIgnored)
		slog.Info("webhook ignored", "provider", n.Provider, "type", n.Type)
		return &WebhookResult{Outcome: WebhookIgnored}, nil
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, string(n.Provider)+":"+n.PaymentID)
		switch {
		case errors.Is(err, status.ErrWebhookLocked):
			s.monitor.TrackWebhook(string(n.Provider), WebhookLocked)
			slog.Info("webhook redelivery while processing", "provider", n.Provider, "payment_id", n.PaymentID)
			return &WebhookResult{Outcome: WebhookLocked, PaymentID: n.PaymentID}, nil
		case err != nil:
			slog.Warn("webhook lock unavailable, continuing", "payment_id", n.PaymentID, "error", err)
		default:
			defer release()
		}
	}

	res, err := s.ProcessPayment(ctx, n.Provider, n.PaymentID)
	if err != nil {
		s.monitor.TrackWebhook(string(n.Provider), "error")
		return nil, err
	}
	s.monitor.TrackWebhook(string(n.Provider), WebhookProcessed)
	return res, nil
}

// ProcessPayment fetches the payment from its provider and applies its
// status. It is also the manual re-drive tool.
func (s *WebhookService) ProcessPayment(ctx context.Context, name models.Provider, paymentID string) (*WebhookResult, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: paymentId is required", status.ErrInvalidInput)
	}
	p, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pay, err := p.GetPayment(ctx, paymentID)
	s.monitor.TrackProviderCall(string(p.Name()), "get_payment", start)
	if err != nil {
		slog.Error("webhook.GetPayment()", "provider", p.Name(), "payment_id", paymentID, "error", err)
		return nil, err
	}
	s.monitor.TrackPayment(string(p.Name()), pay.Status)

	res := &WebhookResult{
		Outcome:       WebhookProcessed,
		PaymentID:     pay.ID,
		PaymentStatus: pay.Status,
	}

	switch pay.Status {
	case models.PaymentApproved:
		res.Transaction = models.TransactionApproved
		s.updateTransaction(ctx, pay, models.TransactionApproved)

		record := paymentRecord(pay)
		if err := s.store.UpsertPayment(ctx, record); err != nil {
			return nil, fmt.Errorf("UpsertPayment: %w", err)
		}
		if err := s.issue(ctx, record, false, res); err != nil {
			return nil, err
		}

		e := events.New(events.TypePaymentApproved, record.PaymentID, map[string]any{
			"paymentId":     record.PaymentID,
			"provider":      record.Provider,
			"transactionId": record.TransactionID,
			"eventId":       record.Event.ID,
			"tickets":       res.Tickets,
			"amount":        record.Amount.StringFixed(2),
		})
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.monitor.TrackSideEffectFailure("publish")
			slog.Warn("webhook.Publish()", "payment_id", record.PaymentID, "error", err)
		}

	case models.PaymentRejected:
		res.Transaction = models.TransactionRejected
		s.updateTransaction(ctx, pay, models.TransactionRejected)

	case models.PaymentPending:
		res.Transaction = models.TransactionPending
		s.updateTransaction(ctx, pay, models.TransactionPending)

	default:
		slog.Info("payment status left unchanged", "provider", p.Name(), "payment_id", pay.ID, "status", pay.Status)
	}

	slog.Info("payment processed", "provider", p.Name(), "payment_id", pay.ID, "status", pay.Status,
		"tickets", res.Tickets, "created", res.Created)
	return res, nil
}

// GenerateTickets mints tickets from the stored payment record and emails
// them. With resend, existing tickets are emailed again.
func (s *WebhookService) GenerateTickets(ctx context.Context, paymentID string, resend bool) (*WebhookResult, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: paymentId is required", status.ErrInvalidInput)
	}
	record, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	res := &WebhookResult{
		Outcome:       WebhookProcessed,
		PaymentID:     record.PaymentID,
		PaymentStatus: record.Status,
	}
	if err := s.issue(ctx, record, resend, res); err != nil {
		return nil, err
	}
	return res, nil
}

// issue mints the tickets and emails them when they are new or resend is set.
// Rendering and mail failures are logged and swallowed.
func (s *WebhookService) issue(ctx context.Context, record *models.Payment, resend bool, res *WebhookResult) error {
	if record.Breakdown().Total() == 0 {
		slog.Warn("approved payment without ticket counts", "payment_id", record.PaymentID)
		return nil
	}

	list, created, err := s.tickets.Mint(ctx, record)
	if err != nil {
		return err
	}
	res.Tickets = len(list)
	res.Created = created

	if !created && !resend {
		slog.Info("tickets already issued", "payment_id", record.PaymentID, "count", len(list))
		return nil
	}

	if err := s.tickets.Deliver(ctx, record, list); err != nil {
		slog.Error("webhook.Deliver()", "payment_id", record.PaymentID, "error", err)
		return nil
	}
	res.Emailed = true

	if created {
		e := events.New(events.TypeTicketsIssued, record.PaymentID, map[string]any{
			"paymentId": record.PaymentID,
			"eventId":   record.Event.ID,
			"count":     len(list),
		})
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.monitor.TrackSideEffectFailure("publish")
			slog.Warn("webhook.Publish()", "payment_id", record.PaymentID, "error", err)
		}
	}
	return nil
}

func (s *WebhookService) updateTransaction(ctx context.Context, pay *provider.Payment, st models.TransactionStatus) {
	if pay.ExternalReference == "" {
		slog.Warn("payment without transaction reference", "payment_id", pay.ID)
		return
	}
	err := s.store.UpdateTransaction(ctx, pay.ExternalReference, models.TransactionUpdate{
		Status:    st,
		PaymentID: pay.ID,
	})
	if err != nil {
		slog.Error("webhook.UpdateTransaction()", "transaction_id", pay.ExternalReference, "payment_id", pay.ID, "error", err)
	}
}

func paymentRecord(pay *provider.Payment) *models.Payment {
	return &models.Payment{
		PaymentID:        pay.ID,
		Provider:         pay.Provider,
		Status:           pay.Status,
		StatusDetail:     pay.StatusDetail,
		PaymentType:      pay.PaymentType,
		TransactionID:    pay.ExternalReference,
		Customer:         pay.Customer,
		Event:            pay.Event,
		TicketInteiraQty: pay.Breakdown.Inteira,
		TicketMeiaQty:    pay.Breakdown.Meia,
		Quantity:         pay.Breakdown.Quantity,
		Amount:           pay.Amount,
		ApprovedAt:       pay.ApprovedAt,
	}
}
