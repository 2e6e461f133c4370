package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"theater-site/internal/services/provider"
	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
	"theater-site/monitoring"
	"theater-site/utils"
)

// CheckoutEvent is the event descriptor posted by the checkout form.
type CheckoutEvent struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Date      string          `json:"date"`
	Location  string          `json:"location"`
	Price     decimal.Decimal `json:"price"`
	HalfPrice decimal.Decimal `json:"halfPrice"`
}

type CheckoutRequest struct {
	Provider         models.Provider `json:"provider"`
	Customer         models.Customer `json:"customer"`
	Event            CheckoutEvent   `json:"event"`
	TicketInteiraQty int             `json:"ticketInteiraQty"`
	TicketMeiaQty    int             `json:"ticketMeiaQty"`
	Quantity         int             `json:"quantity"`

	// BaseURL is the site root seen by the client, used when no public base
	// URL is configured.
	BaseURL string `json:"-"`
}

func (r *CheckoutRequest) Breakdown() models.TicketBreakdown {
	return models.TicketBreakdown{Inteira: r.TicketInteiraQty, Meia: r.TicketMeiaQty, Quantity: r.Quantity}
}

type CheckoutResponse struct {
	TransactionID string          `json:"transactionId"`
	Provider      models.Provider `json:"provider"`
	PreferenceID  string          `json:"preferenceId,omitempty"`
	CheckoutURL   string          `json:"checkoutUrl,omitempty"`
	ClientSecret  string          `json:"clientSecret,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

const maxTicketsPerCheckout = 20

type CheckoutService struct {
	store     store.Store
	providers *provider.Registry
	content   *ContentService
	monitor   *monitoring.Monitor

	baseURL  string
	currency string
}

func NewCheckoutService(s store.Store, providers *provider.Registry, content *ContentService, monitor *monitoring.Monitor, baseURL, currency string) *CheckoutService {
	return &CheckoutService{
		store:     s,
		providers: providers,
		content:   content,
		monitor:   monitor,
		baseURL:   strings.TrimRight(baseURL, "/"),
		currency:  currency,
	}
}

// StartCheckout records a transaction and opens a payment with the chosen
// provider. The transaction is written first so every provider payment can be
// traced back to it.
func (s *CheckoutService) StartCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	p, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported provider %q", status.ErrInvalidCheckout, req.Provider)
	}
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	s.applyCatalogPrices(ctx, &req.Event)
	unit, half := req.Event.Price, req.Event.HalfPrice
	if half.IsZero() {
		half = unit.Div(decimal.NewFromInt(2)).Round(2)
	}
	if !unit.IsPositive() {
		return nil, fmt.Errorf("%w: event price is required", status.ErrInvalidCheckout)
	}
	if !half.IsPositive() {
		return nil, fmt.Errorf("%w: half price must be positive", status.ErrInvalidCheckout)
	}

	breakdown := req.Breakdown()
	total := checkoutTotal(breakdown, unit, half)

	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:       utils.NewTransactionID(),
		Status:   models.TransactionAwaitingPayment,
		Provider: p.Name(),
		Customer: req.Customer,
		Event: models.Event{
			ID:       req.Event.ID,
			Title:    req.Event.Title,
			Date:     req.Event.Date,
			Location: req.Event.Location,
		},
		TicketInteiraQty: breakdown.Inteira,
		TicketMeiaQty:    breakdown.Meia,
		TotalAmount:      total,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if breakdown.Inteira+breakdown.Meia == 0 {
		tx.TicketInteiraQty = breakdown.Total()
	}
	tx.ExternalReference = tx.ID

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}

	base := s.baseURL
	if base == "" {
		base = strings.TrimRight(req.BaseURL, "/")
	}

	start := time.Now()
	result, err := p.CreateCheckout(ctx, &provider.CheckoutRequest{
		TransactionID:   tx.ID,
		Customer:        tx.Customer,
		Event:           tx.Event,
		Breakdown:       tx.Breakdown(),
		UnitPrice:       unit,
		HalfPrice:       half,
		Total:           total,
		Currency:        s.currency,
		NotificationURL: base + "/api/webhooks/" + string(p.Name()),
		ReturnURL:       base + "/obrigado?transaction=" + tx.ID,
	})
	s.monitor.TrackProviderCall(string(p.Name()), "create_checkout", start)
	if err != nil {
		s.monitor.TrackCheckout(string(p.Name()), "provider_error")
		slog.Error("checkout.CreateCheckout()", "provider", p.Name(), "transaction_id", tx.ID, "error", err)
		if errors.Is(err, status.ErrProviderFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", status.ErrProviderFailure, err)
	}

	err = s.store.UpdateTransaction(ctx, tx.ID, models.TransactionUpdate{
		PreferenceID: result.PreferenceID,
		CheckoutURL:  result.CheckoutURL,
	})
	if err != nil {
		// The payment can still complete, the webhook finds the transaction by id.
		slog.Error("checkout.UpdateTransaction()", "transaction_id", tx.ID, "error", err)
	}

	s.monitor.TrackCheckout(string(p.Name()), "ok")
	slog.Info("checkout started", "provider", p.Name(), "transaction_id", tx.ID, "total", total.StringFixed(2))

	return &CheckoutResponse{
		TransactionID: tx.ID,
		Provider:      p.Name(),
		PreferenceID:  result.PreferenceID,
		CheckoutURL:   result.CheckoutURL,
		ClientSecret:  result.ClientSecret,
		TotalAmount:   total,
	}, nil
}

func (s *CheckoutService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// applyCatalogPrices prefers the prices published in the site content over
// the ones posted by the browser.
func (s *CheckoutService) applyCatalogPrices(ctx context.Context, ev *CheckoutEvent) {
	if s.content == nil {
		return
	}
	item, ok := s.content.FindEvent(ctx, ev.ID)
	if !ok {
		return
	}
	if price, ok := ParsePrice(item.Price); ok {
		ev.Price = price
	}
	if half, ok := ParsePrice(item.HalfPrice); ok {
		ev.HalfPrice = half
	}
}

func validateCheckout(req *CheckoutRequest) error {
	var missing []string
	if strings.TrimSpace(req.Customer.Name) == "" {
		missing = append(missing, "customer.name")
	}
	if strings.TrimSpace(req.Customer.Email) == "" {
		missing = append(missing, "customer.email")
	}
	if strings.TrimSpace(req.Event.ID) == "" {
		missing = append(missing, "event.id")
	}
	if strings.TrimSpace(req.Event.Title) == "" {
		missing = append(missing, "event.title")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", status.ErrInvalidCheckout, strings.Join(missing, ", "))
	}

	if _, err := mail.ParseAddress(req.Customer.Email); err != nil {
		return fmt.Errorf("%w: invalid customer.email", status.ErrInvalidCheckout)
	}
	if req.TicketInteiraQty < 0 || req.TicketMeiaQty < 0 || req.Quantity < 0 {
		return fmt.Errorf("%w: ticket quantities cannot be negative", status.ErrInvalidCheckout)
	}
	n := req.Breakdown().Total()
	if n == 0 {
		return fmt.Errorf("%w: at least one ticket is required", status.ErrInvalidCheckout)
	}
	if n > maxTicketsPerCheckout {
		return fmt.Errorf("%w: at most %d tickets per purchase", status.ErrInvalidCheckout, maxTicketsPerCheckout)
	}
	return nil
}

func checkoutTotal(b models.TicketBreakdown, unit, half decimal.Decimal) decimal.Decimal {
	if b.Inteira+b.Meia == 0 {
		return unit.Mul(decimal.NewFromInt(int64(b.Total())))
	}
	return unit.Mul(decimal.NewFromInt(int64(b.Inteira))).
		Add(half.Mul(decimal.NewFromInt(int64(b.Meia))))
}

// ParsePrice reads prices as they are typed in the CMS: "50", "50.00",
// "R$ 50,00" or "1.250,00".
func ParsePrice(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
