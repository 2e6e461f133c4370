// Package provider defines the payment provider contract and the metadata
// conventions shared by the mercadopago and stripe implementations.
package provider

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"theater-site/internal/status"
	"theater-site/models"
)

// CheckoutRequest is what a provider needs to open a payment for one
// transaction.
type CheckoutRequest struct {
	TransactionID   string
	Customer        models.Customer
	Event           models.Event
	Breakdown       models.TicketBreakdown
	UnitPrice       decimal.Decimal
	HalfPrice       decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	NotificationURL string
	ReturnURL       string
}

type CheckoutResult struct {
	PreferenceID string
	CheckoutURL  string
	ClientSecret string
}

// Payment is the provider's authoritative view of a payment, with the status
// normalized to approved, rejected, pending or the raw provider value.
type Payment struct {
	ID                string
	Provider          models.Provider
	Status            string
	RawStatus         string
	StatusDetail      string
	PaymentType       string
	Amount            decimal.Decimal
	ExternalReference string
	Customer          models.Customer
	Event             models.Event
	Breakdown         models.TicketBreakdown
	ApprovedAt        *time.Time
}

// Notification is a parsed, signature-checked webhook delivery.
type Notification struct {
	Provider  models.Provider
	Type      string
	PaymentID string
}

const NotificationPayment = "payment"

func (n *Notification) IsPayment() bool {
	return n.Type == NotificationPayment
}

type Provider interface {
	Name() models.Provider
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// ParseNotification verifies and decodes a webhook request. body is the
	// raw request body, already read by the caller.
	ParseNotification(r *http.Request, body []byte) (*Notification, error)
}

// Metadata keys attached to every checkout so the webhook can rebuild the
// purchase from the provider's payment alone.
const (
	MetaTransactionID = "transaction_id"
	MetaCustomerName  = "customer_name"
	MetaCustomerEmail = "customer_email"
	MetaCustomerPhone = "customer_phone"
	MetaEventID       = "event_id"
	MetaEventTitle    = "event_title"
	MetaEventDate     = "event_date"
	MetaEventLocation = "event_location"
	MetaInteiraQty    = "ticket_inteira_qty"
	MetaMeiaQty       = "ticket_meia_qty"
	MetaQuantity      = "quantity"
)

func EncodeMetadata(req *CheckoutRequest) map[string]string {
	return map[string]string{
		MetaTransactionID: req.TransactionID,
		MetaCustomerName:  req.Customer.Name,
		MetaCustomerEmail: req.Customer.Email,
		MetaCustomerPhone: req.Customer.Phone,
		MetaEventID:       req.Event.ID,
		MetaEventTitle:    req.Event.Title,
		MetaEventDate:     req.Event.Date,
		MetaEventLocation: req.Event.Location,
		MetaInteiraQty:    strconv.Itoa(req.Breakdown.Inteira),
		MetaMeiaQty:       strconv.Itoa(req.Breakdown.Meia),
		MetaQuantity:      strconv.Itoa(req.Breakdown.Total()),
	}
}

// DecodeMetadata fills p from provider metadata. Values may come back as
// strings or JSON numbers depending on the provider.
func DecodeMetadata[V any](p *Payment, meta map[string]V) {
	get := func(key string) string {
		v, ok := meta[key]
		if !ok {
			return ""
		}
		return cast.ToString(v)
	}

	p.Customer = models.Customer{
		Name:  get(MetaCustomerName),
		Email: get(MetaCustomerEmail),
		Phone: get(MetaCustomerPhone),
	}
	p.Event = models.Event{
		ID:       get(MetaEventID),
		Title:    get(MetaEventTitle),
		Date:     get(MetaEventDate),
		Location: get(MetaEventLocation),
	}
	p.Breakdown = models.TicketBreakdown{
		Inteira:  cast.ToInt(get(MetaInteiraQty)),
		Meia:     cast.ToInt(get(MetaMeiaQty)),
		Quantity: cast.ToInt(get(MetaQuantity)),
	}
	if ref := get(MetaTransactionID); ref != "" && p.ExternalReference == "" {
		p.ExternalReference = ref
	}
}

// CheckUnsigned applies the missing-secret policy: production deployments
// reject deliveries they cannot verify, development ones log and accept.
func CheckUnsigned(name models.Provider, requireSignature bool) error {
	if requireSignature {
		slog.Error("webhook secret not configured, rejecting delivery", "provider", name)
		return status.ErrInvalidSignature
	}
	slog.Warn("webhook secret not configured, skipping signature verification", "provider", name)
	return nil
}
