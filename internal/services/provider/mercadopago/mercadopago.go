// Package mercadopago implements the checkout-preference flow of the
// MercadoPago REST API.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"theater-site/internal/services/provider"
	"theater-site/models"
)

var _ provider.Provider = (*Client)(nil)

func (c *Client) Name() models.Provider {
	return models.ProviderMercadoPago
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type preferencePayer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone *struct {
		Number string `json:"number"`
	} `json:"phone,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem  `json:"items"`
	Payer             preferencePayer   `json:"payer"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	BackURLs          map[string]string `json:"back_urls,omitempty"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	Metadata          map[string]string `json:"metadata"`
}

type preferenceReply struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreateCheckout creates a checkout preference with one item per ticket type.
func (c *Client) CreateCheckout(ctx context.Context, req *provider.CheckoutRequest) (*provider.CheckoutResult, error) {
	body := preferenceRequest{
		Payer: preferencePayer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
		},
		ExternalReference: req.TransactionID,
		NotificationURL:   req.NotificationURL,
		Metadata:          provider.EncodeMetadata(req),
	}
	if req.Customer.Phone != "" {
		body.Payer.Phone = &struct {
			Number string `json:"number"`
		}{Number: req.Customer.Phone}
	}
	if req.ReturnURL != "" {
		body.BackURLs = map[string]string{
			"success": req.ReturnURL,
			"pending": req.ReturnURL,
			"failure": req.ReturnURL,
		}
		body.AutoReturn = "approved"
	}

	b := req.Breakdown
	switch {
	case b.Inteira > 0 || b.Meia > 0:
		if b.Inteira > 0 {
			body.Items = append(body.Items, item(req, "inteira", "Inteira", b.Inteira, req.UnitPrice))
		}
		if b.Meia > 0 {
			body.Items = append(body.Items, item(req, "meia", "Meia-entrada", b.Meia, req.HalfPrice))
		}
	default:
		body.Items = append(body.Items, item(req, "ingresso", "Ingresso", b.Total(), req.UnitPrice))
	}

	var reply preferenceReply
	headers := map[string]string{"X-Idempotency-Key": req.TransactionID}
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, &reply, headers); err != nil {
		return nil, err
	}

	return &provider.CheckoutResult{
		PreferenceID: reply.ID,
		CheckoutURL:  reply.InitPoint,
	}, nil
}

func item(req *provider.CheckoutRequest, suffix, label string, qty int, price decimal.Decimal) preferenceItem {
	return preferenceItem{
		ID:         req.Event.ID + "-" + suffix,
		Title:      fmt.Sprintf("%s - %s", req.Event.Title, label),
		Quantity:   qty,
		CurrencyID: req.Currency,
		UnitPrice:  price.InexactFloat64(),
	}
}

type paymentReply struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	PaymentTypeID     string         `json:"payment_type_id"`
	TransactionAmount json.Number    `json:"transaction_amount"`
	ExternalReference string         `json:"external_reference"`
	DateApproved      string         `json:"date_approved"`
	Metadata          map[string]any `json:"metadata"`
	Payer             struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"payer"`
}

// GetPayment fetches the authoritative payment state.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*provider.Payment, error) {
	var reply paymentReply
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &reply, nil); err != nil {
		return nil, err
	}

	p := &provider.Payment{
		ID:                reply.ID.String(),
		Provider:          models.ProviderMercadoPago,
		Status:            normalizeStatus(reply.Status),
		RawStatus:         reply.Status,
		StatusDetail:      reply.StatusDetail,
		PaymentType:       reply.PaymentTypeID,
		ExternalReference: reply.ExternalReference,
	}
	if p.ID == "" {
		p.ID = paymentID
	}
	if amount, err := decimal.NewFromString(reply.TransactionAmount.String()); err == nil {
		p.Amount = amount
	}
	if reply.DateApproved != "" {
		if t, err := time.Parse(time.RFC3339Nano, reply.DateApproved); err == nil {
			p.ApprovedAt = &t
		}
	}

	provider.DecodeMetadata(p, reply.Metadata)
	if p.Customer.Email == "" {
		p.Customer.Email = reply.Payer.Email
	}
	if p.Customer.Name == "" {
		p.Customer.Name = reply.Payer.FirstName
		if reply.Payer.LastName != "" {
			p.Customer.Name += " " + reply.Payer.LastName
		}
	}
	return p, nil
}

// normalizeStatus maps the three statuses the site acts on. Anything else,
// refunds and chargebacks included, passes through and changes nothing.
func normalizeStatus(s string) string {
	switch s {
	case "approved":
		return models.PaymentApproved
	case "rejected":
		return models.PaymentRejected
	case "pending":
		return models.PaymentPending
	}
	return s
}
