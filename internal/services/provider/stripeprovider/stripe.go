// Package stripeprovider implements payments through Stripe PaymentIntents.
// The browser confirms the intent with the returned client secret, so there
// is no hosted checkout URL.
package stripeprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"theater-site/internal/services/provider"
	"theater-site/internal/status"
	"theater-site/models"
	"theater-site/utils"
)

type Config struct {
	SecretKey     string
	WebhookSecret string

	// RequireSignature rejects webhooks when WebhookSecret is empty.
	RequireSignature bool

	// Backends overrides the Stripe API endpoints, nil means api.stripe.com.
	Backends *stripe.Backends
}

type Client struct {
	sc               *client.API
	webhookSecret    string
	requireSignature bool
	cb               *utils.CircuitBreaker
}

var _ provider.Provider = (*Client)(nil)

func New(c Config) *Client {
	sc := &client.API{}
	sc.Init(c.SecretKey, c.Backends)
	return &Client{
		sc:               sc,
		webhookSecret:    c.WebhookSecret,
		requireSignature: c.RequireSignature,
		cb:               utils.NewCircuitBreaker("stripe"),
	}
}

func (c *Client) Name() models.Provider {
	return models.ProviderStripe
}

// CreateCheckout creates a PaymentIntent for the whole purchase. Amounts are
// sent in the currency's minor unit.
func (c *Client) CreateCheckout(ctx context.Context, req *provider.CheckoutRequest) (*provider.CheckoutResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Total.Shift(2).IntPart()),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.Event.Title),
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	for k, v := range provider.EncodeMetadata(req) {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)

	pi, err := utils.Call(ctx, c.cb, func(ctx context.Context) (*stripe.PaymentIntent, error) {
		return c.sc.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: PaymentIntents.New: %v", status.ErrProviderFailure, err)
	}

	return &provider.CheckoutResult{
		PreferenceID: pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*provider.Payment, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := utils.Call(ctx, c.cb, func(ctx context.Context) (*stripe.PaymentIntent, error) {
		return c.sc.PaymentIntents.Get(paymentID, params)
	})
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", status.ErrPaymentNotFound, paymentID)
		}
		return nil, fmt.Errorf("%w: stripe: PaymentIntents.Get: %v", status.ErrProviderFailure, err)
	}

	return toPayment(pi), nil
}

func toPayment(pi *stripe.PaymentIntent) *provider.Payment {
	p := &provider.Payment{
		ID:        pi.ID,
		Provider:  models.ProviderStripe,
		Status:    normalizeStatus(pi),
		RawStatus: string(pi.Status),
		Amount:    decimal.New(pi.Amount, -2),
	}
	if pi.LastPaymentError != nil {
		p.StatusDetail = string(pi.LastPaymentError.Code)
	}
	if len(pi.PaymentMethodTypes) > 0 {
		p.PaymentType = pi.PaymentMethodTypes[0]
	}
	provider.DecodeMetadata(p, pi.Metadata)
	if p.Customer.Email == "" {
		p.Customer.Email = pi.ReceiptEmail
	}
	if p.Status == models.PaymentApproved {
		approved := time.Unix(pi.Created, 0)
		p.ApprovedAt = &approved
	}
	return p
}

func normalizeStatus(pi *stripe.PaymentIntent) string {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentApproved
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		return models.PaymentPending
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentRejected
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A fresh intent also sits here; only a failed attempt is a rejection.
		if pi.LastPaymentError != nil {
			return models.PaymentRejected
		}
		return models.PaymentPending
	}
	return string(pi.Status)
}

// ParseNotification verifies the Stripe-Signature header and maps
// payment_intent.* events to payment notifications.
func (c *Client) ParseNotification(r *http.Request, body []byte) (*provider.Notification, error) {
	var event stripe.Event
	if c.webhookSecret == "" {
		if err := provider.CheckUnsigned(c.Name(), c.requireSignature); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrMalformedNotification, err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), c.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrInvalidSignature, err)
		}
	}

	n := &provider.Notification{
		Provider: models.ProviderStripe,
		Type:     string(event.Type),
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return n, nil
	}
	if event.Data == nil || event.Data.Object == nil {
		return nil, fmt.Errorf("%w: event without data", status.ErrMalformedNotification)
	}
	id, _ := event.Data.Object["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: missing payment intent id", status.ErrMalformedNotification)
	}
	n.Type = provider.NotificationPayment
	n.PaymentID = id
	return n, nil
}
