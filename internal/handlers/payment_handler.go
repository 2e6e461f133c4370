package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"theater-site/internal/services"
	"theater-site/internal/services/provider"
	"theater-site/internal/status"
	"theater-site/models"
	"theater-site/monitoring"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	checkout  *services.CheckoutService
	webhooks  *services.WebhookService
	providers *provider.Registry
	monitor   *monitoring.Monitor
}

func NewPaymentHandler(checkout *services.CheckoutService, webhooks *services.WebhookService, providers *provider.Registry, monitor *monitoring.Monitor) *PaymentHandler {
	return &PaymentHandler{
		checkout:  checkout,
		webhooks:  webhooks,
		providers: providers,
		monitor:   monitor,
	}
}

// Checkout - Create a transaction and open a payment with the chosen provider
func (h *PaymentHandler) Checkout(e *core.RequestEvent) error {
	var req services.CheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.BaseURL = requestBaseURL(e.Request)

	res, err := h.checkout.StartCheckout(e.Request.Context(), &req)
	if err != nil {
		return apiError("checkout.StartCheckout()", err)
	}
	return e.JSON(http.StatusOK, res)
}

// GetTransaction - Public status of a checkout, polled by the thank-you page
func (h *PaymentHandler) GetTransaction(e *core.RequestEvent) error {
	tx, err := h.checkout.GetTransaction(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError("checkout.GetTransaction()", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"transactionId": tx.ID,
		"status":        tx.Status,
		"event":         tx.Event,
		"totalAmount":   tx.TotalAmount,
	})
}

// Webhook - Receive a provider notification. Only a bad signature (401) or
// an unreadable notification (400) is refused; once accepted the delivery is
// acknowledged even when processing fails, and the admin tools re-drive it.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	name := models.Provider(e.Request.PathValue("provider"))
	p, err := h.providers.Get(name)
	if err != nil || name == "" {
		return apis.NewNotFoundError("Unknown payment provider", nil)
	}

	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("Failed to read body", err)
	}

	n, err := p.ParseNotification(e.Request, body)
	switch {
	case errors.Is(err, status.ErrInvalidSignature):
		h.monitor.TrackWebhook(string(name), "invalid_signature")
		slog.Warn("webhook rejected", "provider", name, "error", err)
		return apis.NewUnauthorizedError("Invalid signature", nil)
	case err != nil:
		h.monitor.TrackWebhook(string(name), "malformed")
		slog.Warn("webhook malformed", "provider", name, "error", err)
		return apis.NewBadRequestError("Malformed notification", nil)
	}

	res, err := h.webhooks.HandleNotification(e.Request.Context(), n)
	if err != nil {
		slog.Error("webhook.HandleNotification()", "provider", name, "payment_id", n.PaymentID, "error", err)
		return e.JSON(http.StatusOK, map[string]any{"received": true})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received": true,
		"outcome":  res.Outcome,
	})
}

// requestBaseURL rebuilds the public origin of r, honoring the proxy headers.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}
