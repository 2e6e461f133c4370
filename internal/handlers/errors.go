package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/tools/router"

	"theater-site/internal/status"
)

// apiError maps service sentinels onto HTTP errors. Anything unknown is
// logged and reported as a 500 without details.
func apiError(op string, err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidCheckout),
		errors.Is(err, status.ErrInvalidInput),
		errors.Is(err, status.ErrMalformedNotification),
		errors.Is(err, status.ErrUnknownProvider):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrUnauthorized),
		errors.Is(err, status.ErrInvalidSignature):
		return apis.NewUnauthorizedError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound),
		errors.Is(err, status.ErrTicketNotFound),
		errors.Is(err, status.ErrPaymentNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrProviderFailure):
		slog.Error(op, "error", err)
		return router.NewApiError(http.StatusBadGateway, "Payment provider unavailable", map[string]any{"details": err.Error()})
	default:
		slog.Error(op, "error", err)
		return apis.NewInternalServerError("Something went wrong", nil)
	}
}
