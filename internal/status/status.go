package status

import "errors"

var (
	ErrNotFound     = errors.New("store: record not found")
	ErrUnauthorized = errors.New("auth: invalid credentials")
	ErrInvalidInput = errors.New("request: invalid input")

	ErrInvalidCheckout = errors.New("checkout: invalid request")
	ErrProviderFailure = errors.New("checkout: payment provider failure")
	ErrUnknownProvider = errors.New("provider: unknown payment provider")

	ErrInvalidSignature      = errors.New("webhook: invalid signature")
	ErrMalformedNotification = errors.New("webhook: malformed notification")
	ErrWebhookLocked         = errors.New("webhook: payment is being processed")

	ErrTicketNotFound    = errors.New("ticket: ticket not found")
	ErrTicketAlreadyUsed = errors.New("ticket: ticket already used")
	ErrTicketInvalid     = errors.New("ticket: ticket is not valid")
	ErrPaymentNotFound   = errors.New("payment: payment not found")
	ErrNoTickets         = errors.New("payment: no tickets to mint")
)
