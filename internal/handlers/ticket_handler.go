package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"theater-site/internal/services"
)

type TicketHandler struct {
	tickets *services.TicketService
}

func NewTicketHandler(tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// ValidateQR - Validate the ticket named by a scanned QR code
func (h *TicketHandler) ValidateQR(e *core.RequestEvent) error {
	var req struct {
		QRData string `json:"qrData"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.tickets.ValidateQR(e.Request.Context(), req.QRData)
	if err != nil {
		return apiError("ticket.ValidateQR()", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid":      res.Valid(),
		"status":     res.Status,
		"message":    res.Message,
		"ticketInfo": res.Ticket,
	})
}

// Validate - Validate by ticket id with the shared door password
func (h *TicketHandler) Validate(e *core.RequestEvent) error {
	var req struct {
		TicketID string `json:"ticketId"`
		Password string `json:"password"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.tickets.ValidateWithPassword(e.Request.Context(), req.TicketID, req.Password)
	if err != nil {
		return apiError("ticket.ValidateWithPassword()", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"success":    res.Valid(),
		"status":     res.Status,
		"message":    res.Message,
		"ticketInfo": res.Ticket,
	})
}
