// Package tickets renders issued tickets: the QR payload scanned at the door,
// its PNG image and the PDF mailed to the buyer.
package tickets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// ValidationPath is the page the QR code points at.
const ValidationPath = "/validar"

const qrSize = 512

// QRPayload returns the validation URL encoded into a ticket's QR code.
func QRPayload(baseURL, ticketID string) string {
	return strings.TrimRight(baseURL, "/") + ValidationPath + "?ticket=" + url.QueryEscape(ticketID)
}

// TicketIDFromPayload extracts the ticket id from a scanned validation URL.
func TicketIDFromPayload(payload string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(payload))
	if err != nil {
		return "", fmt.Errorf("tickets: url.Parse: %w", err)
	}
	id := u.Query().Get("ticket")
	if id == "" {
		id = u.Query().Get("ticketId")
	}
	if id == "" {
		return "", errors.New("tickets: payload carries no ticket id")
	}
	return id, nil
}

func QRPNG(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("tickets: qrcode.Encode: %w", err)
	}
	return png, nil
}
