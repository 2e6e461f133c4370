package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider payment statuses after normalization.
const (
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
	PaymentPending  = "pending"
)

// Payment is the denormalized record of a provider-confirmed payment, keyed by
// the provider's payment id.
type Payment struct {
	PaymentID        string          `json:"paymentId"`
	Provider         Provider        `json:"provider"`
	Status           string          `json:"status"`
	StatusDetail     string          `json:"statusDetail,omitempty"`
	PaymentType      string          `json:"paymentType,omitempty"`
	TransactionID    string          `json:"transactionId,omitempty"`
	Customer         Customer        `json:"customer"`
	Event            Event           `json:"event"`
	TicketInteiraQty int             `json:"ticketInteiraQty"`
	TicketMeiaQty    int             `json:"ticketMeiaQty"`
	Quantity         int             `json:"quantity"`
	Amount           decimal.Decimal `json:"amount"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (p *Payment) Breakdown() TicketBreakdown {
	return TicketBreakdown{Inteira: p.TicketInteiraQty, Meia: p.TicketMeiaQty, Quantity: p.Quantity}
}

// ReportRow is one line of the admin sales report.
type ReportRow struct {
	Event    string `json:"event"`
	Date     string `json:"date"`
	Location string `json:"location"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}
