package models

import (
	"fmt"
	"time"
)

type TicketType string

const (
	TicketInteira TicketType = "inteira"
	TicketMeia    TicketType = "meia"
)

// Ticket is one admission credential. IsUsed flips false -> true exactly once.
type Ticket struct {
	TicketID     string     `json:"ticketId"`
	TicketNumber string     `json:"ticketNumber"`
	Type         TicketType `json:"ticketType"`
	Event        Event      `json:"event"`
	Customer     Customer   `json:"customer"`
	PaymentID    string     `json:"paymentId"`
	TicketIndex  int        `json:"ticketIndex"`
	TotalTickets int        `json:"totalTickets"`
	GeneratedAt  time.Time  `json:"generatedAt"`
	IsValid      bool       `json:"isValid"`
	IsUsed       bool       `json:"isUsed"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
}

// TicketBreakdown is the ticket-type split of one purchase.
type TicketBreakdown struct {
	Inteira  int `json:"ticketInteiraQty"`
	Meia     int `json:"ticketMeiaQty"`
	Quantity int `json:"quantity"`
}

// Total falls back to the generic quantity when per-type counts are absent.
func (b TicketBreakdown) Total() int {
	if n := b.Inteira + b.Meia; n > 0 {
		return n
	}
	if b.Quantity > 0 {
		return b.Quantity
	}
	return 0
}

// TypeFor returns the type tag for the 1-based ticket index: the first Inteira
// tickets are full price, the rest half price. Without per-type counts every
// ticket is full price.
func (b TicketBreakdown) TypeFor(index int) TicketType {
	if b.Inteira+b.Meia == 0 || index <= b.Inteira {
		return TicketInteira
	}
	return TicketMeia
}

// TicketNumber derives the human-readable number printed on a ticket.
func TicketNumber(event Event, paymentID string, index int) string {
	return fmt.Sprintf("%s-%s-%03d", event.Code(), paymentID, index)
}
