package mongostore

import (
	"time"

	"github.com/shopspring/decimal"

	"theater-site/models"
)

type transactionDoc struct {
	ID                string          `bson:"_id"`
	Status            string          `bson:"status"`
	Provider          string          `bson:"provider"`
	Customer          models.Customer `bson:"customer"`
	Event             models.Event    `bson:"event"`
	TicketInteiraQty  int             `bson:"ticket_inteira_qty"`
	TicketMeiaQty     int             `bson:"ticket_meia_qty"`
	TotalAmount       string          `bson:"total_amount"`
	PaymentID         string          `bson:"payment_id,omitempty"`
	PreferenceID      string          `bson:"preference_id,omitempty"`
	ExternalReference string          `bson:"external_reference,omitempty"`
	CheckoutURL       string          `bson:"checkout_url,omitempty"`
	CreatedAt         time.Time       `bson:"created_at"`
	UpdatedAt         time.Time       `bson:"updated_at"`
}

type paymentDoc struct {
	PaymentID        string          `bson:"_id"`
	Provider         string          `bson:"provider"`
	Status           string          `bson:"status"`
	StatusDetail     string          `bson:"status_detail,omitempty"`
	PaymentType      string          `bson:"payment_type,omitempty"`
	TransactionID    string          `bson:"transaction_id,omitempty"`
	Customer         models.Customer `bson:"customer"`
	Event            models.Event    `bson:"event"`
	TicketInteiraQty int             `bson:"ticket_inteira_qty"`
	TicketMeiaQty    int             `bson:"ticket_meia_qty"`
	Quantity         int             `bson:"quantity"`
	Amount           string          `bson:"amount"`
	ApprovedAt       *time.Time      `bson:"approved_at,omitempty"`
	CreatedAt        time.Time       `bson:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at"`
}

type ticketDoc struct {
	TicketID     string          `bson:"_id"`
	TicketNumber string          `bson:"ticket_number"`
	Type         string          `bson:"ticket_type"`
	Event        models.Event    `bson:"event"`
	Customer     models.Customer `bson:"customer"`
	PaymentID    string          `bson:"payment_id"`
	TicketIndex  int             `bson:"ticket_index"`
	TotalTickets int             `bson:"total_tickets"`
	GeneratedAt  time.Time       `bson:"generated_at"`
	IsValid      bool            `bson:"is_valid"`
	IsUsed       bool            `bson:"is_used"`
	UsedAt       *time.Time      `bson:"used_at,omitempty"`
}

// mintDoc claims a payment id. The first writer's tickets are stored on it so
// every caller returns the same set.
type mintDoc struct {
	PaymentID string      `bson:"_id"`
	Tickets   []ticketDoc `bson:"tickets"`
	CreatedAt time.Time   `bson:"created_at"`
}

type contentDoc struct {
	ID        string             `bson:"_id"`
	Data      models.SiteContent `bson:"data"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fromTransaction(t *models.Transaction) transactionDoc {
	return transactionDoc{
		ID:                t.ID,
		Status:            string(t.Status),
		Provider:          string(t.Provider),
		Customer:          t.Customer,
		Event:             t.Event,
		TicketInteiraQty:  t.TicketInteiraQty,
		TicketMeiaQty:     t.TicketMeiaQty,
		TotalAmount:       t.TotalAmount.String(),
		PaymentID:         t.PaymentID,
		PreferenceID:      t.PreferenceID,
		ExternalReference: t.ExternalReference,
		CheckoutURL:       t.CheckoutURL,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func (d transactionDoc) toModel() *models.Transaction {
	return &models.Transaction{
		ID:                d.ID,
		Status:            models.TransactionStatus(d.Status),
		Provider:          models.Provider(d.Provider),
		Customer:          d.Customer,
		Event:             d.Event,
		TicketInteiraQty:  d.TicketInteiraQty,
		TicketMeiaQty:     d.TicketMeiaQty,
		TotalAmount:       parseDecimal(d.TotalAmount),
		PaymentID:         d.PaymentID,
		PreferenceID:      d.PreferenceID,
		ExternalReference: d.ExternalReference,
		CheckoutURL:       d.CheckoutURL,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func fromPayment(p *models.Payment) paymentDoc {
	return paymentDoc{
		PaymentID:        p.PaymentID,
		Provider:         string(p.Provider),
		Status:           p.Status,
		StatusDetail:     p.StatusDetail,
		PaymentType:      p.PaymentType,
		TransactionID:    p.TransactionID,
		Customer:         p.Customer,
		Event:            p.Event,
		TicketInteiraQty: p.TicketInteiraQty,
		TicketMeiaQty:    p.TicketMeiaQty,
		Quantity:         p.Quantity,
		Amount:           p.Amount.String(),
		ApprovedAt:       p.ApprovedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (d paymentDoc) toModel() *models.Payment {
	return &models.Payment{
		PaymentID:        d.PaymentID,
		Provider:         models.Provider(d.Provider),
		Status:           d.Status,
		StatusDetail:     d.StatusDetail,
		PaymentType:      d.PaymentType,
		TransactionID:    d.TransactionID,
		Customer:         d.Customer,
		Event:            d.Event,
		TicketInteiraQty: d.TicketInteiraQty,
		TicketMeiaQty:    d.TicketMeiaQty,
		Quantity:         d.Quantity,
		Amount:           parseDecimal(d.Amount),
		ApprovedAt:       d.ApprovedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromTicket(t *models.Ticket) ticketDoc {
	return ticketDoc{
		TicketID:     t.TicketID,
		TicketNumber: t.TicketNumber,
		Type:         string(t.Type),
		Event:        t.Event,
		Customer:     t.Customer,
		PaymentID:    t.PaymentID,
		TicketIndex:  t.TicketIndex,
		TotalTickets: t.TotalTickets,
		GeneratedAt:  t.GeneratedAt,
		IsValid:      t.IsValid,
		IsUsed:       t.IsUsed,
		UsedAt:       t.UsedAt,
	}
}

func (d ticketDoc) toModel() *models.Ticket {
	return &models.Ticket{
		TicketID:     d.TicketID,
		TicketNumber: d.TicketNumber,
		Type:         models.TicketType(d.Type),
		Event:        d.Event,
		Customer:     d.Customer,
		PaymentID:    d.PaymentID,
		TicketIndex:  d.TicketIndex,
		TotalTickets: d.TotalTickets,
		GeneratedAt:  d.GeneratedAt,
		IsValid:      d.IsValid,
		IsUsed:       d.IsUsed,
		UsedAt:       d.UsedAt,
	}
}
