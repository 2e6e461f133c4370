package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionAwaitingPayment TransactionStatus = "aguardando_pagamento"
	TransactionApproved        TransactionStatus = "aprovado"
	TransactionPending         TransactionStatus = "pendente"
	TransactionRejected        TransactionStatus = "recusado"
)

type Provider string

const (
	ProviderMercadoPago Provider = "mercadopago"
	ProviderStripe      Provider = "stripe"
)

// Transaction is one checkout attempt. It is created before any provider call
// and only moves out of aguardando_pagamento when a webhook reports a status.
type Transaction struct {
	ID                string            `json:"transactionId"`
	Status            TransactionStatus `json:"status"`
	Provider          Provider          `json:"provider"`
	Customer          Customer          `json:"customer"`
	Event             Event             `json:"event"`
	TicketInteiraQty  int               `json:"ticketInteiraQty"`
	TicketMeiaQty     int               `json:"ticketMeiaQty"`
	TotalAmount       decimal.Decimal   `json:"totalAmount"`
	PaymentID         string            `json:"paymentId,omitempty"`
	PreferenceID      string            `json:"preferenceId,omitempty"`
	ExternalReference string            `json:"externalReference,omitempty"`
	CheckoutURL       string            `json:"checkoutUrl,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (t *Transaction) Breakdown() TicketBreakdown {
	return TicketBreakdown{Inteira: t.TicketInteiraQty, Meia: t.TicketMeiaQty}
}

// TransactionUpdate carries the fields a webhook or checkout step may change.
// Empty strings are left untouched.
type TransactionUpdate struct {
	Status       TransactionStatus
	PaymentID    string
	PreferenceID string
	CheckoutURL  string
}
