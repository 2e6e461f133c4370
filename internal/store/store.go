// Package store defines the persistence contract shared by the pocketbase,
// mongo and bolt drivers.
//
// Two operations carry the concurrency guarantees of the ticketing flow and
// every driver must implement them atomically:
//   - MintTickets inserts the tickets of a payment only if none exist yet for
//     that payment id, so webhook redeliveries cannot mint twice.
//   - MarkTicketUsed flips is_used from false to true with a conditional
//     update, so two simultaneous scans yield exactly one success.
package store

import (
	"cmp"
	"context"
	"slices"
	"time"

	"theater-site/internal/status"
	"theater-site/models"
)

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, upd models.TransactionUpdate) error
	ListTransactions(ctx context.Context) ([]*models.Transaction, error)
}

type PaymentStore interface {
	UpsertPayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListPayments(ctx context.Context) ([]*models.Payment, error)
}

type TicketStore interface {
	// MintTickets returns the stored tickets of the payment and whether this
	// call created them.
	MintTickets(ctx context.Context, paymentID string, tickets []*models.Ticket) ([]*models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	ListTicketsByPayment(ctx context.Context, paymentID string) ([]*models.Ticket, error)
	ListTickets(ctx context.Context) ([]*models.Ticket, error)
	// MarkTicketUsed returns status.ErrTicketNotFound, or the stored ticket
	// together with status.ErrTicketAlreadyUsed / status.ErrTicketInvalid when
	// the swap did not happen.
	MarkTicketUsed(ctx context.Context, ticketID string, usedAt time.Time) (*models.Ticket, error)
}

type ContentStore interface {
	// GetSiteContent returns status.ErrNotFound before the first save.
	GetSiteContent(ctx context.Context) (*models.SiteContent, error)
	SaveSiteContent(ctx context.Context, c *models.SiteContent) error
}

type Store interface {
	TransactionStore
	PaymentStore
	TicketStore
	ContentStore
	Close() error
}

// Collection names shared by the drivers.
const (
	CollectionTransactions = "transactions"
	CollectionPayments     = "payments"
	CollectionTickets      = "tickets"
	CollectionSiteContent  = "site_content"

	// SiteContentID is the key of the single CMS document.
	SiteContentID = "site"
)

// SortTickets orders tickets by their 1-based index.
func SortTickets(tickets []*models.Ticket) {
	slices.SortFunc(tickets, func(a, b *models.Ticket) int {
		return cmp.Compare(a.TicketIndex, b.TicketIndex)
	})
}

// CheckUsable reports why a stored ticket cannot be marked used.
func CheckUsable(t *models.Ticket) error {
	switch {
	case !t.IsValid:
		return status.ErrTicketInvalid
	case t.IsUsed:
		return status.ErrTicketAlreadyUsed
	}
	return nil
}

// ApplyUpdate copies the non-empty fields of upd onto tx.
func ApplyUpdate(tx *models.Transaction, upd models.TransactionUpdate, now time.Time) {
	if upd.Status != "" {
		tx.Status = upd.Status
	}
	if upd.PaymentID != "" {
		tx.PaymentID = upd.PaymentID
	}
	if upd.PreferenceID != "" {
		tx.PreferenceID = upd.PreferenceID
	}
	if upd.CheckoutURL != "" {
		tx.CheckoutURL = upd.CheckoutURL
	}
	tx.UpdatedAt = now
}
