// Package pbstore is the default store driver, backed by PocketBase
// collections in the application's SQLite database.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
)

type Store struct {
	app core.App
}

var _ store.Store = (*Store)(nil)

func New(app core.App) *Store {
	return &Store{app: app}
}

// Close is a no-op; the database belongs to the PocketBase app.
func (s *Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func dateOf(r *core.Record, field string) time.Time {
	return r.GetDateTime(field).Time()
}

func decimalOf(r *core.Record, field string) decimal.Decimal {
	d, err := decimal.NewFromString(r.GetString(field))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	collection, err := s.app.FindCollectionByNameOrId(store.CollectionTransactions)
	if err != nil {
		return fmt.Errorf("pbstore: create transaction: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("transaction_id", tx.ID)
	setTransaction(record, tx)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("pbstore: create transaction: %w", err)
	}

	tx.CreatedAt = dateOf(record, "created")
	tx.UpdatedAt = dateOf(record, "updated")
	return nil
}

func setTransaction(r *core.Record, tx *models.Transaction) {
	r.Set("status", string(tx.Status))
	r.Set("provider", string(tx.Provider))
	r.Set("customer", tx.Customer)
	r.Set("event", tx.Event)
	r.Set("ticket_inteira_qty", tx.TicketInteiraQty)
	r.Set("ticket_meia_qty", tx.TicketMeiaQty)
	r.Set("total_amount", tx.TotalAmount.String())
	r.Set("payment_id", tx.PaymentID)
	r.Set("preference_id", tx.PreferenceID)
	r.Set("external_reference", tx.ExternalReference)
	r.Set("checkout_url", tx.CheckoutURL)
}

func toTransaction(r *core.Record) *models.Transaction {
	tx := &models.Transaction{
		ID:                r.GetString("transaction_id"),
		Status:            models.TransactionStatus(r.GetString("status")),
		Provider:          models.Provider(r.GetString("provider")),
		TicketInteiraQty:  r.GetInt("ticket_inteira_qty"),
		TicketMeiaQty:     r.GetInt("ticket_meia_qty"),
		TotalAmount:       decimalOf(r, "total_amount"),
		PaymentID:         r.GetString("payment_id"),
		PreferenceID:      r.GetString("preference_id"),
		ExternalReference: r.GetString("external_reference"),
		CheckoutURL:       r.GetString("checkout_url"),
		CreatedAt:         dateOf(r, "created"),
		UpdatedAt:         dateOf(r, "updated"),
	}
	r.UnmarshalJSONField("customer", &tx.Customer)
	r.UnmarshalJSONField("event", &tx.Event)
	return tx
}

func (s *Store) findTransaction(id string) (*core.Record, error) {
	record, err := s.app.FindFirstRecordByData(store.CollectionTransactions, "transaction_id", id)
	if isNotFound(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: find transaction: %w", err)
	}
	return record, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	record, err := s.findTransaction(id)
	if err != nil {
		return nil, err
	}
	return toTransaction(record), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, upd models.TransactionUpdate) error {
	record, err := s.findTransaction(id)
	if err != nil {
		return err
	}

	tx := toTransaction(record)
	store.ApplyUpdate(tx, upd, time.Now())
	setTransaction(record, tx)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("pbstore: update transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]*models.Transaction, error) {
	records, err := s.app.FindRecordsByFilter(store.CollectionTransactions, "", "-created", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list transactions: %w", err)
	}
	items := make([]*models.Transaction, 0, len(records))
	for _, r := range records {
		items = append(items, toTransaction(r))
	}
	return items, nil
}

func (s *Store) UpsertPayment(ctx context.Context, p *models.Payment) error {
	record, err := s.app.FindFirstRecordByData(store.CollectionPayments, "payment_id", p.PaymentID)
	switch {
	case isNotFound(err):
		collection, err := s.app.FindCollectionByNameOrId(store.CollectionPayments)
		if err != nil {
			return fmt.Errorf("pbstore: upsert payment: %w", err)
		}
		record = core.NewRecord(collection)
		record.Set("payment_id", p.PaymentID)
	case err != nil:
		return fmt.Errorf("pbstore: upsert payment: %w", err)
	}

	record.Set("provider", string(p.Provider))
	record.Set("status", p.Status)
	record.Set("status_detail", p.StatusDetail)
	record.Set("payment_type", p.PaymentType)
	record.Set("transaction_id", p.TransactionID)
	record.Set("customer", p.Customer)
	record.Set("event", p.Event)
	record.Set("ticket_inteira_qty", p.TicketInteiraQty)
	record.Set("ticket_meia_qty", p.TicketMeiaQty)
	record.Set("quantity", p.Quantity)
	record.Set("amount", p.Amount.String())
	if p.ApprovedAt != nil {
		record.Set("approved_at", *p.ApprovedAt)
	} else {
		record.Set("approved_at", "")
	}

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("pbstore: upsert payment: %w", err)
	}

	p.CreatedAt = dateOf(record, "created")
	p.UpdatedAt = dateOf(record, "updated")
	return nil
}

func toPayment(r *core.Record) *models.Payment {
	p := &models.Payment{
		PaymentID:        r.GetString("payment_id"),
		Provider:         models.Provider(r.GetString("provider")),
		Status:           r.GetString("status"),
		StatusDetail:     r.GetString("status_detail"),
		PaymentType:      r.GetString("payment_type"),
		TransactionID:    r.GetString("transaction_id"),
		TicketInteiraQty: r.GetInt("ticket_inteira_qty"),
		TicketMeiaQty:    r.GetInt("ticket_meia_qty"),
		Quantity:         r.GetInt("quantity"),
		Amount:           decimalOf(r, "amount"),
		CreatedAt:        dateOf(r, "created"),
		UpdatedAt:        dateOf(r, "updated"),
	}
	if approved := r.GetDateTime("approved_at"); !approved.IsZero() {
		t := approved.Time()
		p.ApprovedAt = &t
	}
	r.UnmarshalJSONField("customer", &p.Customer)
	r.UnmarshalJSONField("event", &p.Event)
	return p
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByData(store.CollectionPayments, "payment_id", paymentID)
	if isNotFound(err) {
		return nil, status.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: get payment: %w", err)
	}
	return toPayment(record), nil
}

func (s *Store) ListPayments(_ context.Context) ([]*models.Payment, error) {
	records, err := s.app.FindRecordsByFilter(store.CollectionPayments, "", "-created", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list payments: %w", err)
	}
	items := make([]*models.Payment, 0, len(records))
	for _, r := range records {
		items = append(items, toPayment(r))
	}
	return items, nil
}

func toTicket(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		TicketID:     r.GetString("ticket_id"),
		TicketNumber: r.GetString("ticket_number"),
		Type:         models.TicketType(r.GetString("ticket_type")),
		PaymentID:    r.GetString("payment_id"),
		TicketIndex:  r.GetInt("ticket_index"),
		TotalTickets: r.GetInt("total_tickets"),
		GeneratedAt:  dateOf(r, "generated_at"),
		IsValid:      r.GetBool("is_valid"),
		IsUsed:       r.GetBool("is_used"),
	}
	if used := r.GetDateTime("used_at"); !used.IsZero() {
		usedAt := used.Time()
		t.UsedAt = &usedAt
	}
	r.UnmarshalJSONField("event", &t.Event)
	r.UnmarshalJSONField("customer", &t.Customer)
	return t
}

func findTicketsByPayment(app core.App, paymentID string) ([]*core.Record, error) {
	return app.FindRecordsByFilter(
		store.CollectionTickets,
		"payment_id = {:paymentId}",
		"ticket_index",
		0,
		0,
		dbx.Params{"paymentId": paymentID},
	)
}

// MintTickets checks and inserts inside one write transaction. The unique
// (payment_id, ticket_index) index backs it up if a second writer slips past.
func (s *Store) MintTickets(ctx context.Context, paymentID string, tickets []*models.Ticket) ([]*models.Ticket, bool, error) {
	if len(tickets) == 0 {
		return nil, false, status.ErrNoTickets
	}

	var existing []*core.Record
	err := s.app.RunInTransaction(func(txApp core.App) error {
		var err error
		existing, err = findTicketsByPayment(txApp, paymentID)
		if err != nil || len(existing) > 0 {
			return err
		}

		collection, err := txApp.FindCollectionByNameOrId(store.CollectionTickets)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			record := core.NewRecord(collection)
			record.Set("ticket_id", t.TicketID)
			record.Set("ticket_number", t.TicketNumber)
			record.Set("ticket_type", string(t.Type))
			record.Set("event", t.Event)
			record.Set("customer", t.Customer)
			record.Set("payment_id", paymentID)
			record.Set("ticket_index", t.TicketIndex)
			record.Set("total_tickets", t.TotalTickets)
			record.Set("generated_at", t.GeneratedAt)
			record.Set("is_valid", t.IsValid)
			record.Set("is_used", t.IsUsed)
			if err := txApp.SaveWithContext(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// lost a race against another writer: return what it stored
		if records, findErr := findTicketsByPayment(s.app, paymentID); findErr == nil && len(records) > 0 {
			return toTickets(records), false, nil
		}
		return nil, false, fmt.Errorf("pbstore: mint tickets: %w", err)
	}

	if len(existing) > 0 {
		return toTickets(existing), false, nil
	}

	store.SortTickets(tickets)
	return tickets, true, nil
}

func toTickets(records []*core.Record) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, toTicket(r))
	}
	store.SortTickets(tickets)
	return tickets
}

func (s *Store) GetTicket(_ context.Context, ticketID string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByData(store.CollectionTickets, "ticket_id", ticketID)
	if isNotFound(err) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: get ticket: %w", err)
	}
	return toTicket(record), nil
}

func (s *Store) ListTicketsByPayment(_ context.Context, paymentID string) ([]*models.Ticket, error) {
	records, err := findTicketsByPayment(s.app, paymentID)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list tickets by payment: %w", err)
	}
	return toTickets(records), nil
}

func (s *Store) ListTickets(_ context.Context) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(store.CollectionTickets, "", "-generated_at,ticket_index", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list tickets: %w", err)
	}
	items := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		items = append(items, toTicket(r))
	}
	return items, nil
}

// MarkTicketUsed issues a single conditional UPDATE; only the caller whose
// statement matched the unused row wins.
func (s *Store) MarkTicketUsed(ctx context.Context, ticketID string, usedAt time.Time) (*models.Ticket, error) {
	usedAtValue, err := types.ParseDateTime(usedAt)
	if err != nil {
		return nil, fmt.Errorf("pbstore: mark ticket used: %w", err)
	}

	res, err := s.app.DB().Update(
		store.CollectionTickets,
		dbx.Params{
			"is_used": true,
			"used_at": usedAtValue.String(),
			"updated": types.NowDateTime().String(),
		},
		dbx.HashExp{"ticket_id": ticketID, "is_used": false, "is_valid": true},
	).WithContext(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("pbstore: mark ticket used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("pbstore: mark ticket used: %w", err)
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if err := store.CheckUsable(ticket); err != nil {
			return ticket, err
		}
		return ticket, status.ErrTicketAlreadyUsed
	}
	return ticket, nil
}

func (s *Store) GetSiteContent(_ context.Context) (*models.SiteContent, error) {
	record, err := s.app.FindFirstRecordByData(store.CollectionSiteContent, "key", store.SiteContentID)
	if isNotFound(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: get site content: %w", err)
	}

	var content models.SiteContent
	if err := record.UnmarshalJSONField("data", &content); err != nil {
		return nil, fmt.Errorf("pbstore: decode site content: %w", err)
	}
	content.UpdatedAt = dateOf(record, "updated")
	return &content, nil
}

func (s *Store) SaveSiteContent(ctx context.Context, c *models.SiteContent) error {
	record, err := s.app.FindFirstRecordByData(store.CollectionSiteContent, "key", store.SiteContentID)
	switch {
	case isNotFound(err):
		collection, err := s.app.FindCollectionByNameOrId(store.CollectionSiteContent)
		if err != nil {
			return fmt.Errorf("pbstore: save site content: %w", err)
		}
		record = core.NewRecord(collection)
		record.Set("key", store.SiteContentID)
	case err != nil:
		return fmt.Errorf("pbstore: save site content: %w", err)
	}

	record.Set("data", c)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("pbstore: save site content: %w", err)
	}

	c.UpdatedAt = dateOf(record, "updated")
	return nil
}
