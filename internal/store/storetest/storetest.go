// Package storetest holds the behaviour every store driver must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
)

// Run exercises a driver. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("PaymentsUpsert", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("MintTicketsIdempotent", func(t *testing.T) { testMint(t, newStore(t)) })
	t.Run("MintTicketsConcurrent", func(t *testing.T) { testMintConcurrent(t, newStore(t)) })
	t.Run("MarkTicketUsed", func(t *testing.T) { testMarkUsed(t, newStore(t)) })
	t.Run("MarkTicketUsedConcurrent", func(t *testing.T) { testMarkUsedConcurrent(t, newStore(t)) })
	t.Run("SiteContent", func(t *testing.T) { testContent(t, newStore(t)) })
}

// Tickets builds n tickets for paymentID the way the ticket service does.
func Tickets(paymentID string, n int) []*models.Ticket {
	event := models.Event{ID: "hamlet", Title: "Hamlet", Date: "2025-09-20", Location: "Teatro Municipal"}
	customer := models.Customer{Name: "Ana", Email: "ana@example.com"}
	now := time.Now().UTC().Truncate(time.Millisecond)

	tickets := make([]*models.Ticket, 0, n)
	for i := 1; i <= n; i++ {
		tickets = append(tickets, &models.Ticket{
			TicketID:     uuid.NewString(),
			TicketNumber: models.TicketNumber(event, paymentID, i),
			Type:         models.TicketInteira,
			Event:        event,
			Customer:     customer,
			PaymentID:    paymentID,
			TicketIndex:  i,
			TotalTickets: n,
			GeneratedAt:  now,
			IsValid:      true,
		})
	}
	return tickets
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()

	tx := &models.Transaction{
		ID:               "tx-1",
		Status:           models.TransactionAwaitingPayment,
		Provider:         models.ProviderMercadoPago,
		Customer:         models.Customer{Name: "Ana", Email: "ana@example.com"},
		Event:            models.Event{ID: "hamlet", Title: "Hamlet"},
		TicketInteiraQty: 2,
		TicketMeiaQty:    1,
		TotalAmount:      decimal.RequireFromString("125.00"),
	}
	require.NoError(t, s.CreateTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAwaitingPayment, got.Status)
	assert.True(t, tx.TotalAmount.Equal(got.TotalAmount))
	assert.Equal(t, 2, got.TicketInteiraQty)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.UpdateTransaction(ctx, "tx-1", models.TransactionUpdate{PreferenceID: "pref-1"})
	require.NoError(t, err)
	err = s.UpdateTransaction(ctx, "tx-1", models.TransactionUpdate{Status: models.TransactionApproved, PaymentID: "pay-1"})
	require.NoError(t, err)

	got, err = s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionApproved, got.Status)
	assert.Equal(t, "pay-1", got.PaymentID)
	assert.Equal(t, "pref-1", got.PreferenceID)

	_, err = s.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)

	err = s.UpdateTransaction(ctx, "missing", models.TransactionUpdate{Status: models.TransactionRejected})
	assert.ErrorIs(t, err, status.ErrNotFound)

	all, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testPayments(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := &models.Payment{
		PaymentID: "pay-1",
		Provider:  models.ProviderMercadoPago,
		Status:    models.PaymentPending,
		Amount:    decimal.RequireFromString("50"),
		Quantity:  2,
	}
	require.NoError(t, s.UpsertPayment(ctx, p))

	first, err := s.GetPayment(ctx, "pay-1")
	require.NoError(t, err)

	approvedAt := time.Now().UTC().Truncate(time.Millisecond)
	p2 := &models.Payment{
		PaymentID:  "pay-1",
		Provider:   models.ProviderMercadoPago,
		Status:     models.PaymentApproved,
		Amount:     decimal.RequireFromString("50"),
		Quantity:   2,
		ApprovedAt: &approvedAt,
	}
	require.NoError(t, s.UpsertPayment(ctx, p2))

	got, err := s.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentApproved, got.Status)
	assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Millisecond)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, 2, got.Breakdown().Total())

	all, err := s.ListPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetPayment(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrPaymentNotFound)
}

func testMint(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := Tickets("pay-1", 3)
	minted, created, err := s.MintTickets(ctx, "pay-1", first)
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, minted, 3)

	again, created, err := s.MintTickets(ctx, "pay-1", Tickets("pay-1", 3))
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, again, 3)
	for i := range again {
		assert.Equal(t, first[i].TicketID, again[i].TicketID)
		assert.Equal(t, i+1, again[i].TicketIndex)
	}

	byPayment, err := s.ListTicketsByPayment(ctx, "pay-1")
	require.NoError(t, err)
	assert.Len(t, byPayment, 3)

	none, err := s.ListTicketsByPayment(ctx, "pay-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := s.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, _, err = s.MintTickets(ctx, "pay-3", nil)
	assert.ErrorIs(t, err, status.ErrNoTickets)
}

func testMintConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.MintTickets(ctx, "pay-race", Tickets("pay-race", 2))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, creates)

	tickets, err := s.ListTicketsByPayment(ctx, "pay-race")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func testMarkUsed(t *testing.T, s store.Store) {
	ctx := context.Background()

	tickets := Tickets("pay-1", 1)
	_, _, err := s.MintTickets(ctx, "pay-1", tickets)
	require.NoError(t, err)
	id := tickets[0].TicketID

	usedAt := time.Now().UTC().Truncate(time.Millisecond)
	got, err := s.MarkTicketUsed(ctx, id, usedAt)
	require.NoError(t, err)
	assert.True(t, got.IsUsed)
	require.NotNil(t, got.UsedAt)

	got, err = s.MarkTicketUsed(ctx, id, usedAt.Add(time.Hour))
	assert.ErrorIs(t, err, status.ErrTicketAlreadyUsed)
	require.NotNil(t, got)
	require.NotNil(t, got.UsedAt)
	assert.WithinDuration(t, usedAt, *got.UsedAt, time.Millisecond)

	stored, err := s.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.WithinDuration(t, usedAt, *stored.UsedAt, time.Millisecond)

	_, err = s.MarkTicketUsed(ctx, "missing", usedAt)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)

	_, err = s.GetTicket(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func testMarkUsedConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()

	tickets := Tickets("pay-1", 1)
	_, _, err := s.MintTickets(ctx, "pay-1", tickets)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		validated int
		used      int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MarkTicketUsed(ctx, tickets[0].TicketID, time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				validated++
			case assert.ErrorIs(t, err, status.ErrTicketAlreadyUsed):
				used++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, validated)
	assert.Equal(t, 9, used)
}

func testContent(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSiteContent(ctx)
	assert.ErrorIs(t, err, status.ErrNotFound)

	content := &models.SiteContent{
		NextEvents: []models.ShowItem{{ID: "hamlet", Title: "Hamlet", Price: "50.00"}},
		Gallery:    []models.GalleryImage{{Image: "/img/1.jpg"}},
	}
	require.NoError(t, s.SaveSiteContent(ctx, content))

	replacement := &models.SiteContent{
		Catalog: []models.ShowItem{{ID: "macbeth", Title: "Macbeth"}},
	}
	require.NoError(t, s.SaveSiteContent(ctx, replacement))

	got, err := s.GetSiteContent(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.NextEvents)
	require.Len(t, got.Catalog, 1)
	assert.Equal(t, "Macbeth", got.Catalog[0].Title)
	assert.False(t, got.UpdatedAt.IsZero())
}
