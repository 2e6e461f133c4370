// Package boltstore is the embedded store driver. All data lives in a single
// BoltDB file; every write runs inside one db.Update transaction, which is
// what makes ticket minting and ticket usage atomic.
package boltstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	bolt "github.com/boltdb/bolt"

	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
)

const bucketTicketsByPayment = "tickets_by_payment"

var buckets = []string{
	store.CollectionTransactions,
	store.CollectionPayments,
	store.CollectionTickets,
	store.CollectionSiteContent,
	bucketTicketsByPayment,
}

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at path and ensures the buckets exist.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func get[T any](tx *bolt.Tx, bucket, key string) (*T, error) {
	v := tx.Bucket([]byte(bucket)).Get([]byte(key))
	if v == nil {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return &out, nil
}

func put(tx *bolt.Tx, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

func list[T any](db *bolt.DB, bucket string) ([]*T, error) {
	items := []*T{}
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			items = append(items, &item)
			return nil
		})
	})
	return items, err
}

func (s *Store) CreateTransaction(_ context.Context, t *models.Transaction) error {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, store.CollectionTransactions, t.ID, t)
	})
	if err != nil {
		return fmt.Errorf("boltstore: create transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	var t *models.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = get[models.Transaction](tx, store.CollectionTransactions, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get transaction: %w", err)
	}
	if t == nil {
		return nil, status.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, upd models.TransactionUpdate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := get[models.Transaction](tx, store.CollectionTransactions, id)
		if err != nil {
			return err
		}
		if t == nil {
			return status.ErrNotFound
		}
		store.ApplyUpdate(t, upd, s.now())
		return put(tx, store.CollectionTransactions, id, t)
	})
}

func (s *Store) ListTransactions(_ context.Context) ([]*models.Transaction, error) {
	items, err := list[models.Transaction](s.db, store.CollectionTransactions)
	if err != nil {
		return nil, fmt.Errorf("boltstore: list transactions: %w", err)
	}
	slices.SortFunc(items, func(a, b *models.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return items, nil
}

func (s *Store) UpsertPayment(_ context.Context, p *models.Payment) error {
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		existing, err := get[models.Payment](tx, store.CollectionPayments, p.PaymentID)
		if err != nil {
			return err
		}
		if existing != nil {
			p.CreatedAt = existing.CreatedAt
		} else {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		return put(tx, store.CollectionPayments, p.PaymentID, p)
	})
	if err != nil {
		return fmt.Errorf("boltstore: upsert payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	var p *models.Payment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		p, err = get[models.Payment](tx, store.CollectionPayments, paymentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get payment: %w", err)
	}
	if p == nil {
		return nil, status.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Store) ListPayments(_ context.Context) ([]*models.Payment, error) {
	items, err := list[models.Payment](s.db, store.CollectionPayments)
	if err != nil {
		return nil, fmt.Errorf("boltstore: list payments: %w", err)
	}
	slices.SortFunc(items, func(a, b *models.Payment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return items, nil
}

// MintTickets writes the payment's ticket index and all tickets in the same
// transaction that checks for an existing index.
func (s *Store) MintTickets(_ context.Context, paymentID string, tickets []*models.Ticket) ([]*models.Ticket, bool, error) {
	if len(tickets) == 0 {
		return nil, false, status.ErrNoTickets
	}

	var result []*models.Ticket
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		ids, err := get[[]string](tx, bucketTicketsByPayment, paymentID)
		if err != nil {
			return err
		}
		if ids != nil {
			result, err = loadTickets(tx, *ids)
			return err
		}

		index := make([]string, 0, len(tickets))
		for _, t := range tickets {
			if err := put(tx, store.CollectionTickets, t.TicketID, t); err != nil {
				return err
			}
			index = append(index, t.TicketID)
		}
		if err := put(tx, bucketTicketsByPayment, paymentID, index); err != nil {
			return err
		}

		result = tickets
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltstore: mint tickets: %w", err)
	}

	store.SortTickets(result)
	return result, created, nil
}

func loadTickets(tx *bolt.Tx, ids []string) ([]*models.Ticket, error) {
	tickets := make([]*models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := get[models.Ticket](tx, store.CollectionTickets, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

func (s *Store) GetTicket(_ context.Context, ticketID string) (*models.Ticket, error) {
	var t *models.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = get[models.Ticket](tx, store.CollectionTickets, ticketID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get ticket: %w", err)
	}
	if t == nil {
		return nil, status.ErrTicketNotFound
	}
	return t, nil
}

func (s *Store) ListTicketsByPayment(_ context.Context, paymentID string) ([]*models.Ticket, error) {
	tickets := []*models.Ticket{}
	err := s.db.View(func(tx *bolt.Tx) error {
		ids, err := get[[]string](tx, bucketTicketsByPayment, paymentID)
		if err != nil || ids == nil {
			return err
		}
		tickets, err = loadTickets(tx, *ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list tickets by payment: %w", err)
	}
	store.SortTickets(tickets)
	return tickets, nil
}

func (s *Store) ListTickets(_ context.Context) ([]*models.Ticket, error) {
	items, err := list[models.Ticket](s.db, store.CollectionTickets)
	if err != nil {
		return nil, fmt.Errorf("boltstore: list tickets: %w", err)
	}
	slices.SortFunc(items, func(a, b *models.Ticket) int {
		if c := b.GeneratedAt.Compare(a.GeneratedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TicketIndex, b.TicketIndex)
	})
	return items, nil
}

// MarkTicketUsed is a compare-and-swap on is_used inside one write transaction.
func (s *Store) MarkTicketUsed(_ context.Context, ticketID string, usedAt time.Time) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := get[models.Ticket](tx, store.CollectionTickets, ticketID)
		if err != nil {
			return err
		}
		if t == nil {
			return status.ErrTicketNotFound
		}
		result = t
		if err := store.CheckUsable(t); err != nil {
			return err
		}

		t.IsUsed = true
		t.UsedAt = &usedAt
		return put(tx, store.CollectionTickets, ticketID, t)
	})
	return result, err
}

func (s *Store) GetSiteContent(_ context.Context) (*models.SiteContent, error) {
	var c *models.SiteContent
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		c, err = get[models.SiteContent](tx, store.CollectionSiteContent, store.SiteContentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: get site content: %w", err)
	}
	if c == nil {
		return nil, status.ErrNotFound
	}
	return c, nil
}

func (s *Store) SaveSiteContent(_ context.Context, c *models.SiteContent) error {
	c.UpdatedAt = s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, store.CollectionSiteContent, store.SiteContentID, c)
	})
	if err != nil {
		return fmt.Errorf("boltstore: save site content: %w", err)
	}
	return nil
}
