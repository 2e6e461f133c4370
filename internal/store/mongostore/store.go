// Package mongostore is the document-database store driver. Atomicity comes
// from single-document operations: a claim document per payment for minting
// and a conditional FindOneAndUpdate for ticket usage.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"theater-site/internal/status"
	"theater-site/internal/store"
	"theater-site/models"
)

const (
	collectionMints  = "ticket_mints"
	duplicateKeyCode = 11000
)

type Store struct {
	client       *mongo.Client
	transactions *mongo.Collection
	payments     *mongo.Collection
	tickets      *mongo.Collection
	mints        *mongo.Collection
	content      *mongo.Collection
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

// New connects to uri and prepares the indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:       client,
		transactions: db.Collection(store.CollectionTransactions),
		payments:     db.Collection(store.CollectionPayments),
		tickets:      db.Collection(store.CollectionTickets),
		mints:        db.Collection(collectionMints),
		content:      db.Collection(store.CollectionSiteContent),
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}

	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	slog.Info("connected to mongo", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_id", Value: 1}, {Key: "ticket_index", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("mongostore: ticket indexes: %w", err)
	}

	_, err = s.transactions.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "payment_id", Value: 1}}})
	if err != nil {
		return fmt.Errorf("mongostore: transaction indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := s.transactions.InsertOne(ctx, fromTransaction(t)); err != nil {
		return fmt.Errorf("mongostore: create transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var doc transactionDoc
	err := s.transactions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get transaction: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, upd models.TransactionUpdate) error {
	set := bson.M{"updated_at": s.now()}
	if upd.Status != "" {
		set["status"] = string(upd.Status)
	}
	if upd.PaymentID != "" {
		set["payment_id"] = upd.PaymentID
	}
	if upd.PreferenceID != "" {
		set["preference_id"] = upd.PreferenceID
	}
	if upd.CheckoutURL != "" {
		set["checkout_url"] = upd.CheckoutURL
	}

	res, err := s.transactions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongostore: update transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return status.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]*models.Transaction, error) {
	cur, err := s.transactions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list transactions: %w", err)
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list transactions: %w", err)
	}
	items := make([]*models.Transaction, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

func (s *Store) UpsertPayment(ctx context.Context, p *models.Payment) error {
	now := s.now()
	p.UpdatedAt = now

	doc := fromPayment(p)
	set, err := toBSON(doc)
	if err != nil {
		return fmt.Errorf("mongostore: upsert payment: %w", err)
	}
	delete(set, "_id")
	delete(set, "created_at")

	var stored paymentDoc
	err = s.payments.FindOneAndUpdate(ctx,
		bson.M{"_id": p.PaymentID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": now}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&stored)
	if err != nil {
		return fmt.Errorf("mongostore: upsert payment: %w", err)
	}

	p.CreatedAt = stored.CreatedAt
	return nil
}

func toBSON(v any) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var doc paymentDoc
	err := s.payments.FindOne(ctx, bson.M{"_id": paymentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, status.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get payment: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	cur, err := s.payments.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list payments: %w", err)
	}
	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list payments: %w", err)
	}
	items := make([]*models.Payment, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

// MintTickets claims the payment id with an upsert that only sets the tickets
// on insert, then materializes the claimed tickets. Materializing is an
// unordered insert that skips duplicates, so any caller can finish a claim
// left half-written by a crashed writer.
func (s *Store) MintTickets(ctx context.Context, paymentID string, tickets []*models.Ticket) ([]*models.Ticket, bool, error) {
	if len(tickets) == 0 {
		return nil, false, status.ErrNoTickets
	}

	docs := make([]ticketDoc, 0, len(tickets))
	for _, t := range tickets {
		doc := fromTicket(t)
		doc.PaymentID = paymentID
		docs = append(docs, doc)
	}

	claim, err := s.claim(ctx, paymentID, docs)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent upsert on the same _id; the retry sees the winner
		claim, err = s.claim(ctx, paymentID, docs)
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongostore: mint tickets: %w", err)
	}

	created := len(claim.Tickets) > 0 && claim.Tickets[0].TicketID == docs[0].TicketID

	if err := s.materialize(ctx, claim.Tickets); err != nil {
		return nil, false, fmt.Errorf("mongostore: mint tickets: %w", err)
	}

	result, err := s.ListTicketsByPayment(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *Store) claim(ctx context.Context, paymentID string, docs []ticketDoc) (*mintDoc, error) {
	var claim mintDoc
	err := s.mints.FindOneAndUpdate(ctx,
		bson.M{"_id": paymentID},
		bson.M{"$setOnInsert": bson.M{"tickets": docs, "created_at": s.now()}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&claim)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (s *Store) materialize(ctx context.Context, docs []ticketDoc) error {
	items := make([]any, 0, len(docs))
	for _, d := range docs {
		items = append(items, d)
	}

	_, err := s.tickets.InsertMany(ctx, items, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		for _, we := range bulkErr.WriteErrors {
			if we.Code != duplicateKeyCode {
				return err
			}
		}
		return nil
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var doc ticketDoc
	err := s.tickets.FindOne(ctx, bson.M{"_id": ticketID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get ticket: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) findTickets(ctx context.Context, filter bson.M, sort bson.D) ([]*models.Ticket, error) {
	cur, err := s.tickets.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	var docs []ticketDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*models.Ticket, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

func (s *Store) ListTicketsByPayment(ctx context.Context, paymentID string) ([]*models.Ticket, error) {
	items, err := s.findTickets(ctx, bson.M{"payment_id": paymentID}, bson.D{{Key: "ticket_index", Value: 1}})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list tickets by payment: %w", err)
	}
	return items, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	items, err := s.findTickets(ctx, bson.M{}, bson.D{{Key: "generated_at", Value: -1}, {Key: "ticket_index", Value: 1}})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list tickets: %w", err)
	}
	return items, nil
}

func (s *Store) MarkTicketUsed(ctx context.Context, ticketID string, usedAt time.Time) (*models.Ticket, error) {
	var doc ticketDoc
	err := s.tickets.FindOneAndUpdate(ctx,
		bson.M{"_id": ticketID, "is_used": false, "is_valid": true},
		bson.M{"$set": bson.M{"is_used": true, "used_at": usedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toModel(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mongostore: mark ticket used: %w", err)
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := store.CheckUsable(ticket); err != nil {
		return ticket, err
	}
	return ticket, status.ErrTicketAlreadyUsed
}

func (s *Store) GetSiteContent(ctx context.Context) (*models.SiteContent, error) {
	var doc contentDoc
	err := s.content.FindOne(ctx, bson.M{"_id": store.SiteContentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get site content: %w", err)
	}
	doc.Data.UpdatedAt = doc.UpdatedAt
	return &doc.Data, nil
}

func (s *Store) SaveSiteContent(ctx context.Context, c *models.SiteContent) error {
	c.UpdatedAt = s.now()
	doc := contentDoc{ID: store.SiteContentID, Data: *c, UpdatedAt: c.UpdatedAt}

	_, err := s.content.ReplaceOne(ctx, bson.M{"_id": store.SiteContentID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: save site content: %w", err)
	}
	return nil
}
