package pbstore

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"

	"theater-site/internal/store"
)

// EnsureCollections creates the base collections used by the store when they
// do not exist yet. It is safe to call on every start.
func EnsureCollections(app core.App) error {
	for _, build := range []func() *core.Collection{
		transactionsCollection,
		paymentsCollection,
		ticketsCollection,
		siteContentCollection,
	} {
		collection := build()
		if _, err := app.FindCollectionByNameOrId(collection.Name); err == nil {
			continue
		}
		if err := app.Save(collection); err != nil {
			return fmt.Errorf("pbstore: create collection %s: %w", collection.Name, err)
		}
	}
	return nil
}

// DropCollections removes the store collections.
func DropCollections(app core.App) error {
	for _, name := range []string{
		store.CollectionTickets,
		store.CollectionPayments,
		store.CollectionTransactions,
		store.CollectionSiteContent,
	} {
		collection, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(collection); err != nil {
			return fmt.Errorf("pbstore: delete collection %s: %w", name, err)
		}
	}
	return nil
}

func timestamps(c *core.Collection) {
	c.Fields.Add(
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
}

func transactionsCollection() *core.Collection {
	c := core.NewBaseCollection(store.CollectionTransactions)
	c.Fields.Add(
		&core.TextField{Name: "transaction_id", Required: true},
		&core.TextField{Name: "status", Required: true},
		&core.TextField{Name: "provider", Required: true},
		&core.JSONField{Name: "customer"},
		&core.JSONField{Name: "event"},
		&core.NumberField{Name: "ticket_inteira_qty", OnlyInt: true},
		&core.NumberField{Name: "ticket_meia_qty", OnlyInt: true},
		&core.TextField{Name: "total_amount"},
		&core.TextField{Name: "payment_id"},
		&core.TextField{Name: "preference_id"},
		&core.TextField{Name: "external_reference"},
		&core.TextField{Name: "checkout_url", Max: 2048},
	)
	timestamps(c)
	c.AddIndex("idx_transactions_transaction_id", true, "transaction_id", "")
	c.AddIndex("idx_transactions_payment_id", false, "payment_id", "")
	return c
}

func paymentsCollection() *core.Collection {
	c := core.NewBaseCollection(store.CollectionPayments)
	c.Fields.Add(
		&core.TextField{Name: "payment_id", Required: true},
		&core.TextField{Name: "provider"},
		&core.TextField{Name: "status"},
		&core.TextField{Name: "status_detail"},
		&core.TextField{Name: "payment_type"},
		&core.TextField{Name: "transaction_id"},
		&core.JSONField{Name: "customer"},
		&core.JSONField{Name: "event"},
		&core.NumberField{Name: "ticket_inteira_qty", OnlyInt: true},
		&core.NumberField{Name: "ticket_meia_qty", OnlyInt: true},
		&core.NumberField{Name: "quantity", OnlyInt: true},
		&core.TextField{Name: "amount"},
		&core.DateField{Name: "approved_at"},
	)
	timestamps(c)
	c.AddIndex("idx_payments_payment_id", true, "payment_id", "")
	return c
}

func ticketsCollection() *core.Collection {
	c := core.NewBaseCollection(store.CollectionTickets)
	c.Fields.Add(
		&core.TextField{Name: "ticket_id", Required: true},
		&core.TextField{Name: "ticket_number", Required: true},
		&core.TextField{Name: "ticket_type"},
		&core.JSONField{Name: "event"},
		&core.JSONField{Name: "customer"},
		&core.TextField{Name: "payment_id", Required: true},
		&core.NumberField{Name: "ticket_index", OnlyInt: true},
		&core.NumberField{Name: "total_tickets", OnlyInt: true},
		&core.DateField{Name: "generated_at"},
		&core.BoolField{Name: "is_valid"},
		&core.BoolField{Name: "is_used"},
		&core.DateField{Name: "used_at"},
	)
	timestamps(c)
	c.AddIndex("idx_tickets_ticket_id", true, "ticket_id", "")
	c.AddIndex("idx_tickets_payment_index", true, "payment_id, ticket_index", "")
	return c
}

func siteContentCollection() *core.Collection {
	c := core.NewBaseCollection(store.CollectionSiteContent)
	c.Fields.Add(
		&core.TextField{Name: "key", Required: true},
		&core.JSONField{Name: "data", MaxSize: 5 << 20},
	)
	timestamps(c)
	c.AddIndex("idx_site_content_key", true, "key", "")
	return c
}
