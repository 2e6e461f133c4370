package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketBreakdown_Total(t *testing.T) {
	tests := []struct {
		name      string
		breakdown TicketBreakdown
		expected  int
	}{
		{"Per-type counts", TicketBreakdown{Inteira: 2, Meia: 1}, 3},
		{"Only meia", TicketBreakdown{Meia: 4}, 4},
		{"Per-type counts win over quantity", TicketBreakdown{Inteira: 1, Quantity: 5}, 1},
		{"Falls back to quantity", TicketBreakdown{Quantity: 5}, 5},
		{"Empty", TicketBreakdown{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.breakdown.Total())
		})
	}
}

func TestTicketBreakdown_TypeFor(t *testing.T) {
	b := TicketBreakdown{Inteira: 2, Meia: 1}

	var types []TicketType
	for i := 1; i <= b.Total(); i++ {
		types = append(types, b.TypeFor(i))
	}

	assert.Equal(t, []TicketType{TicketInteira, TicketInteira, TicketMeia}, types)
}

func TestTicketBreakdown_TypeForQuantityOnly(t *testing.T) {
	b := TicketBreakdown{Quantity: 3}

	for i := 1; i <= 3; i++ {
		assert.Equal(t, TicketInteira, b.TypeFor(i))
	}
}

func TestTicketBreakdown_TypeForMeiaOnly(t *testing.T) {
	b := TicketBreakdown{Meia: 2}

	assert.Equal(t, TicketMeia, b.TypeFor(1))
	assert.Equal(t, TicketMeia, b.TypeFor(2))
}

func TestEvent_Code(t *testing.T) {
	tests := []struct {
		id       string
		expected string
	}{
		{"auto-da-compadecida-2025", "AUTODACO"},
		{"abc", "ABC"},
		{"", "EVT"},
		{"---", "EVT"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.expected, Event{ID: tt.id}.Code())
		})
	}
}

func TestTicketNumber(t *testing.T) {
	event := Event{ID: "hamlet"}

	assert.Equal(t, "HAMLET-123456-001", TicketNumber(event, "123456", 1))
	assert.Equal(t, "HAMLET-123456-012", TicketNumber(event, "123456", 12))
}

func TestTicket_UsedAtOmittedWhenUnused(t *testing.T) {
	ticket := Ticket{TicketID: "t-1", IsValid: true}

	data, err := json.Marshal(ticket)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "usedAt")

	usedAt := time.Now()
	ticket.IsUsed = true
	ticket.UsedAt = &usedAt

	data, err = json.Marshal(ticket)
	require.NoError(t, err)

	var decoded Ticket
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.UsedAt)
	assert.WithinDuration(t, usedAt, *decoded.UsedAt, time.Second)
}

func TestTransaction_AmountRoundTrip(t *testing.T) {
	tx := Transaction{
		ID:          "tx-1",
		Status:      TransactionAwaitingPayment,
		TotalAmount: decimal.RequireFromString("75.50"),
	}

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, tx.TotalAmount.Equal(decoded.TotalAmount))
	assert.Equal(t, TransactionAwaitingPayment, decoded.Status)
}

func TestSiteContent_Normalize(t *testing.T) {
	var content SiteContent
	content.Normalize()

	data, err := json.Marshal(content)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"gallery":[]`)
	assert.Contains(t, string(data), `"banner":[]`)
}

func TestSiteContent_FindEvent(t *testing.T) {
	content := SiteContent{
		NextEvents: []ShowItem{{ID: "hamlet", Title: "Hamlet"}},
		Catalog:    []ShowItem{{ID: "macbeth", Title: "Macbeth"}},
	}

	item, ok := content.FindEvent("macbeth")
	require.True(t, ok)
	assert.Equal(t, "Macbeth", item.Title)

	_, ok = content.FindEvent("missing")
	assert.False(t, ok)
}
