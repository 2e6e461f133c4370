package services

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"theater-site/internal/events"
	"theater-site/internal/mailer"
	"theater-site/internal/services/provider"
	"theater-site/internal/store"
	"theater-site/internal/store/boltstore"
	"theater-site/models"
	"theater-site/security"
)

const (
	testBaseURL            = "https://teatro.example"
	testValidationPassword = "porta-2025"
)

type mockProvider struct {
	mock.Mock
	name models.Provider
}

func newMockProvider(name models.Provider) *mockProvider {
	return &mockProvider{name: name}
}

func (m *mockProvider) Name() models.Provider { return m.name }

func (m *mockProvider) CreateCheckout(ctx context.Context, req *provider.CheckoutRequest) (*provider.CheckoutResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*provider.CheckoutResult)
	return res, args.Error(1)
}

func (m *mockProvider) GetPayment(ctx context.Context, paymentID string) (*provider.Payment, error) {
	args := m.Called(ctx, paymentID)
	res, _ := args.Get(0).(*provider.Payment)
	return res, args.Error(1)
}

func (m *mockProvider) ParseNotification(r *http.Request, body []byte) (*provider.Notification, error) {
	args := m.Called(r, body)
	res, _ := args.Get(0).(*provider.Notification)
	return res, args.Error(1)
}

type sentMail struct {
	mu       sync.Mutex
	messages []*mailer.Message
	err      error
}

func (s *sentMail) Send(_ context.Context, m *mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *sentMail) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type published struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *published) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *published) Close() error { return nil }

func (p *published) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fixture wires the services over a bolt store in a temp dir.
type fixture struct {
	store     store.Store
	mp        *mockProvider
	stripe    *mockProvider
	registry  *provider.Registry
	mail      *sentMail
	published *published
	tickets   *TicketService
	webhooks  *WebhookService
	checkout  *CheckoutService
	content   *ContentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := boltstore.New(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:     s,
		mp:        newMockProvider(models.ProviderMercadoPago),
		stripe:    newMockProvider(models.ProviderStripe),
		mail:      &sentMail{},
		published: &published{},
	}
	f.registry = provider.NewRegistry(f.mp, f.stripe)
	f.content = NewContentService(s)
	f.tickets = NewTicketService(s, f.mail, f.published, security.NewPasswordGate(testValidationPassword), nil, testBaseURL)
	f.webhooks = NewWebhookService(s, f.registry, f.tickets, nil, f.published, nil)
	f.checkout = NewCheckoutService(s, f.registry, f.content, nil, testBaseURL, "BRL")
	return f
}

func approvedPayment(id, transactionID string, inteira, meia int) *provider.Payment {
	return &provider.Payment{
		ID:                id,
		Provider:          models.ProviderMercadoPago,
		Status:            models.PaymentApproved,
		RawStatus:         "approved",
		Amount:            decimal.NewFromInt(int64(inteira*50 + meia*25)),
		ExternalReference: transactionID,
		Customer:          models.Customer{Name: "Maria Silva", Email: "maria@example.com"},
		Event:             models.Event{ID: "hamlet", Title: "Hamlet", Date: "20/11/2025 20:00", Location: "Teatro Municipal"},
		Breakdown:         models.TicketBreakdown{Inteira: inteira, Meia: meia, Quantity: inteira + meia},
	}
}
