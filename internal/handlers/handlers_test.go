package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theater-site/internal/events"
	"theater-site/internal/mailer"
	"theater-site/internal/services"
	"theater-site/internal/services/provider"
	"theater-site/internal/services/provider/mercadopago"
	"theater-site/internal/store"
	"theater-site/internal/store/boltstore"
	"theater-site/models"
	"theater-site/security"
)

const (
	webhookSecret = "whsec-test"
	doorPassword  = "porta"
)

type outbox struct {
	mu   sync.Mutex
	sent []*mailer.Message
}

func (o *outbox) Send(_ context.Context, m *mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

// mpAPI fakes the MercadoPago payments endpoint.
type mpAPI struct {
	mu       sync.Mutex
	payments map[string]string
	created  int
}

func (a *mpAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/checkout/preferences":
		a.created++
		_, _ = io.WriteString(w, `{"id": "pref-1", "init_point": "https://mp.example/checkout/pref-1"}`)
	case strings.HasPrefix(r.URL.Path, "/v1/payments/"):
		body, ok := a.payments[strings.TrimPrefix(r.URL.Path, "/v1/payments/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "Payment not found", "status": 404}`)
			return
		}
		_, _ = io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type env struct {
	store   store.Store
	mp      *mpAPI
	mail    *outbox
	payment *PaymentHandler
	tickets *TicketHandler
	admin   *AdminHandler
	pages   *PageHandler
	ticketS *services.TicketService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	s, err := boltstore.New(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	api := &mpAPI{payments: map[string]string{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	mp := mercadopago.New(mercadopago.Config{
		BaseURL:       srv.URL,
		AccessToken:   "TEST-token",
		WebhookSecret: webhookSecret,
	})
	registry := provider.NewRegistry(mp)

	mail := &outbox{}
	content := services.NewContentService(s)
	ticketS := services.NewTicketService(s, mail, events.Noop(), security.NewPasswordGate(doorPassword), nil, "https://teatro.example")
	webhooks := services.NewWebhookService(s, registry, ticketS, nil, events.Noop(), nil)
	checkout := services.NewCheckoutService(s, registry, content, nil, "https://teatro.example", "BRL")

	return &env{
		store:   s,
		mp:      api,
		mail:    mail,
		payment: NewPaymentHandler(checkout, webhooks, registry, nil),
		tickets: NewTicketHandler(ticketS),
		admin:   NewAdminHandler(s, content, webhooks, ticketS, services.NewReportService(s)),
		pages:   NewPageHandler(content, ""),
		ticketS: ticketS,
	}
}

func newEvent(method, target string, body any) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an ApiError, got %v", err)
	return apiErr.Status
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func signedWebhook(t *testing.T, paymentID, secret string) *core.RequestEvent {
	t.Helper()
	e, _ := newEvent(http.MethodPost, "/api/webhooks/mercadopago?type=payment&data.id="+paymentID,
		fmt.Sprintf(`{"type":"payment","data":{"id":"%s"}}`, paymentID))
	e.Request.SetPathValue("provider", "mercadopago")
	e.Request.Header.Set("x-request-id", "req-1")
	e.Request.Header.Set("x-signature", "ts=1700000000,v1="+mercadopago.Sign(secret, paymentID, "req-1", "1700000000"))
	return e
}

const approvedPaymentJSON = `{
	"id": 5001,
	"status": "approved",
	"transaction_amount": 125,
	"external_reference": "%s",
	"metadata": {
		"customer_name": "Maria Silva",
		"customer_email": "maria@example.com",
		"event_id": "hamlet",
		"event_title": "Hamlet",
		"ticket_inteira_qty": 2,
		"ticket_meia_qty": 1
	}
}`

func TestCheckout(t *testing.T) {
	env := newEnv(t)

	e, rec := newEvent(http.MethodPost, "/api/checkout", map[string]any{
		"provider": "mercadopago",
		"customer": map[string]any{"name": "Maria", "email": "maria@example.com"},
		"event":    map[string]any{"id": "hamlet", "title": "Hamlet", "price": 50},
		"ticketInteiraQty": 1,
		"ticketMeiaQty":    1,
	})
	require.NoError(t, env.payment.Checkout(e))

	assert.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.NotEmpty(t, out["transactionId"])
	assert.Equal(t, "pref-1", out["preferenceId"])
	assert.Equal(t, "https://mp.example/checkout/pref-1", out["checkoutUrl"])
	assert.Equal(t, 1, env.mp.created)
}

func TestCheckout_Invalid(t *testing.T) {
	env := newEnv(t)

	e, _ := newEvent(http.MethodPost, "/api/checkout", map[string]any{
		"customer": map[string]any{"name": "Maria"},
		"event":    map[string]any{"id": "hamlet", "title": "Hamlet", "price": 50},
	})
	err := env.payment.Checkout(e)

	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
	assert.Zero(t, env.mp.created)
}

func TestWebhook_ApprovedMintsAndEmails(t *testing.T) {
	env := newEnv(t)
	env.mp.payments["5001"] = fmt.Sprintf(approvedPaymentJSON, "tx-1")

	for i := 0; i < 2; i++ {
		e := signedWebhook(t, "5001", webhookSecret)
		require.NoError(t, env.payment.Webhook(e))
		rec := e.Response.(*httptest.ResponseRecorder)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode(t, rec)["received"])
	}

	list, err := env.store.ListTicketsByPayment(context.Background(), "5001")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Len(t, env.mail.sent, 1, "a redelivery must not email again")
}

func TestWebhook_BadSignature(t *testing.T) {
	env := newEnv(t)
	env.mp.payments["5001"] = fmt.Sprintf(approvedPaymentJSON, "tx-1")

	err := env.payment.Webhook(signedWebhook(t, "5001", "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, err))

	list, err := env.store.ListTicketsByPayment(context.Background(), "5001")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWebhook_Malformed(t *testing.T) {
	env := newEnv(t)

	e, _ := newEvent(http.MethodPost, "/api/webhooks/mercadopago", `{"type":"payment"}`)
	e.Request.SetPathValue("provider", "mercadopago")

	err := env.payment.Webhook(e)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))
}

func TestWebhook_UnknownProvider(t *testing.T) {
	env := newEnv(t)

	e, _ := newEvent(http.MethodPost, "/api/webhooks/paypal", `{}`)
	e.Request.SetPathValue("provider", "paypal")

	err := env.payment.Webhook(e)
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
}

func TestWebhook_ProcessingFailureStillAcknowledged(t *testing.T) {
	env := newEnv(t)

	// The provider does not know the payment, GetPayment fails.
	e := signedWebhook(t, "404404", webhookSecret)
	require.NoError(t, env.payment.Webhook(e))
	assert.Equal(t, http.StatusOK, e.Response.(*httptest.ResponseRecorder).Code)
}

func mintOne(t *testing.T, env *env) *models.Ticket {
	t.Helper()
	list, _, err := env.ticketS.Mint(context.Background(), &models.Payment{
		PaymentID: "9",
		Customer:  models.Customer{Name: "Maria", Email: "maria@example.com"},
		Event:     models.Event{ID: "hamlet", Title: "Hamlet"},
		Quantity:  1,
	})
	require.NoError(t, err)
	return list[0]
}

func TestValidateQR(t *testing.T) {
	env := newEnv(t)
	ticket := mintOne(t, env)
	body := map[string]any{"qrData": fmt.Sprintf(`{"ticketId":%q}`, ticket.TicketID)}

	e, rec := newEvent(http.MethodPost, "/api/tickets/validate-qr", body)
	require.NoError(t, env.tickets.ValidateQR(e))
	out := decode(t, rec)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, services.ValidationValidated, out["status"])
	assert.NotNil(t, out["ticketInfo"])

	e, rec = newEvent(http.MethodPost, "/api/tickets/validate-qr", body)
	require.NoError(t, env.tickets.ValidateQR(e))
	out = decode(t, rec)
	assert.Equal(t, false, out["valid"])
	assert.Equal(t, services.ValidationUsed, out["status"])

	e, _ = newEvent(http.MethodPost, "/api/tickets/validate-qr", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, env.tickets.ValidateQR(e)))
}

func TestValidateWithPassword(t *testing.T) {
	env := newEnv(t)
	ticket := mintOne(t, env)

	e, _ := newEvent(http.MethodPost, "/api/tickets/validate", map[string]any{"ticketId": ticket.TicketID, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, env.tickets.Validate(e)))

	e, rec := newEvent(http.MethodPost, "/api/tickets/validate", map[string]any{"ticketId": ticket.TicketID, "password": doorPassword})
	require.NoError(t, env.tickets.Validate(e))
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, services.ValidationValidated, out["status"])
}

func TestAdmin_ContentRoundTrip(t *testing.T) {
	env := newEnv(t)

	e, rec := newEvent(http.MethodPut, "/api/admin/content", map[string]any{
		"catalog": []map[string]any{{"id": "hamlet", "title": "Hamlet", "price": "50"}},
	})
	require.NoError(t, env.admin.PutContent(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	e, rec = newEvent(http.MethodGet, "/api/admin/content", nil)
	require.NoError(t, env.admin.GetContent(e))
	out := decode(t, rec)
	require.Len(t, out["catalog"], 1)
	assert.Equal(t, []any{}, out["gallery"])
}

func TestAdmin_ReportCSV(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.store.UpsertPayment(context.Background(), &models.Payment{
		PaymentID: "1",
		Status:    models.PaymentApproved,
		Customer:  models.Customer{Name: "Maria"},
		Event:     models.Event{ID: "hamlet", Title: "Hamlet", Date: "20/11", Location: "Municipal"},
		Quantity:  2,
		Amount:    decimal.NewFromInt(100),
	}))

	e, rec := newEvent(http.MethodGet, "/api/admin/report.csv", nil)
	require.NoError(t, env.admin.ReportCSV(e))

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "Evento,Data,Local,Nome,Quantidade\nHamlet,20/11,Municipal,Maria,2\n", rec.Body.String())
}

func TestAdmin_ReportPDF(t *testing.T) {
	env := newEnv(t)

	e, rec := newEvent(http.MethodGet, "/api/admin/report.pdf", nil)
	require.NoError(t, env.admin.ReportPDF(e))

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestAdmin_ProcessPaymentAndTickets(t *testing.T) {
	env := newEnv(t)
	env.mp.payments["5001"] = fmt.Sprintf(approvedPaymentJSON, "tx-1")

	e, rec := newEvent(http.MethodPost, "/api/admin/process-payment", map[string]any{"paymentId": "5001", "provider": "mercadopago"})
	require.NoError(t, env.admin.ProcessPayment(e))
	out := decode(t, rec)
	assert.Equal(t, float64(3), out["tickets"])

	e, rec = newEvent(http.MethodGet, "/api/admin/tickets?paymentId=5001", nil)
	require.NoError(t, env.admin.ListTickets(e))
	assert.Len(t, decode(t, rec)["items"], 3)

	e, rec = newEvent(http.MethodPost, "/api/admin/generate-tickets", map[string]any{"paymentId": "5001", "resend": true})
	require.NoError(t, env.admin.GenerateTickets(e))
	assert.Equal(t, true, decode(t, rec)["emailed"])
	assert.Len(t, env.mail.sent, 2)

	e, _ = newEvent(http.MethodPost, "/api/admin/generate-tickets", map[string]any{"paymentId": "missing"})
	assert.Equal(t, http.StatusNotFound, apiStatus(t, env.admin.GenerateTickets(e)))
}

func TestAdmin_EmptyListsAreArrays(t *testing.T) {
	env := newEnv(t)

	e, rec := newEvent(http.MethodGet, "/api/admin/payments", nil)
	require.NoError(t, env.admin.ListPayments(e))
	assert.Equal(t, []any{}, decode(t, rec)["items"])
}

func TestPages(t *testing.T) {
	env := newEnv(t)
	_, err := services.NewContentService(env.store).SaveSiteContent(context.Background(), &models.SiteContent{
		Banner:     []models.Banner{{Title: "Temporada <2025>"}},
		NextEvents: []models.ShowItem{{ID: "hamlet", Title: "Hamlet", Price: "50"}},
	})
	require.NoError(t, err)

	tests := []struct {
		view     string
		expected string
	}{
		{"home", "Temporada &lt;2025&gt;"},
		{"catalogo", `data-id="hamlet"`},
		{"sobre", "Sobre nós"},
		{"historia", "Nossa história"},
		{"galeria", "Galeria"},
		{"obrigado", "Obrigado"},
		{"validar", "Validação de ingresso"},
		{"admin", "Administração"},
	}

	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			e, rec := newEvent(http.MethodGet, "/"+tt.view, nil)
			require.NoError(t, env.pages.Page(tt.view, "Teatro")(e))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expected)
		})
	}
}

func TestContentAPI(t *testing.T) {
	env := newEnv(t)

	e, rec := newEvent(http.MethodGet, "/api/content", nil)
	require.NoError(t, env.pages.Content(e))
	assert.NotEmpty(t, decode(t, rec)["banner"])
}

func TestRequestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://internal:8090/api/checkout", nil)
	assert.Equal(t, "http://internal:8090", requestBaseURL(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "teatro.example")
	assert.Equal(t, "https://teatro.example", requestBaseURL(r))
}
