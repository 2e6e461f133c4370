package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor(nil)

	before := testutil.ToFloat64(webhooksReceived.WithLabelValues("stripe", "processed"))
	m.TrackWebhook("stripe", "processed")
	m.TrackWebhook("stripe", "processed")
	assert.Equal(t, before+2, testutil.ToFloat64(webhooksReceived.WithLabelValues("stripe", "processed")))

	before = testutil.ToFloat64(ticketsMinted)
	m.TrackTicketsMinted(3)
	assert.Equal(t, before+3, testutil.ToFloat64(ticketsMinted))

	before = testutil.ToFloat64(ticketValidations.WithLabelValues("qr", "used"))
	m.TrackValidation("qr", "used")
	assert.Equal(t, before+1, testutil.ToFloat64(ticketValidations.WithLabelValues("qr", "used")))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.TrackWebhook("mercadopago", "ignored")
		m.TrackPayment("mercadopago", "approved")
		m.TrackCheckout("stripe", "ok")
		m.TrackTicketsMinted(1)
		m.TrackValidation("password", "validated")
		m.TrackSideEffectFailure("email")
		m.TrackProviderCall("stripe", "get_payment", time.Now())
	})
}

func TestMonitor_CollectRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMonitor(db)

	mock.ExpectPing().SetVal("PONG")
	m.collect(t.Context())
	assert.Equal(t, float64(1), testutil.ToFloat64(redisUp))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	m.collect(t.Context())
	assert.Equal(t, float64(0), testutil.ToFloat64(redisUp))

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Greater(t, testutil.ToFloat64(goroutineCount), float64(0))
}

func TestHandler(t *testing.T) {
	NewMonitor(nil).TrackCheckout("mercadopago", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkouts_total")
}
