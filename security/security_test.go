package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"theater-site/internal/status"
)

func newEvent(req *http.Request) *core.RequestEvent {
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an ApiError, got %v", err)
	return apiErr.Status
}

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "scan", 2, time.Minute)

	mock.ExpectIncr("ratelimit:scan:1.2.3.4").SetVal(1)
	mock.ExpectExpire("ratelimit:scan:1.2.3.4", time.Minute).SetVal(true)
	mock.ExpectIncr("ratelimit:scan:1.2.3.4").SetVal(2)
	mock.ExpectIncr("ratelimit:scan:1.2.3.4").SetVal(3)

	for i, want := range []bool{true, true, false} {
		allowed, err := rl.Allow(t.Context(), "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "request %d", i+1)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Middleware(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "scan", 1, time.Minute)
	rl.clientID = func(e *core.RequestEvent) string { return "9.9.9.9" }
	handler := rl.Middleware()

	mock.ExpectIncr("ratelimit:scan:9.9.9.9").SetVal(1)
	mock.ExpectExpire("ratelimit:scan:9.9.9.9", time.Minute).SetVal(true)
	mock.ExpectIncr("ratelimit:scan:9.9.9.9").SetVal(2)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/validate-qr", nil)
	assert.NoError(t, handler(newEvent(req)))

	err := handler(newEvent(req))
	assert.Equal(t, http.StatusTooManyRequests, apiStatus(t, err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, "scan", 1, time.Minute)
	rl.clientID = func(e *core.RequestEvent) string { return "9.9.9.9" }

	mock.ExpectIncr("ratelimit:scan:9.9.9.9").SetErr(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NoError(t, rl.Middleware()(newEvent(req)))
}

func TestAntiBotMiddleware(t *testing.T) {
	tests := []struct {
		ua      string
		blocked bool
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", false},
		{"Googlebot/2.1", true},
		{"my-Scraper 1.0", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
			req.Header.Set("User-Agent", tt.ua)

			err := AntiBotMiddleware()(newEvent(req))
			if tt.blocked {
				assert.Equal(t, http.StatusForbidden, apiStatus(t, err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPasswordGate_Check(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		secret   string
		password string
		expected bool
	}{
		{"Plain match", "s3cret", "s3cret", true},
		{"Plain mismatch", "s3cret", "wrong", false},
		{"Bcrypt match", string(hash), "s3cret", true},
		{"Bcrypt mismatch", string(hash), "wrong", false},
		{"Empty secret rejects", "", "", false},
		{"Empty password", "s3cret", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewPasswordGate(tt.secret).Check(tt.password))
		})
	}
}

func TestPasswordGate_Middleware(t *testing.T) {
	gate := NewPasswordGate("s3cret").Middleware()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/payments", nil)
	req.Header.Set(AdminPasswordHeader, "s3cret")
	assert.NoError(t, gate(newEvent(req)))

	req = httptest.NewRequest(http.MethodGet, "/api/admin/report.csv?password=s3cret", nil)
	assert.NoError(t, gate(newEvent(req)))

	req = httptest.NewRequest(http.MethodGet, "/api/admin/payments?password=nope", nil)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(t, gate(newEvent(req))))
}

func TestLocker_Acquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "webhook", time.Minute)

	mock.Regexp().ExpectSetNX("webhook:pay-1", `^[0-9A-F]{16}$`, time.Minute).SetVal(true)

	release, err := l.Acquire(t.Context(), "pay-1")
	require.NoError(t, err)
	require.NotNil(t, release)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "webhook", time.Minute)

	mock.Regexp().ExpectSetNX("webhook:pay-1", `.*`, time.Minute).SetVal(false)

	_, err := l.Acquire(t.Context(), "pay-1")
	assert.ErrorIs(t, err, status.ErrWebhookLocked)
}

func TestLocker_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, "webhook", time.Minute)

	mock.Regexp().ExpectSetNX("webhook:pay-1", `.*`, time.Minute).SetErr(errors.New("timeout"))

	_, err := l.Acquire(t.Context(), "pay-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrWebhookLocked)
}

func TestLocker_NoRedis(t *testing.T) {
	release, err := NewLocker(nil, "webhook", time.Minute).Acquire(t.Context(), "pay-1")
	require.NoError(t, err)
	assert.NotPanics(t, release)
}
