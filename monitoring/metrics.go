package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	webhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	paymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_processed_total",
			Help: "Payments fetched from a provider, by normalized status",
		},
		[]string{"provider", "status"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	ticketsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_minted_total",
			Help: "Tickets created",
		},
	)

	ticketValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_validations_total",
			Help: "Ticket validations by entry point and outcome",
		},
		[]string{"method", "outcome"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Swallowed failures after a payment was recorded (pdf, email, publish)",
		},
		[]string{"stage"},
	)

	providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Latency of payment provider calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "operation"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "1 when the last Redis ping succeeded",
		},
	)
)

// Monitor records application metrics. A nil *Monitor is valid and records
// nothing, which keeps metrics optional for services and tests.
type Monitor struct {
	redis redis.Cmdable
}

func NewMonitor(redisClient redis.Cmdable) *Monitor {
	return &Monitor{redis: redisClient}
}

// Run samples runtime and Redis gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		m.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.redis == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.redis.Ping(pingCtx).Err(); err != nil {
		redisUp.Set(0)
		return
	}
	redisUp.Set(1)
}

func (m *Monitor) TrackWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	webhooksReceived.WithLabelValues(provider, outcome).Inc()
}

func (m *Monitor) TrackPayment(provider, status string) {
	if m == nil {
		return
	}
	paymentsProcessed.WithLabelValues(provider, status).Inc()
}

func (m *Monitor) TrackCheckout(provider, result string) {
	if m == nil {
		return
	}
	checkouts.WithLabelValues(provider, result).Inc()
}

func (m *Monitor) TrackTicketsMinted(n int) {
	if m == nil {
		return
	}
	ticketsMinted.Add(float64(n))
}

func (m *Monitor) TrackValidation(method, outcome string) {
	if m == nil {
		return
	}
	ticketValidations.WithLabelValues(method, outcome).Inc()
}

func (m *Monitor) TrackSideEffectFailure(stage string) {
	if m == nil {
		return
	}
	sideEffectFailures.WithLabelValues(stage).Inc()
}

// TrackProviderCall observes the time since start.
func (m *Monitor) TrackProviderCall(provider, operation string, start time.Time) {
	if m == nil {
		return
	}
	providerLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
