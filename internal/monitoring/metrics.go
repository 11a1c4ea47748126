package monitoring

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Business metrics
	ContributionsCreated    *prometheus.CounterVec
	ContributionTransitions *prometheus.CounterVec
	TokensIssued            prometheus.Counter
	TokenAmountIssued       prometheus.Counter
	TokenOutcomes           *prometheus.CounterVec
	BadgesAwarded           prometheus.Counter
	LoginsTotal             *prometheus.CounterVec

	// Ledger queue metrics
	LedgerDispatches    *prometheus.CounterVec
	LedgerQueueDepth    prometheus.Gauge
	RedispatchRuns      *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"route"},
		),

		ContributionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contributions_created_total",
				Help: "Total number of contributions submitted",
			},
			[]string{"type"},
		),
		ContributionTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribution_transitions_total",
				Help: "Total number of contribution status transitions",
			},
			[]string{"status"},
		),
		TokensIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reward_tokens_issued_total",
				Help: "Total number of reward tokens issued",
			},
		),
		TokenAmountIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reward_token_amount_issued_total",
				Help: "Sum of reward token amounts issued",
			},
		),
		TokenOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_token_outcomes_total",
				Help: "Total number of ledger outcomes recorded",
			},
			[]string{"status"},
		),
		BadgesAwarded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "badges_awarded_total",
				Help: "Total number of badges awarded",
			},
		),
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"result"},
		),

		LedgerDispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_dispatches_total",
				Help: "Total number of mint requests handed to the ledger queue",
			},
			[]string{"result"},
		),
		LedgerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_queue_depth",
				Help: "Mint requests buffered in process awaiting publication",
			},
		),
		RedispatchRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_redispatch_runs_total",
				Help: "Total number of stale token redispatch runs",
			},
			[]string{"result"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// RegisterDBStats exports connection pool statistics of db
func RegisterDBStats(db *sql.DB, name string) error {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit(route string) {
	Get().RateLimitHits.WithLabelValues(route).Inc()
}

// RecordContributionCreated records a submitted contribution
func RecordContributionCreated(contributionType string) {
	Get().ContributionsCreated.WithLabelValues(contributionType).Inc()
}

// RecordContributionTransition records a contribution reaching status
func RecordContributionTransition(status string) {
	Get().ContributionTransitions.WithLabelValues(status).Inc()
}

// RecordTokenIssued records a new reward token
func RecordTokenIssued(amount float64) {
	m := Get()
	m.TokensIssued.Inc()
	m.TokenAmountIssued.Add(amount)
}

// RecordTokenOutcome records a ledger outcome
func RecordTokenOutcome(status string) {
	Get().TokenOutcomes.WithLabelValues(status).Inc()
}

// RecordBadgeAwarded records a badge award
func RecordBadgeAwarded() {
	Get().BadgesAwarded.Inc()
}

// RecordLogin records a login attempt
func RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	Get().LoginsTotal.WithLabelValues(result).Inc()
}

// RecordLedgerDispatch records the result of handing a mint request to the queue
// (queued, published, dropped, failed).
func RecordLedgerDispatch(result string) {
	Get().LedgerDispatches.WithLabelValues(result).Inc()
}

// SetLedgerQueueDepth sets the number of buffered mint requests
func SetLedgerQueueDepth(depth int) {
	Get().LedgerQueueDepth.Set(float64(depth))
}

// RecordRedispatchRun records one run of the stale token job
func RecordRedispatchRun(result string) {
	Get().RedispatchRuns.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(name string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(name).Set(state)
}
