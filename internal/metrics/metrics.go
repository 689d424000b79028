// Package metrics provides Prometheus instrumentation for the trust engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReportsBuilt counts portfolio reports composed, partitioned by outcome.
	ReportsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_reports_built_total",
		Help: "Total portfolio reports built",
	}, []string{"outcome"})

	// TransactionsApplied counts ledger applications, partitioned by type.
	TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_transactions_applied_total",
		Help: "Total transactions applied to positions",
	}, []string{"type"})

	// IntegrityErrors counts reconciliation/ledger integrity failures.
	IntegrityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_integrity_errors_total",
		Help: "Balance underflows and closed-position mutations detected",
	}, []string{"kind"})

	// PriceFeedGaps counts token lookups that degraded to gap records.
	PriceFeedGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_pricefeed_gaps_total",
		Help: "Token performance lookups answered with a data gap",
	})

	// TrustUpdates counts recommender metric recomputations.
	TrustUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_scorer_updates_total",
		Help: "Recommender metric updates triggered by closed positions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trust_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trust_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
