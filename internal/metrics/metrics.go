// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts executed bets, partitioned by side.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memeclash_bets_total",
		Help: "Total number of bets executed",
	}, []string{"side"})

	// BetLatency tracks bet execution latency.
	BetLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memeclash_bet_latency_seconds",
		Help:    "Bet execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ActiveMarkets tracks the number of unresolved markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memeclash_active_markets",
		Help: "Number of currently unresolved markets",
	})

	// MarketsResolved counts settled markets.
	MarketsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memeclash_markets_resolved_total",
		Help: "Markets settled to a final outcome",
	})

	// BetVolume accumulates gross bet amounts per market.
	BetVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memeclash_bet_volume_total",
		Help: "Cumulative gross bet volume in ledger units",
	}, []string{"market_id", "side"})

	// RewardsClaimed counts creator reward claims.
	RewardsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memeclash_rewards_claimed_total",
		Help: "Creator reward claims that paid out",
	})

	// PersistenceErrors counts failed snapshot writes.
	PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memeclash_persistence_errors_total",
		Help: "Snapshot writes that failed (engine continues memory-only)",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memeclash_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memeclash_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memeclash_http_request_duration_seconds",
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

		// Use the chi route pattern for the path label to avoid high
		// cardinality from market ids and addresses.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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
