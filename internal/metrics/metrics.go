// Package metrics provides Prometheus instrumentation for the exchange
// processes.
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
	// CommandsTotal counts dispatched commands by type and outcome
	// (ok, rejected, unauthorized, invalid, panic).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_commands_total",
		Help: "Total number of commands processed by the engine",
	}, []string{"type", "outcome"})

	// CommandLatency tracks handler execution time by command type.
	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opinex_command_latency_seconds",
		Help:    "Command execution latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"type"})

	// FillsTotal counts individual matches by side.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_fills_total",
		Help: "Total number of order matches",
	}, []string{"side"})

	// FilledQuantity tracks cumulative matched quantity by side.
	FilledQuantity = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_filled_quantity_total",
		Help: "Cumulative matched quantity in contracts",
	}, []string{"side"})

	// PublishFailures counts responses and events the bus refused.
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_publish_failures_total",
		Help: "Messages that could not be published",
	}, []string{"topic"})

	// DequeueErrors counts failed reads from the request queue.
	DequeueErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opinex_dequeue_errors_total",
		Help: "Failed reads from the request queue",
	})

	// Markets tracks the number of markets by status.
	Markets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opinex_markets",
		Help: "Number of markets by status",
	}, []string{"status"})

	// RPCTimeouts counts gateway calls that received no response in time.
	RPCTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_rpc_timeouts_total",
		Help: "Gateway calls that timed out waiting for the engine",
	}, []string{"type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opinex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// ArchivedTotal counts responses mirrored to the database by type and
	// result (ok, error).
	ArchivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_archived_total",
		Help: "Responses mirrored to durable storage",
	}, []string{"type", "result"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opinex_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so symbols in the path do not
// blow up cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
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
