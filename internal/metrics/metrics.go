// Package metrics provides Prometheus instrumentation for the risk engine.
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
	// EvaluationsTotal counts account evaluations, partitioned by resulting risk state.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_evaluations_total",
		Help: "Total number of account evaluations",
	}, []string{"risk_state"})

	// EvaluationFailures counts evaluations rejected on input validation.
	EvaluationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_evaluation_failures_total",
		Help: "Evaluations failed on input validation",
	}, []string{"reason"})

	// BailoutsTotal counts executed pool operations by kind and outcome.
	BailoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_bailouts_total",
		Help: "Total buffer pool operations",
	}, []string{"kind", "outcome"})

	// MarginCalls counts transitions into the margin-call band.
	MarginCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riskcore_margin_calls_total",
		Help: "Accounts newly flagged for margin call",
	})

	// PoolValuePerShare tracks the buffer pool's current value per share.
	PoolValuePerShare = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskcore_pool_value_per_share",
		Help: "Buffer pool discounted net value per share unit",
	})

	// PoolTotalShares tracks the outstanding share units.
	PoolTotalShares = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskcore_pool_total_shares",
		Help: "Buffer pool total share units",
	})

	// BorrowRate tracks the derived per-asset borrow rate.
	BorrowRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "riskcore_borrow_rate",
		Help: "Derived annualized borrow rate",
	}, []string{"asset"})

	// Utilization tracks per-asset utilization feeding the rate model.
	Utilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "riskcore_utilization",
		Help: "Borrowed over supplied volume",
	}, []string{"asset"})

	// MaintenancePassDuration tracks the duration of full-ledger sweeps.
	MaintenancePassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riskcore_maintenance_pass_duration_seconds",
		Help:    "Duration of a maintenance pass over all accounts",
		Buckets: prometheus.DefBuckets,
	})

	// EngineHalted is 1 while bailout processing is halted.
	EngineHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "riskcore_halted",
		Help: "1 while bailout processing is halted pending operator action",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskcore_http_request_duration_seconds",
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

		// Use the raw path for the label; the API surface is small and fixed.
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
