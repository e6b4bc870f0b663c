// Package metrics exposes the Prometheus collectors for penalty accrual and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	penaltiesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "goalpact",
			Name:      "penalties_applied_total",
			Help:      "Goals marked missed with their group fund credited.",
		},
	)

	penaltyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalpact",
			Name:      "penalty_outcomes_total",
			Help:      "Penalty application attempts by outcome.",
		},
		[]string{"outcome"},
	)

	fundPointsCredited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "goalpact",
			Name:      "fund_points_credited_total",
			Help:      "Points credited to group funds.",
		},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalpact",
			Name:      "reconciliations_total",
			Help:      "Reconciliation passes by result.",
		},
		[]string{"result"},
	)

	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "goalpact",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalpact",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	// Edge counters are owned by the middlewares and copied in at scrape time.
	edgeStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "goalpact",
			Name:      "edge_stats",
			Help:      "Rate limiter and probe detector counters since process start.",
		},
		[]string{"stat"},
	)
)

func init() {
	Registry.MustRegister(
		penaltiesApplied,
		penaltyOutcomes,
		fundPointsCredited,
		reconciliations,
		reconcileDuration,
		httpRequests,
		edgeStats,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// EdgeStats are the middleware counters published on each scrape.
type EdgeStats struct {
	RateLimitedRequests int64
	RateLimitClients    int64
	SuspiciousRequests  int64
}

// HandlerWithEdgeStats refreshes the edge gauges from stats before serving a scrape.
func HandlerWithEdgeStats(stats func() EdgeStats) http.Handler {
	h := Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := stats()
		edgeStats.WithLabelValues("rate_limited_requests").Set(float64(s.RateLimitedRequests))
		edgeStats.WithLabelValues("rate_limit_clients").Set(float64(s.RateLimitClients))
		edgeStats.WithLabelValues("suspicious_requests").Set(float64(s.SuspiciousRequests))
		h.ServeHTTP(w, r)
	})
}

// RecordPenaltyOutcome counts an Apply call; applied outcomes also count points.
func RecordPenaltyOutcome(outcome string, points int64) {
	penaltyOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "applied" {
		penaltiesApplied.Inc()
		fundPointsCredited.Add(float64(points))
	}
}

// RecordReconciliation records one reconciliation pass.
func RecordReconciliation(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reconciliations.WithLabelValues(result).Inc()
	reconcileDuration.Observe(duration.Seconds())
}

// InstrumentHandler counts requests by chi route pattern so ids don't explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		if route == "/metrics" {
			return
		}
		httpRequests.WithLabelValues(strings.ToUpper(r.Method), route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
