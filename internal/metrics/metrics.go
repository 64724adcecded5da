package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record outcomes.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_records_total",
			Help: "Upstream records processed by loader and outcome",
		},
		[]string{"loader", "outcome"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_ingest_duration_seconds",
			Help:    "Wall time of one loader ingest",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"loader", "status"},
	)

	OrphansDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_orphans_deleted_total",
			Help: "Local records deleted because upstream no longer lists them",
		},
		[]string{"entity"},
	)

	CMSRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cms_requests_total",
			Help: "Calls to the marketing CMS by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upstream_retries_total",
			Help: "Upstream requests retried by client and reason (throttled, status, network)",
		},
		[]string{"client", "reason"},
	)

	UpstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_upstream_breaker_state",
			Help: "Circuit breaker state per upstream client (0=closed, 1=half-open, 2=open)",
		},
		[]string{"client"},
	)
)

// Router serves the ops endpoints.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
