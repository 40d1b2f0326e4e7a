package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohort_http_requests_total",
		Help: "HTTP requests served, by route pattern and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cohort_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	RetentionComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cohort_retention_compute_duration_seconds",
		Help:    "Time spent computing one retention matrix",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	RetentionCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohort_retention_cache_lookups_total",
		Help: "Retention matrix memo lookups by result",
	}, []string{"result"})

	RecordsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cohort_records_loaded",
		Help: "Cleaned transaction records held in memory",
	})

	RowsExcluded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cohort_rows_excluded",
		Help: "Raw rows excluded by the cleaner at the last load, by reason",
	}, []string{"reason"})
)

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
