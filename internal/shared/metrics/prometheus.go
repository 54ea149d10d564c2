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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Report metrics
	reportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aims_report_runs_total",
			Help: "Total number of AIMS report runs",
		},
		[]string{"source", "status"},
	)

	reportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aims_report_run_duration_seconds",
			Help:    "AIMS report run duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	reportRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aims_report_rows",
			Help: "Rows in the most recent AIMS report, by risk bucket",
		},
		[]string{"risk_bucket"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source", "operation"},
	)

	dbQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of failed database queries",
		},
		[]string{"source", "operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := routePattern(r)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by their chi route template so that
// query strings and path parameters do not blow up label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// --- Report metric helpers ---

// RecordReportRun records a completed or failed report run
func RecordReportRun(source string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	reportRunsTotal.WithLabelValues(source, status).Inc()
	reportRunDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordReportRows sets the row gauge for each risk bucket
func RecordReportRows(counts map[string]int) {
	for bucket, n := range counts {
		reportRows.WithLabelValues(bucket).Set(float64(n))
	}
}

// RecordDBQuery records a database query duration and its outcome
func RecordDBQuery(source, operation string, duration time.Duration, err error) {
	dbQueryDuration.WithLabelValues(source, operation).Observe(duration.Seconds())
	if err != nil {
		dbQueryErrors.WithLabelValues(source, operation).Inc()
	}
}
