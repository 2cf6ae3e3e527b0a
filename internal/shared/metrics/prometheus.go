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

	// Business metrics
	patientsRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambulatorio_patients_registered_total",
			Help: "Total number of patients registered",
		},
		[]string{"minor"},
	)

	consultationsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambulatorio_consultations_accepted_total",
			Help: "Total number of consultations appended, by device action",
		},
		[]string{"action"},
	)

	consultationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambulatorio_consultations_rejected_total",
			Help: "Total number of consultation submissions rejected",
		},
		[]string{"reason"},
	)

	consultationsVoided = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ambulatorio_consultations_voided_total",
			Help: "Total number of consultations voided",
		},
	)

	deviceHistoryConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambulatorio_device_history_conflicts_total",
			Help: "Device events ignored while folding a patient's history",
		},
		[]string{"reason"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	lockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ambulatorio_patient_lock_contention_total",
			Help: "Consultation writes refused because another writer held the patient lock",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
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

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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

// routePattern uses the matched chi route ("/api/v1/patients/{patientID}")
// so IDs do not become label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// --- Business metric helpers ---

// RecordPatientRegistered records a patient registration
func RecordPatientRegistered(minor bool) {
	patientsRegistered.WithLabelValues(strconv.FormatBool(minor)).Inc()
}

// RecordConsultationAccepted records an appended consultation.
// action is "insertion", "removal", "exchange" or "none".
func RecordConsultationAccepted(action string) {
	consultationsAccepted.WithLabelValues(action).Inc()
}

// RecordConsultationRejected records a refused submission
func RecordConsultationRejected(reason string) {
	consultationsRejected.WithLabelValues(reason).Inc()
}

// RecordConsultationVoided records a void
func RecordConsultationVoided() {
	consultationsVoided.Inc()
}

// RecordDeviceHistoryConflict records an event ignored by the device fold
func RecordDeviceHistoryConflict(reason string) {
	deviceHistoryConflicts.WithLabelValues(reason).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordLockContention records a refused lock acquisition
func RecordLockContention() {
	lockContention.Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
