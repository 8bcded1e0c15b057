package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the case engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Case lifecycle metrics
	CaseCreationsTotal *prometheus.CounterVec
	CaseMovesTotal     *prometheus.CounterVec
	CaseClosuresTotal  *prometheus.CounterVec
	CasesOpen          prometheus.Gauge

	// Step handler metrics
	StepExecutionsTotal *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec

	// Escalation metrics
	EscalationsTotal      *prometheus.CounterVec
	TerminalOverdueTotal  prometheus.Counter
	EscalationScanSeconds prometheus.Histogram
	EscalationScanCases   prometheus.Histogram
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caseflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caseflow_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caseflow_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Case lifecycle
		CaseCreationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_case_creations_total",
			Help: "Total number of cases created.",
		}, []string{"case_type"}),
		CaseMovesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_case_moves_total",
			Help: "Total number of case move transitions, including stopped moves.",
		}, []string{"case_type", "outcome"}),
		CaseClosuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_case_closures_total",
			Help: "Total number of cases closed.",
		}, []string{"case_type"}),
		CasesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "caseflow_cases_open",
			Help: "Number of cases currently open or in progress.",
		}),

		// Step handlers
		StepExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_step_executions_total",
			Help: "Total number of step handler executions.",
		}, []string{"step_id", "operation", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caseflow_step_duration_seconds",
			Help:    "Step handler duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"step_id", "operation"}),

		// Escalation
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caseflow_escalations_total",
			Help: "Total number of case escalations.",
		}, []string{"level"}),
		TerminalOverdueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "caseflow_terminal_overdue_total",
			Help: "Total number of cases marked overdue at their terminal escalation level.",
		}),
		EscalationScanSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "caseflow_escalation_scan_duration_seconds",
			Help:    "Escalation scan duration in seconds.",
			Buckets: engineDurationBuckets,
		}),
		EscalationScanCases: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "caseflow_escalation_scan_cases",
			Help:    "Number of open cases examined per escalation scan.",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Case lifecycle
		m.CaseCreationsTotal,
		m.CaseMovesTotal,
		m.CaseClosuresTotal,
		m.CasesOpen,
		// Step handlers
		m.StepExecutionsTotal,
		m.StepDuration,
		// Escalation
		m.EscalationsTotal,
		m.TerminalOverdueTotal,
		m.EscalationScanSeconds,
		m.EscalationScanCases,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordCaseCreated records a case creation.
func (m *Metrics) RecordCaseCreated(caseType string) {
	m.CaseCreationsTotal.WithLabelValues(caseType).Inc()
	m.CasesOpen.Inc()
}

// RecordCaseMoved records the outcome of a move transition: "advanced" or
// "stopped".
func (m *Metrics) RecordCaseMoved(caseType, outcome string) {
	m.CaseMovesTotal.WithLabelValues(caseType, outcome).Inc()
}

// RecordCaseClosed records a case closure.
func (m *Metrics) RecordCaseClosed(caseType string) {
	m.CaseClosuresTotal.WithLabelValues(caseType).Inc()
	m.CasesOpen.Dec()
}

// RecordStepExecution records a step handler execution.
func (m *Metrics) RecordStepExecution(stepID, operation, status string, duration time.Duration) {
	m.StepExecutionsTotal.WithLabelValues(stepID, operation, status).Inc()
	m.StepDuration.WithLabelValues(stepID, operation).Observe(duration.Seconds())
}

// RecordEscalation records a case escalation to the given level.
func (m *Metrics) RecordEscalation(level int) {
	m.EscalationsTotal.WithLabelValues(strconv.Itoa(level)).Inc()
}

// RecordTerminalOverdue records a case marked overdue at its terminal level.
func (m *Metrics) RecordTerminalOverdue() {
	m.TerminalOverdueTotal.Inc()
}

// ObserveEscalationScan records one escalation scan pass.
func (m *Metrics) ObserveEscalationScan(duration time.Duration, scanned int) {
	m.EscalationScanSeconds.Observe(duration.Seconds())
	m.EscalationScanCases.Observe(float64(scanned))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
