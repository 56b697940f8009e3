package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the Prometheus collectors of the attendance service.
// All methods are safe on a nil receiver.
type Recorder struct {
	registry        *prometheus.Registry
	handler         http.Handler
	matchOutcomes   *prometheus.CounterVec
	marks           *prometheus.CounterVec
	auditFailures   prometheus.Counter
	matchDuration   prometheus.Histogram
	matchCandidates prometheus.Histogram
	indexSize       prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a private registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	matchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_outcomes_total",
		Help: "Match attempts by outcome",
	}, []string{"outcome"})

	marks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance mark attempts by result",
	}, []string{"status"})

	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_failures_total",
		Help: "Audit entries that could not be written",
	})

	matchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_duration_seconds",
		Help:    "Time spent gathering and scoring candidates",
		Buckets: prometheus.DefBuckets,
	})

	matchCandidates := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_candidates",
		Help:    "Number of candidates scored per match attempt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	indexSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hnsw_index_templates",
		Help: "Templates held by the in-memory HNSW index",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	registry.MustRegister(matchOutcomes, marks, auditFailures, matchDuration, matchCandidates, indexSize, requestDuration)

	return &Recorder{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		matchOutcomes:   matchOutcomes,
		marks:           marks,
		auditFailures:   auditFailures,
		matchDuration:   matchDuration,
		matchCandidates: matchCandidates,
		indexSize:       indexSize,
		requestDuration: requestDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Registry returns the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveMatch records one match attempt.
func (r *Recorder) ObserveMatch(outcome string, candidates int, duration time.Duration) {
	if r == nil {
		return
	}
	r.matchOutcomes.WithLabelValues(outcome).Inc()
	r.matchCandidates.Observe(float64(candidates))
	r.matchDuration.Observe(duration.Seconds())
}

// ObserveMark records the result of an attendance mark.
func (r *Recorder) ObserveMark(status string) {
	if r == nil {
		return
	}
	r.marks.WithLabelValues(status).Inc()
}

// AuditFailed counts an audit entry that was lost.
func (r *Recorder) AuditFailed() {
	if r == nil {
		return
	}
	r.auditFailures.Inc()
}

// SetIndexSize records the template count of the HNSW index.
func (r *Recorder) SetIndexSize(n int) {
	if r == nil {
		return
	}
	r.indexSize.Set(float64(n))
}

// ObserveHTTPRequest records request latency. The path is not a label since
// it carries identity ids.
func (r *Recorder) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}
