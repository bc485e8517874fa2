package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	Registrations     *prometheus.CounterVec
	Logins            *prometheus.CounterVec
	ReviewDecisions   *prometheus.CounterVec
	ProjectMoves      *prometheus.CounterVec
	DocumentsAccepted *prometheus.CounterVec
	DocumentsRejected prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betclever_registrations_total",
				Help: "Registration attempts by result.",
			},
			[]string{"result"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betclever_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		ReviewDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betclever_review_status_changes_total",
				Help: "Review status changes by target status.",
			},
			[]string{"status"},
		),
		ProjectMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betclever_project_status_changes_total",
				Help: "Project pipeline moves by target stage.",
			},
			[]string{"status"},
		),
		DocumentsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betclever_documents_accepted_total",
				Help: "Uploaded documents stored, by bucket.",
			},
			[]string{"bucket"},
		),
		DocumentsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "betclever_documents_rejected_total",
				Help: "Uploaded files refused by the upload filter.",
			},
		),
	}
	registry.MustRegister(m.RequestCount, m.RequestDuration, m.Registrations, m.Logins,
		m.ReviewDecisions, m.ProjectMoves, m.DocumentsAccepted, m.DocumentsRejected)
	return m
}

// RegisterGauge exposes a value computed at scrape time.
func RegisterGauge(registry *prometheus.Registry, name, help string, fn func() float64) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReviewStatus(status string) {
	if m == nil {
		return
	}
	m.ReviewDecisions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveProjectStatus(status string) {
	if m == nil {
		return
	}
	m.ProjectMoves.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveDocuments(bucket string, accepted int) {
	if m == nil {
		return
	}
	m.DocumentsAccepted.WithLabelValues(bucket).Add(float64(accepted))
}

func (m *Metrics) ObserveRejectedDocuments(n int) {
	if m == nil {
		return
	}
	m.DocumentsRejected.Add(float64(n))
}
