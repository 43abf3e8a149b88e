// Package metrics exposes the operator's prometheus metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freqtrade_operator"

// Recorder holds all collectors of the operator. Every collector is
// labeled with the resource it refers to, e.g. freqtradebots.
type Recorder struct {
	registry *prometheus.Registry
	created  *prometheus.CounterVec
	deleted  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry, so that several
// recorders can coexist in tests
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "The number of resources created",
		}, []string{"resource"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deleted_total",
			Help:      "The number of resources deleted",
		}, []string{"resource"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The number of failed reconciliations",
		}, []string{"resource", "event", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_duration_seconds",
			Help:      "The number of seconds it takes to handle an event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "event"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active",
			Help:      "The number of resources currently known to the operator",
		}, []string{"resource"}),
	}
	r.registry.MustRegister(
		r.created,
		r.deleted,
		r.errors,
		r.duration,
		r.active,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Created counts a successfully created resource
func (r *Recorder) Created(resource string) {
	r.created.WithLabelValues(resource).Inc()
}

// Deleted counts a handled deletion
func (r *Recorder) Deleted(resource string) {
	r.deleted.WithLabelValues(resource).Inc()
}

// Error counts a failed event. class is permanent, temporary or unknown.
func (r *Recorder) Error(resource string, event string, class string) {
	r.errors.WithLabelValues(resource, event, class).Inc()
}

// Observe records how long handling an event took
func (r *Recorder) Observe(resource string, event string, d time.Duration) {
	r.duration.WithLabelValues(resource, event).Observe(d.Seconds())
}

// SetActive sets the number of resources in the informer cache
func (r *Recorder) SetActive(resource string, n int) {
	r.active.WithLabelValues(resource).Set(float64(n))
}

// Registry returns the registry all collectors are registered with
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
