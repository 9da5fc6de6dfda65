package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/inferd/internal/queue"
)

const namespace = "inferd"

// StatsSource provides queue snapshots for the depth gauges
type StatsSource interface {
	Stats() []queue.QueueStats
	PendingCount() int
}

// Recorder owns a private registry and implements queue.Metrics
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
	dequeuedTotal    *prometheus.CounterVec
	skippedTotal     *prometheus.CounterVec
}

var _ queue.Metrics = (*Recorder)(nil)

// NewRecorder registers the broker metrics and a collector reading live queue depth from source
func NewRecorder(source StatsSource) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Count of submitted requests by queue and terminal outcome.",
			},
			[]string{"queue", "outcome"},
		),
		requestDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from submit to terminal outcome in seconds.",
				Buckets:   []float64{0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"queue"},
		),
		dequeuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dequeued_total",
				Help:      "Count of requests handed to workers.",
			},
			[]string{"queue"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_total",
				Help:      "Count of queued requests discarded because their caller had gone.",
			},
			[]string{"queue"},
		),
	}

	r.registry.MustRegister(
		r.requestsTotal,
		r.requestDurations,
		r.dequeuedTotal,
		r.skippedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if source != nil {
		r.registry.MustRegister(NewQueueCollector(source))
	}
	return r
}

// RecordSubmit implements queue.Metrics
func (r *Recorder) RecordSubmit(queueName, outcome string, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(queueName, outcome).Inc()
	r.requestDurations.WithLabelValues(queueName).Observe(elapsed.Seconds())
}

// RecordDequeue implements queue.Metrics
func (r *Recorder) RecordDequeue(queueName string) {
	r.dequeuedTotal.WithLabelValues(queueName).Inc()
}

// RecordSkip implements queue.Metrics
func (r *Recorder) RecordSkip(queueName string) {
	r.skippedTotal.WithLabelValues(queueName).Inc()
}

// Registry exposes the recorder's registry for tests and extra collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
