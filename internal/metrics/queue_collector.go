package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	descQueueDepth = prometheus.NewDesc(
		namespace+"_queue_depth",
		"Number of requests waiting in each queue.",
		[]string{"queue"}, nil,
	)
	descQueueCapacity = prometheus.NewDesc(
		namespace+"_queue_capacity",
		"Maximum number of requests each queue holds.",
		[]string{"queue"}, nil,
	)
	descPendingRequests = prometheus.NewDesc(
		namespace+"_pending_requests",
		"Number of callers waiting for a worker result.",
		nil, nil,
	)
)

type queueCollector struct {
	source StatsSource
}

var _ prometheus.Collector = &queueCollector{}

// NewQueueCollector exposes queue depth and pending count read at scrape time
func NewQueueCollector(source StatsSource) prometheus.Collector {
	return &queueCollector{source: source}
}

// Describe implements the prometheus.Collector interface.
func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descQueueDepth
	ch <- descQueueCapacity
	ch <- descPendingRequests
}

// Collect implements the prometheus.Collector interface.
func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.Stats() {
		ch <- prometheus.MustNewConstMetric(descQueueDepth, prometheus.GaugeValue, float64(s.Depth), s.Name)
		ch <- prometheus.MustNewConstMetric(descQueueCapacity, prometheus.GaugeValue, float64(s.Capacity), s.Name)
	}
	ch <- prometheus.MustNewConstMetric(descPendingRequests, prometheus.GaugeValue, float64(c.source.PendingCount()))
}
