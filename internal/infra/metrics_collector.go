package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "orderbook"

// MetricsCollector exposes Metrics to Prometheus. Values are read from the
// atomics at scrape time so the hot path never touches Prometheus types.
type MetricsCollector struct {
	m *Metrics

	events            *prometheus.Desc
	snapshots         *prometheus.Desc
	deltas            *prometheus.Desc
	dropped           *prometheus.Desc
	crossed           *prometheus.Desc
	ackTimeouts       *prometheus.Desc
	switchesStarted   *prometheus.Desc
	switchesCompleted *prometheus.Desc
	gaps              *prometheus.Desc
	feedErrors        *prometheus.Desc
	reconnects        *prometheus.Desc
	connections       *prometheus.Desc
	switchPending     *prometheus.Desc
	avgLatency        *prometheus.Desc
}

// NewMetricsCollector wraps m for registration.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
	}
	return &MetricsCollector{
		m:                 m,
		events:            desc("events_processed_total", "Events handled by the sequencer"),
		snapshots:         desc("snapshots_applied_total", "Snapshots installed into the book"),
		deltas:            desc("deltas_applied_total", "Delta batches merged into the book"),
		dropped:           desc("messages_dropped_total", "Feed messages that did not reach the book, by reason", "reason"),
		crossed:           desc("crossed_books_total", "Published books with a negative spread"),
		ackTimeouts:       desc("ack_timeouts_total", "Subscription requests abandoned after retries"),
		switchesStarted:   desc("switches_started_total", "Instrument switches started"),
		switchesCompleted: desc("switches_completed_total", "Instrument switches completed"),
		gaps:              desc("sequence_gaps_total", "Gaps detected in feed sequence numbers"),
		feedErrors:        desc("feed_errors_total", "Error events reported by the venue"),
		reconnects:        desc("ws_reconnects_total", "WebSocket reconnect attempts"),
		connections:       desc("active_connections", "Open feed connections"),
		switchPending:     desc("switch_pending", "1 while an instrument switch is in flight"),
		avgLatency:        desc("event_latency_avg_seconds", "Average event processing latency"),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.snapshots
	ch <- c.deltas
	ch <- c.dropped
	ch <- c.crossed
	ch <- c.ackTimeouts
	ch <- c.switchesStarted
	ch <- c.switchesCompleted
	ch <- c.gaps
	ch <- c.feedErrors
	ch <- c.reconnects
	ch <- c.connections
	ch <- c.switchPending
	ch <- c.avgLatency
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.events, snap.EventsProcessed)
	counter(c.snapshots, snap.SnapshotsApplied)
	counter(c.deltas, snap.DeltasApplied)
	for _, r := range DropReasons() {
		counter(c.dropped, snap.Dropped[r.String()], r.String())
	}
	counter(c.crossed, snap.CrossedBooks)
	counter(c.ackTimeouts, snap.AckTimeouts)
	counter(c.switchesStarted, snap.SwitchesStarted)
	counter(c.switchesCompleted, snap.SwitchesCompleted)
	counter(c.gaps, snap.SequenceGaps)
	counter(c.feedErrors, snap.FeedErrors)
	counter(c.reconnects, snap.Reconnects)

	var pending float64
	if snap.SwitchPending {
		pending = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(snap.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.switchPending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, float64(snap.AvgLatencyNs)/1e9)
}

// NewMetricsRegistry builds a registry with m plus the Go runtime and process collectors.
func NewMetricsRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewMetricsCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg in the Prometheus text format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
