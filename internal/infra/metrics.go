package infra

import (
	"sync/atomic"
	"time"
)

// DropReason classifies why a feed message did not reach the book.
type DropReason int

const (
	DropMalformed     DropReason = iota // could not be decoded
	DropStale                           // arrived during a switch or for another instrument
	DropOutOfSequence                   // delta with no snapshot installed
	DropRejected                        // merge/aggregate refused the batch
	numDropReasons
)

// String returns the string representation of DropReason
func (r DropReason) String() string {
	switch r {
	case DropMalformed:
		return "malformed"
	case DropStale:
		return "stale"
	case DropOutOfSequence:
		return "out_of_sequence"
	case DropRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// DropReasons lists every reason in label order.
func DropReasons() []DropReason {
	out := make([]DropReason, 0, numDropReasons)
	for r := DropReason(0); r < numDropReasons; r++ {
		out = append(out, r)
	}
	return out
}

// Metrics provides lightweight observability for the hot path.
// Uses atomic operations for thread-safety; Prometheus reads it through MetricsCollector.
type Metrics struct {
	// Counters
	eventsProcessed   atomic.Uint64
	snapshotsApplied  atomic.Uint64
	deltasApplied     atomic.Uint64
	dropped           [numDropReasons]atomic.Uint64
	crossedBooks      atomic.Uint64
	ackTimeouts       atomic.Uint64
	switchesStarted   atomic.Uint64
	switchesCompleted atomic.Uint64
	sequenceGaps      atomic.Uint64
	feedErrors        atomic.Uint64
	reconnects        atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	switchPending     atomic.Int32 // 1 = switch in flight
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordSnapshot counts an installed snapshot.
func (m *Metrics) RecordSnapshot() { m.snapshotsApplied.Add(1) }

// RecordDelta counts a merged delta.
func (m *Metrics) RecordDelta() { m.deltasApplied.Add(1) }

// RecordDrop counts a message that did not reach the book.
func (m *Metrics) RecordDrop(reason DropReason) {
	if reason < 0 || reason >= numDropReasons {
		return
	}
	m.dropped[reason].Add(1)
}

// RecordCrossed counts a published book with a negative spread.
func (m *Metrics) RecordCrossed() { m.crossedBooks.Add(1) }

// RecordAckTimeout counts a subscription request given up on.
func (m *Metrics) RecordAckTimeout() { m.ackTimeouts.Add(1) }

// RecordSwitchStarted counts an accepted switch request.
func (m *Metrics) RecordSwitchStarted() { m.switchesStarted.Add(1) }

// RecordSwitchCompleted counts a switch that reached Idle.
func (m *Metrics) RecordSwitchCompleted() { m.switchesCompleted.Add(1) }

// RecordSequenceGap counts a detected gap in feed sequence numbers.
func (m *Metrics) RecordSequenceGap() { m.sequenceGaps.Add(1) }

// RecordFeedError counts an "error" event sent by the venue.
func (m *Metrics) RecordFeedError() { m.feedErrors.Add(1) }

// RecordReconnect counts a reconnect attempt after a lost connection.
func (m *Metrics) RecordReconnect() { m.reconnects.Add(1) }

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetSwitchPending sets the switch-in-flight gauge.
func (m *Metrics) SetSwitchPending(pending bool) {
	if pending {
		m.switchPending.Store(1)
	} else {
		m.switchPending.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64            `json:"events_processed"`
	SnapshotsApplied  uint64            `json:"snapshots_applied"`
	DeltasApplied     uint64            `json:"deltas_applied"`
	Dropped           map[string]uint64 `json:"dropped"`
	CrossedBooks      uint64            `json:"crossed_books"`
	AckTimeouts       uint64            `json:"ack_timeouts"`
	SwitchesStarted   uint64            `json:"switches_started"`
	SwitchesCompleted uint64            `json:"switches_completed"`
	SequenceGaps      uint64            `json:"sequence_gaps"`
	FeedErrors        uint64            `json:"feed_errors"`
	Reconnects        uint64            `json:"reconnects"`
	AvgLatencyNs      int64             `json:"avg_latency_ns"`
	ActiveConnections int32             `json:"active_connections"`
	SwitchPending     bool              `json:"switch_pending"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	dropped := make(map[string]uint64, numDropReasons)
	for _, r := range DropReasons() {
		dropped[r.String()] = m.dropped[r].Load()
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		SnapshotsApplied:  m.snapshotsApplied.Load(),
		DeltasApplied:     m.deltasApplied.Load(),
		Dropped:           dropped,
		CrossedBooks:      m.crossedBooks.Load(),
		AckTimeouts:       m.ackTimeouts.Load(),
		SwitchesStarted:   m.switchesStarted.Load(),
		SwitchesCompleted: m.switchesCompleted.Load(),
		SequenceGaps:      m.sequenceGaps.Load(),
		FeedErrors:        m.feedErrors.Load(),
		Reconnects:        m.reconnects.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		SwitchPending:     m.switchPending.Load() == 1,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.snapshotsApplied.Store(0)
	m.deltasApplied.Store(0)
	for i := range m.dropped {
		m.dropped[i].Store(0)
	}
	m.crossedBooks.Store(0)
	m.ackTimeouts.Store(0)
	m.switchesStarted.Store(0)
	m.switchesCompleted.Store(0)
	m.sequenceGaps.Store(0)
	m.feedErrors.Store(0)
	m.reconnects.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.switchPending.Store(0)
}
