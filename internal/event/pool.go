package event

import (
	"sync"
)

// Deltas are the high-frequency message on the feed, so their envelopes are
// pooled to keep GC pressure off the hotpath.
//
// Usage:
//
//	ev := AcquireDeltaEvent()
//	ev.Instrument = domain.InstrumentBTC
//	// ... enqueue, process ...
//	ReleaseDeltaEvent(ev) // once the sequencer is done with it
var deltaPool = sync.Pool{
	New: func() interface{} {
		return &DeltaEvent{}
	},
}

// AcquireDeltaEvent gets a DeltaEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireDeltaEvent() *DeltaEvent {
	return deltaPool.Get().(*DeltaEvent)
}

// ReleaseDeltaEvent returns a DeltaEvent to the pool.
// Slices are truncated, not freed, so their backing arrays get reused.
func ReleaseDeltaEvent(ev *DeltaEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.Instrument = ""
	ev.Bids = ev.Bids[:0]
	ev.Asks = ev.Asks[:0]

	deltaPool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	evs := make([]*DeltaEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireDeltaEvent())
	}
	for _, ev := range evs {
		ReleaseDeltaEvent(ev)
	}
}
