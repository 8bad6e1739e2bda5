package engine

import (
	"testing"
	"time"

	"orderbook_go/internal/book"
	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
	"orderbook_go/internal/feed"
	"orderbook_go/internal/infra"

	"github.com/shopspring/decimal"
)

type sentRequest struct {
	action string
	inst   domain.Instrument
}

type fakeRequester struct {
	sent []sentRequest
}

func (f *fakeRequester) Subscribe(inst domain.Instrument) error {
	f.sent = append(f.sent, sentRequest{"subscribe", inst})
	return nil
}

func (f *fakeRequester) Unsubscribe(inst domain.Instrument) error {
	f.sent = append(f.sent, sentRequest{"unsubscribe", inst})
	return nil
}

func (f *fakeRequester) last() sentRequest {
	if len(f.sent) == 0 {
		return sentRequest{}
	}
	return f.sent[len(f.sent)-1]
}

// harness drives processEvent directly with a fake clock.
type harness struct {
	seq     *Sequencer
	ctrl    *feed.Controller
	req     *fakeRequester
	metrics *infra.Metrics
	clock   time.Time
	views   []domain.BookView
	feedSeq uint64
}

func newHarness(t *testing.T, cfg feed.Config) *harness {
	t.Helper()
	h := &harness{
		req:     &fakeRequester{},
		metrics: &infra.Metrics{},
		clock:   time.Unix(1_700_000_000, 0),
	}
	h.ctrl = feed.NewController(domain.InstrumentBTC, cfg)
	h.ctrl.BindRequester(h.req)
	mgr := book.NewManager(book.Config{Depth: 10})
	h.seq = NewSequencer(16, mgr, h.ctrl, h.metrics, func(v domain.BookView) {
		h.views = append(h.views, v)
	})
	h.seq.now = func() time.Time { return h.clock }
	return h
}

// feed stamps the next feed sequence number and processes ev.
func (h *harness) feed(ev event.Event) {
	h.feedSeq++
	ev.Stamp(h.feedSeq, h.clock.UnixMicro())
	h.seq.processEvent(ev)
}

// control processes an unsequenced event.
func (h *harness) control(ev event.Event) {
	h.seq.processEvent(ev)
}

// connect brings the harness to Idle on BTC with the subscription acknowledged.
func (h *harness) connect() {
	h.control(&event.ConnectionEvent{Connected: true, SessionID: "test"})
	h.feed(ack(domain.AckSubscribed, domain.InstrumentBTC))
}

func (h *harness) lastView(t *testing.T) domain.BookView {
	t.Helper()
	if len(h.views) == 0 {
		t.Fatal("Expected at least one published view")
	}
	return h.views[len(h.views)-1]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// lv builds raw updates from price/size string pairs.
func lv(pairs ...string) []domain.RawLevelUpdate {
	out := make([]domain.RawLevelUpdate, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.RawLevelUpdate{Price: dec(pairs[i]), Size: dec(pairs[i+1])})
	}
	return out
}

func snapshot(inst domain.Instrument, bids, asks []domain.RawLevelUpdate) *event.SnapshotEvent {
	return &event.SnapshotEvent{Instrument: inst, Bids: bids, Asks: asks}
}

func delta(inst domain.Instrument, bids, asks []domain.RawLevelUpdate) *event.DeltaEvent {
	return &event.DeltaEvent{Instrument: inst, Bids: bids, Asks: asks}
}

func ack(kind domain.AckKind, insts ...domain.Instrument) *event.AckEvent {
	return &event.AckEvent{Kind: kind, Instruments: insts}
}
