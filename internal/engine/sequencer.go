package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"orderbook_go/internal/book"
	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
	"orderbook_go/internal/feed"
	"orderbook_go/internal/infra"
)

// DefaultWatchdogInterval is how often pending subscription requests are checked.
const DefaultWatchdogInterval = 250 * time.Millisecond

// Sequencer is the core single-threaded event processor. Every book and
// subscription mutation happens on the Run goroutine.
type Sequencer struct {
	inbox   chan event.Event
	nextSeq uint64

	book    *book.Manager
	ctrl    *feed.Controller
	metrics *infra.Metrics

	// Boundary: used to notify the API or other systems of state changes
	onUpdate func(domain.BookView)
	// Called when a subscription request is abandoned; the transport should reconnect.
	onStuck func(error)

	watchdog time.Duration
	now      func() time.Time
	logger   *slog.Logger

	published uint64
	view      domain.BookView
	mu        sync.RWMutex // Used only for external reads (e.g. API)
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, mgr *book.Manager, ctrl *feed.Controller, metrics *infra.Metrics, onUpdate func(domain.BookView)) *Sequencer {
	if metrics == nil {
		metrics = &infra.Metrics{}
	}
	s := &Sequencer{
		inbox:    make(chan event.Event, inboxSize),
		nextSeq:  1,
		book:     mgr,
		ctrl:     ctrl,
		metrics:  metrics,
		onUpdate: onUpdate,
		watchdog: DefaultWatchdogInterval,
		now:      time.Now,
		logger:   slog.Default().With("module", "sequencer"),
	}
	s.view = s.buildView()
	return s
}

// SetStuckHandler registers the callback for abandoned subscription requests.
// Must be called before Run.
func (s *Sequencer) SetStuckHandler(fn func(error)) {
	s.onStuck = fn
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Submit enqueues ev, blocking until there is room or ctx ends.
func (s *Sequencer) Submit(ctx context.Context, ev event.Event) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	ticker := time.NewTicker(s.watchdog)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		case <-ticker.C:
			s.checkWatchdog()
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	start := time.Now()

	// 1. Sequence gap check. Control events carry no feed sequence.
	if seq := ev.GetSeq(); seq != 0 {
		if seq != s.nextSeq {
			s.handleGap(seq)
		}
		s.nextSeq = seq + 1
	}

	// 2. Logic dispatch
	switch e := ev.(type) {
	case *event.SnapshotEvent:
		s.handleSnapshot(e)
	case *event.DeltaEvent:
		s.handleDelta(e)
		event.ReleaseDeltaEvent(e)
	case *event.AckEvent:
		s.handleAck(e)
	case *event.SwitchRequestEvent:
		s.handleSwitchRequest(e)
	case *event.ConnectionEvent:
		s.handleConnection(e)
	default:
		s.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return
	}

	s.metrics.RecordEvent(time.Since(start).Nanoseconds())
}

// handleGap discards the book: a missed delta means it can no longer be trusted.
func (s *Sequencer) handleGap(got uint64) {
	s.logger.Warn("SEQUENCE_GAP_DETECTED",
		slog.Uint64("expected", s.nextSeq),
		slog.Uint64("got", got),
	)
	s.metrics.RecordSequenceGap()
	s.book.Reset()
	if s.ctrl.Resync(s.now()) {
		s.metrics.SetSwitchPending(true)
	}
	s.publish()
}

func (s *Sequencer) handleSnapshot(e *event.SnapshotEvent) {
	if err := s.ctrl.AcceptsMarketData(e.Instrument); err != nil {
		s.drop(infra.DropStale, e, err)
		return
	}
	if _, err := s.book.Initialise(e.Bids, e.Asks, e.Instrument); err != nil {
		s.drop(infra.DropRejected, e, err)
		return
	}
	s.metrics.RecordSnapshot()
	s.publish()
}

func (s *Sequencer) handleDelta(e *event.DeltaEvent) {
	if err := s.ctrl.AcceptsMarketData(e.Instrument); err != nil {
		s.drop(infra.DropStale, e, err)
		return
	}
	if inst, ok := s.book.Instrument(); !ok || inst != e.Instrument {
		s.drop(infra.DropOutOfSequence, e, domain.ErrOutOfSequenceDelta)
		return
	}
	if _, err := s.book.ApplyDelta(e.Bids, e.Asks); err != nil {
		if errors.Is(err, domain.ErrOutOfSequenceDelta) {
			s.drop(infra.DropOutOfSequence, e, err)
			return
		}
		// The book is kept but now misses an absolute size; a fresh snapshot replaces it.
		s.drop(infra.DropRejected, e, err)
		if s.ctrl.Resync(s.now()) {
			s.metrics.SetSwitchPending(true)
			s.publish()
		}
		return
	}
	s.metrics.RecordDelta()
	s.publish()
}

func (s *Sequencer) handleAck(e *event.AckEvent) {
	prev := s.ctrl.Current()
	if !s.ctrl.OnAck(e.Kind, e.Instruments, s.now()) {
		return
	}
	if !s.ctrl.Switching() {
		s.metrics.RecordSwitchCompleted()
		s.metrics.SetSwitchPending(false)
	}
	// The book stays frozen for the whole switch and is only dropped once
	// the new instrument is confirmed.
	if inst, ok := s.book.Instrument(); ok && !s.ctrl.Switching() && inst != s.ctrl.Current() {
		s.book.Reset()
	}
	if prev != s.ctrl.Current() {
		s.logger.Info("Tracking instrument", slog.String("instrument", s.ctrl.Current().String()))
	}
	s.publish()
}

func (s *Sequencer) handleSwitchRequest(e *event.SwitchRequestEvent) {
	var started bool
	if e.Toggle {
		started = s.ctrl.Toggle(s.now())
	} else {
		started = s.ctrl.RequestSwitch(e.Target, s.now())
	}

	if started {
		s.metrics.RecordSwitchStarted()
		s.metrics.SetSwitchPending(true)
		s.publish()
	} else {
		s.logger.Debug("Switch request ignored",
			slog.String("target", e.Target.String()),
			slog.Bool("toggle", e.Toggle),
			slog.String("phase", s.ctrl.Phase().String()),
		)
	}

	// Reply after publishing so the caller sees the view it caused.
	if e.Result != nil {
		select {
		case e.Result <- started:
		default:
		}
	}
}

func (s *Sequencer) handleConnection(e *event.ConnectionEvent) {
	if e.Connected {
		s.logger.Info("Feed connected", slog.String("session", e.SessionID))
		// Deltas on the new socket must wait for its snapshot.
		s.book.Reset()
		s.ctrl.OnConnected(s.now())
		s.metrics.SetSwitchPending(s.ctrl.Switching())
	} else {
		s.logger.Warn("Feed disconnected", slog.String("session", e.SessionID))
		s.ctrl.OnDisconnected()
	}
	s.publish()
}

func (s *Sequencer) checkWatchdog() {
	err := s.ctrl.CheckTimeout(s.now())
	if err == nil {
		return
	}
	s.logger.Error("Subscription stuck, recycling connection", slog.Any("error", err))
	s.metrics.RecordAckTimeout()
	if s.onStuck != nil {
		s.onStuck(err)
	}
}

func (s *Sequencer) drop(reason infra.DropReason, ev event.Event, err error) {
	s.metrics.RecordDrop(reason)
	attrs := []any{
		slog.String("reason", reason.String()),
		slog.String("type", ev.GetType().String()),
		slog.Uint64("seq", ev.GetSeq()),
		slog.Any("error", err),
	}
	if reason == infra.DropStale {
		s.logger.Debug("Dropped feed message", attrs...)
		return
	}
	s.logger.Warn("Dropped feed message", attrs...)
}

// publish rebuilds the external view and notifies the boundary.
func (s *Sequencer) publish() {
	s.published++
	view := s.buildView()
	if view.Crossed {
		s.metrics.RecordCrossed()
	}

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(view)
	}
}

func (s *Sequencer) buildView() domain.BookView {
	state, ready := s.book.State()

	status := domain.StatusLive
	switch {
	case s.ctrl.Switching():
		status = domain.StatusSwitching
	case !ready || state.Instrument != s.ctrl.Current():
		status = domain.StatusAwaitingSnapshot
	}

	return domain.BookView{
		State:     state,
		Tracking:  s.ctrl.Tracking(),
		Status:    status,
		Crossed:   state.Crossed(),
		Connected: s.ctrl.Connected(),
		Seq:       s.published,
		UpdatedAt: s.now(),
	}
}

// GetView returns the last published view (external read).
func (s *Sequencer) GetView() domain.BookView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// DumpState writes the internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	state, ready := s.book.State()
	data := struct {
		NextSeq   uint64           `json:"next_seq"`
		Phase     string           `json:"phase"`
		Tracking  string           `json:"tracking"`
		BookReady bool             `json:"book_ready"`
		Book      domain.BookState `json:"book"`
	}{
		NextSeq:   s.nextSeq,
		Phase:     s.ctrl.Phase().String(),
		Tracking:  s.ctrl.Tracking().String(),
		BookReady: ready,
		Book:      state,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
