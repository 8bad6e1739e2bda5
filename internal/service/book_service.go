package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
)

// Submitter hands events to the sequencer.
type Submitter interface {
	Submit(ctx context.Context, ev event.Event) error
}

// BookService is the read side for presentation: it keeps the last
// published view and forwards switch requests to the sequencer.
type BookService struct {
	mu        sync.RWMutex
	view      domain.BookView
	submitter Submitter
	prefs     domain.PreferenceStore
	saved     domain.Instrument
	logger    *slog.Logger
}

// NewBookService creates a new BookService. prefs may be nil.
func NewBookService(submitter Submitter, prefs domain.PreferenceStore) *BookService {
	return &BookService{
		submitter: submitter,
		prefs:     prefs,
		logger:    slog.Default().With("module", "service"),
	}
}

// Publish stores view. It is the sequencer's update callback and runs on its goroutine.
func (s *BookService) Publish(view domain.BookView) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	if view.Status == domain.StatusLive && view.State.Instrument != s.saved {
		s.persist(view.State.Instrument)
	}
}

// persist remembers inst as the next startup default. Failures are only logged.
func (s *BookService) persist(inst domain.Instrument) {
	s.saved = inst
	if s.prefs == nil {
		return
	}
	if err := s.prefs.SaveInstrument(inst); err != nil {
		s.logger.Warn("Failed to persist instrument", slog.String("instrument", inst.String()), slog.Any("error", err))
	}
}

// View returns the last published view.
func (s *BookService) View() domain.BookView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Rows returns the last published view with at most rows levels per side.
func (s *BookService) Rows(rows int) domain.BookView {
	view := s.View()
	view.State = view.State.Limit(rows)
	return view
}

// RequestSwitch asks the feed to track inst. Requesting the instrument
// already tracked is a no-op.
func (s *BookService) RequestSwitch(ctx context.Context, inst domain.Instrument) error {
	if !inst.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSymbol, inst)
	}
	return s.requestSwitch(ctx, &event.SwitchRequestEvent{Target: inst})
}

// Toggle switches to the other instrument.
func (s *BookService) Toggle(ctx context.Context) error {
	return s.requestSwitch(ctx, &event.SwitchRequestEvent{Toggle: true})
}

func (s *BookService) requestSwitch(ctx context.Context, ev *event.SwitchRequestEvent) error {
	if s.View().Status == domain.StatusSwitching {
		return domain.ErrSwitchPending
	}

	ev.Result = make(chan bool, 1)
	if err := s.submitter.Submit(ctx, ev); err != nil {
		return err
	}

	var started bool
	select {
	case started = <-ev.Result:
	case <-ctx.Done():
		return ctx.Err()
	}
	if started {
		return nil
	}

	view := s.View()
	switch {
	case view.Status == domain.StatusSwitching:
		return domain.ErrSwitchPending
	case !view.Connected:
		return domain.NewNetworkError("switch", domain.ErrConnectionFailed)
	}
	return nil // already tracking the target
}
