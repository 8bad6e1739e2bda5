// Package feed coordinates which instrument the market-data feed is
// subscribed to. Switching instruments is a two-step exchange with the
// venue (unsubscribe, then subscribe) and no book data is trusted while
// either step is unacknowledged.
package feed

import (
	"fmt"
	"log/slog"
	"time"

	"orderbook_go/internal/domain"
)

// Phase is the state of the subscription state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUnsubscribing
	PhaseResubscribing
)

// String returns the string representation of Phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUnsubscribing:
		return "unsubscribing"
	case PhaseResubscribing:
		return "resubscribing"
	default:
		return "unknown"
	}
}

const (
	DefaultAckTimeout = 5 * time.Second
	DefaultMaxRetries = 5
)

// Config tunes the acknowledgement watchdog.
type Config struct {
	AckTimeout time.Duration
	MaxRetries int
	// Backoff is added to AckTimeout before the nth resend. Nil means no extra delay.
	Backoff func(attempt int) time.Duration
}

type action int

const (
	actionSubscribe action = iota + 1
	actionUnsubscribe
)

func (a action) String() string {
	if a == actionSubscribe {
		return "subscribe"
	}
	return "unsubscribe"
}

// pendingRequest is the request whose acknowledgement we are waiting for.
type pendingRequest struct {
	action   action
	inst     domain.Instrument
	attempts int
	deadline time.Time
}

// Controller is the subscription state machine. Like book.Manager it is
// driven from the sequencer goroutine only and is not safe for concurrent use.
type Controller struct {
	cfg       Config
	requester domain.SubscriptionRequester
	logger    *slog.Logger

	phase     Phase
	current   domain.Instrument // Idle: tracked. Unsubscribing: the one being left.
	target    domain.Instrument // Unsubscribing/Resubscribing: the one being joined
	connected bool
	pending   *pendingRequest
}

// NewController starts Idle on the given instrument, disconnected.
func NewController(initial domain.Instrument, cfg Config) *Controller {
	if !initial.Valid() {
		initial = domain.InstrumentBTC
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Controller{
		cfg:     cfg,
		logger:  slog.Default().With("module", "feed"),
		phase:   PhaseIdle,
		current: initial,
	}
}

// BindRequester sets the transport used to send requests. Must be called before OnConnected.
func (c *Controller) BindRequester(r domain.SubscriptionRequester) {
	c.requester = r
}

// OnConnected handles a fresh connection. A new socket carries no
// subscriptions, so whatever we are heading for is (re)subscribed.
func (c *Controller) OnConnected(now time.Time) {
	c.connected = true
	switch c.phase {
	case PhaseIdle:
		c.send(actionSubscribe, c.current, now)
	case PhaseUnsubscribing:
		// Nothing left to unsubscribe from on the new socket.
		c.phase = PhaseResubscribing
		c.current = c.target
		c.send(actionSubscribe, c.target, now)
	case PhaseResubscribing:
		c.send(actionSubscribe, c.target, now)
	}
}

// OnDisconnected pauses the watchdog until the next OnConnected.
func (c *Controller) OnDisconnected() {
	c.connected = false
	c.pending = nil
}

// RequestSwitch starts a switch to target. It returns false, and does
// nothing, when disconnected, when a switch is already in flight or when
// target is already tracked.
func (c *Controller) RequestSwitch(target domain.Instrument, now time.Time) bool {
	if !target.Valid() || target == c.current {
		return false
	}
	return c.beginSwitch(target, now)
}

// Toggle switches to the other instrument.
func (c *Controller) Toggle(now time.Time) bool {
	return c.RequestSwitch(c.current.Other(), now)
}

// Resync leaves and rejoins the current instrument so the feed sends a
// fresh snapshot. Only acts while Idle; mid-switch a snapshot is coming anyway.
func (c *Controller) Resync(now time.Time) bool {
	return c.beginSwitch(c.current, now)
}

func (c *Controller) beginSwitch(target domain.Instrument, now time.Time) bool {
	if !c.connected || c.phase != PhaseIdle {
		return false
	}
	c.logger.Info("Switching instrument",
		slog.String("from", c.current.String()),
		slog.String("to", target.String()),
	)
	c.target = target
	c.phase = PhaseUnsubscribing
	c.send(actionUnsubscribe, c.current, now)
	return true
}

// OnAck advances the state machine on a feed acknowledgement. It reports
// whether the phase changed. Acks that do not match what we wait for are ignored.
func (c *Controller) OnAck(kind domain.AckKind, insts []domain.Instrument, now time.Time) bool {
	switch {
	case kind == domain.AckUnsubscribed && c.phase == PhaseUnsubscribing && covers(insts, c.current):
		c.phase = PhaseResubscribing
		c.current = c.target
		c.send(actionSubscribe, c.target, now)
		return true

	case kind == domain.AckSubscribed && c.phase == PhaseResubscribing && covers(insts, c.target):
		c.phase = PhaseIdle
		c.current = c.target
		c.target = ""
		c.pending = nil
		c.logger.Info("Instrument switch complete", slog.String("instrument", c.current.String()))
		return true

	case kind == domain.AckSubscribed && c.phase == PhaseIdle && covers(insts, c.current):
		c.pending = nil
		return false
	}

	c.logger.Debug("Ignoring acknowledgement",
		slog.String("kind", kind.String()),
		slog.String("phase", c.phase.String()),
		slog.Any("instruments", insts),
	)
	return false
}

// AcceptsMarketData reports whether a snapshot or delta for inst may touch the book.
func (c *Controller) AcceptsMarketData(inst domain.Instrument) error {
	if c.phase != PhaseIdle {
		return domain.ErrStaleDuringTransition
	}
	if inst != c.current {
		return fmt.Errorf("%w: got %s while tracking %s", domain.ErrStaleDuringTransition, inst, c.current)
	}
	return nil
}

// CheckTimeout resends an overdue request. Once retries are exhausted it
// returns ErrStuckTransition and stops; the caller is expected to recycle
// the connection, which restarts the exchange through OnConnected.
func (c *Controller) CheckTimeout(now time.Time) error {
	p := c.pending
	if p == nil || !c.connected || now.Before(p.deadline) {
		return nil
	}
	if p.attempts > c.cfg.MaxRetries {
		c.pending = nil
		return fmt.Errorf("%w: %s %s after %d attempts", domain.ErrStuckTransition, p.action, p.inst, p.attempts)
	}

	c.logger.Warn("Acknowledgement overdue, resending",
		slog.String("action", p.action.String()),
		slog.String("instrument", p.inst.String()),
		slog.Int("attempt", p.attempts),
	)
	c.transmit(p, now)
	return nil
}

// Phase returns the current state.
func (c *Controller) Phase() Phase { return c.phase }

// Current returns the instrument whose data is accepted while Idle.
func (c *Controller) Current() domain.Instrument { return c.current }

// Tracking returns the instrument the controller is heading for:
// the target during a switch, the current instrument otherwise.
func (c *Controller) Tracking() domain.Instrument {
	if c.phase != PhaseIdle {
		return c.target
	}
	return c.current
}

// Switching reports whether a switch is in flight.
func (c *Controller) Switching() bool { return c.phase != PhaseIdle }

// Connected reports the last known transport state.
func (c *Controller) Connected() bool { return c.connected }

// Awaiting returns the request still waiting for an acknowledgement.
func (c *Controller) Awaiting() (string, domain.Instrument, bool) {
	if c.pending == nil {
		return "", "", false
	}
	return c.pending.action.String(), c.pending.inst, true
}

func (c *Controller) send(a action, inst domain.Instrument, now time.Time) {
	p := &pendingRequest{action: a, inst: inst}
	c.pending = p
	c.transmit(p, now)
}

// transmit writes the request and arms its deadline. Write errors are only
// logged: the watchdog or the reconnect path retries.
func (c *Controller) transmit(p *pendingRequest, now time.Time) {
	p.attempts++
	delay := c.cfg.AckTimeout
	if c.cfg.Backoff != nil && p.attempts > 1 {
		delay += c.cfg.Backoff(p.attempts - 1)
	}
	p.deadline = now.Add(delay)

	if c.requester == nil {
		c.logger.Error("No requester bound, request not sent", slog.String("action", p.action.String()))
		return
	}

	var err error
	if p.action == actionSubscribe {
		err = c.requester.Subscribe(p.inst)
	} else {
		err = c.requester.Unsubscribe(p.inst)
	}
	if err != nil {
		c.logger.Warn("Subscription request failed",
			slog.String("action", p.action.String()),
			slog.String("instrument", p.inst.String()),
			slog.Any("error", err),
		)
	}
}

// covers treats an empty list as matching; some acks omit product ids.
func covers(insts []domain.Instrument, inst domain.Instrument) bool {
	if len(insts) == 0 {
		return true
	}
	for _, i := range insts {
		if i == inst {
			return true
		}
	}
	return false
}
