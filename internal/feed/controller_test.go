package feed

import (
	"errors"
	"testing"
	"time"

	"orderbook_go/internal/domain"
)

type sentRequest struct {
	action string
	inst   domain.Instrument
}

type fakeRequester struct {
	sent []sentRequest
	err  error
}

func (f *fakeRequester) Subscribe(inst domain.Instrument) error {
	f.sent = append(f.sent, sentRequest{"subscribe", inst})
	return f.err
}

func (f *fakeRequester) Unsubscribe(inst domain.Instrument) error {
	f.sent = append(f.sent, sentRequest{"unsubscribe", inst})
	return f.err
}

func (f *fakeRequester) last() sentRequest {
	if len(f.sent) == 0 {
		return sentRequest{}
	}
	return f.sent[len(f.sent)-1]
}

var t0 = time.Unix(1_700_000_000, 0)

func newConnected(t *testing.T, cfg Config) (*Controller, *fakeRequester) {
	t.Helper()
	req := &fakeRequester{}
	c := NewController(domain.InstrumentBTC, cfg)
	c.BindRequester(req)
	c.OnConnected(t0)
	c.OnAck(domain.AckSubscribed, []domain.Instrument{domain.InstrumentBTC}, t0)
	req.sent = nil
	return c, req
}

func TestController_SubscribesOnConnect(t *testing.T) {
	req := &fakeRequester{}
	c := NewController(domain.InstrumentETH, Config{})
	c.BindRequester(req)

	c.OnConnected(t0)

	if got := req.last(); got != (sentRequest{"subscribe", domain.InstrumentETH}) {
		t.Errorf("Expected subscribe ETH, got %+v", got)
	}
	if c.Phase() != PhaseIdle {
		t.Errorf("Expected idle, got %s", c.Phase())
	}
	if err := c.AcceptsMarketData(domain.InstrumentETH); err != nil {
		t.Errorf("Expected ETH data accepted, got %v", err)
	}
}

func TestController_FullSwitch(t *testing.T) {
	c, req := newConnected(t, Config{})

	if !c.RequestSwitch(domain.InstrumentETH, t0) {
		t.Fatal("Expected switch to start")
	}
	if c.Phase() != PhaseUnsubscribing {
		t.Fatalf("Expected unsubscribing, got %s", c.Phase())
	}
	if got := req.last(); got != (sentRequest{"unsubscribe", domain.InstrumentBTC}) {
		t.Errorf("Expected unsubscribe BTC, got %+v", got)
	}
	if c.Tracking() != domain.InstrumentETH {
		t.Errorf("Expected tracking ETH, got %s", c.Tracking())
	}

	for _, inst := range []domain.Instrument{domain.InstrumentBTC, domain.InstrumentETH} {
		if err := c.AcceptsMarketData(inst); !errors.Is(err, domain.ErrStaleDuringTransition) {
			t.Errorf("Expected %s data to be stale while unsubscribing, got %v", inst, err)
		}
	}

	if !c.OnAck(domain.AckUnsubscribed, []domain.Instrument{domain.InstrumentBTC}, t0) {
		t.Fatal("Expected unsubscribed ack to advance")
	}
	if c.Phase() != PhaseResubscribing {
		t.Fatalf("Expected resubscribing, got %s", c.Phase())
	}
	if got := req.last(); got != (sentRequest{"subscribe", domain.InstrumentETH}) {
		t.Errorf("Expected subscribe ETH, got %+v", got)
	}
	if err := c.AcceptsMarketData(domain.InstrumentETH); !errors.Is(err, domain.ErrStaleDuringTransition) {
		t.Errorf("Expected ETH data to be stale while resubscribing, got %v", err)
	}

	if !c.OnAck(domain.AckSubscribed, []domain.Instrument{domain.InstrumentETH}, t0) {
		t.Fatal("Expected subscribed ack to complete the switch")
	}
	if c.Phase() != PhaseIdle || c.Current() != domain.InstrumentETH {
		t.Errorf("Expected idle on ETH, got %s on %s", c.Phase(), c.Current())
	}
	if err := c.AcceptsMarketData(domain.InstrumentETH); err != nil {
		t.Errorf("Expected ETH data accepted, got %v", err)
	}
	if err := c.AcceptsMarketData(domain.InstrumentBTC); !errors.Is(err, domain.ErrStaleDuringTransition) {
		t.Errorf("Expected BTC data rejected after switch, got %v", err)
	}
	if _, _, ok := c.Awaiting(); ok {
		t.Error("Expected no pending request after switch")
	}
}

func TestController_IgnoredRequests(t *testing.T) {
	t.Run("same instrument", func(t *testing.T) {
		c, req := newConnected(t, Config{})
		if c.RequestSwitch(domain.InstrumentBTC, t0) {
			t.Error("Expected switch to the tracked instrument to be ignored")
		}
		if len(req.sent) != 0 {
			t.Errorf("Expected no requests, got %+v", req.sent)
		}
	})

	t.Run("mid switch", func(t *testing.T) {
		c, req := newConnected(t, Config{})
		c.RequestSwitch(domain.InstrumentETH, t0)
		if c.RequestSwitch(domain.InstrumentETH, t0) || c.Toggle(t0) {
			t.Error("Expected requests during a switch to be ignored")
		}
		if len(req.sent) != 1 {
			t.Errorf("Expected exactly one request, got %+v", req.sent)
		}
	})

	t.Run("disconnected", func(t *testing.T) {
		c := NewController(domain.InstrumentBTC, Config{})
		c.BindRequester(&fakeRequester{})
		if c.RequestSwitch(domain.InstrumentETH, t0) {
			t.Error("Expected switch while disconnected to be ignored")
		}
	})

	t.Run("unknown instrument", func(t *testing.T) {
		c, _ := newConnected(t, Config{})
		if c.RequestSwitch(domain.Instrument("DOGE"), t0) {
			t.Error("Expected unknown instrument to be ignored")
		}
	})
}

func TestController_Toggle(t *testing.T) {
	c, req := newConnected(t, Config{})
	if !c.Toggle(t0) {
		t.Fatal("Expected toggle to start a switch")
	}
	if c.Tracking() != domain.InstrumentETH {
		t.Errorf("Expected toggle from BTC to target ETH, got %s", c.Tracking())
	}
	if got := req.last(); got.action != "unsubscribe" {
		t.Errorf("Expected unsubscribe, got %+v", got)
	}
}

func TestController_MismatchedAcksIgnored(t *testing.T) {
	c, _ := newConnected(t, Config{})
	c.RequestSwitch(domain.InstrumentETH, t0)

	if c.OnAck(domain.AckSubscribed, []domain.Instrument{domain.InstrumentETH}, t0) {
		t.Error("Expected subscribed ack while unsubscribing to be ignored")
	}
	if c.OnAck(domain.AckUnsubscribed, []domain.Instrument{domain.InstrumentETH}, t0) {
		t.Error("Expected unsubscribed ack for the wrong instrument to be ignored")
	}
	if c.Phase() != PhaseUnsubscribing {
		t.Errorf("Expected still unsubscribing, got %s", c.Phase())
	}
}

func TestController_ReconnectMidSwitch(t *testing.T) {
	c, req := newConnected(t, Config{})
	c.RequestSwitch(domain.InstrumentETH, t0)

	c.OnDisconnected()
	c.OnConnected(t0)

	if c.Phase() != PhaseResubscribing {
		t.Fatalf("Expected reconnect to skip to resubscribing, got %s", c.Phase())
	}
	if got := req.last(); got != (sentRequest{"subscribe", domain.InstrumentETH}) {
		t.Errorf("Expected subscribe ETH, got %+v", got)
	}
	c.OnAck(domain.AckSubscribed, nil, t0)
	if c.Phase() != PhaseIdle || c.Current() != domain.InstrumentETH {
		t.Errorf("Expected idle on ETH, got %s on %s", c.Phase(), c.Current())
	}
}

func TestController_Resync(t *testing.T) {
	c, req := newConnected(t, Config{})

	if !c.Resync(t0) {
		t.Fatal("Expected resync to start while idle")
	}
	if got := req.last(); got != (sentRequest{"unsubscribe", domain.InstrumentBTC}) {
		t.Errorf("Expected unsubscribe BTC, got %+v", got)
	}
	if c.Resync(t0) {
		t.Error("Expected second resync to be ignored mid-exchange")
	}

	c.OnAck(domain.AckUnsubscribed, nil, t0)
	c.OnAck(domain.AckSubscribed, nil, t0)
	if c.Phase() != PhaseIdle || c.Current() != domain.InstrumentBTC {
		t.Errorf("Expected idle on BTC, got %s on %s", c.Phase(), c.Current())
	}
}

func TestController_CheckTimeout(t *testing.T) {
	cfg := Config{
		AckTimeout: time.Second,
		MaxRetries: 2,
		Backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}
	c, req := newConnected(t, cfg)
	c.RequestSwitch(domain.InstrumentETH, t0)

	if err := c.CheckTimeout(t0.Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("Expected no timeout before deadline, got %v", err)
	}
	if len(req.sent) != 1 {
		t.Fatalf("Expected no resend before deadline, got %d requests", len(req.sent))
	}

	// attempt 2: deadline = +1s timeout +1s backoff
	now := t0.Add(time.Second)
	if err := c.CheckTimeout(now); err != nil {
		t.Fatalf("Expected resend, got %v", err)
	}
	if len(req.sent) != 2 || req.last() != (sentRequest{"unsubscribe", domain.InstrumentBTC}) {
		t.Fatalf("Expected unsubscribe resent, got %+v", req.sent)
	}
	if err := c.CheckTimeout(now.Add(1500 * time.Millisecond)); err != nil || len(req.sent) != 2 {
		t.Fatalf("Expected backoff to delay the next resend, got err=%v sent=%d", err, len(req.sent))
	}

	// attempt 3: deadline = +1s timeout +2s backoff
	now = now.Add(2 * time.Second)
	if err := c.CheckTimeout(now); err != nil {
		t.Fatalf("Expected second resend, got %v", err)
	}
	if len(req.sent) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(req.sent))
	}

	now = now.Add(3 * time.Second)
	err := c.CheckTimeout(now)
	if !errors.Is(err, domain.ErrStuckTransition) {
		t.Fatalf("Expected ErrStuckTransition, got %v", err)
	}
	if c.Phase() != PhaseUnsubscribing {
		t.Errorf("Expected phase kept for reconnect recovery, got %s", c.Phase())
	}
	if err := c.CheckTimeout(now.Add(time.Hour)); err != nil {
		t.Errorf("Expected watchdog disarmed after giving up, got %v", err)
	}
}

func TestController_CheckTimeoutIdleWhileDisconnected(t *testing.T) {
	c, _ := newConnected(t, Config{AckTimeout: time.Second})
	c.RequestSwitch(domain.InstrumentETH, t0)
	c.OnDisconnected()

	if err := c.CheckTimeout(t0.Add(time.Hour)); err != nil {
		t.Errorf("Expected no timeout while disconnected, got %v", err)
	}
}

func TestController_SendErrorStillTransitions(t *testing.T) {
	c, req := newConnected(t, Config{})
	req.err = domain.NewNetworkError("write", errors.New("broken pipe"))

	if !c.RequestSwitch(domain.InstrumentETH, t0) {
		t.Fatal("Expected switch to start even if the write fails")
	}
	if action, inst, ok := c.Awaiting(); !ok || action != "unsubscribe" || inst != domain.InstrumentBTC {
		t.Errorf("Expected pending unsubscribe BTC, got %s %s %v", action, inst, ok)
	}
}
