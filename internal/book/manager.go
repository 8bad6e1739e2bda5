package book

import (
	"fmt"
	"log/slog"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultDepth is the number of levels retained per side.
const DefaultDepth = 50

// Config controls truncation and rounding of the managed book.
type Config struct {
	Depth          int
	PricePrecision int32
}

// Manager owns the authoritative BookState. It is not safe for concurrent
// use; the sequencer is its only caller.
type Manager struct {
	cfg    Config
	state  domain.BookState
	ready  bool
	logger *slog.Logger
}

// NewManager creates an empty manager. Zero config values fall back to defaults.
func NewManager(cfg Config) *Manager {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.PricePrecision <= 0 {
		cfg.PricePrecision = DefaultPricePrecision
	}
	return &Manager{
		cfg:    cfg,
		logger: slog.Default().With("module", "book"),
	}
}

// Initialise replaces the whole book with an aggregated snapshot.
// On error the previous state is kept.
func (m *Manager) Initialise(bids, asks []domain.RawLevelUpdate, inst domain.Instrument) (domain.BookState, error) {
	if !inst.Valid() {
		return m.state, fmt.Errorf("initialise: %w: %q", domain.ErrInvalidSymbol, inst)
	}
	newBids, err := Aggregate(bids, domain.SideBid)
	if err != nil {
		return m.state, fmt.Errorf("initialise bids: %w", err)
	}
	newAsks, err := Aggregate(asks, domain.SideAsk)
	if err != nil {
		return m.state, fmt.Errorf("initialise asks: %w", err)
	}
	return m.install(inst, newBids, newAsks), nil
}

// ApplyDelta merges non-empty delta sides into the current book. An empty
// side is left as is. Spread and max total are always recomputed.
func (m *Manager) ApplyDelta(bids, asks []domain.RawLevelUpdate) (domain.BookState, error) {
	if !m.ready {
		return m.state, domain.ErrOutOfSequenceDelta
	}

	tick := m.state.Instrument.TickIncrement()
	newBids, newAsks := m.state.Bids, m.state.Asks

	var err error
	if len(bids) > 0 {
		if newBids, err = MergeWithPrecision(m.state.Bids, bids, domain.SideBid, tick, m.cfg.PricePrecision); err != nil {
			return m.state, fmt.Errorf("merge bids: %w", err)
		}
	}
	if len(asks) > 0 {
		if newAsks, err = MergeWithPrecision(m.state.Asks, asks, domain.SideAsk, tick, m.cfg.PricePrecision); err != nil {
			return m.state, fmt.Errorf("merge asks: %w", err)
		}
	}
	return m.install(m.state.Instrument, newBids, newAsks), nil
}

// Reset discards the book. Deltas are refused until the next snapshot.
func (m *Manager) Reset() {
	m.state = domain.BookState{}
	m.ready = false
}

// State returns the current book and whether a snapshot has been installed.
func (m *Manager) State() (domain.BookState, bool) {
	return m.state, m.ready
}

// Instrument returns the instrument of the installed book.
func (m *Manager) Instrument() (domain.Instrument, bool) {
	return m.state.Instrument, m.ready
}

// Depth returns the number of levels retained per side.
func (m *Manager) Depth() int {
	return m.cfg.Depth
}

func (m *Manager) install(inst domain.Instrument, bids, asks []domain.PriceLevel) domain.BookState {
	bids = truncate(bids, m.cfg.Depth)
	asks = truncate(asks, m.cfg.Depth)

	state := domain.BookState{
		Instrument: inst,
		Bids:       bids,
		Asks:       asks,
		MaxTotal:   maxTotal(bids, asks),
	}
	state.Spread = spread(state, m.cfg.PricePrecision)
	if state.Crossed() {
		m.logger.Warn("Crossed book",
			slog.String("instrument", inst.String()),
			slog.String("spread", state.Spread.String()),
		)
	}

	m.state = state
	m.ready = true
	return state
}

func truncate(levels []domain.PriceLevel, depth int) []domain.PriceLevel {
	if len(levels) > depth {
		return levels[:depth:depth]
	}
	return levels
}

// spread is best ask minus best bid; zero while either side is empty.
func spread(state domain.BookState, precision int32) decimal.Decimal {
	bid, okBid := state.BestBid()
	ask, okAsk := state.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return RoundPrice(ask.Price.Sub(bid.Price), precision)
}

func maxTotal(bids, asks []domain.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	if len(bids) > 0 {
		total = decimal.Max(total, bids[len(bids)-1].Total)
	}
	if len(asks) > 0 {
		total = decimal.Max(total, asks[len(asks)-1].Total)
	}
	return total
}
