package book

import (
	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Merge folds a delta batch into an existing ranked side using the default
// price precision. See MergeWithPrecision.
func Merge(existing []domain.PriceLevel, incoming []domain.RawLevelUpdate, side domain.Side, tick decimal.Decimal) ([]domain.PriceLevel, error) {
	return MergeWithPrecision(existing, incoming, side, tick, DefaultPricePrecision)
}

// MergeWithPrecision walks the tick grid spanning both existing and incoming,
// consuming each sequence front to back. A visited price takes the incoming
// size when the batch carries it (zero removes the level), otherwise keeps the
// existing size. Cumulative totals are rebuilt from the top of book.
//
// Neither input is modified; the result is a freshly allocated slice.
func MergeWithPrecision(existing []domain.PriceLevel, incoming []domain.RawLevelUpdate, side domain.Side, tick decimal.Decimal, precision int32) ([]domain.PriceLevel, error) {
	updates, err := rankUpdates(incoming, side)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 && len(updates) == 0 {
		return nil, nil
	}

	start, end := span(existing, updates, side)
	g, err := newGrid(start, end, tick, side, precision)
	if err != nil {
		return nil, err
	}

	m := &merge{
		side:      side,
		precision: precision,
		existing:  existing,
		updates:   updates,
		out:       make([]domain.PriceLevel, 0, len(existing)+len(updates)),
		total:     decimal.Zero,
	}
	for level, ok := g.next(); ok; level, ok = g.next() {
		m.visit(level)
	}
	// Off-grid prices inside the span are flushed in rank order rather than lost.
	m.visit(end)

	return m.out, nil
}

// span returns the first and last grid prices covering both sequences.
func span(existing []domain.PriceLevel, updates []domain.RawLevelUpdate, side domain.Side) (start, end decimal.Decimal) {
	first := true
	consider := func(head, tail decimal.Decimal) {
		if first || side.Ahead(head, start) {
			start = head
		}
		if first || side.Ahead(end, tail) {
			end = tail
		}
		first = false
	}
	if len(existing) > 0 {
		consider(existing[0].Price, existing[len(existing)-1].Price)
	}
	if len(updates) > 0 {
		consider(updates[0].Price, updates[len(updates)-1].Price)
	}
	return start, end
}

// merge holds read cursors over the two ranked inputs.
type merge struct {
	side      domain.Side
	precision int32

	existing []domain.PriceLevel
	ei       int
	updates  []domain.RawLevelUpdate
	ui       int

	out   []domain.PriceLevel
	total decimal.Decimal
}

// visit consumes every front whose rounded price is at level or was already
// passed by the walk.
func (m *merge) visit(level decimal.Decimal) {
	for {
		var upPrice, exPrice decimal.Decimal
		upReached, exReached := false, false

		if m.ui < len(m.updates) {
			upPrice = RoundPrice(m.updates[m.ui].Price, m.precision)
			upReached = !m.side.Ahead(level, upPrice)
		}
		if m.ei < len(m.existing) {
			exPrice = RoundPrice(m.existing[m.ei].Price, m.precision)
			exReached = !m.side.Ahead(level, exPrice)
		}

		switch {
		case !upReached && !exReached:
			return
		case upReached && exReached && upPrice.Equal(exPrice):
			m.ei++
			m.applyUpdate()
		case upReached && (!exReached || m.side.Ahead(upPrice, exPrice)):
			m.applyUpdate()
		default:
			m.carryExisting()
		}
	}
}

func (m *merge) applyUpdate() {
	u := m.updates[m.ui]
	m.ui++
	if u.Size.IsZero() {
		return
	}
	m.emit(u.Price, u.Size)
}

func (m *merge) carryExisting() {
	lvl := m.existing[m.ei]
	m.ei++
	m.emit(lvl.Price, lvl.Size)
}

func (m *merge) emit(price, size decimal.Decimal) {
	m.total = m.total.Add(size)
	m.out = append(m.out, domain.PriceLevel{Price: price, Size: size, Total: m.total})
}
