package book

import (
	"fmt"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// DefaultPricePrecision is the number of decimal places grid prices are rounded to.
	DefaultPricePrecision int32 = 2

	// MaxGridSteps bounds a single merge walk.
	MaxGridSteps = 1_000_000
)

// RoundPrice rounds p half away from zero to precision decimal places.
func RoundPrice(p decimal.Decimal, precision int32) decimal.Decimal {
	return p.Round(precision)
}

// grid walks from start towards end in tick steps, downward for bids and
// upward for asks. Every visited price is rounded so repeated steps never
// drift off the tick lattice.
type grid struct {
	side      domain.Side
	precision int32
	step      decimal.Decimal
	end       decimal.Decimal
	level     decimal.Decimal
	started   bool
}

func newGrid(start, end, tick decimal.Decimal, side domain.Side, precision int32) (*grid, error) {
	if !tick.IsPositive() || !RoundPrice(tick, precision).Equal(tick) {
		return nil, fmt.Errorf("%w: %s at precision %d", domain.ErrInvalidTick, tick, precision)
	}
	steps := end.Sub(start).Abs().Div(tick)
	if steps.GreaterThan(decimal.NewFromInt(MaxGridSteps)) {
		return nil, fmt.Errorf("%w: %s to %s by %s", domain.ErrGridTooWide, start, end, tick)
	}

	step := tick
	if side == domain.SideBid {
		step = tick.Neg()
	}
	return &grid{
		side:      side,
		precision: precision,
		step:      step,
		end:       end,
		level:     RoundPrice(start, precision),
	}, nil
}

// next advances to the following grid price. It returns false once the walk
// has moved past end.
func (g *grid) next() (decimal.Decimal, bool) {
	if g.started {
		g.level = RoundPrice(g.level.Add(g.step), g.precision)
	}
	g.started = true
	if g.side.Ahead(g.end, g.level) {
		return decimal.Decimal{}, false
	}
	return g.level, true
}
