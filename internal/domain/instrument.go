package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument is a tradeable ticker tracked by the book.
type Instrument string

const (
	InstrumentBTC Instrument = "BTC"
	InstrumentETH Instrument = "ETH"
)

type instrumentSpec struct {
	productID string
	tick      decimal.Decimal
}

// instrumentTable is fixed at build time. Tick increments must never change
// while a book for the instrument is live.
var instrumentTable = map[Instrument]instrumentSpec{
	InstrumentBTC: {productID: "PI_XBTUSD", tick: decimal.RequireFromString("0.5")},
	InstrumentETH: {productID: "PI_ETHUSD", tick: decimal.RequireFromString("0.05")},
}

// ParseInstrument accepts a ticker ("btc", "ETH") or a feed product id ("PI_XBTUSD").
func ParseInstrument(s string) (Instrument, error) {
	s = strings.TrimSpace(s)
	if inst := Instrument(strings.ToUpper(s)); inst.Valid() {
		return inst, nil
	}
	if inst, ok := InstrumentFromProductID(s); ok {
		return inst, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
}

// InstrumentFromProductID maps a feed product id back to its instrument.
func InstrumentFromProductID(productID string) (Instrument, bool) {
	for inst, spec := range instrumentTable {
		if strings.EqualFold(spec.productID, productID) {
			return inst, true
		}
	}
	return "", false
}

// Instruments returns every supported instrument in a stable order.
func Instruments() []Instrument {
	out := make([]Instrument, 0, len(instrumentTable))
	for inst := range instrumentTable {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether the instrument is in the build-time table.
func (i Instrument) Valid() bool {
	_, ok := instrumentTable[i]
	return ok
}

// ProductID returns the feed product id, or "" for an unknown instrument.
func (i Instrument) ProductID() string {
	return instrumentTable[i].productID
}

// TickIncrement returns the minimum price step used to walk the price grid.
func (i Instrument) TickIncrement() decimal.Decimal {
	return instrumentTable[i].tick
}

// Other returns the instrument a toggle switches to.
func (i Instrument) Other() Instrument {
	if i == InstrumentBTC {
		return InstrumentETH
	}
	return InstrumentBTC
}

func (i Instrument) String() string {
	return string(i)
}
