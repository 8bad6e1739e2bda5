package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side selects the sort and grid-walk direction of one half of the book.
type Side int

const (
	SideBid Side = iota + 1
	SideAsk
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// Ahead reports whether price a ranks ahead of price b on this side
// (higher for bids, lower for asks).
func (s Side) Ahead(a, b decimal.Decimal) bool {
	if s == SideBid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// RawLevelUpdate is one (price, size) pair from the wire.
// A zero size removes the level; any other size is the absolute resting size.
type RawLevelUpdate struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// UnmarshalJSON decodes the feed's [price, size] array form.
func (u *RawLevelUpdate) UnmarshalJSON(b []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: level must be [price, size], got %d values", ErrMalformedMessage, len(pair))
	}
	u.Price, u.Size = pair[0], pair[1]
	return nil
}

// MarshalJSON encodes the update back into [price, size].
func (u RawLevelUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]decimal.Decimal{u.Price, u.Size})
}

// Validate rejects non-positive prices and negative sizes.
func (u RawLevelUpdate) Validate() error {
	if !u.Price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", ErrMalformedMessage, u.Price)
	}
	if u.Size.IsNegative() {
		return fmt.Errorf("%w: negative size %s at %s", ErrMalformedMessage, u.Size, u.Price)
	}
	return nil
}

// PriceLevel is one ranked price point. Total is the cumulative size from
// the top of book down to and including this level.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Total decimal.Decimal `json:"total"`
}

// BookState is the ranked view of one instrument.
// Slices are never mutated after the state is built, so copies are safe to share.
type BookState struct {
	Instrument Instrument      `json:"instrument"`
	Bids       []PriceLevel    `json:"bids"`
	Asks       []PriceLevel    `json:"asks"`
	Spread     decimal.Decimal `json:"spread"`
	MaxTotal   decimal.Decimal `json:"max_total"` // deepest retained total across both sides
}

// BestBid returns the top bid level.
func (b BookState) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level.
func (b BookState) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Crossed reports a negative spread, which only malformed feed data can produce.
func (b BookState) Crossed() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0 && b.Spread.IsNegative()
}

// Limit returns a copy of the state keeping at most rows levels per side.
func (b BookState) Limit(rows int) BookState {
	if rows <= 0 {
		return b
	}
	if len(b.Bids) > rows {
		b.Bids = b.Bids[:rows:rows]
	}
	if len(b.Asks) > rows {
		b.Asks = b.Asks[:rows:rows]
	}
	return b
}

// FeedStatus describes whether a published book can be trusted as current.
type FeedStatus string

const (
	StatusLive             FeedStatus = "live"              // book belongs to the tracked instrument
	StatusSwitching        FeedStatus = "switching"         // unsubscribe/resubscribe in flight, book frozen
	StatusAwaitingSnapshot FeedStatus = "awaiting_snapshot" // subscribed, no snapshot for the tracked instrument yet
)

// BookView is the read-only value handed to the presentation layer.
type BookView struct {
	State     BookState  `json:"book"`
	Tracking  Instrument `json:"tracking"`
	Status    FeedStatus `json:"status"`
	Crossed   bool       `json:"crossed"`
	Connected bool       `json:"connected"`
	Seq       uint64     `json:"seq"`
	UpdatedAt time.Time  `json:"updated_at"`
}
