// Package book builds and maintains the ranked price-level view of one
// instrument: snapshot aggregation, delta merging over the tick grid, and the
// owning Manager that truncates and derives spread.
package book

import (
	"fmt"
	"sort"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Aggregate ranks a raw snapshot side and attaches cumulative totals.
// The input slice is left untouched.
func Aggregate(raw []domain.RawLevelUpdate, side domain.Side) ([]domain.PriceLevel, error) {
	sorted, err := rankUpdates(raw, side)
	if err != nil {
		return nil, err
	}

	levels := make([]domain.PriceLevel, 0, len(sorted))
	total := decimal.Zero
	for _, u := range sorted {
		total = total.Add(u.Size)
		levels = append(levels, domain.PriceLevel{Price: u.Price, Size: u.Size, Total: total})
	}
	return levels, nil
}

// rankUpdates returns a sorted copy of raw in walk order for side.
func rankUpdates(raw []domain.RawLevelUpdate, side domain.Side) ([]domain.RawLevelUpdate, error) {
	sorted := make([]domain.RawLevelUpdate, len(raw))
	copy(sorted, raw)
	sort.Slice(sorted, func(i, j int) bool {
		return side.Ahead(sorted[i].Price, sorted[j].Price)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Price.Equal(sorted[i-1].Price) {
			return nil, fmt.Errorf("%w: %s %s", domain.ErrDuplicatePrice, side, sorted[i].Price)
		}
	}
	return sorted, nil
}
