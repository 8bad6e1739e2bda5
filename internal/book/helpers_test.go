package book

import (
	"testing"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// raw builds updates from alternating price, size strings.
func raw(pairs ...string) []domain.RawLevelUpdate {
	out := make([]domain.RawLevelUpdate, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.RawLevelUpdate{Price: dec(pairs[i]), Size: dec(pairs[i+1])})
	}
	return out
}

// levels builds ranked levels from price, size, total triples.
func levels(triples ...string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(triples)/3)
	for i := 0; i+2 < len(triples); i += 3 {
		out = append(out, domain.PriceLevel{Price: dec(triples[i]), Size: dec(triples[i+1]), Total: dec(triples[i+2])})
	}
	return out
}

// requireLevels compares by decimal value, ignoring exponent differences.
func requireLevels(t *testing.T, want, got []domain.PriceLevel) {
	t.Helper()
	require.Len(t, got, len(want), "got %v", got)
	for i := range want {
		assert.Truef(t, want[i].Price.Equal(got[i].Price), "level %d price: want %s, got %s", i, want[i].Price, got[i].Price)
		assert.Truef(t, want[i].Size.Equal(got[i].Size), "level %d size: want %s, got %s", i, want[i].Size, got[i].Size)
		assert.Truef(t, want[i].Total.Equal(got[i].Total), "level %d total: want %s, got %s", i, want[i].Total, got[i].Total)
	}
}

// checkRanked asserts strict ordering and prefix-sum totals for one side.
func checkRanked(t *testing.T, side domain.Side, got []domain.PriceLevel) {
	t.Helper()
	total := decimal.Zero
	for i, lvl := range got {
		if i > 0 {
			assert.Truef(t, side.Ahead(got[i-1].Price, lvl.Price), "%s level %d (%s) not ranked behind %s", side, i, lvl.Price, got[i-1].Price)
		}
		assert.Truef(t, lvl.Size.IsPositive(), "%s level %d has non-positive size %s", side, i, lvl.Size)
		total = total.Add(lvl.Size)
		assert.Truef(t, total.Equal(lvl.Total), "%s level %d total: want %s, got %s", side, i, total, lvl.Total)
	}
}
