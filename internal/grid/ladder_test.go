package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
	"gridcore/internal/pricing"
)

func testConfig() core.GridConfig {
	return core.GridConfig{
		GridCount:          50,
		GridStep:           decimal.NewFromFloat(0.2),
		RebalanceThreshold: decimal.NewFromFloat(0.3),
		TickSize:           decimal.NewFromFloat(0.1),
	}
}

func TestBuildProducesSortedCorrectLadder(t *testing.T) {
	l := New(testConfig())
	l.Build(decimal.NewFromInt(100000))

	require.True(t, l.IsSorted())
	require.True(t, l.IsGridCorrect())
	require.Len(t, l.Levels(), 51)

	buy, sell, wait := 0, 0, 0
	for _, lvl := range l.Levels() {
		switch lvl.Side {
		case core.SideBuy:
			buy++
		case core.SideSell:
			sell++
		case core.SideWait:
			wait++
		}
	}
	require.Equal(t, 25, buy)
	require.Equal(t, 25, sell)
	require.Equal(t, 1, wait)
}

func TestBuildIsIdempotent(t *testing.T) {
	l1 := New(testConfig())
	l1.Build(decimal.NewFromInt(100000))
	l2 := New(testConfig())
	l2.Build(decimal.NewFromInt(100000))

	require.Equal(t, l1.Levels(), l2.Levels())
}

func TestBuildPricesAreExactTickMultiples(t *testing.T) {
	cfg := testConfig()
	l := New(cfg)
	l.Build(decimal.NewFromInt(100000))

	for _, lvl := range l.Levels() {
		q := lvl.Price.Div(cfg.TickSize)
		require.True(t, q.Equal(q.Round(0)), "price %s not a tick multiple", lvl.Price)
	}
}

func TestAnchorPriceSurvivesFills(t *testing.T) {
	l := New(testConfig())
	l.Build(decimal.NewFromInt(100000))
	anchor := l.AnchorPrice()

	l.UpdateOnFill(decimal.NewFromInt(100100), decimal.NewFromInt(100200))

	require.True(t, l.AnchorPrice().Equal(anchor))
}

func TestUpdateOnFillKeepsLadderValid(t *testing.T) {
	l := New(testConfig())
	l.Build(decimal.NewFromInt(100000))

	prices := []decimal.Decimal{
		decimal.NewFromInt(100100),
		decimal.NewFromInt(99950),
		decimal.NewFromInt(100300),
	}
	for _, p := range prices {
		l.UpdateOnFill(p, p)
		require.True(t, l.IsSorted())
	}
}

func TestRebuildOnOutOfBoundsPreservesAnchor(t *testing.T) {
	l := New(testConfig())
	l.Build(decimal.NewFromInt(100000))
	anchor := l.AnchorPrice()

	// Far outside the ladder's ~10% range.
	l.UpdateOnFill(decimal.NewFromInt(0), decimal.NewFromInt(150000))

	require.True(t, l.AnchorPrice().Equal(anchor))
	require.False(t, l.NeedsRecenter(decimal.NewFromInt(150000)))
}

func TestAllOneKindFailsGridCorrect(t *testing.T) {
	l := New(testConfig())
	l.levels = []core.GridLevel{
		{Price: decimal.NewFromInt(1), Side: core.SideBuy},
		{Price: decimal.NewFromInt(2), Side: core.SideBuy},
	}
	require.False(t, l.IsGridCorrect())
}

func TestTooCloseThreshold(t *testing.T) {
	threshold := decimal.NewFromFloat(0.05)
	require.True(t, pricing.TooClose(decimal.NewFromInt(100000), decimal.NewFromInt(100010), threshold))
	require.False(t, pricing.TooClose(decimal.NewFromInt(100000), decimal.NewFromInt(100200), threshold))
}
