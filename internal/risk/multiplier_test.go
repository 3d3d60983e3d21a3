package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
)

func baseCfg() core.RiskConfig {
	return core.RiskConfig{
		MinLiqRatio:                     decimal.NewFromFloat(0.9),
		MaxLiqRatio:                     decimal.NewFromFloat(1.1),
		MaxMargin:                       decimal.NewFromInt(1000),
		MinTotalMargin:                  decimal.NewFromFloat(1.5),
		IncreaseSamePositionOnLowMargin: false,
	}
}

func linked(longMargin, shortMargin, longLiq, shortLiq decimal.Decimal) (*core.PositionState, *core.PositionState) {
	long := &core.PositionState{
		Direction:        core.DirectionLong,
		Size:             decimal.NewFromInt(1),
		EntryPrice:       decimal.NewFromInt(100000),
		Margin:           longMargin,
		LiquidationPrice: longLiq,
	}
	short := &core.PositionState{
		Direction:        core.DirectionShort,
		Size:             decimal.NewFromInt(1),
		EntryPrice:       decimal.NewFromInt(100000),
		Margin:           shortMargin,
		LiquidationPrice: shortLiq,
	}
	long.Opposite = short
	short.Opposite = long
	return long, short
}

func TestComputeWithoutOppositeFails(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	pos := &core.PositionState{EntryPrice: decimal.NewFromInt(100)}
	err := pair.Long.Compute(pos, baseCfg(), decimal.NewFromInt(100))
	require.Error(t, err)
}

func TestLongRuleHighLiqRatio(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	long, short := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromFloat(96000), decimal.NewFromInt(150000))
	lastClose := decimal.NewFromInt(100000)
	// liqRatio = 0.96 > 1.05*0.9=0.945
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionLong).Sell.Equal(d15))
}

func TestLongRuleLiqRatioAboveMin(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	// liqRatio between min (0.9) and 1.05*min (0.945)
	long, _ := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromFloat(92000), decimal.NewFromInt(150000))
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d05))
}

func TestLongRuleLowMarginFlagFalse(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.IncreaseSamePositionOnLowMargin = false
	long, _ := linked(decimal.NewFromFloat(0.4), decimal.NewFromFloat(0.4), decimal.NewFromInt(50000), decimal.NewFromInt(150000))
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d05))
	require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d1))
}

func TestLongRuleLowMarginFlagTrue(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.IncreaseSamePositionOnLowMargin = true
	long, _ := linked(decimal.NewFromFloat(0.4), decimal.NewFromFloat(0.4), decimal.NewFromInt(50000), decimal.NewFromInt(150000))
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d2))
}

func TestLongRuleLowRatioNegativePnl(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.MinTotalMargin = decimal.Zero
	long, _ := linked(decimal.NewFromFloat(0.3), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.NewFromInt(150000))
	long.UnrealizedPnL = decimal.NewFromInt(-1)
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d2))
}

func TestLongRuleVeryLowRatio(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.MinTotalMargin = decimal.Zero
	long, _ := linked(decimal.NewFromFloat(0.1), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.NewFromInt(150000))
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d2))
}

func TestShortRuleHighLiqRatio(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	_, short := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.NewFromFloat(106000))
	lastClose := decimal.NewFromInt(100000)
	// liqRatio=1.06 > 0.95*1.1=1.045
	require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionShort).Buy.Equal(d15))
}

func TestShortRuleLiqRatioBelowMax(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	_, short := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.NewFromFloat(102000))
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionLong).Sell.Equal(d05))
}

func TestShortRuleRatioAboveTwoNegativePnl(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.MinTotalMargin = decimal.Zero
	// shortLiq=0 keeps both liq-ratio rules false so the ratio rule is
	// reached; short margin 1 vs long margin 0.3 gives ratio 1/0.3 > 2.
	_, short := linked(decimal.NewFromFloat(0.3), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.Zero)
	short.UnrealizedPnL = decimal.NewFromInt(-1)
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d2))
}

// TestThresholdBoundariesAreStrict pins the asymmetric >/< comparisons:
// a value sitting exactly on a rule's threshold must not fire that rule.
func TestThresholdBoundariesAreStrict(t *testing.T) {
	cfg := baseCfg()
	cfg.MinLiqRatio = decimal.NewFromFloat(0.8)
	cfg.MaxLiqRatio = decimal.NewFromFloat(1.2)
	lastClose := decimal.NewFromInt(100000)

	t.Run("long liq ratio exactly 1.05*min falls through to next rule", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		// liqRatio = 0.84 = 1.05*0.8 exactly: rule one's strict > misses,
		// rule two's 0.84 > 0.8 fires instead.
		long, _ := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(84000), decimal.Zero)
		require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
		require.True(t, pair.Result(core.DirectionLong).Sell.Equal(d1))
		require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d05))
	})

	t.Run("short liq ratio exactly 0.95*max falls through to next rule", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		// liqRatio = 1.14 = 0.95*1.2 exactly: rule one misses, rule two's
		// 0 < 1.14 < 1.2 fires.
		_, short := linked(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero, decimal.NewFromInt(114000))
		require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
		require.True(t, pair.Result(core.DirectionShort).Buy.Equal(d1))
		require.True(t, pair.Result(core.DirectionLong).Sell.Equal(d05))
	})

	t.Run("margin ratio exactly 0.94 misses the low-margin band", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		long, _ := linked(decimal.NewFromFloat(0.094), decimal.NewFromFloat(0.1), decimal.NewFromInt(10000), decimal.Zero)
		require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
		require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d1))
	})

	t.Run("margin ratio exactly 1.05 misses the low-margin band", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		long, _ := linked(decimal.NewFromFloat(0.105), decimal.NewFromFloat(0.1), decimal.NewFromInt(10000), decimal.Zero)
		require.NoError(t, pair.Long.Compute(long, cfg, lastClose))
		require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d1))
	})

	t.Run("long ratio exactly 0.50 with negative pnl does not double buys", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		c := cfg
		c.MinTotalMargin = decimal.Zero
		long, _ := linked(decimal.NewFromFloat(0.5), decimal.NewFromInt(1), decimal.NewFromInt(10000), decimal.Zero)
		long.UnrealizedPnL = decimal.NewFromInt(-1)
		require.NoError(t, pair.Long.Compute(long, c, lastClose))
		require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d1))
	})

	t.Run("long ratio exactly 0.20 does not double buys", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		c := cfg
		c.MinTotalMargin = decimal.Zero
		long, _ := linked(decimal.NewFromFloat(0.2), decimal.NewFromInt(1), decimal.NewFromInt(10000), decimal.Zero)
		require.NoError(t, pair.Long.Compute(long, c, lastClose))
		require.True(t, pair.Result(core.DirectionLong).Buy.Equal(d1))
	})

	t.Run("short ratio exactly 2.0 with negative pnl does not double sells", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		c := cfg
		c.MinTotalMargin = decimal.Zero
		_, short := linked(decimal.NewFromFloat(0.5), decimal.NewFromInt(1), decimal.NewFromInt(10000), decimal.Zero)
		short.UnrealizedPnL = decimal.NewFromInt(-1)
		require.NoError(t, pair.Short.Compute(short, c, lastClose))
		require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d1))
	})

	t.Run("short ratio exactly 5.0 does not double sells", func(t *testing.T) {
		pair := NewLinkedPair()
		pair.Reset()
		c := cfg
		c.MinTotalMargin = decimal.Zero
		_, short := linked(decimal.NewFromFloat(0.2), decimal.NewFromInt(1), decimal.NewFromInt(10000), decimal.Zero)
		require.NoError(t, pair.Short.Compute(short, c, lastClose))
		require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d1))
	})
}

func TestShortRuleRatioAboveFive(t *testing.T) {
	pair := NewLinkedPair()
	pair.Reset()
	cfg := baseCfg()
	cfg.MinTotalMargin = decimal.Zero
	// short margin 1 vs long margin 0.1 gives ratio 10 > 5.
	_, short := linked(decimal.NewFromFloat(0.1), decimal.NewFromInt(1), decimal.NewFromInt(50000), decimal.Zero)
	lastClose := decimal.NewFromInt(100000)
	require.NoError(t, pair.Short.Compute(short, cfg, lastClose))
	require.True(t, pair.Result(core.DirectionShort).Sell.Equal(d2))
}
