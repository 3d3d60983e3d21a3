package config

import (
	"github.com/shopspring/decimal"

	"gridcore/internal/core"
)

// defaultRebalanceThreshold is used when a strategy config omits
// rebalance_threshold.
var defaultRebalanceThreshold = decimal.NewFromFloat(0.1)

// ToCore converts the YAML risk config block into core.RiskConfig.
func (r RiskConfigYAML) ToCore() core.RiskConfig {
	return core.RiskConfig{
		MinLiqRatio:                     r.MinLiqRatio,
		MaxLiqRatio:                     r.MaxLiqRatio,
		MaxMargin:                       r.MaxMargin,
		MinTotalMargin:                  r.MinTotalMargin,
		IncreaseSamePositionOnLowMargin: r.IncreaseSamePositionOnLowMargin,
		LongKoef:                        r.LongKoef,
	}
}

// GridDirection returns the configured direction for this strategy's
// grid, defaulting to long when omitted.
func (s StrategyConfig) GridDirection() core.Direction {
	if s.Direction == string(core.DirectionShort) {
		return core.DirectionShort
	}
	return core.DirectionLong
}

// GridConfig builds the core.GridConfig for this strategy.
func (s StrategyConfig) GridConfig() core.GridConfig {
	threshold := s.RebalanceThreshold
	if threshold.IsZero() {
		threshold = defaultRebalanceThreshold
	}
	return core.GridConfig{
		GridCount:          s.GridCount,
		GridStep:           s.GridStep,
		RebalanceThreshold: threshold,
		TickSize:           s.TickSize,
	}
}
