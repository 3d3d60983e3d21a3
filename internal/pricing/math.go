// Package pricing provides the exact-decimal price and percentage
// arithmetic shared by the grid ladder and the grid engine.
package pricing

import (
	"github.com/shopspring/decimal"
)

// RoundToTick rounds a price to the nearest multiple of tickSize. All
// ladder prices are quantized this way, per the decimal-semantics rule:
// final rounding to tick is always via decimal, never float.
func RoundToTick(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	ticks := price.Div(tickSize).Round(0)
	return ticks.Mul(tickSize)
}

// LevelPrice computes the price of grid level i (signed, relative to the
// center) around anchor with the given percent step, rounded to tick.
// Level 0 is the anchor itself.
func LevelPrice(anchor decimal.Decimal, stepPercent decimal.Decimal, i int, tickSize decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(
		decimal.NewFromInt(int64(i)).Mul(stepPercent).Div(decimal.NewFromInt(100)),
	)
	return RoundToTick(anchor.Mul(factor), tickSize)
}

// PercentDistance returns |p1 - p2| / min(p1, p2) * 100, the "too close"
// metric used both for the ladder's wait-band checks and order-placement
// suppression.
func PercentDistance(p1, p2 decimal.Decimal) decimal.Decimal {
	diff := p1.Sub(p2).Abs()
	minPrice := p1
	if p2.LessThan(p1) {
		minPrice = p2
	}
	if minPrice.IsZero() {
		return decimal.Zero
	}
	return diff.Div(minPrice).Mul(decimal.NewFromInt(100))
}

// TooClose reports whether p1 and p2 are closer than threshold percent:
// |p1-p2|/min(p1,p2)*100 < threshold.
func TooClose(p1, p2, threshold decimal.Decimal) bool {
	return PercentDistance(p1, p2).LessThan(threshold)
}
