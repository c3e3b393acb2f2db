// Package backtester provides slippage modeling for backtesting.
package backtester

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/stratforge/backtest/pkg/types"
)

// SlippageModel computes the fractional price slip applied to a fill.
// The runner moves the fill price against the trader by the returned
// fraction on both entries and exits.
type SlippageModel interface {
	Slip(direction types.TradeDirection, size decimal.Decimal, bar types.OHLCV) decimal.Decimal
}

// FixedSlippage applies a constant fractional slippage
type FixedSlippage struct {
	Fraction decimal.Decimal
}

// NewFixedSlippage creates a fixed slippage model from a decimal fraction
// (0.001 = 0.1%)
func NewFixedSlippage(fraction decimal.Decimal) *FixedSlippage {
	return &FixedSlippage{Fraction: fraction}
}

// Slip returns the fixed fraction regardless of size or bar
func (f *FixedSlippage) Slip(direction types.TradeDirection, size decimal.Decimal, bar types.OHLCV) decimal.Decimal {
	return f.Fraction
}

// VolumeWeightedSlippage models slippage as a base fraction plus market
// impact proportional to the square root of volume participation
type VolumeWeightedSlippage struct {
	Base         decimal.Decimal
	ImpactFactor decimal.Decimal
}

// NewVolumeWeightedSlippage creates a volume-weighted slippage model
func NewVolumeWeightedSlippage(base, impactFactor decimal.Decimal) *VolumeWeightedSlippage {
	return &VolumeWeightedSlippage{
		Base:         base,
		ImpactFactor: impactFactor,
	}
}

// Slip returns base slippage plus square-root impact from the position's
// share of the bar's volume
func (v *VolumeWeightedSlippage) Slip(direction types.TradeDirection, size decimal.Decimal, bar types.OHLCV) decimal.Decimal {
	if bar.Volume.IsZero() || size.LessThanOrEqual(decimal.Zero) {
		return v.Base
	}

	participation := size.Div(bar.Volume)
	participationFloat, _ := participation.Float64()
	impact := v.ImpactFactor.Mul(decimal.NewFromFloat(math.Sqrt(participationFloat)))

	return v.Base.Add(impact)
}

// entryFillPrice applies slippage against the trader on entry
func entryFillPrice(price decimal.Decimal, direction types.TradeDirection, slip decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if direction == types.DirectionShort {
		return price.Mul(one.Sub(slip))
	}
	return price.Mul(one.Add(slip))
}

// exitFillPrice applies slippage against the trader on exit
func exitFillPrice(price decimal.Decimal, direction types.TradeDirection, slip decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if direction == types.DirectionShort {
		return price.Mul(one.Add(slip))
	}
	return price.Mul(one.Sub(slip))
}
