package signal

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// RuleConfig configures a rule-based signal source
type RuleConfig struct {
	Direction     types.TradeDirection `json:"direction" mapstructure:"direction"`
	Conditions    []Condition          `json:"conditions" mapstructure:"conditions"`
	StopLossPct   decimal.Decimal      `json:"stopLossPct" mapstructure:"stop_loss_pct"`
	TakeProfitPct decimal.Decimal      `json:"takeProfitPct" mapstructure:"take_profit_pct"`
}

// RuleSource derives entry decisions from a conjunction of conditions over
// the close series. All collaborators are injected; there is no shared or
// global state between sources.
type RuleSource struct {
	logger *zap.Logger
	cfg    RuleConfig
}

// NewRuleSource creates a rule-based signal source
func NewRuleSource(logger *zap.Logger, cfg RuleConfig) *RuleSource {
	if cfg.Direction == "" {
		cfg.Direction = types.DirectionLong
	}
	return &RuleSource{
		logger: logger,
		cfg:    cfg,
	}
}

// Evaluate reports an entry when every condition passes on the bars seen so
// far. Suggested stop and take-profit levels are derived from the last
// close and the configured fractions.
func (r *RuleSource) Evaluate(ctx context.Context, symbol string, bars []types.OHLCV) (*types.Signal, error) {
	if len(bars) == 0 {
		return &types.Signal{}, nil
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
	}

	for _, cond := range r.cfg.Conditions {
		pass, err := cond.Evaluate(closes)
		if err != nil {
			return nil, err
		}
		if !pass {
			return &types.Signal{}, nil
		}
	}

	ref := bars[len(bars)-1].Close
	sig := &types.Signal{
		Entry:          true,
		Direction:      r.cfg.Direction,
		ReferencePrice: ref,
	}

	one := decimal.NewFromInt(1)
	if r.cfg.StopLossPct.GreaterThan(decimal.Zero) {
		var stop decimal.Decimal
		if r.cfg.Direction == types.DirectionShort {
			stop = ref.Mul(one.Add(r.cfg.StopLossPct))
		} else {
			stop = ref.Mul(one.Sub(r.cfg.StopLossPct))
		}
		sig.StopLoss = &stop
	}
	if r.cfg.TakeProfitPct.GreaterThan(decimal.Zero) {
		var take decimal.Decimal
		if r.cfg.Direction == types.DirectionShort {
			take = ref.Mul(one.Sub(r.cfg.TakeProfitPct))
		} else {
			take = ref.Mul(one.Add(r.cfg.TakeProfitPct))
		}
		sig.TakeProfit = &take
	}

	return sig, nil
}
