// Package backtester provides walk-forward analysis for strategy validation.
package backtester

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// WalkForwardAnalyzer slides a rolling out-of-sample window across a date
// range and aggregates the per-window returns geometrically.
type WalkForwardAnalyzer struct {
	logger *zap.Logger
	runner *Runner
}

// NewWalkForwardAnalyzer creates a new walk-forward analyzer
func NewWalkForwardAnalyzer(logger *zap.Logger, runner *Runner) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{
		logger: logger,
		runner: runner,
	}
}

// Run evaluates successive out-of-sample windows. The in-sample span is
// reserved for future parameter fitting and is not backtested; only the
// out-of-sample sub-range of each window runs.
func (wf *WalkForwardAnalyzer) Run(
	ctx context.Context,
	signals SignalSource,
	symbols []string,
	cfg *types.BacktestConfig,
	inSampleDays, outSampleDays int,
) (*types.WalkForwardResult, error) {
	if inSampleDays <= 0 || outSampleDays <= 0 {
		return nil, fmt.Errorf("window sizes must be positive, got in-sample %d and out-of-sample %d",
			inSampleDays, outSampleDays)
	}

	var windows []types.WalkForwardWindow
	combined := decimal.NewFromInt(1)
	positive := 0

	for current := cfg.StartDate; !current.AddDate(0, 0, inSampleDays+outSampleDays).After(cfg.EndDate); current = current.AddDate(0, 0, outSampleDays) {
		outStart := current.AddDate(0, 0, inSampleDays)
		outEnd := outStart.AddDate(0, 0, outSampleDays)

		windowCfg := *cfg
		windowCfg.StartDate = outStart
		windowCfg.EndDate = outEnd

		result, err := wf.runner.Run(ctx, signals, symbols, &windowCfg)
		if err != nil {
			wf.logger.Warn("Out-of-sample window failed",
				zap.Time("outSampleStart", outStart),
				zap.Time("outSampleEnd", outEnd),
				zap.Error(err),
			)
			continue
		}

		ret := result.Metrics.TotalReturnPct
		combined = combined.Mul(decimal.NewFromInt(1).Add(ret.Div(decimal.NewFromInt(100))))
		if ret.GreaterThan(decimal.Zero) {
			positive++
		}

		windows = append(windows, types.WalkForwardWindow{
			OutSampleStart: outStart,
			OutSampleEnd:   outEnd,
			Result:         result,
		})

		wf.logger.Debug("Window completed",
			zap.Time("outSampleStart", outStart),
			zap.String("returnPct", ret.String()),
		)
	}

	if len(windows) == 0 {
		return nil, fmt.Errorf("date range %s to %s is too short for any walk-forward window",
			cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"))
	}

	combinedPct := combined.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	consistency := decimal.NewFromInt(int64(positive)).
		Div(decimal.NewFromInt(int64(len(windows)))).
		Mul(decimal.NewFromInt(100))

	wf.logger.Info("Walk-forward analysis complete",
		zap.Int("windows", len(windows)),
		zap.String("combinedReturnPct", combinedPct.String()),
		zap.String("consistencyPct", consistency.String()),
	)

	return &types.WalkForwardResult{
		Windows:           windows,
		CombinedReturnPct: combinedPct,
		ConsistencyPct:    consistency,
	}, nil
}

// chainReturns compounds percentage returns geometrically
func chainReturns(returns []decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	combined := one
	for _, r := range returns {
		combined = combined.Mul(one.Add(r.Div(hundred)))
	}
	return combined.Sub(one).Mul(hundred)
}
