package backtester

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

func baseResult(pnls []float64) *types.BacktestResult {
	cfg := types.BacktestConfig{
		InitialCapital: decimal.NewFromInt(10000),
		StartDate:      day("2023-01-02"),
		EndDate:        day("2023-06-30"),
	}

	trades := make([]types.Trade, 0, len(pnls))
	for i, pnl := range pnls {
		entry := day("2023-01-02").AddDate(0, 0, i*7)
		trades = append(trades, closedTrade(entry, entry.AddDate(0, 0, 2), pnl))
	}

	metrics := NewMetricsCalculator().Compute(trades, cfg.InitialCapital, cfg.StartDate, cfg.EndDate)
	return &types.BacktestResult{
		Config:  cfg,
		Trades:  trades,
		Metrics: metrics,
	}
}

func TestMonteCarloFailsFastWithoutTrades(t *testing.T) {
	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{Simulations: 10, Seed: 1})

	_, err := mc.Run(nil)
	assert.ErrorContains(t, err, "completed backtest")

	_, err = mc.Run(&types.BacktestResult{Metrics: &types.BacktestMetrics{}})
	assert.ErrorContains(t, err, "at least one closed trade")
}

func TestShuffleOnlyPreservesTotalReturn(t *testing.T) {
	base := baseResult([]float64{100, -50, 75, -25, 60})
	baseReturn, _ := base.Metrics.TotalReturnPct.Float64()

	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{
		Simulations:   50,
		Seed:          1,
		ShuffleTrades: true,
	})

	result, err := mc.Run(base)
	require.NoError(t, err)

	require.Equal(t, 50, result.Simulations)
	for _, ret := range result.SimulationReturns {
		assert.InDelta(t, baseReturn, ret, 1e-9)
	}
	assert.InDelta(t, baseReturn, result.TotalReturn.P50, 1e-9)
	assert.InDelta(t, 0, result.TotalReturn.StdDev, 1e-9)
}

func TestRemovalNeverEmptiesTheSequence(t *testing.T) {
	base := baseResult([]float64{100, -50, 75, -25, 60})

	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{
		Simulations:  100,
		Seed:         3,
		TradeRemoval: true,
		RemovalPct:   0.90,
	})

	result, err := mc.Run(base)
	require.NoError(t, err)

	// Even at 90% removal at least one trade survives, so no simulation
	// is skipped.
	assert.Equal(t, 100, result.Simulations)
	assert.Len(t, result.SimulationReturns, 100)
}

func TestSeedReproducibility(t *testing.T) {
	cfg := types.MonteCarloConfig{
		Simulations:       200,
		Seed:              7,
		ShuffleTrades:     true,
		TradeRemoval:      true,
		ExecutionVariance: true,
		RemovalPct:        0.10,
		SlippageStdDev:    0.002,
	}
	pnls := []float64{100, -50, 75, -25, 60, -10, 90, -40}

	first, err := NewMonteCarloSimulator(zap.NewNop(), cfg).Run(baseResult(pnls))
	require.NoError(t, err)
	second, err := NewMonteCarloSimulator(zap.NewNop(), cfg).Run(baseResult(pnls))
	require.NoError(t, err)

	assert.Equal(t, first.SimulationReturns, second.SimulationReturns)
	assert.Equal(t, first.TotalReturn, second.TotalReturn)
	assert.Equal(t, first.MaxDrawdown, second.MaxDrawdown)
}

func TestDifferentSeedsDiverge(t *testing.T) {
	pnls := []float64{100, -50, 75, -25, 60, -10, 90, -40}
	cfg := types.MonteCarloConfig{
		Simulations:       100,
		Seed:              1,
		TradeRemoval:      true,
		ExecutionVariance: true,
		RemovalPct:        0.25,
		SlippageStdDev:    0.01,
	}

	first, err := NewMonteCarloSimulator(zap.NewNop(), cfg).Run(baseResult(pnls))
	require.NoError(t, err)

	cfg.Seed = 2
	second, err := NewMonteCarloSimulator(zap.NewNop(), cfg).Run(baseResult(pnls))
	require.NoError(t, err)

	assert.NotEqual(t, first.SimulationReturns, second.SimulationReturns)
}

func TestDistributionShape(t *testing.T) {
	base := baseResult([]float64{100, -50, 75, -25, 60, -10, 90, -40})

	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{
		Simulations:       500,
		Seed:              11,
		ExecutionVariance: true,
		SlippageStdDev:    0.01,
	})

	result, err := mc.Run(base)
	require.NoError(t, err)

	dist := result.TotalReturn
	assert.LessOrEqual(t, dist.P5, dist.P25)
	assert.LessOrEqual(t, dist.P25, dist.P50)
	assert.LessOrEqual(t, dist.P50, dist.P75)
	assert.LessOrEqual(t, dist.P75, dist.P95)

	assert.GreaterOrEqual(t, result.ProbabilityOfLoss, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfLoss, 1.0)
	assert.GreaterOrEqual(t, result.ProbabilityOfRuin, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfRuin, 1.0)
}

func TestEquityConeContributorMinimum(t *testing.T) {
	base := baseResult([]float64{100, -50, 75, -25, 60, -10})

	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{
		Simulations:   100,
		Seed:          5,
		ShuffleTrades: true,
	})

	result, err := mc.Run(base)
	require.NoError(t, err)

	for _, point := range result.EquityCone {
		assert.GreaterOrEqual(t, point.Simulations, 5)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1, percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 2.5, percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 4, percentile(sorted, 100), 1e-9)
	assert.InDelta(t, 1.15, percentile(sorted, 5), 1e-9)

	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 50))
}

func TestTransformsDoNotMutateBaseResult(t *testing.T) {
	base := baseResult([]float64{100, -50, 75})
	originalPnL := *base.Trades[0].PnL
	originalEntry := base.Trades[0].EntryTime

	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{
		Simulations:       50,
		Seed:              9,
		ShuffleTrades:     true,
		TradeRemoval:      true,
		ExecutionVariance: true,
		RemovalPct:        0.30,
		SlippageStdDev:    0.01,
	})

	_, err := mc.Run(base)
	require.NoError(t, err)

	assert.True(t, base.Trades[0].PnL.Equal(originalPnL))
	assert.Equal(t, originalEntry, base.Trades[0].EntryTime)
}
