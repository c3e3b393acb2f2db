package backtester

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// risingBars generates weekday bars with a steady upward drift
func risingBars(start, end time.Time, price float64) []types.OHLCV {
	var bars []types.OHLCV
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		price *= 1.002
		bars = append(bars, types.OHLCV{
			Date:   d,
			Open:   decimal.NewFromFloat(price * 0.999),
			High:   decimal.NewFromFloat(price * 1.001),
			Low:    decimal.NewFromFloat(price * 0.998),
			Close:  decimal.NewFromFloat(price),
			Volume: decimal.NewFromInt(1000000),
		})
	}
	return bars
}

func TestChainReturnsCompoundsGeometrically(t *testing.T) {
	combined := chainReturns([]decimal.Decimal{
		decimal.NewFromInt(10),
		decimal.NewFromInt(10),
	})
	assert.True(t, combined.Equal(decimal.NewFromInt(21)), "combined %s", combined)

	assert.True(t, chainReturns(nil).IsZero())

	// A -50% window halves whatever came before it.
	combined = chainReturns([]decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(-50),
	})
	assert.True(t, combined.IsZero(), "combined %s", combined)
}

func TestWalkForwardRejectsInvalidWindows(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), NewRunner(zap.NewNop(), &stubBars{}, nil))

	cfg := baseConfig("2023-01-01", "2023-12-31")
	_, err := wf.Run(context.Background(), entryOnFirstBar(nil, nil), []string{"AAA"}, cfg, 0, 30)
	assert.ErrorContains(t, err, "window sizes must be positive")

	_, err = wf.Run(context.Background(), entryOnFirstBar(nil, nil), []string{"AAA"}, cfg, 60, -1)
	assert.ErrorContains(t, err, "window sizes must be positive")
}

func TestWalkForwardTooShortRange(t *testing.T) {
	bars := &stubBars{series: map[string][]types.OHLCV{
		"AAA": risingBars(day("2023-01-01"), day("2023-01-31"), 100),
	}}
	wf := NewWalkForwardAnalyzer(zap.NewNop(), NewRunner(zap.NewNop(), bars, nil))

	cfg := baseConfig("2023-01-01", "2023-01-31")
	_, err := wf.Run(context.Background(), entryOnFirstBar(nil, nil), []string{"AAA"}, cfg, 60, 30)
	assert.ErrorContains(t, err, "too short")
}

func TestWalkForwardWindowsAndChaining(t *testing.T) {
	bars := &stubBars{series: map[string][]types.OHLCV{
		"AAA": risingBars(day("2023-01-01"), day("2023-05-31"), 100),
	}}
	wf := NewWalkForwardAnalyzer(zap.NewNop(), NewRunner(zap.NewNop(), bars, nil))

	cfg := baseConfig("2023-01-01", "2023-05-31")
	result, err := wf.Run(context.Background(), entryOnFirstBar(nil, nil), []string{"AAA"}, cfg, 60, 30)
	require.NoError(t, err)

	// 150-day range with a 90-day stride start and 30-day advance fits
	// three windows.
	require.Len(t, result.Windows, 3)

	var returns []decimal.Decimal
	for i, window := range result.Windows {
		expectedStart := cfg.StartDate.AddDate(0, 0, 30*i+60)
		assert.Equal(t, expectedStart, window.OutSampleStart)
		assert.Equal(t, expectedStart.AddDate(0, 0, 30), window.OutSampleEnd)
		require.NotNil(t, window.Result)
		returns = append(returns, window.Result.Metrics.TotalReturnPct)
	}

	expected := chainReturns(returns)
	assert.True(t, result.CombinedReturnPct.Equal(expected),
		"combined %s expected %s", result.CombinedReturnPct, expected)

	// The drift is strictly upward, so every window is profitable.
	assert.True(t, result.ConsistencyPct.Equal(decimal.NewFromInt(100)),
		"consistency %s", result.ConsistencyPct)
}

func TestWalkForwardWindowConfigsAreIsolated(t *testing.T) {
	bars := &stubBars{series: map[string][]types.OHLCV{
		"AAA": risingBars(day("2023-01-01"), day("2023-05-31"), 100),
	}}
	wf := NewWalkForwardAnalyzer(zap.NewNop(), NewRunner(zap.NewNop(), bars, nil))

	cfg := baseConfig("2023-01-01", "2023-05-31")
	result, err := wf.Run(context.Background(), entryOnFirstBar(nil, nil), []string{"AAA"}, cfg, 60, 30)
	require.NoError(t, err)

	// The caller's config keeps the full range; each window ran on its own
	// out-of-sample copy.
	assert.Equal(t, day("2023-01-01"), cfg.StartDate)
	assert.Equal(t, day("2023-05-31"), cfg.EndDate)
	for _, window := range result.Windows {
		assert.Equal(t, window.OutSampleStart, window.Result.Config.StartDate)
		assert.Equal(t, window.OutSampleEnd, window.Result.Config.EndDate)
	}
}
