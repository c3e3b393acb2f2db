// Package backtester provides performance metrics calculation.
package backtester

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratforge/backtest/pkg/types"
)

// Risk-adjusted ratios are only meaningful with a minimum sample: the date
// span must cover at least minRatioSpanDays and the equity curve must yield
// at least minReturnObservations daily returns.
const (
	minRatioSpanDays      = 30
	minReturnObservations = 10
	tradingDaysPerYear    = 252
)

// MetricsCalculator converts closed trades into performance statistics.
// Compute is pure and deterministic: no I/O, a fresh result every call.
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Compute calculates all performance statistics for the given trades.
// Only closed trades with a realized pnl contribute; an empty input yields
// a zero-valued metrics object, never nil.
func (mc *MetricsCalculator) Compute(
	trades []types.Trade,
	initialCapital decimal.Decimal,
	start, end time.Time,
) *types.BacktestMetrics {
	closed := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == types.TradeStatusClosed && t.PnL != nil {
			closed = append(closed, t)
		}
	}

	metrics := &types.BacktestMetrics{
		EquityCurve: []types.EquityCurvePoint{},
	}
	if len(closed) == 0 {
		return metrics
	}

	// Chronological entry order: streak scanning depends on it.
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].EntryTime.Before(closed[j].EntryTime)
	})

	var grossProfit, grossLoss decimal.Decimal
	var largestWin, largestLoss decimal.Decimal
	var winStreak, lossStreak int

	for _, t := range closed {
		pnl := *t.PnL
		metrics.TotalPnL = metrics.TotalPnL.Add(pnl)

		switch {
		case pnl.GreaterThan(decimal.Zero):
			metrics.WinningTrades++
			grossProfit = grossProfit.Add(pnl)
			if pnl.GreaterThan(largestWin) {
				largestWin = pnl
			}
			winStreak++
			lossStreak = 0
			if winStreak > metrics.MaxConsecutiveWins {
				metrics.MaxConsecutiveWins = winStreak
			}
		case pnl.LessThan(decimal.Zero):
			metrics.LosingTrades++
			grossLoss = grossLoss.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(largestLoss) {
				largestLoss = pnl.Abs()
			}
			lossStreak++
			winStreak = 0
			if lossStreak > metrics.MaxConsecutiveLosses {
				metrics.MaxConsecutiveLosses = lossStreak
			}
		default:
			// Break-even trades neither extend nor reset a streak.
			metrics.BreakEvenTrades++
		}
	}

	metrics.TotalTrades = len(closed)
	metrics.GrossProfit = grossProfit
	metrics.GrossLoss = grossLoss
	metrics.LargestWin = largestWin
	metrics.LargestLoss = largestLoss

	total := decimal.NewFromInt(int64(metrics.TotalTrades))
	metrics.WinRate = decimal.NewFromInt(int64(metrics.WinningTrades)).Div(total)

	if metrics.WinningTrades > 0 {
		metrics.AvgWin = grossProfit.Div(decimal.NewFromInt(int64(metrics.WinningTrades)))
	}
	if metrics.LosingTrades > 0 {
		metrics.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(metrics.LosingTrades)))
	}

	// Profit factor is defined only when there are losses. Nil, not zero or
	// infinity, otherwise.
	if grossLoss.GreaterThan(decimal.Zero) {
		pf := grossProfit.Div(grossLoss)
		metrics.ProfitFactor = &pf
	}

	lossRate := decimal.NewFromInt(1).Sub(metrics.WinRate)
	metrics.Expectancy = metrics.WinRate.Mul(metrics.AvgWin).Sub(lossRate.Mul(metrics.AvgLoss))

	if initialCapital.GreaterThan(decimal.Zero) {
		metrics.TotalReturnPct = metrics.TotalPnL.Div(initialCapital).Mul(decimal.NewFromInt(100))
	}

	metrics.EquityCurve = mc.buildEquityCurve(closed, initialCapital)
	for _, point := range metrics.EquityCurve {
		if point.Drawdown.GreaterThan(metrics.MaxDrawdown) {
			metrics.MaxDrawdown = point.Drawdown
		}
		if point.DrawdownPct.GreaterThan(metrics.MaxDrawdownPct) {
			metrics.MaxDrawdownPct = point.DrawdownPct
		}
	}

	mc.computeRiskRatios(metrics, initialCapital, start, end)

	return metrics
}

// buildEquityCurve aggregates realized pnl per exit date and walks the
// dates in order, tracking the running peak for drawdown
func (mc *MetricsCalculator) buildEquityCurve(closed []types.Trade, initialCapital decimal.Decimal) []types.EquityCurvePoint {
	pnlByDate := make(map[string]decimal.Decimal)
	dates := make([]time.Time, 0)

	for _, t := range closed {
		key := dateKey(t.ExitTime)
		if _, seen := pnlByDate[key]; !seen {
			dates = append(dates, t.ExitTime.Truncate(24*time.Hour))
		}
		pnlByDate[key] = pnlByDate[key].Add(*t.PnL)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	curve := make([]types.EquityCurvePoint, 0, len(dates))
	equity := initialCapital
	peak := initialCapital

	for _, date := range dates {
		equity = equity.Add(pnlByDate[dateKey(date)])
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := peak.Sub(equity)
		var drawdownPct decimal.Decimal
		if peak.GreaterThan(decimal.Zero) {
			drawdownPct = drawdown.Div(peak).Mul(decimal.NewFromInt(100))
		}
		curve = append(curve, types.EquityCurvePoint{
			Date:        date,
			Equity:      equity,
			Drawdown:    drawdown,
			DrawdownPct: drawdownPct,
		})
	}

	return curve
}

// computeRiskRatios fills in Sharpe, annual volatility, CAGR and Calmar when
// the sample is large enough; otherwise they stay nil
func (mc *MetricsCalculator) computeRiskRatios(metrics *types.BacktestMetrics, initialCapital decimal.Decimal, start, end time.Time) {
	spanDays := end.Sub(start).Hours() / 24
	returns := mc.dailyReturns(metrics.EquityCurve, initialCapital)
	if spanDays < minRatioSpanDays || len(returns) < minReturnObservations {
		return
	}

	mean := mc.mean(returns)
	std := mc.stdDev(returns)

	if std > 0 {
		sharpe := mean / std * math.Sqrt(tradingDaysPerYear)
		metrics.SharpeRatio = &sharpe
		vol := std * math.Sqrt(tradingDaysPerYear)
		metrics.AnnualVolatility = &vol
	}

	years := spanDays / 365.25
	finalEquity := initialCapital.Add(metrics.TotalPnL)
	initFloat, _ := initialCapital.Float64()
	finalFloat, _ := finalEquity.Float64()
	if years > 0 && initFloat > 0 && finalFloat > 0 {
		cagr := (math.Pow(finalFloat/initFloat, 1/years) - 1) * 100
		metrics.CAGR = &cagr

		maxDDPct, _ := metrics.MaxDrawdownPct.Float64()
		if maxDDPct > 0 {
			calmar := cagr / maxDDPct
			metrics.CalmarRatio = &calmar
		}
	}
}

// dailyReturns derives percentage changes between consecutive equity curve
// points, with the initial capital as the day-zero baseline
func (mc *MetricsCalculator) dailyReturns(curve []types.EquityCurvePoint, initialCapital decimal.Decimal) []float64 {
	if len(curve) == 0 {
		return nil
	}

	returns := make([]float64, 0, len(curve))
	prev := initialCapital
	for _, point := range curve {
		if prev.GreaterThan(decimal.Zero) {
			ret, _ := point.Equity.Sub(prev).Div(prev).Float64()
			returns = append(returns, ret)
		}
		prev = point.Equity
	}
	return returns
}

// mean calculates arithmetic mean
func (mc *MetricsCalculator) mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev calculates sample standard deviation
func (mc *MetricsCalculator) stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := mc.mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
