// Package backtester provides Monte Carlo robustness analysis for
// backtest results.
package backtester

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// Simulations with a max drawdown beyond this percentage count as ruined
const ruinDrawdownPct = 50.0

// MonteCarloSimulator stress-tests a backtest result by re-running its
// metrics over many randomly transformed trade sequences.
//
// A single seeded generator drives every draw across the entire run; it is
// never re-seeded per simulation. The draw order is part of the
// reproducibility contract: a fresh simulator with identical config and
// base result produces an identical sequence of simulation returns.
type MonteCarloSimulator struct {
	logger  *zap.Logger
	config  types.MonteCarloConfig
	rng     *rand.Rand
	metrics *MetricsCalculator
}

// NewMonteCarloSimulator creates a simulator seeded from the config
func NewMonteCarloSimulator(logger *zap.Logger, config types.MonteCarloConfig) *MonteCarloSimulator {
	if config.Simulations <= 0 {
		config.Simulations = 1000
	}
	return &MonteCarloSimulator{
		logger:  logger,
		config:  config,
		rng:     rand.New(rand.NewSource(config.Seed)),
		metrics: NewMetricsCalculator(),
	}
}

// Run performs the Monte Carlo analysis on a completed backtest. It fails
// fast on a base result without closed trades or metrics rather than
// producing an empty report.
func (mc *MonteCarloSimulator) Run(base *types.BacktestResult) (*types.MonteCarloResult, error) {
	if base == nil || base.Metrics == nil {
		return nil, fmt.Errorf("monte carlo requires a completed backtest with metrics")
	}

	closed := make([]types.Trade, 0, len(base.Trades))
	for _, t := range base.Trades {
		if t.Status == types.TradeStatusClosed && t.PnL != nil {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("monte carlo requires at least one closed trade, got none")
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].EntryTime.Before(closed[j].EntryTime)
	})

	var (
		returns       []float64
		drawdowns     []float64
		winRates      []float64
		sharpes       []float64
		profitFactors []float64
		coneValues    = make(map[time.Time][]float64)
	)

	for i := 0; i < mc.config.Simulations; i++ {
		sim := cloneTrades(closed)

		// Fixed transform order: removal, then shuffle, then execution
		// variance. Each stage draws from the shared stream only when
		// enabled.
		if mc.config.TradeRemoval {
			sim = mc.removeTrades(sim)
		}
		if mc.config.ShuffleTrades {
			mc.shuffleTrades(sim)
		}
		if mc.config.ExecutionVariance {
			mc.perturbExecutions(sim)
		}
		if len(sim) == 0 {
			continue
		}

		m := mc.metrics.Compute(sim, base.Config.InitialCapital, base.Config.StartDate, base.Config.EndDate)

		retPct, _ := m.TotalReturnPct.Float64()
		ddPct, _ := m.MaxDrawdownPct.Float64()
		winRate, _ := m.WinRate.Float64()

		returns = append(returns, retPct)
		drawdowns = append(drawdowns, ddPct)
		winRates = append(winRates, winRate*100)
		if m.SharpeRatio != nil {
			sharpes = append(sharpes, *m.SharpeRatio)
		}
		if m.ProfitFactor != nil {
			pf, _ := m.ProfitFactor.Float64()
			profitFactors = append(profitFactors, pf)
		}
		for _, point := range m.EquityCurve {
			equity, _ := point.Equity.Float64()
			coneValues[point.Date] = append(coneValues[point.Date], equity)
		}
	}

	if len(returns) == 0 {
		return nil, fmt.Errorf("all %d simulations were skipped", mc.config.Simulations)
	}

	result := &types.MonteCarloResult{
		Config:            mc.config,
		Simulations:       len(returns),
		TotalReturn:       newDistribution(returns),
		MaxDrawdown:       newDistribution(drawdowns),
		WinRate:           newDistribution(winRates),
		EquityCone:        mc.buildEquityCone(coneValues),
		ProbabilityOfLoss: fractionBelow(returns, 0),
		ProbabilityOfRuin: fractionAbove(drawdowns, ruinDrawdownPct),
		SimulationReturns: returns,
	}
	if len(sharpes) > 0 {
		dist := newDistribution(sharpes)
		result.SharpeRatio = &dist
	}
	if len(profitFactors) > 0 {
		dist := newDistribution(profitFactors)
		result.ProfitFactor = &dist
	}

	mc.logger.Info("Monte Carlo simulation complete",
		zap.Int("simulations", result.Simulations),
		zap.Float64("medianReturnPct", result.TotalReturn.P50),
		zap.Float64("p5ReturnPct", result.TotalReturn.P5),
		zap.Float64("probabilityOfLoss", result.ProbabilityOfLoss),
		zap.Float64("probabilityOfRuin", result.ProbabilityOfRuin),
	)

	return result, nil
}

// removeTrades drops a random subset sampled without replacement. At least
// one trade is removed, but never all of them.
func (mc *MonteCarloSimulator) removeTrades(trades []types.Trade) []types.Trade {
	n := len(trades)
	if n <= 1 {
		return trades
	}

	k := int(math.Floor(float64(n) * mc.config.RemovalPct))
	if k < 1 {
		k = 1
	}
	if k > n-1 {
		k = n - 1
	}

	remove := make(map[int]bool, k)
	for _, idx := range mc.rng.Perm(n)[:k] {
		remove[idx] = true
	}

	kept := make([]types.Trade, 0, n-k)
	for i, t := range trades {
		if !remove[i] {
			kept = append(kept, t)
		}
	}
	return kept
}

// shuffleTrades permutes the trade order and re-dates each trade from the
// set's original sorted entry dates, preserving hold durations. The pnl
// values are untouched, so shuffling alone never changes the total return,
// only the path.
func (mc *MonteCarloSimulator) shuffleTrades(trades []types.Trade) {
	dates := make([]time.Time, len(trades))
	for i, t := range trades {
		dates[i] = t.EntryTime
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	mc.rng.Shuffle(len(trades), func(i, j int) {
		trades[i], trades[j] = trades[j], trades[i]
	})

	for i := range trades {
		hold := trades[i].ExitTime.Sub(trades[i].EntryTime)
		trades[i].EntryTime = dates[i]
		trades[i].ExitTime = dates[i].Add(hold)
	}
}

// perturbExecutions jitters entry and exit prices with gaussian noise and
// recomputes pnl from the perturbed fills
func (mc *MonteCarloSimulator) perturbExecutions(trades []types.Trade) {
	std := mc.config.SlippageStdDev
	for i := range trades {
		t := &trades[i]

		t.EntryPrice = t.EntryPrice.Mul(decimal.NewFromFloat(1 + mc.rng.NormFloat64()*std))
		if !t.ExitPrice.IsZero() {
			t.ExitPrice = t.ExitPrice.Mul(decimal.NewFromFloat(1 + mc.rng.NormFloat64()*std))
		}

		var perShare decimal.Decimal
		if t.Direction == types.DirectionShort {
			perShare = t.EntryPrice.Sub(t.ExitPrice)
		} else {
			perShare = t.ExitPrice.Sub(t.EntryPrice)
		}
		pnl := perShare.Mul(t.Size)
		t.PnL = &pnl

		cost := t.EntryPrice.Mul(t.Size)
		if cost.GreaterThan(decimal.Zero) {
			pct := pnl.Div(cost).Mul(decimal.NewFromInt(100))
			t.PnLPct = &pct
		}
	}
}

// buildEquityCone computes per-date percentile bands across simulated
// equity curves. Only simulations with an exact-date point contribute; a
// band needs at least five contributors.
func (mc *MonteCarloSimulator) buildEquityCone(coneValues map[time.Time][]float64) []types.EquityConePoint {
	dates := make([]time.Time, 0, len(coneValues))
	for date := range coneValues {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cone := make([]types.EquityConePoint, 0, len(dates))
	for _, date := range dates {
		values := coneValues[date]
		if len(values) < 5 {
			continue
		}
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		cone = append(cone, types.EquityConePoint{
			Date:        date,
			P5:          percentile(sorted, 5),
			P25:         percentile(sorted, 25),
			P50:         percentile(sorted, 50),
			P75:         percentile(sorted, 75),
			P95:         percentile(sorted, 95),
			Simulations: len(values),
		})
	}
	return cone
}

// cloneTrades deep-copies trades so transforms never mutate the base result
func cloneTrades(trades []types.Trade) []types.Trade {
	cloned := make([]types.Trade, len(trades))
	for i, t := range trades {
		cloned[i] = t
		cloned[i].PnL = copyDecimal(t.PnL)
		cloned[i].PnLPct = copyDecimal(t.PnLPct)
		cloned[i].RMultiple = copyDecimal(t.RMultiple)
		cloned[i].StopLoss = copyDecimal(t.StopLoss)
		cloned[i].TakeProfit = copyDecimal(t.TakeProfit)
	}
	return cloned
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// newDistribution summarizes a non-empty metric sample
func newDistribution(values []float64) types.PercentileDistribution {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	var std float64
	if len(values) > 1 {
		std = math.Sqrt(sumSquares / float64(len(values)-1))
	}

	return types.PercentileDistribution{
		P5:     percentile(sorted, 5),
		P25:    percentile(sorted, 25),
		P50:    percentile(sorted, 50),
		P75:    percentile(sorted, 75),
		P95:    percentile(sorted, 95),
		Mean:   mean,
		StdDev: std,
	}
}

// percentile calculates the nth percentile of sorted values with linear
// interpolation
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func fractionBelow(values []float64, threshold float64) float64 {
	count := 0
	for _, v := range values {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func fractionAbove(values []float64, threshold float64) float64 {
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values))
}
