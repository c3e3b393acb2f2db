// Package backtester provides the day-by-day backtest simulation core.
package backtester

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// BarSource supplies historical daily bars for a symbol, ordered by date
type BarSource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]types.OHLCV, error)
}

// SignalSource produces an entry decision from the bars seen so far
type SignalSource interface {
	Evaluate(ctx context.Context, symbol string, bars []types.OHLCV) (*types.Signal, error)
}

// Runner executes a daily-bar backtest as a sequential state machine:
// each day's open positions and capital depend on the prior day, so a
// single Run call is strictly single-threaded.
type Runner struct {
	logger   *zap.Logger
	bars     BarSource
	slippage SlippageModel
}

// NewRunner creates a backtest runner. A nil slippage model falls back to
// fixed slippage from the run config.
func NewRunner(logger *zap.Logger, bars BarSource, slippage SlippageModel) *Runner {
	return &Runner{
		logger:   logger,
		bars:     bars,
		slippage: slippage,
	}
}

// Run simulates the strategy day by day over the configured date range and
// returns the closed trades, signal counters and computed metrics.
func (r *Runner) Run(ctx context.Context, signals SignalSource, symbols []string, cfg *types.BacktestConfig) (*types.BacktestResult, error) {
	if cfg.EndDate.Before(cfg.StartDate) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			cfg.EndDate.Format("2006-01-02"), cfg.StartDate.Format("2006-01-02"))
	}
	if cfg.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("initial capital must be positive, got %s", cfg.InitialCapital)
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("max positions must be positive, got %d", cfg.MaxPositions)
	}

	slippage := r.slippage
	if slippage == nil {
		slippage = NewFixedSlippage(cfg.SlippagePct)
	}

	// Pre-fetch all bars up front; the day loop performs no I/O.
	series := make(map[string]*barSeries, len(symbols))
	for _, symbol := range symbols {
		bars, err := r.bars.GetBars(ctx, symbol, cfg.StartDate, cfg.EndDate)
		if err != nil {
			r.logger.Warn("No bar data for symbol, excluding from run",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		if len(bars) > 0 {
			series[symbol] = newBarSeries(bars)
		}
	}

	r.logger.Info("Starting backtest",
		zap.String("strategy", cfg.StrategyName),
		zap.Int("symbols", len(series)),
		zap.Time("start", cfg.StartDate),
		zap.Time("end", cfg.EndDate),
	)

	capital := cfg.InitialCapital
	open := make(map[string]*types.Trade, len(symbols))
	trades := make([]types.Trade, 0)
	var counts types.SignalCounts

	for day := cfg.StartDate; !day.After(cfg.EndDate); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, symbol := range symbols {
			s, ok := series[symbol]
			if !ok {
				continue
			}
			bar, ok := s.at(day)
			if !ok {
				// Holiday or data gap: no exits or entries for this symbol today.
				continue
			}

			if trade, isOpen := open[symbol]; isOpen {
				trackExcursion(trade, bar)
				exitPrice, reason, hit := checkExit(trade, bar)
				if hit {
					slip := slippage.Slip(trade.Direction, trade.Size, bar)
					closeTrade(trade, exitPrice, day, reason, slip, cfg.Commission)
					capital = capital.Add(*trade.PnL)
					trades = append(trades, *trade)
					delete(open, symbol)
					r.logger.Debug("Closed position",
						zap.String("symbol", symbol),
						zap.String("reason", reason),
						zap.String("pnl", trade.PnL.String()),
					)
				}
				continue
			}

			if len(open) >= cfg.MaxPositions {
				continue
			}

			sig, err := signals.Evaluate(ctx, symbol, s.upTo(day))
			if err != nil {
				// Partial-failure tolerant: a bad day for one symbol never
				// aborts the run.
				r.logger.Warn("Signal evaluation failed, treating as no entry",
					zap.String("symbol", symbol),
					zap.Time("day", day),
					zap.Error(err),
				)
				continue
			}
			if sig == nil || !sig.Entry {
				continue
			}
			counts.Generated++

			price := sig.ReferencePrice
			if price.IsZero() {
				price = bar.Close
			}
			if price.LessThanOrEqual(decimal.Zero) || capital.LessThanOrEqual(decimal.Zero) {
				counts.Skipped++
				continue
			}
			size := capital.Mul(cfg.PositionSizePct).Div(price)
			if size.LessThanOrEqual(decimal.Zero) {
				counts.Skipped++
				continue
			}

			direction := sig.Direction
			if direction == "" {
				direction = types.DirectionLong
			}

			slip := slippage.Slip(direction, size, bar)
			entryPrice := entryFillPrice(price, direction, slip)
			capital = capital.Sub(cfg.Commission)

			trade := &types.Trade{
				ID:         uuid.New().String(),
				Symbol:     symbol,
				Direction:  direction,
				EntryPrice: entryPrice,
				EntryTime:  day,
				Size:       size,
				MFE:        entryPrice,
				MAE:        entryPrice,
				Status:     types.TradeStatusOpen,
			}
			if cfg.UseStopLoss && sig.StopLoss != nil {
				stop := *sig.StopLoss
				trade.StopLoss = &stop
			}
			if cfg.UseTakeProfit && sig.TakeProfit != nil {
				take := *sig.TakeProfit
				trade.TakeProfit = &take
			}
			open[symbol] = trade
			counts.Executed++

			r.logger.Debug("Opened position",
				zap.String("symbol", symbol),
				zap.String("direction", string(direction)),
				zap.String("entry", entryPrice.String()),
				zap.String("size", size.String()),
			)
		}
	}

	// Force-close everything still open at the last available price so no
	// position is silently dropped.
	for _, symbol := range sortedKeys(open) {
		trade := open[symbol]
		last, ok := series[symbol].last()
		if !ok {
			continue
		}
		closeTrade(trade, last.Close, last.Date, types.ExitReasonEndOfData, decimal.Zero, cfg.Commission)
		capital = capital.Add(*trade.PnL)
		trades = append(trades, *trade)
		delete(open, symbol)
	}

	calc := NewMetricsCalculator()
	metrics := calc.Compute(trades, cfg.InitialCapital, cfg.StartDate, cfg.EndDate)

	r.logger.Info("Backtest completed",
		zap.String("strategy", cfg.StrategyName),
		zap.Int("trades", len(trades)),
		zap.Int("signalsGenerated", counts.Generated),
		zap.String("totalReturnPct", metrics.TotalReturnPct.String()),
	)

	return &types.BacktestResult{
		StrategyName: cfg.StrategyName,
		Config:       *cfg,
		Trades:       trades,
		Metrics:      metrics,
		SignalCounts: counts,
	}, nil
}

// trackExcursion updates the best and worst prices seen while the
// position is open
func trackExcursion(trade *types.Trade, bar types.OHLCV) {
	if trade.Direction == types.DirectionLong {
		if bar.High.GreaterThan(trade.MFE) {
			trade.MFE = bar.High
		}
		if bar.Low.LessThan(trade.MAE) {
			trade.MAE = bar.Low
		}
		return
	}
	if bar.Low.LessThan(trade.MFE) {
		trade.MFE = bar.Low
	}
	if bar.High.GreaterThan(trade.MAE) {
		trade.MAE = bar.High
	}
}

// checkExit evaluates exit levels against the day's range. The stop-loss is
// always evaluated before the take-profit: when both trigger inside the same
// bar the stop wins. This is a fixed policy, not an incidental ordering.
func checkExit(trade *types.Trade, bar types.OHLCV) (decimal.Decimal, string, bool) {
	if trade.Direction == types.DirectionLong {
		if trade.StopLoss != nil && bar.Low.LessThanOrEqual(*trade.StopLoss) {
			return *trade.StopLoss, types.ExitReasonStopLoss, true
		}
		if trade.TakeProfit != nil && bar.High.GreaterThanOrEqual(*trade.TakeProfit) {
			return *trade.TakeProfit, types.ExitReasonTakeProfit, true
		}
		return decimal.Zero, "", false
	}
	if trade.StopLoss != nil && bar.High.GreaterThanOrEqual(*trade.StopLoss) {
		return *trade.StopLoss, types.ExitReasonStopLoss, true
	}
	if trade.TakeProfit != nil && bar.Low.LessThanOrEqual(*trade.TakeProfit) {
		return *trade.TakeProfit, types.ExitReasonTakeProfit, true
	}
	return decimal.Zero, "", false
}

// closeTrade fills the exit with slippage applied against the trader and
// computes realized pnl, pnl percent and the r-multiple
func closeTrade(trade *types.Trade, exitPrice decimal.Decimal, exitTime time.Time, reason string, slip, commission decimal.Decimal) {
	fill := exitFillPrice(exitPrice, trade.Direction, slip)

	var perShare decimal.Decimal
	if trade.Direction == types.DirectionLong {
		perShare = fill.Sub(trade.EntryPrice)
	} else {
		perShare = trade.EntryPrice.Sub(fill)
	}

	pnl := perShare.Mul(trade.Size).Sub(commission)
	trade.PnL = &pnl

	cost := trade.EntryPrice.Mul(trade.Size)
	if cost.GreaterThan(decimal.Zero) {
		pct := pnl.Div(cost).Mul(decimal.NewFromInt(100))
		trade.PnLPct = &pct
	}

	if trade.StopLoss != nil {
		var risk decimal.Decimal
		if trade.Direction == types.DirectionLong {
			risk = trade.EntryPrice.Sub(*trade.StopLoss)
		} else {
			risk = trade.StopLoss.Sub(trade.EntryPrice)
		}
		if risk.GreaterThan(decimal.Zero) {
			r := perShare.Div(risk)
			trade.RMultiple = &r
		}
	}

	trade.ExitPrice = fill
	trade.ExitTime = exitTime
	trade.Status = types.TradeStatusClosed
	trade.ExitReason = reason
}

// barSeries indexes a symbol's bars by calendar date
type barSeries struct {
	bars  []types.OHLCV
	index map[string]int
}

func newBarSeries(bars []types.OHLCV) *barSeries {
	sorted := make([]types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	index := make(map[string]int, len(sorted))
	for i, bar := range sorted {
		index[dateKey(bar.Date)] = i
	}
	return &barSeries{bars: sorted, index: index}
}

func (s *barSeries) at(day time.Time) (types.OHLCV, bool) {
	i, ok := s.index[dateKey(day)]
	if !ok {
		return types.OHLCV{}, false
	}
	return s.bars[i], true
}

// upTo returns all bars up to and including the given day
func (s *barSeries) upTo(day time.Time) []types.OHLCV {
	if i, ok := s.index[dateKey(day)]; ok {
		return s.bars[:i+1]
	}
	i := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].Date.After(day)
	})
	return s.bars[:i]
}

func (s *barSeries) last() (types.OHLCV, bool) {
	if len(s.bars) == 0 {
		return types.OHLCV{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// sortedKeys keeps force-close ordering deterministic across runs
func sortedKeys(m map[string]*types.Trade) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
