// Package types provides configuration types for the backtest core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestConfig represents the immutable inputs for a backtest run.
// PositionSizePct and SlippagePct are decimal fractions (0.1 = 10%),
// Commission is a flat per-trade charge in account currency.
type BacktestConfig struct {
	StrategyName    string          `json:"strategyName"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
	InitialCapital  decimal.Decimal `json:"initialCapital"`
	PositionSizePct decimal.Decimal `json:"positionSizePct"`
	MaxPositions    int             `json:"maxPositions"`
	Commission      decimal.Decimal `json:"commission"`
	SlippagePct     decimal.Decimal `json:"slippagePct"`
	UseStopLoss     bool            `json:"useStopLoss"`
	UseTakeProfit   bool            `json:"useTakeProfit"`
}

// MonteCarloConfig represents Monte Carlo simulation configuration.
// The seed fully determines the draw sequence: identical (config, seed,
// base result) triples produce identical simulation returns.
type MonteCarloConfig struct {
	Simulations       int     `json:"simulations"`
	Seed              int64   `json:"seed"`
	ShuffleTrades     bool    `json:"shuffleTrades"`
	TradeRemoval      bool    `json:"tradeRemoval"`
	ExecutionVariance bool    `json:"executionVariance"`
	RemovalPct        float64 `json:"removalPct"`
	SlippageStdDev    float64 `json:"slippageStdDev"`
}

// WalkForwardConfig represents walk-forward analysis configuration
type WalkForwardConfig struct {
	Enabled       bool `json:"enabled"`
	InSampleDays  int  `json:"inSampleDays"`
	OutSampleDays int  `json:"outSampleDays"`
}

// BacktestResult represents the full output of a backtest run
type BacktestResult struct {
	StrategyName string           `json:"strategyName"`
	Config       BacktestConfig   `json:"config"`
	Trades       []Trade          `json:"trades"`
	Metrics      *BacktestMetrics `json:"metrics"`
	SignalCounts SignalCounts     `json:"signalCounts"`
}

// WalkForwardWindow represents one evaluated out-of-sample window
type WalkForwardWindow struct {
	OutSampleStart time.Time       `json:"outSampleStart"`
	OutSampleEnd   time.Time       `json:"outSampleEnd"`
	Result         *BacktestResult `json:"result"`
}

// WalkForwardResult aggregates all out-of-sample windows. CombinedReturnPct
// is the geometric chain of per-window returns, not an arithmetic sum.
type WalkForwardResult struct {
	Windows           []WalkForwardWindow `json:"windows"`
	CombinedReturnPct decimal.Decimal     `json:"combinedReturnPct"`
	ConsistencyPct    decimal.Decimal     `json:"consistencyPct"`
}
