// Package types provides shared type definitions for the backtest core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection represents long or short exposure
type TradeDirection string

const (
	DirectionLong  TradeDirection = "long"
	DirectionShort TradeDirection = "short"
)

// TradeStatus represents the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusOpen      TradeStatus = "open"
	TradeStatusClosed    TradeStatus = "closed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// Exit reasons recorded on closed trades
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonEndOfData  = "end_of_data"
)

// OHLCV represents a single daily price bar
type OHLCV struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Trade represents a single round-trip trade produced by the runner.
// PnL, PnLPct and RMultiple are nil until the trade is closed; RMultiple
// additionally requires a stop-loss to have been set at entry.
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Direction  TradeDirection   `json:"direction"`
	EntryPrice decimal.Decimal  `json:"entryPrice"`
	EntryTime  time.Time        `json:"entryTime"`
	ExitPrice  decimal.Decimal  `json:"exitPrice"`
	ExitTime   time.Time        `json:"exitTime"`
	Size       decimal.Decimal  `json:"size"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	PnL        *decimal.Decimal `json:"pnl,omitempty"`
	PnLPct     *decimal.Decimal `json:"pnlPct,omitempty"`
	RMultiple  *decimal.Decimal `json:"rMultiple,omitempty"`
	MFE        decimal.Decimal  `json:"mfe"`
	MAE        decimal.Decimal  `json:"mae"`
	Status     TradeStatus      `json:"status"`
	ExitReason string           `json:"exitReason,omitempty"`
}

// Signal represents an entry decision from a signal source.
// Direction defaults to long when empty. Stop and take-profit levels are
// suggestions; the runner applies them subject to config toggles.
type Signal struct {
	Entry          bool             `json:"entry"`
	Direction      TradeDirection   `json:"direction,omitempty"`
	StopLoss       *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"takeProfit,omitempty"`
	ReferencePrice decimal.Decimal  `json:"referencePrice"`
}

// SignalCounts tracks how entry signals were handled during a run
type SignalCounts struct {
	Generated int `json:"generated"`
	Executed  int `json:"executed"`
	Skipped   int `json:"skipped"`
}

// EquityCurvePoint represents a point on the realized equity curve,
// one per day with at least one trade exit
type EquityCurvePoint struct {
	Date        time.Time       `json:"date"`
	Equity      decimal.Decimal `json:"equity"`
	Drawdown    decimal.Decimal `json:"drawdown"`
	DrawdownPct decimal.Decimal `json:"drawdownPct"`
}

// BacktestMetrics represents aggregated performance statistics.
// Nullable fields are nil when undefined: ProfitFactor when gross loss is
// zero, the risk-adjusted ratios when the sample is too short.
type BacktestMetrics struct {
	TotalTrades     int `json:"totalTrades"`
	WinningTrades   int `json:"winningTrades"`
	LosingTrades    int `json:"losingTrades"`
	BreakEvenTrades int `json:"breakEvenTrades"`

	TotalPnL       decimal.Decimal  `json:"totalPnl"`
	GrossProfit    decimal.Decimal  `json:"grossProfit"`
	GrossLoss      decimal.Decimal  `json:"grossLoss"`
	TotalReturnPct decimal.Decimal  `json:"totalReturnPct"`
	WinRate        decimal.Decimal  `json:"winRate"`
	ProfitFactor   *decimal.Decimal `json:"profitFactor,omitempty"`
	Expectancy     decimal.Decimal  `json:"expectancy"`
	AvgWin         decimal.Decimal  `json:"avgWin"`
	AvgLoss        decimal.Decimal  `json:"avgLoss"`
	LargestWin     decimal.Decimal  `json:"largestWin"`
	LargestLoss    decimal.Decimal  `json:"largestLoss"`

	MaxConsecutiveWins   int `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int `json:"maxConsecutiveLosses"`

	MaxDrawdown    decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownPct decimal.Decimal `json:"maxDrawdownPct"`

	SharpeRatio      *float64 `json:"sharpeRatio,omitempty"`
	AnnualVolatility *float64 `json:"annualVolatility,omitempty"`
	CAGR             *float64 `json:"cagr,omitempty"`
	CalmarRatio      *float64 `json:"calmarRatio,omitempty"`

	EquityCurve []EquityCurvePoint `json:"equityCurve"`
}

// PercentileDistribution summarizes one metric's spread across simulations
type PercentileDistribution struct {
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// EquityConePoint is the per-date percentile band across simulated
// equity curves
type EquityConePoint struct {
	Date        time.Time `json:"date"`
	P5          float64   `json:"p5"`
	P25         float64   `json:"p25"`
	P50         float64   `json:"p50"`
	P75         float64   `json:"p75"`
	P95         float64   `json:"p95"`
	Simulations int       `json:"simulations"`
}

// MonteCarloResult is the full output bundle of a Monte Carlo run
type MonteCarloResult struct {
	Config            MonteCarloConfig        `json:"config"`
	Simulations       int                     `json:"simulations"`
	TotalReturn       PercentileDistribution  `json:"totalReturn"`
	MaxDrawdown       PercentileDistribution  `json:"maxDrawdown"`
	WinRate           PercentileDistribution  `json:"winRate"`
	SharpeRatio       *PercentileDistribution `json:"sharpeRatio,omitempty"`
	ProfitFactor      *PercentileDistribution `json:"profitFactor,omitempty"`
	EquityCone        []EquityConePoint       `json:"equityCone"`
	ProbabilityOfLoss float64                 `json:"probabilityOfLoss"`
	ProbabilityOfRuin float64                 `json:"probabilityOfRuin"`
	SimulationReturns []float64               `json:"simulationReturns"`
}
