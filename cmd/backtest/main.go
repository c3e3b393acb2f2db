// Package main provides the entry point for the backtest CLI. It loads a
// strategy configuration, runs the historical simulation and optional
// Monte Carlo and walk-forward analyses, and writes a JSON report to
// stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stratforge/backtest/internal/backtester"
	"github.com/stratforge/backtest/internal/data"
	sig "github.com/stratforge/backtest/internal/signal"
	"github.com/stratforge/backtest/pkg/types"
)

// fileConfig mirrors the YAML config file. Money amounts are plain floats
// here and converted to decimals at the boundary.
type fileConfig struct {
	Strategy struct {
		Name          string          `mapstructure:"name"`
		Direction     string          `mapstructure:"direction"`
		Conditions    []sig.Condition `mapstructure:"conditions"`
		StopLossPct   float64         `mapstructure:"stop_loss_pct"`
		TakeProfitPct float64         `mapstructure:"take_profit_pct"`
	} `mapstructure:"strategy"`

	Backtest struct {
		Symbols         []string `mapstructure:"symbols"`
		StartDate       string   `mapstructure:"start_date"`
		EndDate         string   `mapstructure:"end_date"`
		InitialCapital  float64  `mapstructure:"initial_capital"`
		PositionSizePct float64  `mapstructure:"position_size_pct"`
		MaxPositions    int      `mapstructure:"max_positions"`
		Commission      float64  `mapstructure:"commission"`
		SlippagePct     float64  `mapstructure:"slippage_pct"`
		UseStopLoss     bool     `mapstructure:"use_stop_loss"`
		UseTakeProfit   bool     `mapstructure:"use_take_profit"`
	} `mapstructure:"backtest"`

	MonteCarlo struct {
		Enabled           bool    `mapstructure:"enabled"`
		Simulations       int     `mapstructure:"simulations"`
		Seed              int64   `mapstructure:"seed"`
		ShuffleTrades     bool    `mapstructure:"shuffle_trades"`
		TradeRemoval      bool    `mapstructure:"trade_removal"`
		ExecutionVariance bool    `mapstructure:"execution_variance"`
		RemovalPct        float64 `mapstructure:"removal_pct"`
		SlippageStdDev    float64 `mapstructure:"slippage_std_dev"`
	} `mapstructure:"monte_carlo"`

	WalkForward struct {
		Enabled       bool `mapstructure:"enabled"`
		InSampleDays  int  `mapstructure:"in_sample_days"`
		OutSampleDays int  `mapstructure:"out_sample_days"`
	} `mapstructure:"walk_forward"`
}

// report is the JSON document written to stdout after a run
type report struct {
	Backtest    *types.BacktestResult    `json:"backtest"`
	MonteCarlo  *types.MonteCarloResult  `json:"monteCarlo,omitempty"`
	WalkForward *types.WalkForwardResult `json:"walkForward,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path to YAML strategy config")
	dataDir := flag.String("data", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	demo := flag.Bool("demo", false, "Use generated sample data instead of the data directory")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling run")
		cancel()
	}()

	if err := run(ctx, logger, cfg, *dataDir, *demo); err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *fileConfig, dataDir string, demo bool) error {
	startDate, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start_date %q: %w", cfg.Backtest.StartDate, err)
	}
	endDate, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end_date %q: %w", cfg.Backtest.EndDate, err)
	}

	btConfig := &types.BacktestConfig{
		StrategyName:    cfg.Strategy.Name,
		StartDate:       startDate,
		EndDate:         endDate,
		InitialCapital:  decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		PositionSizePct: decimal.NewFromFloat(cfg.Backtest.PositionSizePct),
		MaxPositions:    cfg.Backtest.MaxPositions,
		Commission:      decimal.NewFromFloat(cfg.Backtest.Commission),
		SlippagePct:     decimal.NewFromFloat(cfg.Backtest.SlippagePct),
		UseStopLoss:     cfg.Backtest.UseStopLoss,
		UseTakeProfit:   cfg.Backtest.UseTakeProfit,
	}

	store, err := data.NewStore(logger, dataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize bar store: %w", err)
	}
	if demo {
		for i, symbol := range cfg.Backtest.Symbols {
			store.Preload(symbol, data.GenerateSampleBars(symbol, startDate, endDate, int64(i+1)))
		}
		logger.Info("Demo mode: using generated sample bars",
			zap.Strings("symbols", cfg.Backtest.Symbols),
		)
	}

	source := sig.NewRuleSource(logger, sig.RuleConfig{
		Direction:     types.TradeDirection(cfg.Strategy.Direction),
		Conditions:    cfg.Strategy.Conditions,
		StopLossPct:   decimal.NewFromFloat(cfg.Strategy.StopLossPct),
		TakeProfitPct: decimal.NewFromFloat(cfg.Strategy.TakeProfitPct),
	})

	runner := backtester.NewRunner(logger, store, nil)

	result, err := runner.Run(ctx, source, cfg.Backtest.Symbols, btConfig)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	out := report{Backtest: result}

	if cfg.MonteCarlo.Enabled {
		mc := backtester.NewMonteCarloSimulator(logger, types.MonteCarloConfig{
			Simulations:       cfg.MonteCarlo.Simulations,
			Seed:              cfg.MonteCarlo.Seed,
			ShuffleTrades:     cfg.MonteCarlo.ShuffleTrades,
			TradeRemoval:      cfg.MonteCarlo.TradeRemoval,
			ExecutionVariance: cfg.MonteCarlo.ExecutionVariance,
			RemovalPct:        cfg.MonteCarlo.RemovalPct,
			SlippageStdDev:    cfg.MonteCarlo.SlippageStdDev,
		})
		mcResult, err := mc.Run(result)
		if err != nil {
			logger.Warn("Monte Carlo analysis skipped", zap.Error(err))
		} else {
			out.MonteCarlo = mcResult
		}
	}

	if cfg.WalkForward.Enabled {
		wf := backtester.NewWalkForwardAnalyzer(logger, runner)
		wfResult, err := wf.Run(ctx, source, cfg.Backtest.Symbols, btConfig,
			cfg.WalkForward.InSampleDays, cfg.WalkForward.OutSampleDays)
		if err != nil {
			logger.Warn("Walk-forward analysis skipped", zap.Error(err))
		} else {
			out.WalkForward = wfResult
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// loadConfig reads the YAML config, falling back to built-in defaults when
// no path is given
func loadConfig(path string) (*fileConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy.name", "sma-crossover")
	v.SetDefault("strategy.direction", string(types.DirectionLong))
	v.SetDefault("strategy.conditions", []map[string]interface{}{
		{"kind": "indicator", "indicator": "sma", "period": 20, "op": "above"},
	})
	v.SetDefault("strategy.stop_loss_pct", 0.05)
	v.SetDefault("strategy.take_profit_pct", 0.10)

	v.SetDefault("backtest.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("backtest.start_date", "2023-01-01")
	v.SetDefault("backtest.end_date", "2023-12-31")
	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.position_size_pct", 0.10)
	v.SetDefault("backtest.max_positions", 5)
	v.SetDefault("backtest.commission", 1.0)
	v.SetDefault("backtest.slippage_pct", 0.001)
	v.SetDefault("backtest.use_stop_loss", true)
	v.SetDefault("backtest.use_take_profit", true)

	v.SetDefault("monte_carlo.enabled", true)
	v.SetDefault("monte_carlo.simulations", 1000)
	v.SetDefault("monte_carlo.seed", 42)
	v.SetDefault("monte_carlo.shuffle_trades", true)
	v.SetDefault("monte_carlo.trade_removal", true)
	v.SetDefault("monte_carlo.execution_variance", true)
	v.SetDefault("monte_carlo.removal_pct", 0.10)
	v.SetDefault("monte_carlo.slippage_std_dev", 0.002)

	v.SetDefault("walk_forward.enabled", false)
	v.SetDefault("walk_forward.in_sample_days", 90)
	v.SetDefault("walk_forward.out_sample_days", 30)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
