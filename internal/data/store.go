// Package data provides historical bar storage and loading.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratforge/backtest/pkg/types"
)

// Store loads daily bars from JSON files under a data directory and caches
// them in memory. It implements the runner's BarSource collaborator; all
// data is resident before a backtest loop starts.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.OHLCV
}

// NewStore creates a new bar store rooted at dataDir
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{
		logger:  logger,
		dataDir: dataDir,
		cache:   make(map[string][]types.OHLCV),
	}, nil
}

// GetBars returns the symbol's daily bars within [start, end], sorted by
// date. Missing symbols are an error, never silently empty.
func (s *Store) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]types.OHLCV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[symbol]; ok {
		return filterRange(cached, start, end), nil
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_1d.json", symbol))
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no bar data for symbol %s", symbol)
		}
		return nil, fmt.Errorf("failed to read bar file for %s: %w", symbol, err)
	}

	var bars []types.OHLCV
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse bar file for %s: %w", symbol, err)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	s.cache[symbol] = bars

	return filterRange(bars, start, end), nil
}

// Preload seeds the cache directly, bypassing the filesystem
func (s *Store) Preload(symbol string, bars []types.OHLCV) {
	sorted := make([]types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[symbol] = sorted
}

// SaveBars writes the symbol's bars to disk and updates the cache
func (s *Store) SaveBars(symbol string, bars []types.OHLCV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	raw, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bars for %s: %w", symbol, err)
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_1d.json", symbol))
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write bar file for %s: %w", symbol, err)
	}

	s.cache[symbol] = sorted
	return nil
}

// ClearCache drops all cached bars
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.OHLCV)
}

func filterRange(bars []types.OHLCV, start, end time.Time) []types.OHLCV {
	filtered := make([]types.OHLCV, 0, len(bars))
	for _, bar := range bars {
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		filtered = append(filtered, bar)
	}
	return filtered
}

// GenerateSampleBars produces a deterministic random-walk bar series for
// demos and tests. Weekends carry no bars, matching exchange calendars.
func GenerateSampleBars(symbol string, start, end time.Time, seed int64) []types.OHLCV {
	rng := rand.New(rand.NewSource(seed))

	price := 100.0
	for _, c := range symbol {
		price += float64(c % 16)
	}

	var bars []types.OHLCV
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		change := (rng.Float64() - 0.48) * 0.02 * price
		open := price
		price += change
		cls := price

		high := math.Max(open, cls) * (1 + rng.Float64()*0.005)
		low := math.Min(open, cls) * (1 - rng.Float64()*0.005)
		volume := rng.Float64() * 1000000

		bars = append(bars, types.OHLCV{
			Date:   day,
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(cls),
			Volume: decimal.NewFromFloat(volume),
		})
	}
	return bars
}
