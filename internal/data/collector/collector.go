package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/data"
	"github.com/songzhibin97/walletopt/internal/models"
)

var ErrNoPrice = errors.New("no price available")

// MultiSourceCollector tries each price source in order and returns the first
// positive price.
type MultiSourceCollector struct {
	sources []data.PriceSource
	logger  *slog.Logger
}

func NewMultiSourceCollector(sources []data.PriceSource, logger *slog.Logger) *MultiSourceCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSourceCollector{
		sources: sources,
		logger:  logger,
	}
}

// PriceUSD implements data.PriceCollector.
func (c *MultiSourceCollector) PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("empty symbol")
	}

	for _, source := range c.sources {
		price, err := source.PriceUSD(ctx, symbol)
		if err == nil && price.IsPositive() {
			c.logger.Debug("collected price", "source", source.Name(), "symbol", symbol, "price", price.String())
			return price, nil
		}
		c.logger.Warn("failed to collect price", "source", source.Name(), "symbol", symbol, "error", err)
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
	}

	return decimal.Zero, fmt.Errorf("%s: %w from all sources", symbol, ErrNoPrice)
}

// IngestFilter 收益池过滤条件, zero values disable a filter.
type IngestFilter struct {
	Chain   string  `json:"chain" yaml:"chain"`
	Project string  `json:"project" yaml:"project"`
	MinTVL  float64 `json:"min_tvl" yaml:"min_tvl"`
	MinAPY  float64 `json:"min_apy" yaml:"min_apy"`
}

func (f IngestFilter) Match(p models.YieldPool) bool {
	if f.Chain != "" && !strings.EqualFold(p.Chain, f.Chain) {
		return false
	}
	if f.Project != "" && !strings.Contains(strings.ToLower(p.Project), strings.ToLower(f.Project)) {
		return false
	}
	if f.MinTVL > 0 && p.TVLUsd < f.MinTVL {
		return false
	}
	if f.MinAPY > 0 && p.APY < f.MinAPY {
		return false
	}
	return true
}

// YieldIngester pulls the yield feed and upserts matching pools.
type YieldIngester struct {
	feed   data.YieldFeed
	writer data.YieldWriter
	logger *slog.Logger
}

func NewYieldIngester(feed data.YieldFeed, writer data.YieldWriter, logger *slog.Logger) *YieldIngester {
	if logger == nil {
		logger = slog.Default()
	}
	return &YieldIngester{feed: feed, writer: writer, logger: logger}
}

// Run fetches, filters and stores pools, returning how many were written. If
// snapshotPath is set the filtered pools are also written there as JSON.
func (i *YieldIngester) Run(ctx context.Context, filter IngestFilter, snapshotPath string) (int, error) {
	pools, err := i.feed.FetchPools(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pools from %s: %w", i.feed.Name(), err)
	}

	matched := make([]models.YieldPool, 0, len(pools))
	for _, p := range pools {
		if filter.Match(p) {
			matched = append(matched, p)
		}
	}
	i.logger.Info("fetched yield pools", "source", i.feed.Name(), "total", len(pools), "matched", len(matched))

	if snapshotPath != "" {
		if err := writeSnapshot(snapshotPath, matched); err != nil {
			return 0, err
		}
		i.logger.Info("wrote pool snapshot", "path", snapshotPath)
	}

	n, err := i.writer.UpsertPools(ctx, matched)
	if err != nil {
		return 0, fmt.Errorf("failed to store pools: %w", err)
	}
	return n, nil
}

func writeSnapshot(path string, pools []models.YieldPool) error {
	b, err := json.MarshalIndent(pools, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
