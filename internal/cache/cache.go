package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/songzhibin97/walletopt/internal/models"
)

const (
	DefaultTTL            = 10 * time.Minute
	DefaultSize           = 128
	defaultComputeTimeout = 2 * time.Minute
)

// canonicalAsset omits percentage: it is derived from the values, and its
// rounding ties depend on input order.
type canonicalAsset struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	TokenID  string `json:"tokenId"`
	Amount   string `json:"amount"`
	Value    string `json:"value"`
	Decimals int    `json:"decimals"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// Key is the content address of a normalized asset list. Ordering and
// numeric formatting do not affect it; imageUrl is ignored.
func Key(assets []models.Asset) string {
	entries := make([]canonicalAsset, 0, len(assets))
	for _, a := range assets {
		entries = append(entries, canonicalAsset{
			Type:     string(a.Type),
			Symbol:   strings.ToUpper(strings.TrimSpace(a.Symbol)),
			TokenID:  strings.TrimSpace(a.TokenID),
			Amount:   a.Amount.String(),
			Value:    a.Value.String(),
			Decimals: a.Decimals,
			Price:    a.Price.String(),
			Currency: strings.ToUpper(a.Currency),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		x, y := entries[i], entries[j]
		for _, cmp := range [][2]string{
			{x.TokenID, y.TokenID}, {x.Symbol, y.Symbol}, {x.Type, y.Type},
			{x.Amount, y.Amount}, {x.Value, y.Value}, {x.Price, y.Price}, {x.Currency, y.Currency},
		} {
			if cmp[0] != cmp[1] {
				return cmp[0] < cmp[1]
			}
		}
		return x.Decimals < y.Decimals
	})

	b, _ := json.Marshal(entries)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) (*models.OptimizationResponse, error)

// RecommendationCache memoizes guarded responses. Concurrent misses on the
// same key share a single computation.
type RecommendationCache struct {
	store          Store
	group          singleflight.Group
	computeTimeout time.Duration
	logger         *slog.Logger
}

type Option func(*RecommendationCache)

// WithComputeTimeout bounds the shared computation, which outlives the
// caller that started it.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *RecommendationCache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RecommendationCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(store Store, opts ...Option) *RecommendationCache {
	c := &RecommendationCache{
		store:          store,
		computeTimeout: defaultComputeTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached response for key, or runs fn once across
// all concurrent callers and caches a successful result. hit reports whether
// the value came from the store. Errors are never cached.
func (c *RecommendationCache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (*models.OptimizationResponse, bool, error) {
	if resp, ok := c.lookup(ctx, key); ok {
		return resp, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// the first caller may go away; others are still waiting on this result
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()

		if resp, ok := c.lookup(cctx, key); ok {
			return resp, nil
		}

		resp, err := fn(cctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(cctx, key, resp); err != nil {
			c.logger.Warn("failed to store recommendation", "store", c.store.Name(), "key", key, "error", err)
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		resp, ok := res.Val.(*models.OptimizationResponse)
		if !ok || resp == nil {
			return nil, false, fmt.Errorf("cache: computation for %s returned no response", key)
		}
		return resp.Clone(), false, nil
	}
}

func (c *RecommendationCache) lookup(ctx context.Context, key string) (*models.OptimizationResponse, bool) {
	resp, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "store", c.store.Name(), "key", key, "error", err)
		return nil, false
	}
	if !ok || resp == nil {
		return nil, false
	}
	return resp.Clone(), true
}
