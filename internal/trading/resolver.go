package trading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/observability"
)

const (
	DefaultConcurrency = 8
	DefaultTimeout     = 15 * time.Second
	DefaultSlippageBps = 50
	DefaultDecimals    = 9

	NativeMint = "So11111111111111111111111111111111111111112"
)

// KnownDecimals are used when the wallet does not report a mint's decimals.
var KnownDecimals = map[string]int32{
	NativeMint:                                     9,
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": 6,
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": 6,
}

// ResolverOptions 报价并发参数
type ResolverOptions struct {
	Concurrency int           `json:"concurrency" yaml:"concurrency"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	SlippageBps int           `json:"slippage_bps" yaml:"slippage_bps"`
	// native amounts always use NativeDecimals, whatever the wallet reports
	NativeMint     string `json:"native_mint" yaml:"native_mint"`
	NativeDecimals int32  `json:"native_decimals" yaml:"native_decimals"`
}

// Resolver turns guarded actions into aggregator quotes, one task per action.
// A failing action never affects its siblings.
type Resolver struct {
	aggregator Aggregator
	opts       ResolverOptions
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewResolver(aggregator Aggregator, opts ResolverOptions, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = DefaultSlippageBps
	}
	if opts.NativeMint == "" {
		opts.NativeMint = NativeMint
	}
	if opts.NativeDecimals <= 0 {
		opts.NativeDecimals = DefaultDecimals
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{aggregator: aggregator, opts: opts, logger: logger, metrics: metrics}
}

// Resolve quotes every action. The result has one entry per action, in the
// same order. A non-empty userPublicKey additionally builds an unsigned
// transaction for each successful quote.
func (r *Resolver) Resolve(ctx context.Context, actions []models.OptimizationAction, userPublicKey string) []models.QuoteResult {
	return r.ResolveForWallet(ctx, actions, nil, userPublicKey)
}

// ResolveForWallet is Resolve with token decimals taken from the wallet's
// assets where reported.
func (r *Resolver) ResolveForWallet(ctx context.Context, actions []models.OptimizationAction, assets []models.Asset, userPublicKey string) []models.QuoteResult {
	results := make([]models.QuoteResult, len(actions))
	if len(actions) == 0 {
		return results
	}
	decimals := walletDecimals(assets)

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, action := range actions {
		g.Go(func() error {
			results[i] = r.resolveOne(ctx, action, decimals, userPublicKey)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Resolver) resolveOne(ctx context.Context, action models.OptimizationAction, decimals map[string]int32, userPublicKey string) models.QuoteResult {
	res := models.QuoteResult{Action: action}

	amount, err := SmallestUnits(action.Amount, r.decimalsFor(action.InputMint, decimals))
	if err != nil {
		res.Quote = models.NewQuoteError(err.Error())
		return res
	}

	quote, err := timed(ctx, r, "quote", func(cctx context.Context) (map[string]any, error) {
		return r.aggregator.Quote(cctx, QuoteRequest{
			InputMint:   action.InputMint,
			OutputMint:  action.OutputMint,
			Amount:      amount,
			SlippageBps: r.opts.SlippageBps,
		})
	})
	if err != nil {
		r.logger.Warn("quote failed",
			"aggregator", r.aggregator.Name(),
			"input_mint", action.InputMint,
			"output_mint", action.OutputMint,
			"amount", amount,
			"error", err)
		res.Quote = models.NewQuoteError(err.Error())
		return res
	}
	res.Quote = quote

	if userPublicKey == "" {
		return res
	}
	tx, err := timed(ctx, r, "swap", func(cctx context.Context) (string, error) {
		return r.aggregator.SwapTransaction(cctx, quote, userPublicKey)
	})
	if err != nil {
		r.logger.Warn("swap transaction failed",
			"aggregator", r.aggregator.Name(),
			"input_mint", action.InputMint,
			"output_mint", action.OutputMint,
			"error", err)
		res.TransactionError = err.Error()
		return res
	}
	res.Transaction = &tx
	return res
}

// timed runs one aggregator request under its own timeout.
func timed[T any](ctx context.Context, r *Resolver, stage string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	out, err := fn(cctx)
	if err == nil && cctx.Err() != nil {
		err = cctx.Err()
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		err = apperr.Wrap(apperr.CodeQuoteFailure, fmt.Sprintf("%s request failed", stage), err)
	}
	r.metrics.RecordQuote(stage, outcome, time.Since(start))
	return out, err
}

// SmallestUnits converts a whole-token amount to an integer string of the
// token's smallest unit, truncating sub-unit dust.
func SmallestUnits(amount decimal.Decimal, decimals int32) (string, error) {
	units := amount.Shift(decimals).Truncate(0)
	if !units.IsPositive() {
		return "", apperr.Newf(apperr.CodeQuoteFailure, "amount %s is below one smallest unit", amount)
	}
	return units.String(), nil
}

// ValidatePublicKey checks that key is a base58 encoded 32 byte address.
func ValidatePublicKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.New(apperr.CodeValidation, "userPublicKey is required")
	}
	b, err := base58.Decode(key)
	if err != nil || len(b) != 32 {
		return apperr.Newf(apperr.CodeValidation, "userPublicKey %q is not a valid address", key)
	}
	return nil
}

func walletDecimals(assets []models.Asset) map[string]int32 {
	out := make(map[string]int32, len(assets))
	for _, a := range assets {
		// zero means the wallet did not report decimals
		if a.TokenID != "" && a.Decimals > 0 {
			out[a.TokenID] = int32(a.Decimals)
		}
	}
	return out
}

func (r *Resolver) decimalsFor(mint string, wallet map[string]int32) int32 {
	if mint == r.opts.NativeMint {
		return r.opts.NativeDecimals
	}
	if d, ok := wallet[mint]; ok {
		return d
	}
	if d, ok := KnownDecimals[mint]; ok {
		return d
	}
	return DefaultDecimals
}
