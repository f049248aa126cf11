// Package optimizer composes the wallet optimization pipeline: price
// enrichment, normalization, the cached oracle-and-guard stage and quote
// resolution.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/walletopt/internal/ai"
	"github.com/songzhibin97/walletopt/internal/cache"
	"github.com/songzhibin97/walletopt/internal/data"
	"github.com/songzhibin97/walletopt/internal/data/normalizer"
	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/observability"
	"github.com/songzhibin97/walletopt/internal/risk"
	"github.com/songzhibin97/walletopt/internal/trading"
)

type requestIDKey struct{}

// WithRequestID attaches id to ctx for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Deps 流水线依赖. Prices, Logger and Metrics are optional.
type Deps struct {
	Normalizer normalizer.Options
	Prices     data.PriceCollector
	Store      data.YieldStore
	Oracle     ai.Oracle
	// OracleAttempts bounds oracle calls per computation; values below 1 mean 1.
	OracleAttempts int
	Guard          risk.Guard
	Cache          *cache.RecommendationCache
	Resolver       *trading.Resolver
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

type Service struct {
	deps   Deps
	oracle ai.Oracle
	logger *slog.Logger
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("optimizer: yield store is required")
	case deps.Oracle == nil:
		return nil, fmt.Errorf("optimizer: oracle is required")
	case deps.Guard == nil:
		return nil, fmt.Errorf("optimizer: guard is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("optimizer: cache is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("optimizer: resolver is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:   deps,
		oracle: ai.WithAttempts(deps.Oracle, deps.OracleAttempts, logger),
		logger: logger,
	}, nil
}

// Optimize returns the guarded recommendation for a wallet. Only validation
// and oracle failures are returned as errors.
func (s *Service) Optimize(ctx context.Context, raw []models.RawHolding) (*models.OptimizationResponse, error) {
	ctx, log := s.requestLogger(ctx)
	_, resp, err := s.plan(ctx, log, raw)
	s.deps.Metrics.RecordRequest("optimize", outcome(err))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// OptimizeWithTx additionally quotes every guarded action and builds unsigned
// transactions for userPublicKey. Quote failures are reported per action.
func (s *Service) OptimizeWithTx(ctx context.Context, raw []models.RawHolding, userPublicKey string) (*models.OptimizationResponseWithTx, error) {
	ctx, log := s.requestLogger(ctx)
	if err := trading.ValidatePublicKey(userPublicKey); err != nil {
		s.deps.Metrics.RecordRequest("optimize_tx", outcome(err))
		return nil, err
	}

	assets, resp, err := s.plan(ctx, log, raw)
	if err != nil {
		s.deps.Metrics.RecordRequest("optimize_tx", outcome(err))
		return nil, err
	}

	quotes := s.deps.Resolver.ResolveForWallet(ctx, resp.Actions, assets, strings.TrimSpace(userPublicKey))
	failed := 0
	for _, q := range quotes {
		if q.Failed() {
			failed++
		}
	}
	log.Info("quotes resolved", "actions", len(quotes), "failed", failed)
	s.deps.Metrics.RecordRequest("optimize_tx", "ok")

	return &models.OptimizationResponseWithTx{OptimizationResponse: *resp, Quotes: quotes}, nil
}

// BuildTransaction quotes a single, already concrete action and builds its
// unsigned transaction. Aggregator failures are carried in the result.
func (s *Service) BuildTransaction(ctx context.Context, action models.OptimizationAction, userPublicKey string) (models.QuoteResult, error) {
	ctx, log := s.requestLogger(ctx)
	if err := trading.ValidatePublicKey(userPublicKey); err != nil {
		return models.QuoteResult{}, err
	}
	if !risk.IsMint(action.InputMint) || !risk.IsMint(action.OutputMint) {
		return models.QuoteResult{}, apperr.New(apperr.CodeValidation, "inputMint and outputMint must be mint addresses")
	}
	if action.InputMint == action.OutputMint {
		return models.QuoteResult{}, apperr.New(apperr.CodeValidation, "inputMint and outputMint must differ")
	}
	if !action.Amount.IsPositive() {
		return models.QuoteResult{}, apperr.New(apperr.CodeValidation, "amount must be positive")
	}

	res := s.deps.Resolver.Resolve(ctx, []models.OptimizationAction{action}, strings.TrimSpace(userPublicKey))[0]
	log.Info("transaction built", "input_mint", action.InputMint, "output_mint", action.OutputMint,
		"quote_failed", res.Failed(), "has_transaction", res.Transaction != nil)
	s.deps.Metrics.RecordRequest("transaction", "ok")
	return res, nil
}

func (s *Service) requestLogger(ctx context.Context) (context.Context, *slog.Logger) {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = WithRequestID(ctx, id)
	}
	return ctx, s.logger.With("request_id", id)
}

func (s *Service) plan(ctx context.Context, log *slog.Logger, raw []models.RawHolding) ([]models.Asset, *models.OptimizationResponse, error) {
	if err := normalizer.Validate(raw); err != nil {
		log.Warn("invalid holdings", "error", err)
		return nil, nil, err
	}
	holdings := s.enrich(ctx, log, raw)

	assets, err := normalizer.Normalize(holdings, s.deps.Normalizer)
	if err != nil {
		log.Warn("invalid holdings", "error", err)
		return nil, nil, err
	}

	key := cache.Key(assets)
	resp, hit, err := s.deps.Cache.GetOrCompute(ctx, key, func(cctx context.Context) (*models.OptimizationResponse, error) {
		return s.compute(cctx, log, assets)
	})
	s.deps.Metrics.RecordCacheLookup(hit)
	if err != nil {
		log.Error("optimization failed", "error", err)
		return nil, nil, err
	}

	log.Info("optimization ready",
		"assets", len(assets),
		"cache_hit", hit,
		"wallet_score", resp.WalletScore,
		"actions", len(resp.Actions))
	return assets, resp, nil
}

// compute is the cached unit: one bounded oracle run followed by the guard.
func (s *Service) compute(ctx context.Context, log *slog.Logger, assets []models.Asset) (*models.OptimizationResponse, error) {
	yields := &yieldMemo{store: s.deps.Store, log: log, metrics: s.deps.Metrics}

	start := time.Now()
	resp, err := s.oracle.Optimize(ctx, assets, yields.Lookup)
	if err != nil {
		s.deps.Metrics.RecordOracleCall("error", time.Since(start))
		if _, ok := apperr.As(err); !ok {
			err = apperr.Wrap(apperr.CodeOracleFailure, "oracle failed", err)
		}
		return nil, err
	}
	s.deps.Metrics.RecordOracleCall("ok", time.Since(start))

	guarded, drops := s.deps.Guard.Apply(assets, yields.HasYield(ctx), resp)
	for _, d := range drops {
		s.deps.Metrics.RecordGuardDrop(string(d.Reason))
		log.Debug("guard dropped proposal",
			"reason", d.Reason,
			"title", d.Title,
			"input_mint", d.Action.InputMint,
			"output_mint", d.Action.OutputMint,
			"amount", d.Action.Amount)
	}
	return guarded, nil
}

// enrich prices holdings that carry an amount but neither value nor price.
// The input slice is not modified.
func (s *Service) enrich(ctx context.Context, log *slog.Logger, raw []models.RawHolding) []models.RawHolding {
	if s.deps.Prices == nil {
		return raw
	}
	out := make([]models.RawHolding, len(raw))
	copy(out, raw)
	for i := range out {
		h := &out[i]
		if h.Amount == nil || h.Value != nil || h.Price != nil || strings.TrimSpace(h.Symbol) == "" {
			continue
		}
		price, err := s.deps.Prices.PriceUSD(ctx, h.Symbol)
		if err != nil {
			log.Warn("price enrichment failed", "symbol", h.Symbol, "error", err)
			continue
		}
		h.Price = &price
	}
	return out
}

// yieldMemo queries the store at most once per computation, however many
// times the oracle calls the tool.
type yieldMemo struct {
	store   data.YieldStore
	log     *slog.Logger
	metrics *observability.Metrics

	once  sync.Once
	pools []models.YieldPool
	err   error
}

func (m *yieldMemo) Lookup(ctx context.Context) ([]models.YieldPool, error) {
	m.once.Do(func() {
		m.pools, m.err = m.store.NativeTokenYieldOptions(ctx)
		if m.err != nil {
			m.err = apperr.Wrap(apperr.CodeStoreUnavailable, "yield store unavailable", m.err)
			m.log.Warn("yield lookup failed", "error", m.err)
			m.metrics.RecordYieldLookup("error")
			return
		}
		m.metrics.RecordYieldLookup("ok")
	})
	return m.pools, m.err
}

// HasYield reports whether at least one yield option exists. A store failure
// counts as none.
func (m *yieldMemo) HasYield(ctx context.Context) bool {
	pools, err := m.Lookup(ctx)
	return err == nil && len(pools) > 0
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.CodeOf(err).String()
}
