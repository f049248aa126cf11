package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/songzhibin97/walletopt/internal/ai"
	"github.com/songzhibin97/walletopt/internal/ai/anthropic"
	"github.com/songzhibin97/walletopt/internal/ai/openai"
	"github.com/songzhibin97/walletopt/internal/ai/stub"
	"github.com/songzhibin97/walletopt/internal/cache"
	"github.com/songzhibin97/walletopt/internal/configs"
	"github.com/songzhibin97/walletopt/internal/data"
	"github.com/songzhibin97/walletopt/internal/data/collector"
	"github.com/songzhibin97/walletopt/internal/data/collector/binance"
	"github.com/songzhibin97/walletopt/internal/data/normalizer"
	"github.com/songzhibin97/walletopt/internal/data/storage"
	"github.com/songzhibin97/walletopt/internal/observability"
	"github.com/songzhibin97/walletopt/internal/optimizer"
	"github.com/songzhibin97/walletopt/internal/risk"
	"github.com/songzhibin97/walletopt/internal/trading"
	"github.com/songzhibin97/walletopt/internal/trading/jupiter"
)

// app holds the wired components for one process.
type app struct {
	cfg     *configs.Config
	log     *slog.Logger
	store   *storage.SQLStore
	redis   *redis.Client
	metrics *observability.Metrics
	service *optimizer.Service
}

func applyProxy(cfg *configs.Config, log *slog.Logger) {
	if cfg.Proxy == "" {
		return
	}
	_ = os.Setenv("HTTP_PROXY", cfg.Proxy)
	_ = os.Setenv("HTTPS_PROXY", cfg.Proxy)
	log.Debug("set proxy ok", "proxy", cfg.Proxy)
}

func openStore(cfg *configs.Config) (*storage.SQLStore, error) {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.ConnStr, storage.Options{
		Chain:        cfg.Database.Chain,
		NativeSymbol: cfg.Database.NativeSymbol,
		MinTVL:       cfg.Database.MinTVL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newOracle(cfg *configs.Config, prompt ai.PromptParams) (ai.Oracle, error) {
	o := cfg.Oracle
	switch o.Provider {
	case "stub":
		return stub.NewOracle(cfg.Database.NativeSymbol), nil
	case "openai", "deepseek":
		return openai.NewOracle(openai.Config{
			APIKey:        o.APIKey,
			BaseURL:       o.BaseURL,
			Model:         o.Model,
			Temperature:   float32(o.Temperature),
			MaxToolRounds: o.MaxToolRounds,
			Prompt:        prompt,
		}), nil
	case "anthropic":
		return anthropic.NewOracle(anthropic.Config{
			APIKey:        o.APIKey,
			BaseURL:       o.BaseURL,
			Model:         o.Model,
			MaxTokens:     o.MaxTokens,
			Temperature:   o.Temperature,
			MaxToolRounds: o.MaxToolRounds,
			Prompt:        prompt,
		}), nil
	}
	return nil, fmt.Errorf("unknown oracle provider %q", o.Provider)
}

func newCacheStore(cfg *configs.Config) (cache.Store, *redis.Client) {
	if cfg.Cache.Driver == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return cache.NewRedisStore(client, cfg.CacheTTL()), client
	}
	return cache.NewMemoryStore(cfg.Cache.Size, cfg.CacheTTL()), nil
}

func newApp(cfg *configs.Config, log *slog.Logger) (*app, error) {
	applyProxy(cfg, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("walletopt", reg)

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open yield store: %w", err)
	}
	log.Debug("init storage", "store", store.String())

	guardParams, err := cfg.GuardParameters()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	guard, err := risk.NewActionGuard(guardParams)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	oracle, err := newOracle(cfg, ai.PromptParams{NativeSymbol: cfg.Database.NativeSymbol, GasReserve: guardParams.GasReserve})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Debug("init oracle", "provider", cfg.Oracle.Provider)

	cacheStore, redisClient := newCacheStore(cfg)
	recCache := cache.New(cacheStore,
		cache.WithComputeTimeout(cfg.CacheComputeTimeout()),
		cache.WithLogger(log))

	aggregator := jupiter.NewClient(jupiter.Config{BaseURL: cfg.Quotes.BaseURL, APIKey: cfg.Quotes.APIKey})
	resolver := trading.NewResolver(aggregator, trading.ResolverOptions{
		Concurrency:    cfg.Quotes.Concurrency,
		Timeout:        cfg.QuoteTimeout(),
		SlippageBps:    cfg.Quotes.SlippageBps,
		NativeMint:     guardParams.NativeMint,
		NativeDecimals: guardParams.NativeDecimals,
	}, log, metrics)

	var prices data.PriceCollector
	if cfg.Prices.Enabled {
		prices = collector.NewMultiSourceCollector([]data.PriceSource{
			binance.NewPriceSource(cfg.Prices.APIKey, cfg.Prices.SecretKey),
		}, log)
	}

	normOpts := normalizer.DefaultOptions()
	normOpts.NativeSymbol = cfg.Database.NativeSymbol
	normOpts.NativeMint = guardParams.NativeMint
	normOpts.NativeDecimals = int(guardParams.NativeDecimals)

	svc, err := optimizer.NewService(optimizer.Deps{
		Normalizer:     normOpts,
		Prices:         prices,
		Store:          store,
		Oracle:         oracle,
		OracleAttempts: cfg.Oracle.Attempts,
		Guard:          guard,
		Cache:          recCache,
		Resolver:       resolver,
		Logger:         log,
		Metrics:        metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, redis: redisClient, metrics: metrics, service: svc}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close yield store", "error", err)
	}
}
