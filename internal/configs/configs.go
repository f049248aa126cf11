package configs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/songzhibin97/walletopt/internal/risk"
	"github.com/songzhibin97/walletopt/internal/utils/logger"
)

type Config struct {
	Proxy string `json:"proxy" yaml:"proxy"` // HTTP(S) 代理

	Server Server        `json:"server" yaml:"server"`
	Log    logger.Config `json:"log" yaml:"log"`

	// 收益池数据库
	Database Database `json:"database" yaml:"database"`

	// 推荐缓存
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// AI 模型参数
	Oracle OracleConfig `json:"oracle" yaml:"oracle"`

	// 风险控制参数
	Guard GuardConfig `json:"guard" yaml:"guard"`

	// 报价参数
	Quotes QuoteConfig `json:"quotes" yaml:"quotes"`

	Prices PriceConfig  `json:"prices" yaml:"prices"`
	Ingest IngestConfig `json:"ingest" yaml:"ingest"`
}

type Server struct {
	Addr string `json:"addr" yaml:"addr"`
}

type Database struct {
	Driver       string  `json:"driver" yaml:"driver"`     // postgres 或 sqlite
	ConnStr      string  `json:"conn_str" yaml:"conn_str"` // 数据库连接字符串
	Chain        string  `json:"chain" yaml:"chain"`
	NativeSymbol string  `json:"native_symbol" yaml:"native_symbol"`
	MinTVL       float64 `json:"min_tvl" yaml:"min_tvl"`
}

type CacheConfig struct {
	Driver         string `json:"driver" yaml:"driver"` // memory 或 redis
	TTL            string `json:"ttl" yaml:"ttl"`
	Size           int    `json:"size" yaml:"size"`
	ComputeTimeout string `json:"compute_timeout" yaml:"compute_timeout"`
	Redis          struct {
		Addr     string `json:"addr" yaml:"addr"`
		Password string `json:"password" yaml:"password"`
		DB       int    `json:"db" yaml:"db"`
	} `json:"redis" yaml:"redis"`
}

type OracleConfig struct {
	Provider      string  `json:"provider" yaml:"provider"` // openai, deepseek, anthropic, stub
	APIKey        string  `json:"api_key" yaml:"api_key"`
	BaseURL       string  `json:"base_url" yaml:"base_url"`
	Model         string  `json:"model" yaml:"model"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	MaxTokens     int64   `json:"max_tokens" yaml:"max_tokens"`
	MaxToolRounds int     `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	Attempts      int     `json:"attempts" yaml:"attempts"`
}

type GuardConfig struct {
	GasReserve     string            `json:"gas_reserve" yaml:"gas_reserve"`
	NativeMint     string            `json:"native_mint" yaml:"native_mint"`
	NativeDecimals int32             `json:"native_decimals" yaml:"native_decimals"`
	SymbolMints    map[string]string `json:"symbol_mints" yaml:"symbol_mints"` // 追加或覆盖默认映射
}

type QuoteConfig struct {
	BaseURL     string `json:"base_url" yaml:"base_url"`
	APIKey      string `json:"api_key" yaml:"api_key"`
	Timeout     string `json:"timeout" yaml:"timeout"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
	SlippageBps int    `json:"slippage_bps" yaml:"slippage_bps"`
}

type PriceConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	APIKey    string `json:"api_key" yaml:"api_key"`       // 交易所API密钥
	SecretKey string `json:"secret_key" yaml:"secret_key"` // 交易所密钥
}

type IngestConfig struct {
	FeedURL  string  `json:"feed_url" yaml:"feed_url"`
	Chain    string  `json:"chain" yaml:"chain"`
	Project  string  `json:"project" yaml:"project"`
	MinTVL   float64 `json:"min_tvl" yaml:"min_tvl"`
	MinAPY   float64 `json:"min_apy" yaml:"min_apy"`
	Snapshot string  `json:"snapshot" yaml:"snapshot"`
}

const envPrefix = "WALLETOPT_"

// Load reads a YAML (.yaml/.yml) or JSON config, applies environment
// overrides and defaults, and validates the result. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, cfg)
		default:
			err = json.Unmarshal(b, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, name string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Oracle.APIKey, "ORACLE_API_KEY")
	switch c.Oracle.Provider {
	case "anthropic":
		set(&c.Oracle.APIKey, "ANTHROPIC_API_KEY")
	case "deepseek":
		set(&c.Oracle.APIKey, "DEEPSEEK_API_KEY")
	default:
		set(&c.Oracle.APIKey, "OPENAI_API_KEY")
	}
	set(&c.Database.ConnStr, "DATABASE_DSN")
	set(&c.Cache.Redis.Addr, "REDIS_ADDR")
	set(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	set(&c.Quotes.APIKey, "JUPITER_API_KEY")
	set(&c.Prices.APIKey, "BINANCE_API_KEY")
	set(&c.Prices.SecretKey, "BINANCE_SECRET_KEY")
	set(&c.Server.Addr, "ADDR")
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.ConnStr == "" && c.Database.Driver == "sqlite" {
		c.Database.ConnStr = "walletopt.db"
	}
	if c.Database.Chain == "" {
		c.Database.Chain = "Solana"
	}
	if c.Database.NativeSymbol == "" {
		c.Database.NativeSymbol = "SOL"
	}
	if c.Database.MinTVL == 0 {
		c.Database.MinTVL = 10_000_000
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "10m"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 128
	}
	if c.Cache.ComputeTimeout == "" {
		c.Cache.ComputeTimeout = "2m"
	}

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "stub"
	}
	if c.Oracle.Attempts == 0 {
		c.Oracle.Attempts = 2
	}
	if c.Oracle.MaxToolRounds == 0 {
		c.Oracle.MaxToolRounds = 3
	}
	if c.Oracle.Provider == "deepseek" && c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.deepseek.com/v1"
		if c.Oracle.Model == "" {
			c.Oracle.Model = "deepseek-chat"
		}
	}

	if c.Guard.GasReserve == "" {
		c.Guard.GasReserve = "0.04"
	}
	if c.Guard.NativeMint == "" {
		c.Guard.NativeMint = risk.NativeMint
	}
	if c.Guard.NativeDecimals == 0 {
		c.Guard.NativeDecimals = 9
	}

	if c.Quotes.Timeout == "" {
		c.Quotes.Timeout = "15s"
	}
	if c.Quotes.Concurrency == 0 {
		c.Quotes.Concurrency = 8
	}
	if c.Quotes.SlippageBps == 0 {
		c.Quotes.SlippageBps = 50
	}

	if c.Ingest.Chain == "" {
		c.Ingest.Chain = c.Database.Chain
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.ConnStr == "" {
		return fmt.Errorf("invalid config: database.conn_str is required")
	}
	if c.Database.MinTVL < 0 {
		return fmt.Errorf("invalid config: database.min_tvl must not be negative")
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("invalid config: cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("invalid config: unknown cache driver %q", c.Cache.Driver)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("invalid config: cache.size must be positive")
	}
	for name, v := range map[string]string{
		"cache.ttl":             c.Cache.TTL,
		"cache.compute_timeout": c.Cache.ComputeTimeout,
		"quotes.timeout":        c.Quotes.Timeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive", name)
		}
	}

	switch c.Oracle.Provider {
	case "stub":
	case "openai", "deepseek", "anthropic":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("invalid config: oracle.api_key is required for provider %q", c.Oracle.Provider)
		}
	default:
		return fmt.Errorf("invalid config: unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.Attempts < 1 {
		return fmt.Errorf("invalid config: oracle.attempts must be at least 1")
	}

	if _, err := c.GuardParameters(); err != nil {
		return err
	}
	if c.Quotes.Concurrency < 1 {
		return fmt.Errorf("invalid config: quotes.concurrency must be at least 1")
	}
	if c.Quotes.SlippageBps < 0 || c.Quotes.SlippageBps > 10_000 {
		return fmt.Errorf("invalid config: quotes.slippage_bps out of range")
	}
	return nil
}

// GuardParameters builds the action guard settings, layering configured
// symbol mints over the defaults.
func (c *Config) GuardParameters() (risk.GuardParameters, error) {
	reserve, err := decimal.NewFromString(c.Guard.GasReserve)
	if err != nil {
		return risk.GuardParameters{}, fmt.Errorf("invalid config: guard.gas_reserve: %w", err)
	}
	if reserve.IsNegative() {
		return risk.GuardParameters{}, fmt.Errorf("invalid config: guard.gas_reserve must not be negative")
	}
	if !risk.IsMint(c.Guard.NativeMint) {
		return risk.GuardParameters{}, fmt.Errorf("invalid config: guard.native_mint %q is not a valid address", c.Guard.NativeMint)
	}

	mints := risk.DefaultSymbolMints()
	for sym, mint := range c.Guard.SymbolMints {
		if !risk.IsMint(mint) {
			return risk.GuardParameters{}, fmt.Errorf("invalid config: guard.symbol_mints[%s] is not a valid address", sym)
		}
		mints[strings.ToUpper(sym)] = mint
	}
	return risk.GuardParameters{
		GasReserve:     reserve,
		NativeSymbol:   c.Database.NativeSymbol,
		NativeMint:     c.Guard.NativeMint,
		NativeDecimals: c.Guard.NativeDecimals,
		SymbolMints:    mints,
	}, nil
}

func (c *Config) CacheTTL() time.Duration            { return mustDuration(c.Cache.TTL) }
func (c *Config) CacheComputeTimeout() time.Duration { return mustDuration(c.Cache.ComputeTimeout) }
func (c *Config) QuoteTimeout() time.Duration        { return mustDuration(c.Quotes.Timeout) }

// mustDuration is only called on validated configs.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
