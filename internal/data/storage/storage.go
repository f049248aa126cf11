package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/songzhibin97/walletopt/internal/models"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultChain        = "Solana"
	DefaultNativeSymbol = "SOL"
	DefaultMinTVL       = 10_000_000
)

// Options 查询参数
type Options struct {
	Chain        string
	NativeSymbol string
	MinTVL       float64
}

func (o Options) withDefaults() Options {
	if o.Chain == "" {
		o.Chain = DefaultChain
	}
	if o.NativeSymbol == "" {
		o.NativeSymbol = DefaultNativeSymbol
	}
	if o.MinTVL <= 0 {
		o.MinTVL = DefaultMinTVL
	}
	return o
}

// SQLStore is the yield pool store. The same SQL runs against postgres and
// sqlite; only placeholders and DDL differ.
type SQLStore struct {
	db     *sql.DB
	driver string
	opts   Options
	now    func() time.Time
}

func NewPostgresStorage(connStr string, opts Options) (*SQLStore, error) {
	return open(DriverPostgres, connStr, opts)
}

// NewSQLiteStorage opens a sqlite database; use ":memory:" for tests.
func NewSQLiteStorage(path string, opts Options) (*SQLStore, error) {
	return open(DriverSQLite, path, opts)
}

// Open picks the dialect by driver name.
func Open(driver, dsn string, opts Options) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return open(driver, dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func open(driver, dsn string, opts Options) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// every pooled connection to ":memory:" would be a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver, opts: opts.withDefaults(), now: time.Now}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites $n placeholders to ? for sqlite.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) InitSchema(ctx context.Context) error {
	idCol, tsType := "id SERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		idCol, tsType = "id INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS yield_pools (
			` + idCol + `,
			chain VARCHAR(50) NOT NULL,
			project VARCHAR(100) NOT NULL,
			pool VARCHAR(100) NOT NULL,
			symbol VARCHAR(100) NOT NULL,
			tvl_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			apy_base DOUBLE PRECISION,
			apy_reward DOUBLE PRECISION,
			apy_pct_1d DOUBLE PRECISION,
			apy_pct_7d DOUBLE PRECISION,
			apy_pct_30d DOUBLE PRECISION,
			stablecoin BOOLEAN NOT NULL DEFAULT FALSE,
			reward_tokens TEXT,
			underlying_tokens TEXT,
			il_risk VARCHAR(20),
			exposure VARCHAR(20),
			predicted_class VARCHAR(50),
			predicted_prob DOUBLE PRECISION,
			binned_confidence DOUBLE PRECISION,
			risk_level VARCHAR(20),
			url TEXT,
			volume_usd_1d DOUBLE PRECISION,
			volume_usd_7d DOUBLE PRECISION,
			created_at ` + tsType + ` NOT NULL,
			updated_at ` + tsType + ` NOT NULL,
			UNIQUE (chain, pool)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_yield_pools_chain_apy ON yield_pools(chain, apy)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// NativeTokenYieldOptions implements data.YieldStore.
func (s *SQLStore) NativeTokenYieldOptions(ctx context.Context) ([]models.YieldPool, error) {
	query := s.rebind(`
        SELECT id, chain, project, pool, symbol, tvl_usd, apy, apy_base, apy_reward,
               reward_tokens, risk_level, url, created_at, updated_at
        FROM yield_pools
        WHERE chain = $1
          AND UPPER(symbol) LIKE $2
          AND symbol NOT LIKE '%-%'
          AND tvl_usd >= $3
        ORDER BY apy DESC, id ASC
    `)

	pattern := "%" + strings.ToUpper(s.opts.NativeSymbol) + "%"
	rows, err := s.db.QueryContext(ctx, query, s.opts.Chain, pattern, s.opts.MinTVL)
	if err != nil {
		return nil, fmt.Errorf("failed to query yield pools: %w", err)
	}
	defer rows.Close()

	var result []models.YieldPool
	for rows.Next() {
		var (
			p                    models.YieldPool
			apyBase, apyReward   sql.NullFloat64
			rewardTokens         sql.NullString
			riskLevel, url       sql.NullString
			createdAt, updatedAt time.Time
		)
		err := rows.Scan(
			&p.ID, &p.Chain, &p.Project, &p.Pool, &p.Symbol, &p.TVLUsd, &p.APY,
			&apyBase, &apyReward, &rewardTokens, &riskLevel, &url, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan yield pool: %w", err)
		}
		p.APYBase = nullFloat(apyBase)
		p.APYReward = nullFloat(apyReward)
		p.RewardTokens = decodeList(rewardTokens)
		p.RiskLevel = riskLevel.String
		p.URL = url.String
		p.CreatedAt = createdAt
		p.UpdatedAt = updatedAt
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating yield pool rows: %w", err)
	}
	return result, nil
}

// UpsertPools implements data.YieldWriter. created_at is kept on refresh.
func (s *SQLStore) UpsertPools(ctx context.Context, pools []models.YieldPool) (int, error) {
	if len(pools) == 0 {
		return 0, nil
	}

	query := s.rebind(`
        INSERT INTO yield_pools (
            chain, project, pool, symbol, tvl_usd, apy, apy_base, apy_reward,
            apy_pct_1d, apy_pct_7d, apy_pct_30d, stablecoin, reward_tokens,
            underlying_tokens, il_risk, exposure, predicted_class, predicted_prob,
            binned_confidence, risk_level, url, volume_usd_1d, volume_usd_7d,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
            $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
        )
        ON CONFLICT (chain, pool) DO UPDATE SET
            project = excluded.project,
            symbol = excluded.symbol,
            tvl_usd = excluded.tvl_usd,
            apy = excluded.apy,
            apy_base = excluded.apy_base,
            apy_reward = excluded.apy_reward,
            apy_pct_1d = excluded.apy_pct_1d,
            apy_pct_7d = excluded.apy_pct_7d,
            apy_pct_30d = excluded.apy_pct_30d,
            stablecoin = excluded.stablecoin,
            reward_tokens = excluded.reward_tokens,
            underlying_tokens = excluded.underlying_tokens,
            il_risk = excluded.il_risk,
            exposure = excluded.exposure,
            predicted_class = excluded.predicted_class,
            predicted_prob = excluded.predicted_prob,
            binned_confidence = excluded.binned_confidence,
            risk_level = excluded.risk_level,
            url = excluded.url,
            volume_usd_1d = excluded.volume_usd_1d,
            volume_usd_7d = excluded.volume_usd_7d,
            updated_at = excluded.updated_at
    `)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, p := range pools {
		if p.Chain == "" || p.Pool == "" {
			return 0, fmt.Errorf("pool %q on chain %q: chain and pool are required", p.Pool, p.Chain)
		}
		_, err := stmt.ExecContext(ctx,
			p.Chain, p.Project, p.Pool, p.Symbol, p.TVLUsd, p.APY,
			optFloat(p.APYBase), optFloat(p.APYReward),
			optFloat(p.APYPct1D), optFloat(p.APYPct7D), optFloat(p.APYPct30D),
			p.Stablecoin, encodeList(p.RewardTokens), encodeList(p.UnderlyingTokens),
			p.ILRisk, p.Exposure, p.PredictedClass, optFloat(p.PredictedProb), optFloat(p.BinnedConfidence),
			p.RiskLevel, p.URL, optFloat(p.VolumeUsd1D), optFloat(p.VolumeUsd7D),
			now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert pool %s: %w", p.Pool, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pools: %w", err)
	}
	return len(pools), nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func optFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func encodeList(vals []string) any {
	if len(vals) == 0 {
		return nil
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func decodeList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		// legacy rows stored a comma separated list
		for _, part := range strings.Split(v.String, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// String is used in log lines.
func (s *SQLStore) String() string {
	return s.driver + " yield store (chain=" + s.opts.Chain + ", min_tvl=" + strconv.FormatFloat(s.opts.MinTVL, 'f', 0, 64) + ")"
}
