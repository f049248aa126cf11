package data

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/models"
)

// YieldStore 收益池只读查询
type YieldStore interface {
	// NativeTokenYieldOptions returns single-asset native-token pools on the
	// configured chain above the liquidity floor, highest APY first.
	NativeTokenYieldOptions(ctx context.Context) ([]models.YieldPool, error)
}

// YieldWriter 收益池写入(由 ingest 任务使用)
type YieldWriter interface {
	// UpsertPools inserts or refreshes pools keyed by (chain, pool).
	UpsertPools(ctx context.Context, pools []models.YieldPool) (int, error)
}

// YieldFeed 外部收益聚合数据源
type YieldFeed interface {
	Name() string
	FetchPools(ctx context.Context) ([]models.YieldPool, error)
}

// PriceSource 提供 symbol -> USD 价格
type PriceSource interface {
	Name() string
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceCollector 负责按顺序回退的多源价格查询
type PriceCollector interface {
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}
