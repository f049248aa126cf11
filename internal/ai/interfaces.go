package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/models"
)

// YieldLookup fetches native-token yield options. Oracles may call it any
// number of times while reasoning; it must be safe for concurrent use.
type YieldLookup func(ctx context.Context) ([]models.YieldPool, error)

// Oracle produces an optimization plan for a normalized wallet.
type Oracle interface {
	// Optimize returns a structurally valid response or an error. Actions may
	// still reference display placeholders; the guard resolves them.
	Optimize(ctx context.Context, assets []models.Asset, lookup YieldLookup) (*models.OptimizationResponse, error)
}

// PromptParams 提示词参数
type PromptParams struct {
	NativeSymbol string          `json:"native_symbol" yaml:"native_symbol"`
	GasReserve   decimal.Decimal `json:"gas_reserve" yaml:"gas_reserve"`
}

func DefaultPromptParams() PromptParams {
	return PromptParams{NativeSymbol: "SOL", GasReserve: decimal.RequireFromString("0.04")}
}
