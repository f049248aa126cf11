package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/models"
)

// Guard enforces safety rules on oracle-proposed actions.
type Guard interface {
	// Apply returns a guarded copy of resp and the actions/recommendations it removed.
	Apply(assets []models.Asset, hasYield bool, resp *models.OptimizationResponse) (*models.OptimizationResponse, []Drop)

	// SetParameters replaces the guard parameters
	SetParameters(ctx context.Context, params *GuardParameters) error
}

// GuardParameters 风控参数配置
type GuardParameters struct {
	// GasReserve is the native amount that must stay in the wallet.
	GasReserve     decimal.Decimal   `json:"gas_reserve" yaml:"gas_reserve"`
	NativeSymbol   string            `json:"native_symbol" yaml:"native_symbol"`
	NativeMint     string            `json:"native_mint" yaml:"native_mint"`
	NativeDecimals int32             `json:"native_decimals" yaml:"native_decimals"`
	SymbolMints    map[string]string `json:"symbol_mints" yaml:"symbol_mints"`
}

// DropReason 操作被移除的原因
type DropReason string

const (
	DropIncompleteRecommendation DropReason = "incomplete_recommendation"
	DropNonPositiveAmount        DropReason = "non_positive_amount"
	DropUnresolvedMint           DropReason = "unresolved_mint"
	DropSameMint                 DropReason = "same_mint"
	DropBelowReserve             DropReason = "below_gas_reserve"
	DropReserveExhausted         DropReason = "gas_reserve_exhausted"
)

// Drop records one removed item.
type Drop struct {
	Reason DropReason                `json:"reason"`
	Action models.OptimizationAction `json:"action"`
	Title  string                    `json:"title,omitempty"`
}
