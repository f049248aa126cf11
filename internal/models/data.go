package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetType 资产分类
type AssetType string

const (
	AssetTypeSolana           AssetType = "SOLANA"
	AssetTypeStablecoin       AssetType = "STABLECOIN"
	AssetTypeMeme             AssetType = "MEME"
	AssetTypeYieldBearing     AssetType = "YIELD_BEARING"
	AssetTypeLiquidityStaking AssetType = "LIQUIDITY_STAKING"
	AssetTypeOther            AssetType = "OTHER"
)

// ParseAssetType accepts the canonical names as well as the lower-case
// variants emitted by older clients (e.g. "meme_token").
func ParseAssetType(s string) (AssetType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SOLANA":
		return AssetTypeSolana, true
	case "STABLECOIN":
		return AssetTypeStablecoin, true
	case "MEME", "MEME_TOKEN":
		return AssetTypeMeme, true
	case "YIELD_BEARING", "YIELD_BEARING_TOKEN":
		return AssetTypeYieldBearing, true
	case "LIQUIDITY_STAKING", "LIQUIDITY_STAKING_TOKEN":
		return AssetTypeLiquidityStaking, true
	case "OTHER":
		return AssetTypeOther, true
	}
	return "", false
}

// RawHolding 未经处理的持仓记录
type RawHolding struct {
	Name     string           `json:"name,omitempty"`
	Symbol   string           `json:"symbol"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	TokenID  string           `json:"tokenId,omitempty"`
	Decimals *int             `json:"decimals,omitempty"`
	Currency string           `json:"currency,omitempty"`
	ImageURL string           `json:"imageUrl,omitempty"`
	Type     string           `json:"type,omitempty"`
	Tags     []string         `json:"tags,omitempty"`
}

// UnmarshalJSON accepts the field aliases used by the wallet indexers
// (balance, mint, usdValue, image, ...).
func (h *RawHolding) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string           `json:"name"`
		Symbol   string           `json:"symbol"`
		Amount   *decimal.Decimal `json:"amount"`
		Balance  *decimal.Decimal `json:"balance"`
		Value    *decimal.Decimal `json:"value"`
		USDValue *decimal.Decimal `json:"usdValue"`
		Price    *decimal.Decimal `json:"price"`
		TokenID  string           `json:"tokenId"`
		Mint     string           `json:"mint"`
		Address  string           `json:"address"`
		Decimals *int             `json:"decimals"`
		Currency string           `json:"currency"`
		ImageURL string           `json:"imageUrl"`
		Image    string           `json:"image"`
		Type     string           `json:"type"`
		Tags     []string         `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*h = RawHolding{
		Name:     raw.Name,
		Symbol:   raw.Symbol,
		Amount:   firstDecimal(raw.Amount, raw.Balance),
		Value:    firstDecimal(raw.Value, raw.USDValue),
		Price:    raw.Price,
		TokenID:  firstString(raw.TokenID, raw.Mint, raw.Address),
		Decimals: raw.Decimals,
		Currency: raw.Currency,
		ImageURL: firstString(raw.ImageURL, raw.Image),
		Type:     raw.Type,
		Tags:     raw.Tags,
	}
	return nil
}

func firstDecimal(vals ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Asset 标准化后的资产
type Asset struct {
	Type       AssetType       `json:"type"`
	Symbol     string          `json:"symbol"`
	Amount     decimal.Decimal `json:"amount"`
	Value      decimal.Decimal `json:"value"`
	Percentage decimal.Decimal `json:"percentage"`
	TokenID    string          `json:"tokenId"`
	Decimals   int             `json:"decimals"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	ImageURL   string          `json:"imageUrl,omitempty"`
}

// YieldPool 收益池快照
type YieldPool struct {
	ID               int64     `json:"-"`
	Chain            string    `json:"chain"`
	Project          string    `json:"project"`
	Pool             string    `json:"pool"`
	Symbol           string    `json:"symbol"`
	TVLUsd           float64   `json:"tvlUsd"`
	APY              float64   `json:"apy"`
	APYBase          *float64  `json:"apyBase,omitempty"`
	APYReward        *float64  `json:"apyReward,omitempty"`
	APYPct1D         *float64  `json:"apyPct1D,omitempty"`
	APYPct7D         *float64  `json:"apyPct7D,omitempty"`
	APYPct30D        *float64  `json:"apyPct30D,omitempty"`
	Stablecoin       bool      `json:"stablecoin"`
	RewardTokens     []string  `json:"rewardTokens,omitempty"`
	UnderlyingTokens []string  `json:"underlyingTokens,omitempty"`
	ILRisk           string    `json:"ilRisk,omitempty"`
	Exposure         string    `json:"exposure,omitempty"`
	PredictedClass   string    `json:"predictedClass,omitempty"`
	PredictedProb    *float64  `json:"predictedProb,omitempty"`
	BinnedConfidence *float64  `json:"binnedConfidence,omitempty"`
	RiskLevel        string    `json:"riskLevel,omitempty"`
	URL              string    `json:"url,omitempty"`
	VolumeUsd1D      *float64  `json:"volumeUsd1d,omitempty"`
	VolumeUsd7D      *float64  `json:"volumeUsd7d,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
