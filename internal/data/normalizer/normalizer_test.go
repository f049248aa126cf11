package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sumPercent(assets []models.Asset) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range assets {
		sum = sum.Add(a.Percentage)
	}
	return sum
}

func TestNormalize_Percentages(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{name: "single asset", values: []string{"42.5"}},
		{name: "even thirds", values: []string{"1", "1", "1"}},
		{name: "uneven", values: []string{"10.01", "20.02", "0.3", "999.99", "0.0001"}},
		{name: "many small", values: []string{"1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1"}},
		{name: "zero value among positives", values: []string{"0", "50", "50"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]models.RawHolding, 0, len(tt.values))
			for i, v := range tt.values {
				raw = append(raw, models.RawHolding{Symbol: string(rune('A' + i)), Value: dec(v)})
			}

			assets, err := Normalize(raw, DefaultOptions())
			require.NoError(t, err)
			require.Len(t, assets, len(tt.values))

			sum := sumPercent(assets)
			assert.True(t, sum.Sub(decimal.NewFromInt(100)).Abs().LessThanOrEqual(decimal.New(1, -1)),
				"percentages sum to %s", sum)

			total := TotalValue(assets)
			for _, a := range assets {
				exact := a.Value.Mul(decimal.NewFromInt(100)).Div(total)
				assert.True(t, exact.Sub(a.Percentage).Abs().LessThanOrEqual(decimal.New(1, -1)),
					"%s: %s vs exact %s", a.Symbol, a.Percentage, exact)
				assert.True(t, a.Percentage.Equal(a.Percentage.Round(1)), "one decimal place")
			}
		})
	}
}

func TestNormalize_EmptyAndZeroTotal(t *testing.T) {
	assets, err := Normalize(nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.True(t, TotalValue(assets).IsZero())

	assets, err = Normalize([]models.RawHolding{
		{Symbol: "SOL", Amount: dec("0")},
		{Symbol: "USDC", Value: dec("0")},
	}, DefaultOptions())
	require.NoError(t, err)
	for _, a := range assets {
		assert.True(t, a.Percentage.IsZero())
	}
}

func TestNormalize_ValidationError(t *testing.T) {
	tests := []struct {
		name string
		raw  models.RawHolding
	}{
		{name: "missing amount and value", raw: models.RawHolding{Symbol: "SOL", Price: dec("150")}},
		{name: "missing symbol and token", raw: models.RawHolding{Amount: dec("1")}},
		{name: "negative amount", raw: models.RawHolding{Symbol: "SOL", Amount: dec("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]models.RawHolding{tt.raw}, DefaultOptions())
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeValidation))
		})
	}
}

func TestNormalize_DerivedFieldsDoNotMutateInput(t *testing.T) {
	amount := dec("2")
	price := dec("150")
	raw := []models.RawHolding{
		{Symbol: "SOL", Amount: amount, Price: price},
		{Symbol: "USDC", Value: dec("100"), Price: dec("1")},
		{Symbol: "JUP", Amount: dec("10"), Value: dec("8")},
	}

	assets, err := Normalize(raw, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "2", amount.String())
	assert.Equal(t, "150", price.String())

	sol := assets[0]
	assert.Equal(t, models.AssetTypeSolana, sol.Type)
	assert.True(t, sol.Value.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 9, sol.Decimals)

	usdc := assets[1]
	assert.True(t, usdc.Amount.Equal(decimal.NewFromInt(100)))

	jup := assets[2]
	assert.True(t, jup.Price.Equal(decimal.RequireFromString("0.8")))

	for _, a := range assets {
		assert.True(t, a.Amount.Mul(a.Price).Sub(a.Value).Abs().LessThan(decimal.New(1, -6)))
	}
}

func TestClassify(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		name string
		raw  models.RawHolding
		want models.AssetType
	}{
		{name: "native symbol", raw: models.RawHolding{Symbol: "sol"}, want: models.AssetTypeSolana},
		{name: "native mint", raw: models.RawHolding{Symbol: "WSOL", TokenID: opts.NativeMint}, want: models.AssetTypeSolana},
		{name: "stable", raw: models.RawHolding{Symbol: "USDC"}, want: models.AssetTypeStablecoin},
		{name: "liquid staking", raw: models.RawHolding{Symbol: "JitoSOL"}, want: models.AssetTypeLiquidityStaking},
		{name: "yield bearing", raw: models.RawHolding{Symbol: "sUSDe"}, want: models.AssetTypeYieldBearing},
		{name: "meme list", raw: models.RawHolding{Symbol: "BONK"}, want: models.AssetTypeMeme},
		{name: "meme tag", raw: models.RawHolding{Symbol: "XYZ", Tags: []string{"Meme"}}, want: models.AssetTypeMeme},
		{name: "explicit type wins", raw: models.RawHolding{Symbol: "USDC", Type: "other"}, want: models.AssetTypeOther},
		{name: "native type on another token", raw: models.RawHolding{Symbol: "BONK", Type: "SOLANA"}, want: models.AssetTypeMeme},
		{name: "native type on unknown token", raw: models.RawHolding{Symbol: "ABC", TokenID: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Type: "solana"}, want: models.AssetTypeOther},
		{name: "native mint typed other", raw: models.RawHolding{Symbol: "SOL", TokenID: opts.NativeMint, Type: "other"}, want: models.AssetTypeSolana},
		{name: "native symbol typed other", raw: models.RawHolding{Symbol: "SOL", Type: "other"}, want: models.AssetTypeSolana},
		{name: "native symbol on foreign mint", raw: models.RawHolding{Symbol: "SOL", TokenID: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"}, want: models.AssetTypeOther},
		{name: "legacy explicit type", raw: models.RawHolding{Symbol: "ABC", Type: "meme_token"}, want: models.AssetTypeMeme},
		{name: "unknown", raw: models.RawHolding{Symbol: "ABC"}, want: models.AssetTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw, opts))
		})
	}
}

func TestRawHolding_Aliases(t *testing.T) {
	var h models.RawHolding
	err := json.Unmarshal([]byte(`{"symbol":"BONK","balance":"1000","usdValue":12.5,"mint":"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263","image":"https://x/y.png"}`), &h)
	require.NoError(t, err)

	require.NotNil(t, h.Amount)
	require.NotNil(t, h.Value)
	assert.Equal(t, "1000", h.Amount.String())
	assert.Equal(t, "12.5", h.Value.String())
	assert.Equal(t, "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", h.TokenID)
	assert.Equal(t, "https://x/y.png", h.ImageURL)
}

func TestNativeHolding(t *testing.T) {
	assets := []models.Asset{
		{Type: models.AssetTypeOther, Symbol: "SOL", TokenID: "SOL", Amount: decimal.RequireFromString("0.03")},
		{Type: models.AssetTypeOther, Symbol: "WSOL", TokenID: defaultNativeMint, Amount: decimal.RequireFromString("0.02")},
		{Type: models.AssetTypeSolana, Symbol: "BONK", TokenID: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Amount: decimal.RequireFromString("1000")},
		{Type: models.AssetTypeSolana, Symbol: "SOL", TokenID: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Amount: decimal.RequireFromString("7")},
		{Type: models.AssetTypeStablecoin, Symbol: "USDC", Amount: decimal.RequireFromString("100")},
	}
	assert.Equal(t, "0.05", NativeHolding(assets, "SOL", defaultNativeMint).String())
}

func TestNormalize_ClientTypeDoesNotMakeNative(t *testing.T) {
	assets, err := Normalize([]models.RawHolding{
		{Symbol: "SOL", TokenID: defaultNativeMint, Amount: dec("0.05")},
		{Symbol: "BONK", Type: "SOLANA", Amount: dec("1000")},
	}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, models.AssetTypeSolana, assets[0].Type)
	assert.Equal(t, models.AssetTypeMeme, assets[1].Type)
	assert.Equal(t, "0.05", NativeHolding(assets, "SOL", defaultNativeMint).String())
}
