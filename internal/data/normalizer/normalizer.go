package normalizer

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	apperr "github.com/songzhibin97/walletopt/internal/errors"
	"github.com/songzhibin97/walletopt/internal/models"
)

const (
	defaultNativeSymbol   = "SOL"
	defaultNativeMint     = "So11111111111111111111111111111111111111112"
	defaultNativeDecimals = 9
	defaultCurrency       = "USD"
)

var (
	stableSymbols = set("USDC", "USDT", "PYUSD", "USDS", "DAI", "FDUSD", "UXD", "USDH", "USDE", "EURC")

	liquidStakingSymbols = set("MSOL", "JITOSOL", "JUPSOL", "BSOL", "STSOL", "INF", "JSOL", "HSOL", "BONKSOL", "VSOL", "DSOL", "LST")

	yieldBearingSymbols = set("SUSDE", "USDY", "SUSD", "SYRUPUSDC", "PST", "ONYC")

	memeSymbols = set("BONK", "WIF", "POPCAT", "TRUMP", "MEW", "BOME", "MYRO", "SAMO", "FARTCOIN", "PNUT", "MOODENG", "GIGA", "DOGE")

	// percentages are allotted in tenths of a percent
	tenthsTotal = decimal.NewFromInt(1000)
	oneTenth    = decimal.New(1, -1)
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// Options 标准化参数
type Options struct {
	NativeSymbol   string
	NativeMint     string
	NativeDecimals int
}

func DefaultOptions() Options {
	return Options{
		NativeSymbol:   defaultNativeSymbol,
		NativeMint:     defaultNativeMint,
		NativeDecimals: defaultNativeDecimals,
	}
}

// Validate checks the structure of raw holdings without deriving anything.
func Validate(raw []models.RawHolding) error {
	for i, h := range raw {
		if h.Amount == nil && h.Value == nil {
			return apperr.Newf(apperr.CodeValidation, "asset %d (%q): amount or value is required", i, h.Symbol)
		}
		if strings.TrimSpace(h.Symbol) == "" && strings.TrimSpace(h.TokenID) == "" {
			return apperr.Newf(apperr.CodeValidation, "asset %d: symbol or tokenId is required", i)
		}
		for _, f := range []struct {
			name string
			val  *decimal.Decimal
		}{{"amount", h.Amount}, {"value", h.Value}, {"price", h.Price}} {
			if f.val != nil && f.val.IsNegative() {
				return apperr.Newf(apperr.CodeValidation, "asset %d (%q): %s must not be negative", i, h.Symbol, f.name)
			}
		}
	}
	return nil
}

// Normalize converts raw holdings into canonical assets. Supplied amounts and
// prices are never altered; missing fields are derived from the others.
func Normalize(raw []models.RawHolding, opts Options) ([]models.Asset, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	if opts.NativeSymbol == "" {
		opts.NativeSymbol = defaultNativeSymbol
	}
	if opts.NativeDecimals <= 0 {
		opts.NativeDecimals = defaultNativeDecimals
	}

	assets := make([]models.Asset, 0, len(raw))
	for _, h := range raw {
		assets = append(assets, normalizeOne(h, opts))
	}

	assignPercentages(assets)
	return assets, nil
}

func normalizeOne(h models.RawHolding, opts Options) models.Asset {
	asset := models.Asset{
		Type:     Classify(h, opts),
		Symbol:   strings.TrimSpace(h.Symbol),
		TokenID:  strings.TrimSpace(h.TokenID),
		Currency: strings.ToUpper(strings.TrimSpace(h.Currency)),
		ImageURL: h.ImageURL,
	}
	if asset.Symbol == "" {
		asset.Symbol = asset.TokenID
	}
	if asset.TokenID == "" {
		asset.TokenID = asset.Symbol
	}
	if asset.Currency == "" {
		asset.Currency = defaultCurrency
	}

	switch {
	case h.Decimals != nil:
		asset.Decimals = *h.Decimals
	case asset.Type == models.AssetTypeSolana:
		asset.Decimals = opts.NativeDecimals
	}

	var price decimal.Decimal
	if h.Price != nil {
		price = *h.Price
	}

	switch {
	case h.Amount != nil:
		asset.Amount = *h.Amount
	case price.IsPositive():
		asset.Amount = h.Value.Div(price)
	}

	switch {
	case h.Value != nil:
		asset.Value = *h.Value
	case h.Price != nil:
		asset.Value = asset.Amount.Mul(price)
	}

	switch {
	case h.Price != nil:
		asset.Price = price
	case asset.Amount.IsPositive():
		asset.Price = asset.Value.Div(asset.Amount)
	}

	return asset
}

// Classify infers the asset type from the token identity, explicit type, tags
// and symbol. Only the native token itself is ever classified as native.
func Classify(h models.RawHolding, opts Options) models.AssetType {
	if IsNative(h.Symbol, h.TokenID, opts.NativeSymbol, opts.NativeMint) {
		return models.AssetTypeSolana
	}
	if t, ok := models.ParseAssetType(h.Type); ok && t != models.AssetTypeSolana {
		return t
	}

	symbol := strings.ToUpper(strings.TrimSpace(h.Symbol))
	if _, ok := stableSymbols[symbol]; ok {
		return models.AssetTypeStablecoin
	}
	if _, ok := liquidStakingSymbols[symbol]; ok {
		return models.AssetTypeLiquidityStaking
	}
	if _, ok := yieldBearingSymbols[symbol]; ok {
		return models.AssetTypeYieldBearing
	}
	if _, ok := memeSymbols[symbol]; ok {
		return models.AssetTypeMeme
	}
	for _, tag := range h.Tags {
		if strings.EqualFold(strings.TrimSpace(tag), "meme") {
			return models.AssetTypeMeme
		}
	}
	return models.AssetTypeOther
}

// assignPercentages sets value/total*100 at one decimal place. Tenths are
// distributed by largest remainder so a positive total always sums to exactly 100.
func assignPercentages(assets []models.Asset) {
	total := TotalValue(assets)
	if !total.IsPositive() {
		for i := range assets {
			assets[i].Percentage = decimal.Zero
		}
		return
	}

	type share struct {
		idx       int
		remainder decimal.Decimal
	}
	shares := make([]share, len(assets))
	allotted := int64(0)
	for i, a := range assets {
		exact := a.Value.Mul(tenthsTotal).Div(total)
		floor := exact.Floor()
		shares[i] = share{idx: i, remainder: exact.Sub(floor)}
		assets[i].Percentage = floor.Mul(oneTenth)
		allotted += floor.IntPart()
	}

	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder.GreaterThan(shares[j].remainder)
	})
	for left := tenthsTotal.IntPart() - allotted; left > 0 && len(shares) > 0; left-- {
		idx := shares[0].idx
		assets[idx].Percentage = assets[idx].Percentage.Add(oneTenth)
		shares = shares[1:]
	}
}

// TotalValue sums asset values.
func TotalValue(assets []models.Asset) decimal.Decimal {
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.Value)
	}
	return total
}

// IsNative reports whether a holding is the native token: its token id is the
// native mint, or its symbol is the native symbol and no other token id is set.
func IsNative(symbol, tokenID, nativeSymbol, nativeMint string) bool {
	if nativeSymbol == "" {
		nativeSymbol = defaultNativeSymbol
	}
	if nativeMint == "" {
		nativeMint = defaultNativeMint
	}
	symbol, tokenID = strings.TrimSpace(symbol), strings.TrimSpace(tokenID)
	if tokenID == nativeMint {
		return true
	}
	return strings.EqualFold(symbol, nativeSymbol) && (tokenID == "" || strings.EqualFold(tokenID, symbol))
}

// NativeHolding returns the summed amount of native-token assets. The asset
// type is not consulted.
func NativeHolding(assets []models.Asset, nativeSymbol, nativeMint string) decimal.Decimal {
	held := decimal.Zero
	for _, a := range assets {
		if IsNative(a.Symbol, a.TokenID, nativeSymbol, nativeMint) {
			held = held.Add(a.Amount)
		}
	}
	return held
}
