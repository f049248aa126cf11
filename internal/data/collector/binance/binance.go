package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const quoteAsset = "USDT"

var stableSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "PYUSD": {}, "USDS": {}, "DAI": {}, "FDUSD": {},
}

// PriceSource 通过 Binance 现货行情获取 USD 价格
type PriceSource struct {
	client *binance.Client
}

func NewPriceSource(apiKey, secretKey string) *PriceSource {
	return &PriceSource{client: binance.NewClient(apiKey, secretKey)}
}

// NewPriceSourceWithClient is used by tests to point at a fake server.
func NewPriceSourceWithClient(client *binance.Client) *PriceSource {
	return &PriceSource{client: client}
}

func (b *PriceSource) Name() string {
	return "binance"
}

// PriceUSD returns the <SYMBOL>USDT last price. Stablecoins are pinned to 1.
func (b *PriceSource) PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := stableSymbols[symbol]; ok {
		return decimal.NewFromInt(1), nil
	}

	pair := symbol + quoteAsset
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price for %s: %w", pair, err)
	}

	for _, p := range prices {
		if p.Symbol != pair {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse price %q: %w", p.Price, err)
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("symbol %s not found", pair)
}
