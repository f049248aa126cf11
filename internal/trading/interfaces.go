package trading

import (
	"context"
)

// Aggregator is an external swap router able to price and build swaps.
type Aggregator interface {
	// Quote prices a swap of Amount smallest units of InputMint into OutputMint.
	Quote(ctx context.Context, req QuoteRequest) (map[string]any, error)

	// SwapTransaction builds an unsigned, base64 encoded transaction for a
	// quote previously returned by Quote.
	SwapTransaction(ctx context.Context, quote map[string]any, userPublicKey string) (string, error)

	// Name 聚合器名称
	Name() string
}

// QuoteRequest 报价请求
type QuoteRequest struct {
	InputMint  string
	OutputMint string
	// Amount is an integer in the input token's smallest unit.
	Amount      string
	SlippageBps int
}
