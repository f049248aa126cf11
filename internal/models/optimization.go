package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// WalletScore 钱包评级
type WalletScore string

const (
	WalletScoreA WalletScore = "A"
	WalletScoreB WalletScore = "B"
	WalletScoreC WalletScore = "C"
	WalletScoreD WalletScore = "D"
	WalletScoreF WalletScore = "F"
)

func (s WalletScore) Valid() bool {
	switch s {
	case WalletScoreA, WalletScoreB, WalletScoreC, WalletScoreD, WalletScoreF:
		return true
	}
	return false
}

// OptimizationAction 一次兑换/质押操作
type OptimizationAction struct {
	InputMint  string          `json:"inputMint"`
	OutputMint string          `json:"outputMint"`
	Amount     decimal.Decimal `json:"amount"`
	Detail     string          `json:"detail"`
}

// Recommendation 优化建议
type Recommendation struct {
	Title                    string `json:"title"`
	Description              string `json:"description"`
	Action                   string `json:"action"`
	PotentialReturn          string `json:"potentialReturn"`
	RiskLevel                string `json:"riskLevel"`
	ImplementationDifficulty string `json:"implementationDifficulty"`
	TimeHorizon              string `json:"timeHorizon"`
}

// OptimizationResponse 优化结果
type OptimizationResponse struct {
	WalletScore     WalletScore          `json:"walletScore"`
	Summary         string               `json:"summary"`
	Recommendations []Recommendation     `json:"recommendations"`
	Actions         []OptimizationAction `json:"actions"`
}

// Clone returns a deep copy so cached responses are never shared with callers.
func (r *OptimizationResponse) Clone() *OptimizationResponse {
	if r == nil {
		return nil
	}
	out := &OptimizationResponse{
		WalletScore:     r.WalletScore,
		Summary:         r.Summary,
		Recommendations: make([]Recommendation, len(r.Recommendations)),
		Actions:         make([]OptimizationAction, len(r.Actions)),
	}
	copy(out.Recommendations, r.Recommendations)
	copy(out.Actions, r.Actions)
	return out
}

// QuoteResult 单个操作的报价结果; Quote holds either the aggregator payload
// or an {"error": ...} marker.
type QuoteResult struct {
	Action           OptimizationAction `json:"action"`
	Quote            map[string]any     `json:"quote"`
	Transaction      *string            `json:"transaction,omitempty"`
	TransactionError string             `json:"transactionError,omitempty"`
}

const QuoteErrorKey = "error"

// NewQuoteError builds the error marker stored in QuoteResult.Quote.
func NewQuoteError(msg string) map[string]any {
	return map[string]any{QuoteErrorKey: msg}
}

// Failed reports whether the quote carries an error marker.
func (q QuoteResult) Failed() bool {
	if q.Quote == nil {
		return true
	}
	_, ok := q.Quote[QuoteErrorKey]
	return ok
}

// QuoteJSON re-encodes the quote payload for the transaction-building call.
func (q QuoteResult) QuoteJSON() (json.RawMessage, error) {
	return json.Marshal(q.Quote)
}

// OptimizationResponseWithTx 带报价与未签名交易的优化结果
type OptimizationResponseWithTx struct {
	OptimizationResponse
	Quotes []QuoteResult `json:"quotes"`
}
