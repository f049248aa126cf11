package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/data/normalizer"
	"github.com/songzhibin97/walletopt/internal/models"
)

const (
	YieldToolName        = "get_solana_native_token_yield_options"
	YieldToolDescription = "Returns single-asset SOL staking and yield pools on Solana with at least 10M USD TVL, highest APY first. Takes no arguments."

	// Placeholders the guard understands in inputMint/outputMint.
	PlaceholderHighestAPY = "Highest APY Yield Pool"
)

// YieldToolSchema is the JSON schema of the (empty) tool arguments.
var YieldToolSchema = json.RawMessage(`{"type":"object","properties":{}}`)

var ErrMalformedResponse = errors.New("malformed oracle response")

// SystemPrompt builds the instruction block shared by all LLM backends.
func SystemPrompt(p PromptParams) string {
	if p.NativeSymbol == "" {
		p.NativeSymbol = "SOL"
	}
	reserve := p.GasReserve.String()

	return fmt.Sprintf(`You are a financial advisor specializing in Solana wallets. Analyze the user's assets and return an optimization plan.

Rules:
- Call %[1]s to see the available %[2]s yield pools before proposing any staking action.
- Always leave at least %[3]s %[2]s unspent for transaction fees.
- Only propose an action when it clearly improves the portfolio. An empty actions list is fine.
- In actions, inputMint and outputMint are token mint addresses. You may use "%[2]s" for the native token, "JitoSOL" for Jito staked SOL and "%[4]s" for the best pool returned by the tool.
- amount is expressed in whole units of the input token, not in smallest units.

Respond with a single JSON object and nothing else:
{
  "walletScore": "A" | "B" | "C" | "D" | "F",
  "summary": string,
  "recommendations": [
    {"title": string, "description": string, "action": string, "potentialReturn": string,
     "riskLevel": string, "implementationDifficulty": string, "timeHorizon": string}
  ],
  "actions": [
    {"inputMint": string, "outputMint": string, "amount": number, "detail": string}
  ]
}`, YieldToolName, p.NativeSymbol, reserve, PlaceholderHighestAPY)
}

// BuildUserPrompt renders the wallet for the model.
func BuildUserPrompt(assets []models.Asset) (string, error) {
	payload := struct {
		TotalValue decimal.Decimal `json:"totalValue"`
		Assets     []models.Asset  `json:"assets"`
	}{TotalValue: normalizer.TotalValue(assets), Assets: assets}
	if payload.Assets == nil {
		payload.Assets = []models.Asset{}
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode assets: %w", err)
	}
	return "User's assets:\n" + string(b), nil
}

type toolPool struct {
	Project      string   `json:"project"`
	Symbol       string   `json:"symbol"`
	Pool         string   `json:"pool"`
	TVLUsd       float64  `json:"tvlUsd"`
	APY          float64  `json:"apy"`
	APYBase      *float64 `json:"apyBase,omitempty"`
	APYReward    *float64 `json:"apyReward,omitempty"`
	RewardTokens []string `json:"rewardTokens,omitempty"`
	RiskLevel    string   `json:"riskLevel,omitempty"`
	URL          string   `json:"url,omitempty"`
}

// EncodeYieldPools is the tool result handed back to the model.
func EncodeYieldPools(pools []models.YieldPool) string {
	out := make([]toolPool, 0, len(pools))
	for _, p := range pools {
		out = append(out, toolPool{
			Project:      p.Project,
			Symbol:       p.Symbol,
			Pool:         p.Pool,
			TVLUsd:       p.TVLUsd,
			APY:          p.APY,
			APYBase:      p.APYBase,
			APYReward:    p.APYReward,
			RewardTokens: p.RewardTokens,
			RiskLevel:    p.RiskLevel,
			URL:          p.URL,
		})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// RunTool dispatches a model tool call. Lookup failures surface to the model
// as an empty pool list.
func RunTool(ctx context.Context, name string, lookup YieldLookup) string {
	if name != YieldToolName {
		b, _ := json.Marshal(map[string]string{"error": "unknown tool " + name})
		return string(b)
	}
	if lookup == nil {
		return "[]"
	}
	pools, err := lookup(ctx)
	if err != nil {
		return "[]"
	}
	return EncodeYieldPools(pools)
}

// DecodeResponse parses model text into a validated response. Markdown fences
// and leading prose around the JSON object are tolerated.
func DecodeResponse(text string) (*models.OptimizationResponse, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")

	start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedResponse)
	}

	var resp models.OptimizationResponse
	if err := json.Unmarshal([]byte(body[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := ValidateResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateResponse checks the fields a response cannot be used without and
// normalizes nil lists to empty ones.
func ValidateResponse(resp *models.OptimizationResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	resp.WalletScore = models.WalletScore(strings.ToUpper(strings.TrimSpace(string(resp.WalletScore))))
	if !resp.WalletScore.Valid() {
		return fmt.Errorf("%w: invalid walletScore %q", ErrMalformedResponse, resp.WalletScore)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrMalformedResponse)
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []models.Recommendation{}
	}
	if resp.Actions == nil {
		resp.Actions = []models.OptimizationAction{}
	}
	return nil
}
