package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/walletopt/internal/trading"
	"github.com/songzhibin97/walletopt/internal/utils/request"
)

const (
	DefaultBaseURL = "https://lite-api.jup.ag/swap/v1"

	defaultMaxPriorityLamports = 10_000_000
	defaultPriorityLevel       = "veryHigh"
)

// Config Jupiter 客户端配置
type Config struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// APIKey is sent as x-api-key; required by api.jup.ag, not by lite-api.
	APIKey              string `json:"api_key" yaml:"api_key"`
	MaxPriorityLamports int64  `json:"max_priority_lamports" yaml:"max_priority_lamports"`
	PriorityLevel       string `json:"priority_level" yaml:"priority_level"`
}

// Client implements trading.Aggregator against the Jupiter swap API.
type Client struct {
	cfg        Config
	httpClient *resty.Client
}

var _ trading.Aggregator = (*Client)(nil)

// NewClient builds a client without automatic retries; the per-call timeout
// comes from the caller's context.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxPriorityLamports <= 0 {
		cfg.MaxPriorityLamports = defaultMaxPriorityLamports
	}
	if cfg.PriorityLevel == "" {
		cfg.PriorityLevel = defaultPriorityLevel
	}
	return &Client{cfg: cfg, httpClient: request.New(0, 0)}
}

func (c *Client) Name() string {
	return "jupiter"
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.httpClient.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.SetHeader("x-api-key", c.cfg.APIKey)
	}
	return req
}

// Quote implements trading.Aggregator.
func (c *Client) Quote(ctx context.Context, req trading.QuoteRequest) (map[string]any, error) {
	resp, err := c.newRequest(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   req.InputMint,
			"outputMint":  req.OutputMint,
			"amount":      req.Amount,
			"slippageBps": strconv.Itoa(req.SlippageBps),
		}).
		Get(c.cfg.BaseURL + "/quote")
	if err != nil {
		return nil, fmt.Errorf("failed to execute quote request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("quote", resp)
	}

	quote, err := decodeObject(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if msg, ok := quote["error"].(string); ok && msg != "" {
		return nil, fmt.Errorf("quote rejected: %s", msg)
	}
	return quote, nil
}

type swapRequest struct {
	UserPublicKey             string         `json:"userPublicKey"`
	QuoteResponse             map[string]any `json:"quoteResponse"`
	DynamicComputeUnitLimit   bool           `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports priorityFee    `json:"prioritizationFeeLamports"`
}

type priorityFee struct {
	PriorityLevelWithMaxLamports struct {
		MaxLamports   int64  `json:"maxLamports"`
		PriorityLevel string `json:"priorityLevel"`
	} `json:"priorityLevelWithMaxLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction implements trading.Aggregator. The returned transaction is
// unsigned and base64 encoded.
func (c *Client) SwapTransaction(ctx context.Context, quote map[string]any, userPublicKey string) (string, error) {
	body := swapRequest{
		UserPublicKey:           userPublicKey,
		QuoteResponse:           quote,
		DynamicComputeUnitLimit: true,
	}
	body.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.MaxLamports = c.cfg.MaxPriorityLamports
	body.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.PriorityLevel = c.cfg.PriorityLevel

	resp, err := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.cfg.BaseURL + "/swap")
	if err != nil {
		return "", fmt.Errorf("failed to execute swap request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", apiError("swap", resp)
	}

	var result swapResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("failed to decode swap response: %w", err)
	}
	if result.SwapTransaction == "" {
		return "", fmt.Errorf("swap response has no transaction")
	}
	return result.SwapTransaction, nil
}

// decodeObject keeps numbers as json.Number so quotes round-trip into the
// swap request unchanged.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("empty object")
	}
	return out, nil
}

func apiError(stage string, resp *resty.Response) error {
	var payload struct {
		Error     string `json:"error"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err == nil && payload.Error != "" {
		if payload.ErrorCode != "" {
			return fmt.Errorf("%s: status %d: %s (%s)", stage, resp.StatusCode(), payload.Error, payload.ErrorCode)
		}
		return fmt.Errorf("%s: status %d: %s", stage, resp.StatusCode(), payload.Error)
	}
	return fmt.Errorf("%s: unexpected status code: %d", stage, resp.StatusCode())
}
