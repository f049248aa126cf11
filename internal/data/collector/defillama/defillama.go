package defillama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/walletopt/internal/models"
	"github.com/songzhibin97/walletopt/internal/utils/request"
)

const DefaultBaseURL = "https://yields.llama.fi"

// Feed reads the public DefiLlama yields endpoint.
type Feed struct {
	baseURL    string
	httpClient *resty.Client
}

func NewFeed(baseURL string) *Feed {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Feed{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: request.Request,
	}
}

func (f *Feed) Name() string {
	return "defillama"
}

type poolsResponse struct {
	Status string      `json:"status"`
	Data   []llamaPool `json:"data"`
}

type llamaPool struct {
	Chain            string   `json:"chain"`
	Project          string   `json:"project"`
	Symbol           string   `json:"symbol"`
	Pool             string   `json:"pool"`
	TVLUsd           float64  `json:"tvlUsd"`
	APY              *float64 `json:"apy"`
	APYBase          *float64 `json:"apyBase"`
	APYReward        *float64 `json:"apyReward"`
	APYPct1D         *float64 `json:"apyPct1D"`
	APYPct7D         *float64 `json:"apyPct7D"`
	APYPct30D        *float64 `json:"apyPct30D"`
	Stablecoin       bool     `json:"stablecoin"`
	RewardTokens     []string `json:"rewardTokens"`
	UnderlyingTokens []string `json:"underlyingTokens"`
	ILRisk           string   `json:"ilRisk"`
	Exposure         string   `json:"exposure"`
	VolumeUsd1D      *float64 `json:"volumeUsd1d"`
	VolumeUsd7D      *float64 `json:"volumeUsd7d"`
	Predictions      *struct {
		PredictedClass       string   `json:"predictedClass"`
		PredictedProbability *float64 `json:"predictedProbability"`
		BinnedConfidence     *float64 `json:"binnedConfidence"`
	} `json:"predictions"`
}

// FetchPools implements data.YieldFeed.
func (f *Feed) FetchPools(ctx context.Context) ([]models.YieldPool, error) {
	resp, err := f.httpClient.R().SetContext(ctx).Get(f.baseURL + "/pools")
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var result poolsResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Status != "" && !strings.EqualFold(result.Status, "success") {
		return nil, fmt.Errorf("feed returned status %q", result.Status)
	}

	pools := make([]models.YieldPool, 0, len(result.Data))
	for _, p := range result.Data {
		if p.Pool == "" || p.Chain == "" {
			continue
		}
		pools = append(pools, toModel(p))
	}
	return pools, nil
}

func toModel(p llamaPool) models.YieldPool {
	out := models.YieldPool{
		Chain:            p.Chain,
		Project:          p.Project,
		Pool:             p.Pool,
		Symbol:           p.Symbol,
		TVLUsd:           p.TVLUsd,
		APYBase:          p.APYBase,
		APYReward:        p.APYReward,
		APYPct1D:         p.APYPct1D,
		APYPct7D:         p.APYPct7D,
		APYPct30D:        p.APYPct30D,
		Stablecoin:       p.Stablecoin,
		RewardTokens:     p.RewardTokens,
		UnderlyingTokens: p.UnderlyingTokens,
		ILRisk:           p.ILRisk,
		Exposure:         p.Exposure,
		VolumeUsd1D:      p.VolumeUsd1D,
		VolumeUsd7D:      p.VolumeUsd7D,
		URL:              "https://defillama.com/yields/pool/" + p.Pool,
	}

	// apy is null for some pools; fall back to base + reward
	switch {
	case p.APY != nil:
		out.APY = *p.APY
	default:
		if p.APYBase != nil {
			out.APY += *p.APYBase
		}
		if p.APYReward != nil {
			out.APY += *p.APYReward
		}
	}

	if p.Predictions != nil {
		out.PredictedClass = p.Predictions.PredictedClass
		out.PredictedProb = p.Predictions.PredictedProbability
		out.BinnedConfidence = p.Predictions.BinnedConfidence
	}
	out.RiskLevel = riskLevel(p)
	return out
}

// riskLevel is a coarse label derived from impermanent-loss exposure and
// pool depth.
func riskLevel(p llamaPool) string {
	switch {
	case strings.EqualFold(p.ILRisk, "yes") || strings.EqualFold(p.Exposure, "multi"):
		return "high"
	case p.TVLUsd < 10_000_000:
		return "medium"
	default:
		return "low"
	}
}
