// Package stub is a deterministic rule-based oracle used offline and in tests.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/ai"
	"github.com/songzhibin97/walletopt/internal/models"
)

var (
	hundred            = decimal.NewFromInt(100)
	concentrationLimit = decimal.NewFromInt(70)
	minStableShare     = decimal.NewFromInt(5)
	maxMemeShare       = decimal.NewFromInt(30)
)

// Oracle never fails on its own; lookup errors only suppress the stake action.
type Oracle struct {
	nativeSymbol string
	calls        atomic.Int64
}

func NewOracle(nativeSymbol string) *Oracle {
	if nativeSymbol == "" {
		nativeSymbol = "SOL"
	}
	return &Oracle{nativeSymbol: nativeSymbol}
}

// Calls reports how many times Optimize ran.
func (o *Oracle) Calls() int64 {
	return o.calls.Load()
}

// Optimize implements ai.Oracle.
func (o *Oracle) Optimize(ctx context.Context, assets []models.Asset, lookup ai.YieldLookup) (*models.OptimizationResponse, error) {
	o.calls.Add(1)

	total := decimal.Zero
	stable, meme := decimal.Zero, decimal.Zero
	for _, a := range assets {
		total = total.Add(a.Value)
		switch a.Type {
		case models.AssetTypeStablecoin:
			stable = stable.Add(a.Value)
		case models.AssetTypeMeme:
			meme = meme.Add(a.Value)
		}
	}

	resp := &models.OptimizationResponse{
		Recommendations: []models.Recommendation{},
		Actions:         []models.OptimizationAction{},
	}
	if !total.IsPositive() {
		resp.WalletScore = models.WalletScoreF
		resp.Summary = "The wallet holds no priced assets."
		return resp, nil
	}

	penalties := 0
	sorted := append([]models.Asset(nil), assets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value.GreaterThan(sorted[j].Value) })

	top := sorted[0]
	topPct := share(top.Value, total)
	if topPct.GreaterThan(concentrationLimit) {
		penalties++
		resp.Recommendations = append(resp.Recommendations, models.Recommendation{
			Title:                    fmt.Sprintf("Diversify Portfolio by Reducing %s Concentration", top.Symbol),
			Description:              fmt.Sprintf("%s makes up %s%% of the portfolio. Reallocating part of it to other Solana assets or stablecoins reduces exposure to %s-specific volatility.", top.Symbol, topPct.StringFixed(1), top.Symbol),
			Action:                   fmt.Sprintf("Reallocate %s Holdings", top.Symbol),
			PotentialReturn:          "Reduced risk and more stable returns",
			RiskLevel:                "Medium",
			ImplementationDifficulty: "Medium",
			TimeHorizon:              "Immediate",
		})
	}

	stablePct := share(stable, total)
	if stablePct.LessThan(minStableShare) {
		penalties++
		resp.Recommendations = append(resp.Recommendations, models.Recommendation{
			Title:                    "Consider Stablecoin Allocation for Stability",
			Description:              "A small stablecoin allocation hedges against market volatility and keeps capital available for new opportunities.",
			Action:                   "Allocate to Stablecoins",
			PotentialReturn:          "Stable value with potential for lending yield",
			RiskLevel:                "Low",
			ImplementationDifficulty: "Easy",
			TimeHorizon:              "Immediate",
		})
	} else {
		resp.Recommendations = append(resp.Recommendations, models.Recommendation{
			Title:                    "Consider Lending Stablecoins",
			Description:              "Lend idle stablecoins on Solana money markets to earn yield while keeping capital stable.",
			Action:                   "Lend Stablecoins",
			PotentialReturn:          "2-8% annual yield",
			RiskLevel:                "Low-Medium",
			ImplementationDifficulty: "Easy",
			TimeHorizon:              "Short-term",
		})
	}

	if share(meme, total).GreaterThan(maxMemeShare) {
		penalties++
	}

	native := decimal.Zero
	for _, a := range assets {
		if a.Type == models.AssetTypeSolana {
			native = native.Add(a.Amount)
		}
	}
	if native.IsPositive() {
		resp.Recommendations = append(resp.Recommendations, models.Recommendation{
			Title:                    fmt.Sprintf("Explore Staking Opportunities for %s", o.nativeSymbol),
			Description:              fmt.Sprintf("Stake part of your %s through a liquid staking pool to earn passive income while keeping %s exposure.", o.nativeSymbol, o.nativeSymbol),
			Action:                   fmt.Sprintf("Stake %s Tokens", o.nativeSymbol),
			PotentialReturn:          "5-10% annual yield",
			RiskLevel:                "Low",
			ImplementationDifficulty: "Easy",
			TimeHorizon:              "Short-term",
		})

		if lookup != nil {
			if pools, err := lookup(ctx); err == nil && len(pools) > 0 {
				best := pools[0]
				// the guard trims this down to what the gas reserve allows
				resp.Actions = append(resp.Actions, models.OptimizationAction{
					InputMint:  o.nativeSymbol,
					OutputMint: ai.PlaceholderHighestAPY,
					Amount:     native,
					Detail:     fmt.Sprintf("Stake %s into %s (%s) at %.2f%% APY", o.nativeSymbol, best.Project, best.Symbol, best.APY),
				})
			}
		}
	}

	resp.WalletScore = scoreFor(penalties)
	resp.Summary = fmt.Sprintf("Portfolio worth %s USD across %d assets; largest position %s at %s%%.",
		total.StringFixed(2), len(assets), top.Symbol, topPct.StringFixed(1))
	return resp, nil
}

func share(part, total decimal.Decimal) decimal.Decimal {
	return part.Mul(hundred).Div(total)
}

func scoreFor(penalties int) models.WalletScore {
	switch penalties {
	case 0:
		return models.WalletScoreA
	case 1:
		return models.WalletScoreB
	case 2:
		return models.WalletScoreC
	default:
		return models.WalletScoreD
	}
}
