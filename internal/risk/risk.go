package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/walletopt/internal/data/normalizer"
	"github.com/songzhibin97/walletopt/internal/models"
)

const (
	NativeMint = "So11111111111111111111111111111111111111112"
	JitoSOL    = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	USDCMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	defaultNativeSymbol   = "SOL"
	defaultNativeDecimals = 9
)

// DefaultSymbolMints maps display placeholders to mint addresses. Keys are
// matched case-insensitively.
func DefaultSymbolMints() map[string]string {
	return map[string]string{
		"SOL":                    NativeMint,
		"WSOL":                   NativeMint,
		"JITOSOL":                JitoSOL,
		"HIGHEST APY YIELD POOL": JitoSOL,
		"USDC":                   USDCMint,
		"USDT":                   "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		"MSOL":                   "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So",
		"JUPSOL":                 "jupSoLaHXQiZZTSfEWMTRRgpnyFm8f6sZdosWBjx93v",
		"BSOL":                   "bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1",
	}
}

func DefaultParameters() GuardParameters {
	return GuardParameters{
		GasReserve:     decimal.RequireFromString("0.04"),
		NativeSymbol:   defaultNativeSymbol,
		NativeMint:     NativeMint,
		NativeDecimals: defaultNativeDecimals,
		SymbolMints:    DefaultSymbolMints(),
	}
}

// ActionGuard is the deterministic post-processor for oracle output. Apply
// has no side effects and is safe for concurrent use.
type ActionGuard struct {
	params   GuardParameters
	paramsMu sync.RWMutex
}

func NewActionGuard(params GuardParameters) (*ActionGuard, error) {
	g := &ActionGuard{}
	if err := g.SetParameters(context.Background(), &params); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *ActionGuard) SetParameters(ctx context.Context, params *GuardParameters) error {
	if params == nil {
		return fmt.Errorf("invalid guard parameters: nil")
	}
	if params.GasReserve.IsNegative() {
		return fmt.Errorf("invalid guard parameters: gas reserve must not be negative")
	}
	p := *params
	if p.NativeSymbol == "" {
		p.NativeSymbol = defaultNativeSymbol
	}
	if p.NativeMint == "" {
		p.NativeMint = NativeMint
	}
	if !IsMint(p.NativeMint) {
		return fmt.Errorf("invalid guard parameters: native mint %q is not a valid address", p.NativeMint)
	}
	if p.NativeDecimals <= 0 {
		p.NativeDecimals = defaultNativeDecimals
	}

	table := make(map[string]string, len(p.SymbolMints))
	for symbol, mint := range p.SymbolMints {
		if !IsMint(mint) {
			return fmt.Errorf("invalid guard parameters: mint %q for %s is not a valid address", mint, symbol)
		}
		table[strings.ToUpper(strings.TrimSpace(symbol))] = mint
	}
	p.SymbolMints = table

	g.paramsMu.Lock()
	g.params = p
	g.paramsMu.Unlock()
	return nil
}

func (g *ActionGuard) Parameters() GuardParameters {
	g.paramsMu.RLock()
	defer g.paramsMu.RUnlock()
	return g.params
}

// IsMint reports whether s is a base58 encoded 32 byte address.
func IsMint(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// Apply implements Guard.
func (g *ActionGuard) Apply(assets []models.Asset, hasYield bool, resp *models.OptimizationResponse) (*models.OptimizationResponse, []Drop) {
	params := g.Parameters()
	out := resp.Clone()
	if out == nil {
		return nil, nil
	}

	var drops []Drop

	recs := out.Recommendations[:0]
	for _, r := range out.Recommendations {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Action) == "" {
			drops = append(drops, Drop{Reason: DropIncompleteRecommendation, Title: r.Title})
			continue
		}
		recs = append(recs, r)
	}
	out.Recommendations = recs

	held := normalizer.NativeHolding(assets, params.NativeSymbol, params.NativeMint)
	if held.LessThanOrEqual(params.GasReserve) && !hasYield {
		for _, a := range out.Actions {
			drops = append(drops, Drop{Reason: DropBelowReserve, Action: a})
		}
		out.Actions = []models.OptimizationAction{}
		return out, drops
	}

	holdings := holdingMints(assets)
	budget := held.Sub(params.GasReserve)

	actions := make([]models.OptimizationAction, 0, len(out.Actions))
	for _, a := range out.Actions {
		if !a.Amount.IsPositive() {
			drops = append(drops, Drop{Reason: DropNonPositiveAmount, Action: a})
			continue
		}

		in, inOK := resolveMint(a.InputMint, params.SymbolMints, holdings)
		outMint, outOK := resolveMint(a.OutputMint, params.SymbolMints, holdings)
		if !inOK || !outOK {
			drops = append(drops, Drop{Reason: DropUnresolvedMint, Action: a})
			continue
		}
		if in == outMint {
			drops = append(drops, Drop{Reason: DropSameMint, Action: a})
			continue
		}

		guarded := a
		guarded.InputMint, guarded.OutputMint = in, outMint

		if in == params.NativeMint {
			amount := decimal.Min(guarded.Amount, budget).Truncate(params.NativeDecimals)
			if !amount.IsPositive() {
				drops = append(drops, Drop{Reason: DropReserveExhausted, Action: a})
				continue
			}
			guarded.Amount = amount
			budget = budget.Sub(amount)
		}

		actions = append(actions, guarded)
	}
	out.Actions = actions

	return out, drops
}

// resolveMint maps a placeholder or held symbol to a mint address. Values that
// are already addresses pass through unchanged.
func resolveMint(v string, table, holdings map[string]string) (string, bool) {
	v = strings.TrimSpace(v)
	key := strings.ToUpper(v)
	if mint, ok := table[key]; ok {
		return mint, true
	}
	if IsMint(v) {
		return v, true
	}
	if mint, ok := holdings[key]; ok {
		return mint, true
	}
	return v, false
}

func holdingMints(assets []models.Asset) map[string]string {
	m := make(map[string]string, len(assets))
	for _, a := range assets {
		key := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if key == "" || !IsMint(a.TokenID) {
			continue
		}
		if _, seen := m[key]; !seen {
			m[key] = a.TokenID
		}
	}
	return m
}
