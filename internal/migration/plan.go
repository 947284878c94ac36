// Package migration seeds pool prices and refreshes the pair oracles of an
// already-deployed FRAX system.
package migration

import (
	"math/big"

	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

type Allowance struct {
	Token  registry.Name `json:"token"`
	Amount *big.Int      `json:"amount"`
}

// Swap moves the TokenA/TokenB pool toward the price PriceA/PriceB.
type Swap struct {
	TokenA registry.Name `json:"token_a"`
	TokenB registry.Name `json:"token_b"`
	PriceA *big.Int      `json:"price_a"`
	PriceB *big.Int      `json:"price_b"`
}

// Plan holds every literal the migration sends.
type Plan struct {
	Allowances    []Allowance     `json:"allowances"`
	Spenders      []registry.Name `json:"spenders"`
	Swaps         []Swap          `json:"swaps"`
	MaxSpend      *big.Int        `json:"max_spend"`
	Deadline      *big.Int        `json:"deadline"`
	RefreshPeriod *big.Int        `json:"refresh_period"`
	RestorePeriod *big.Int        `json:"restore_period"`
}

func DefaultPlan() Plan {
	return Plan{
		Allowances: []Allowance{
			{Token: registry.WETH, Amount: tokens(2_000_000)},
			{Token: registry.USDC, Amount: tokens(2_000_000)},
			{Token: registry.USDT, Amount: tokens(2_000_000)},
			{Token: registry.FRAX, Amount: tokens(1_000_000)},
			{Token: registry.FXS, Amount: tokens(5_000_000)},
		},
		Spenders: []registry.Name{registry.Router, registry.SwapHelper},
		Swaps: []Swap{
			{TokenA: registry.FRAX, TokenB: registry.WETH, PriceA: big.NewInt(365000000), PriceB: big.NewInt(1000000)},
			{TokenA: registry.FRAX, TokenB: registry.USDC, PriceA: big.NewInt(1008000), PriceB: big.NewInt(997000)},
			{TokenA: registry.FRAX, TokenB: registry.USDT, PriceA: big.NewInt(990000), PriceB: big.NewInt(1005000)},
			{TokenA: registry.FXS, TokenB: registry.WETH, PriceA: big.NewInt(1855000000), PriceB: big.NewInt(1000000)},
			{TokenA: registry.FXS, TokenB: registry.USDC, PriceA: big.NewInt(5200000), PriceB: big.NewInt(1000000)},
			{TokenA: registry.FXS, TokenB: registry.USDT, PriceA: big.NewInt(5100000), PriceB: big.NewInt(1000000)},
		},
		MaxSpend:      tokens(100),
		Deadline:      big.NewInt(2105300114),
		RefreshPeriod: big.NewInt(1),
		RestorePeriod: big.NewInt(3600),
	}
}

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// tokens scales a whole-token amount to 18 decimals.
func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wad)
}
