package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the contract calls the migration issues.
const (
	ERC20MinimalABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	SwapToPriceABI = `[
		{"name":"swapToPrice","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"truePriceTokenA","type":"uint256"},{"name":"truePriceTokenB","type":"uint256"},{"name":"maxSpendTokenA","type":"uint256"},{"name":"maxSpendTokenB","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]}
	]`

	UniswapPairOracleABI = `[
		{"name":"PERIOD","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"setPeriod","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_period","type":"uint256"}],"outputs":[]},
		{"name":"update","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]}
	]`
)

var (
	ERC20 = mustABI(ERC20MinimalABI)
	// SwapToPrice is the price-setting helper that trades a pair toward a target ratio.
	SwapToPrice = mustABI(SwapToPriceABI)
	PairOracle  = mustABI(UniswapPairOracleABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
