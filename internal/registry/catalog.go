package registry

// Name is the stable key of a contract the migration talks to.
type Name string

const (
	Timelock        Name = "timelock"
	MigrationHelper Name = "migration_helper"
	Governance      Name = "governance"
	Router          Name = "router"
	FRAX            Name = "frax"
	FXS             Name = "fxs"
	WETH            Name = "weth"
	USDC            Name = "usdc"
	USDT            Name = "usdt"
	Factory         Name = "factory"
	SwapHelper      Name = "swap_to_price"

	OracleFRAXWETH Name = "oracle_frax_weth"
	OracleFRAXUSDC Name = "oracle_frax_usdc"
	OracleFRAXUSDT Name = "oracle_frax_usdt"
	OracleFRAXFXS  Name = "oracle_frax_fxs"
	OracleFXSWETH  Name = "oracle_fxs_weth"
	OracleFXSUSDC  Name = "oracle_fxs_usdc"
	OracleFXSUSDT  Name = "oracle_fxs_usdt"
	OracleUSDCWETH Name = "oracle_usdc_weth"
	OracleUSDTWETH Name = "oracle_usdt_weth"

	PoolUSDC Name = "pool_usdc"
	PoolUSDT Name = "pool_usdt"
)

// ContractSpec describes where a contract is found in each resolution mode.
// LocalArtifact is the build artifact read in local-test mode, Artifact is the
// contract type bound in registry mode and Path is the dotted registry key.
type ContractSpec struct {
	Name          Name
	Symbol        string
	LocalArtifact string
	Artifact      string
	Path          string
}

var catalog = []ContractSpec{
	{Name: Timelock, LocalArtifact: "Timelock", Artifact: "Timelock", Path: "misc.timelock"},
	{Name: MigrationHelper, LocalArtifact: "MigrationHelper", Artifact: "MigrationHelper", Path: "misc.migration_helper"},
	{Name: Governance, LocalArtifact: "GovernorAlpha", Artifact: "GovernorAlpha", Path: "governance"},
	{Name: Router, LocalArtifact: "UniswapV2Router02_Modified", Artifact: "UniswapV2Router02", Path: "uniswap_other.router"},
	{Name: FRAX, Symbol: "FRAX", LocalArtifact: "FRAXStablecoin", Artifact: "FRAXStablecoin", Path: "main.FRAX"},
	{Name: FXS, Symbol: "FXS", LocalArtifact: "FRAXShares", Artifact: "FRAXShares", Path: "main.FXS"},
	{Name: WETH, Symbol: "WETH", LocalArtifact: "WETH", Artifact: "WETH", Path: "weth"},
	{Name: USDC, Symbol: "USDC", LocalArtifact: "FakeCollateral_USDC", Artifact: "FakeCollateral_USDC", Path: "collateral.USDC"},
	{Name: USDT, Symbol: "USDT", LocalArtifact: "FakeCollateral_USDT", Artifact: "FakeCollateral_USDT", Path: "collateral.USDT"},
	{Name: Factory, LocalArtifact: "UniswapV2Factory", Artifact: "UniswapV2Factory", Path: "uniswap_other.factory"},
	{Name: SwapHelper, LocalArtifact: "SwapToPrice", Artifact: "SwapToPrice", Path: "pricing.swap_to_price"},
	{Name: OracleFRAXWETH, LocalArtifact: "UniswapPairOracle_FRAX_WETH", Artifact: "UniswapPairOracle_FRAX_WETH", Path: "oracles.FRAX_WETH"},
	{Name: OracleFRAXUSDC, LocalArtifact: "UniswapPairOracle_FRAX_USDC", Artifact: "UniswapPairOracle_FRAX_USDC", Path: "oracles.FRAX_USDC"},
	{Name: OracleFRAXUSDT, LocalArtifact: "UniswapPairOracle_FRAX_USDT", Artifact: "UniswapPairOracle_FRAX_USDT", Path: "oracles.FRAX_USDT"},
	{Name: OracleFRAXFXS, LocalArtifact: "UniswapPairOracle_FRAX_FXS", Artifact: "UniswapPairOracle_FRAX_FXS", Path: "oracles.FRAX_FXS"},
	{Name: OracleFXSWETH, LocalArtifact: "UniswapPairOracle_FXS_WETH", Artifact: "UniswapPairOracle_FXS_WETH", Path: "oracles.FXS_WETH"},
	{Name: OracleFXSUSDC, LocalArtifact: "UniswapPairOracle_FXS_USDC", Artifact: "UniswapPairOracle_FXS_USDC", Path: "oracles.FXS_USDC"},
	{Name: OracleFXSUSDT, LocalArtifact: "UniswapPairOracle_FXS_USDT", Artifact: "UniswapPairOracle_FXS_USDT", Path: "oracles.FXS_USDT"},
	{Name: OracleUSDCWETH, LocalArtifact: "UniswapPairOracle_USDC_WETH", Artifact: "UniswapPairOracle_USDC_WETH", Path: "oracles.USDC_WETH"},
	{Name: OracleUSDTWETH, LocalArtifact: "UniswapPairOracle_USDT_WETH", Artifact: "UniswapPairOracle_USDT_WETH", Path: "oracles.USDT_WETH"},
	{Name: PoolUSDC, LocalArtifact: "Pool_USDC", Artifact: "Pool_USDC", Path: "pools.USDC"},
	{Name: PoolUSDT, LocalArtifact: "Pool_USDT", Artifact: "Pool_USDT", Path: "pools.USDT"},
}

// Catalog returns every contract spec in resolution order.
func Catalog() []ContractSpec {
	return append([]ContractSpec(nil), catalog...)
}

func Lookup(name Name) (ContractSpec, bool) {
	for _, spec := range catalog {
		if spec.Name == name {
			return spec, true
		}
	}
	return ContractSpec{}, false
}

// Oracles lists the pair oracles in the order their batches are issued.
func Oracles() []Name {
	return []Name{
		OracleFRAXWETH,
		OracleFRAXUSDC,
		OracleFRAXUSDT,
		OracleFRAXFXS,
		OracleFXSWETH,
		OracleFXSUSDC,
		OracleFXSUSDT,
		OracleUSDCWETH,
		OracleUSDTWETH,
	}
}
