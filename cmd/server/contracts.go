package main

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/adapters"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/config"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

// Ethereum mainnet contract addresses. Other chains reuse the same
// adapter code with addresses from the chain registry.
var (
	aaveV3Pool       = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	compoundCometUSD = common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3")
	morphoBlue       = common.HexToAddress("0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb")
	stethToken       = common.HexToAddress("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84")
	stethEthFeed     = common.HexToAddress("0x86392dC19c0b719886221c78AB11eb8Cf5c52812")
	curveStethPool   = common.HexToAddress("0xDC24316b9AE028F1497c275EB9192a3Ea0f67022")
	rethToken        = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	uniswapNFPM      = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	uniswapFactory   = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// morphoMarkets lists the isolated Morpho Blue markets the monitor tracks.
var morphoMarkets = []adapters.MorphoMarket{
	{
		ID:                 common.HexToHash("0xc54d7acf14de29e0e5527cabd7a576506870346a78a11a6762e2cca66322ec41"),
		Label:              "wstETH/WETH",
		LoanSymbol:         "WETH",
		LoanDecimals:       18,
		CollateralSymbol:   "STETH",
		CollateralDecimals: 18,
		LLTV:               0.945,
		OracleType:         "chainlink",
	},
	{
		ID:                 common.HexToHash("0x3a85e619751152991742810df6ec69ce473daef99e28a64ab2340d7b7ccfee49"),
		Label:              "WBTC/USDC",
		LoanSymbol:         "USDC",
		LoanDecimals:       6,
		CollateralSymbol:   "WBTC",
		CollateralDecimals: 8,
		LLTV:               0.86,
		OracleType:         "chainlink",
	},
}

// yearnVaults lists the tracked Yearn vaults with their strategy shape.
var yearnVaults = []adapters.YearnVault{
	{
		Address:             common.HexToAddress("0xdA816459F1AB5631232FE5e97a05BBBb94970c95"),
		Symbol:              "yvDAI",
		UnderlyingSymbol:    "DAI",
		Decimals:            18,
		Version:             "v2",
		StrategyCount:       3,
		UnderlyingProtocols: []string{"aave", "compound"},
	},
	{
		Address:             common.HexToAddress("0xBe53A109B494E5c9f97b9Cd39Fe969BE68BF6204"),
		Symbol:              "yvUSDC-A",
		UnderlyingSymbol:    "USDC",
		Decimals:            6,
		Version:             "v3",
		StrategyCount:       5,
		UnderlyingProtocols: []string{"aave", "compound", "morpho"},
	},
}

// uniswapTokens maps mainnet token addresses to valuation info. Positions
// in tokens outside this table are skipped with a warning.
var uniswapTokens = map[common.Address]adapters.TokenInfo{
	common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"): {Symbol: "WETH", Decimals: 18},
	common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): {Symbol: "USDC", Decimals: 6},
	common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"): {Symbol: "USDT", Decimals: 6},
	common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"): {Symbol: "DAI", Decimals: 18},
	common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"): {Symbol: "WBTC", Decimals: 8},
	stethToken: {Symbol: "STETH", Decimals: 18},
}

// buildRegistry registers every protocol adapter with a cache TTL matched
// to how quickly its positions move. Lending health factors go stale in
// minutes; staking token balances barely move within an hour.
func buildRegistry(caller adapters.ContractCaller, prices adapters.PriceSource, cfg config.Config) *adapters.Registry {
	registry := adapters.NewRegistry()

	registry.Register(adapters.NewAaveAdapter(caller, types.ChainEthereum, aaveV3Pool), 2*time.Minute)
	registry.Register(adapters.NewCompoundAdapter(caller, prices, types.ChainEthereum, compoundCometUSD, "USDC", 6), 2*time.Minute)
	registry.Register(adapters.NewMorphoAdapter(caller, prices, types.ChainEthereum, morphoBlue, morphoMarkets), 5*time.Minute)
	registry.Register(adapters.NewUniswapV3Adapter(caller, prices, types.ChainEthereum, uniswapNFPM, uniswapFactory, uniswapTokens), 5*time.Minute)
	registry.Register(adapters.NewYearnAdapter(caller, prices, types.ChainEthereum, yearnVaults), 10*time.Minute)
	registry.Register(adapters.NewLidoAdapter(caller, prices, types.ChainEthereum, stethToken, stethEthFeed, curveStethPool), 10*time.Minute)
	registry.Register(adapters.NewRocketPoolAdapter(caller, prices, types.ChainEthereum, rethToken, cfg.RocketNodeCollateralRatio), 10*time.Minute)

	logrus.Infof("Registered %d protocol adapters", len(registry.Protocols()))
	return registry
}
