// Command riskcheck runs a one-shot risk assessment from the terminal.
// It scores canned account snapshots so calculator changes can be eyeballed
// without a node or database, and mints API tokens for bootstrap.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/auth"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/config"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/risk"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/validation"
)

func main() {
	address := flag.String("address", "0x000000000000000000000000000000000000dEaD", "account address to stamp on the output")
	protocol := flag.String("protocol", "", "assess a single protocol instead of the whole portfolio")
	mintToken := flag.Bool("mint-token", false, "mint an API token using JWT_SECRET and exit")
	clientID := flag.String("client-id", "", "client id for -mint-token")
	role := flag.String("role", auth.RoleReader, "role for -mint-token (reader or admin)")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)

	if *mintToken {
		mint(*clientID, *role)
		return
	}

	calculators := risk.ByProtocol()
	summaries := sampleSummaries(*address)

	if *protocol != "" {
		summary, ok := summaries[*protocol]
		if !ok {
			fmt.Fprintf(os.Stderr, "no sample data for protocol %q\n", *protocol)
			os.Exit(1)
		}
		printJSON(assessOne(calculators, summary))
		return
	}

	var assessments []model.RiskAssessment
	valueByProtocol := map[string]float64{}
	for _, summary := range summaries {
		assessments = append(assessments, assessOne(calculators, summary))
		valueByProtocol[summary.Protocol] = summary.TotalCollateralUSD + summary.TotalSupplyUSD
	}
	printJSON(risk.CombinePortfolio(*address, assessments, valueByProtocol))
}

// mint issues a token signed with the shared secret so operators can
// bootstrap the first admin client without a running server.
func mint(clientID, role string) {
	if clientID == "" {
		fmt.Fprintln(os.Stderr, "-client-id is required with -mint-token")
		os.Exit(1)
	}
	secret := config.GetEnvOrDefault("JWT_SECRET", "")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}

	svc := auth.NewService(secret, "defi-risk-monitor", 24*time.Hour)
	token, err := svc.IssueToken(clientID, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func assessOne(calculators map[string]risk.Calculator, summary model.AccountSummary) model.RiskAssessment {
	summary.Positions = validation.FilterPositions(summary.Positions)
	return calculators[summary.Protocol].Calculate(summary)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// sampleSummaries builds one plausible snapshot per protocol. Values are
// chosen to land in different risk bands so the output shows some spread.
func sampleSummaries(address string) map[string]model.AccountSummary {
	now := time.Now().Unix()

	position := func(protocol string, typ model.PositionType, pair string, value float64, meta map[string]interface{}) model.Position {
		return model.Position{
			Protocol:    protocol,
			Type:        typ,
			Pair:        pair,
			ValueUSD:    value,
			Metadata:    meta,
			LastUpdated: now,
		}
	}

	return map[string]model.AccountSummary{
		"aave_v3": {
			Protocol:           "aave_v3",
			Address:            address,
			TotalCollateralUSD: 50000,
			TotalDebtUSD:       30000,
			NetWorthUSD:        20000,
			HealthFactor:       1.35,
			Positions: []model.Position{
				position("aave_v3", model.PositionCollateral, "WETH", 50000, map[string]interface{}{
					"liquidation_threshold": 0.825,
					"ltv":                   0.80,
				}),
				position("aave_v3", model.PositionBorrow, "USDC", -30000, nil),
			},
		},
		"compound_v3": {
			Protocol:           "compound_v3",
			Address:            address,
			TotalCollateralUSD: 20000,
			TotalDebtUSD:       5000,
			NetWorthUSD:        15000,
			HealthFactor:       3.4,
			Positions: []model.Position{
				position("compound_v3", model.PositionCollateral, "WBTC", 20000, map[string]interface{}{
					"market_liquidity_usd": 250_000_000.0,
				}),
				position("compound_v3", model.PositionBorrow, "USDC", -5000, map[string]interface{}{
					"market_liquidity_usd": 250_000_000.0,
				}),
			},
		},
		"morpho_blue": {
			Protocol:           "morpho_blue",
			Address:            address,
			TotalCollateralUSD: 15000,
			TotalDebtUSD:       9000,
			NetWorthUSD:        6000,
			HealthFactor:       1.57,
			Positions: []model.Position{
				position("morpho_blue", model.PositionCollateral, "STETH", 15000, map[string]interface{}{
					"market_id":   "wstETH/WETH",
					"oracle_type": "chainlink",
					"lltv":        0.945,
				}),
				position("morpho_blue", model.PositionBorrow, "WETH", -9000, map[string]interface{}{
					"market_id": "wstETH/WETH",
				}),
			},
		},
		"yearn": {
			Protocol:       "yearn",
			Address:        address,
			TotalSupplyUSD: 12000,
			NetWorthUSD:    12000,
			HealthFactor:   math.Inf(1),
			Positions: []model.Position{
				position("yearn", model.PositionSupply, "yvUSDC-A", 12000, map[string]interface{}{
					"vault_version":        "v3",
					"strategy_count":       5.0,
					"underlying_protocols": []interface{}{"aave", "compound", "morpho"},
					"vault_tvl_usd":        80_000_000.0,
				}),
			},
		},
		"lido": {
			Protocol:       "lido",
			Address:        address,
			TotalSupplyUSD: 34000,
			NetWorthUSD:    34000,
			HealthFactor:   math.Inf(1),
			Positions: []model.Position{
				position("lido", model.PositionStaking, "stETH", 34000, map[string]interface{}{
					"steth_eth_ratio":    0.998,
					"pool_liquidity_usd": 180_000_000.0,
				}),
			},
		},
		"rocket_pool": {
			Protocol:       "rocket_pool",
			Address:        address,
			TotalSupplyUSD: 8000,
			NetWorthUSD:    8000,
			HealthFactor:   math.Inf(1),
			Positions: []model.Position{
				position("rocket_pool", model.PositionStaking, "rETH", 8000, map[string]interface{}{
					"reth_eth_ratio":        1.102,
					"pool_liquidity_usd":    40_000_000.0,
					"node_collateral_ratio": 1.1,
				}),
			},
		},
		"uniswap_v3": {
			Protocol:       "uniswap_v3",
			Address:        address,
			TotalSupplyUSD: 22000,
			NetWorthUSD:    22000,
			HealthFactor:   math.Inf(1),
			Positions: []model.Position{
				position("uniswap_v3", model.PositionLP, "WETH/USDC", 22000, map[string]interface{}{
					"in_range":        true,
					"range_width_pct": 12.0,
					"token_id":        41337.0,
				}),
			},
		},
	}
}
