package risk

import (
	"fmt"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Compound V3 factor weights. They sum to 1.0. Comet markets are
// single-borrowable-asset, so base asset liquidity replaces the
// volatility factor used for Aave.
const (
	compoundHealthFactorWeight  = 0.45
	compoundUtilizationWeight   = 0.25
	compoundConcentrationWeight = 0.10
	compoundLiquidityWeight     = 0.10
	compoundProtocolWeight      = 0.10

	compoundLiquidationPenalty = 0.07
	compoundConfidenceBase     = 0.92
)

// CompoundCalculator scores Compound V3 (Comet) accounts.
type CompoundCalculator struct{}

// NewCompoundCalculator creates the Compound V3 risk calculator.
func NewCompoundCalculator() *CompoundCalculator {
	return &CompoundCalculator{}
}

// Protocol returns the protocol identifier.
func (c *CompoundCalculator) Protocol() string {
	return "compound_v3"
}

// Calculate computes the risk assessment for one Comet account snapshot.
func (c *CompoundCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	concentration := concentrationScore(summary.Positions)

	factors := map[string]model.RiskFactor{
		"health_factor_risk": healthFactorRisk(summary, compoundHealthFactorWeight),
		"utilization_risk":   utilizationRisk(summary, compoundUtilizationWeight),
		"concentration_risk": {
			Score:       concentration,
			Weight:      compoundConcentrationWeight,
			Description: "Exposure concentrated in the largest position",
			Severity:    severityFor(concentration),
		},
		"liquidity_risk": marketLiquidityRisk(summary, compoundLiquidityWeight),
		"protocol_risk": {
			Score:       12,
			Weight:      compoundProtocolWeight,
			Description: "Baseline smart contract and governance risk, single-asset Comet market",
			Severity:    model.SeverityLow,
		},
	}

	return assemble(c.Protocol(), summary, factors,
		lendingRecommendations(summary, factors),
		compoundLiquidationPenalty, compoundConfidenceBase)
}

// marketLiquidityRisk scores how large the account is relative to the
// market's available liquidity, read from position metadata. Bounded to
// the documented [3, 15] liquidity sub-range.
func marketLiquidityRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	marketLiquidity := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("market_liquidity_usd", 0); v > marketLiquidity {
			marketLiquidity = v
		}
	}

	// Without market depth data fall to the midpoint of the sub-range.
	score := 9.0
	description := "Market liquidity unknown, assuming moderate depth"
	if marketLiquidity > 0 {
		share := (summary.TotalCollateralUSD + summary.TotalSupplyUSD) / marketLiquidity
		score = clamp(3+share*120, 3, 15)
		description = fmt.Sprintf("Position is %.2f%% of market liquidity", share*100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: description,
		Severity:    model.SeverityLow,
	}
}
