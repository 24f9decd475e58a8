package risk

import (
	"fmt"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Rocket Pool factor weights. They sum to 1.0. Compared with Lido the
// operator set is permissionless, shifting weight from governance to the
// node operator factor.
const (
	rocketDepegWeight        = 0.30
	rocketNodeOperatorWeight = 0.25
	rocketLiquidityWeight    = 0.25
	rocketGovernanceWeight   = 0.20

	rocketConfidenceBase = 0.88
)

// RocketPoolCalculator scores rETH staking positions.
type RocketPoolCalculator struct{}

// NewRocketPoolCalculator creates the Rocket Pool risk calculator.
func NewRocketPoolCalculator() *RocketPoolCalculator {
	return &RocketPoolCalculator{}
}

// Protocol returns the protocol identifier.
func (c *RocketPoolCalculator) Protocol() string {
	return "rocket_pool"
}

// Calculate computes the risk assessment for one Rocket Pool snapshot.
func (c *RocketPoolCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	factors := map[string]model.RiskFactor{
		"depeg_risk":         depegRisk(summary, "reth_eth_ratio", rocketDepegWeight),
		"node_operator_risk": nodeOperatorRisk(summary),
		"liquidity_risk":     stakingLiquidityRisk(summary, rocketLiquidityWeight),
		"governance_risk": {
			Score:       18,
			Weight:      rocketGovernanceWeight,
			Description: "Protocol DAO governs parameters; operator collateral cushions depositors",
			Severity:    model.SeverityLow,
		},
	}

	return assemble(c.Protocol(), summary, factors,
		stakingRecommendations(factors),
		0, rocketConfidenceBase)
}

// nodeOperatorRisk scores the permissionless operator set: risk falls as
// operator collateralization (RPL bond ratio) rises.
func nodeOperatorRisk(summary model.AccountSummary) model.RiskFactor {
	bondRatio := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("node_collateral_ratio", 0); v > bondRatio {
			bondRatio = v
		}
	}

	score := 35.0
	description := "Operator collateralization unknown, assuming network average"
	if bondRatio > 0 {
		// 10% bond scores 40, 150%+ effectively de-risks the operator set
		score = clamp(45-bondRatio*20, 5, 60)
		description = fmt.Sprintf("Node operators bonded at %.0f%% collateral", bondRatio*100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      rocketNodeOperatorWeight,
		Description: description,
		Severity:    severityFor(score),
	}
}
