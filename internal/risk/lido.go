package risk

import (
	"fmt"
	"math"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Lido factor weights. They sum to 1.0. Staking positions carry no debt,
// so risk comes from the stETH peg, slashing, exit liquidity, and
// governance rather than liquidation.
const (
	lidoDepegWeight      = 0.35
	lidoSlashingWeight   = 0.15
	lidoLiquidityWeight  = 0.20
	lidoGovernanceWeight = 0.15
	lidoWithdrawalWeight = 0.15

	lidoConfidenceBase = 0.90
)

// LidoCalculator scores stETH staking positions.
type LidoCalculator struct{}

// NewLidoCalculator creates the Lido risk calculator.
func NewLidoCalculator() *LidoCalculator {
	return &LidoCalculator{}
}

// Protocol returns the protocol identifier.
func (c *LidoCalculator) Protocol() string {
	return "lido"
}

// Calculate computes the risk assessment for one Lido staking snapshot.
func (c *LidoCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	factors := map[string]model.RiskFactor{
		"depeg_risk": depegRisk(summary, "steth_eth_ratio", lidoDepegWeight),
		"slashing_risk": {
			Score:       8,
			Weight:      lidoSlashingWeight,
			Description: "Validator slashing socialized across a large curated operator set",
			Severity:    model.SeverityLow,
		},
		"liquidity_risk": stakingLiquidityRisk(summary, lidoLiquidityWeight),
		"governance_risk": {
			Score:       25,
			Weight:      lidoGovernanceWeight,
			Description: "LDO governance controls fees and the operator registry",
			Severity:    model.SeverityLow,
		},
		"withdrawal_queue_risk": withdrawalQueueRisk(summary, lidoWithdrawalWeight),
	}

	return assemble(c.Protocol(), summary, factors,
		stakingRecommendations(factors),
		0, lidoConfidenceBase)
}

// depegRisk scores deviation of the liquid staking token from its ETH
// peg, read from position metadata. A ratio of 1.0 is fully pegged.
func depegRisk(summary model.AccountSummary, metaKey string, weight float64) model.RiskFactor {
	ratio := 1.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat(metaKey, 0); v > 0 {
			ratio = v
		}
	}

	deviation := math.Abs(1 - ratio)
	// 1% deviation scores 40, 2.5%+ saturates at 100
	score := clamp(deviation*4000, 0, 100)

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("Staking token trades at %.4f of its peg", ratio),
		Severity:    severityFor(score),
	}
}

// stakingLiquidityRisk scores exit liquidity relative to position size,
// bounded to the documented [3, 15] sub-range.
func stakingLiquidityRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	poolDepth := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("pool_liquidity_usd", 0); v > poolDepth {
			poolDepth = v
		}
	}

	score := 9.0
	description := "Secondary market depth unknown, assuming moderate exit liquidity"
	if poolDepth > 0 {
		share := (summary.TotalSupplyUSD + summary.TotalCollateralUSD) / poolDepth
		score = clamp(3+share*60, 3, 15)
		description = fmt.Sprintf("Position is %.2f%% of secondary market depth", share*100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: description,
		Severity:    model.SeverityLow,
	}
}

// withdrawalQueueRisk scores the current protocol exit queue, read from
// position metadata as a day estimate.
func withdrawalQueueRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	days := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("withdrawal_queue_days", 0); v > days {
			days = v
		}
	}

	score := clamp(days*10, 0, 100)
	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("Withdrawal queue estimated at %.1f day(s)", days),
		Severity:    severityFor(score),
	}
}

// stakingRecommendations generates the advice list shared by the staking
// calculators.
func stakingRecommendations(factors map[string]model.RiskFactor) []string {
	var recs []string

	if f, ok := factors["depeg_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "URGENT: the staking token has moved well off its peg - evaluate exiting via the protocol queue instead of selling")
	} else if f, ok := factors["depeg_risk"]; ok && f.Score >= 30 {
		recs = append(recs, "The staking token is trading below peg - avoid market-selling at a discount")
	}
	if f, ok := factors["withdrawal_queue_risk"]; ok && f.Score >= 50 {
		recs = append(recs, "Protocol exits are slow right now - plan withdrawals ahead of need")
	}
	if f, ok := factors["liquidity_risk"]; ok && f.Score >= 12 {
		recs = append(recs, "Position is large relative to secondary market depth - exit gradually")
	}

	return recs
}
