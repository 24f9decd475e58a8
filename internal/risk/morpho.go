package risk

import (
	"fmt"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Morpho Blue factor weights. They sum to 1.0. Markets are isolated and
// immutable, which lowers governance risk but raises oracle dependence.
const (
	morphoHealthFactorWeight = 0.40
	morphoUtilizationWeight  = 0.20
	morphoIsolationWeight    = 0.15
	morphoOracleWeight       = 0.15
	morphoProtocolWeight     = 0.10

	morphoLiquidationPenalty = 0.06
	morphoConfidenceBase     = 0.88
)

// MorphoCalculator scores Morpho Blue isolated-market accounts.
type MorphoCalculator struct{}

// NewMorphoCalculator creates the Morpho Blue risk calculator.
func NewMorphoCalculator() *MorphoCalculator {
	return &MorphoCalculator{}
}

// Protocol returns the protocol identifier.
func (c *MorphoCalculator) Protocol() string {
	return "morpho_blue"
}

// Calculate computes the risk assessment for one Morpho Blue account.
func (c *MorphoCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	factors := map[string]model.RiskFactor{
		"health_factor_risk":    healthFactorRisk(summary, morphoHealthFactorWeight),
		"utilization_risk":      utilizationRisk(summary, morphoUtilizationWeight),
		"market_isolation_risk": isolationRisk(summary),
		"oracle_risk":           oracleRisk(summary),
		"protocol_risk": {
			Score:       8,
			Weight:      morphoProtocolWeight,
			Description: "Immutable core contracts, no admin upgrade path",
			Severity:    model.SeverityLow,
		},
	}

	return assemble(c.Protocol(), summary, factors,
		morphoRecommendations(summary, factors),
		morphoLiquidationPenalty, morphoConfidenceBase)
}

// isolationRisk reflects that each Morpho market stands alone: exposure
// concentrated in one isolated market cannot be cross-collateralized.
func isolationRisk(summary model.AccountSummary) model.RiskFactor {
	markets := map[string]bool{}
	for _, p := range summary.Positions {
		if id := p.MetaString("market_id"); id != "" {
			markets[id] = true
		} else {
			markets[p.Pair] = true
		}
	}

	score := 60.0
	if len(markets) >= 3 {
		score = 20
	} else if len(markets) == 2 {
		score = 40
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      morphoIsolationWeight,
		Description: fmt.Sprintf("Exposure spread across %d isolated market(s)", len(markets)),
		Severity:    severityFor(score),
	}
}

// oracleRisk scores dependence on each market's fixed oracle, read from
// position metadata when the adapter knows the oracle type.
func oracleRisk(summary model.AccountSummary) model.RiskFactor {
	score := 35.0
	description := "Oracle type unknown, assuming a standard feed"
	for _, p := range summary.Positions {
		switch p.MetaString("oracle_type") {
		case "chainlink":
			score = 15
			description = "Chainlink price feed oracle"
		case "custom":
			score = 65
			description = "Custom oracle, higher manipulation surface"
		}
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      morphoOracleWeight,
		Description: description,
		Severity:    severityFor(score),
	}
}

// morphoRecommendations extends the lending advice with isolation and
// oracle guidance.
func morphoRecommendations(summary model.AccountSummary, factors map[string]model.RiskFactor) []string {
	recs := lendingRecommendations(summary, factors)

	if f, ok := factors["market_isolation_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "Spread exposure across additional isolated markets to reduce single-market risk")
	}
	if f, ok := factors["oracle_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "This market uses a non-standard oracle - verify its trust assumptions")
	}

	return recs
}
