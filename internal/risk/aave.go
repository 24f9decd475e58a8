package risk

import (
	"fmt"
	"math"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Aave V3 factor weights. They sum to 1.0.
const (
	aaveHealthFactorWeight  = 0.40
	aaveUtilizationWeight   = 0.25
	aaveConcentrationWeight = 0.15
	aaveVolatilityWeight    = 0.10
	aaveProtocolWeight      = 0.10

	aaveLiquidationPenalty = 0.05
	aaveConfidenceBase     = 0.95
)

// AaveCalculator scores Aave V3 lending accounts.
type AaveCalculator struct{}

// NewAaveCalculator creates the Aave V3 risk calculator.
func NewAaveCalculator() *AaveCalculator {
	return &AaveCalculator{}
}

// Protocol returns the protocol identifier.
func (c *AaveCalculator) Protocol() string {
	return "aave_v3"
}

// Calculate computes the risk assessment for one Aave account snapshot.
func (c *AaveCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	factors := map[string]model.RiskFactor{
		"health_factor_risk": healthFactorRisk(summary, aaveHealthFactorWeight),
		"utilization_risk":   utilizationRisk(summary, aaveUtilizationWeight),
		"concentration_risk": {
			Score:       concentrationScore(summary.Positions),
			Weight:      aaveConcentrationWeight,
			Description: "Exposure concentrated in the largest position",
			Severity:    severityFor(concentrationScore(summary.Positions)),
		},
		"volatility_risk": volatileCollateralRisk(summary, aaveVolatilityWeight),
		"protocol_risk": {
			Score:       10,
			Weight:      aaveProtocolWeight,
			Description: "Baseline smart contract and governance risk for a mature audited protocol",
			Severity:    model.SeverityLow,
		},
	}

	return assemble(c.Protocol(), summary, factors,
		lendingRecommendations(summary, factors),
		aaveLiquidationPenalty, aaveConfidenceBase)
}

// healthFactorRisk maps the health factor to a 0-100 risk score. A
// liquidatable account scores 100; a debt-free account carries a small
// fixed score because governance and contract risk persist without debt.
func healthFactorRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	if summary.TotalCollateralUSD <= 0 {
		return model.RiskFactor{
			Score:       0,
			Weight:      weight,
			Description: "No collateral deposited",
			Severity:    model.SeverityLow,
		}
	}
	if !summary.HasDebt() {
		return model.RiskFactor{
			Score:       10,
			Weight:      weight,
			Description: "No debt: liquidation impossible, residual protocol risk only",
			Severity:    model.SeverityLow,
		}
	}

	hf := summary.HealthFactor
	var score float64
	if summary.IsLiquidatable() {
		score = 100
	} else {
		// Linear from 100 at hf=1.0 down to the floor at hf=2.0 and beyond
		score = clamp(100*(2.0-hf), 5, 100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("Health factor %.2f (liquidation at 1.00)", hf),
		Severity:    severityFor(score),
	}
}

// utilizationRisk scores borrow usage against collateral. Reports the
// documented no-debt score instead of dividing by zero.
func utilizationRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	if summary.TotalCollateralUSD <= 0 {
		return model.RiskFactor{
			Score:       0,
			Weight:      weight,
			Description: "No collateral deposited",
			Severity:    model.SeverityLow,
		}
	}
	if !summary.HasDebt() {
		return model.RiskFactor{
			Score:       5,
			Weight:      weight,
			Description: "No debt drawn against collateral",
			Severity:    model.SeverityLow,
		}
	}

	utilization := summary.Utilization()
	score := clamp(utilization*125, 0, 100)

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("Borrowing %.0f%% of collateral value", utilization*100),
		Severity:    severityFor(score),
	}
}

// volatileCollateralRisk scores the share of collateral held in
// non-stablecoin assets, read from position metadata.
func volatileCollateralRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	var total, volatile float64
	for _, p := range summary.Positions {
		if p.Type != model.PositionCollateral && p.Type != model.PositionSupply {
			continue
		}
		v := math.Abs(p.ValueUSD)
		total += v
		if stable, ok := p.Metadata["is_stable"].(bool); !ok || !stable {
			volatile += v
		}
	}

	if total <= 0 {
		return model.RiskFactor{
			Score:       0,
			Weight:      weight,
			Description: "No collateral deposited",
			Severity:    model.SeverityLow,
		}
	}

	share := volatile / total
	score := clamp(share*80, 0, 100)
	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("%.0f%% of collateral is in volatile assets", share*100),
		Severity:    severityFor(score),
	}
}

// lendingRecommendations generates the ordered advice list shared by the
// lending-family calculators, most urgent first.
func lendingRecommendations(summary model.AccountSummary, factors map[string]model.RiskFactor) []string {
	var recs []string

	if summary.IsLiquidatable() {
		recs = append(recs, "IMMEDIATE ACTION: position is liquidatable - repay debt or add collateral now")
	} else if f, ok := factors["health_factor_risk"]; ok && f.Score >= 80 {
		recs = append(recs, "URGENT: health factor is approaching liquidation - repay debt or deposit additional collateral")
	} else if f, ok := factors["health_factor_risk"]; ok && f.Score >= 50 {
		recs = append(recs, "Consider repaying part of the debt to raise the health factor")
	}

	if f, ok := factors["utilization_risk"]; ok && f.Score >= 70 {
		recs = append(recs, "Reduce borrow utilization to leave a larger liquidation buffer")
	}
	if f, ok := factors["concentration_risk"]; ok && f.Score >= 80 && len(summary.Positions) > 1 {
		recs = append(recs, "Diversify collateral across assets to reduce single-asset exposure")
	}
	if f, ok := factors["volatility_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "Consider shifting part of the collateral into stablecoins to dampen price swings")
	}

	return recs
}
