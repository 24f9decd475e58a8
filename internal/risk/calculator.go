// Package risk implements the per-protocol risk calculators. Every
// calculator is a pure function from an account snapshot to a bounded,
// explainable risk assessment: no I/O, no clock beyond the snapshot,
// deterministic for a given input.
package risk

import (
	"math"
	"time"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Calculator is the contract shared by all protocol risk calculators.
type Calculator interface {
	// Protocol returns the protocol identifier this calculator serves
	Protocol() string

	// Calculate computes a risk assessment from an account snapshot.
	// Pure and deterministic: calling twice with the same input yields
	// identical output.
	Calculate(summary model.AccountSummary) model.RiskAssessment
}

// clamp bounds v to [lo, hi]. NaN collapses to lo so a degenerate input
// can never produce an out-of-range factor.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// overallScore combines factors into the weighted overall risk score.
// The total-weight divisor guards against missing factors; the result is
// clamped to [0, 100].
func overallScore(factors map[string]model.RiskFactor) float64 {
	var weightedSum, totalWeight float64
	for _, f := range factors {
		weightedSum += f.Score * f.Weight
		totalWeight += f.Weight
	}
	if totalWeight <= 0 {
		return 0
	}
	return clamp(weightedSum/totalWeight, 0, 100)
}

// severityFor grades a 0-100 score for alerting.
func severityFor(score float64) model.Severity {
	switch {
	case score >= 80:
		return model.SeverityCritical
	case score >= 60:
		return model.SeverityHigh
	case score >= 35:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// healthStatusFor derives the coarse account state. The raw health factor
// is authoritative at the boundary: an account at or past liquidation is
// critical regardless of the weighted score.
func healthStatusFor(score float64, summary model.AccountSummary) model.HealthStatus {
	if summary.IsLiquidatable() {
		return model.HealthCritical
	}
	switch {
	case score < 25:
		return model.HealthHealthy
	case score < 50:
		return model.HealthModerate
	case score < 75:
		return model.HealthAtRisk
	default:
		return model.HealthCritical
	}
}

// liquidationRiskFor derives liquidation probability from the health
// factor as a discrete step function, not a continuous curve. Breakpoints:
// >=2.0 -> 1%, >=1.5 -> 5%, >=1.2 -> 15%, >=1.1 -> 35%, below -> 65%.
// An account already at or past the boundary gets probability 1.0 and a
// zero price-drop threshold.
func liquidationRiskFor(summary model.AccountSummary, penaltyRate float64) model.LiquidationRisk {
	hf := summary.HealthFactor

	if summary.IsLiquidatable() {
		return model.LiquidationRisk{
			Probability:        1.0,
			PriceDropThreshold: 0,
			TimeToLiquidation:  "immediate",
			PenaltyRate:        penaltyRate,
		}
	}

	if !summary.HasDebt() {
		return model.LiquidationRisk{
			Probability:        0,
			PriceDropThreshold: 100,
			PenaltyRate:        penaltyRate,
		}
	}

	var probability float64
	var horizon string
	switch {
	case hf >= 2.0:
		probability, horizon = 0.01, ""
	case hf >= 1.5:
		probability, horizon = 0.05, ""
	case hf >= 1.2:
		probability, horizon = 0.15, "weeks"
	case hf >= 1.1:
		probability, horizon = 0.35, "days"
	default:
		probability, horizon = 0.65, "hours"
	}

	// The collateral price drop that would push the health factor to 1.0
	threshold := clamp((1-1/hf)*100, 0, 100)

	return model.LiquidationRisk{
		Probability:        probability,
		PriceDropThreshold: threshold,
		TimeToLiquidation:  horizon,
		PenaltyRate:        penaltyRate,
	}
}

// confidenceScore starts from a protocol base and applies fixed
// multiplicative penalties for incomplete data. Floored at 0.5, capped at
// the base.
func confidenceScore(base float64, summary model.AccountSummary) float64 {
	confidence := base

	totalValue := summary.TotalCollateralUSD + summary.TotalSupplyUSD
	if totalValue < 100 {
		confidence *= 0.85 // small positions have noisier pricing
	}
	if !summary.HasDebt() {
		confidence *= 0.95
	}
	if len(summary.Positions) < 2 {
		confidence *= 0.9
	}

	return clamp(confidence, 0.5, 1.0)
}

// concentrationScore measures how concentrated the account's exposure is
// in its largest position, 0-100. A single-position account scores 100.
func concentrationScore(positions []model.Position) float64 {
	var total, largest float64
	for _, p := range positions {
		v := math.Abs(p.ValueUSD)
		total += v
		if v > largest {
			largest = v
		}
	}
	if total <= 0 {
		return 0
	}
	return clamp(largest/total*100, 0, 100)
}

// assemble builds the final immutable assessment from computed parts.
func assemble(protocol string, summary model.AccountSummary, factors map[string]model.RiskFactor,
	recommendations []string, penaltyRate, confidenceBase float64) model.RiskAssessment {

	score := overallScore(factors)
	if len(recommendations) == 0 {
		recommendations = []string{"Position looks stable - continue monitoring"}
	}

	return model.RiskAssessment{
		Protocol:         protocol,
		Address:          summary.Address,
		OverallRiskScore: score,
		RiskFactors:      factors,
		HealthStatus:     healthStatusFor(score, summary),
		LiquidationRisk:  liquidationRiskFor(summary, penaltyRate),
		Recommendations:  recommendations,
		ConfidenceScore:  confidenceScore(confidenceBase, summary),
		CalculatedAt:     lastUpdatedOf(summary),
	}
}

// lastUpdatedOf stamps the assessment with the newest position timestamp
// so identical snapshots produce identical assessments. Falls back to the
// current time for empty snapshots.
func lastUpdatedOf(summary model.AccountSummary) int64 {
	var latest int64
	for _, p := range summary.Positions {
		if p.LastUpdated > latest {
			latest = p.LastUpdated
		}
	}
	if latest == 0 {
		return time.Now().Unix()
	}
	return latest
}

// ByProtocol builds the calculator set keyed by protocol identifier.
func ByProtocol() map[string]Calculator {
	calculators := []Calculator{
		NewAaveCalculator(),
		NewCompoundCalculator(),
		NewMorphoCalculator(),
		NewYearnCalculator(),
		NewLidoCalculator(),
		NewRocketPoolCalculator(),
		NewUniswapCalculator(),
	}
	byProtocol := make(map[string]Calculator, len(calculators))
	for _, c := range calculators {
		byProtocol[c.Protocol()] = c
	}
	return byProtocol
}
