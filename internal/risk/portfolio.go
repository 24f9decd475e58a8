package risk

import (
	"math"
	"sort"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// PortfolioAssessment combines per-protocol assessments into one view of
// an address's total exposure.
type PortfolioAssessment struct {
	Address          string                 `json:"address"`
	TotalValueUSD    float64                `json:"total_value_usd"`
	OverallRiskScore float64                `json:"overall_risk_score"`
	HealthStatus     model.HealthStatus     `json:"health_status"`
	ConfidenceScore  float64                `json:"confidence_score"`
	Assessments      []model.RiskAssessment `json:"assessments"`
	ProtocolWeights  map[string]float64     `json:"protocol_weights"`
}

// CombinePortfolio aggregates per-protocol assessments weighted by each
// protocol's share of total position value. Degenerate inputs (zero total
// value, non-finite scores) fall back to the median score so one bad
// protocol snapshot cannot poison the portfolio view.
func CombinePortfolio(address string, assessments []model.RiskAssessment, valueByProtocol map[string]float64) PortfolioAssessment {
	if len(assessments) == 0 {
		return PortfolioAssessment{
			Address:         address,
			HealthStatus:    model.HealthHealthy,
			ConfidenceScore: 0.5,
			ProtocolWeights: map[string]float64{},
		}
	}

	var totalValue float64
	for _, v := range valueByProtocol {
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			totalValue += v
		}
	}

	var weightedScore, weightedConfidence, usedValue float64
	valid := 0
	for _, a := range assessments {
		v := valueByProtocol[a.Protocol]
		if v <= 0 || math.IsNaN(a.OverallRiskScore) || math.IsInf(a.OverallRiskScore, 0) {
			continue
		}
		weightedScore += a.OverallRiskScore * v
		weightedConfidence += a.ConfidenceScore * v
		usedValue += v
		valid++
	}

	var score, confidence float64
	if valid == 0 || usedValue <= 0 {
		score = medianScore(assessments)
		confidence = 0.5
	} else {
		score = clamp(weightedScore/usedValue, 0, 100)
		confidence = clamp(weightedConfidence/usedValue, 0.5, 1.0)
	}

	weights := make(map[string]float64, len(valueByProtocol))
	if totalValue > 0 {
		for protocol, v := range valueByProtocol {
			if v > 0 {
				weights[protocol] = v / totalValue
			}
		}
	}

	return PortfolioAssessment{
		Address:          address,
		TotalValueUSD:    totalValue,
		OverallRiskScore: score,
		HealthStatus:     worstHealthStatus(assessments, score),
		ConfidenceScore:  confidence,
		Assessments:      assessments,
		ProtocolWeights:  weights,
	}
}

// medianScore is the robust fallback when value weighting is impossible.
func medianScore(assessments []model.RiskAssessment) float64 {
	values := make([]float64, 0, len(assessments))
	for _, a := range assessments {
		if !math.IsNaN(a.OverallRiskScore) && !math.IsInf(a.OverallRiskScore, 0) {
			values = append(values, a.OverallRiskScore)
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// worstHealthStatus surfaces the most severe per-protocol status: one
// liquidatable account makes the whole portfolio critical regardless of
// the value-weighted score.
func worstHealthStatus(assessments []model.RiskAssessment, portfolioScore float64) model.HealthStatus {
	rank := map[model.HealthStatus]int{
		model.HealthHealthy:  0,
		model.HealthModerate: 1,
		model.HealthAtRisk:   2,
		model.HealthCritical: 3,
	}

	worst := model.HealthHealthy
	for _, a := range assessments {
		if rank[a.HealthStatus] > rank[worst] {
			worst = a.HealthStatus
		}
	}

	// The score-derived status can only raise, never lower, the result
	var derived model.HealthStatus
	switch {
	case portfolioScore < 25:
		derived = model.HealthHealthy
	case portfolioScore < 50:
		derived = model.HealthModerate
	case portfolioScore < 75:
		derived = model.HealthAtRisk
	default:
		derived = model.HealthCritical
	}
	if rank[derived] > rank[worst] {
		return derived
	}
	return worst
}
