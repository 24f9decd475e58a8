package risk

import (
	"math"
	"testing"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/stretchr/testify/assert"
)

func assessmentWith(protocol string, score float64, status model.HealthStatus) model.RiskAssessment {
	return model.RiskAssessment{
		Protocol:         protocol,
		Address:          "0xabc",
		OverallRiskScore: score,
		HealthStatus:     status,
		ConfidenceScore:  0.9,
	}
}

func TestCombinePortfolio_ValueWeighted(t *testing.T) {
	assessments := []model.RiskAssessment{
		assessmentWith("aave", 80, model.HealthAtRisk),
		assessmentWith("lido", 20, model.HealthHealthy),
	}
	values := map[string]float64{"aave": 1000, "lido": 9000}

	p := CombinePortfolio("0xabc", assessments, values)

	// 80*0.1 + 20*0.9 = 26
	assert.InDelta(t, 26.0, p.OverallRiskScore, 1e-9)
	assert.InDelta(t, 0.1, p.ProtocolWeights["aave"], 1e-9)
	assert.InDelta(t, 0.9, p.ProtocolWeights["lido"], 1e-9)
	assert.Equal(t, 10000.0, p.TotalValueUSD)
}

func TestCombinePortfolio_OneLiquidatableAccountMakesCritical(t *testing.T) {
	assessments := []model.RiskAssessment{
		assessmentWith("aave", 95, model.HealthCritical),
		assessmentWith("lido", 10, model.HealthHealthy),
	}
	// The critical account holds almost no value, so the weighted score
	// stays low. The status must still be critical.
	values := map[string]float64{"aave": 10, "lido": 100000}

	p := CombinePortfolio("0xabc", assessments, values)

	assert.Less(t, p.OverallRiskScore, 25.0)
	assert.Equal(t, model.HealthCritical, p.HealthStatus)
}

func TestCombinePortfolio_ScoreDerivedStatusOnlyRaises(t *testing.T) {
	assessments := []model.RiskAssessment{
		assessmentWith("aave", 85, model.HealthModerate),
	}
	values := map[string]float64{"aave": 1000}

	p := CombinePortfolio("0xabc", assessments, values)

	// Score 85 derives critical even though no single account reports it.
	assert.Equal(t, model.HealthCritical, p.HealthStatus)
}

func TestCombinePortfolio_MedianFallbackOnZeroValues(t *testing.T) {
	assessments := []model.RiskAssessment{
		assessmentWith("aave", 10, model.HealthHealthy),
		assessmentWith("lido", 30, model.HealthModerate),
		assessmentWith("yearn", 90, model.HealthCritical),
	}

	p := CombinePortfolio("0xabc", assessments, map[string]float64{})

	assert.InDelta(t, 30.0, p.OverallRiskScore, 1e-9)
	assert.Equal(t, 0.5, p.ConfidenceScore)
}

func TestCombinePortfolio_IgnoresNonFiniteInputs(t *testing.T) {
	assessments := []model.RiskAssessment{
		assessmentWith("aave", math.NaN(), model.HealthHealthy),
		assessmentWith("lido", 40, model.HealthModerate),
	}
	values := map[string]float64{"aave": math.Inf(1), "lido": 5000}

	p := CombinePortfolio("0xabc", assessments, values)

	assert.InDelta(t, 40.0, p.OverallRiskScore, 1e-9)
	assert.Equal(t, 5000.0, p.TotalValueUSD)
	assert.False(t, math.IsNaN(p.OverallRiskScore))
}

func TestCombinePortfolio_Empty(t *testing.T) {
	p := CombinePortfolio("0xabc", nil, nil)

	assert.Equal(t, 0.0, p.OverallRiskScore)
	assert.Equal(t, model.HealthHealthy, p.HealthStatus)
	assert.Equal(t, 0.5, p.ConfidenceScore)
	assert.Empty(t, p.ProtocolWeights)
}
