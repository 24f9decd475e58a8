package risk

import (
	"fmt"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Uniswap V3 factor weights. They sum to 1.0. Concentrated liquidity
// positions have no liquidation, but earn nothing once price leaves the
// range and realize impermanent loss against holding.
const (
	uniswapRangeWeight         = 0.30
	uniswapImpermanentWeight   = 0.30
	uniswapConcentrationWeight = 0.15
	uniswapPoolLiquidityWeight = 0.15
	uniswapProtocolWeight      = 0.10

	uniswapConfidenceBase = 0.85
)

// UniswapCalculator scores Uniswap V3 concentrated liquidity positions.
type UniswapCalculator struct{}

// NewUniswapCalculator creates the Uniswap V3 risk calculator.
func NewUniswapCalculator() *UniswapCalculator {
	return &UniswapCalculator{}
}

// Protocol returns the protocol identifier.
func (c *UniswapCalculator) Protocol() string {
	return "uniswap_v3"
}

// Calculate computes the risk assessment for one set of LP positions.
func (c *UniswapCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	concentration := concentrationScore(summary.Positions)

	factors := map[string]model.RiskFactor{
		"range_risk":            rangeRisk(summary),
		"impermanent_loss_risk": impermanentLossRisk(summary),
		"concentration_risk": {
			Score:       concentration,
			Weight:      uniswapConcentrationWeight,
			Description: "Liquidity concentrated in the largest position",
			Severity:    severityFor(concentration),
		},
		"pool_liquidity_risk": poolLiquidityRisk(summary),
		"protocol_risk": {
			Score:       10,
			Weight:      uniswapProtocolWeight,
			Description: "Battle-tested immutable core contracts",
			Severity:    model.SeverityLow,
		},
	}

	return assemble(c.Protocol(), summary, factors,
		uniswapRecommendations(factors),
		0, uniswapConfidenceBase)
}

// rangeRisk scores whether positions are earning fees: out-of-range
// positions earn nothing while still holding inventory risk. Narrow
// ranges raise the chance of falling out.
func rangeRisk(summary model.AccountSummary) model.RiskFactor {
	total := 0
	outOfRange := 0
	narrowest := 100.0
	for _, p := range summary.Positions {
		if p.Type != model.PositionLP {
			continue
		}
		total++
		if inRange, ok := p.Metadata["in_range"].(bool); ok && !inRange {
			outOfRange++
		}
		if w := p.MetaFloat("range_width_pct", 0); w > 0 && w < narrowest {
			narrowest = w
		}
	}

	if total == 0 {
		return model.RiskFactor{
			Score:       0,
			Weight:      uniswapRangeWeight,
			Description: "No LP positions",
			Severity:    model.SeverityLow,
		}
	}

	outShare := float64(outOfRange) / float64(total)
	// Out-of-range share dominates; narrow ranges add up to 30 points
	narrowPenalty := clamp((20-narrowest)*1.5, 0, 30)
	score := clamp(outShare*70+narrowPenalty, 0, 100)

	return model.RiskFactor{
		Score:       score,
		Weight:      uniswapRangeWeight,
		Description: fmt.Sprintf("%d of %d position(s) out of range", outOfRange, total),
		Severity:    severityFor(score),
	}
}

// impermanentLossRisk combines pair volatility with unrealized divergence
// already carried by the position.
func impermanentLossRisk(summary model.AccountSummary) model.RiskFactor {
	volatility := 0.0
	var worstPnlPct float64
	for _, p := range summary.Positions {
		if v := p.MetaFloat("pair_volatility", 0); v > volatility {
			volatility = v
		}
		if p.PnlPercentage < worstPnlPct {
			worstPnlPct = p.PnlPercentage
		}
	}

	// Annualized pair volatility of 1.0 (100%) scores 60; realized
	// negative divergence adds the rest
	score := clamp(volatility*60+clamp(-worstPnlPct, 0, 40), 0, 100)

	return model.RiskFactor{
		Score:       score,
		Weight:      uniswapImpermanentWeight,
		Description: fmt.Sprintf("Pair volatility %.0f%%, worst position PnL %.1f%%", volatility*100, worstPnlPct),
		Severity:    severityFor(score),
	}
}

// poolLiquidityRisk scores position size against pool depth, bounded to
// the documented [3, 15] sub-range.
func poolLiquidityRisk(summary model.AccountSummary) model.RiskFactor {
	poolDepth := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("pool_liquidity_usd", 0); v > poolDepth {
			poolDepth = v
		}
	}

	score := 9.0
	description := "Pool depth unknown, assuming moderate liquidity"
	if poolDepth > 0 {
		var positionValue float64
		for _, p := range summary.Positions {
			if p.Type == model.PositionLP {
				positionValue += p.ValueUSD
			}
		}
		share := positionValue / poolDepth
		score = clamp(3+share*60, 3, 15)
		description = fmt.Sprintf("Position is %.2f%% of pool liquidity", share*100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      uniswapPoolLiquidityWeight,
		Description: description,
		Severity:    model.SeverityLow,
	}
}

// uniswapRecommendations generates LP-specific advice.
func uniswapRecommendations(factors map[string]model.RiskFactor) []string {
	var recs []string

	if f, ok := factors["range_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "URGENT: positions are out of range and earning no fees - rebalance or widen the range")
	} else if f, ok := factors["range_risk"]; ok && f.Score >= 35 {
		recs = append(recs, "Some positions are near or past their range - consider rebalancing")
	}
	if f, ok := factors["impermanent_loss_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "Impermanent loss exposure is high for this pair - compare fee income against divergence loss")
	}
	if f, ok := factors["pool_liquidity_risk"]; ok && f.Score >= 12 {
		recs = append(recs, "Position is large relative to pool depth - exit gradually to limit price impact")
	}

	return recs
}
