package risk

import (
	"fmt"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Yearn factor weights. V2 vaults have five factors summing to 1.0. V3
// vaults add a sixth multi-strategy dependency factor at 0.20 and scale
// the others by 0.8 so the set still sums to 1.0.
const (
	yearnStrategyComplexityWeight = 0.25
	yearnUnderlyingWeight         = 0.25
	yearnLiquidityWeight          = 0.20
	yearnConcentrationWeight      = 0.15
	yearnGovernanceWeight         = 0.15

	yearnV3Rescale           = 0.80
	yearnMultiStrategyWeight = 0.20

	yearnLiquidationPenalty = 0.0 // vaults have no liquidation mechanism
	yearnConfidenceBase     = 0.85
)

// Per-protocol baseline risk for strategies that deploy into other
// protocols. Unknown protocols get the conservative default.
var underlyingProtocolRisk = map[string]float64{
	"aave":     15,
	"compound": 18,
	"curve":    25,
	"convex":   30,
	"balancer": 28,
	"lido":     20,
	"maker":    15,
}

const unknownUnderlyingRisk = 45.0

// YearnCalculator scores Yearn V2 and V3 vault positions.
type YearnCalculator struct{}

// NewYearnCalculator creates the Yearn risk calculator.
func NewYearnCalculator() *YearnCalculator {
	return &YearnCalculator{}
}

// Protocol returns the protocol identifier.
func (c *YearnCalculator) Protocol() string {
	return "yearn"
}

// Calculate computes the risk assessment for one set of vault positions.
// Vault metadata drives the factor set: V3 vaults with multiple
// strategies get the additional multi-strategy dependency factor.
func (c *YearnCalculator) Calculate(summary model.AccountSummary) model.RiskAssessment {
	version := vaultVersion(summary)
	isV3 := version == "v3"

	rescale := 1.0
	if isV3 {
		rescale = yearnV3Rescale
	}

	strategyCount := maxMetaInt(summary, "strategy_count")
	underlying := underlyingProtocols(summary)
	concentration := concentrationScore(summary.Positions)

	factors := map[string]model.RiskFactor{
		"strategy_complexity_risk": strategyComplexityRisk(strategyCount, yearnStrategyComplexityWeight*rescale),
		"underlying_protocol_risk": underlyingRisk(underlying, yearnUnderlyingWeight*rescale),
		"liquidity_risk":           vaultLiquidityRisk(summary, yearnLiquidityWeight*rescale),
		"concentration_risk": {
			Score:       concentration,
			Weight:      yearnConcentrationWeight * rescale,
			Description: "Exposure concentrated in the largest vault position",
			Severity:    severityFor(concentration),
		},
		"governance_risk": {
			Score:       20,
			Weight:      yearnGovernanceWeight * rescale,
			Description: "Multisig-governed vault parameters and strategy approvals",
			Severity:    model.SeverityLow,
		},
	}

	if isV3 {
		factors["multi_strategy_dependency_risk"] = multiStrategyDependencyRisk(strategyCount, underlying)
	}

	return assemble(c.Protocol(), summary, factors,
		yearnRecommendations(factors, version),
		yearnLiquidationPenalty, yearnConfidenceBase)
}

// vaultVersion reads the vault version from position metadata, defaulting
// to v2 for older adapters that do not report one.
func vaultVersion(summary model.AccountSummary) string {
	for _, p := range summary.Positions {
		if v := p.MetaString("vault_version"); v != "" {
			return v
		}
	}
	return "v2"
}

// maxMetaInt returns the largest value of a numeric metadata field across
// positions.
func maxMetaInt(summary model.AccountSummary, key string) int {
	max := 0
	for _, p := range summary.Positions {
		if v := int(p.MetaFloat(key, 0)); v > max {
			max = v
		}
	}
	return max
}

// underlyingProtocols collects the distinct protocols the vault's
// strategies deploy into, from position metadata.
func underlyingProtocols(summary model.AccountSummary) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range summary.Positions {
		raw, ok := p.Metadata["underlying_protocols"]
		if !ok {
			continue
		}
		switch list := raw.(type) {
		case []string:
			for _, name := range list {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		case []interface{}:
			for _, v := range list {
				if name, ok := v.(string); ok && !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// strategyComplexityRisk scores how many strategies the vault runs. More
// strategies mean more code paths that can fail.
func strategyComplexityRisk(strategyCount int, weight float64) model.RiskFactor {
	var score float64
	switch {
	case strategyCount == 0:
		score = 30 // unknown strategy set
	case strategyCount == 1:
		score = 15
	case strategyCount <= 3:
		score = 30
	case strategyCount <= 5:
		score = 50
	default:
		score = 70
	}

	return model.RiskFactor{
		Score:       clamp(score, 0, 100),
		Weight:      weight,
		Description: fmt.Sprintf("Vault runs %d strategy(ies)", strategyCount),
		Severity:    severityFor(score),
	}
}

// underlyingRisk averages the baseline risk of the protocols the vault's
// strategies deploy into.
func underlyingRisk(protocols []string, weight float64) model.RiskFactor {
	if len(protocols) == 0 {
		return model.RiskFactor{
			Score:       unknownUnderlyingRisk,
			Weight:      weight,
			Description: "Underlying protocol exposure unknown",
			Severity:    model.SeverityMedium,
		}
	}

	var sum float64
	for _, name := range protocols {
		if base, ok := underlyingProtocolRisk[name]; ok {
			sum += base
		} else {
			sum += unknownUnderlyingRisk
		}
	}
	score := clamp(sum/float64(len(protocols)), 0, 100)

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: fmt.Sprintf("Strategies deploy into %d protocol(s)", len(protocols)),
		Severity:    severityFor(score),
	}
}

// vaultLiquidityRisk scores withdrawal liquidity relative to vault TVL,
// bounded to the documented [3, 15] sub-range.
func vaultLiquidityRisk(summary model.AccountSummary, weight float64) model.RiskFactor {
	tvl := 0.0
	for _, p := range summary.Positions {
		if v := p.MetaFloat("vault_tvl_usd", 0); v > tvl {
			tvl = v
		}
	}

	score := 9.0
	description := "Vault TVL unknown, assuming moderate withdrawal liquidity"
	if tvl > 0 {
		share := (summary.TotalSupplyUSD + summary.TotalCollateralUSD) / tvl
		score = clamp(3+share*60, 3, 15)
		description = fmt.Sprintf("Position is %.2f%% of vault TVL", share*100)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      weight,
		Description: description,
		Severity:    model.SeverityLow,
	}
}

// multiStrategyDependencyRisk is the V3-only factor: a vault whose
// strategies span many protocols fails if any one of them fails.
func multiStrategyDependencyRisk(strategyCount int, underlying []string) model.RiskFactor {
	// Grows with both strategy count and the breadth of protocol
	// dependencies; a single-strategy vault carries none of this risk.
	score := clamp(float64(strategyCount)*8+float64(len(underlying))*10, 0, 100)
	if strategyCount <= 1 && len(underlying) <= 1 {
		score = clamp(score, 0, 10)
	}

	return model.RiskFactor{
		Score:       score,
		Weight:      yearnMultiStrategyWeight,
		Description: fmt.Sprintf("%d strategies depending on %d underlying protocol(s)", strategyCount, len(underlying)),
		Severity:    severityFor(score),
	}
}

// yearnRecommendations generates vault-specific advice.
func yearnRecommendations(factors map[string]model.RiskFactor, version string) []string {
	var recs []string

	if f, ok := factors["multi_strategy_dependency_risk"]; ok && f.Score >= 60 {
		recs = append(recs, "URGENT: vault depends on many strategies and protocols - consider splitting across vaults")
	}
	if f, ok := factors["strategy_complexity_risk"]; ok && f.Score >= 50 {
		recs = append(recs, "Vault runs a complex strategy set - review recent strategy reports")
	}
	if f, ok := factors["underlying_protocol_risk"]; ok && f.Score >= 40 {
		recs = append(recs, "Underlying protocol exposure is elevated - check the health of the protocols the vault deploys into")
	}
	if f, ok := factors["concentration_risk"]; ok && f.Score >= 80 {
		recs = append(recs, fmt.Sprintf("Most of the deposit sits in a single %s vault - consider diversifying", version))
	}

	return recs
}
