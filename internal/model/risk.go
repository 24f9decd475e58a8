package model

// Severity grades how serious a risk factor or error is.
type Severity string

// Severity levels, ordered from least to most serious
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HealthStatus is the coarse account state derived from the overall risk
// score and the raw health factor.
type HealthStatus string

// Health statuses
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthModerate HealthStatus = "moderate"
	HealthAtRisk   HealthStatus = "at_risk"
	HealthCritical HealthStatus = "critical"
)

// RiskFactor is a named, bounded contribution to the overall risk score.
// Every factor's score must stay within its documented sub-range regardless
// of input extremity; calculators clamp, never emit out-of-range values.
type RiskFactor struct {
	// Score is the factor's risk contribution within its documented range
	Score float64 `json:"score"`

	// Weight is the factor's share of the overall score, 0.0 to 1.0
	Weight float64 `json:"weight"`

	// Description is a human-readable explanation of the factor
	Description string `json:"description"`

	// Severity grades the factor for alerting purposes
	Severity Severity `json:"severity"`
}

// LiquidationRisk describes how close an account is to liquidation.
type LiquidationRisk struct {
	// Probability of liquidation, 0.0 to 1.0
	Probability float64 `json:"probability"`

	// PriceDropThreshold is the percentage collateral price drop that
	// would trigger liquidation
	PriceDropThreshold float64 `json:"price_drop_threshold"`

	// TimeToLiquidation is an optional rough horizon estimate
	TimeToLiquidation string `json:"time_to_liquidation,omitempty"`

	// PenaltyRate is the protocol's liquidation penalty
	PenaltyRate float64 `json:"penalty_rate"`
}

// RiskAssessment is a calculator's output for one account on one protocol.
// It is computed synchronously from an AccountSummary snapshot and never
// mutated after construction.
type RiskAssessment struct {
	// Protocol the assessment covers
	Protocol string `json:"protocol"`

	// Address of the assessed account
	Address string `json:"address"`

	// OverallRiskScore is the weighted combination of factors, 0 to 100
	OverallRiskScore float64 `json:"overall_risk_score"`

	// RiskFactors maps factor name to its bounded contribution
	RiskFactors map[string]RiskFactor `json:"risk_factors"`

	// HealthStatus derived from score and health factor
	HealthStatus HealthStatus `json:"health_status"`

	// LiquidationRisk describes distance to liquidation
	LiquidationRisk LiquidationRisk `json:"liquidation_risk"`

	// Recommendations is an ordered list, most urgent first. Never empty.
	Recommendations []string `json:"recommendations"`

	// ConfidenceScore reflects data completeness, 0.5 to 1.0
	ConfidenceScore float64 `json:"confidence_score"`

	// CalculatedAt is the Unix timestamp of the assessment
	CalculatedAt int64 `json:"calculated_at"`
}
