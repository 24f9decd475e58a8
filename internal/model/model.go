// Package model defines the core data structures for the risk monitor.
package model

import (
	"math"
	"time"
)

// PositionType identifies the economic role of a position.
type PositionType string

// Known position types
const (
	PositionSupply     PositionType = "supply"
	PositionBorrow     PositionType = "borrow"
	PositionCollateral PositionType = "collateral"
	PositionStaking    PositionType = "staking"
	PositionWithdrawal PositionType = "withdrawal"
	PositionLP         PositionType = "lp"
)

// Position represents a single on-chain economic exposure for one address
// on one protocol. Positions are created by adapters and consumed read-only
// by the risk calculators.
type Position struct {
	// Protocol is the protocol the position belongs to (e.g. "aave_v3")
	Protocol string `json:"protocol"`

	// Type describes the economic role of the position
	Type PositionType `json:"position_type"`

	// Pair is a token pair label, e.g. "WETH/USDC" or just "stETH"
	Pair string `json:"pair"`

	// ValueUSD is the position value in USD. Negative for liabilities.
	ValueUSD float64 `json:"value_usd"`

	// PnlUSD is the unrealized profit or loss in USD
	PnlUSD float64 `json:"pnl_usd"`

	// PnlPercentage is the unrealized PnL relative to cost basis
	PnlPercentage float64 `json:"pnl_percentage"`

	// Metadata carries protocol-specific numeric or string fields
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// LastUpdated is the Unix timestamp the position was last refreshed
	LastUpdated int64 `json:"last_updated"`
}

// NewPosition creates a position stamped with the current time.
func NewPosition(protocol string, typ PositionType, pair string, valueUSD float64) Position {
	return Position{
		Protocol:    protocol,
		Type:        typ,
		Pair:        pair,
		ValueUSD:    valueUSD,
		Metadata:    map[string]interface{}{},
		LastUpdated: time.Now().Unix(),
	}
}

// IsStale reports whether the position data is older than maxAge.
func (p Position) IsStale(maxAge time.Duration) bool {
	return time.Since(time.Unix(p.LastUpdated, 0)) > maxAge
}

// MetaFloat reads a numeric metadata field, returning the fallback when the
// field is absent or not numeric.
func (p Position) MetaFloat(key string, fallback float64) float64 {
	v, ok := p.Metadata[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

// MetaString reads a string metadata field, returning "" when absent.
func (p Position) MetaString(key string) string {
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// AccountSummary aggregates the positions of one address on one protocol.
// Created fresh per assessment request; never persisted by the calculators.
type AccountSummary struct {
	// Protocol the summary belongs to
	Protocol string `json:"protocol"`

	// Address of the account owner
	Address string `json:"address"`

	// TotalCollateralUSD is the sum of collateral-side position values
	TotalCollateralUSD float64 `json:"total_collateral_usd"`

	// TotalDebtUSD is the sum of borrow-side position values (positive)
	TotalDebtUSD float64 `json:"total_debt_usd"`

	// TotalSupplyUSD is the sum of supplied (non-collateral) values
	TotalSupplyUSD float64 `json:"total_supply_usd"`

	// NetWorthUSD is collateral + supply - debt
	NetWorthUSD float64 `json:"net_worth_usd"`

	// HealthFactor is the protocol health factor. +Inf when there is no debt.
	// health_factor > 1.0 means solvent, <= 1.0 means liquidatable.
	HealthFactor float64 `json:"health_factor"`

	// Positions lists the per-market positions backing the aggregates
	Positions []Position `json:"positions"`
}

// HasDebt reports whether the account carries any borrow exposure.
func (s AccountSummary) HasDebt() bool {
	return s.TotalDebtUSD > 0
}

// IsLiquidatable reports whether the account is at or past the liquidation
// boundary. The health factor is authoritative here.
func (s AccountSummary) IsLiquidatable() bool {
	return s.HasDebt() && !math.IsInf(s.HealthFactor, 1) && s.HealthFactor <= 1.0
}

// Utilization returns debt as a fraction of collateral, 0 when there is no
// collateral to divide by.
func (s AccountSummary) Utilization() float64 {
	if s.TotalCollateralUSD <= 0 {
		return 0
	}
	return s.TotalDebtUSD / s.TotalCollateralUSD
}
