// Package validation provides filtering and sanity checks for positions
// before they reach the risk calculators.
package validation

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

// Options holds configuration for the position validation process
type Options struct {
	// MaxAge defines how recent position data must be to be considered valid
	MaxAge time.Duration

	// MaxAbsValueUSD rejects positions whose magnitude exceeds any
	// plausible single-account exposure
	MaxAbsValueUSD float64

	// EnableOutlierDetection enables statistical outlier detection over
	// position values within one account
	EnableOutlierDetection bool

	// OutlierIQRMultiplier defines sensitivity for outlier detection (1.5 is standard)
	OutlierIQRMultiplier float64
}

// DefaultOptions returns sensible defaults for validation
func DefaultOptions() Options {
	return Options{
		MaxAge:                 15 * time.Minute,
		MaxAbsValueUSD:         1e12,
		EnableOutlierDetection: true,
		OutlierIQRMultiplier:   1.5,
	}
}

// FilterPositions removes positions that fail validation. This is the
// main entrypoint for the validation package.
func FilterPositions(positions []model.Position) []model.Position {
	return FilterPositionsWithOptions(positions, DefaultOptions())
}

// FilterPositionsWithOptions removes positions with custom validation options.
func FilterPositionsWithOptions(positions []model.Position, opts Options) []model.Position {
	valid := filterBasicCriteria(positions, opts)

	if opts.EnableOutlierDetection && len(valid) > 3 {
		return filterOutliers(valid, opts.OutlierIQRMultiplier)
	}
	return valid
}

// ValidateSummary checks the aggregates of a summary against its
// positions. It returns warnings rather than failing: the calculators
// fold data quality into the confidence score instead.
func ValidateSummary(summary model.AccountSummary) []string {
	var warnings []string

	if summary.TotalDebtUSD < 0 {
		warnings = append(warnings, "negative total debt")
	}
	if summary.TotalCollateralUSD < 0 {
		warnings = append(warnings, "negative total collateral")
	}
	if summary.HealthFactor < 0 {
		warnings = append(warnings, "negative health factor")
	}
	if math.IsNaN(summary.HealthFactor) {
		warnings = append(warnings, "health factor is NaN")
	}
	if !summary.HasDebt() && !math.IsInf(summary.HealthFactor, 1) {
		warnings = append(warnings, "finite health factor without debt")
	}

	if len(warnings) > 0 {
		logrus.WithFields(logrus.Fields{
			"protocol": summary.Protocol,
			"address":  summary.Address,
			"warnings": warnings,
		}).Warn("Summary failed consistency checks")
	}
	return warnings
}

// filterBasicCriteria applies fundamental validation rules to each position
func filterBasicCriteria(positions []model.Position, opts Options) []model.Position {
	valid := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if isValidPosition(p, opts) {
			valid = append(valid, p)
		} else {
			logrus.WithFields(logrus.Fields{
				"protocol": p.Protocol,
				"pair":     p.Pair,
				"value":    p.ValueUSD,
			}).Debug("Filtered invalid position")
		}
	}
	return valid
}

// isValidPosition checks if a single position meets all validation criteria
func isValidPosition(p model.Position, opts Options) bool {
	if p.Protocol == "" || p.Type == "" {
		return false
	}

	if math.IsNaN(p.ValueUSD) || math.IsInf(p.ValueUSD, 0) {
		return false
	}

	if math.Abs(p.ValueUSD) > opts.MaxAbsValueUSD {
		return false
	}

	// Borrow positions are liabilities and must not be positive.
	if p.Type == model.PositionBorrow && p.ValueUSD > 0 {
		return false
	}

	if p.IsStale(opts.MaxAge) {
		return false
	}

	return true
}

// filterOutliers removes statistical outliers using the IQR method over
// absolute position values.
func filterOutliers(positions []model.Position, iqrMultiplier float64) []model.Position {
	if len(positions) <= 3 {
		return positions // Need at least 4 points for meaningful outlier detection
	}

	values := make([]float64, len(positions))
	for i, p := range positions {
		values[i] = math.Abs(p.ValueUSD)
	}

	sort.Float64s(values)
	q1 := values[len(values)/4]
	q3 := values[len(values)*3/4]
	iqr := q3 - q1

	lowerBound := q1 - iqrMultiplier*iqr
	upperBound := q3 + iqrMultiplier*iqr

	// If bounds are too strict, widen them around the mean so a tight
	// cluster of values doesn't filter everything.
	if upperBound-lowerBound < 0.005 {
		mean := calculateMean(values)
		lowerBound = mean * 0.5
		upperBound = mean * 2.0
	}

	valid := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		v := math.Abs(p.ValueUSD)
		if v >= lowerBound && v <= upperBound {
			valid = append(valid, p)
		} else {
			logrus.WithFields(logrus.Fields{
				"protocol": p.Protocol,
				"pair":     p.Pair,
				"value":    p.ValueUSD,
				"bounds":   []float64{lowerBound, upperBound},
			}).Info("Filtered outlier position")
		}
	}

	logrus.WithFields(logrus.Fields{
		"total":    len(positions),
		"filtered": len(positions) - len(valid),
	}).Debug("Outlier filtering complete")

	return valid
}

// calculateMean computes the arithmetic mean of a slice of float64
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
