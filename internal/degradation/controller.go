// Package degradation converts repeated classified errors into a
// system-wide capability level. It is the single place where failures
// change what the rest of the system is allowed to do.
package degradation

import (
	"sync"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/sirupsen/logrus"
)

// Level is the system-wide capability level, ordered least to most severe.
type Level int

// Degradation levels
const (
	LevelNormal Level = iota
	LevelReadOnly
	LevelLimited
	LevelEmergency
)

// String returns the level name for logs and metrics.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelReadOnly:
		return "read_only"
	case LevelLimited:
		return "limited"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Capabilities is the vector of what the system may do at a level. It is
// always a deterministic function of the level; nothing mutates it
// independently.
type Capabilities struct {
	CanWrite              bool `json:"can_write"`
	CanRead               bool `json:"can_read"`
	CanCalculateRisk      bool `json:"can_calculate_risk"`
	CanSendAlerts         bool `json:"can_send_alerts"`
	CanFetchPrices        bool `json:"can_fetch_prices"`
	CanQueryBlockchain    bool `json:"can_query_blockchain"`
	MaxConcurrentRequests int  `json:"max_concurrent_requests"`
}

// capabilitiesFor returns the fixed capability vector for a level.
func capabilitiesFor(level Level) Capabilities {
	switch level {
	case LevelReadOnly:
		return Capabilities{
			CanRead: true, CanCalculateRisk: true, CanSendAlerts: true,
			CanFetchPrices: true, CanQueryBlockchain: true,
			MaxConcurrentRequests: 50,
		}
	case LevelLimited:
		return Capabilities{
			CanRead: true, CanSendAlerts: true,
			MaxConcurrentRequests: 20,
		}
	case LevelEmergency:
		return Capabilities{
			CanRead: true, CanSendAlerts: true,
			MaxConcurrentRequests: 5,
		}
	default:
		return Capabilities{
			CanWrite: true, CanRead: true, CanCalculateRisk: true,
			CanSendAlerts: true, CanFetchPrices: true, CanQueryBlockchain: true,
			MaxConcurrentRequests: 100,
		}
	}
}

// Thresholds configure when the controller degrades.
type Thresholds struct {
	// ReadOnlyDatabaseErrors: database error count that forces read-only
	ReadOnlyDatabaseErrors int

	// LimitedTotalErrors: total error count that forces limited mode
	LimitedTotalErrors int

	// EmergencyCriticalErrors: distinct failing error labels that force
	// emergency mode
	EmergencyCriticalErrors int
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReadOnlyDatabaseErrors:  5,
		LimitedTotalErrors:      25,
		EmergencyCriticalErrors: 10,
	}
}

// Controller tracks classified error counts and selects the capability
// level. Error counters are unbounded by design; callers needing windowed
// counts clear them periodically via ClearErrorCounters.
type Controller struct {
	classifier *classify.Classifier
	thresholds Thresholds

	mu             sync.RWMutex
	level          Level
	capabilities   Capabilities
	errorCounters  map[string]int
	manualOverride bool
	autoRecovery   bool
}

// NewController creates a controller at the normal level.
func NewController(classifier *classify.Classifier, thresholds Thresholds) *Controller {
	return &Controller{
		classifier:    classifier,
		thresholds:    thresholds,
		level:         LevelNormal,
		capabilities:  capabilitiesFor(LevelNormal),
		errorCounters: make(map[string]int),
		autoRecovery:  true,
	}
}

// GetCurrentLevel returns the current degradation level.
func (c *Controller) GetCurrentLevel() Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// GetCapabilities returns the current capability vector.
func (c *Controller) GetCapabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// CanPerformOperation checks one named operation against the current
// capability vector. Request handlers call this before acting.
func (c *Controller) CanPerformOperation(op string) bool {
	caps := c.GetCapabilities()
	switch op {
	case "write":
		return caps.CanWrite
	case "read":
		return caps.CanRead
	case "calculate_risk":
		return caps.CanCalculateRisk
	case "send_alerts":
		return caps.CanSendAlerts
	case "fetch_prices":
		return caps.CanFetchPrices
	case "query_blockchain":
		return caps.CanQueryBlockchain
	default:
		return false
	}
}

// RecordError classifies the error, counts it under its metrics label,
// logs it at a level derived from the classified severity, and re-evaluates
// the degradation level unless a manual override is active.
func (c *Controller) RecordError(err error) classify.Classification {
	class := c.classifier.Classify(err)

	c.mu.Lock()
	c.errorCounters[class.MetricsLabel]++
	count := c.errorCounters[class.MetricsLabel]
	override := c.manualOverride
	c.mu.Unlock()

	entry := logrus.WithFields(logrus.Fields{
		"category":      class.Category,
		"metrics_label": class.MetricsLabel,
		"count":         count,
		"retryable":     class.IsRetryable,
	})
	switch class.Severity {
	case model.SeverityCritical, model.SeverityHigh:
		entry.Error(err)
	case model.SeverityMedium:
		entry.Warn(err)
	default:
		entry.Info(err)
	}

	if !override {
		c.evaluateDegradationNeed()
	}
	return class
}

// evaluateDegradationNeed picks the most severe level whose threshold is
// met and applies it when it is strictly worse than the current level. The
// controller only auto-degrades; recovery is explicit.
func (c *Controller) evaluateDegradationNeed() {
	c.mu.RLock()
	databaseErrors := 0
	for _, label := range classify.DatabaseMetricLabels {
		databaseErrors += c.errorCounters[label]
	}
	// Distinct failing labels, a proxy for breadth of failure rather than
	// a true critical-error count.
	criticalErrors := 0
	totalErrors := 0
	for _, n := range c.errorCounters {
		if n > 0 {
			criticalErrors++
		}
		totalErrors += n
	}
	current := c.level
	c.mu.RUnlock()

	suggested := LevelNormal
	switch {
	case criticalErrors >= c.thresholds.EmergencyCriticalErrors:
		suggested = LevelEmergency
	case totalErrors >= c.thresholds.LimitedTotalErrors:
		suggested = LevelLimited
	case databaseErrors >= c.thresholds.ReadOnlyDatabaseErrors:
		suggested = LevelReadOnly
	}

	if suggested > current {
		c.SetDegradationLevel(suggested)
	}
}

// SetDegradationLevel applies a level, swapping in its fixed capability
// vector. Degrading to a strictly more severe level clears the error
// counters so the new level starts from a clean slate.
func (c *Controller) SetDegradationLevel(level Level) {
	c.mu.Lock()
	previous := c.level
	c.level = level
	c.capabilities = capabilitiesFor(level)
	if level > previous {
		c.errorCounters = make(map[string]int)
	}
	c.mu.Unlock()

	if level > previous {
		logrus.Warnf("Degradation level raised: %s -> %s", previous, level)
	} else if level < previous {
		logrus.Infof("Degradation level lowered: %s -> %s", previous, level)
	}
}

// Override pins the controller to a level and disables automatic
// evaluation until ClearOverride is called.
func (c *Controller) Override(level Level) {
	c.mu.Lock()
	c.manualOverride = true
	c.mu.Unlock()
	c.SetDegradationLevel(level)
	logrus.Warnf("Degradation level manually overridden to %s", level)
}

// ClearOverride re-enables automatic degradation evaluation.
func (c *Controller) ClearOverride() {
	c.mu.Lock()
	c.manualOverride = false
	c.mu.Unlock()
}

// SetAutoRecovery toggles whether AttemptRecovery may act.
func (c *Controller) SetAutoRecovery(enabled bool) {
	c.mu.Lock()
	c.autoRecovery = enabled
	c.mu.Unlock()
}

// AttemptRecovery steps the level down by exactly one when the system has
// been quiet enough: the total error count must be below half the
// read-only threshold. The controller never schedules this itself; callers
// invoke it on a timer. Returns true when a step down happened.
func (c *Controller) AttemptRecovery() bool {
	c.mu.RLock()
	enabled := c.autoRecovery
	current := c.level
	totalErrors := 0
	for _, n := range c.errorCounters {
		totalErrors += n
	}
	c.mu.RUnlock()

	if !enabled || current == LevelNormal {
		return false
	}
	if totalErrors >= c.thresholds.ReadOnlyDatabaseErrors/2 {
		logrus.Debugf("Recovery deferred: %d recent errors", totalErrors)
		return false
	}

	c.SetDegradationLevel(current - 1)
	return true
}

// ShouldAllowOperation decides whether an operation may proceed in the
// presence of a just-classified error. Read-only-compatible errors always
// permit reads; non-retryable errors always deny writes; anything else
// falls through to the current capability vector.
func (c *Controller) ShouldAllowOperation(err error, op string) bool {
	class := c.classifier.Classify(err)
	if op == "read" && class.IsReadOnlyCompatible {
		return true
	}
	if op == "write" && !class.IsRetryable {
		return false
	}
	return c.CanPerformOperation(op)
}

// ErrorCount returns the counter for one metrics label.
func (c *Controller) ErrorCount(label string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorCounters[label]
}

// TotalErrorCount returns the sum over all counters.
func (c *Controller) TotalErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.errorCounters {
		total += n
	}
	return total
}

// ClearErrorCounters resets all counters. Callers needing windowed counts
// invoke this periodically.
func (c *Controller) ClearErrorCounters() {
	c.mu.Lock()
	c.errorCounters = make(map[string]int)
	c.mu.Unlock()
}
