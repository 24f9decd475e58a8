package degradation

import (
	"testing"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t Thresholds) *Controller {
	return NewController(classify.NewClassifier(), t)
}

func TestController_StartsNormal(t *testing.T) {
	c := newTestController(DefaultThresholds())

	assert.Equal(t, LevelNormal, c.GetCurrentLevel())
	assert.True(t, c.CanPerformOperation("write"))
	assert.True(t, c.CanPerformOperation("read"))
	assert.True(t, c.CanPerformOperation("calculate_risk"))
	assert.False(t, c.CanPerformOperation("unknown_operation"))
}

func TestController_DatabaseErrorsForceReadOnly(t *testing.T) {
	thresholds := Thresholds{ReadOnlyDatabaseErrors: 3, LimitedTotalErrors: 100, EmergencyCriticalErrors: 100}
	c := newTestController(thresholds)

	// Two database errors: still normal
	c.RecordError(apperrors.Database("connection timeout", nil))
	c.RecordError(apperrors.Database("connection timeout", nil))
	require.Equal(t, LevelNormal, c.GetCurrentLevel())

	// Third crosses the threshold exactly
	c.RecordError(apperrors.Database("deadlock detected", nil))
	assert.Equal(t, LevelReadOnly, c.GetCurrentLevel())
	assert.False(t, c.CanPerformOperation("write"), "read-only mode must block writes")
	assert.True(t, c.CanPerformOperation("read"), "read-only mode must allow reads")
	assert.True(t, c.CanPerformOperation("calculate_risk"), "risk calculation continues in read-only mode")
}

func TestController_RiskCalculationDisabledWhenLimited(t *testing.T) {
	c := newTestController(DefaultThresholds())

	c.SetDegradationLevel(LevelLimited)
	assert.False(t, c.CanPerformOperation("calculate_risk"))
	assert.False(t, c.CanPerformOperation("fetch_prices"))
	assert.True(t, c.CanPerformOperation("read"))

	c.SetDegradationLevel(LevelEmergency)
	assert.False(t, c.CanPerformOperation("calculate_risk"))
	assert.True(t, c.CanPerformOperation("send_alerts"))
}

func TestController_CapabilitiesTrackLevel(t *testing.T) {
	c := newTestController(DefaultThresholds())

	for _, level := range []Level{LevelNormal, LevelReadOnly, LevelLimited, LevelEmergency} {
		c.SetDegradationLevel(level)
		assert.Equal(t, capabilitiesFor(level), c.GetCapabilities(),
			"capability vector must be a pure function of the level")
	}
}

func TestController_DegradingClearsCounters(t *testing.T) {
	thresholds := Thresholds{ReadOnlyDatabaseErrors: 2, LimitedTotalErrors: 100, EmergencyCriticalErrors: 100}
	c := newTestController(thresholds)

	c.RecordError(apperrors.Database("connection timeout", nil))
	c.RecordError(apperrors.Database("connection timeout", nil))
	require.Equal(t, LevelReadOnly, c.GetCurrentLevel())
	assert.Equal(t, 0, c.TotalErrorCount(), "degrading must clear error counters")
}

func TestController_NeverAutoUpgrades(t *testing.T) {
	c := newTestController(DefaultThresholds())

	c.SetDegradationLevel(LevelLimited)
	// A harmless error must not move the level back toward normal
	c.RecordError(apperrors.RateLimit("throttled"))
	assert.Equal(t, LevelLimited, c.GetCurrentLevel())
}

func TestController_RecoveryOneLevelAtATime(t *testing.T) {
	thresholds := Thresholds{ReadOnlyDatabaseErrors: 10, LimitedTotalErrors: 100, EmergencyCriticalErrors: 100}
	c := newTestController(thresholds)

	c.SetDegradationLevel(LevelEmergency)

	assert.True(t, c.AttemptRecovery())
	assert.Equal(t, LevelLimited, c.GetCurrentLevel())

	assert.True(t, c.AttemptRecovery())
	assert.Equal(t, LevelReadOnly, c.GetCurrentLevel())

	assert.True(t, c.AttemptRecovery())
	assert.Equal(t, LevelNormal, c.GetCurrentLevel())

	assert.False(t, c.AttemptRecovery(), "recovery at normal is a no-op")
}

func TestController_RecoveryBlockedByRecentErrors(t *testing.T) {
	thresholds := Thresholds{ReadOnlyDatabaseErrors: 4, LimitedTotalErrors: 100, EmergencyCriticalErrors: 100}
	c := newTestController(thresholds)

	c.SetDegradationLevel(LevelReadOnly)
	// Two errors >= half the read-only threshold: recovery must wait
	c.RecordError(apperrors.API("timeout", nil))
	c.RecordError(apperrors.API("timeout", nil))

	assert.False(t, c.AttemptRecovery())
	assert.Equal(t, LevelReadOnly, c.GetCurrentLevel())

	c.ClearErrorCounters()
	assert.True(t, c.AttemptRecovery())
	assert.Equal(t, LevelNormal, c.GetCurrentLevel())
}

func TestController_RecoveryDisabled(t *testing.T) {
	c := newTestController(DefaultThresholds())
	c.SetDegradationLevel(LevelReadOnly)
	c.SetAutoRecovery(false)

	assert.False(t, c.AttemptRecovery())
	assert.Equal(t, LevelReadOnly, c.GetCurrentLevel())
}

func TestController_ManualOverrideStopsAutoDegrade(t *testing.T) {
	thresholds := Thresholds{ReadOnlyDatabaseErrors: 1, LimitedTotalErrors: 100, EmergencyCriticalErrors: 100}
	c := newTestController(thresholds)

	c.Override(LevelNormal)
	c.RecordError(apperrors.Database("connection timeout", nil))
	c.RecordError(apperrors.Database("connection timeout", nil))
	assert.Equal(t, LevelNormal, c.GetCurrentLevel(), "override must pin the level")

	c.ClearOverride()
	c.RecordError(apperrors.Database("connection timeout", nil))
	assert.Equal(t, LevelReadOnly, c.GetCurrentLevel())
}

func TestController_ShouldAllowOperation(t *testing.T) {
	c := newTestController(DefaultThresholds())

	// Read-only-compatible error always permits reads, even degraded
	c.SetDegradationLevel(LevelEmergency)
	readOnlyErr := apperrors.Database("connection timeout", nil)
	assert.True(t, c.ShouldAllowOperation(readOnlyErr, "read"))

	// Non-retryable error always denies writes, even at normal
	c.SetDegradationLevel(LevelNormal)
	constraintErr := apperrors.Database("unique constraint violation", nil)
	assert.False(t, c.ShouldAllowOperation(constraintErr, "write"))

	// Retryable error at normal level falls through to capabilities
	assert.True(t, c.ShouldAllowOperation(readOnlyErr, "write"))
}

func TestController_ErrorCounting(t *testing.T) {
	c := newTestController(DefaultThresholds())

	c.RecordError(apperrors.Database("deadlock detected", nil))
	c.RecordError(apperrors.Database("deadlock detected", nil))
	assert.Equal(t, 2, c.ErrorCount("db_deadlock"))
	assert.Equal(t, 2, c.TotalErrorCount())

	c.ClearErrorCounters()
	assert.Equal(t, 0, c.TotalErrorCount())
}
