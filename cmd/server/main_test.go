package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/alerting"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/auth"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/degradation"
)

func TestServer_SweepRecoversDegradationLevel(t *testing.T) {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	s := &Server{
		limiter: auth.NewRateLimiter(5, 10),
		degrade: controller,
	}

	dbErr := apperrors.Database("write failed", errors.New("connection refused"))
	for i := 0; i < degradation.DefaultThresholds().ReadOnlyDatabaseErrors; i++ {
		controller.RecordError(dbErr)
	}
	require.Equal(t, degradation.LevelReadOnly, controller.GetCurrentLevel())
	require.False(t, controller.CanPerformOperation("write"))

	s.sweep()

	assert.Equal(t, degradation.LevelNormal, controller.GetCurrentLevel())
	assert.True(t, controller.CanPerformOperation("write"))
}

func TestServer_SweepStepsDownOneLevelAtATime(t *testing.T) {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	controller.SetDegradationLevel(degradation.LevelLimited)
	s := &Server{
		limiter: auth.NewRateLimiter(5, 10),
		degrade: controller,
	}

	s.sweep()
	assert.Equal(t, degradation.LevelReadOnly, controller.GetCurrentLevel())

	s.sweep()
	assert.Equal(t, degradation.LevelNormal, controller.GetCurrentLevel())
}

func TestServer_RecordErrorForwardsAlertWorthyFailures(t *testing.T) {
	classifier := classify.NewClassifier()
	notifier := alerting.NewNotifier(alerting.Config{})
	defer notifier.Stop()
	s := &Server{
		degrade:  degradation.NewController(classifier, degradation.DefaultThresholds()),
		notifier: notifier,
	}

	s.recordError(apperrors.Database("write failed",
		errors.New("permission denied for table risk_assessments")))
	assert.Equal(t, 1, notifier.Pending())

	s.recordError(apperrors.Database("write failed",
		errors.New("connection reset by peer")))
	assert.Equal(t, 1, notifier.Pending(), "transient failures must not raise alerts")
}
