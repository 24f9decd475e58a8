package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/circuitbreaker"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/degradation"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

type fakeExecer struct {
	execs int
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, _ string, _ ...interface{}) (sql.Result, error) {
	f.execs++
	return nil, f.err
}

func newTestExecutor(db Execer) *SafeExecutor {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	breaker := circuitbreaker.New("database", 5, time.Minute)
	return NewSafeExecutor(db, breaker, classifier, controller)
}

func TestSafeExecutor_SuccessfulWrite(t *testing.T) {
	audit := &fakeExecer{}
	e := newTestExecutor(audit)

	verified := false
	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:    "save_assessment",
		Execute: func(ctx context.Context) error { return nil },
		VerifyCheck: func(ctx context.Context) error {
			verified = true
			return nil
		},
	})

	assert.True(t, result.Success)
	assert.True(t, result.IntegrityVerified)
	assert.True(t, result.AuditLogged)
	assert.True(t, verified)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, audit.execs, "expected a start and an end audit row")
}

func TestSafeExecutor_RetriesTransientErrors(t *testing.T) {
	e := newTestExecutor(&fakeExecer{})

	attempts := 0
	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name: "save_assessment",
		Execute: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return apperrors.Database("write failed", errors.New("deadlock detected"))
			}
			return nil
		},
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestSafeExecutor_NoRetryOnConstraintViolation(t *testing.T) {
	e := newTestExecutor(&fakeExecer{})

	attempts := 0
	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name: "save_assessment",
		Execute: func(ctx context.Context) error {
			attempts++
			return apperrors.Database("write failed",
				errors.New(`duplicate key value violates unique constraint "idx_assessments"`))
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, attempts, "constraint violations must not be retried")
	assert.NotEmpty(t, result.Errors)
}

func TestSafeExecutor_PreCheckBlocksWrite(t *testing.T) {
	e := newTestExecutor(&fakeExecer{})

	executed := false
	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:     "save_assessment",
		Execute:  func(ctx context.Context) error { executed = true; return nil },
		PreCheck: func(ctx context.Context) error { return errors.New("stale input") },
	})

	assert.False(t, result.Success)
	assert.False(t, executed)
}

func TestSafeExecutor_DegradationBlocksWrites(t *testing.T) {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	controller.Override(degradation.LevelReadOnly)
	audit := &fakeExecer{}
	e := NewSafeExecutor(audit, circuitbreaker.New("database", 5, time.Minute), classifier, controller)

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:    "save_assessment",
		Execute: func(ctx context.Context) error { return nil },
	})

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "degradation")
	assert.Equal(t, 2, audit.execs, "blocked writes still leave start and end audit rows")
	assert.True(t, result.AuditLogged)
}

func TestSafeExecutor_OpenBreakerShortCircuits(t *testing.T) {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	breaker := circuitbreaker.New("database", 1, time.Minute)
	breaker.RecordFailure()
	e := NewSafeExecutor(&fakeExecer{}, breaker, classifier, controller)

	executed := false
	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:    "save_assessment",
		Execute: func(ctx context.Context) error { executed = true; return nil },
	})

	assert.False(t, result.Success)
	assert.False(t, executed)
}

func TestSafeExecutor_BlockedWritesAreAudited(t *testing.T) {
	classifier := classify.NewClassifier()
	controller := degradation.NewController(classifier, degradation.DefaultThresholds())
	breaker := circuitbreaker.New("database", 1, time.Minute)
	breaker.RecordFailure()
	audit := &fakeExecer{}
	e := NewSafeExecutor(audit, breaker, classifier, controller)

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:    "save_assessment",
		Execute: func(ctx context.Context) error { return nil },
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, audit.execs, "breaker-rejected writes still leave start and end audit rows")
	assert.True(t, result.AuditLogged)
}

func TestSafeExecutor_PreCheckFailureIsAudited(t *testing.T) {
	audit := &fakeExecer{}
	e := newTestExecutor(audit)

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:     "save_assessment",
		Execute:  func(ctx context.Context) error { return nil },
		PreCheck: func(ctx context.Context) error { return errors.New("stale input") },
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, audit.execs, "pre-check failures still leave start and end audit rows")
}

func TestSafeExecutor_AlertsOnPermanentFailure(t *testing.T) {
	var alerted []string
	e := newTestExecutor(&fakeExecer{}).WithAlertFunc(func(severity model.Severity, message string) {
		alerted = append(alerted, string(severity)+": "+message)
	})

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name: "save_assessment",
		Execute: func(ctx context.Context) error {
			return apperrors.Database("write failed", errors.New("syntax error at or near SELECT"))
		},
	})

	assert.False(t, result.Success)
	require.Len(t, alerted, 1)
	assert.Contains(t, alerted[0], string(model.SeverityCritical))
	assert.Contains(t, alerted[0], "save_assessment")
}

func TestSafeExecutor_NoAlertOnTransientFailure(t *testing.T) {
	alerts := 0
	e := newTestExecutor(&fakeExecer{}).WithAlertFunc(func(model.Severity, string) { alerts++ })

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name: "save_assessment",
		Execute: func(ctx context.Context) error {
			return apperrors.Database("write failed", errors.New("connection refused"))
		},
	})

	assert.False(t, result.Success)
	assert.Zero(t, alerts, "transient failures are retried, not alerted")
}

func TestSafeExecutor_AuditFailureIsWarningOnly(t *testing.T) {
	e := newTestExecutor(&fakeExecer{err: errors.New("audit table missing")})

	result := e.ExecuteWrite(context.Background(), WriteOp{
		Name:        "save_assessment",
		Execute:     func(ctx context.Context) error { return nil },
		VerifyCheck: func(ctx context.Context) error { return nil },
	})

	assert.True(t, result.Success)
	assert.False(t, result.AuditLogged)
	assert.NotEmpty(t, result.Warnings)
}
