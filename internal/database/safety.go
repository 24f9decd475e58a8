package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/circuitbreaker"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/classify"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/degradation"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

const (
	maxWriteAttempts = 3
	baseRetryDelay   = 100 * time.Millisecond
)

// WriteOp is a database write plus the checks that bracket it. PreCheck
// runs before the first attempt, VerifyCheck after a successful write.
// Either may be nil.
type WriteOp struct {
	Name        string
	Execute     func(ctx context.Context) error
	PreCheck    func(ctx context.Context) error
	VerifyCheck func(ctx context.Context) error
}

// WriteResult reports everything that happened during a safe write, so
// callers can distinguish "written and verified" from "written but
// unverifiable".
type WriteResult struct {
	OperationID       uuid.UUID `json:"operation_id"`
	Success           bool      `json:"success"`
	Attempts          int       `json:"attempts"`
	IntegrityVerified bool      `json:"integrity_verified"`
	AuditLogged       bool      `json:"audit_logged"`
	Warnings          []string  `json:"warnings,omitempty"`
	Errors            []string  `json:"errors,omitempty"`
}

// Execer is the slice of *sql.DB the audit trail needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SafeExecutor brackets database writes with the degradation gate, the
// database circuit breaker, classified retries and an audit trail.
type SafeExecutor struct {
	db         Execer
	breaker    *circuitbreaker.CircuitBreaker
	classifier *classify.Classifier
	controller *degradation.Controller
	alert      func(severity model.Severity, message string)
}

// NewSafeExecutor creates an executor around an open pool.
func NewSafeExecutor(db Execer, breaker *circuitbreaker.CircuitBreaker, classifier *classify.Classifier, controller *degradation.Controller) *SafeExecutor {
	return &SafeExecutor{db: db, breaker: breaker, classifier: classifier, controller: controller}
}

// WithAlertFunc routes write failures whose classification carries
// should_alert to the given sink.
func (e *SafeExecutor) WithAlertFunc(alert func(severity model.Severity, message string)) *SafeExecutor {
	e.alert = alert
	return e
}

// ExecuteWrite runs a write operation under the full safety bracket.
// Every invocation leaves a start and an end audit row, including writes
// rejected by the degradation gate, the breaker, or the pre-check. A
// failed verify or audit step degrades the result but does not undo a
// write that already committed.
func (e *SafeExecutor) ExecuteWrite(ctx context.Context, op WriteOp) WriteResult {
	result := WriteResult{OperationID: uuid.New()}
	e.auditStart(ctx, &result, op.Name)

	if !e.controller.CanPerformOperation("write") {
		result.Errors = append(result.Errors, "writes disabled at current degradation level")
		e.auditEnd(ctx, &result, op.Name, false, result.Errors[0])
		return result
	}
	if !e.breaker.CanExecute() {
		result.Errors = append(result.Errors, circuitbreaker.ErrOpen.Error())
		e.auditEnd(ctx, &result, op.Name, false, result.Errors[0])
		return result
	}

	if op.PreCheck != nil {
		if err := op.PreCheck(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pre-check failed: %v", err))
			e.auditEnd(ctx, &result, op.Name, false, result.Errors[0])
			return result
		}
	}

	err := e.executeWithRetry(ctx, op, &result)
	if err != nil {
		e.breaker.RecordFailure()
		class := e.controller.RecordError(err)
		if class.ShouldAlert && e.alert != nil {
			e.alert(class.Severity, fmt.Sprintf("write %s failed: %v", op.Name, err))
		}
		result.Errors = append(result.Errors, err.Error())
		e.auditEnd(ctx, &result, op.Name, false, err.Error())
		return result
	}
	e.breaker.RecordSuccess()
	result.Success = true

	if op.VerifyCheck != nil {
		if err := op.VerifyCheck(ctx); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("post-write verification failed: %v", err))
		} else {
			result.IntegrityVerified = true
		}
	} else {
		result.Warnings = append(result.Warnings, "no verification check configured")
	}

	e.auditEnd(ctx, &result, op.Name, true, "")
	return result
}

// executeWithRetry retries transient failures with exponential backoff.
// Permanent and constraint failures abort immediately.
func (e *SafeExecutor) executeWithRetry(ctx context.Context, op WriteOp, result *WriteResult) error {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		result.Attempts = attempt + 1

		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return apperrors.Database("write cancelled during retry backoff", ctx.Err())
			}
		}

		lastErr = op.Execute(ctx)
		if lastErr == nil {
			return nil
		}

		classification := e.classifier.Classify(lastErr)
		if !classification.IsRetryable {
			logrus.WithFields(logrus.Fields{
				"operation": op.Name,
				"category":  classification.Category,
			}).Warn("Write failed with non-retryable error")
			return lastErr
		}
		logrus.WithFields(logrus.Fields{
			"operation": op.Name,
			"attempt":   attempt + 1,
		}).Warnf("Retryable write failure: %v", lastErr)
	}
	return lastErr
}

// auditStart records that an operation entered the safety bracket. The
// success column only carries meaning on end rows.
func (e *SafeExecutor) auditStart(ctx context.Context, result *WriteResult, operation string) {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO write_audit_log (operation_id, operation, phase, success, detail)
		 VALUES ($1, $2, 'start', false, '')`,
		result.OperationID, operation)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("audit log write failed: %v", err))
	}
}

// auditEnd records the outcome in the write audit log. Audit failures are
// a warning on the result, never a write failure.
func (e *SafeExecutor) auditEnd(ctx context.Context, result *WriteResult, operation string, success bool, detail string) {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO write_audit_log (operation_id, operation, phase, success, detail)
		 VALUES ($1, $2, 'end', $3, $4)`,
		result.OperationID, operation, success, detail)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("audit log write failed: %v", err))
		return
	}
	result.AuditLogged = true
}
