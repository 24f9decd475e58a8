package classify

import (
	"errors"
	"testing"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_DatabasePatterns(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name        string
		message     string
		category    Category
		retryable   bool
		shouldAlert bool
	}{
		{"unique constraint", "unique constraint violation on positions", CategoryConstraintViolation, false, true},
		{"primary key constraint", "violates primary key constraint on risk_assessments", CategoryConstraintViolation, false, true},
		{"deadlock", "deadlock detected while updating assessments", CategoryTransient, true, false},
		{"connection timeout", "connection timeout after 5s", CategoryTransient, true, false},
		{"pool exhausted", "too many connections for role monitor", CategoryResourceExhaustion, true, true},
		{"disk full", "could not extend file: disk full", CategoryResourceExhaustion, true, true},
		{"syntax error", "syntax error at or near SELECT", CategoryPermanent, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := c.Classify(apperrors.Database(tt.message, nil))
			assert.Equal(t, tt.category, class.Category)
			assert.Equal(t, tt.retryable, class.IsRetryable)
			assert.Equal(t, tt.shouldAlert, class.ShouldAlert)
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := NewClassifier()

	class := c.Classify(apperrors.Database("UNIQUE CONSTRAINT violated", nil))
	assert.Equal(t, CategoryConstraintViolation, class.Category)
}

func TestClassify_LongestPatternWins(t *testing.T) {
	c := NewClassifier()

	// Message contains both "timeout" (blockchain table also has it) and
	// "connection timeout"; the longer pattern must decide the label.
	class := c.Classify(apperrors.Database("connection timeout while pinging", nil))
	assert.Equal(t, "db_connection", class.MetricsLabel)
}

func TestClassify_Defaults(t *testing.T) {
	c := NewClassifier()

	// Unmatched database errors default to permanent
	dbClass := c.Classify(apperrors.Database("completely novel failure", nil))
	assert.Equal(t, CategoryPermanent, dbClass.Category)
	assert.False(t, dbClass.IsRetryable)
	assert.True(t, dbClass.ShouldAlert)

	// Unmatched blockchain errors default to transient
	rpcClass := c.Classify(apperrors.Blockchain("novel rpc failure", nil))
	assert.Equal(t, CategoryTransient, rpcClass.Category)
	assert.True(t, rpcClass.IsRetryable)

	// Unmatched API errors default to transient
	apiClass := c.Classify(apperrors.API("novel provider failure", nil))
	assert.Equal(t, CategoryTransient, apiClass.Category)
	assert.True(t, apiClass.IsRetryable)
}

func TestClassify_FixedKinds(t *testing.T) {
	c := NewClassifier()

	authClass := c.Classify(apperrors.Authentication("bad token"))
	assert.Equal(t, CategorySecurity, authClass.Category)
	assert.Equal(t, model.SeverityHigh, authClass.Severity)
	assert.False(t, authClass.IsRetryable)
	assert.True(t, authClass.ShouldAlert)

	cfgClass := c.Classify(apperrors.Config("missing DATABASE_URL"))
	assert.Equal(t, CategoryConfiguration, cfgClass.Category)
	assert.Equal(t, model.SeverityCritical, cfgClass.Severity)
	assert.True(t, cfgClass.ShouldAlert)

	rlClass := c.Classify(apperrors.RateLimit("client throttled"))
	assert.Equal(t, CategoryRateLimit, rlClass.Category)
	assert.True(t, rlClass.IsRetryable)
	assert.False(t, rlClass.ShouldAlert)

	chainClass := c.Classify(apperrors.UnsupportedChain("solana"))
	assert.Equal(t, CategoryPermanent, chainClass.Category)
}

func TestClassify_PlainError(t *testing.T) {
	c := NewClassifier()

	class := c.Classify(errors.New("something broke"))
	assert.Equal(t, CategoryPermanent, class.Category)
	assert.Equal(t, "unknown", class.MetricsLabel)
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()
	err := apperrors.Database("deadlock detected", nil)

	first := c.Classify(err)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, c.Classify(err), "classification must be deterministic")
	}
}

func TestClassify_WrappedCauseIsMatched(t *testing.T) {
	c := NewClassifier()

	cause := errors.New(`pq: duplicate key value violates unique constraint "positions_pkey"`)
	class := c.Classify(apperrors.Database("insert position", cause))
	assert.Equal(t, CategoryConstraintViolation, class.Category)
}
