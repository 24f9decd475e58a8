package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := New("db", 3, time.Minute)
	assert.Equal(t, StateClosed, cb.GetState(), "breaker should start closed")
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := New("db", 3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.GetState(), "breaker should stay closed below threshold")
	assert.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState(), "breaker should open at threshold")
	assert.False(t, cb.CanExecute(), "open breaker must block operations")
}

func TestCircuitBreaker_ProbeAfterRecoveryTimeout(t *testing.T) {
	cb := New("db", 1, 30*time.Millisecond)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.GetState())
	require.False(t, cb.CanExecute())

	time.Sleep(50 * time.Millisecond)

	assert.True(t, cb.CanExecute(), "probe should be allowed after recovery timeout")
	assert.Equal(t, StateHalfOpen, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsFully(t *testing.T) {
	cb := New("db", 2, 30*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(50 * time.Millisecond)
	require.True(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.Failures(), "success must reset the failure count")
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := New("db", 2, 30*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(50 * time.Millisecond)
	require.True(t, cb.CanExecute())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.GetState(), "failed probe must reopen the circuit")
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := New("rpc", 1, time.Minute)

	opErr := errors.New("rpc down")
	err := cb.Execute(func() error { return opErr })
	assert.ErrorIs(t, err, opErr, "operation error must surface untouched")

	err = cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen, "blocked execution must return the distinct open error")
}

func TestCircuitBreaker_TripCallback(t *testing.T) {
	tripped := make(chan int, 1)
	cb := New("db", 2, time.Minute).WithTripCallback(func(name string, failures int) {
		tripped <- failures
	})

	cb.RecordFailure()
	cb.RecordFailure()

	select {
	case n := <-tripped:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("trip callback was not invoked")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New("db", 1, time.Hour)
	cb.RecordFailure()
	require.False(t, cb.CanExecute())

	cb.Reset()
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateClosed, cb.GetState())
}
