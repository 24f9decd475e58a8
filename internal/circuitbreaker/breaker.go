// Package circuitbreaker provides a defensive gate that blocks operations
// against a dependency after repeated consecutive failures.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, operations blocked
	StateHalfOpen              // Probing whether the dependency recovered
)

// String returns the state name for logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the breaker blocks the operation.
// It is distinguishable from the wrapped operation's own errors.
var ErrOpen = errors.New("circuit breaker open: operation blocked")

// CircuitBreaker counts consecutive failures against one dependency and
// opens after a threshold. An open circuit allows a single probe once the
// recovery timeout has elapsed since the last failure. The breaker is an
// advisory gate: callers must tolerate the window between CanExecute and
// the recorded outcome.
type CircuitBreaker struct {
	// Name identifies the protected dependency in logs
	name string

	// Number of consecutive failures that trips the circuit
	threshold int

	// How long the circuit stays open before allowing a probe
	recoveryTimeout time.Duration

	// Mutex for thread safety; reads take the read lock only
	mu sync.RWMutex

	// Consecutive failure count
	failures int

	// Timestamp of the most recent failure
	lastFailure time.Time

	// Current state
	state State

	// Event callback for monitoring/alerting
	onTripCallback func(name string, failures int)
}

// New creates a CircuitBreaker for the named dependency.
func New(name string, threshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		name:            name,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		state:           StateClosed,
	}
}

// WithTripCallback sets a callback invoked when the circuit trips.
func (cb *CircuitBreaker) WithTripCallback(callback func(name string, failures int)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// CanExecute reports whether an operation may proceed. When the circuit is
// open and the recovery timeout has elapsed since the last failure, the
// call transitions the breaker to half-open and allows one probe.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.RLock()
	state := cb.state
	lastFailure := cb.lastFailure
	cb.mu.RUnlock()

	switch state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(lastFailure) > cb.recoveryTimeout {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	default:
		return false
	}
}

// RecordFailure increments the consecutive failure count and opens the
// circuit once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.failures >= cb.threshold && cb.state != StateOpen {
		cb.state = StateOpen
		logrus.Warnf("Circuit breaker %s tripped after %d consecutive failures", cb.name, cb.failures)
		if cb.onTripCallback != nil {
			go cb.onTripCallback(cb.name, cb.failures)
		}
	}
}

// RecordSuccess resets the breaker to closed unconditionally. A single
// success anywhere recovers fully; there is no gradual half-open ramp-up.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		logrus.Infof("Circuit breaker %s closed: dependency recovered", cb.name)
	}
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.state = StateClosed
}

// Execute runs op behind the breaker, recording the outcome. Returns
// ErrOpen without invoking op when the circuit blocks it.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if !cb.CanExecute() {
		return ErrOpen
	}
	if err := op(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// GetState returns the current state of the circuit breaker.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset forcibly resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
	logrus.Infof("Circuit breaker %s manually reset to closed state", cb.name)
}

// transitionToHalfOpen moves an open circuit to half-open for a probe.
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		logrus.Infof("Circuit breaker %s half-open: probing recovery", cb.name)
	}
}
