// Package circuitbreaker implements the per-model failure breaker used by
// the upstream client (C3) to stop dispatching to a model that is failing
// and to probe it for recovery without a thundering herd.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow (via the caller checking its result)
// when the breaker is refusing requests.
var ErrCircuitOpen = errors.New("circuitbreaker: circuit open")

// State is the breaker's current position in the closed/open/half-open
// state machine.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	failureThreshold = 5
	openDuration     = 60 * time.Second
)

// CircuitBreaker is a per-model failure breaker. Closed lets every request
// through and counts consecutive failures; 5 in a row trips it open. Open
// short-circuits every request until 60s have passed since the last
// failure, at which point exactly one probe is admitted (half-open).
// Success closes it; failure reopens it and resets the clock.
type CircuitBreaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	halfOpenProbeInFlight bool
}

// New returns a breaker in the closed state.
func New() *CircuitBreaker {
	return &CircuitBreaker{state: Closed}
}

// Allow reports whether a request may proceed, transitioning open→half-open
// when the cooldown has elapsed. In half-open, only the first caller to
// arrive after the transition is admitted; concurrent callers are refused
// until that probe resolves.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.lastFailureAt) < openDuration {
			return false
		}
		cb.state = HalfOpen
		cb.halfOpenProbeInFlight = true
		return true
	case HalfOpen:
		if cb.halfOpenProbeInFlight {
			return false
		}
		cb.halfOpenProbeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure counter and, from half-open, closes the
// breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.halfOpenProbeInFlight = false
	cb.state = Closed
}

// RecordFailure increments the consecutive-failure counter and trips the
// breaker open, either from 5 consecutive closed-state failures or from any
// half-open probe failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureAt = time.Now()
	cb.halfOpenProbeInFlight = false

	if cb.state == HalfOpen {
		cb.state = Open
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= failureThreshold {
		cb.state = Open
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
