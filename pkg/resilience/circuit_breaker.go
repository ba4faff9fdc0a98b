// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package resilience implements the per-model circuit breakers that shield
// the fan-out from sustained downstream failure.
package resilience

import (
	"sync"
	"time"

	"github.com/modelguard/guardrail-gateway/pkg/logging"
	"github.com/modelguard/guardrail-gateway/pkg/metrics"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets requests pass through.
	StateClosed State = iota
	// StateOpen rejects every request with a local decision.
	StateOpen
	// StateHalfOpen lets probe requests through while recovery is tested.
	StateHalfOpen
)

// String returns the state name as used on the debug surface.
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

// Settings holds the breaker policy knobs.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from closed to open.
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker waits before allowing
	// probe requests.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker.
	SuccessThreshold int
	// Clock overrides the time source, for tests. Defaults to time.Now.
	Clock func() time.Time
}

// CircuitBreaker gates calls to a single model service.
//
// The mutex is held only across counter mutation and state transition,
// never across I/O.
type CircuitBreaker struct {
	name     string
	settings Settings

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a closed breaker for the named model and
// publishes its initial state to the breaker-state gauge.
func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	cb := &CircuitBreaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
	metrics.CircuitState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Name returns the model name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// AllowRequest reports whether a call may proceed. An open breaker whose
// recovery timeout has elapsed transitions to half-open and admits the call.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover()
	return cb.state != StateOpen
}

// maybeRecover moves an open breaker to half-open once the recovery timeout
// has elapsed. Callers must hold cb.mu.
func (cb *CircuitBreaker) maybeRecover() {
	if cb.state == StateOpen && cb.settings.Clock().Sub(cb.lastFailure) >= cb.settings.RecoveryTimeout {
		cb.transitionTo(StateHalfOpen)
	}
}

// RecordSuccess records a successful model call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.settings.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// RecordFailure records a terminal model call failure. Reaching the failure
// threshold in closed state, or any failure in half-open state, opens the
// breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = cb.settings.Clock()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.settings.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

// ForceClose closes the breaker, an administrative override used by the
// debug surface.
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
}

// ForceOpen opens the breaker. The last-failure timestamp is stamped so the
// breaker recovers through half-open after the usual timeout.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = cb.settings.Clock()
	cb.transitionTo(StateOpen)
}

// transitionTo changes state, resets the relevant counter, and updates the
// gauge. Callers must hold cb.mu. Transitioning to the current state is a
// no-op for counters except closed, which always clears failures.
func (cb *CircuitBreaker) transitionTo(next State) {
	prev := cb.state
	cb.state = next
	metrics.CircuitState.WithLabelValues(cb.name).Set(float64(next))

	switch next {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount = 0
	}

	if prev != next {
		logging.GetLogger().Info("circuit_breaker_state_change",
			"model_name", cb.name,
			"from", prev.String(),
			"to", next.String(),
		)
	}
}

// Status is a point-in-time snapshot of a breaker, for the debug surface
// and tests.
type Status struct {
	Name            string  `json:"name"`
	State           string  `json:"state"`
	FailureCount    int     `json:"failure_count"`
	SuccessCount    int     `json:"success_count"`
	LastFailureTime float64 `json:"last_failure_time"`
}

// Status returns the current snapshot. Like AllowRequest, it evaluates the
// open-to-half-open recovery transition first.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover()

	var lastFailure float64
	if !cb.lastFailure.IsZero() {
		lastFailure = float64(cb.lastFailure.UnixNano()) / float64(time.Second)
	}
	return Status{
		Name:            cb.name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: lastFailure,
	}
}

// CurrentState returns the state after evaluating timeout recovery.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeRecover()
	return cb.state
}
