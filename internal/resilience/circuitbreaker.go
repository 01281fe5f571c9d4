// Package resilience provides the circuit breaker guarding backend calls and
// the component health monitor.
package resilience

import (
	"context"
	"sync"
	"time"

	apperrors "stockwatch/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN" // one trial call allowed through
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open trial calls that must succeed to close it.
	SuccessThreshold int
	// Timeout is the cooldown before an open circuit lets a trial call through.
	Timeout time.Duration
	// IsFailure classifies errors. Nil counts every non-cancellation error.
	IsFailure func(error) bool
	// OnStateChange is called after each transition, outside the lock.
	OnStateChange func(name string, from, to CircuitState)
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeCanceled
)

// CircuitBreaker stops calling a failing backend for a cooldown period.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    CircuitState
	streak   int // consecutive failures when closed, successes when half-open
	inTrial  bool
	openedAt time.Time
	changed  time.Time
	counters struct{ requests, failures, rejected, canceled int64 }
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	now := time.Now
	return &CircuitBreaker{name: name, config: config, now: now, state: CircuitClosed, changed: now()}
}

// Execute runs fn unless the circuit is open. A canceled context is neither
// a success nor a failure: superseded requests must not trip the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	o := outcomeSuccess
	switch {
	case err == nil:
	case apperrors.IsCanceled(err) || ctx.Err() != nil:
		o = outcomeCanceled
	case cb.config.IsFailure == nil || cb.config.IsFailure(err):
		o = outcomeFailure
	}
	cb.settle(trial, o)
	return err
}

// admit reports whether the call is the half-open trial call.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	cb.counters.requests++

	var from CircuitState
	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			cb.counters.rejected++
			cb.mu.Unlock()
			return false, apperrors.ErrCircuitOpen
		}
		from = cb.moveLocked(CircuitHalfOpen)
		fallthrough
	case CircuitHalfOpen:
		if cb.inTrial {
			cb.counters.rejected++
			cb.mu.Unlock()
			return false, apperrors.ErrCircuitOpen
		}
		cb.inTrial = true
		cb.mu.Unlock()
		cb.notify(from, CircuitHalfOpen)
		return true, nil
	}
	cb.mu.Unlock()
	return false, nil
}

func (cb *CircuitBreaker) settle(trial bool, o outcome) {
	cb.mu.Lock()
	if trial {
		cb.inTrial = false
	}
	from := cb.state
	switch o {
	case outcomeCanceled:
		cb.counters.canceled++
	case outcomeFailure:
		cb.counters.failures++
		cb.streak++
		if cb.state == CircuitHalfOpen || cb.streak >= cb.config.FailureThreshold {
			cb.moveLocked(CircuitOpen)
		}
	case outcomeSuccess:
		if cb.state == CircuitClosed {
			cb.streak = 0
			break
		}
		cb.streak++
		if cb.streak >= cb.config.SuccessThreshold {
			cb.moveLocked(CircuitClosed)
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// moveLocked switches state and returns the previous one. cb.mu must be held.
func (cb *CircuitBreaker) moveLocked(to CircuitState) CircuitState {
	from := cb.state
	cb.state = to
	cb.streak = 0
	cb.changed = cb.now()
	if to == CircuitOpen {
		cb.openedAt = cb.changed
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from != "" && from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.moveLocked(CircuitClosed)
	cb.inTrial = false
	cb.mu.Unlock()
	cb.notify(from, CircuitClosed)
}

// CircuitBreakerStats is a point-in-time copy of the breaker counters.
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	TotalCanceled   int64        `json:"total_canceled"`
	CurrentFailures int          `json:"current_failures"`
	LastStateChange time.Time    `json:"last_state_change"`
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		TotalRequests:   cb.counters.requests,
		TotalFailures:   cb.counters.failures,
		TotalRejected:   cb.counters.rejected,
		TotalCanceled:   cb.counters.canceled,
		LastStateChange: cb.changed,
	}
	if cb.state == CircuitClosed {
		s.CurrentFailures = cb.streak
	}
	return s
}
