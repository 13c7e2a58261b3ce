// Package circuitbreaker short-circuits calls to remote image hosts that keep failing.
//
// Each host moves through three states:
//   - CLOSED: normal operation, fetches pass through
//   - OPEN: after N consecutive failures, fetches fail immediately
//   - HALF_OPEN: after the recovery timeout, trial fetches are allowed
package circuitbreaker

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation
	StateClosed State = 0
	// StateOpen is rejecting all requests
	StateOpen State = 1
	// StateHalfOpen is testing if the host recovered
	StateHalfOpen State = 2
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Name            string  `json:"name"`
	State           string  `json:"state"`
	FailureCount    int     `json:"failure_count"`
	SuccessCount    int     `json:"success_count"`
	LastFailureTime float64 `json:"last_failure_time"`
}

// CircuitBreaker guards a single remote host.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	stateGauge *prometheus.GaugeVec
	now        func() time.Time
}

// New creates a new circuit breaker.
func New(name string, failureThreshold, successThreshold int, recoveryTimeout time.Duration, stateGauge *prometheus.GaugeVec) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if successThreshold < 1 {
		successThreshold = 1
	}
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		stateGauge:       stateGauge,
		now:              time.Now,
	}

	if stateGauge != nil {
		stateGauge.WithLabelValues(name).Set(float64(StateClosed))
	}

	return cb
}

// AllowRequest checks if a request should be allowed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

// checkRecovery moves OPEN to HALF_OPEN once the recovery timeout passed.
// Must be called with lock held.
func (cb *CircuitBreaker) checkRecovery() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.recoveryTimeout {
		cb.transitionTo(StateHalfOpen)
	}
}

// transitionTo transitions to a new state. Must be called with lock held.
func (cb *CircuitBreaker) transitionTo(newState State) {
	cb.state = newState

	if cb.stateGauge != nil {
		cb.stateGauge.WithLabelValues(cb.name).Set(float64(newState))
	}

	switch newState {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount = 0
	}
}

// Status returns the current status.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()

	var last float64
	if !cb.lastFailureTime.IsZero() {
		last = float64(cb.lastFailureTime.Unix())
	}
	return Status{
		Name:            cb.name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: last,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()
	return cb.state
}

// DefaultMaxHosts bounds a Registry created with a non-positive size
const DefaultMaxHosts = 1024

// Registry holds one breaker per host. Hosts come from client input, so the
// registry keeps at most maxHosts breakers and evicts the least recently
// used one, dropping its gauge series with it.
type Registry struct {
	breakers *lru.Cache[string, *CircuitBreaker]
	mu       sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	stateGauge       *prometheus.GaugeVec
}

// NewRegistry creates a new circuit breaker registry.
func NewRegistry(failureThreshold, successThreshold int, recoveryTimeout time.Duration, maxHosts int, stateGauge *prometheus.GaugeVec) *Registry {
	if maxHosts <= 0 {
		maxHosts = DefaultMaxHosts
	}
	r := &Registry{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		stateGauge:       stateGauge,
	}
	// only fails for a non-positive size
	r.breakers, _ = lru.NewWithEvict[string, *CircuitBreaker](maxHosts, r.evicted)
	return r
}

func (r *Registry) evicted(name string, _ *CircuitBreaker) {
	if r.stateGauge != nil {
		r.stateGauge.DeleteLabelValues(name)
	}
}

// Get returns the circuit breaker for a host, creating it if necessary.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers.Get(name); ok {
		return cb
	}
	cb := New(name, r.failureThreshold, r.successThreshold, r.recoveryTimeout, r.stateGauge)
	r.breakers.Add(name, cb)
	return cb
}

// Len returns the number of tracked hosts.
func (r *Registry) Len() int {
	return r.breakers.Len()
}

// Statuses returns the status of every tracked breaker keyed by host.
func (r *Registry) Statuses() map[string]Status {
	keys := r.breakers.Keys()
	result := make(map[string]Status, len(keys))
	for _, k := range keys {
		if cb, ok := r.breakers.Peek(k); ok {
			result[k] = cb.Status()
		}
	}
	return result
}
