package engine

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the state of one provider's circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// ErrCircuitOpen is returned by allowRequest when a candidate's circuit is
// open; the failover loop treats this as "skip without dialing" rather
// than a dialed failure (SPEC_FULL.md §4.3, CircuitOpen expansion).
var ErrCircuitOpen = errors.New("circuit breaker is open")

// circuitBreaker tracks failure/success streaks for one provider,
// generalized from the teacher's per-Provider wrapper
// (internal/llm/circuit_breaker.go) into a keyed-by-id tracker the engine
// consults before dialing each candidate, since here a Provider codec is
// shared across many (model, tier) candidates rather than wrapped 1:1.
type circuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu            sync.Mutex
	state         CircuitState
	failures      int
	lastFailure   time.Time
	successStreak int
}

func newCircuitBreaker(cfg RoutingConfig) *circuitBreaker {
	threshold := cfg.CircuitFailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	reset := cfg.CircuitResetTimeout
	if reset <= 0 {
		reset = 60 * time.Second
	}
	return &circuitBreaker{
		failureThreshold: threshold,
		resetTimeout:     reset,
		state:            CircuitClosed,
	}
}

func (cb *circuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// stateLocked also performs the open→half-open transition check, so a
// caller observing State() sees the same state allowRequest would act on.
func (cb *circuitBreaker) stateLocked() CircuitState {
	if cb.state == CircuitOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.successStreak = 0
	}
	return cb.state
}

func (cb *circuitBreaker) allowRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.stateLocked() == CircuitOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (cb *circuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !success {
		cb.failures++
		cb.lastFailure = time.Now()
		cb.successStreak = 0
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
		return
	}

	cb.successStreak++
	if cb.state == CircuitHalfOpen && cb.successStreak >= 2 {
		cb.state = CircuitClosed
		cb.failures = 0
	}
}

func (cb *circuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successStreak = 0
}

// breakers is a lazily populated, concurrency-safe keyed set of
// circuitBreaker, one per provider id.
type breakers struct {
	cfg RoutingConfig

	mu sync.Mutex
	m  map[string]*circuitBreaker
}

func newBreakers(cfg RoutingConfig) *breakers {
	return &breakers{cfg: cfg, m: make(map[string]*circuitBreaker)}
}

func (b *breakers) get(providerID string) *circuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[providerID]
	if !ok {
		cb = newCircuitBreaker(b.cfg)
		b.m[providerID] = cb
	}
	return cb
}

// Reset manually closes the circuit for one provider (management-endpoint
// collaborator surface).
func (b *breakers) Reset(providerID string) bool {
	b.mu.Lock()
	cb, ok := b.m[providerID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	cb.reset()
	return true
}
