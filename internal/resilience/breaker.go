// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a circuit is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible state of a circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds breaker policy. Recovery is driven by Cooldown (or an
// explicit Reset), never hardcoded.
type Config struct {
	MaxFailures int           // failures within Window that trip a circuit
	Window      time.Duration // sliding window for failure counting
	Cooldown    time.Duration // open duration before a half-open trial
}

// Circuit is a read-only snapshot of one circuit's state.
type Circuit struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

type circuit struct {
	state         State
	failures      int
	windowStart   time.Time
	lastFailureAt time.Time
	openedAt      time.Time
}

// Breaker is a process-wide circuit breaker registry keyed by circuit id.
// Every mutation targets one id-keyed entry, so unrelated circuits never
// interfere.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	circuits map[string]*circuit
	now      func() time.Time // for testing
}

// NewBreaker creates a breaker registry with the given policy.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// get must be called with b.mu held.
func (b *Breaker) get(id string) *circuit {
	c, ok := b.circuits[id]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[id] = c
	}
	return c
}

// Allow reports whether operations gated by the circuit may proceed.
// An open circuit transitions to half-open once the cooldown elapses.
func (b *Breaker) Allow(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(id)
	switch c.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) >= b.cfg.Cooldown {
			c.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// ReportError records a failure against the circuit. Failures are counted
// within a sliding window; reaching MaxFailures trips the circuit to open.
// A failure in half-open reopens immediately.
func (b *Breaker) ReportError(id string, _ error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	c := b.get(id)

	if c.failures == 0 || now.Sub(c.windowStart) > b.cfg.Window {
		c.failures = 0
		c.windowStart = now
	}
	c.failures++
	c.lastFailureAt = now

	if c.state == StateHalfOpen || c.failures >= b.cfg.MaxFailures {
		c.state = StateOpen
		c.openedAt = now
	}
}

// ReportSuccess closes the circuit and clears the failure count.
func (b *Breaker) ReportSuccess(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(id)
	c.failures = 0
	c.state = StateClosed
}

// Reset forces the circuit back to closed regardless of its history.
func (b *Breaker) Reset(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(id)
	c.failures = 0
	c.state = StateClosed
}

// Execute runs fn if the circuit allows it, reporting the outcome.
// Returns ErrCircuitOpen without calling fn when the circuit is open.
func (b *Breaker) Execute(id string, fn func() error) error {
	if !b.Allow(id) {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.ReportError(id, err)
		return err
	}
	b.ReportSuccess(id)
	return nil
}

// Status returns a snapshot of the circuit. An unknown id reports closed.
func (b *Breaker) Status(id string) Circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(id)
	return Circuit{
		ID:            id,
		State:         c.state,
		Failures:      c.failures,
		LastFailureAt: c.lastFailureAt,
	}
}

// Circuits returns snapshots of all known circuits.
func (b *Breaker) Circuits() []Circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Circuit, 0, len(b.circuits))
	for id, c := range b.circuits {
		out = append(out, Circuit{
			ID:            id,
			State:         c.state,
			Failures:      c.failures,
			LastFailureAt: c.lastFailureAt,
		})
	}
	return out
}
