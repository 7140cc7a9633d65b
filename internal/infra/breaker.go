package infra

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while a circuit is cooling down.
var ErrCircuitOpen = errors.New("circuit open")

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

type circuit struct {
	state    string
	failures int
	openedAt time.Time
	probing  bool
}

// Breaker tracks one circuit per named dependency. Five consecutive failures
// open a circuit; after the recovery timeout a single probe call is let
// through, and its outcome decides whether the circuit closes again.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	recovery  time.Duration
	now       func() time.Time
}

// NewBreaker creates a new Breaker with default threshold and recovery timeout.
func NewBreaker() *Breaker {
	return &Breaker{
		circuits:  map[string]*circuit{},
		threshold: defaultFailureThreshold,
		recovery:  defaultRecoveryTimeout,
		now:       time.Now,
	}
}

func (b *Breaker) get(name string) *circuit {
	c, ok := b.circuits[name]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[name] = c
	}
	return c
}

// Allow reports whether a call to name may proceed. In the half-open state
// only one caller at a time gets through; concurrent callers are rejected
// until the probe settles.
func (b *Breaker) Allow(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(name)
	switch c.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.recovery {
			return ErrCircuitOpen
		}
		c.state = StateHalfOpen
		c.probing = true
		return nil
	default: // half-open
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
		return nil
	}
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(name)
	c.state = StateClosed
	c.failures = 0
	c.probing = false
}

// Abandon releases a half-open probe slot without deciding the outcome.
// Used when a call was cut short for reasons unrelated to backend health,
// such as an upstream quota rejection, so the next caller may probe again.
func (b *Breaker) Abandon(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(name).probing = false
}

// Failure records a failed call. A failed half-open probe reopens the
// circuit immediately and restarts the cooldown.
func (b *Breaker) Failure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(name)
	if c.state == StateHalfOpen {
		c.state = StateOpen
		c.openedAt = b.now()
		c.probing = false
		return
	}
	c.failures++
	if c.failures >= b.threshold {
		c.state = StateOpen
		c.openedAt = b.now()
	}
}

// State returns the current state of the named circuit.
func (b *Breaker) State(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(name).state
}
