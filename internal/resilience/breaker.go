// Package resilience guards flaky downstream dependencies. The central type
// is [Breaker], a three-state circuit breaker (closed → open → half-open)
// that fails fast once a dependency keeps erroring instead of hammering it.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// BreakerState is the current operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects every call until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single probe call through.
	BreakerHalfOpen
)

// String returns the state name for logging.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 5.
	Threshold int

	// Cooldown is how long the breaker rejects calls before allowing a
	// probe. Default: 30s.
	Cooldown time.Duration
}

// Breaker fails fast after consecutive failures. Once open it rejects calls
// for the cooldown, then admits one probe: a successful probe closes the
// breaker, a failed one restarts the cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker]. Zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Do runs fn if the breaker admits the call, otherwise it returns [ErrOpen]
// without calling fn. fn's error is passed through unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err == nil)
	return err
}

// admit decides whether a call may proceed and does the open → half-open
// transition.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		slog.Info("resilience: breaker probing", "name", b.name)
		return nil
	case BreakerHalfOpen:
		if b.probing {
			// One probe at a time.
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// settle records the call outcome.
func (b *Breaker) settle(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
		if ok {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("resilience: breaker closed", "name", b.name)
		} else {
			b.state = BreakerOpen
			b.openedAt = time.Now()
			slog.Warn("resilience: breaker re-opened", "name", b.name)
		}
		return
	}

	if ok {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("resilience: breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
