package redis

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("redis breaker open")

// BreakerState is the breaker position.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // calls pass through
	BreakerOpen     BreakerState = 1 // calls fail fast
	BreakerHalfOpen BreakerState = 2 // one probe call allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops hammering an unreachable Redis: after threshold
// consecutive failures every call fails fast with ErrBreakerOpen until
// cooldown has passed, then a single probe decides whether to close again.
// Context cancellation and deadline errors are the caller's, not Redis's,
// and are not counted.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	probing   bool // half-open probe in flight
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	// OnChange is called with the lock held on every transition.
	OnChange func(from, to BreakerState)
}

// NewBreaker returns a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Do runs fn unless the breaker is open or a half-open probe is already
// running.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.setState(BreakerHalfOpen)
	case BreakerHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probe := b.state == BreakerHalfOpen
	if probe {
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.setState(BreakerClosed)
		}
		return nil
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.setState(BreakerOpen)
		}
	}
	return err
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}
