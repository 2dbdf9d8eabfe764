package embed

import (
	"sync"
	"time"

	"github.com/dgallion1/versegest/internal/faults"
)

// breaker opens after threshold consecutive failures, stays open for
// cooldown, then lets a single probe through.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state    faults.CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     faults.CircuitClosed,
	}
}

// allow reports whether a call may proceed and the state it proceeds in.
func (b *breaker) allow() (faults.CircuitState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case faults.CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return b.state, false
		}
		b.state = faults.CircuitHalfOpen
		b.probing = true
		return b.state, true
	case faults.CircuitHalfOpen:
		if b.probing {
			return b.state, false
		}
		b.probing = true
		return b.state, true
	}
	return b.state, true
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = faults.CircuitClosed
	b.failures = 0
	b.probing = false
}

// failure records a failed call and returns the resulting state.
func (b *breaker) failure() faults.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.failures++
	if b.state == faults.CircuitHalfOpen || b.failures >= b.threshold {
		b.state = faults.CircuitOpen
		b.openedAt = b.now()
	}
	return b.state
}

// release ends a probe without judging the backend, e.g. when the caller
// gave up for a reason unrelated to the backend.
func (b *breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *breaker) current() faults.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
