package core

import (
	"fmt"
	"sync"
)

// DefaultMaxInteractions is the model call ceiling applied to one flow turn
// when nothing else is configured.
const DefaultMaxInteractions = 5

// InteractionLimiter enforces a maximum number of model calls per turn.
type InteractionLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewInteractionLimiter creates a new limiter with a max number of calls.
// If max <= 0, unlimited calls are allowed.
func NewInteractionLimiter(max int) *InteractionLimiter {
	return &InteractionLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (l *InteractionLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("exceeded max model calls: %d", l.max)
	}

	return nil
}

// Exhausted reports whether no further calls are allowed.
func (l *InteractionLimiter) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.max > 0 && l.count >= l.max
}

// Count returns the current number of calls made.
func (l *InteractionLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Max returns the configured ceiling (0 means unlimited).
func (l *InteractionLimiter) Max() int { return l.max }

// Remaining returns how many calls are left before hitting the limit.
func (l *InteractionLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}
