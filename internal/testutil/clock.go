// Package testutil provides deterministic helpers for harness tests: a
// fixed-step clock for reproducible result timestamps and a fake mount
// System for exercising session lifecycles without a real NFS server.
package testutil

import (
	"sync"
	"time"
)

// FakeClock is a thread-safe clock that advances by a fixed step on every
// Now() call. Deterministic timestamps keep rendered reports stable for
// golden-file comparison.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFakeClock creates a clock starting at start, advancing by step per
// Now() call. The first call returns start itself.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{now: start, step: step}
}

// Now returns the current fake time and advances the clock by one step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the clock's current time without advancing it.
func (c *FakeClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
