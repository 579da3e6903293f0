package testutil

import (
	"sync"
	"time"
)

// ManualClock is a settable wall clock for tests.
//
// Now returns the current instant and then advances it by Step, so successive
// records get distinct, increasing timestamps without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// Epoch is the starting instant used by NewManualClock.
var Epoch = time.Date(2026, time.January, 2, 9, 0, 0, 0, time.UTC)

// NewManualClock creates a clock starting at Epoch that advances one second per read.
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch, Step: time.Second}
}

// Now returns the current instant and advances the clock by Step.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the instant the next Now call will return.
func (c *ManualClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
