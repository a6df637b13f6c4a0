// Package vclock implements a pausable clock that measures active time only.
package vclock

import (
	"sync"
	"time"
)

// Clock accumulates elapsed time while running and freezes while paused.
//
//	Elapsed = base                      (paused)
//	Elapsed = base + (now - resumedAt)  (running)
//
// Safe for concurrent use.
type Clock struct {
	now func() time.Time

	mu        sync.Mutex
	base      time.Duration
	resumedAt time.Time
	pausedAt  time.Time
	paused    bool
}

// New returns a running clock started at now(). A nil now uses time.Now.
func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, resumedAt: now()}
}

func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked(c.now())
}

func (c *Clock) elapsedLocked(now time.Time) time.Duration {
	if c.paused {
		return c.base
	}
	d := now.Sub(c.resumedAt)
	if d < 0 {
		d = 0
	}
	return c.base + d
}

// Pause freezes the clock. It returns false if the clock was already paused.
func (c *Clock) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	now := c.now()
	c.base = c.elapsedLocked(now)
	c.pausedAt = now
	c.paused = true
	return true
}

// Resume releases the freeze without adding the paused interval.
// It returns false if the clock was not paused.
func (c *Clock) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	c.pausedAt = time.Time{}
	c.resumedAt = c.now()
	return true
}

func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// PausedAt returns the wall-clock instant of the current pause.
func (c *Clock) PausedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedAt, c.paused
}
