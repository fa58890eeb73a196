package util

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the node's epoch and checkpoint loops.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// Every calls fn each interval until ctx is done.
func Every(ctx context.Context, clock Clock, interval time.Duration, fn func(now time.Time)) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-clock.After(interval):
			fn(now)
		}
	}
}

// ManualClock fires timers only when Advance moves time past them.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []manualTimer
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

func NewManualClock(start time.Time) *ManualClock { return &ManualClock{now: start} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.pending = append(c.pending, manualTimer{at: c.now.Add(d), ch: ch})
	return ch
}

// Waiters reports how many timers are pending.
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Advance moves the clock forward and fires every timer that came due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.pending[:0]
	for _, t := range c.pending {
		if t.at.After(c.now) {
			kept = append(kept, t)
			continue
		}
		t.ch <- c.now
	}
	c.pending = kept
}
