// Package capturetest provides a controllable clock for driving capture
// sessions in tests.
package capturetest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ManualClock is a capture.Clock whose time only moves when told to.
//
// In auto-advance mode every Sleep returns immediately after moving the
// clock forward by d, so a whole session completes synchronously and the
// elapsed simulated time can be read back. Otherwise sleepers block until
// Advance moves time past their deadline.
type ManualClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	auto    bool
	sleeps  []time.Duration
	waiters []*sleeper
}

type sleeper struct {
	deadline time.Time
	done     chan struct{}
}

// NewManualClock returns a clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetAutoAdvance toggles auto-advance mode.
func (c *ManualClock) SetAutoAdvance(v bool) {
	c.mu.Lock()
	c.auto = v
	c.mu.Unlock()
}

// Now returns the simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements Clock.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if c.auto || d <= 0 {
		c.now = c.now.Add(d)
		c.mu.Unlock()
		return nil
	}
	s := &sleeper{deadline: c.now.Add(d), done: make(chan struct{})}
	c.waiters = append(c.waiters, s)
	c.cond.Broadcast()
	c.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		c.removeLocked(s)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Advance moves time forward and wakes every sleeper whose deadline passed.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	sort.Slice(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	kept := c.waiters[:0]
	for _, s := range c.waiters {
		if !s.deadline.After(c.now) {
			close(s.done)
			continue
		}
		kept = append(kept, s)
	}
	c.waiters = kept
}

// WaitForSleepers blocks until at least n goroutines are sleeping or ctx
// is done.
func (c *ManualClock) WaitForSleepers(ctx context.Context, n int) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func (c *ManualClock) removeLocked(s *sleeper) {
	for i, w := range c.waiters {
		if w == s {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
