// Package schedtest provides simulated time for scheduler users' tests.
package schedtest

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to an arbitrary fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Unix(1_000_000, 0)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Poller checks real descriptors without blocking. When none is ready it
// advances Clock by the requested timeout instead of sleeping, or by Idle
// when asked to block forever.
type Poller struct {
	Clock *Clock
	Idle  time.Duration
}

func (p *Poller) Poll(fds []unix.PollFd, timeout int) (int, error) {
	n, err := unix.Poll(fds, 0)
	if err != nil || n > 0 {
		return n, err
	}
	if timeout < 0 {
		p.Clock.Advance(p.Idle)
	} else {
		p.Clock.Advance(time.Duration(timeout) * time.Millisecond)
	}
	return 0, nil
}
