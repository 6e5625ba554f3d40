// Package scheduler is the single-threaded cooperative event loop.
//
// Every timer callback, descriptor callback and posted function runs on the
// goroutine that calls Iterate or Run, one at a time. The loop suspends in
// exactly one place: the poll call waiting for a descriptor or the next
// timer deadline. A callback that blocks stalls every other callback,
// including repainting. The only entry points safe to call from other
// goroutines are Post, Ingress.Post and Stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/noodlylight/fusilli/internal/logging"
	"golang.org/x/sys/unix"
)

var (
	// ErrBadFd is returned when a negative descriptor is watched.
	ErrBadFd = errors.New("invalid file descriptor")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Handle identifies a timer or watched descriptor. Handles are never reused
// and zero is never issued.
type Handle uint64

// Events is a poll event mask.
type Events int16

const (
	EventIn   Events = unix.POLLIN
	EventPri  Events = unix.POLLPRI
	EventOut  Events = unix.POLLOUT
	EventErr  Events = unix.POLLERR
	EventHup  Events = unix.POLLHUP
	EventNval Events = unix.POLLNVAL
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Poller waits for readiness on fds. timeout is in milliseconds; negative
// blocks indefinitely.
type Poller interface {
	Poll(fds []unix.PollFd, timeout int) (int, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type unixPoller struct{}

func (unixPoller) Poll(fds []unix.PollFd, timeout int) (int, error) {
	return unix.Poll(fds, timeout)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, typically with a simulated one.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPoller replaces unix.Poll.
func WithPoller(p Poller) Option {
	return func(s *Scheduler) { s.poller = p }
}

// WithLogger sets the logger used for recovered callback panics.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.log = l.For("scheduler") }
}

type watch struct {
	handle  Handle
	fd      int
	events  Events
	revents Events
	fn      func(Events)
}

// Scheduler multiplexes timers and watched descriptors.
type Scheduler struct {
	clock  Clock
	poller Poller
	log    *logging.Component

	lastHandle Handle
	timers     []*timer
	watches    []*watch
	ingress    *Ingress
	pollfds    []unix.PollFd

	stop   atomic.Bool
	closed bool
}

// New creates a scheduler and its ingress descriptor.
func New(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		clock:  systemClock{},
		poller: unixPoller{},
		log:    logging.Discard().For("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	in, err := newIngress()
	if err != nil {
		return nil, fmt.Errorf("create ingress: %w", err)
	}
	s.ingress = in
	return s, nil
}

// Now returns the scheduler's notion of the current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Ingress returns the cross-goroutine submission queue.
func (s *Scheduler) Ingress() *Ingress { return s.ingress }

// Post queues fn to run on the loop thread. It is safe from any goroutine.
func (s *Scheduler) Post(fn func()) error { return s.ingress.Post(fn) }

func (s *Scheduler) newHandle() Handle {
	s.lastHandle++
	return s.lastHandle
}

// AddWatchFd calls fn with the ready events whenever fd reports any of
// events.
func (s *Scheduler) AddWatchFd(fd int, events Events, fn func(Events)) (Handle, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if fd < 0 {
		return 0, fmt.Errorf("watch fd %d: %w", fd, ErrBadFd)
	}
	w := &watch{handle: s.newHandle(), fd: fd, events: events, fn: fn}
	s.watches = append(s.watches, w)
	return w.handle, nil
}

// RemoveWatchFd stops watching. It reports whether h was registered.
func (s *Scheduler) RemoveWatchFd(h Handle) bool {
	for i, w := range s.watches {
		if w.handle == h {
			s.watches = append(s.watches[:i:i], s.watches[i+1:]...)
			return true
		}
	}
	return false
}

// WatchFdEvents returns the events reported for h by the most recent poll.
func (s *Scheduler) WatchFdEvents(h Handle) (Events, bool) {
	for _, w := range s.watches {
		if w.handle == h {
			return w.revents, true
		}
	}
	return 0, false
}

// Pending returns the number of registered timers and watched descriptors.
func (s *Scheduler) Pending() (timers, fds int) {
	return len(s.timers), len(s.watches)
}

// Iterate waits once for a descriptor or timer deadline and dispatches
// everything that became ready. Descriptor callbacks run before timers.
func (s *Scheduler) Iterate() error {
	if s.closed {
		return ErrClosed
	}

	s.pollfds = s.pollfds[:0]
	s.pollfds = append(s.pollfds, unix.PollFd{Fd: int32(s.ingress.fd()), Events: unix.POLLIN})
	polled := make([]*watch, len(s.watches))
	copy(polled, s.watches)
	for _, w := range polled {
		s.pollfds = append(s.pollfds, unix.PollFd{Fd: int32(w.fd), Events: int16(w.events)})
	}

	timeout := -1
	if deadline, ok := s.deadline(); ok {
		timeout = timeoutMillis(deadline.Sub(s.clock.Now()))
	}

	n, err := s.poller.Poll(s.pollfds, timeout)
	if err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("poll: %w", err)
	}

	if n > 0 {
		if s.pollfds[0].Revents != 0 {
			for _, fn := range s.ingress.drain() {
				s.safeCall("posted func", fn)
			}
		}
		for i, w := range polled {
			w.revents = Events(s.pollfds[i+1].Revents)
			if w.revents == 0 || !s.watching(w) {
				continue
			}
			rev := w.revents
			s.safeCall("fd callback", func() { w.fn(rev) })
		}
	}

	s.fireTimers()
	return nil
}

func (s *Scheduler) watching(w *watch) bool {
	for _, cur := range s.watches {
		if cur == w {
			return true
		}
	}
	return false
}

// Run iterates until Stop is called or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.stop.Store(false)

	cancel := context.AfterFunc(ctx, s.Stop)
	defer cancel()

	for !s.stop.Load() {
		if err := s.Iterate(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Stop makes Run return after the current iteration. It is safe from any
// goroutine.
func (s *Scheduler) Stop() {
	s.stop.Store(true)
	s.ingress.wake()
}

// Close releases the ingress descriptor and drops every registration.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.timers = nil
	s.watches = nil
	return s.ingress.Close()
}

func (s *Scheduler) safeCall(what string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("%s panicked: %v", what, r)
			panicked = true
		}
	}()
	fn()
	return false
}

func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	// Round up so the loop never wakes just before a deadline and spins.
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
