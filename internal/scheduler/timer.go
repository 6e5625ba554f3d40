package scheduler

import (
	"slices"
	"time"
)

// TimerFunc is a timer callback. Returning true keeps the timer scheduled
// for another interval; false removes it.
type TimerFunc func() bool

type timer struct {
	handle   Handle
	min, max time.Duration
	minDue   time.Time
	maxDue   time.Time
	fn       TimerFunc
}

// AddTimer schedules fn to run no sooner than minInterval and, load
// permitting, no later than maxInterval from now. A maxInterval below
// minInterval is raised to it. The loop is free to fire anywhere in the
// window so nearby timers share one wakeup.
func (s *Scheduler) AddTimer(minInterval, maxInterval time.Duration, fn TimerFunc) Handle {
	if minInterval < 0 {
		minInterval = 0
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	t := &timer{handle: s.newHandle(), min: minInterval, max: maxInterval, fn: fn}
	t.arm(s.clock.Now())
	s.timers = append(s.timers, t)
	return t.handle
}

// RemoveTimer cancels a timer. It reports whether h was registered. A timer
// may remove itself from its own callback.
func (s *Scheduler) RemoveTimer(h Handle) bool {
	i := slices.IndexFunc(s.timers, func(t *timer) bool { return t.handle == h })
	if i < 0 {
		return false
	}
	s.timers = slices.Delete(s.timers, i, i+1)
	return true
}

func (t *timer) arm(now time.Time) {
	t.minDue = now.Add(t.min)
	t.maxDue = now.Add(t.max)
}

// deadline returns when the loop must wake for timers. It starts at the
// earliest timer's maxDue and is lowered to the maxDue of every timer whose
// window opens before the deadline, so one wakeup serves them all and no
// timer passes its maxDue.
func (s *Scheduler) deadline() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	byMin := slices.Clone(s.timers)
	slices.SortStableFunc(byMin, func(a, b *timer) int { return a.minDue.Compare(b.minDue) })

	d := byMin[0].maxDue
	for _, t := range byMin {
		if t.minDue.After(d) {
			break
		}
		if t.maxDue.Before(d) {
			d = t.maxDue
		}
	}
	return d, true
}

// fireTimers runs every timer whose window has opened. Timers added by a
// callback in this pass wait for the next pass.
func (s *Scheduler) fireTimers() {
	if len(s.timers) == 0 {
		return
	}
	now := s.clock.Now()
	var due []*timer
	for _, t := range s.timers {
		if !t.minDue.After(now) {
			due = append(due, t)
		}
	}

	for _, t := range due {
		if !slices.Contains(s.timers, t) {
			continue
		}
		again := false
		if s.safeCall("timer callback", func() { again = t.fn() }) {
			again = false
		}
		if !slices.Contains(s.timers, t) {
			continue
		}
		if again {
			t.arm(s.clock.Now())
		} else {
			s.RemoveTimer(t.handle)
		}
	}
}
