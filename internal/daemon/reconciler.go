package daemon

import (
	"slices"
	"time"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	// Interval between passes. Zero disables periodic passes.
	Interval time.Duration
	Logger   *logging.Logger
}

// Reconciler periodically compares the window system's windows with the
// object hierarchy and replays create and destroy events for whatever the
// event stream missed. Replayed events go through Display.HandleEvent, so
// plugins observe them like any other event.
type Reconciler struct {
	interval time.Duration
	sched    *scheduler.Scheduler
	backend  platform.Backend
	display  *object.Display
	handle   scheduler.Handle
	log      *logging.Component
}

// NewReconciler creates a reconciler. Call Start to begin periodic passes.
func NewReconciler(cfg ReconcilerConfig, sched *scheduler.Scheduler, backend platform.Backend, display *object.Display) *Reconciler {
	return &Reconciler{
		interval: cfg.Interval,
		sched:    sched,
		backend:  backend,
		display:  display,
		log:      cfg.Logger.For("reconciler"),
	}
}

// Start schedules periodic passes. It is a no-op when the interval is zero
// or passes are already scheduled.
func (r *Reconciler) Start() {
	if r.interval <= 0 || r.handle != 0 {
		return
	}
	r.handle = r.sched.AddTimer(r.interval, r.interval+r.interval/10, func() bool {
		r.ReconcileNow()
		return true
	})
	r.log.Debugf("reconciler started, interval %s", r.interval)
}

// Stop cancels future passes.
func (r *Reconciler) Stop() {
	if r.handle != 0 {
		r.sched.RemoveTimer(r.handle)
		r.handle = 0
	}
}

// SetInterval restarts periodic passes with a new interval.
func (r *Reconciler) SetInterval(d time.Duration) {
	r.Stop()
	r.interval = d
	r.Start()
}

// ReconcileNow performs a single pass and reports how many windows were
// created and destroyed.
func (r *Reconciler) ReconcileNow() (added, removed int) {
	for _, s := range r.display.Screens() {
		actual, err := r.backend.Windows(s.Index())
		if err != nil {
			r.log.Errorf("reconciler: failed to list windows on screen %d: %v", s.Index(), err)
			continue
		}

		actualIDs := make(map[platform.WindowID]bool, len(actual))
		for _, info := range actual {
			actualIDs[info.ID] = true
			if s.FindWindow(info.ID) != nil {
				continue
			}
			r.log.Infof("reconciler: missed window 0x%x on screen %d", uint32(info.ID), s.Index())
			r.display.Dispatch(platform.Event{
				Kind:   platform.EventCreate,
				Screen: s.Index(),
				Window: info.ID,
				Bounds: info.Bounds,
				Title:  info.Title,
			})
			if info.Mapped {
				r.display.Dispatch(platform.Event{Kind: platform.EventMap, Screen: s.Index(), Window: info.ID})
			}
			added++
		}

		for _, w := range slices.Clone(s.Windows()) {
			if actualIDs[w.ID()] {
				continue
			}
			r.log.Infof("reconciler: window 0x%x on screen %d is gone", uint32(w.ID()), s.Index())
			r.display.Dispatch(platform.Event{Kind: platform.EventDestroy, Screen: s.Index(), Window: w.ID()})
			removed++
		}
	}
	return added, removed
}
