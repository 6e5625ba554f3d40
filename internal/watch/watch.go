// Package watch multiplexes file watches onto the scheduler.
//
// Many logical watches share one backend. Watches on the same path share a
// kernel watch descriptor; the Watcher keeps a table from descriptor to
// handles and filters each event by the watch's own mask.
package watch

import (
	"errors"
	"fmt"
	"slices"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// Mask selects the kinds of change a watch reports.
type Mask uint8

const (
	Create Mask = 1 << iota
	Delete
	Move
	Modify

	All = Create | Delete | Move | Modify
)

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var s string
	for _, p := range []struct {
		bit  Mask
		name string
	}{{Create, "create"}, {Delete, "delete"}, {Move, "move"}, {Modify, "modify"}} {
		if m&p.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += p.name
		}
	}
	return s
}

// ErrClosed is returned after Close.
var ErrClosed = errors.New("watcher closed")

// RawEvent is one backend event. Name is relative to the watched path and
// empty for events about the watched path itself.
type RawEvent struct {
	Wd   int
	Mask Mask
	Name string
}

// Backend is the change-notification mechanism behind a Watcher.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Attach arranges for ready to run on the loop thread whenever events
	// may be pending.
	Attach(s *scheduler.Scheduler, ready func()) error
	// Add starts watching path for mask and returns its descriptor. Adding
	// a path again returns the same descriptor with the masks combined.
	Add(path string, mask Mask) (int, error)
	// Remove stops watching descriptor wd.
	Remove(wd int) error
	// ReadEvents returns pending events without blocking.
	ReadEvents() ([]RawEvent, error)
	Close() error
}

// Handle identifies a file watch. Handles are never reused.
type Handle uint64

type fileWatch struct {
	handle Handle
	path   string
	mask   Mask
	wd     int
	fn     func(name string)
}

// Watcher dispatches backend events to file watch callbacks on the loop
// thread.
type Watcher struct {
	backend Backend
	log     *logging.Component

	last    Handle
	watches map[Handle]*fileWatch
	byWd    map[int][]Handle
	closed  bool
}

// New attaches backend to s.
func New(s *scheduler.Scheduler, backend Backend, logger *logging.Logger) (*Watcher, error) {
	w := &Watcher{
		backend: backend,
		log:     logger.For("watch"),
		watches: make(map[Handle]*fileWatch),
		byWd:    make(map[int][]Handle),
	}
	if err := backend.Attach(s, w.process); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", backend.Name(), err)
	}
	return w, nil
}

// Backend returns the backend name.
func (w *Watcher) Backend() string { return w.backend.Name() }

// Add watches path for the changes in mask. fn receives the changed entry
// name, or "" when the event concerns path itself.
func (w *Watcher) Add(path string, mask Mask, fn func(name string)) (Handle, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if mask == 0 {
		return 0, fmt.Errorf("watch %s: empty mask", path)
	}
	wd, err := w.backend.Add(path, mask)
	if err != nil {
		return 0, fmt.Errorf("watch %s: %w", path, err)
	}
	w.last++
	fw := &fileWatch{handle: w.last, path: path, mask: mask, wd: wd, fn: fn}
	w.watches[fw.handle] = fw
	w.byWd[wd] = append(w.byWd[wd], fw.handle)
	w.log.Debugf("watching %s for %s (wd %d)", path, mask, wd)
	return fw.handle, nil
}

// Remove stops a watch. The backend descriptor is released once no other
// watch shares it. It reports whether h was registered.
func (w *Watcher) Remove(h Handle) bool {
	fw, ok := w.watches[h]
	if !ok {
		return false
	}
	delete(w.watches, h)

	hs := slices.DeleteFunc(w.byWd[fw.wd], func(x Handle) bool { return x == h })
	if len(hs) > 0 {
		w.byWd[fw.wd] = hs
		return true
	}
	delete(w.byWd, fw.wd)
	if err := w.backend.Remove(fw.wd); err != nil {
		w.log.Warnf("remove watch on %s: %v", fw.path, err)
	}
	return true
}

// Len returns the number of active watches.
func (w *Watcher) Len() int { return len(w.watches) }

// Close removes every watch and closes the backend.
func (w *Watcher) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.watches = map[Handle]*fileWatch{}
	w.byWd = map[int][]Handle{}
	return w.backend.Close()
}

func (w *Watcher) process() {
	if w.closed {
		return
	}
	events, err := w.backend.ReadEvents()
	if err != nil {
		w.log.Errorf("read %s events: %v", w.backend.Name(), err)
	}
	w.dispatch(events)
}

func (w *Watcher) dispatch(events []RawEvent) {
	for _, ev := range events {
		// Callbacks may add or remove watches; iterate a copy.
		for _, h := range slices.Clone(w.byWd[ev.Wd]) {
			fw, ok := w.watches[h]
			if !ok || fw.mask&ev.Mask == 0 {
				continue
			}
			fw.fn(ev.Name)
		}
	}
}
