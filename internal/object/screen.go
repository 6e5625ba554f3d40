package object

import (
	"slices"
	"time"

	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/privates"
	"github.com/noodlylight/fusilli/internal/wrap"
)

type (
	// PreparePaintFunc runs before a screen repaint with the time since the
	// previous one.
	PreparePaintFunc func(s *Screen, elapsed time.Duration)

	// DonePaintFunc runs after a screen repaint.
	DonePaintFunc func(s *Screen)
)

// Screen owns windows in stacking order, bottom first.
type Screen struct {
	display *Display
	storage privates.Storage
	info    platform.Screen
	windows []*Window
	damaged bool

	PreparePaint *wrap.Chain[PreparePaintFunc]
	DonePaint    *wrap.Chain[DonePaintFunc]
}

func newScreen(d *Display, info platform.Screen) *Screen {
	s := &Screen{display: d, info: info}
	d.core.registries[TypeScreen].Attach(&s.storage)
	s.PreparePaint = wrap.New[PreparePaintFunc]("preparePaintScreen", func(*Screen, time.Duration) {})
	s.DonePaint = wrap.New[DonePaintFunc]("donePaintScreen", func(*Screen) {})
	return s
}

func (s *Screen) Type() Type                  { return TypeScreen }
func (s *Screen) Privates() *privates.Storage { return &s.storage }

func (s *Screen) Display() *Display     { return s.display }
func (s *Screen) Index() int            { return s.info.Index }
func (s *Screen) Name() string          { return s.info.Name }
func (s *Screen) Info() platform.Screen { return s.info }

// Windows returns the windows bottom to top. The slice must not be modified.
func (s *Screen) Windows() []*Window { return s.windows }

// FindWindow returns the window with id, or nil.
func (s *Screen) FindWindow(id platform.WindowID) *Window {
	for _, w := range s.windows {
		if w.info.ID == id {
			return w
		}
	}
	return nil
}

// AddWindow creates a window on top of the stack without notifying the
// window observer. It is used while building the initial hierarchy.
func (s *Screen) AddWindow(info platform.Window) *Window {
	return s.addWindow(info, false)
}

func (s *Screen) addWindow(info platform.Window, notify bool) *Window {
	w := newWindow(s, info)
	s.windows = append(s.windows, w)
	if notify && s.display.core.observer != nil {
		s.display.core.observer.WindowAdded(w)
	}
	if w.info.Mapped {
		s.Damage()
	}
	return w
}

// RemoveWindow destroys the window with id. The window observer runs before
// the window's private storage is detached. It reports whether a window was
// removed.
func (s *Screen) RemoveWindow(id platform.WindowID) bool {
	i := slices.IndexFunc(s.windows, func(w *Window) bool { return w.info.ID == id })
	if i < 0 {
		return false
	}
	w := s.windows[i]
	if s.display.core.observer != nil {
		s.display.core.observer.WindowRemoved(w)
	}
	// The observer may have re-entered and changed the slice.
	if i = slices.Index(s.windows, w); i >= 0 {
		s.windows = slices.Delete(s.windows, i, i+1)
	}
	s.display.core.registries[TypeWindow].Detach(&w.storage)
	if w.info.Mapped {
		s.Damage()
	}
	return true
}

// Damage marks the screen for repaint.
func (s *Screen) Damage() {
	if s.damaged {
		return
	}
	s.damaged = true
	if fn := s.display.core.onDamage; fn != nil {
		fn(s)
	}
}

// Damaged reports whether a repaint is pending.
func (s *Screen) Damaged() bool { return s.damaged }

// Repaint runs PreparePaint, Paint for every mapped window bottom to top,
// then DonePaint, and clears the damage flag. It returns the number of
// windows whose paint chain reported success.
func (s *Screen) Repaint(elapsed time.Duration) int {
	s.damaged = false
	s.PreparePaint.Get()(s, elapsed)

	painted := 0
	// Paint handlers may add or remove windows; iterate a snapshot.
	for _, w := range slices.Clone(s.windows) {
		if !w.info.Mapped {
			continue
		}
		if w.Paint.Get()(w, DefaultPaintAttrib()) {
			painted++
		}
	}

	s.DonePaint.Get()(s)
	return painted
}
