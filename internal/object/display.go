package object

import (
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/privates"
	"github.com/noodlylight/fusilli/internal/wrap"
)

// EventFunc handles one window-system event.
type EventFunc func(ev platform.Event)

// Display owns the screens and the event handling chain.
type Display struct {
	core    *Core
	storage privates.Storage
	screens []*Screen

	// HandleEvent is the event interception chain. Its base implementation
	// applies structural events to the hierarchy.
	HandleEvent *wrap.Chain[EventFunc]
}

func newDisplay(c *Core) *Display {
	d := &Display{core: c}
	c.registries[TypeDisplay].Attach(&d.storage)
	d.HandleEvent = wrap.New[EventFunc]("handleEvent", d.applyEvent)
	return d
}

func (d *Display) Type() Type                  { return TypeDisplay }
func (d *Display) Privates() *privates.Storage { return &d.storage }

// Core returns the owning core.
func (d *Display) Core() *Core { return d.core }

// Screens returns the screens in index order. The slice must not be
// modified.
func (d *Display) Screens() []*Screen { return d.screens }

// Screen returns the screen with the given index.
func (d *Display) Screen(index int) *Screen {
	for _, s := range d.screens {
		if s.info.Index == index {
			return s
		}
	}
	return nil
}

// AddScreen creates a screen. Screens are only added during startup, before
// any plugin is active.
func (d *Display) AddScreen(info platform.Screen) *Screen {
	s := newScreen(d, info)
	d.screens = append(d.screens, s)
	return s
}

// FindWindow searches every screen for id.
func (d *Display) FindWindow(id platform.WindowID) *Window {
	for _, s := range d.screens {
		if w := s.FindWindow(id); w != nil {
			return w
		}
	}
	return nil
}

// Dispatch runs ev through the current event chain.
func (d *Display) Dispatch(ev platform.Event) {
	d.HandleEvent.Get()(ev)
}

// Close detaches every screen, window and the display itself from their
// registries. The hierarchy must not be used afterwards.
func (d *Display) Close() {
	for _, s := range d.screens {
		for _, w := range s.windows {
			d.core.registries[TypeWindow].Detach(&w.storage)
		}
		s.windows = nil
		d.core.registries[TypeScreen].Detach(&s.storage)
	}
	d.screens = nil
	d.core.registries[TypeDisplay].Detach(&d.storage)
}

func (d *Display) applyEvent(ev platform.Event) {
	s := d.Screen(ev.Screen)
	switch ev.Kind {
	case platform.EventCreate:
		if s == nil || s.FindWindow(ev.Window) != nil {
			return
		}
		s.addWindow(platform.Window{ID: ev.Window, Title: ev.Title, Bounds: ev.Bounds}, true)
	case platform.EventDestroy:
		if s != nil {
			s.RemoveWindow(ev.Window)
		}
	case platform.EventConfigure:
		if w := d.FindWindow(ev.Window); w != nil {
			w.info.Bounds = ev.Bounds
			if w.info.Mapped {
				w.screen.Damage()
			}
		}
	case platform.EventMap, platform.EventUnmap:
		if w := d.FindWindow(ev.Window); w != nil {
			w.info.Mapped = ev.Kind == platform.EventMap
			w.screen.Damage()
		}
	case platform.EventProperty:
		if w := d.FindWindow(ev.Window); w != nil && ev.Title != "" {
			w.info.Title = ev.Title
		}
	}
}
