package platform

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNotStarted is returned by Inject before Start has been called.
var ErrNotStarted = errors.New("backend not started")

// Static is a headless backend. Events are delivered only through Inject,
// which also applies them to the backend's own window table so Windows
// stays in step with what was delivered.
type Static struct {
	mu      sync.Mutex
	screens []Screen
	windows map[int][]Window
	post    func(Event)
	closed  bool
}

var _ Backend = (*Static)(nil)

// NewStatic creates a headless backend. windows is keyed by screen index.
func NewStatic(screens []Screen, windows map[int][]Window) *Static {
	if windows == nil {
		windows = make(map[int][]Window)
	}
	return &Static{screens: screens, windows: windows}
}

// DefaultHeadless returns a single 1920x1080 screen with no windows.
func DefaultHeadless() *Static {
	return NewStatic([]Screen{{
		Index:   0,
		Name:    "headless-0",
		Root:    1,
		Bounds:  Rect{Width: 1920, Height: 1080},
		Outputs: []string{"virtual"},
	}}, nil)
}

func (s *Static) Name() string { return "headless" }

func (s *Static) Screens() ([]Screen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Screen, len(s.screens))
	copy(out, s.screens)
	return out, nil
}

func (s *Static) Windows(screen int) ([]Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.screens {
		if sc.Index == screen {
			out := make([]Window, len(s.windows[screen]))
			copy(out, s.windows[screen])
			return out, nil
		}
	}
	return nil, fmt.Errorf("screen %d not found", screen)
}

func (s *Static) Start(post func(Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post = post
	return nil
}

// Inject applies ev to the window table and delivers it through the post
// function given to Start.
func (s *Static) Inject(ev Event) error {
	s.mu.Lock()
	post := s.post
	if post == nil || s.closed {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.apply(ev)
	s.mu.Unlock()
	post(ev)
	return nil
}

// SetWindows replaces the windows of screen without delivering any event,
// as if the window system changed behind the runtime's back.
func (s *Static) SetWindows(screen int, windows []Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[screen] = append([]Window(nil), windows...)
}

func (s *Static) apply(ev Event) {
	list := s.windows[ev.Screen]
	i := slices.IndexFunc(list, func(w Window) bool { return w.ID == ev.Window })
	switch ev.Kind {
	case EventCreate:
		if i < 0 {
			s.windows[ev.Screen] = append(list, Window{ID: ev.Window, Title: ev.Title, Bounds: ev.Bounds})
		}
		return
	case EventDestroy:
		if i >= 0 {
			s.windows[ev.Screen] = slices.Delete(list, i, i+1)
		}
		return
	}
	if i < 0 {
		return
	}
	switch ev.Kind {
	case EventConfigure:
		list[i].Bounds = ev.Bounds
	case EventMap:
		list[i].Mapped = true
	case EventUnmap:
		list[i].Mapped = false
	case EventProperty:
		list[i].Title = ev.Title
	}
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.post = nil
	return nil
}
