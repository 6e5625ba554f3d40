package plugin

import (
	"fmt"
	"slices"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
)

// Stack is the ordered set of active plugins. Plugins are pushed on top and
// only the top plugin can be popped, so interception chains installed during
// activation are always removed in reverse order.
//
// Stack implements object.WindowObserver: install it with
// Core.SetWindowObserver so windows created later get the same per-window
// init as windows that existed at activation time.
//
// Plugins are identified by the name they were loaded under.
type Stack struct {
	host    Host
	plugins []*Plugin // bottom to top
	busy    bool
	log     *logging.Component

	// windows records, per window, the plugins whose window init
	// succeeded. Window fini runs only for those.
	windows map[*object.Window]map[*Plugin]bool
}

// NewStack returns an empty stack driving lifecycles against h.Core().
func NewStack(h Host) *Stack {
	return &Stack{
		host:    h,
		log:     h.Logger().For("plugin"),
		windows: make(map[*object.Window]map[*Plugin]bool),
	}
}

// Len returns the number of active plugins.
func (s *Stack) Len() int { return len(s.plugins) }

// Active returns the active plugins in activation order, bottom first.
func (s *Stack) Active() []*Plugin { return slices.Clone(s.plugins) }

// Names returns the names of the active plugins, bottom first.
func (s *Stack) Names() []string {
	names := make([]string, len(s.plugins))
	for i, p := range s.plugins {
		names[i] = p.name
	}
	return names
}

// Top returns the most recently pushed plugin, or nil.
func (s *Stack) Top() *Plugin {
	if len(s.plugins) == 0 {
		return nil
	}
	return s.plugins[len(s.plugins)-1]
}

// Find returns the active plugin called name, or nil.
func (s *Stack) Find(name string) *Plugin {
	for _, p := range s.plugins {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Push activates p on top of the stack: plugin init, display init, then
// for each screen its init followed by init of each of its windows, bottom
// to top. If any step fails every completed step is undone in reverse and
// the stack is left as it was.
func (s *Stack) Push(p *Plugin) error {
	if s.busy {
		return ErrBusy
	}
	if s.Find(p.name) != nil {
		s.log.Warnf("Plugin '%s' already active", p.name)
		return fmt.Errorf("push %s: %w", p.name, ErrAlreadyActive)
	}

	s.busy = true
	defer func() { s.busy = false }()

	s.plugins = append(s.plugins, p)
	if err := s.activate(p); err != nil {
		s.plugins = s.plugins[:len(s.plugins)-1]
		s.log.Errorf("Couldn't activate plugin '%s'", p.name)
		return fmt.Errorf("push %s: %w", p.name, err)
	}
	return nil
}

// Pop deactivates and removes the top plugin. Window fini runs for every
// window the plugin initialised, then screen fini, display fini and plugin
// fini, each in the reverse of activation order.
func (s *Stack) Pop() (*Plugin, error) {
	if s.busy {
		return nil, ErrBusy
	}
	p := s.Top()
	if p == nil {
		return nil, ErrEmptyStack
	}

	s.busy = true
	defer func() { s.busy = false }()

	s.deactivate(p)
	s.plugins = s.plugins[:len(s.plugins)-1]
	return p, nil
}

// PopAll pops every plugin and returns them in the order they were popped.
func (s *Stack) PopAll() ([]*Plugin, error) {
	var out []*Plugin
	for s.Len() > 0 {
		p, err := s.Pop()
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// activation records the steps that succeeded so they can be undone.
type activation struct {
	display bool
	screens []*object.Screen
	windows []*object.Window
}

func (s *Stack) activate(p *Plugin) error {
	vt, h := p.vtable, s.host
	d := h.Core().Display()

	if vt.Init != nil && !vt.Init(h) {
		s.log.Errorf("InitPlugin '%s' failed", p.name)
		return fmt.Errorf("%w: plugin init", ErrActivation)
	}

	var done activation
	fail := func(format string, args ...any) error {
		s.undo(p, &done)
		return fmt.Errorf("%w: %s", ErrActivation, fmt.Sprintf(format, args...))
	}

	if vt.InitDisplay != nil && !vt.InitDisplay(h, d) {
		s.log.Errorf("InitDisplay '%s' failed", p.name)
		return fail("display init")
	}
	done.display = true

	for _, sc := range d.Screens() {
		if vt.InitScreen != nil && !vt.InitScreen(h, sc) {
			s.log.Errorf("InitScreen '%s' failed", p.name)
			return fail("screen %d init", sc.Index())
		}
		done.screens = append(done.screens, sc)

		for _, w := range sc.Windows() {
			if vt.InitWindow != nil && !vt.InitWindow(h, w) {
				s.log.Errorf("InitWindow '%s' failed", p.name)
				return fail("window 0x%x init", uint32(w.ID()))
			}
			s.markWindow(w, p)
			done.windows = append(done.windows, w)
		}
	}
	return nil
}

func (s *Stack) deactivate(p *Plugin) {
	d := s.host.Core().Display()
	done := activation{display: true, screens: d.Screens()}
	for _, sc := range done.screens {
		for _, w := range sc.Windows() {
			if s.windowInitialised(w, p) {
				done.windows = append(done.windows, w)
			}
		}
	}
	s.undo(p, &done)
}

// undo runs fini for every completed step in reverse, then plugin fini.
func (s *Stack) undo(p *Plugin, done *activation) {
	vt, h := p.vtable, s.host
	for i := len(done.windows) - 1; i >= 0; i-- {
		s.finiWindow(p, done.windows[i])
	}
	if vt.FiniScreen != nil {
		for i := len(done.screens) - 1; i >= 0; i-- {
			vt.FiniScreen(h, done.screens[i])
		}
	}
	if done.display && vt.FiniDisplay != nil {
		vt.FiniDisplay(h, h.Core().Display())
	}
	if vt.Fini != nil {
		vt.Fini(h)
	}
}

func (s *Stack) markWindow(w *object.Window, p *Plugin) {
	set := s.windows[w]
	if set == nil {
		set = make(map[*Plugin]bool)
		s.windows[w] = set
	}
	set[p] = true
}

func (s *Stack) windowInitialised(w *object.Window, p *Plugin) bool {
	return s.windows[w][p]
}

// finiWindow runs p's window fini on w if p initialised it.
func (s *Stack) finiWindow(p *Plugin, w *object.Window) {
	set := s.windows[w]
	if !set[p] {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(s.windows, w)
	}
	if fini := p.vtable.FiniWindow; fini != nil {
		fini(s.host, w)
	}
}

// InitWindow runs window init for every active plugin, bottom to top, on a
// window created after activation. On failure the plugins that already
// initialised w are finalised again in reverse and the error is returned;
// w is then left initialised by no plugin.
func (s *Stack) InitWindow(w *object.Window) error {
	active := slices.Clone(s.plugins)
	for i, p := range active {
		if s.windowInitialised(w, p) {
			continue
		}
		vt := p.vtable
		if vt.InitWindow == nil || vt.InitWindow(s.host, w) {
			s.markWindow(w, p)
			continue
		}
		s.log.Errorf("InitWindow '%s' failed", p.name)
		for j := i - 1; j >= 0; j-- {
			s.finiWindow(active[j], w)
		}
		return fmt.Errorf("init window 0x%x in %s: %w", uint32(w.ID()), p.name, ErrActivation)
	}
	return nil
}

// FiniWindow runs window fini, top to bottom, for every active plugin that
// initialised w.
func (s *Stack) FiniWindow(w *object.Window) {
	active := slices.Clone(s.plugins)
	for i := len(active) - 1; i >= 0; i-- {
		s.finiWindow(active[i], w)
	}
	delete(s.windows, w)
}

// WindowAdded implements object.WindowObserver.
func (s *Stack) WindowAdded(w *object.Window) { _ = s.InitWindow(w) }

// WindowRemoved implements object.WindowObserver.
func (s *Stack) WindowRemoved(w *object.Window) { s.FiniWindow(w) }
