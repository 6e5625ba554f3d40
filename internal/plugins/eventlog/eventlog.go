// Package eventlog is a builtin plugin that counts what flows through the
// interception chains: events per kind on the display, frames per screen
// and paints per window. With plugins.eventlog.summary_interval_ms set it
// logs a summary periodically.
package eventlog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/plugin"
	"github.com/noodlylight/fusilli/internal/privates"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// Name is the plugin name.
const Name = "eventlog"

// SummaryOption is the option holding the summary period in milliseconds.
const SummaryOption = "summary_interval_ms"

func init() {
	plugin.Register(Name, func() *plugin.VTable { return New().VTable() })
}

type displayState struct {
	events map[platform.EventKind]int
	timer  scheduler.Handle
	sub    config.SubscriptionID
}

type screenState struct {
	frames int
}

type windowState struct {
	events int
	paints int
}

// EventLog is one instance of the plugin. Each loaded table gets its own.
type EventLog struct {
	displayKey privates.Key[*displayState]
	screenKey  privates.Key[*screenState]
	windowKey  privates.Key[*windowState]
	log        *logging.Component
}

// New returns an inactive instance.
func New() *EventLog { return &EventLog{} }

// VTable returns the capability table for this instance.
func (e *EventLog) VTable() *plugin.VTable {
	return &plugin.VTable{
		Name:        Name,
		Init:        e.init,
		Fini:        e.fini,
		InitDisplay: e.initDisplay,
		FiniDisplay: e.finiDisplay,
		InitScreen:  e.initScreen,
		FiniScreen:  e.finiScreen,
		InitWindow:  e.initWindow,
		FiniWindow:  e.finiWindow,
	}
}

func (e *EventLog) init(h plugin.Host) bool {
	e.log = h.Logger().For(Name)
	core := h.Core()

	var err error
	if e.displayKey, err = privates.NewKey[*displayState](core.Registry(object.TypeDisplay)); err != nil {
		e.log.Errorf("no display slot: %v", err)
		return false
	}
	if e.screenKey, err = privates.NewKey[*screenState](core.Registry(object.TypeScreen)); err != nil {
		e.log.Errorf("no screen slot: %v", err)
		e.displayKey.Free(core.Registry(object.TypeDisplay))
		return false
	}
	if e.windowKey, err = privates.NewKey[*windowState](core.Registry(object.TypeWindow)); err != nil {
		e.log.Errorf("no window slot: %v", err)
		e.screenKey.Free(core.Registry(object.TypeScreen))
		e.displayKey.Free(core.Registry(object.TypeDisplay))
		return false
	}
	return true
}

func (e *EventLog) fini(h plugin.Host) {
	core := h.Core()
	e.windowKey.Free(core.Registry(object.TypeWindow))
	e.screenKey.Free(core.Registry(object.TypeScreen))
	e.displayKey.Free(core.Registry(object.TypeDisplay))
}

func (e *EventLog) initDisplay(h plugin.Host, d *object.Display) bool {
	ds := &displayState{events: make(map[platform.EventKind]int)}
	err := d.HandleEvent.Wrap(Name, func(next object.EventFunc) object.EventFunc {
		return func(ev platform.Event) {
			ds.events[ev.Kind]++
			next(ev)
			// After next so a created window is already initialised.
			if w := d.FindWindow(ev.Window); w != nil {
				if ws, ok := e.windowKey.Get(w.Privates()); ok {
					ws.events++
				}
			}
			e.log.Debugf("%s window 0x%x screen %d", ev.Kind, uint32(ev.Window), ev.Screen)
		}
	})
	if err != nil {
		e.log.Errorf("wrap %s: %v", d.HandleEvent.Name(), err)
		return false
	}
	e.displayKey.Set(d.Privates(), ds)

	e.armSummary(h, d, ds)
	ds.sub = h.Config().Subscribe(Name, func(option string, _ config.Value) {
		if option == SummaryOption {
			e.armSummary(h, d, ds)
		}
	})
	return true
}

func (e *EventLog) finiDisplay(h plugin.Host, d *object.Display) {
	ds, ok := e.displayKey.Get(d.Privates())
	if !ok {
		return
	}
	h.Config().Unsubscribe(ds.sub)
	if ds.timer != 0 {
		h.Scheduler().RemoveTimer(ds.timer)
	}
	if err := d.HandleEvent.Unwrap(Name); err != nil {
		e.log.Errorf("unwrap %s: %v", d.HandleEvent.Name(), err)
	}
	e.displayKey.Clear(d.Privates())
}

// armSummary (re)starts the summary timer from the current option value.
func (e *EventLog) armSummary(h plugin.Host, d *object.Display, ds *displayState) {
	if ds.timer != 0 {
		h.Scheduler().RemoveTimer(ds.timer)
		ds.timer = 0
	}
	v, _ := h.Config().Get(Name, SummaryOption)
	ms, ok := toInt(v)
	if !ok || ms <= 0 {
		return
	}
	interval := time.Duration(ms) * time.Millisecond
	ds.timer = h.Scheduler().AddTimer(interval, interval+interval/10, func() bool {
		e.log.Infof("%s", e.Summary(d))
		return true
	})
}

func (e *EventLog) initScreen(_ plugin.Host, s *object.Screen) bool {
	ss := &screenState{}
	err := s.DonePaint.Wrap(Name, func(next object.DonePaintFunc) object.DonePaintFunc {
		return func(s *object.Screen) {
			next(s)
			ss.frames++
		}
	})
	if err != nil {
		e.log.Errorf("wrap %s: %v", s.DonePaint.Name(), err)
		return false
	}
	e.screenKey.Set(s.Privates(), ss)
	return true
}

func (e *EventLog) finiScreen(_ plugin.Host, s *object.Screen) {
	if _, ok := e.screenKey.Get(s.Privates()); !ok {
		return
	}
	if err := s.DonePaint.Unwrap(Name); err != nil {
		e.log.Errorf("unwrap %s: %v", s.DonePaint.Name(), err)
	}
	e.screenKey.Clear(s.Privates())
}

func (e *EventLog) initWindow(_ plugin.Host, w *object.Window) bool {
	ws := &windowState{}
	err := w.Paint.Wrap(Name, func(next object.PaintFunc) object.PaintFunc {
		return func(w *object.Window, attrib object.PaintAttrib) bool {
			ok := next(w, attrib)
			if ok {
				ws.paints++
			}
			return ok
		}
	})
	if err != nil {
		e.log.Errorf("wrap %s: %v", w.Paint.Name(), err)
		return false
	}
	e.windowKey.Set(w.Privates(), ws)
	return true
}

func (e *EventLog) finiWindow(_ plugin.Host, w *object.Window) {
	// Windows whose init was rolled back by another plugin have no state.
	if _, ok := e.windowKey.Get(w.Privates()); !ok {
		return
	}
	if err := w.Paint.Unwrap(Name); err != nil {
		e.log.Errorf("unwrap %s: %v", w.Paint.Name(), err)
	}
	e.windowKey.Clear(w.Privates())
}

// Events returns how many events of kind reached d while active.
func (e *EventLog) Events(d *object.Display, kind platform.EventKind) int {
	if ds, ok := e.displayKey.Get(d.Privates()); ok {
		return ds.events[kind]
	}
	return 0
}

// Frames returns how many repaints of s completed while active.
func (e *EventLog) Frames(s *object.Screen) int {
	if ss, ok := e.screenKey.Get(s.Privates()); ok {
		return ss.frames
	}
	return 0
}

// Paints returns how many successful paints w had while active.
func (e *EventLog) Paints(w *object.Window) int {
	if ws, ok := e.windowKey.Get(w.Privates()); ok {
		return ws.paints
	}
	return 0
}

// WindowEvents returns how many events named w after it was initialised.
func (e *EventLog) WindowEvents(w *object.Window) int {
	if ws, ok := e.windowKey.Get(w.Privates()); ok {
		return ws.events
	}
	return 0
}

// Summary formats the event counts of d, e.g. "events: create=2 map=1".
func (e *EventLog) Summary(d *object.Display) string {
	ds, ok := e.displayKey.Get(d.Privates())
	if !ok || len(ds.events) == 0 {
		return "events: none"
	}
	kinds := make([]platform.EventKind, 0, len(ds.events))
	for k := range ds.events {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, ds.events[k])
	}
	return "events: " + strings.Join(parts, " ")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
