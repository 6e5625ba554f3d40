package eventlog

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/plugin"
	"github.com/noodlylight/fusilli/internal/scheduler"
	"github.com/noodlylight/fusilli/internal/scheduler/schedtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type host struct {
	core  *object.Core
	log   *logging.Logger
	store *config.Store
	sched *scheduler.Scheduler
}

func (h *host) Logger() *logging.Logger         { return h.log }
func (h *host) Config() *config.Store           { return h.store }
func (h *host) Scheduler() *scheduler.Scheduler { return h.sched }
func (h *host) Core() *object.Core              { return h.core }

type fixture struct {
	host  *host
	clock *schedtest.Clock
	el    *EventLog
	stack *plugin.Stack
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, summaryMs int) *fixture {
	t.Helper()
	clock := schedtest.NewClock()
	sched, err := scheduler.New(scheduler.WithClock(clock), scheduler.WithPoller(&schedtest.Poller{Clock: clock, Idle: 10 * time.Millisecond}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })

	logs := &bytes.Buffer{}
	log := logging.New(logging.Options{Level: logging.LevelDebug, Writer: logs, JSON: true, Exit: func(int) {}})

	cfg := config.DefaultConfig()
	if summaryMs > 0 {
		cfg.Plugins[Name] = map[string]any{SummaryOption: summaryMs}
	}

	core := object.NewCore()
	s := core.Display().AddScreen(platform.Screen{Index: 0, Name: "test", Root: 1})
	s.AddWindow(platform.Window{ID: 1, Mapped: true})

	h := &host{core: core, log: log, store: config.NewStoreFromConfig("", cfg, log), sched: sched}
	stack := plugin.NewStack(h)
	core.SetWindowObserver(stack)

	el := New()
	loader := plugin.NewLoader(log, plugin.WithDirs(), plugin.WithBuiltins(map[string]plugin.EntryFunc{
		Name: el.VTable,
	}))
	p, err := loader.Load(Name)
	require.NoError(t, err)
	require.NoError(t, stack.Push(p))

	return &fixture{host: h, clock: clock, el: el, stack: stack, logs: logs}
}

func TestEventLog_CountsThroughChains(t *testing.T) {
	f := newFixture(t, 0)
	d := f.host.core.Display()
	s := d.Screen(0)

	d.Dispatch(platform.Event{Kind: platform.EventCreate, Screen: 0, Window: 2})
	d.Dispatch(platform.Event{Kind: platform.EventMap, Screen: 0, Window: 2})

	assert.Equal(t, 1, f.el.Events(d, platform.EventCreate))
	assert.Equal(t, 1, f.el.Events(d, platform.EventMap))
	w2 := d.FindWindow(2)
	require.NotNil(t, w2)
	assert.Equal(t, 2, f.el.WindowEvents(w2), "runtime window initialised before the post-hook ran")

	painted := s.Repaint(16 * time.Millisecond)
	assert.Equal(t, 2, painted)
	assert.Equal(t, 1, f.el.Frames(s))
	assert.Equal(t, 1, f.el.Paints(d.FindWindow(1)))
	assert.Equal(t, 1, f.el.Paints(w2))
	assert.Equal(t, "events: create=1 map=1", f.el.Summary(d))
}

func TestEventLog_PopRestoresChainsAndSlots(t *testing.T) {
	f := newFixture(t, 0)
	d := f.host.core.Display()
	s := d.Screen(0)
	w := d.FindWindow(1)
	idx := f.el.windowKey.Index

	assert.Equal(t, 1, d.HandleEvent.Depth())
	assert.Equal(t, 1, s.DonePaint.Depth())
	assert.Equal(t, 1, w.Paint.Depth())

	_, err := f.stack.Pop()
	require.NoError(t, err)

	assert.Equal(t, 0, d.HandleEvent.Depth())
	assert.Equal(t, 0, s.DonePaint.Depth())
	assert.Equal(t, 0, w.Paint.Depth())
	assert.False(t, f.host.core.Registry(object.TypeWindow).Valid(idx))
	assert.Nil(t, w.Privates().Slot(idx))
}

func TestEventLog_SummaryTimerFollowsOption(t *testing.T) {
	f := newFixture(t, 50)
	end := f.clock.Now().Add(200 * time.Millisecond)
	for f.clock.Now().Before(end) {
		require.NoError(t, f.host.sched.Iterate())
	}
	assert.GreaterOrEqual(t, strings.Count(f.logs.String(), "events: none"), 3)

	timers, _ := f.host.sched.Pending()
	assert.Equal(t, 1, timers)

	cfg := config.DefaultConfig()
	f.host.store.Replace(cfg)
	timers, _ = f.host.sched.Pending()
	assert.Equal(t, 0, timers)
}

func TestToInt(t *testing.T) {
	for _, v := range []any{5, int64(5), uint64(5), 5.0} {
		n, ok := toInt(v)
		assert.True(t, ok)
		assert.Equal(t, 5, n)
	}
	_, ok := toInt("5")
	assert.False(t, ok)
}
