package object

import (
	"testing"
	"time"

	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	added   []platform.WindowID
	removed []platform.WindowID
	// slotLen is the window private storage length seen at removal time.
	slotLen []int
}

func (o *recordingObserver) WindowAdded(w *Window) { o.added = append(o.added, w.ID()) }

func (o *recordingObserver) WindowRemoved(w *Window) {
	o.removed = append(o.removed, w.ID())
	o.slotLen = append(o.slotLen, w.Privates().Len())
}

func newTestCore(t *testing.T) (*Core, *Screen) {
	t.Helper()
	c := NewCore()
	s := c.Display().AddScreen(platform.Screen{Index: 0, Name: "test", Root: 1})
	return c, s
}

func TestNewCore_AttachesStorageToRegistries(t *testing.T) {
	c, s := newTestCore(t)
	s.AddWindow(platform.Window{ID: 10})

	assert.Equal(t, 1, c.Registry(TypeCore).Live())
	assert.Equal(t, 1, c.Registry(TypeDisplay).Live())
	assert.Equal(t, 1, c.Registry(TypeScreen).Live())
	assert.Equal(t, 1, c.Registry(TypeWindow).Live())

	idx, err := c.Registry(TypeWindow).Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, s.Windows()[0].Privates().Len())
}

func TestHandleEvent_AppliesStructuralEvents(t *testing.T) {
	c, s := newTestCore(t)
	obs := &recordingObserver{}
	c.SetWindowObserver(obs)
	d := c.Display()

	d.Dispatch(platform.Event{Kind: platform.EventCreate, Screen: 0, Window: 5, Title: "term"})
	w := d.FindWindow(5)
	require.NotNil(t, w)
	assert.Equal(t, "term", w.Title())
	assert.False(t, w.Mapped())

	d.Dispatch(platform.Event{Kind: platform.EventMap, Screen: 0, Window: 5})
	assert.True(t, w.Mapped())
	assert.True(t, s.Damaged())

	d.Dispatch(platform.Event{Kind: platform.EventConfigure, Screen: 0, Window: 5,
		Bounds: platform.Rect{X: 1, Y: 2, Width: 30, Height: 40}})
	assert.Equal(t, platform.Rect{X: 1, Y: 2, Width: 30, Height: 40}, w.Geometry())

	d.Dispatch(platform.Event{Kind: platform.EventDestroy, Screen: 0, Window: 5})
	assert.Nil(t, d.FindWindow(5))

	assert.Equal(t, []platform.WindowID{5}, obs.added)
	assert.Equal(t, []platform.WindowID{5}, obs.removed)
	assert.Equal(t, 0, c.Registry(TypeWindow).Live())
}

func TestHandleEvent_PropertyUpdatesTitle(t *testing.T) {
	c, s := newTestCore(t)
	s.AddWindow(platform.Window{ID: 10, Title: "old"})

	// Property events carry no screen; the window is found by id.
	c.Display().Dispatch(platform.Event{Kind: platform.EventProperty, Screen: -1, Window: 10, Title: "new"})
	assert.Equal(t, "new", c.Display().FindWindow(10).Title())

	c.Display().Dispatch(platform.Event{Kind: platform.EventProperty, Screen: -1, Window: 10})
	assert.Equal(t, "new", c.Display().FindWindow(10).Title(), "empty title ignored")
}

func TestHandleEvent_DuplicateCreateIgnored(t *testing.T) {
	c, s := newTestCore(t)
	obs := &recordingObserver{}
	c.SetWindowObserver(obs)

	ev := platform.Event{Kind: platform.EventCreate, Screen: 0, Window: 9}
	c.Display().Dispatch(ev)
	c.Display().Dispatch(ev)

	assert.Len(t, s.Windows(), 1)
	assert.Len(t, obs.added, 1)
}

func TestRemoveWindow_ObserverSeesAttachedStorage(t *testing.T) {
	c, s := newTestCore(t)
	_, err := c.Registry(TypeWindow).Allocate()
	require.NoError(t, err)

	obs := &recordingObserver{}
	c.SetWindowObserver(obs)
	s.AddWindow(platform.Window{ID: 3})

	assert.True(t, s.RemoveWindow(3))
	assert.Equal(t, []int{1}, obs.slotLen)
	assert.False(t, s.RemoveWindow(3))
}

func TestDamage_NotifiesOncePerRepaint(t *testing.T) {
	c, s := newTestCore(t)
	calls := 0
	c.OnDamage(func(*Screen) { calls++ })

	s.Damage()
	s.Damage()
	assert.Equal(t, 1, calls)

	s.Repaint(0)
	assert.False(t, s.Damaged())
	s.Damage()
	assert.Equal(t, 2, calls)
}

func TestRepaint_RunsChainsBottomToTop(t *testing.T) {
	_, s := newTestCore(t)
	s.AddWindow(platform.Window{ID: 1, Mapped: true})
	s.AddWindow(platform.Window{ID: 2, Mapped: false})
	s.AddWindow(platform.Window{ID: 3, Mapped: true})

	var trace []string
	require.NoError(t, s.PreparePaint.Wrap("test", func(next PreparePaintFunc) PreparePaintFunc {
		return func(sc *Screen, elapsed time.Duration) {
			trace = append(trace, "prepare")
			next(sc, elapsed)
		}
	}))
	require.NoError(t, s.DonePaint.Wrap("test", func(next DonePaintFunc) DonePaintFunc {
		return func(sc *Screen) {
			next(sc)
			trace = append(trace, "done")
		}
	}))
	for _, w := range s.Windows() {
		require.NoError(t, w.Paint.Wrap("test", func(next PaintFunc) PaintFunc {
			return func(w *Window, attrib PaintAttrib) bool {
				trace = append(trace, "paint")
				return next(w, attrib)
			}
		}))
	}

	painted := s.Repaint(16 * time.Millisecond)
	assert.Equal(t, 2, painted)
	assert.Equal(t, []string{"prepare", "paint", "paint", "done"}, trace)
}

func TestDisplayClose_DetachesEverything(t *testing.T) {
	c, s := newTestCore(t)
	s.AddWindow(platform.Window{ID: 1})

	c.Display().Close()
	assert.Equal(t, 0, c.Registry(TypeDisplay).Live())
	assert.Equal(t, 0, c.Registry(TypeScreen).Live())
	assert.Equal(t, 0, c.Registry(TypeWindow).Live())
	assert.Empty(t, c.Display().Screens())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "window", TypeWindow.String())
	assert.Equal(t, "type(9)", Type(9).String())
}
