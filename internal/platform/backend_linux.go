//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/x11"
)

// LinuxBackend observes an X server through an xgb connection.
type LinuxBackend struct {
	conn  *x11.Connection
	roots []x11.Root
	log   *logging.Component

	// Set from conn; replaced in tests.
	titleAtoms map[xproto.Atom]bool
	title      func(xproto.Window) string
	watchProps func(xproto.Window)

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend opens a connection to display ($DISPLAY when empty).
func NewLinuxBackend(display string, logger *logging.Logger) (*LinuxBackend, error) {
	conn, err := x11.NewConnection(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	roots, err := conn.Roots()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &LinuxBackend{
		conn:       conn,
		roots:      roots,
		log:        logger.For("x11"),
		titleAtoms: conn.TitleAtoms(),
		title:      conn.Title,
		watchProps: conn.SelectProperties,
	}, nil
}

func (b *LinuxBackend) Name() string { return "x11" }

// Screens returns one Screen per X root.
func (b *LinuxBackend) Screens() ([]Screen, error) {
	screens := make([]Screen, 0, len(b.roots))
	for _, r := range b.roots {
		sc := Screen{
			Index:  r.Index,
			Name:   fmt.Sprintf("screen-%d", r.Index),
			Root:   WindowID(r.Window),
			Bounds: Rect{Width: r.Width, Height: r.Height},
		}
		if outs, err := b.conn.Outputs(r.Window); err == nil {
			for _, o := range outs {
				sc.Outputs = append(sc.Outputs, o.Name)
			}
		}
		screens = append(screens, sc)
	}
	return screens, nil
}

// Windows lists children of the screen's root, bottom of the stack first.
func (b *LinuxBackend) Windows(screen int) ([]Window, error) {
	root, ok := b.root(screen)
	if !ok {
		return nil, fmt.Errorf("screen %d not found", screen)
	}
	infos, err := b.conn.Children(root.Window)
	if err != nil {
		return nil, err
	}
	out := make([]Window, 0, len(infos))
	for _, info := range infos {
		out = append(out, windowFromInfo(info))
	}
	return out, nil
}

// Start selects structure notifications on every root and property
// notifications on every existing client, then starts the event pump
// goroutine. post is called from that goroutine.
func (b *LinuxBackend) Start(post func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("x11 backend already started")
	}
	for _, r := range b.roots {
		if err := b.conn.SelectStructure(r.Window); err != nil {
			return fmt.Errorf("select events on root %d: %w", r.Index, err)
		}
		children, err := b.conn.Children(r.Window)
		if err != nil {
			return fmt.Errorf("list windows on root %d: %w", r.Index, err)
		}
		for _, c := range children {
			b.watchProps(c.ID)
		}
	}
	b.started = true
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		b.conn.Pump(func(ev xgb.Event) {
			if e, ok := b.translate(ev); ok {
				post(e)
			}
		}, b.protocolError)
	}()
	return nil
}

func (b *LinuxBackend) protocolError(xerr xgb.Error) {
	b.log.Debugf("x11 protocol error: %s", xerr.Error())
}

// Close disconnects and waits for the pump to exit.
func (b *LinuxBackend) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	b.conn.Close()
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

func (b *LinuxBackend) root(screen int) (x11.Root, bool) {
	for _, r := range b.roots {
		if r.Index == screen {
			return r, true
		}
	}
	return x11.Root{}, false
}

func (b *LinuxBackend) screenOf(parent xproto.Window) (int, bool) {
	for _, r := range b.roots {
		if r.Window == parent {
			return r.Index, true
		}
	}
	return 0, false
}

// translate runs on the pump goroutine. Create events select property
// notifications on the new window and fetch its title; title property
// changes fetch the new title.
func (b *LinuxBackend) translate(ev xgb.Event) (Event, bool) {
	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		screen, ok := b.screenOf(e.Parent)
		if !ok || e.OverrideRedirect {
			return Event{}, false
		}
		b.watchProps(e.Window)
		return Event{
			Kind:   EventCreate,
			Screen: screen,
			Window: WindowID(e.Window),
			Bounds: Rect{X: int(e.X), Y: int(e.Y), Width: int(e.Width), Height: int(e.Height)},
			Title:  b.title(e.Window),
		}, true
	case xproto.DestroyNotifyEvent:
		screen, ok := b.screenOf(e.Event)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventDestroy, Screen: screen, Window: WindowID(e.Window)}, true
	case xproto.ConfigureNotifyEvent:
		screen, ok := b.screenOf(e.Event)
		if !ok {
			return Event{}, false
		}
		return Event{
			Kind:   EventConfigure,
			Screen: screen,
			Window: WindowID(e.Window),
			Bounds: Rect{X: int(e.X), Y: int(e.Y), Width: int(e.Width), Height: int(e.Height)},
		}, true
	case xproto.MapNotifyEvent:
		screen, ok := b.screenOf(e.Event)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventMap, Screen: screen, Window: WindowID(e.Window)}, true
	case xproto.UnmapNotifyEvent:
		screen, ok := b.screenOf(e.Event)
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventUnmap, Screen: screen, Window: WindowID(e.Window)}, true
	case xproto.PropertyNotifyEvent:
		if !b.titleAtoms[e.Atom] || e.State != xproto.PropertyNewValue {
			return Event{}, false
		}
		if _, isRoot := b.screenOf(e.Window); isRoot {
			return Event{}, false
		}
		title := b.title(e.Window)
		if title == "" {
			return Event{}, false
		}
		return Event{Kind: EventProperty, Screen: -1, Window: WindowID(e.Window), Title: title}, true
	}
	return Event{}, false
}

func windowFromInfo(info x11.WindowInfo) Window {
	return Window{
		ID:     WindowID(info.ID),
		AppID:  info.Class,
		Title:  info.Title,
		Bounds: Rect{X: info.X, Y: info.Y, Width: info.Width, Height: info.Height},
		Mapped: info.Mapped,
	}
}
