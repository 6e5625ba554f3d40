package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// Connection manages the X11 connection and the roots of every screen.
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window
}

// Root describes one X screen as reported by the connection setup.
type Root struct {
	Index  int
	Window xproto.Window
	Width  int
	Height int
}

// NewConnection connects to display, or to $DISPLAY when display is empty.
func NewConnection(display string) (*Connection, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}

	return &Connection{
		XUtil: xu,
		Root:  xu.RootWin(),
	}, nil
}

// Roots returns every screen root in setup order.
func (c *Connection) Roots() ([]Root, error) {
	setup := xproto.Setup(c.XUtil.Conn())
	if setup == nil {
		return nil, fmt.Errorf("x11 setup info unavailable")
	}
	roots := make([]Root, 0, len(setup.Roots))
	for i, s := range setup.Roots {
		roots = append(roots, Root{
			Index:  i,
			Window: s.Root,
			Width:  int(s.WidthInPixels),
			Height: int(s.HeightInPixels),
		})
	}
	return roots, nil
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}
