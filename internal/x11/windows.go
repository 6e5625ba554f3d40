package x11

import (
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// WindowInfo is the state of one child of a root window.
type WindowInfo struct {
	ID     xproto.Window
	X      int
	Y      int
	Width  int
	Height int
	Mapped bool
	Title  string
	Class  string
}

// Children returns the managed children of root in stacking order, bottom
// first. Override-redirect windows and windows that vanish mid-query are
// skipped.
func (c *Connection) Children(root xproto.Window) ([]WindowInfo, error) {
	tree, err := xproto.QueryTree(c.XUtil.Conn(), root).Reply()
	if err != nil {
		return nil, err
	}

	out := make([]WindowInfo, 0, len(tree.Children))
	for _, id := range tree.Children {
		info, ok := c.Describe(id)
		if !ok {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Describe queries attributes, geometry and title of a single window.
func (c *Connection) Describe(id xproto.Window) (WindowInfo, bool) {
	attrs, err := xproto.GetWindowAttributes(c.XUtil.Conn(), id).Reply()
	if err != nil || attrs.OverrideRedirect {
		return WindowInfo{}, false
	}
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(id)).Reply()
	if err != nil {
		return WindowInfo{}, false
	}

	return WindowInfo{
		ID:     id,
		X:      int(geom.X),
		Y:      int(geom.Y),
		Width:  int(geom.Width),
		Height: int(geom.Height),
		Mapped: attrs.MapState == xproto.MapStateViewable,
		Title:  c.Title(id),
		Class:  c.Class(id),
	}, true
}

// Title prefers _NET_WM_NAME and falls back to WM_NAME.
func (c *Connection) Title(id xproto.Window) string {
	title, err := ewmh.WmNameGet(c.XUtil, id)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(c.XUtil, id)
	if err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// Class returns the WM_CLASS class part.
func (c *Connection) Class(id xproto.Window) string {
	wmClass, err := icccm.WmClassGet(c.XUtil, id)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wmClass.Class)
}
