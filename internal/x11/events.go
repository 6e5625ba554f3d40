package x11

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xprop"
)

// SelectStructure asks the server for structure notifications on every
// child of root.
func (c *Connection) SelectStructure(root xproto.Window) error {
	return xproto.ChangeWindowAttributesChecked(
		c.XUtil.Conn(),
		root,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskSubstructureNotify},
	).Check()
}

// SelectProperties asks for property notifications on a client window. The
// request is unchecked: a window that is already gone shows up as a
// protocol error on the event stream.
func (c *Connection) SelectProperties(id xproto.Window) {
	xproto.ChangeWindowAttributes(
		c.XUtil.Conn(),
		id,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange},
	)
}

// TitleAtoms returns the properties Title reads.
func (c *Connection) TitleAtoms() map[xproto.Atom]bool {
	atoms := map[xproto.Atom]bool{xproto.AtomWmName: true}
	if a, err := xprop.Atm(c.XUtil, "_NET_WM_NAME"); err == nil {
		atoms[a] = true
	}
	return atoms
}

// Pump blocks reading events until the connection closes, handing every
// event to onEvent and every protocol error to onError. It is meant to run
// on its own goroutine; callbacks must not touch loop-owned state.
func (c *Connection) Pump(onEvent func(xgb.Event), onError func(xgb.Error)) {
	conn := c.XUtil.Conn()
	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			if onError != nil {
				onError(xerr)
			}
			continue
		}
		onEvent(ev)
	}
}
