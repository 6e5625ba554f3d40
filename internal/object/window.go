package object

import (
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/privates"
	"github.com/noodlylight/fusilli/internal/wrap"
)

// PaintAttrib carries the per-paint modifiers a plugin may adjust before
// calling through.
type PaintAttrib struct {
	Opacity    uint16
	Brightness uint16
	Saturation uint16
}

// DefaultPaintAttrib is fully opaque with unchanged color.
func DefaultPaintAttrib() PaintAttrib {
	return PaintAttrib{Opacity: 0xffff, Brightness: 0xffff, Saturation: 0xffff}
}

// PaintFunc paints one window and reports whether anything was drawn.
type PaintFunc func(w *Window, attrib PaintAttrib) bool

// Window is one top-level client window.
type Window struct {
	screen  *Screen
	storage privates.Storage
	info    platform.Window

	Paint *wrap.Chain[PaintFunc]
}

func newWindow(s *Screen, info platform.Window) *Window {
	w := &Window{screen: s, info: info}
	s.display.core.registries[TypeWindow].Attach(&w.storage)
	w.Paint = wrap.New[PaintFunc]("paintWindow", func(w *Window, attrib PaintAttrib) bool {
		return w.info.Mapped && attrib.Opacity > 0
	})
	return w
}

func (w *Window) Type() Type                  { return TypeWindow }
func (w *Window) Privates() *privates.Storage { return &w.storage }

func (w *Window) Screen() *Screen         { return w.screen }
func (w *Window) ID() platform.WindowID   { return w.info.ID }
func (w *Window) Title() string           { return w.info.Title }
func (w *Window) AppID() string           { return w.info.AppID }
func (w *Window) Geometry() platform.Rect { return w.info.Bounds }
func (w *Window) Mapped() bool            { return w.info.Mapped }
func (w *Window) Info() platform.Window   { return w.info }
