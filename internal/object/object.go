// Package object is the fixed hierarchy plugins attach to: one Core owning
// one Display, which owns Screens, which own Windows.
//
// Every instance carries private storage attached to its type's registry,
// and every hookable behavior is a wrap.Chain that plugins override.
// Nothing here is safe for concurrent use; the whole hierarchy belongs to
// the loop thread.
package object

import (
	"fmt"

	"github.com/noodlylight/fusilli/internal/privates"
)

// Type identifies one of the four object types.
type Type int

const (
	TypeCore Type = iota
	TypeDisplay
	TypeScreen
	TypeWindow
)

var typeNames = [...]string{"core", "display", "screen", "window"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// Types lists every object type in hierarchy order.
func Types() []Type {
	return []Type{TypeCore, TypeDisplay, TypeScreen, TypeWindow}
}

// Object is implemented by every hierarchy member.
type Object interface {
	Type() Type
	Privates() *privates.Storage
}

// WindowObserver is told about windows created or destroyed after startup.
// WindowRemoved runs while the window's private storage is still attached.
type WindowObserver interface {
	WindowAdded(w *Window)
	WindowRemoved(w *Window)
}

// Core is the root of the hierarchy and owns the private slot registries.
type Core struct {
	storage    privates.Storage
	registries [4]*privates.Registry
	display    *Display
	observer   WindowObserver
	onDamage   func(*Screen)
}

// NewCore creates the core and its single display. opts apply to every
// registry.
func NewCore(opts ...privates.Option) *Core {
	c := &Core{}
	for _, t := range Types() {
		c.registries[t] = privates.NewRegistry(t.String(), opts...)
	}
	c.registries[TypeCore].Attach(&c.storage)
	c.display = newDisplay(c)
	return c
}

func (c *Core) Type() Type                  { return TypeCore }
func (c *Core) Privates() *privates.Storage { return &c.storage }

// Registry returns the private slot registry for t.
func (c *Core) Registry(t Type) *privates.Registry {
	return c.registries[t]
}

// Display returns the single display.
func (c *Core) Display() *Display { return c.display }

// SetWindowObserver installs the observer for runtime window changes.
func (c *Core) SetWindowObserver(o WindowObserver) { c.observer = o }

// OnDamage installs the function called the first time a clean screen is
// damaged.
func (c *Core) OnDamage(fn func(*Screen)) { c.onDamage = fn }
