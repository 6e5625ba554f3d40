// Package wrap implements interception chains: an ordered stack of overrides
// for one hookable behavior on one object.
//
// Every override receives the handler it displaced as next and may call it
// before, after, or not at all. Overrides must be removed in the reverse
// order they were installed; Unwrap enforces this instead of trusting the
// caller. A call already in progress keeps the next it captured, so
// unwrapping from inside a chain call never leaves it dangling.
package wrap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTop is returned when an owner unwraps while another owner's
	// override sits above it.
	ErrNotTop = errors.New("override is not at the top of the chain")

	// ErrNotWrapped is returned when an owner has no override installed.
	ErrNotWrapped = errors.New("owner has no override installed")

	// ErrAlreadyWrapped is returned when an owner wraps the same chain twice.
	ErrAlreadyWrapped = errors.New("owner already wraps this chain")
)

type layer[H any] struct {
	owner string
	saved H
}

// Chain holds the current handler for one behavior plus the saved handler of
// every override, innermost last.
type Chain[H any] struct {
	name    string
	current H
	layers  []layer[H]
}

// New creates a chain whose innermost handler is base.
func New[H any](name string, base H) *Chain[H] {
	return &Chain[H]{name: name, current: base}
}

// Name returns the behavior name.
func (c *Chain[H]) Name() string { return c.name }

// Get returns the current outermost handler.
func (c *Chain[H]) Get() H { return c.current }

// Depth returns the number of installed overrides.
func (c *Chain[H]) Depth() int { return len(c.layers) }

// Owners returns override owners from the first installed to the last.
func (c *Chain[H]) Owners() []string {
	out := make([]string, len(c.layers))
	for i, l := range c.layers {
		out[i] = l.owner
	}
	return out
}

// Wrapped reports whether owner has an override installed.
func (c *Chain[H]) Wrapped(owner string) bool {
	for _, l := range c.layers {
		if l.owner == owner {
			return true
		}
	}
	return false
}

// Wrap installs owner's override. mw receives the displaced handler and
// returns the replacement.
func (c *Chain[H]) Wrap(owner string, mw func(next H) H) error {
	if c.Wrapped(owner) {
		return fmt.Errorf("%s: %q: %w", c.name, owner, ErrAlreadyWrapped)
	}
	saved := c.current
	c.layers = append(c.layers, layer[H]{owner: owner, saved: saved})
	c.current = mw(saved)
	return nil
}

// Unwrap restores the handler owner displaced. owner must be the most
// recently installed override.
func (c *Chain[H]) Unwrap(owner string) error {
	n := len(c.layers)
	if n == 0 || !c.Wrapped(owner) {
		return fmt.Errorf("%s: %q: %w", c.name, owner, ErrNotWrapped)
	}
	top := c.layers[n-1]
	if top.owner != owner {
		return fmt.Errorf("%s: %q below %q: %w", c.name, owner, top.owner, ErrNotTop)
	}
	c.current = top.saved
	var zero layer[H]
	c.layers[n-1] = zero
	c.layers = c.layers[:n-1]
	return nil
}
