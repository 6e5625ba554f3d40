package plugin

import "errors"

// Plugin system errors.
var (
	// ErrNotFound is returned when no search directory or builtin provides
	// the plugin.
	ErrNotFound = errors.New("plugin not found")

	// ErrABIMismatch is returned when a module lacks the entry point of
	// this ABI version or exports it with the wrong type.
	ErrABIMismatch = errors.New("plugin ABI mismatch")

	// ErrNilVTable is returned when the entry point returns no table.
	ErrNilVTable = errors.New("plugin returned no vtable")

	// ErrAlreadyActive is returned when pushing a plugin whose name is
	// already on the stack.
	ErrAlreadyActive = errors.New("plugin already active")

	// ErrActivation is returned when an init step of a push fails.
	ErrActivation = errors.New("plugin activation failed")

	// ErrBusy is returned when a lifecycle operation is started from inside
	// another one.
	ErrBusy = errors.New("plugin stack busy")

	// ErrEmptyStack is returned when popping an empty stack.
	ErrEmptyStack = errors.New("plugin stack empty")
)
