// Package privates implements per-object-type private slot registries.
//
// A Registry hands out small integer indices. Every live instance of the
// registry's object type owns a Storage whose length is never below the
// registry capacity, so any valid index can be read or written on any live
// instance without a bounds check failing. Indices are reused after Free,
// capacity never shrinks, and freed slots keep their stale contents.
package privates

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when the registry cannot grow.
var ErrExhausted = errors.New("private index space exhausted")

// GrowHook runs before a growth is committed. Returning an error aborts the
// growth and leaves the registry and every storage unchanged.
type GrowHook func(newCapacity int) error

// Option configures a Registry.
type Option func(*Registry)

// WithLimit caps the number of indices the registry may ever issue.
func WithLimit(n int) Option {
	return func(r *Registry) {
		r.limit = n
	}
}

// WithGrowHook installs a hook consulted before each growth.
func WithGrowHook(h GrowHook) Option {
	return func(r *Registry) {
		r.grow = h
	}
}

// Registry is the private slot registry for one object type.
type Registry struct {
	name  string
	used  []bool
	limit int
	grow  GrowHook
	live  map[*Storage]struct{}
}

// NewRegistry creates an empty registry. The name is used in error messages.
func NewRegistry(name string, opts ...Option) *Registry {
	r := &Registry{
		name: name,
		live: make(map[*Storage]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the registry name.
func (r *Registry) Name() string { return r.name }

// Capacity returns the number of indices ever issued.
func (r *Registry) Capacity() int { return len(r.used) }

// Valid reports whether index is currently allocated.
func (r *Registry) Valid(index int) bool {
	return index >= 0 && index < len(r.used) && r.used[index]
}

// Live returns the number of attached storages.
func (r *Registry) Live() int { return len(r.live) }

// Allocate returns the lowest free index, growing every attached storage by
// one slot when no free index exists. On failure it returns -1 and an error
// wrapping ErrExhausted; nothing is modified in that case.
func (r *Registry) Allocate() (int, error) {
	for i, inUse := range r.used {
		if !inUse {
			r.used[i] = true
			return i, nil
		}
	}

	newCap := len(r.used) + 1
	if r.limit > 0 && newCap > r.limit {
		return -1, fmt.Errorf("%s: %w (limit %d)", r.name, ErrExhausted, r.limit)
	}
	if r.grow != nil {
		if err := r.grow(newCap); err != nil {
			return -1, fmt.Errorf("%s: %w: %v", r.name, ErrExhausted, err)
		}
	}

	// Build every resized array before touching any instance.
	resized := make(map[*Storage][]any, len(r.live))
	for s := range r.live {
		resized[s] = s.resized(newCap)
	}
	for s, slots := range resized {
		s.slots = slots
	}

	r.used = append(r.used, true)
	return newCap - 1, nil
}

// Free returns index to the free set. Storages are left untouched. Freeing an
// index that is not allocated is a no-op.
func (r *Registry) Free(index int) {
	if index < 0 || index >= len(r.used) {
		return
	}
	r.used[index] = false
}

// Attach registers a new live instance and sizes its storage to the current
// capacity.
func (r *Registry) Attach(s *Storage) {
	if _, ok := r.live[s]; ok {
		return
	}
	s.slots = s.resized(len(r.used))
	s.owner = r
	r.live[s] = struct{}{}
}

// Detach forgets a destroyed instance.
func (r *Registry) Detach(s *Storage) {
	delete(r.live, s)
	if s.owner == r {
		s.owner = nil
	}
}

// Storage is the per-instance slot array.
type Storage struct {
	slots []any
	owner *Registry
}

// Len returns the number of slots held.
func (s *Storage) Len() int { return len(s.slots) }

// Slot returns the raw contents of index, or nil when out of range.
func (s *Storage) Slot(index int) any {
	if index < 0 || index >= len(s.slots) {
		return nil
	}
	return s.slots[index]
}

// SetSlot stores v at index. It panics if index is beyond the storage, which
// can only happen when an index is used with the wrong registry.
func (s *Storage) SetSlot(index int, v any) {
	s.slots[index] = v
}

func (s *Storage) resized(n int) []any {
	if len(s.slots) >= n {
		return s.slots
	}
	out := make([]any, n)
	copy(out, s.slots)
	return out
}

// Key is a typed handle for one private index.
type Key[T any] struct {
	Index int
}

// NewKey allocates an index from r and wraps it in a typed key.
func NewKey[T any](r *Registry) (Key[T], error) {
	i, err := r.Allocate()
	if err != nil {
		return Key[T]{Index: -1}, err
	}
	return Key[T]{Index: i}, nil
}

// Get returns the value stored under k on s.
func (k Key[T]) Get(s *Storage) (T, bool) {
	v, ok := s.Slot(k.Index).(T)
	return v, ok
}

// MustGet returns the value stored under k on s. It panics if nothing of
// type T is stored there.
func (k Key[T]) MustGet(s *Storage) T {
	v, ok := k.Get(s)
	if !ok {
		panic(fmt.Sprintf("privates: no %T in slot %d", v, k.Index))
	}
	return v
}

// Set stores v under k on s.
func (k Key[T]) Set(s *Storage, v T) {
	s.SetSlot(k.Index, v)
}

// Clear drops the value stored under k on s.
func (k Key[T]) Clear(s *Storage) {
	if k.Index >= 0 && k.Index < len(s.slots) {
		s.slots[k.Index] = nil
	}
}

// Free releases k's index back to r.
func (k Key[T]) Free(r *Registry) {
	r.Free(k.Index)
}
