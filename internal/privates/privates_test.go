package privates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_GrowsEveryLiveInstance(t *testing.T) {
	r := NewRegistry("window")
	a, b := &Storage{}, &Storage{}
	r.Attach(a)
	r.Attach(b)

	i, err := r.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, r.Capacity())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())

	j, err := r.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1, j)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, b.Len())

	late := &Storage{}
	r.Attach(late)
	assert.Equal(t, 2, late.Len(), "newly attached storage must match capacity")
}

func TestAllocateFreeAllocate_ReusesIndexWithBackingStorage(t *testing.T) {
	r := NewRegistry("screen")
	s := &Storage{}
	r.Attach(s)

	first, err := r.Allocate()
	require.NoError(t, err)
	s.SetSlot(first, "stale")

	r.Free(first)
	assert.False(t, r.Valid(first))

	again, err := r.Allocate()
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.True(t, r.Valid(again))
	assert.Equal(t, 1, r.Capacity(), "capacity never grows when a free index exists")
	assert.GreaterOrEqual(t, s.Len(), r.Capacity())
	assert.Equal(t, "stale", s.Slot(again), "free leaves slot contents in place")
}

func TestFree_NeverShrinks(t *testing.T) {
	r := NewRegistry("display")
	for i := 0; i < 4; i++ {
		_, err := r.Allocate()
		require.NoError(t, err)
	}
	r.Free(3)
	r.Free(0)
	assert.Equal(t, 4, r.Capacity())

	i, err := r.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, i, "lowest free index is reused first")
}

func TestAllocate_FailureIsAtomic(t *testing.T) {
	fail := false
	r := NewRegistry("window", WithGrowHook(func(int) error {
		if fail {
			return errors.New("out of memory")
		}
		return nil
	}))
	s := &Storage{}
	r.Attach(s)

	_, err := r.Allocate()
	require.NoError(t, err)

	fail = true
	i, err := r.Allocate()
	assert.Equal(t, -1, i)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, r.Capacity())
	assert.Equal(t, 1, s.Len())
}

func TestAllocate_RespectsLimit(t *testing.T) {
	r := NewRegistry("core", WithLimit(1))
	_, err := r.Allocate()
	require.NoError(t, err)

	i, err := r.Allocate()
	assert.Equal(t, -1, i)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestKey_TypedAccess(t *testing.T) {
	type windowState struct{ paints int }

	r := NewRegistry("window")
	s := &Storage{}
	r.Attach(s)

	key, err := NewKey[*windowState](r)
	require.NoError(t, err)

	_, ok := key.Get(s)
	assert.False(t, ok)

	key.Set(s, &windowState{paints: 3})
	got, ok := key.Get(s)
	require.True(t, ok)
	assert.Equal(t, 3, got.paints)

	assert.Same(t, got, key.MustGet(s))

	key.Clear(s)
	assert.Panics(t, func() { key.MustGet(s) })

	key.Free(r)
	assert.False(t, r.Valid(key.Index))
}

func TestDetach_StopsGrowingInstance(t *testing.T) {
	r := NewRegistry("window")
	s := &Storage{}
	r.Attach(s)
	r.Detach(s)
	assert.Equal(t, 0, r.Live())

	_, err := r.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}
