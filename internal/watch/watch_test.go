package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend hands out one descriptor per distinct path, the way the kernel
// does, and records removals.
type fakeBackend struct {
	wds     map[string]int
	removed []int
	ready   func()
	queued  []RawEvent
}

func newFakeBackend() *fakeBackend { return &fakeBackend{wds: map[string]int{}} }

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Attach(_ *scheduler.Scheduler, ready func()) error {
	f.ready = ready
	return nil
}

func (f *fakeBackend) Add(path string, _ Mask) (int, error) {
	if wd, ok := f.wds[path]; ok {
		return wd, nil
	}
	wd := len(f.wds) + 1
	f.wds[path] = wd
	return wd, nil
}

func (f *fakeBackend) Remove(wd int) error {
	f.removed = append(f.removed, wd)
	return nil
}

func (f *fakeBackend) ReadEvents() ([]RawEvent, error) {
	out := f.queued
	f.queued = nil
	return out, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) emit(events ...RawEvent) {
	f.queued = append(f.queued, events...)
	f.ready()
}

func newFakeWatcher(t *testing.T) (*Watcher, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	w, err := New(nil, b, logging.Discard())
	require.NoError(t, err)
	return w, b
}

func TestDispatch_OnlyMatchingDescriptorFires(t *testing.T) {
	w, b := newFakeWatcher(t)

	var gotA, gotB []string
	_, err := w.Add("/tmp/a", All, func(name string) { gotA = append(gotA, name) })
	require.NoError(t, err)
	_, err = w.Add("/tmp/b", All, func(name string) { gotB = append(gotB, name) })
	require.NoError(t, err)

	b.emit(RawEvent{Wd: b.wds["/tmp/a"], Mask: Create, Name: "new.yaml"})

	assert.Equal(t, []string{"new.yaml"}, gotA)
	assert.Empty(t, gotB)
}

func TestDispatch_FiltersByWatchMask(t *testing.T) {
	w, b := newFakeWatcher(t)

	var creates, modifies int
	_, err := w.Add("/etc/x", Create, func(string) { creates++ })
	require.NoError(t, err)
	_, err = w.Add("/etc/x", Modify, func(string) { modifies++ })
	require.NoError(t, err)

	wd := b.wds["/etc/x"]
	b.emit(RawEvent{Wd: wd, Mask: Modify, Name: "f"})
	b.emit(RawEvent{Wd: wd, Mask: Create})

	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, modifies)
}

func TestRemove_ReleasesDescriptorWithLastWatch(t *testing.T) {
	w, b := newFakeWatcher(t)
	h1, err := w.Add("/d", All, func(string) {})
	require.NoError(t, err)
	h2, err := w.Add("/d", All, func(string) {})
	require.NoError(t, err)

	assert.True(t, w.Remove(h1))
	assert.Empty(t, b.removed, "descriptor still shared")

	assert.True(t, w.Remove(h2))
	assert.Equal(t, []int{b.wds["/d"]}, b.removed)
	assert.False(t, w.Remove(h2))
	assert.Equal(t, 0, w.Len())
}

func TestDispatch_CallbackRemovingSiblingWatch(t *testing.T) {
	w, b := newFakeWatcher(t)
	var second Handle
	secondFired := false
	_, err := w.Add("/d", All, func(string) { w.Remove(second) })
	require.NoError(t, err)
	second, err = w.Add("/d", All, func(string) { secondFired = true })
	require.NoError(t, err)

	b.emit(RawEvent{Wd: b.wds["/d"], Mask: Delete, Name: "gone"})
	assert.False(t, secondFired)
}

func TestAdd_RejectsEmptyMaskAndClosed(t *testing.T) {
	w, _ := newFakeWatcher(t)
	_, err := w.Add("/d", 0, func(string) {})
	assert.Error(t, err)

	require.NoError(t, w.Close())
	_, err = w.Add("/d", All, func(string) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "create|move", (Create | Move).String())
	assert.Equal(t, "none", Mask(0).String())
}

// iterateUntil drives s until cond holds or the deadline passes.
func iterateUntil(t *testing.T, s *scheduler.Scheduler, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		s.AddTimer(20*time.Millisecond, 20*time.Millisecond, func() bool { return false })
		require.NoError(t, s.Iterate())
	}
}

func TestFSNotify_DeliversThroughIngress(t *testing.T) {
	s, err := scheduler.New()
	require.NoError(t, err)
	defer s.Close()

	b, err := NewFSNotify()
	require.NoError(t, err)
	w, err := New(s, b, logging.Discard())
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	var names []string
	_, err = w.Add(dir, Create, func(name string) { names = append(names, name) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("x: 1\n"), 0o644))
	iterateUntil(t, s, func() bool { return len(names) > 0 })

	assert.Contains(t, names, "config.yaml")
}

func TestNewBackend_UnknownKind(t *testing.T) {
	_, err := NewBackend("kqueue-please")
	assert.Error(t, err)
}
