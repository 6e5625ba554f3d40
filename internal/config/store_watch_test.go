package config

import (
	"testing"
	"time"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/scheduler"
	"github.com/noodlylight/fusilli/internal/watch"
)

func TestStore_WatchReloadsWhenFileChanges(t *testing.T) {
	sched, err := scheduler.New()
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	defer sched.Close()

	backend, err := watch.NewBackend("auto")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	w, err := watch.New(sched, backend, logging.Discard())
	if err != nil {
		t.Fatalf("watch.New: %v", err)
	}
	defer w.Close()

	dir := t.TempDir()
	path := writeConfig(t, dir, "repaint_interval_ms: 16\n")
	s, err := NewStore(path, logging.Discard())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Watch(w); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()

	var got []any
	s.Subscribe(CorePlugin, func(option string, v Value) {
		if option == "repaint_interval_ms" {
			got = append(got, v)
		}
	})

	writeConfig(t, dir, "repaint_interval_ms: 40\n")

	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		sched.AddTimer(20*time.Millisecond, 20*time.Millisecond, func() bool { return false })
		if err := sched.Iterate(); err != nil {
			t.Fatalf("Iterate: %v", err)
		}
	}
	if len(got) == 0 || got[len(got)-1] != 40 {
		t.Fatalf("repaint_interval_ms notifications = %v", got)
	}
}
