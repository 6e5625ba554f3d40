package watch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// FSNotify is a portable backend built on fsnotify. Its reader goroutine
// queues events and posts a wakeup through the scheduler ingress; the queue
// is drained on the loop thread.
type FSNotify struct {
	fsw *fsnotify.Watcher

	// Loop-thread state.
	nextWd int
	byPath map[string]int
	paths  map[int]string

	mu       sync.Mutex
	pending  []fsnotify.Event
	errs     []error
	attached bool
	done     chan struct{}
}

// NewFSNotify creates the backend.
func NewFSNotify() (*FSNotify, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FSNotify{
		fsw:    fsw,
		byPath: make(map[string]int),
		paths:  make(map[int]string),
		done:   make(chan struct{}),
	}, nil
}

func (f *FSNotify) Name() string { return "fsnotify" }

func (f *FSNotify) Attach(s *scheduler.Scheduler, ready func()) error {
	f.attached = true
	go func() {
		defer close(f.done)
		for {
			select {
			case ev, ok := <-f.fsw.Events:
				if !ok {
					return
				}
				f.mu.Lock()
				f.pending = append(f.pending, ev)
				f.mu.Unlock()
			case err, ok := <-f.fsw.Errors:
				if !ok {
					return
				}
				f.mu.Lock()
				f.errs = append(f.errs, err)
				f.mu.Unlock()
			}
			if s.Post(ready) != nil {
				return
			}
		}
	}()
	return nil
}

func (f *FSNotify) Add(path string, mask Mask) (int, error) {
	clean := filepath.Clean(path)
	if wd, ok := f.byPath[clean]; ok {
		return wd, nil
	}
	if err := f.fsw.Add(clean); err != nil {
		return -1, err
	}
	f.nextWd++
	f.byPath[clean] = f.nextWd
	f.paths[f.nextWd] = clean
	return f.nextWd, nil
}

func (f *FSNotify) Remove(wd int) error {
	path, ok := f.paths[wd]
	if !ok {
		return fmt.Errorf("unknown watch descriptor %d", wd)
	}
	delete(f.paths, wd)
	delete(f.byPath, path)
	return f.fsw.Remove(path)
}

func (f *FSNotify) ReadEvents() ([]RawEvent, error) {
	f.mu.Lock()
	events := f.pending
	errs := f.errs
	f.pending, f.errs = nil, nil
	f.mu.Unlock()

	var out []RawEvent
	for _, ev := range events {
		if raw, ok := f.translate(ev); ok {
			out = append(out, raw)
		}
	}
	if len(errs) > 0 {
		return out, errs[0]
	}
	return out, nil
}

func (f *FSNotify) Close() error {
	err := f.fsw.Close()
	if f.attached {
		<-f.done
	}
	return err
}

// translate maps an absolute event path onto the descriptor of the watched
// path itself or of its parent directory.
func (f *FSNotify) translate(ev fsnotify.Event) (RawEvent, bool) {
	m := maskFromOp(ev.Op)
	if m == 0 {
		return RawEvent{}, false
	}
	name := filepath.Clean(ev.Name)
	if wd, ok := f.byPath[name]; ok {
		return RawEvent{Wd: wd, Mask: m}, true
	}
	if wd, ok := f.byPath[filepath.Dir(name)]; ok {
		return RawEvent{Wd: wd, Mask: m, Name: filepath.Base(name)}, true
	}
	return RawEvent{}, false
}

func maskFromOp(op fsnotify.Op) Mask {
	var m Mask
	if op.Has(fsnotify.Create) {
		m |= Create
	}
	if op.Has(fsnotify.Remove) {
		m |= Delete
	}
	if op.Has(fsnotify.Rename) {
		m |= Move
	}
	if op.Has(fsnotify.Write) {
		m |= Modify
	}
	return m
}

// NewBackend returns the backend named by kind: "inotify", "fsnotify" or ""
// for the platform default.
func NewBackend(kind string) (Backend, error) {
	switch kind {
	case "", "auto":
		if b, err := newNativeBackend(); err == nil {
			return b, nil
		}
		return NewFSNotify()
	case "fsnotify":
		return NewFSNotify()
	case "inotify":
		return newNativeBackend()
	default:
		return nil, fmt.Errorf("unknown file watch backend %q", kind)
	}
}
