package scheduler

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Ingress is the queue other goroutines use to run work on the loop thread.
// Posting writes to a wakeup descriptor the loop always polls.
type Ingress struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	readFd  int
	writeFd int
	pending atomic.Bool
	buf     [8]byte
}

func newIngress() (*Ingress, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &Ingress{readFd: r, writeFd: w}, nil
}

func (in *Ingress) fd() int { return in.readFd }

// Post queues fn and wakes the loop. It returns ErrClosed once the
// scheduler is closed.
func (in *Ingress) Post(fn func()) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrClosed
	}
	in.queue = append(in.queue, fn)
	in.mu.Unlock()
	in.wake()
	return nil
}

// Len returns the number of queued functions.
func (in *Ingress) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// wake signals the loop. The descriptor is only written while open; Close
// takes mu before releasing it.
func (in *Ingress) wake() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed || !in.pending.CompareAndSwap(false, true) {
		return
	}
	one := [8]byte{1}
	_, _ = unix.Write(in.writeFd, one[:])
}

// drain clears the wakeup descriptor and takes the queued functions.
func (in *Ingress) drain() []func() {
	in.pending.Store(false)
	for {
		if _, err := unix.Read(in.readFd, in.buf[:]); err != nil {
			break
		}
	}
	in.mu.Lock()
	q := in.queue
	in.queue = nil
	in.mu.Unlock()
	return q
}

// Close rejects further posts and releases the descriptors.
func (in *Ingress) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	defer in.mu.Unlock()
	in.closed = true
	in.queue = nil

	err := unix.Close(in.readFd)
	if in.writeFd != in.readFd {
		if werr := unix.Close(in.writeFd); err == nil {
			err = werr
		}
	}
	return err
}
