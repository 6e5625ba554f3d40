//go:build linux

package watch

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/noodlylight/fusilli/internal/scheduler"
	"golang.org/x/sys/unix"
)

// Inotify is the Linux kernel backend. All watches share one inotify
// descriptor polled by the scheduler.
type Inotify struct {
	fd     int
	sched  *scheduler.Scheduler
	handle scheduler.Handle
	buf    []byte
}

// NewInotify opens a non-blocking inotify instance.
func NewInotify() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &Inotify{fd: fd, buf: make([]byte, 256*(unix.SizeofInotifyEvent+16))}, nil
}

func (n *Inotify) Name() string { return "inotify" }

func (n *Inotify) Attach(s *scheduler.Scheduler, ready func()) error {
	h, err := s.AddWatchFd(n.fd, scheduler.EventIn, func(scheduler.Events) { ready() })
	if err != nil {
		return err
	}
	n.sched, n.handle = s, h
	return nil
}

func (n *Inotify) Add(path string, mask Mask) (int, error) {
	return unix.InotifyAddWatch(n.fd, path, kernelMask(mask)|unix.IN_MASK_ADD)
}

func (n *Inotify) Remove(wd int) error {
	_, err := unix.InotifyRmWatch(n.fd, uint32(wd))
	return err
}

func (n *Inotify) ReadEvents() ([]RawEvent, error) {
	var out []RawEvent
	for {
		nr, err := unix.Read(n.fd, n.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return out, nil
			}
			return out, err
		}
		if nr <= 0 {
			return out, nil
		}
		out = append(out, parseEvents(n.buf[:nr])...)
	}
}

func (n *Inotify) Close() error {
	if n.sched != nil {
		n.sched.RemoveWatchFd(n.handle)
		n.sched = nil
	}
	return unix.Close(n.fd)
}

func kernelMask(m Mask) uint32 {
	var k uint32
	if m&Create != 0 {
		k |= unix.IN_CREATE
	}
	if m&Delete != 0 {
		k |= unix.IN_DELETE | unix.IN_DELETE_SELF
	}
	if m&Move != 0 {
		k |= unix.IN_MOVE | unix.IN_MOVE_SELF
	}
	if m&Modify != 0 {
		k |= unix.IN_MODIFY
	}
	return k
}

func maskFromKernel(k uint32) Mask {
	var m Mask
	if k&unix.IN_CREATE != 0 {
		m |= Create
	}
	if k&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0 {
		m |= Delete
	}
	if k&(unix.IN_MOVE|unix.IN_MOVE_SELF) != 0 {
		m |= Move
	}
	if k&unix.IN_MODIFY != 0 {
		m |= Modify
	}
	return m
}

// parseEvents decodes a buffer of struct inotify_event records. Records
// carrying no kind we report (IN_IGNORED, queue overflow) are dropped.
func parseEvents(buf []byte) []RawEvent {
	var out []RawEvent
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		wd := int32(binary.NativeEndian.Uint32(buf[off:]))
		mask := binary.NativeEndian.Uint32(buf[off+4:])
		nameLen := int(binary.NativeEndian.Uint32(buf[off+12:]))

		start := off + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			break
		}
		name := string(bytes.TrimRight(buf[start:end], "\x00"))
		off = end

		m := maskFromKernel(mask)
		if m == 0 {
			continue
		}
		out = append(out, RawEvent{Wd: int(wd), Mask: m, Name: name})
	}
	return out
}
