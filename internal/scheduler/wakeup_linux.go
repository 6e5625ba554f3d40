//go:build linux

package scheduler

import "golang.org/x/sys/unix"

// createWakeFd returns one eventfd serving as both ends.
func createWakeFd() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}
