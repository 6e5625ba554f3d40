//go:build unix && !linux

package scheduler

import "golang.org/x/sys/unix"

// createWakeFd returns a non-blocking self-pipe, read end first.
func createWakeFd() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}
