//go:build !linux

package watch

import "errors"

func newNativeBackend() (Backend, error) {
	return nil, errors.New("inotify backend requires linux")
}
