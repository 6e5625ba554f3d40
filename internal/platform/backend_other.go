//go:build !linux

package platform

import (
	"errors"

	"github.com/noodlylight/fusilli/internal/logging"
)

// LinuxBackend is unavailable on this platform.
type LinuxBackend struct{ Static }

// NewLinuxBackend always fails off Linux; use --headless instead.
func NewLinuxBackend(display string, logger *logging.Logger) (*LinuxBackend, error) {
	return nil, errors.New("x11 backend is only supported on linux")
}
