//go:build linux

package watch

func newNativeBackend() (Backend, error) {
	return NewInotify()
}
