package platform

import "fmt"

// WindowID is a platform-neutral window identifier.
type WindowID uint32

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Screen describes one managed screen and its root window.
type Screen struct {
	Index   int
	Name    string
	Root    WindowID
	Bounds  Rect
	Outputs []string
}

// Window contains metadata and geometry for a top-level window.
type Window struct {
	ID     WindowID
	AppID  string
	Title  string
	Bounds Rect
	Mapped bool
}

// EventKind identifies the structural change an Event reports.
type EventKind int

const (
	EventCreate EventKind = iota + 1
	EventDestroy
	EventConfigure
	EventMap
	EventUnmap
	EventProperty
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventDestroy:
		return "destroy"
	case EventConfigure:
		return "configure"
	case EventMap:
		return "map"
	case EventUnmap:
		return "unmap"
	case EventProperty:
		return "property"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a window-system notification delivered to the display.
type Event struct {
	Kind   EventKind
	Screen int
	Window WindowID
	Bounds Rect
	Title  string
}

// Backend abstracts the window system the runtime manages.
//
// Screens and Windows are called on the loop thread during startup. Start
// hands the backend a post function; the backend may call it from any
// goroutine, and post is responsible for getting the event onto the loop
// thread.
type Backend interface {
	Name() string
	Screens() ([]Screen, error)
	Windows(screen int) ([]Window, error)
	Start(post func(Event)) error
	Close() error
}
