package platform

import (
	"errors"
	"testing"
)

func TestStatic_InjectRequiresStart(t *testing.T) {
	b := DefaultHeadless()
	if err := b.Inject(Event{Kind: EventCreate, Window: 5}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Inject before Start = %v, want ErrNotStarted", err)
	}

	var got []Event
	if err := b.Start(func(ev Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Inject(Event{Kind: EventMap, Window: 5}); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if len(got) != 1 || got[0].Kind != EventMap {
		t.Fatalf("delivered events = %+v", got)
	}

	_ = b.Close()
	if err := b.Inject(Event{Kind: EventUnmap, Window: 5}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Inject after Close = %v, want ErrNotStarted", err)
	}
}

func TestStatic_WindowsUnknownScreen(t *testing.T) {
	b := NewStatic([]Screen{{Index: 0}}, map[int][]Window{0: {{ID: 7, Mapped: true}}})

	wins, err := b.Windows(0)
	if err != nil || len(wins) != 1 || wins[0].ID != 7 {
		t.Fatalf("Windows(0) = %+v, %v", wins, err)
	}
	if _, err := b.Windows(3); err == nil {
		t.Fatal("expected error for unknown screen")
	}
}

func TestEventKindString(t *testing.T) {
	if EventConfigure.String() != "configure" {
		t.Fatalf("EventConfigure = %q", EventConfigure.String())
	}
	if EventKind(42).String() != "event(42)" {
		t.Fatalf("unknown kind = %q", EventKind(42).String())
	}
}

func TestStatic_InjectTracksWindows(t *testing.T) {
	b := DefaultHeadless()
	if err := b.Start(func(Event) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = b.Inject(Event{Kind: EventCreate, Screen: 0, Window: 4, Title: "a"})
	_ = b.Inject(Event{Kind: EventMap, Screen: 0, Window: 4})
	_ = b.Inject(Event{Kind: EventProperty, Screen: 0, Window: 4, Title: "b"})

	wins, _ := b.Windows(0)
	if len(wins) != 1 || !wins[0].Mapped || wins[0].Title != "b" {
		t.Fatalf("windows after create/map/property = %+v", wins)
	}

	_ = b.Inject(Event{Kind: EventDestroy, Screen: 0, Window: 4})
	if wins, _ := b.Windows(0); len(wins) != 0 {
		t.Fatalf("windows after destroy = %+v", wins)
	}

	b.SetWindows(0, []Window{{ID: 9}})
	if wins, _ := b.Windows(0); len(wins) != 1 || wins[0].ID != 9 {
		t.Fatalf("windows after SetWindows = %+v", wins)
	}
}
