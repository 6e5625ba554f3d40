package plugin

import (
	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

type testHost struct {
	core  *object.Core
	log   *logging.Logger
	store *config.Store
}

func newTestHost(screens int, windowsPerScreen ...platform.WindowID) *testHost {
	core := object.NewCore()
	for i := 0; i < screens; i++ {
		s := core.Display().AddScreen(platform.Screen{Index: i, Name: "test", Root: platform.WindowID(i + 1)})
		for _, id := range windowsPerScreen {
			s.AddWindow(platform.Window{ID: platform.WindowID(i*100) + id, Mapped: true})
		}
	}
	log := logging.Discard()
	return &testHost{
		core:  core,
		log:   log,
		store: config.NewStoreFromConfig("", config.DefaultConfig(), log),
	}
}

func (h *testHost) Logger() *logging.Logger         { return h.log }
func (h *testHost) Config() *config.Store           { return h.store }
func (h *testHost) Scheduler() *scheduler.Scheduler { return nil }
func (h *testHost) Core() *object.Core              { return h.core }

func builtin(vt *VTable) *Plugin {
	return &Plugin{name: vt.Name, vtable: vt}
}
