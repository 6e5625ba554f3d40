// Package plugin loads plugins and drives their lifecycle across the object
// hierarchy.
//
// A plugin is described by a VTable. Dynamic plugins are Go plugin modules
// named lib<name>.so that export EntrySymbol; builtin plugins register their
// entry function with Register at init time.
package plugin

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// ABIVersion is bumped whenever the VTable or Host shape changes. It is
// part of the entry point name, so modules built against another version
// fail symbol lookup instead of being called with the wrong layout.
const ABIVersion = 20141205

// EntrySymbol is the symbol every dynamic plugin must export as a
// func() *VTable.
var EntrySymbol = "FusilliPluginInfo" + strconv.Itoa(ABIVersion)

// Host is the runtime as seen by plugins. Every method must be called on
// the loop thread.
type Host interface {
	Logger() *logging.Logger
	Config() *config.Store
	Scheduler() *scheduler.Scheduler
	Core() *object.Core
}

// VTable is a plugin's capability table. Every hook is optional. Init hooks
// report success; a false return aborts activation.
type VTable struct {
	Name string

	Init func(h Host) bool
	Fini func(h Host)

	InitDisplay func(h Host, d *object.Display) bool
	FiniDisplay func(h Host, d *object.Display)

	InitScreen func(h Host, s *object.Screen) bool
	FiniScreen func(h Host, s *object.Screen)

	InitWindow func(h Host, w *object.Window) bool
	FiniWindow func(h Host, w *object.Window)
}

// EntryFunc returns a plugin's table.
type EntryFunc func() *VTable

var (
	builtinMu sync.Mutex
	builtins  = make(map[string]EntryFunc)
)

// Register makes a compiled-in plugin available under name. It panics if
// name is registered twice or entry is nil.
func Register(name string, entry EntryFunc) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	if entry == nil {
		panic("plugin: Register entry is nil")
	}
	if _, dup := builtins[name]; dup {
		panic(fmt.Sprintf("plugin: Register called twice for %q", name))
	}
	builtins[name] = entry
}

// Builtins returns the names of all registered builtin plugins, sorted.
func Builtins() []string {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func registeredBuiltins() map[string]EntryFunc {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	out := make(map[string]EntryFunc, len(builtins))
	for name, entry := range builtins {
		out[name] = entry
	}
	return out
}

// Plugin is a loaded plugin. It owns its module, which is released exactly
// once by Loader.Unload. The table must not be used after that.
type Plugin struct {
	name     string
	path     string
	module   Module
	vtable   *VTable
	unloaded bool
}

// Name returns the name the plugin was loaded under.
func (p *Plugin) Name() string { return p.name }

// Path returns the module file, or "" for builtin plugins.
func (p *Plugin) Path() string { return p.path }

// Builtin reports whether the plugin is compiled in.
func (p *Plugin) Builtin() bool { return p.path == "" }

// VTable returns the plugin's capability table.
func (p *Plugin) VTable() *VTable { return p.vtable }
