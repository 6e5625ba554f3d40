package daemon

import (
	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/plugin"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// PluginSync brings the plugin stack in line with the configured plugin
// list. The core plugin at the bottom of the stack is never touched.
type PluginSync struct {
	loader  *plugin.Loader
	stack   *plugin.Stack
	sched   *scheduler.Scheduler
	desired func() []string
	pending scheduler.Handle
	log     *logging.Component
}

// NewPluginSync creates a synchronizer. desired returns the configured
// plugin names in push order.
func NewPluginSync(loader *plugin.Loader, stack *plugin.Stack, sched *scheduler.Scheduler, desired func() []string, logger *logging.Logger) *PluginSync {
	return &PluginSync{
		loader:  loader,
		stack:   stack,
		sched:   sched,
		desired: desired,
		log:     logger.For("plugin"),
	}
}

// Schedule runs Sync from a zero-delay timer, so a burst of option changes
// costs one update and no plugin is popped from inside a callback it is
// part of. Repeated calls before the timer fires are coalesced.
func (ps *PluginSync) Schedule() {
	if ps.pending != 0 {
		return
	}
	ps.pending = ps.sched.AddTimer(0, 0, func() bool {
		ps.pending = 0
		ps.Sync()
		return false
	})
}

// Pending reports whether a scheduled update has not run yet.
func (ps *PluginSync) Pending() bool { return ps.pending != 0 }

// Cancel drops a scheduled update.
func (ps *PluginSync) Cancel() {
	if ps.pending != 0 {
		ps.sched.RemoveTimer(ps.pending)
		ps.pending = 0
	}
}

// Sync pops plugins down to the longest prefix the stack shares with the
// configured list, then loads and pushes the rest of the list in order.
func (ps *PluginSync) Sync() { ps.apply(false) }

// Restart pops every plugin above core and pushes the configured list
// again, reinitialising all of them.
func (ps *PluginSync) Restart() { ps.apply(true) }

func (ps *PluginSync) apply(all bool) {
	names := ps.desired()
	active := ps.stack.Names()

	base := 0
	if len(active) > 0 && active[0] == config.CorePlugin {
		base = 1
	}
	keep := base
	if !all {
		for keep < len(active) && keep-base < len(names) && active[keep] == names[keep-base] {
			keep++
		}
	}

	for ps.stack.Len() > keep {
		p, err := ps.stack.Pop()
		if err != nil {
			ps.log.Errorf("Couldn't update plugins: %v", err)
			return
		}
		if err := ps.loader.Unload(p); err != nil {
			ps.log.Warnf("Unloading plugin %s: %v", p.Name(), err)
		}
	}

	for _, name := range names[keep-base:] {
		p, err := ps.loader.Load(name)
		if err != nil {
			continue
		}
		if err := ps.stack.Push(p); err != nil {
			_ = ps.loader.Unload(p)
		}
	}
}
