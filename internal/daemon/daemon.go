// Package daemon is the runtime: one value owning the logger, config store,
// scheduler, file watcher, object hierarchy, plugin loader and stack,
// window-system backend and IPC server, all driven from the scheduler's
// loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/ipc"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/object"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/plugin"
	"github.com/noodlylight/fusilli/internal/runtimepath"
	"github.com/noodlylight/fusilli/internal/scheduler"
	"github.com/noodlylight/fusilli/internal/watch"
)

// Options configures a Daemon.
type Options struct {
	// ConfigPath is the config file. Empty selects config.DefaultConfigPath.
	ConfigPath string
	// Config, when set, is used instead of reading ConfigPath at startup.
	// ConfigPath is still watched and used for reloads.
	Config *config.Config
	// Backend is the window system. Required.
	Backend platform.Backend
	Logger  *logging.Logger
	// Loader overrides the plugin loader built from the configured dirs.
	Loader *plugin.Loader
	// SocketPath overrides the IPC socket location.
	SocketPath string
	DisableIPC bool
	// Scheduler options, applied after the daemon's own.
	Scheduler []scheduler.Option
}

// Daemon is the runtime value. Apart from Stop, every method must be called
// on the loop thread.
type Daemon struct {
	log     *logging.Logger
	clog    *logging.Component
	opts    Options
	store   *config.Store
	sched   *scheduler.Scheduler
	watcher *watch.Watcher
	core    *object.Core
	loader  *plugin.Loader
	stack   *plugin.Stack
	backend platform.Backend
	server  *ipc.Server

	reconciler *Reconciler
	sync       *PluginSync

	repaint   map[*object.Screen]scheduler.Handle
	lastPaint map[*object.Screen]time.Time
	startTime time.Time
	started   bool
	shutdown  bool
}

var _ plugin.Host = (*Daemon)(nil)
var _ ipc.Handler = (*Daemon)(nil)

// New creates the runtime. Nothing is loaded and no event is read until
// Start.
func New(opts Options) (*Daemon, error) {
	if opts.Backend == nil {
		return nil, errors.New("daemon: no window system backend")
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(logging.Options{})
	}

	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	var store *config.Store
	if opts.Config != nil {
		store = config.NewStoreFromConfig(path, opts.Config, log)
	} else {
		var err error
		if store, err = config.NewStore(path, log); err != nil {
			return nil, err
		}
	}
	cfg := store.Config()
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	sched, err := scheduler.New(append([]scheduler.Option{scheduler.WithLogger(log)}, opts.Scheduler...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	d := &Daemon{
		log:       log,
		clog:      log.For("core"),
		opts:      opts,
		store:     store,
		sched:     sched,
		core:      object.NewCore(),
		backend:   opts.Backend,
		repaint:   make(map[*object.Screen]scheduler.Handle),
		lastPaint: make(map[*object.Screen]time.Time),
	}

	d.loader = opts.Loader
	if d.loader == nil {
		d.loader = plugin.NewLoader(log, plugin.WithDirs(runtimepath.PluginDirs(cfg.PluginDirs...)...))
	}
	d.stack = plugin.NewStack(d)
	d.sync = NewPluginSync(d.loader, d.stack, sched, func() []string {
		return d.store.Config().EffectivePlugins()
	}, log)
	d.reconciler = NewReconciler(ReconcilerConfig{
		Interval: time.Duration(cfg.ReconcileIntervalMs) * time.Millisecond,
		Logger:   log,
	}, sched, d.backend, d.core.Display())

	if wb, err := watch.NewBackend(cfg.FileWatchBackend); err != nil {
		d.clog.Warnf("file watching disabled: %v", err)
	} else if d.watcher, err = watch.New(sched, wb, log); err != nil {
		_ = wb.Close()
		d.clog.Warnf("file watching disabled: %v", err)
	}

	return d, nil
}

// Logger implements plugin.Host.
func (d *Daemon) Logger() *logging.Logger { return d.log }

// Config implements plugin.Host.
func (d *Daemon) Config() *config.Store { return d.store }

// Scheduler implements plugin.Host.
func (d *Daemon) Scheduler() *scheduler.Scheduler { return d.sched }

// Core implements plugin.Host.
func (d *Daemon) Core() *object.Core { return d.core }

// Stack returns the plugin stack.
func (d *Daemon) Stack() *plugin.Stack { return d.stack }

// Watcher returns the file watcher, or nil when file watching is disabled.
func (d *Daemon) Watcher() *watch.Watcher { return d.watcher }

// Start builds the object hierarchy from the backend, activates the core
// plugin and the configured plugins, and starts event delivery. Failing to
// load or activate the core plugin is fatal.
func (d *Daemon) Start() error {
	if d.started {
		return nil
	}
	d.started = true
	d.startTime = d.sched.Now()

	screens, err := d.backend.Screens()
	if err != nil {
		return fmt.Errorf("failed to list screens: %w", err)
	}
	d.core.OnDamage(d.scheduleRepaint)
	display := d.core.Display()
	for _, info := range screens {
		s := display.AddScreen(info)
		windows, err := d.backend.Windows(info.Index)
		if err != nil {
			d.clog.Warnf("failed to list windows on screen %d: %v", info.Index, err)
			continue
		}
		for _, w := range windows {
			s.AddWindow(w)
		}
	}
	d.core.SetWindowObserver(d.stack)

	core, err := d.loader.Load(config.CorePlugin)
	if err != nil {
		d.clog.Fatalf("Couldn't load core plugin: %v", err)
		return err
	}
	if err := d.stack.Push(core); err != nil {
		_ = d.loader.Unload(core)
		d.clog.Fatalf("Couldn't activate core plugin: %v", err)
		return err
	}

	d.sync.Sync()
	d.store.Subscribe(config.CorePlugin, d.coreOptionChanged)

	if d.watcher != nil {
		if err := d.store.Watch(d.watcher); err != nil {
			d.clog.Warnf("not watching %s: %v", d.store.Path(), err)
		}
	}

	if err := d.backend.Start(func(ev platform.Event) {
		// Called from the backend's goroutine.
		_ = d.sched.Post(func() { d.core.Display().Dispatch(ev) })
	}); err != nil {
		return fmt.Errorf("failed to start %s backend: %w", d.backend.Name(), err)
	}

	if !d.opts.DisableIPC {
		srv, err := ipc.NewServer(d.sched, d, d.log, d.opts.SocketPath)
		if err == nil {
			err = srv.Start()
		}
		if err != nil {
			d.clog.Warnf("IPC disabled: %v", err)
		} else {
			d.server = srv
		}
	}

	d.reconciler.Start()
	d.clog.Infof("fusilli started: backend %s, %d screens, plugins %v", d.backend.Name(), len(screens), d.stack.Names())
	return nil
}

func (d *Daemon) coreOptionChanged(option string, v config.Value) {
	cfg := d.store.Config()
	switch option {
	case "active_plugins":
		d.sync.Schedule()
	case "plugin_dirs":
		if d.opts.Loader == nil {
			d.loader.SetDirs(runtimepath.PluginDirs(cfg.PluginDirs...)...)
		}
	case "log_level":
		if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			d.log.SetLevel(level)
		}
	case "reconcile_interval_ms":
		d.reconciler.SetInterval(time.Duration(cfg.ReconcileIntervalMs) * time.Millisecond)
	case "file_watch_backend", "log_file":
		d.clog.Infof("option %s takes effect on restart", option)
	}
}

// scheduleRepaint arms one repaint timer per damaged screen.
func (d *Daemon) scheduleRepaint(s *object.Screen) {
	if _, ok := d.repaint[s]; ok || d.shutdown {
		return
	}
	interval := time.Duration(d.store.Config().RepaintIntervalMs) * time.Millisecond
	d.repaint[s] = d.sched.AddTimer(interval/2, interval, func() bool {
		delete(d.repaint, s)
		now := d.sched.Now()
		elapsed := interval
		if last, ok := d.lastPaint[s]; ok {
			elapsed = now.Sub(last)
		}
		d.lastPaint[s] = now
		n := s.Repaint(elapsed)
		d.clog.Debugf("repainted screen %d: %d windows", s.Index(), n)
		return false
	})
}

// Reload re-reads the config file. Changed options take effect through
// their subscriptions.
func (d *Daemon) Reload() error {
	return d.store.Reload()
}

// Restart reloads the config and reactivates every plugin above core.
func (d *Daemon) Restart() error {
	err := d.store.Reload()
	d.sync.Cancel()
	d.sync.Restart()
	return err
}

// Status implements ipc.Handler.
func (d *Daemon) Status() ipc.StatusData {
	timers, fds := d.sched.Pending()
	status := ipc.StatusData{
		Backend:       d.backend.Name(),
		ConfigFile:    d.store.Path(),
		ActivePlugins: d.stack.Names(),
		Timers:        timers,
		WatchedFds:    fds,
		UptimeSeconds: int64(d.sched.Now().Sub(d.startTime).Seconds()),
		DaemonRunning: true,
	}
	if d.watcher != nil {
		status.WatchBackend = d.watcher.Backend()
		status.FileWatches = d.watcher.Len()
	}
	for _, s := range d.core.Display().Screens() {
		info := ipc.ScreenInfo{
			Index:   s.Index(),
			Name:    s.Name(),
			Width:   s.Info().Bounds.Width,
			Height:  s.Info().Bounds.Height,
			Windows: len(s.Windows()),
		}
		for _, w := range s.Windows() {
			if w.Mapped() {
				info.Mapped++
			}
		}
		status.Screens = append(status.Screens, info)
	}
	return status
}

// Plugins implements ipc.Handler.
func (d *Daemon) Plugins() ipc.PluginsData {
	data := ipc.PluginsData{SearchDirs: d.loader.Dirs()}
	for _, info := range d.loader.Available() {
		data.Plugins = append(data.Plugins, ipc.PluginInfo{
			Name:    info.Name,
			Path:    info.Path,
			Builtin: info.Builtin,
			Active:  d.stack.Find(info.Name) != nil,
		})
	}
	return data
}

// Run starts the daemon if needed and runs the loop until ctx is done or
// Stop is called, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		d.Shutdown()
		return err
	}
	err := d.sched.Run(ctx)
	d.Shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop asks the loop to return. It may be called from any goroutine.
func (d *Daemon) Stop() { d.sched.Stop() }

// Post runs fn on the loop thread. It may be called from any goroutine.
func (d *Daemon) Post(fn func()) error { return d.sched.Post(fn) }

// Shutdown pops and unloads every plugin and releases every resource.
func (d *Daemon) Shutdown() {
	if d.shutdown {
		return
	}
	d.shutdown = true

	if err := d.backend.Close(); err != nil {
		d.clog.Warnf("closing %s backend: %v", d.backend.Name(), err)
	}
	d.reconciler.Stop()
	d.sync.Cancel()
	for s, h := range d.repaint {
		d.sched.RemoveTimer(h)
		delete(d.repaint, s)
	}

	popped, err := d.stack.PopAll()
	if err != nil {
		d.clog.Errorf("Couldn't deactivate plugins: %v", err)
	}
	for _, p := range popped {
		_ = d.loader.Unload(p)
	}

	if d.server != nil {
		d.server.Stop()
	}
	d.store.Close()
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.core.Display().Close()
	_ = d.sched.Close()
	d.clog.Infof("fusilli stopped")
}
