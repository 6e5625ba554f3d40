package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/noodlylight/fusilli/internal/config"
	"github.com/noodlylight/fusilli/internal/daemon"
	"github.com/noodlylight/fusilli/internal/ipc"
	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/platform"
	"github.com/noodlylight/fusilli/internal/plugin"
	"github.com/noodlylight/fusilli/internal/runtimepath"
	"gopkg.in/yaml.v3"

	_ "github.com/noodlylight/fusilli/internal/plugins/eventlog"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "plugins":
		os.Exit(runPlugins(os.Args[2:]))
	case "enable":
		os.Exit(runToggle(os.Args[2:], true))
	case "disable":
		os.Exit(runToggle(os.Args[2:], false))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fusilli <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Start the compositor runtime (foreground)")
	fmt.Fprintln(w, "  status              Show runtime status")
	fmt.Fprintln(w, "  reload              Re-read the configuration file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  plugins             List available and active plugins")
	fmt.Fprintln(w, "  enable <plugin>     Append a plugin to active_plugins")
	fmt.Fprintln(w, "  disable <plugin>    Remove a plugin from active_plugins")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print effective configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'fusilli <command> --help' for command-specific options.")
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("config", "", "Config file path (default: ~/.config/fusilli/config.yaml)")
	display := fs.String("display", "", "X display to manage (default: $DISPLAY)")
	headless := fs.Bool("headless", false, "Run without a window system")
	debug := fs.Bool("debug", false, "Log at debug level")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: fusilli run [--config PATH] [--display DISPLAY] [--headless] [--debug]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run takes no arguments")
		fs.Usage()
		return 2
	}

	cfgPath := *path
	if cfgPath == "" {
		var err error
		if cfgPath, err = config.DefaultConfigPath(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	res, err := config.LoadFromPath(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	cfg := res.Config

	logger, closeLog, err := openLogger(cfg.GetLoggingConfig(), *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()

	var backend platform.Backend
	if *headless {
		backend = platform.DefaultHeadless()
	} else {
		b, err := platform.NewLinuxBackend(*display, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to display: %v\n", err)
			return 1
		}
		backend = b
	}

	d, err := daemon.New(daemon.Options{
		ConfigPath: cfgPath,
		Config:     cfg,
		Backend:    backend,
		Logger:     logger,
	})
	if err != nil {
		_ = backend.Close()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *debug {
		logger.SetLevel(logging.LevelDebug)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			_ = d.Post(func() {
				logger.For("core").Infof("Received SIGHUP, restarting plugins")
				if err := d.Restart(); err != nil {
					logger.For("core").Errorf("Config reload failed: %v", err)
				}
			})
		}
	}()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// openLogger builds the process logger. With a log file configured records
// go to the file only.
func openLogger(cfg config.LoggingConfig, debug bool) (*logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = logging.LevelDebug
	}
	if cfg.File == "" {
		return logging.New(logging.Options{Level: level}), func() {}, nil
	}
	f, err := logging.OpenRotatingFile(logging.FileConfig{
		Path:      cfg.File,
		MaxSizeMB: cfg.MaxSizeMB,
		MaxFiles:  cfg.MaxFiles,
	})
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{Level: level, Writer: f}), func() { _ = f.Close() }, nil
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print status as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: fusilli status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show runtime status via IPC.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	status, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(status)
	}

	fmt.Printf("daemon_running:  %v\n", status.DaemonRunning)
	fmt.Printf("backend:         %s\n", status.Backend)
	fmt.Printf("config_file:     %s\n", status.ConfigFile)
	fmt.Printf("active_plugins:  %s\n", strings.Join(status.ActivePlugins, " "))
	fmt.Printf("timers:          %d\n", status.Timers)
	fmt.Printf("watched_fds:     %d\n", status.WatchedFds)
	if status.WatchBackend != "" {
		fmt.Printf("file_watches:    %d (%s)\n", status.FileWatches, status.WatchBackend)
	}
	fmt.Printf("uptime_seconds:  %d\n", status.UptimeSeconds)
	for _, s := range status.Screens {
		fmt.Printf("screen %d:        %s %dx%d, %d windows (%d mapped)\n",
			s.Index, s.Name, s.Width, s.Height, s.Windows, s.Mapped)
	}
	return 0
}

func runReload(args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: fusilli reload")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Ask the runtime to re-read its configuration file.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "reload takes no arguments")
		fs.Usage()
		return 2
	}
	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func runPlugins(args []string) int {
	fs := flag.NewFlagSet("plugins", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("config", "", "Config file path, used when the runtime is not running")
	asJSON := fs.Bool("json", false, "Print plugins as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: fusilli plugins [--json] [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List plugins found in the search path. Asks the running runtime")
		fmt.Fprintln(os.Stderr, "first and falls back to scanning the configured directories.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	data, err := ipc.NewClient().ListPlugins()
	if err != nil {
		data, err = localPlugins(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if *asJSON {
		return printJSON(data)
	}
	fmt.Print(renderPlugins(data))
	return 0
}

// localPlugins scans the plugin directories without a running runtime. A
// plugin is reported active when the config lists it.
func localPlugins(path string) (*ipc.PluginsData, error) {
	res, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	loader := plugin.NewLoader(logging.Discard(), plugin.WithDirs(runtimepath.PluginDirs(res.Config.PluginDirs...)...))
	active := append([]string{config.CorePlugin}, res.Config.EffectivePlugins()...)

	data := &ipc.PluginsData{SearchDirs: loader.Dirs()}
	for _, info := range loader.Available() {
		data.Plugins = append(data.Plugins, ipc.PluginInfo{
			Name:    info.Name,
			Path:    info.Path,
			Builtin: info.Builtin,
			Active:  slices.Contains(active, info.Name),
		})
	}
	return data, nil
}

func renderPlugins(data *ipc.PluginsData) string {
	width := len("PLUGIN")
	for _, p := range data.Plugins {
		width = max(width, len(p.Name))
	}
	pad := lipgloss.NewStyle().Width(width + 2)

	var b strings.Builder
	b.WriteString(headerStyle.Render(pad.Render("PLUGIN")+pad.Render("STATE")+"SOURCE") + "\n")
	for _, p := range data.Plugins {
		state := inactiveStyle.Render(pad.Render("-"))
		if p.Active {
			state = activeStyle.Render(pad.Render("active"))
		}
		source := p.Path
		if p.Builtin {
			source = "builtin"
		}
		b.WriteString(pad.Render(p.Name) + state + pathStyle.Render(source) + "\n")
	}
	if len(data.SearchDirs) > 0 {
		b.WriteString("\nsearch path: " + strings.Join(data.SearchDirs, ":") + "\n")
	}
	return b.String()
}

func runToggle(args []string, enable bool) int {
	name := "disable"
	if enable {
		name = "enable"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("config", "", "Config file path (default: ~/.config/fusilli/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fusilli %s [--config PATH] <plugin>\n", name)
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	target := *path
	if target == "" {
		var err error
		if target, err = config.DefaultConfigPath(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	res, err := config.LoadFromPath(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	changed, err := togglePlugin(res.Config, fs.Arg(0), enable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !changed {
		fmt.Printf("%s: nothing to do\n", fs.Arg(0))
		return 0
	}
	if err := res.Config.Save(target); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("active_plugins: %s\n", strings.Join(res.Config.ActivePlugins, " "))
	// A running runtime notices the file; reload explicitly in case file
	// watching is off.
	if err := ipc.NewClient().Reload(); err != nil && !errors.Is(err, ipc.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, err)
	}
	return 0
}

// togglePlugin edits cfg.ActivePlugins in place and reports whether it
// changed.
func togglePlugin(cfg *config.Config, name string, enable bool) (bool, error) {
	if err := config.ValidatePluginName(name); err != nil {
		return false, err
	}
	if name == config.CorePlugin {
		return false, fmt.Errorf("%s is always active", config.CorePlugin)
	}
	i := slices.Index(cfg.ActivePlugins, name)
	if enable {
		if i >= 0 {
			return false, nil
		}
		cfg.ActivePlugins = append(cfg.ActivePlugins, name)
		return true, nil
	}
	if i < 0 {
		return false, nil
	}
	cfg.ActivePlugins = slices.DeleteFunc(cfg.ActivePlugins, func(s string) bool { return s == name })
	return true, nil
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  fusilli config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  fusilli config print [--path PATH] [--defaults]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/fusilli/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/fusilli/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			if res.File != "" {
				fmt.Printf("# file: %s\n", res.File)
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	return config.LoadFromPath(path)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
