package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/noodlylight/fusilli/internal/logging"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.RepaintIntervalMs != 16 || cfg.FileWatchBackend != "auto" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath error: %v", err)
	}
	if res.File != "" {
		t.Fatalf("File = %q, want empty", res.File)
	}
	if len(res.Config.ActivePlugins) != 0 {
		t.Fatalf("ActivePlugins = %v, want empty", res.Config.ActivePlugins)
	}
}

func TestLoadFromPath_ParsesOptions(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
active_plugins:
  - eventlog
  - fade
plugin_dirs: [/opt/fusilli/plugins]
log_level: debug
file_watch_backend: fsnotify
repaint_interval_ms: 33
plugins:
  eventlog:
    summary_interval_ms: 5000
`)
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath error: %v", err)
	}
	cfg := res.Config
	if !reflect.DeepEqual(cfg.ActivePlugins, []string{"eventlog", "fade"}) {
		t.Fatalf("ActivePlugins = %v", cfg.ActivePlugins)
	}
	if cfg.Logging.Level != "debug" || cfg.FileWatchBackend != "fsnotify" || cfg.RepaintIntervalMs != 33 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if v := cfg.Plugins["eventlog"]["summary_interval_ms"]; v != 5000 {
		t.Fatalf("summary_interval_ms = %#v", v)
	}
	if src := res.Sources["repaint_interval_ms"]; src.Line != 8 {
		t.Fatalf("repaint_interval_ms source line = %d, want 8", src.Line)
	}
}

func TestLoadFromPath_SinglePluginString(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "active_plugins: eventlog\n")
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath error: %v", err)
	}
	if !reflect.DeepEqual(res.Config.ActivePlugins, []string{"eventlog"}) {
		t.Fatalf("ActivePlugins = %v", res.Config.ActivePlugins)
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "active_plugin: [eventlog]\n")
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadFromPath_InvalidLogLevelHasSourceContext(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "repaint_interval_ms: 16\nlog_level: loud\n")
	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Source.Line != 2 {
		t.Fatalf("source line = %d, want 2", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), "config.yaml:2:") {
		t.Fatalf("error lacks position: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"file_watch_backend":  func(c *Config) { c.FileWatchBackend = "kqueue" },
		"repaint_interval_ms": func(c *Config) { c.RepaintIntervalMs = 0 },
		"active_plugins":      func(c *Config) { c.ActivePlugins = []string{"../evil"} },
		"plugin_dirs":         func(c *Config) { c.PluginDirs = []string{" "} },
	}
	for path, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := cfg.Validate()
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Path != path {
			t.Fatalf("%s: got %v", path, err)
		}
	}
}

func TestEffectivePlugins_SkipsCoreAndDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActivePlugins = []string{"core", "a", "b", "a"}
	if got := cfg.EffectivePlugins(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("EffectivePlugins = %v", got)
	}
}

func TestSave_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.ActivePlugins = []string{"eventlog"}
	cfg.Plugins["eventlog"] = map[string]any{"summary_interval_ms": 250}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if !reflect.DeepEqual(res.Config.ActivePlugins, []string{"eventlog"}) {
		t.Fatalf("ActivePlugins = %v", res.Config.ActivePlugins)
	}
	if v := res.Config.Plugins["eventlog"]["summary_interval_ms"]; v != 250 {
		t.Fatalf("summary_interval_ms = %#v", v)
	}
}

func TestStore_ReloadNotifiesOnlyChangedOptions(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "active_plugins: [a]\nrepaint_interval_ms: 16\n")
	s, err := NewStore(path, logging.Discard())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var coreChanges []string
	var eventlogChanges []string
	s.Subscribe(CorePlugin, func(option string, v Value) { coreChanges = append(coreChanges, option) })
	s.Subscribe("eventlog", func(option string, v Value) { eventlogChanges = append(eventlogChanges, option) })

	writeConfig(t, dir, "active_plugins: [a, b]\nrepaint_interval_ms: 16\nplugins:\n  eventlog:\n    summary_interval_ms: 10\n")
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if !reflect.DeepEqual(coreChanges, []string{"active_plugins"}) {
		t.Fatalf("core changes = %v", coreChanges)
	}
	if !reflect.DeepEqual(eventlogChanges, []string{"summary_interval_ms"}) {
		t.Fatalf("eventlog changes = %v", eventlogChanges)
	}
	if v, ok := s.Get("eventlog", "summary_interval_ms"); !ok || v != 10 {
		t.Fatalf("Get = %v, %v", v, ok)
	}

	coreChanges = nil
	if err := s.Reload(); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if len(coreChanges) != 0 {
		t.Fatalf("unchanged reload notified: %v", coreChanges)
	}
}

func TestStore_InvalidReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "active_plugins: [a]\n")
	s, err := NewStore(path, logging.Discard())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	called := false
	s.Subscribe(CorePlugin, func(string, Value) { called = true })

	writeConfig(t, dir, "log_level: loud\n")
	if err := s.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if called {
		t.Fatal("subscriber notified for invalid file")
	}
	if !reflect.DeepEqual(s.Config().ActivePlugins, []string{"a"}) {
		t.Fatalf("config replaced: %v", s.Config().ActivePlugins)
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStoreFromConfig("", DefaultConfig(), logging.Discard())
	calls := 0
	id := s.Subscribe(CorePlugin, func(string, Value) { calls++ })
	if !s.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false")
	}
	if s.Unsubscribe(id) {
		t.Fatal("second Unsubscribe returned true")
	}

	next := DefaultConfig()
	next.RepaintIntervalMs = 50
	s.Replace(next)
	if calls != 0 {
		t.Fatalf("calls = %d after unsubscribe", calls)
	}
}

func TestDefaultConfigPath_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if path != "/tmp/xdg/fusilli/config.yaml" {
		t.Fatalf("path = %q", path)
	}
}
