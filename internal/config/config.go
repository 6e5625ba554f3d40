package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/noodlylight/fusilli/internal/logging"
	"gopkg.in/yaml.v3"
)

// CorePlugin is the bootstrap plugin. It is always active and is never
// listed in active_plugins.
const CorePlugin = "core"

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Config is the effective configuration.
type Config struct {
	ActivePlugins       []string                  `yaml:"active_plugins"`
	PluginDirs          []string                  `yaml:"plugin_dirs,omitempty"`
	Logging             LoggingConfig             `yaml:"logging"`
	FileWatchBackend    string                    `yaml:"file_watch_backend"`
	RepaintIntervalMs   int                       `yaml:"repaint_interval_ms"`
	ReconcileIntervalMs int                       `yaml:"reconcile_interval_ms"`
	Plugins             map[string]map[string]any `yaml:"plugins,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		ActivePlugins: []string{},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
		FileWatchBackend:    "auto",
		RepaintIntervalMs:   16,
		ReconcileIntervalMs: 10000,
		Plugins:             map[string]map[string]any{},
	}
}

// ValidationError reports an invalid option, with its file position when
// known.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks option values.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: fatal, error, warning, info, debug")}
	}
	if c.Logging.MaxSizeMB < 0 {
		return &ValidationError{Path: "logging.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "logging.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	switch c.FileWatchBackend {
	case "auto", "inotify", "fsnotify":
	default:
		return &ValidationError{Path: "file_watch_backend", Err: fmt.Errorf("file_watch_backend must be one of: auto, inotify, fsnotify")}
	}
	if c.RepaintIntervalMs <= 0 || c.RepaintIntervalMs > 1000 {
		return &ValidationError{Path: "repaint_interval_ms", Err: fmt.Errorf("repaint_interval_ms must be between 1 and 1000")}
	}
	if c.ReconcileIntervalMs < 0 {
		return &ValidationError{Path: "reconcile_interval_ms", Err: fmt.Errorf("reconcile_interval_ms must be >= 0 (0 disables)")}
	}
	for _, name := range c.ActivePlugins {
		if err := ValidatePluginName(name); err != nil {
			return &ValidationError{Path: "active_plugins", Err: err}
		}
	}
	for _, dir := range c.PluginDirs {
		if strings.TrimSpace(dir) == "" {
			return &ValidationError{Path: "plugin_dirs", Err: fmt.Errorf("plugin_dirs contains an empty path")}
		}
	}

	for _, w := range c.validationWarnings() {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}

// ValidatePluginName rejects names that cannot map to a module file.
func ValidatePluginName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("plugin name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("plugin name %q must not contain path separators", name)
	}
	return nil
}

func (c *Config) validationWarnings() []string {
	var warnings []string
	seen := make(map[string]bool)
	for _, name := range c.ActivePlugins {
		if name == CorePlugin {
			warnings = append(warnings, "active_plugins lists \"core\"; it is always loaded and will be skipped")
			continue
		}
		if seen[name] {
			warnings = append(warnings, fmt.Sprintf("active_plugins lists %q more than once; later entries are ignored", name))
		}
		seen[name] = true
	}
	return warnings
}

// EffectivePlugins returns active_plugins without "core" and duplicates.
func (c *Config) EffectivePlugins() []string {
	out := make([]string, 0, len(c.ActivePlugins))
	for _, name := range c.ActivePlugins {
		if name == CorePlugin || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// GetLoggingConfig returns the logging block with defaults applied.
func (c *Config) GetLoggingConfig() LoggingConfig {
	cfg := c.Logging
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 3
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	return cfg
}

// Options returns every option of plugin as a flat map. The core options
// are keyed by their file names.
func (c *Config) Options(plugin string) map[string]any {
	if plugin != CorePlugin {
		out := make(map[string]any, len(c.Plugins[plugin]))
		for k, v := range c.Plugins[plugin] {
			out[k] = v
		}
		return out
	}
	return map[string]any{
		"active_plugins":        slices.Clone(c.ActivePlugins),
		"plugin_dirs":           slices.Clone(c.PluginDirs),
		"log_level":             c.Logging.Level,
		"log_file":              c.Logging.File,
		"file_watch_backend":    c.FileWatchBackend,
		"repaint_interval_ms":   c.RepaintIntervalMs,
		"reconcile_interval_ms": c.ReconcileIntervalMs,
	}
}

// Save validates c and writes it to path.
//
// Note: this marshals the effective config and will not preserve comments
// from the original YAML.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Write then rename so watchers never observe a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
