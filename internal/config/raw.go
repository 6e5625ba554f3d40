package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PluginList accepts either a single name or a list of names:
//
//	active_plugins: eventlog
//
// or:
//
//	active_plugins:
//	  - eventlog
//	  - fade
type PluginList []string

func (l *PluginList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = PluginList{}
			return nil
		}
		if value.Tag != "!!str" {
			return fmt.Errorf("active_plugins must be a string or list of strings")
		}
		*l = PluginList{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(PluginList, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("active_plugins entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("active_plugins must be a string or list of strings")
	}
}

// RawLogging mirrors the logging block as written in the file.
type RawLogging struct {
	Level     *string `yaml:"level"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

// RawConfig is the file representation. Nil fields take defaults.
type RawConfig struct {
	ActivePlugins       *PluginList               `yaml:"active_plugins"`
	PluginDirs          []string                  `yaml:"plugin_dirs"`
	LogLevel            *string                   `yaml:"log_level"`
	LogFile             *string                   `yaml:"log_file"`
	Logging             *RawLogging               `yaml:"logging"`
	FileWatchBackend    *string                   `yaml:"file_watch_backend"`
	RepaintIntervalMs   *int                      `yaml:"repaint_interval_ms"`
	ReconcileIntervalMs *int                      `yaml:"reconcile_interval_ms"`
	Plugins             map[string]map[string]any `yaml:"plugins"`
}

// BuildEffectiveConfig applies defaults to raw.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()
	if raw.ActivePlugins != nil {
		cfg.ActivePlugins = append([]string{}, (*raw.ActivePlugins)...)
	}
	if len(raw.PluginDirs) > 0 {
		cfg.PluginDirs = append([]string{}, raw.PluginDirs...)
	}
	if raw.LogLevel != nil {
		cfg.Logging.Level = *raw.LogLevel
	}
	if raw.LogFile != nil {
		cfg.Logging.File = *raw.LogFile
	}
	if l := raw.Logging; l != nil {
		if l.Level != nil {
			cfg.Logging.Level = *l.Level
		}
		if l.File != nil {
			cfg.Logging.File = *l.File
		}
		if l.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *l.MaxSizeMB
		}
		if l.MaxFiles != nil {
			cfg.Logging.MaxFiles = *l.MaxFiles
		}
	}
	if raw.FileWatchBackend != nil {
		cfg.FileWatchBackend = *raw.FileWatchBackend
	}
	if raw.RepaintIntervalMs != nil {
		cfg.RepaintIntervalMs = *raw.RepaintIntervalMs
	}
	if raw.ReconcileIntervalMs != nil {
		cfg.ReconcileIntervalMs = *raw.ReconcileIntervalMs
	}
	for name, opts := range raw.Plugins {
		m := make(map[string]any, len(opts))
		for k, v := range opts {
			m[k] = v
		}
		cfg.Plugins[name] = m
	}
	return cfg
}
