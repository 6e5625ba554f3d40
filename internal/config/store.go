package config

import (
	"path/filepath"
	"reflect"
	"slices"
	"sort"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/watch"
)

// Value is an option value as decoded from YAML.
type Value = any

// ChangeFunc is told about one option whose value changed. v is nil when the
// option was removed.
type ChangeFunc func(option string, v Value)

// SubscriptionID identifies a change subscription.
type SubscriptionID int

type subscription struct {
	id     SubscriptionID
	plugin string
	fn     ChangeFunc
}

// Store owns the loaded configuration and notifies subscribers when a reload
// changes option values. It belongs to the loop thread.
type Store struct {
	path string
	cfg  *Config
	log  *logging.Component

	nextID SubscriptionID
	subs   []subscription

	watcher *watch.Watcher
	handle  watch.Handle
}

// NewStore loads path and returns a store over it.
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	res, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: res.Config, log: logger.For("config")}, nil
}

// NewStoreFromConfig wraps an in-memory configuration. Reload re-reads path
// when it is not empty.
func NewStoreFromConfig(path string, cfg *Config, logger *logging.Logger) *Store {
	return &Store{path: path, cfg: cfg, log: logger.For("config")}
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Config returns the current configuration. It must not be modified.
func (s *Store) Config() *Config { return s.cfg }

// Get returns one option of plugin. Core options live under "core".
func (s *Store) Get(plugin, option string) (Value, bool) {
	v, ok := s.cfg.Options(plugin)[option]
	return v, ok
}

// Subscribe registers fn for changes to plugin's options.
func (s *Store) Subscribe(plugin string, fn ChangeFunc) SubscriptionID {
	s.nextID++
	s.subs = append(s.subs, subscription{id: s.nextID, plugin: plugin, fn: fn})
	return s.nextID
}

// Unsubscribe removes a subscription. It reports whether id was registered.
func (s *Store) Unsubscribe(id SubscriptionID) bool {
	i := slices.IndexFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	if i < 0 {
		return false
	}
	s.subs = slices.Delete(s.subs, i, i+1)
	return true
}

// Reload re-reads the file. An invalid file is logged and leaves the current
// configuration in place. Subscribers are called only for options whose
// value changed.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	res, err := LoadFromPath(s.path)
	if err != nil {
		s.log.Errorf("reload %s: %v", s.path, err)
		return err
	}
	s.Replace(res.Config)
	return nil
}

// Replace swaps in cfg and notifies subscribers of changed options.
func (s *Store) Replace(cfg *Config) {
	old := s.cfg
	s.cfg = cfg

	plugins := map[string]bool{CorePlugin: true}
	for name := range old.Plugins {
		plugins[name] = true
	}
	for name := range cfg.Plugins {
		plugins[name] = true
	}

	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, plugin := range names {
		for _, ch := range diffOptions(old.Options(plugin), cfg.Options(plugin)) {
			s.log.Debugf("option %s.%s changed", plugin, ch.option)
			s.notify(plugin, ch.option, ch.value)
		}
	}
}

func (s *Store) notify(plugin, option string, v Value) {
	// Subscribers may unsubscribe from their callback.
	for _, sub := range slices.Clone(s.subs) {
		if sub.plugin != plugin {
			continue
		}
		if !slices.ContainsFunc(s.subs, func(x subscription) bool { return x.id == sub.id }) {
			continue
		}
		sub.fn(option, v)
	}
}

type change struct {
	option string
	value  Value
}

func diffOptions(old, cur map[string]any) []change {
	keys := make(map[string]bool, len(old)+len(cur))
	for k := range old {
		keys[k] = true
	}
	for k := range cur {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []change
	for _, k := range sorted {
		ov, oldOK := old[k]
		nv, newOK := cur[k]
		if oldOK == newOK && reflect.DeepEqual(ov, nv) {
			continue
		}
		out = append(out, change{option: k, value: nv})
	}
	return out
}

// Watch reloads the store whenever its file is created, written or renamed
// into place. The directory is watched rather than the file so editors that
// replace the file are still noticed.
func (s *Store) Watch(w *watch.Watcher) error {
	if s.path == "" {
		return nil
	}
	base := filepath.Base(s.path)
	h, err := w.Add(filepath.Dir(s.path), watch.Create|watch.Modify|watch.Move, func(name string) {
		if name != base {
			return
		}
		_ = s.Reload()
	})
	if err != nil {
		return err
	}
	s.watcher, s.handle = w, h
	return nil
}

// Close stops watching the file.
func (s *Store) Close() {
	if s.watcher != nil {
		s.watcher.Remove(s.handle)
		s.watcher = nil
	}
}
