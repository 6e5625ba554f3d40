package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goplugin "plugin"
	"slices"
	"strings"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/runtimepath"
)

const (
	filePrefix = "lib"
	fileSuffix = ".so"
)

// FileName returns the module file name for a plugin.
func FileName(name string) string { return filePrefix + name + fileSuffix }

// Module is an opened plugin module.
type Module interface {
	Lookup(symbol string) (any, error)
	Close() error
}

// Opener opens module files.
type Opener interface {
	Open(path string) (Module, error)
}

// GoOpener opens modules built with -buildmode=plugin.
type GoOpener struct{}

func (GoOpener) Open(path string) (Module, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return goModule{p}, nil
}

type goModule struct{ p *goplugin.Plugin }

func (m goModule) Lookup(symbol string) (any, error) { return m.p.Lookup(symbol) }

// Close is a no-op: the Go runtime cannot unload a module once opened.
func (m goModule) Close() error { return nil }

// Info describes one available plugin.
type Info struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Builtin bool   `json:"builtin"`
}

// Loader resolves plugin names to loaded plugins.
type Loader struct {
	// Search directories, checked in order
	dirs     []string
	opener   Opener
	builtins map[string]EntryFunc
	log      *logging.Component
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDirs replaces the search directories.
func WithDirs(dirs ...string) LoaderOption {
	return func(l *Loader) {
		l.dirs = slices.Clone(dirs)
	}
}

// WithOpener replaces the module opener.
func WithOpener(o Opener) LoaderOption {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithBuiltins replaces the registered builtin plugins.
func WithBuiltins(b map[string]EntryFunc) LoaderOption {
	return func(l *Loader) {
		l.builtins = b
	}
}

// NewLoader returns a loader searching runtimepath.PluginDirs() and the
// registered builtins.
func NewLoader(logger *logging.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		dirs:     runtimepath.PluginDirs(),
		opener:   GoOpener{},
		builtins: registeredBuiltins(),
		log:      logger.For("plugin"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dirs returns the search directories in priority order.
func (l *Loader) Dirs() []string { return slices.Clone(l.dirs) }

// SetDirs replaces the search directories for later loads.
func (l *Loader) SetDirs(dirs ...string) { l.dirs = slices.Clone(dirs) }

// Load resolves name. The first directory holding an openable module wins;
// builtins are consulted after every directory. Failures are logged and
// returned; a module that fails to open does not stop the search.
func (l *Loader) Load(name string) (*Plugin, error) {
	var lastErr error
	for _, dir := range l.dirs {
		path := filepath.Join(dir, FileName(name))
		if _, err := os.Stat(path); err != nil {
			l.log.Debugf("Could not stat() file %s : %v", path, err)
			continue
		}
		p, err := l.open(name, path)
		if err != nil {
			l.log.Errorf("Couldn't load plugin '%s' : %v", path, err)
			lastErr = err
			continue
		}
		l.log.Infof("Loaded plugin %s from %s", name, path)
		return p, nil
	}

	if entry, ok := l.builtins[name]; ok {
		p, err := l.fromEntry(name, "", nil, entry)
		if err == nil {
			l.log.Debugf("Loaded builtin plugin %s", name)
			return p, nil
		}
		lastErr = err
	}

	l.log.Errorf("Couldn't load plugin '%s'", name)
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return nil, fmt.Errorf("load %s: %w", name, lastErr)
}

func (l *Loader) open(name, path string) (*Plugin, error) {
	mod, err := l.opener.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := mod.Lookup(EntrySymbol)
	if err != nil {
		_ = mod.Close()
		return nil, fmt.Errorf("%w: %v", ErrABIMismatch, err)
	}
	var entry EntryFunc
	switch fn := sym.(type) {
	case func() *VTable:
		entry = fn
	case *func() *VTable:
		if fn != nil {
			entry = *fn
		}
	case EntryFunc:
		entry = fn
	case *EntryFunc:
		if fn != nil {
			entry = *fn
		}
	}
	if entry == nil {
		_ = mod.Close()
		return nil, fmt.Errorf("%w: %s has type %T", ErrABIMismatch, EntrySymbol, sym)
	}
	p, err := l.fromEntry(name, path, mod, entry)
	if err != nil {
		_ = mod.Close()
		return nil, err
	}
	return p, nil
}

func (l *Loader) fromEntry(name, path string, mod Module, entry EntryFunc) (*Plugin, error) {
	vt := entry()
	if vt == nil {
		l.log.Errorf("Couldn't get vtable from '%s' plugin", name)
		return nil, ErrNilVTable
	}
	if vt.Name == "" {
		vt.Name = name
	}
	return &Plugin{name: name, path: path, module: mod, vtable: vt}, nil
}

// Unload releases p's module. Calling it again is a no-op.
func (l *Loader) Unload(p *Plugin) error {
	if p == nil || p.unloaded {
		return nil
	}
	p.unloaded = true
	l.log.Infof("Unloading plugin: %s", p.name)
	if p.module == nil {
		return nil
	}
	return p.module.Close()
}

// Available lists every plugin that Load could resolve, directories first
// in priority order and builtins last. A name found in several places is
// reported once, from the highest-priority location.
func (l *Loader) Available() []Info {
	var out []Info
	seen := make(map[string]bool)
	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				l.log.Debugf("Could not read plugin directory %s : %v", dir, err)
			}
			continue
		}
		for _, e := range entries {
			name, ok := nameFromFile(e.Name())
			if !ok || e.IsDir() || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Info{Name: name, Path: filepath.Join(dir, e.Name())})
		}
	}

	builtinNames := make([]string, 0, len(l.builtins))
	for name := range l.builtins {
		builtinNames = append(builtinNames, name)
	}
	slices.Sort(builtinNames)
	for _, name := range builtinNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Info{Name: name, Builtin: true})
	}
	return out
}

// List returns the names reported by Available.
func (l *Loader) List() []string {
	infos := l.Available()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func nameFromFile(file string) (string, bool) {
	if !strings.HasPrefix(file, filePrefix) || !strings.HasSuffix(file, fileSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(file, filePrefix), fileSuffix)
	return name, name != ""
}
