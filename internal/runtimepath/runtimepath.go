package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// SystemPluginDir is where packaged plugins are installed.
const SystemPluginDir = "/usr/lib/fusilli/plugins"

// Dir returns the runtime directory used for the IPC socket. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/fusilli-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/fusilli-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// SocketPath returns the daemon IPC socket path.
func SocketPath() (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "fusilli.sock"), nil
}

// UserPluginDir returns $HOME/.fusilli/plugins, or "" when HOME is unset.
func UserPluginDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".fusilli", "plugins")
}

// PluginDirs returns the plugin search path in priority order: extra
// directories first, then the user directory, the system directory and
// finally the working directory.
func PluginDirs(extra ...string) []string {
	dirs := make([]string, 0, len(extra)+3)
	dirs = append(dirs, extra...)
	if dir := UserPluginDir(); dir != "" {
		dirs = append(dirs, dir)
	}
	return append(dirs, SystemPluginDir, ".")
}
