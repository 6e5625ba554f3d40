package runtimepath

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"
)

func TestDir_UsesXDGRuntimeDirWhenSet(t *testing.T) {
	td := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", td)

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got != td {
		t.Fatalf("Dir() = %q, want %q", got, td)
	}
}

func TestDir_FallbacksWhenXDGRuntimeDirMissing(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	got, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if got == "" {
		t.Fatal("Dir() returned empty path")
	}

	wantRun := fmt.Sprintf("/run/user/%d", os.Getuid())
	wantTmp := fmt.Sprintf("/tmp/fusilli-runtime-%d", os.Getuid())
	if got != wantRun && got != wantTmp {
		t.Fatalf("Dir() = %q, want %q or %q", got, wantRun, wantTmp)
	}
}

func TestSocketPath(t *testing.T) {
	td := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", td)

	socket, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath() error: %v", err)
	}
	if !strings.HasSuffix(socket, "/fusilli.sock") {
		t.Fatalf("SocketPath() = %q, missing suffix", socket)
	}
}

func TestPluginDirs_Order(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	got := PluginDirs("/opt/extra")
	want := []string{"/opt/extra", "/home/tester/.fusilli/plugins", SystemPluginDir, "."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PluginDirs() = %v, want %v", got, want)
	}
}

func TestPluginDirs_NoHome(t *testing.T) {
	t.Setenv("HOME", "")

	got := PluginDirs()
	want := []string{SystemPluginDir, "."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PluginDirs() = %v, want %v", got, want)
	}
}
