package ipc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

type fakeHandler struct {
	reloads   int
	reloadErr error
}

func (h *fakeHandler) Status() StatusData {
	return StatusData{
		Backend:       "headless",
		ActivePlugins: []string{"core", "eventlog"},
		Screens:       []ScreenInfo{{Index: 0, Name: "headless-0", Windows: 2}},
		DaemonRunning: true,
	}
}

func (h *fakeHandler) Plugins() PluginsData {
	return PluginsData{
		Plugins:    []PluginInfo{{Name: "eventlog", Builtin: true, Active: true}},
		SearchDirs: []string{"/usr/lib/fusilli/plugins"},
	}
}

func (h *fakeHandler) Reload() error {
	h.reloads++
	return h.reloadErr
}

// startServer runs a server on its own loop goroutine until the test ends.
func startServer(t *testing.T, h Handler) *Client {
	t.Helper()
	sched, err := scheduler.New()
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	socket := filepath.Join(t.TempDir(), "fusilli.sock")
	srv, err := NewServer(sched, h, logging.Discard(), socket)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
		srv.Stop()
		_ = sched.Close()
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		if _, err := os.Stat(socket); !os.IsNotExist(err) {
			t.Errorf("socket %s still present after Stop", socket)
		}
	})
	return NewClientWithSocket(socket, 2*time.Second)
}

func TestServer_GetStatus(t *testing.T) {
	c := startServer(t, &fakeHandler{})

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Backend != "headless" || !status.DaemonRunning {
		t.Fatalf("status = %+v", status)
	}
	if len(status.Screens) != 1 || status.Screens[0].Windows != 2 {
		t.Fatalf("screens = %+v", status.Screens)
	}
}

func TestServer_ListPlugins(t *testing.T) {
	c := startServer(t, &fakeHandler{})

	data, err := c.ListPlugins()
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(data.Plugins) != 1 || data.Plugins[0].Name != "eventlog" || !data.Plugins[0].Active {
		t.Fatalf("plugins = %+v", data.Plugins)
	}
}

func TestServer_ReloadErrorIsReported(t *testing.T) {
	h := &fakeHandler{reloadErr: errors.New("bad yaml")}
	c := startServer(t, h)

	err := c.Reload()
	if err == nil || !strings.Contains(err.Error(), "bad yaml") {
		t.Fatalf("Reload error = %v", err)
	}
}

func TestServer_SequentialClients(t *testing.T) {
	c := startServer(t, &fakeHandler{})
	for i := 0; i < 5; i++ {
		if err := c.Ping(); err != nil {
			t.Fatalf("Ping %d: %v", i, err)
		}
	}
}

func TestServer_RejectsMalformedAndUnknown(t *testing.T) {
	c := startServer(t, &fakeHandler{})

	for _, line := range []string{"not json\n", `{"command":"UNDO"}` + "\n"} {
		conn, err := net.Dial("unix", c.socketPath)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		if _, err := conn.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		resp, err := bufio.NewReader(conn).ReadString('\n')
		conn.Close()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !strings.Contains(resp, `"status":"ERROR"`) {
			t.Fatalf("response to %q = %s", line, resp)
		}
	}
}

func TestServer_RequestWithoutNewline(t *testing.T) {
	c := startServer(t, &fakeHandler{})

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(`{"command":"GET_STATUS"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()

	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(resp, `"status":"OK"`) {
		t.Fatalf("response = %s", resp)
	}
}

func TestClient_NoDaemon(t *testing.T) {
	c := NewClientWithSocket(filepath.Join(t.TempDir(), "missing.sock"), time.Second)
	err := c.Ping()
	if err == nil || !strings.Contains(err.Error(), "is the daemon running?") {
		t.Fatalf("Ping error = %v", err)
	}
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("Ping error %v is not ErrDaemonNotRunning", err)
	}
}
