package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload      CommandType = "RELOAD"
	CommandGetStatus   CommandType = "GET_STATUS"
	CommandListPlugins CommandType = "LIST_PLUGINS"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ScreenInfo describes one screen of the running display.
type ScreenInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Windows int    `json:"windows"`
	Mapped  int    `json:"mapped"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Backend       string       `json:"backend"`
	WatchBackend  string       `json:"watch_backend"`
	ConfigFile    string       `json:"config_file,omitempty"`
	ActivePlugins []string     `json:"active_plugins"`
	Screens       []ScreenInfo `json:"screens"`
	Timers        int          `json:"timers"`
	WatchedFds    int          `json:"watched_fds"`
	FileWatches   int          `json:"file_watches"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	DaemonRunning bool         `json:"daemon_running"`
}

// PluginInfo describes one plugin known to the daemon.
type PluginInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Builtin bool   `json:"builtin"`
	Active  bool   `json:"active"`
}

// PluginsData represents the data returned by LIST_PLUGINS
type PluginsData struct {
	Plugins    []PluginInfo `json:"plugins"`
	SearchDirs []string     `json:"search_dirs"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
