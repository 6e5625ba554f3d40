package ipc

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/noodlylight/fusilli/internal/logging"
	"github.com/noodlylight/fusilli/internal/runtimepath"
	"github.com/noodlylight/fusilli/internal/scheduler"
)

// maxRequestSize bounds a single request line.
const maxRequestSize = 64 << 10

// Handler answers IPC commands. It is called on the loop thread.
type Handler interface {
	Status() StatusData
	Plugins() PluginsData
	Reload() error
}

// Server handles IPC requests from clients. The listening socket and every
// connection are watched descriptors of the scheduler, so requests are
// served on the loop thread between other callbacks. Each connection
// carries one request and one response.
type Server struct {
	socketPath string
	sched      *scheduler.Scheduler
	handler    Handler
	log        *logging.Component

	fd     int
	handle scheduler.Handle
	conns  map[*conn]struct{}
}

type conn struct {
	fd     int
	handle scheduler.Handle
	in     []byte
	out    []byte
}

// NewServer creates a new IPC server. An empty socketPath selects
// runtimepath.SocketPath().
func NewServer(sched *scheduler.Scheduler, handler Handler, logger *logging.Logger, socketPath string) (*Server, error) {
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	return &Server{
		socketPath: socketPath,
		sched:      sched,
		handler:    handler,
		log:        logger.For("ipc"),
		fd:         -1,
		conns:      make(map[*conn]struct{}),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	// Remove existing socket if present
	os.Remove(s.socketPath)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: s.socketPath}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to bind IPC socket %s: %w", s.socketPath, err)
	}

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to listen on IPC socket: %w", err)
	}

	h, err := s.sched.AddWatchFd(fd, scheduler.EventIn, func(scheduler.Events) { s.accept() })
	if err != nil {
		unix.Close(fd)
		return err
	}
	s.fd, s.handle = fd, h

	s.log.Infof("IPC server listening on %s", s.socketPath)
	return nil
}

// accept drains the listen backlog.
func (s *Server) accept() {
	for {
		nfd, _, err := unix.Accept(s.fd)
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			case errors.Is(err, unix.EAGAIN):
			default:
				s.log.Warnf("IPC accept error: %v", err)
			}
			return
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		c := &conn{fd: nfd}
		h, err := s.sched.AddWatchFd(nfd, scheduler.EventIn, func(scheduler.Events) { s.readable(c) })
		if err != nil {
			unix.Close(nfd)
			continue
		}
		c.handle = h
		s.conns[c] = struct{}{}
	}
}

// readable reads what is available and answers once a full line, or EOF,
// has arrived.
func (s *Server) readable(c *conn) {
	var buf [4096]byte
	eof := false
	for !eof {
		n, err := unix.Read(c.fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			s.log.Debugf("IPC read error: %v", err)
			s.closeConn(c)
			return
		}
		if n == 0 {
			eof = true
			break
		}
		c.in = append(c.in, buf[:n]...)
		if len(c.in) > maxRequestSize {
			s.respond(c, NewErrorResponse("Invalid request: request too large"))
			return
		}
	}

	var line []byte
	if i := bytes.IndexByte(c.in, '\n'); i >= 0 {
		line = c.in[:i]
	} else if eof && len(c.in) > 0 {
		line = c.in
	} else if eof {
		s.closeConn(c)
		return
	} else {
		return
	}

	req, err := ParseRequest(line)
	if err != nil {
		s.respond(c, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}
	s.respond(c, s.handleCommand(req))
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandReload:
		s.log.Infof("IPC: Received RELOAD command")
		if err := s.handler.Reload(); err != nil {
			return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
		}
		resp, _ := NewOKResponse(nil)
		return resp
	case CommandGetStatus:
		return okOrError(s.handler.Status())
	case CommandListPlugins:
		return okOrError(s.handler.Plugins())
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func okOrError(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// respond stops reading from c and starts writing resp.
func (s *Server) respond(c *conn, resp *Response) {
	s.sched.RemoveWatchFd(c.handle)
	c.handle = 0

	data, err := resp.Marshal()
	if err != nil {
		s.log.Errorf("Failed to marshal response: %v", err)
		s.closeConn(c)
		return
	}
	c.out = append(data, '\n')
	s.flush(c)
}

// flush writes as much of the response as the socket takes and waits for
// writability for the rest. The connection is closed once done.
func (s *Server) flush(c *conn) {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				if c.handle == 0 {
					h, err := s.sched.AddWatchFd(c.fd, scheduler.EventOut, func(scheduler.Events) { s.flush(c) })
					if err != nil {
						s.closeConn(c)
						return
					}
					c.handle = h
				}
				return
			}
			s.log.Debugf("Failed to send response: %v", err)
			s.closeConn(c)
			return
		}
		c.out = c.out[n:]
	}
	s.closeConn(c)
}

func (s *Server) closeConn(c *conn) {
	if c.handle != 0 {
		s.sched.RemoveWatchFd(c.handle)
		c.handle = 0
	}
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
	delete(s.conns, c)
}

// Stop closes the listening socket and every open connection.
func (s *Server) Stop() {
	for c := range s.conns {
		s.closeConn(c)
	}
	if s.fd >= 0 {
		s.sched.RemoveWatchFd(s.handle)
		unix.Close(s.fd)
		s.fd = -1
		os.Remove(s.socketPath)
	}
}
