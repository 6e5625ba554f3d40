package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Level is the severity of a log message. Lower values are more severe.
type Level int

const (
	LevelFatal Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

// slogFatal sits above slog.LevelError so handlers order it correctly.
const slogFatal = slog.LevelError + 4

// String returns the human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelFatal:
		return "Fatal"
	case LevelError:
		return "Error"
	case LevelWarn:
		return "Warn"
	case LevelInfo:
		return "Info"
	case LevelDebug:
		return "Debug"
	default:
		return "Unknown"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelFatal:
		return slogFatal
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return LevelFatal, nil
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Options configures a Logger.
type Options struct {
	// Level is the most verbose level that is emitted.
	Level Level
	// Writer receives formatted records. Defaults to os.Stderr.
	Writer io.Writer
	// JSON forces the JSON handler. When false the handler is chosen by
	// whether Writer is a terminal.
	JSON bool
	// Exit is called after a Fatal record is written. Defaults to os.Exit.
	Exit func(code int)
}

// Logger is a leveled message sink keyed by component name.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
	exit  func(int)
}

// New creates a Logger backed by log/slog.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	lv := new(slog.LevelVar)
	lv.Set(opts.Level.slogLevel())

	hopts := &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= slogFatal {
					return slog.String(slog.LevelKey, "FATAL")
				}
			}
			return a
		},
	}

	var h slog.Handler
	if opts.JSON || !isTerminal(w) {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	return &Logger{
		slog:  slog.New(h),
		level: lv,
		exit:  exit,
	}
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return New(Options{Writer: io.Discard, JSON: true, Exit: func(int) {}})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// SetLevel changes the verbosity threshold at runtime.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

// Enabled reports whether records at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.slog.Enabled(context.Background(), level.slogLevel())
}

// Log writes a formatted message for component at level. A Fatal message
// terminates the process through the configured exit hook.
func (l *Logger) Log(component string, level Level, format string, args ...any) {
	if l == nil {
		return
	}
	if l.Enabled(level) {
		l.slog.Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, args...),
			"component", component)
	}
	if level == LevelFatal {
		l.exit(1)
	}
}

// Slog exposes the underlying structured logger for packages that log with
// key/value attributes.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// For returns a logger bound to a component name.
func (l *Logger) For(component string) *Component {
	return &Component{logger: l, name: component}
}

// Component is a Logger bound to one component name.
type Component struct {
	logger *Logger
	name   string
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

func (c *Component) Fatalf(format string, args ...any) {
	c.logger.Log(c.name, LevelFatal, format, args...)
}

func (c *Component) Errorf(format string, args ...any) {
	c.logger.Log(c.name, LevelError, format, args...)
}

func (c *Component) Warnf(format string, args ...any) {
	c.logger.Log(c.name, LevelWarn, format, args...)
}

func (c *Component) Infof(format string, args ...any) {
	c.logger.Log(c.name, LevelInfo, format, args...)
}

func (c *Component) Debugf(format string, args ...any) {
	c.logger.Log(c.name, LevelDebug, format, args...)
}
