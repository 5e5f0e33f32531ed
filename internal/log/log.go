// Package log is the process-wide structured logger. Records fan out to
// stderr (a console handler on terminals, text or JSON otherwise) and,
// when configured, to daily JSONL debug files.
//
// Attestations are public, but nothing that identifies the device or the
// boot is ever attached to records.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"hermannm.dev/devlog"
)

var logger *slog.Logger
var fileWriter *FileWriter

// Options configures the logger.
type Options struct {
	// Verbose enables debug and info output on stderr.
	Verbose bool
	// JSONFormat uses JSON on stderr, even on a terminal.
	JSONFormat bool
	// Interactive keeps stderr to warnings and errors regardless of
	// Verbose, for when the terminal is in raw mode.
	Interactive bool
	// DebugDir receives debug log files. Empty disables file logging.
	DebugDir string
	// RetentionDays is how many days of debug files to keep (0 keeps all).
	RetentionDays int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Init initializes the global logger with the given options.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	if opts.Verbose && !opts.Interactive {
		level.Set(slog.LevelDebug)
	}

	var handlers []slog.Handler
	switch {
	case opts.JSONFormat:
		handlers = append(handlers, slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	case isTerminal(stderr):
		handlers = append(handlers, devlog.NewHandler(stderr, &devlog.Options{Level: level}))
	default:
		handlers = append(handlers, slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	}

	Close()
	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			Cleanup(opts.DebugDir, opts.RetentionDays)
		}
		fw, err := NewFileWriter(opts.DebugDir)
		if err != nil {
			return err
		}
		fileWriter = fw
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	logger = slog.New(&multiHandler{handlers: handlers})
	slog.SetDefault(logger)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Close closes the debug file if one is open.
func Close() {
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

// multiHandler fans records out to every handler that accepts the level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every enabled handler, even after one fails.
func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// With returns a logger with additional attributes.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// SetOutput sends every level to w as text (for testing).
func SetOutput(w io.Writer) {
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

func init() {
	logger = slog.Default()
}
