// Package logging builds the process-wide structured logger: JSON records
// to the configured log file, human text to stderr, using a multi-handler
// log/slog setup modeled on majorcontext-moat/internal/log. It adds the
// spec's six-level scheme (error, warn, info, debug, trace, off) on top of
// slog's four built-in levels by defining trace below Debug and treating
// off as "no handler is ever enabled", and honors the same TATTOY_LOG /
// RUST_LOG / ENABLE_TOKIO_CONSOLE environment toggles the original reads,
// grounded on run.rs's setup_logging.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LevelTrace sits below slog.LevelDebug so trace records are strictly
// noisier than debug ones, matching the spec's five active levels plus off.
const LevelTrace slog.Level = slog.LevelDebug - 4

// levelOff is a sentinel above any level slog ever emits at, used to build
// a handler that reports every record as disabled.
const levelOff slog.Level = slog.LevelError + 100

// ParseLevel maps one of the spec's six level names to a slog.Level, plus
// whether the name was "off" (which callers can't express as a plain
// slog.Level since slog has no "never" level of its own).
func ParseLevel(name string) (level slog.Level, off bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return slog.LevelError, false, nil
	case "warn", "warning":
		return slog.LevelWarn, false, nil
	case "info":
		return slog.LevelInfo, false, nil
	case "debug":
		return slog.LevelDebug, false, nil
	case "trace":
		return LevelTrace, false, nil
	case "off", "":
		return levelOff, true, nil
	default:
		return 0, false, fmt.Errorf("unknown log level %q", name)
	}
}

// Options configures Init.
type Options struct {
	// Level is one of error/warn/info/debug/trace/off, already resolved
	// from config + CLI override by the caller.
	Level string
	// Path is the log file's full path (its directory is created if
	// missing). Empty disables file logging.
	Path string
	// Stderr receives human-readable text output; defaults to os.Stderr.
	Stderr io.Writer
}

var (
	logger    *slog.Logger
	logFile   *os.File
	isLogging bool
)

// IsLogging reports whether Init actually attached a file handler (Close
// clears it again), mirroring shared_state.rs's is_logging flag that the
// notifications overlay surfaces to the user.
func IsLogging() bool { return isLogging }

// Init builds the global logger from opts and TATTOY_LOG/RUST_LOG. Per
// run.rs's setup_logging: if TATTOY_LOG is set, its value is honored
// verbatim (and mirrored into RUST_LOG-style env var for any
// subprocess plugins that read it) regardless of the configured level;
// otherwise a non-empty RUST_LOG is honored, and failing both the
// configured level governs. "off" with no manual override disables file
// logging entirely.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level, off, err := resolveLevel(opts.Level)
	if err != nil {
		return err
	}

	var handlers []slog.Handler
	handlers = append(handlers, slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       maxLevel(level, slog.LevelWarn),
		ReplaceAttr: replaceTraceLevel,
	}))

	if !off && opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.Create(opts.Path)
		if err != nil {
			return fmt.Errorf("creating log file: %w", err)
		}
		logFile = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceTraceLevel,
		}))
		isLogging = true
	}

	if enableTokioConsole() {
		// The Tokio console is a Rust-async-runtime-specific debugger with
		// no Go equivalent (Go has no userspace task scheduler to inspect);
		// honoring the env var as a no-op keeps config/CLI compatibility
		// with the original tool without pretending to support it.
		handlers = append(handlers, discardHandler{})
	}

	logger = slog.New(&multiHandler{handlers: handlers})
	slog.SetDefault(logger)
	return nil
}

// resolveLevel applies the TATTOY_LOG override (falling back to RUST_LOG,
// then configuredLevel) the way setup_logging does.
func resolveLevel(configuredLevel string) (slog.Level, bool, error) {
	if v, ok := os.LookupEnv("TATTOY_LOG"); ok && v != "" {
		os.Setenv("RUST_LOG", v)
		return ParseLevel(v)
	}
	if v, ok := os.LookupEnv("RUST_LOG"); ok && v != "" {
		return ParseLevel(v)
	}
	return ParseLevel(configuredLevel)
}

func enableTokioConsole() bool {
	return os.Getenv("ENABLE_TOKIO_CONSOLE") == "1"
}

func maxLevel(a, b slog.Level) slog.Level {
	if a > b {
		return a
	}
	return b
}

// replaceTraceLevel renders LevelTrace as "TRACE" instead of slog's default
// "DEBUG-4".
func replaceTraceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Close closes the log file, if one was opened.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	isLogging = false
}

// Trace logs at LevelTrace, the level below Debug that slog has no
// dedicated method for.
func Trace(msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// With returns a logger carrying additional structured attributes.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// SetOutput redirects the logger to w for tests.
func SetOutput(w io.Writer) {
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LevelTrace}))
	slog.SetDefault(logger)
}

// multiHandler fans a record out to every handler that's enabled for it,
// grounded on majorcontext-moat/internal/log's multiHandler.
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

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// discardHandler is a slog.Handler that is never enabled; used to document
// the ENABLE_TOKIO_CONSOLE no-op hook as an explicit handler slot rather
// than a silently ignored env var.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

func init() {
	logger = slog.Default()
}
