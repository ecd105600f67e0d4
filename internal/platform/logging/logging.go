// Package logging builds the zerolog loggers shared by every vvebeheer process.
//
// Services construct one root logger at startup with New, attach it to the
// run context with WithLogger, and read it back anywhere below with
// FromContext. Components that do not receive a context log through Default.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `env:"VVEBEHEER_LOG_LEVEL" envDefault:"info"`
	// Format is json, console or auto (console when stderr is a terminal).
	Format string `env:"VVEBEHEER_LOG_FORMAT" envDefault:"auto"`
	// NoColor disables ANSI colors in console output.
	NoColor bool `env:"NO_COLOR"`
}

type contextKey struct{}

var (
	defaultMu     sync.RWMutex
	defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// New builds a logger writing to stderr tagged with the service name.
func New(cfg Config, service string) zerolog.Logger {
	return NewWithWriter(cfg, service, os.Stderr)
}

// NewWithWriter builds a logger writing to out.
func NewWithWriter(cfg Config, service string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	writer := out
	if useConsole(cfg.Format, out) {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.NoColor}
	}
	logCtx := zerolog.New(writer).Level(level).With().Timestamp()
	if service = strings.TrimSpace(service); service != "" {
		logCtx = logCtx.Str("service", service)
	}
	if level <= zerolog.DebugLevel {
		logCtx = logCtx.Caller()
	}
	return logCtx.Logger()
}

// ParseLevel converts a level name to a zerolog level, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "pretty":
		return true
	case "json":
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd())
}

// SetDefault replaces the process-wide fallback logger.
func SetDefault(logger zerolog.Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// Default returns the process-wide fallback logger.
func Default() *zerolog.Logger {
	defaultMu.RLock()
	logger := defaultLogger
	defaultMu.RUnlock()
	return &logger
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, &logger)
}

// FromContext returns the logger stored in ctx or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(contextKey{}).(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// With returns ctx carrying a child logger with one extra string field.
func With(ctx context.Context, key, value string) context.Context {
	child := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, child)
}
