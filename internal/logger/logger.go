// Package logger builds the process logger: colored console output in
// development, JSON in production, and an optional rotating JSON log file.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/rkbackend/internal/env"
)

// Options configures New.
type Options struct {
	Level      slog.Leveler
	Output     io.Writer
	LogToFile  bool
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Option configures New.
type Option func(*Options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Leveler) Option {
	return func(o *Options) {
		o.Level = level
	}
}

// WithOutput replaces the console writer.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithLogToFile enables the rotating log file.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) {
		o.LogToFile = enabled
	}
}

// WithLogFile sets the rotating log file path.
func WithLogFile(path string) Option {
	return func(o *Options) {
		o.LogFile = path
	}
}

// WithRotation sets the rotation limits of the log file.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *Options) {
		o.MaxSizeMB = maxSizeMB
		o.MaxBackups = maxBackups
		o.MaxAgeDays = maxAgeDays
	}
}

// New creates a logger for the given environment.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := Options{
		Level:      slog.LevelInfo,
		Output:     os.Stderr,
		LogFile:    "logs/rkbackend.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 28,
	}
	if environment != env.Production {
		o.Level = slog.LevelDebug
	}
	for _, opt := range opts {
		opt(&o)
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.Output, &slog.HandlerOptions{Level: o.Level})
	} else {
		console = tint.NewHandler(o.Output, &tint.Options{
			Level:      o.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    environment == env.Test,
		})
	}

	if !o.LogToFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.Level, AddSource: true}),
	})
}

// ParseLevel parses a level name. Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
