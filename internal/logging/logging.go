// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps log/slog with the structured, component-scoped
// logger used throughout the daemon.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level mirrors slog.Level so callers never need to import log/slog directly.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config controls how a Logger renders output.
type Config struct {
	Level  Level
	JSON   bool
	Output io.Writer
}

// DefaultConfig returns the daemon's default logging configuration:
// text output at Info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		JSON:   false,
		Output: os.Stderr,
	}
}

// Logger is a slog.Logger with a component label carried along for
// WithComponent scoping and a WithError convenience helper.
type Logger struct {
	base      *slog.Logger
	component string
}

// New constructs a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &Logger{base: slog.New(handler)}
}

// WithComponent returns a child Logger tagging every record with
// component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		base:      l.base.With("component", name),
		component: name,
	}
}

// WithError returns a child Logger with err attached as the "error" attribute.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{base: l.base.With("error", err.Error()), component: l.component}
}

// With returns a child Logger with the given key/value pairs attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...), component: l.component}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Log(context.Background(), LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Log(context.Background(), LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Log(context.Background(), LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Log(context.Background(), LevelError, msg, args...) }

var (
	defaultLogger atomic.Pointer[Logger]
	defaultOnce   sync.Once
)

func ensureDefault() *Logger {
	defaultOnce.Do(func() {
		defaultLogger.Store(New(DefaultConfig()))
	})
	return defaultLogger.Load()
}

// SetDefault installs l as the package-level default logger used by the
// free functions below and by WithComponent.
func SetDefault(l *Logger) {
	defaultOnce.Do(func() {})
	defaultLogger.Store(l)
}

// WithComponent returns a component-scoped Logger derived from the
// package default.
func WithComponent(name string) *Logger {
	return ensureDefault().WithComponent(name)
}

func Debug(msg string, args ...any) { ensureDefault().Debug(msg, args...) }
func Info(msg string, args ...any)  { ensureDefault().Info(msg, args...) }
func Warn(msg string, args ...any)  { ensureDefault().Warn(msg, args...) }
func Error(msg string, args ...any) { ensureDefault().Error(msg, args...) }
