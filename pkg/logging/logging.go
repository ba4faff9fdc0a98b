// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package logging provides the application's global structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu            sync.Mutex
	once          sync.Once
	defaultLogger *slog.Logger
)

// ForTestsOnlyResetLogger resets the sync.Once guard so tests can
// re-initialize the global logger. Never call this in production code.
func ForTestsOnlyResetLogger() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	defaultLogger = nil
}

// Init initializes the global logger with the given level and output. It is
// effective only on the first call; later calls are no-ops.
//
// format is optional and selects between "json" and "text" handlers,
// defaulting to "text".
func Init(level slog.Level, output io.Writer, format ...string) {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		fmtStr := "text"
		if len(format) > 0 {
			fmtStr = format[0]
		}

		opts := &slog.HandlerOptions{Level: level}

		var handler slog.Handler
		if fmtStr == "json" {
			handler = slog.NewJSONHandler(output, opts)
		} else {
			handler = slog.NewTextHandler(output, opts)
		}
		defaultLogger = slog.New(handler)
	})
}

// GetLogger returns the shared global logger. If Init has not been called it
// initializes the logger with defaults: text output to stderr at info level.
func GetLogger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {
		defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	})
	return defaultLogger
}

// ParseLevel converts a config log level string to a slog.Level. Unknown
// values fall back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
