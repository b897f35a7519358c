//go:build linux

// Package logger provides the structured slog-based logger used by the
// low-level sandbox packages (engine, cgroup, jail, seccomp, netns). The
// judge and worker packages, adapted from the zap-based reference judge
// engine, log through zap instead — see judge/log.go.
package logger

import (
	"log/slog"
	"os"
)

// LogFormat selects the rendering of log records.
type LogFormat int

const (
	LogText LogFormat = iota
	LogJSON
)

// LoggerOpts configures the global logger.
type LoggerOpts struct {
	LogLevel  slog.Level
	LogFormat LogFormat
}

// Log is the global logger instance, lazily created by CreateLogger.
var Log *slog.Logger

// CreateLogger creates (once) the global structured logger and installs it
// as slog's default.
func CreateLogger(opts *LoggerOpts) *slog.Logger {
	if Log != nil {
		return Log
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: opts.LogLevel}

	if opts.LogFormat == LogText {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	logger := slog.New(handler)
	Log = logger.With(slog.Int("pid", os.Getpid()))
	slog.SetDefault(Log)

	return Log
}
