// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the process wide zerolog logger.
//
// Initialise once at startup with Init, then retrieve anywhere with Get.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TimeFormat matches the timestamp prefix of console output.
const TimeFormat = "2006-01-02 15:04:05"

// Options controls logger behaviour at initialisation time.
type Options struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string
	// Pretty enables human-friendly console output instead of JSON lines.
	Pretty bool
	// Output is the writer logs are sent to. Defaults to os.Stderr.
	Output io.Writer
}

var (
	mu       sync.Mutex
	once     sync.Once
	instance = zerolog.Nop()
)

// Init initialises the process logger. Only the first call has any effect.
func Init(opts Options) zerolog.Logger {
	once.Do(func() {
		l := New(opts)

		mu.Lock()
		instance = l
		mu.Unlock()
	})

	return Get()
}

// New builds a logger without touching the process logger.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: TimeFormat}
	}

	return zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
}

// Get returns the process logger, a no-op logger before Init.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	return instance
}

// Reset tears down the process logger so that the next Init call rebuilds
// it. Intended for use in tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	once = sync.Once{}
	instance = zerolog.Nop()
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
