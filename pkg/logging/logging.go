// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the zerolog loggers the rest of the program uses.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger at the named level. With console set the output is
// the human-readable console writer on stderr; otherwise JSON lines, which
// is what service mode wants. Unknown level strings fall back to info.
func New(level string, console bool) zerolog.Logger {
	return NewWriter(os.Stderr, level, console)
}

// NewWriter is New with an explicit sink, for tests.
func NewWriter(w io.Writer, level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
