// Package logging builds the zerolog loggers used across zonesync.
//
// Output goes to stderr (human-readable when stderr is a terminal, JSON
// otherwise) and optionally to a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Level is a zerolog level name (debug, info, warn, error). Default: info.
	Level string
	// File, if set, receives a JSON copy of every log line with rotation.
	File string
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int
	// JSON forces JSON output on stderr even on a terminal.
	JSON bool
}

// New builds the root logger. The returned closer flushes and closes the log
// file, if any; it is never nil.
func New(opts Options, stderr *os.File) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var console io.Writer = stderr
	if !opts.JSON && term.IsTerminal(int(stderr.Fd())) {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

// OrDefault returns l tagged with the component name, or a stderr logger for
// the component if l is nil.
func OrDefault(l *zerolog.Logger, component string) *zerolog.Logger {
	if l == nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()
		return &logger
	}
	logger := l.With().Str("component", component).Logger()
	return &logger
}

// Nop returns a disabled logger, convenient for tests.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
