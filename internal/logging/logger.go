// Package logging provides structured logging for the NoteHub client.
// It is a thin layer over zerolog so components receive a scoped logger
// instead of reaching for a process-wide one.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with component scoping.
type Logger struct {
	zl zerolog.Logger
}

// New creates a Logger writing JSON lines to out at the given minimum level.
// Unknown level strings fall back to info.
func New(out io.Writer, level string) Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger {
	return Logger{zl: zerolog.Nop()}
}

// Component returns a sub-logger tagged with a component name.
func (l Logger) Component(name string) Logger {
	return Logger{zl: l.zl.With().Str("component", name).Logger()}
}

// With returns a sub-logger carrying an extra key/value pair.
func (l Logger) With(key string, value interface{}) Logger {
	return Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Debug logs a debug message.
func (l Logger) Debug(message string, fields ...map[string]interface{}) {
	l.emit(l.zl.Debug(), message, nil, fields)
}

// Info logs an info message.
func (l Logger) Info(message string, fields ...map[string]interface{}) {
	l.emit(l.zl.Info(), message, nil, fields)
}

// Warn logs a warning message.
func (l Logger) Warn(message string, fields ...map[string]interface{}) {
	l.emit(l.zl.Warn(), message, nil, fields)
}

// WarnErr logs a warning with an attached error.
func (l Logger) WarnErr(message string, err error, fields ...map[string]interface{}) {
	l.emit(l.zl.Warn(), message, err, fields)
}

// Error logs an error message.
func (l Logger) Error(message string, err error, fields ...map[string]interface{}) {
	l.emit(l.zl.Error(), message, err, fields)
}

func (l Logger) emit(ev *zerolog.Event, message string, err error, fields []map[string]interface{}) {
	if err != nil {
		ev = ev.Err(err)
	}
	for _, m := range fields {
		for k, v := range m {
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(message)
}
