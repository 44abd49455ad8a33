// Package log is a thin facade over zerolog. It keeps call sites free of
// zerolog's builder API and lets the CLI switch between pretty console
// output and plain JSON at startup.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Re-exported levels so callers don't need to import zerolog directly.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// InitLogger configures the global logger. When pretty is true, output is
// rendered through zerolog's console writer instead of raw JSON.
func InitLogger(w io.Writer, level zerolog.Level, pretty bool) {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// Entry accumulates structured fields before emitting a log line.
type Entry struct {
	ctx zerolog.Context
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithField starts an entry with a single structured field.
func WithField(key string, value interface{}) *Entry {
	return &Entry{ctx: current().With().Interface(key, value)}
}

// WithFields starts an entry with multiple structured fields.
func WithFields(fields map[string]interface{}) *Entry {
	ctx := current().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Entry{ctx: ctx}
}

// WithError starts an entry carrying an error field.
func WithError(err error) *Entry {
	return &Entry{ctx: current().With().Err(err)}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.ctx = e.ctx.Interface(key, value)
	return e
}

func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	for k, v := range fields {
		e.ctx = e.ctx.Interface(k, v)
	}
	return e
}

func (e *Entry) WithError(err error) *Entry {
	e.ctx = e.ctx.Err(err)
	return e
}

func (e *Entry) Debug(msg string) { l := e.ctx.Logger(); l.Debug().Msg(msg) }
func (e *Entry) Info(msg string)  { l := e.ctx.Logger(); l.Info().Msg(msg) }
func (e *Entry) Warn(msg string)  { l := e.ctx.Logger(); l.Warn().Msg(msg) }
func (e *Entry) Error(msg string) { l := e.ctx.Logger(); l.Error().Msg(msg) }

func Debug(msg string) { l := current(); l.Debug().Msg(msg) }
func Info(msg string)  { l := current(); l.Info().Msg(msg) }
func Warn(msg string)  { l := current(); l.Warn().Msg(msg) }
func Error(msg string) { l := current(); l.Error().Msg(msg) }
