package rhi

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// loggedBackend counts the live devices that share one backend.
type loggedBackend struct {
	setter  loggerSetter
	devices int
}

var (
	backendsMu sync.Mutex
	backends   []*loggedBackend
)

// SetLogger configures the logger for rhi and every backend that has been
// handed to NewDevice. By default rhi produces no log output.
//
// Log levels used by rhi:
//   - [slog.LevelDebug]: cache misses, specialization compiles, layout creation
//   - [slog.LevelInfo]: device creation and teardown
//   - [slog.LevelWarn]: specialization widened to the dynamic type, teardown errors
//
// Pass nil to restore the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	backendsMu.Lock()
	defer backendsMu.Unlock()
	for _, b := range backends {
		b.setter.SetLogger(l)
	}
}

// Logger returns the current logger used by rhi.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// propagateLogger passes the current logger to a backend if it accepts one,
// and remembers it for later SetLogger calls until every device using it has
// been torn down.
func propagateLogger(b Backend) {
	ls, ok := b.(loggerSetter)
	if !ok {
		return
	}
	ls.SetLogger(Logger())

	backendsMu.Lock()
	defer backendsMu.Unlock()
	for _, known := range backends {
		if known.setter == ls {
			known.devices++
			return
		}
	}
	backends = append(backends, &loggedBackend{setter: ls, devices: 1})
}

// forgetLogger releases one device's use of a backend. The backend leaves
// logger propagation when no live device uses it.
func forgetLogger(b Backend) {
	ls, ok := b.(loggerSetter)
	if !ok {
		return
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for i, known := range backends {
		if known.setter != ls {
			continue
		}
		if known.devices--; known.devices == 0 {
			backends = append(backends[:i], backends[i+1:]...)
		}
		return
	}
}
