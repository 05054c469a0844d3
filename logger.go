package wgcore

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wgcore/diag"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so the caller skips message formatting entirely.
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

// SetLogger configures the logger for wgcore, its sub-packages and the HAL
// backends underneath. By default nothing is logged.
//
// Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: resource creation and destruction
//   - [slog.LevelInfo]: instance, adapter and device lifecycle
//   - [slog.LevelWarn]: backends that failed to initialize, validation
//     that claimed success with diagnostics pending
//
// Example:
//
//	wgcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	diag.SetLogger(l)
	hal.SetLogger(l)
}

// Logger returns the current logger. The binding layer and the report
// command share it through this function.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
