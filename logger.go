package spheray

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/spheray/internal/software"
	"github.com/gogpu/spheray/render"
	"github.com/gogpu/spheray/scene"
)

// nopHandler discards every record. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for spheray and all its sub-packages.
// By default nothing is logged. Pass nil to restore that.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (sizes, raymarch skips)
//   - [slog.LevelInfo]: lifecycle events (backend chosen, scene loaded)
//   - [slog.LevelWarn]: recoverable problems (GPU fallback, allocation failure)
//   - [slog.LevelError]: device loss
//
// Example:
//
//	spheray.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	scene.SetLogger(l)
	render.SetLogger(l)
	software.SetLogger(l)
	setBackendLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
