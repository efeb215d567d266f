package appctx

import (
	"context"
	"log/slog"
	"sync/atomic"

	"mtp-bridge/internal/events"
	"mtp-bridge/internal/proc"

	"github.com/asaskevich/EventBus"
)

// App is the runtime context object passed to every component. It owns the
// structured logger, the event bus, the process registry and the
// cancellation token, so no component reaches for ambient globals.
type App struct {
	Log   *slog.Logger
	Bus   EventBus.Bus
	Procs *proc.Registry

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

func New(parent context.Context, log *slog.Logger) *App {
	ctx, cancel := context.WithCancel(parent)
	return &App{
		Log:    log,
		Bus:    events.New(),
		Procs:  proc.NewRegistry(log),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the cancellation context shared by all components.
func (a *App) Context() context.Context { return a.ctx }

// Shutdown requests graceful teardown. Idempotent; the first call publishes
// the shutdown event and cancels the shared context.
func (a *App) Shutdown(reason string) {
	if a.stopping.Swap(true) {
		return
	}
	a.Log.Info("shutdown requested", "reason", reason)
	a.Bus.Publish(events.EventShutdownRequested, reason)
	a.cancel()
}

// Stopping reports whether shutdown has been requested.
func (a *App) Stopping() bool { return a.stopping.Load() }
