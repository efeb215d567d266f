package bridge

import (
	"bufio"
	"context"
	"io"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"mtp-bridge/internal/appctx"
	"mtp-bridge/internal/config"
	"mtp-bridge/internal/events"
	"mtp-bridge/internal/execx"
	"mtp-bridge/internal/reconcile"
	"mtp-bridge/internal/watcher"

	"golang.org/x/sync/errgroup"
)

// recoverSleep is how long the poll loop backs off after a tick blew up.
const recoverSleep = 10 * time.Second

type deviceDetector interface {
	Present(ctx context.Context) bool
}

type mountController interface {
	EnsureMounted(ctx context.Context) bool
	EnsureUnmounted(ctx context.Context) bool
}

type syncer interface {
	InitialSync(ctx context.Context, status *reconcile.StatusStore) bool
	Sync(ctx context.Context, d reconcile.Direction, trigger string) bool
}

type watchManager interface {
	Start(ctx context.Context) ([]*watcher.Handle, error)
	Stop()
}

// Bridge is the top-level poll loop: it tracks device presence transitions
// and drives mount, initial sync, the continuous-sync handoff and the change
// watchers. Only transitions trigger work; steady-state ticks re-check
// presence and nothing else, so a failed mount is retried on the next
// unplug/replug rather than on a timer.
type Bridge struct {
	app      *appctx.App
	cfg      *config.Config
	detector deviceDetector
	mounts   mountController
	rec      syncer
	watch    watchManager
	status   *reconcile.StatusStore
	queue    *watcher.Queue
	starter  execx.Starter

	connected    bool
	teardownOnce sync.Once
}

func New(app *appctx.App, cfg *config.Config, detector deviceDetector, mounts mountController,
	rec syncer, watch watchManager, status *reconcile.StatusStore, queue *watcher.Queue,
	starter execx.Starter) *Bridge {
	b := &Bridge{
		app:      app,
		cfg:      cfg,
		detector: detector,
		mounts:   mounts,
		rec:      rec,
		watch:    watch,
		status:   status,
		queue:    queue,
		starter:  starter,
	}
	// Teardown also rides the shutdown event, so a signal stops helpers and
	// unmounts without waiting for the poll loop to unwind.
	if err := app.Bus.Subscribe(events.EventShutdownRequested, func(reason string) {
		b.Teardown()
	}); err != nil {
		app.Log.Warn("failed to subscribe shutdown handler", "err", err)
	}
	return b
}

// Run blocks until ctx is cancelled, then performs full teardown exactly
// once. The reconciliation worker runs beside the poll loop so a mirroring
// pass blocking for its full timeout never stalls presence polling.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.Teardown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.reconcileWorker(gctx)
		return nil
	})
	g.Go(func() error {
		b.pollLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (b *Bridge) pollLoop(ctx context.Context) {
	interval := time.Duration(b.cfg.Sync.SyncInterval) * time.Second
	b.app.Log.Info("bridge started", "pollInterval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			b.app.Log.Info("bridge poll loop stopping")
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick evaluates device presence once. Nothing may escape it: a panic is
// logged with full detail and the loop sleeps before continuing, instead of
// crashing the daemon.
func (b *Bridge) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.app.Log.Error("bridge tick panicked", "panic", r, "stack", string(debug.Stack()))
			select {
			case <-time.After(recoverSleep):
			case <-ctx.Done():
			}
		}
	}()

	present := b.detector.Present(ctx)
	switch {
	case present && !b.connected:
		b.connected = true
		b.onConnect(ctx)
	case !present && b.connected:
		b.connected = false
		b.onDisconnect(ctx)
	}
}

// onConnect runs the DISCONNECTED -> CONNECTED sequence. A failed step logs
// and stops the sequence but leaves the state CONNECTED: mount and initial
// sync only fire on the transition, never on steady-state ticks.
func (b *Bridge) onConnect(ctx context.Context) {
	b.app.Log.Info("device connected")
	b.app.Bus.Publish(events.EventDeviceConnected)

	if !b.mounts.EnsureMounted(ctx) {
		b.app.Log.Error("mount failed, skipping initial sync and watch for this connection")
		return
	}
	if !b.rec.InitialSync(ctx, b.status) {
		b.app.Log.Error("initial sync failed, skipping continuous-sync handoff and watch")
		return
	}
	b.startContinuousSync(ctx)
	if _, err := b.watch.Start(ctx); err != nil {
		b.app.Log.Error("failed to start change watchers", "err", err)
	}
}

func (b *Bridge) onDisconnect(ctx context.Context) {
	b.app.Log.Info("device disconnected")
	b.app.Bus.Publish(events.EventDeviceDisconnected)

	b.watch.Stop()
	if !b.mounts.EnsureUnmounted(ctx) {
		b.app.Log.Warn("unmount failed, mount point left in degraded state")
	}
}

// startContinuousSync hands the reconciled local tree to the external sync
// service when auto-start is configured.
func (b *Bridge) startContinuousSync(ctx context.Context) {
	if !b.cfg.Syncthing.AutoStart {
		return
	}
	if slices.Contains(b.app.Procs.Names(), "continuous-sync") {
		return // already running from a previous connect
	}

	proc, err := b.starter.Start(ctx, io.Discard, b.cfg.Syncthing.Cmd, b.cfg.Syncthing.Args...)
	if err != nil {
		b.app.Log.Error("failed to start continuous-sync service", "cmd", b.cfg.Syncthing.Cmd, "err", err)
		return
	}
	b.app.Procs.Track("continuous-sync", proc.Pid())
	b.app.Log.Info("continuous-sync service started", "cmd", b.cfg.Syncthing.Cmd, "pid", proc.Pid())

	// Drain its output into the debug log so the pipe never fills up.
	go func() {
		scanner := bufio.NewScanner(proc.Stdout())
		for scanner.Scan() {
			b.app.Log.Debug("continuous-sync", "msg", scanner.Text())
		}
		_ = proc.Wait()
	}()
}

// reconcileWorker is the single consumer of watcher requests. Directional
// serialization lives in the reconciler; this loop just drains the coalesced
// queue and stamps the status record after successful passes.
func (b *Bridge) reconcileWorker(ctx context.Context) {
	for {
		d, ok := b.queue.Next(ctx)
		if !ok {
			return
		}
		if b.rec.Sync(ctx, d, reconcile.TriggerWatch) {
			if err := b.status.StampDirection(d, time.Now()); err != nil {
				b.app.Log.Warn("failed to persist status", "err", err)
			}
			b.app.Bus.Publish(events.EventSyncPassCompleted, d.String())
		}
	}
}

// Teardown stops watchers, signals every tracked helper and unmounts, in
// that order, exactly once. It runs on its own context: the shared one is
// already cancelled by the time shutdown gets here.
func (b *Bridge) Teardown() {
	b.teardownOnce.Do(func() {
		b.app.Log.Info("tearing down")
		b.watch.Stop()
		b.app.Procs.StopAll()
		if !b.mounts.EnsureUnmounted(context.Background()) {
			b.app.Log.Warn("teardown unmount failed")
		}
	})
}
