package watcher

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"mtp-bridge/internal/appctx"
	"mtp-bridge/internal/config"
	"mtp-bridge/internal/events"
	"mtp-bridge/internal/execx"
	"mtp-bridge/internal/reconcile"

	"github.com/cespare/xxhash/v2"
)

// DebounceWindow is how long a watch goroutine waits after seeing an event
// line before requesting a pass, letting a burst of related events settle.
const DebounceWindow = 2 * time.Second

const stopGrace = DebounceWindow + time.Second

// Handle is one running watch direction, alive for the lifetime of a mount.
// proc is assigned before the read goroutine starts and never written again;
// it stays nil for the native backend.
type Handle struct {
	Direction reconcile.Direction

	done chan struct{}
	proc execx.Proc
}

// Manager runs one change watcher per enabled direction and feeds the
// coalescing request queue. Start/Stop pair up with mount/unmount cycles.
type Manager struct {
	app     *appctx.App
	cfg     *config.Config
	starter execx.Starter
	queue   *Queue
	log     *slog.Logger

	debounce time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	handles []*Handle
}

func NewManager(app *appctx.App, cfg *config.Config, starter execx.Starter, queue *Queue) *Manager {
	return &Manager{
		app:      app,
		cfg:      cfg,
		starter:  starter,
		queue:    queue,
		log:      app.Log.With("component", "watcher"),
		debounce: DebounceWindow,
	}
}

// Start launches the watch goroutines: phone-to-local when the phone path
// exists at watch-start, local-to-phone always. Returns the live handles.
func (m *Manager) Start(ctx context.Context) ([]*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return m.handles, nil // already watching
	}
	m.stopCh = make(chan struct{})
	m.handles = nil

	if _, err := os.Stat(m.cfg.PhonePath()); err == nil {
		m.launch(ctx, reconcile.DirPhoneToLocal, m.cfg.PhonePath(), false)
	} else {
		m.log.Warn("phone path missing at watch-start, skipping phone-to-local watch", "path", m.cfg.PhonePath(), "err", err)
	}

	native := m.cfg.Sync.WatchBackend == config.BackendNative
	m.launch(ctx, reconcile.DirLocalToPhone, m.cfg.Paths.LocalSyncDir, native)

	m.app.Bus.Publish(events.EventWatcherStarted, len(m.handles))
	return m.handles, nil
}

// launch runs under m.mu. The external listener starts here, synchronously,
// so the handle carries its process before Start returns.
func (m *Manager) launch(ctx context.Context, d reconcile.Direction, src string, native bool) {
	h := &Handle{Direction: d, done: make(chan struct{})}
	stop := m.stopCh
	if native {
		m.handles = append(m.handles, h)
		go m.runNative(ctx, h, src, stop)
		return
	}

	name := "watch-" + d.String()
	proc, err := m.starter.Start(ctx, logWriter{m.log, name},
		"inotifywait", "-m", "-r", "-q",
		"-e", "modify", "-e", "create", "-e", "delete", "-e", "move",
		src)
	if err != nil {
		m.log.Error("failed to start event listener", "direction", d.String(), "err", err)
		return
	}
	h.proc = proc
	m.handles = append(m.handles, h)
	m.app.Procs.Track(name, proc.Pid())
	m.log.Info("event listener started", "direction", d.String(), "path", src, "pid", proc.Pid())

	go m.readEvents(ctx, h, name, stop)
}

// Stop raises the stop flag and asks the external listeners to terminate.
// It waits up to one debounce window per handle for the read loops to
// observe the flag and exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	handles := m.handles
	m.stopCh = nil
	m.handles = nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)

	for _, h := range handles {
		if h.proc != nil {
			if err := h.proc.Stop(); err != nil {
				m.log.Debug("listener already gone", "direction", h.Direction.String(), "err", err)
			}
		}
		select {
		case <-h.done:
		case <-time.After(stopGrace):
			m.log.Warn("watch goroutine did not stop in time", "direction", h.Direction.String())
		}
	}
	m.app.Bus.Publish(events.EventWatcherStopped)
}

// readEvents reads the listener's output line by line. Each non-empty line
// is debounced and then turned into one coalesced reconciliation request.
func (m *Manager) readEvents(ctx context.Context, h *Handle, name string, stop <-chan struct{}) {
	defer close(h.done)
	defer func() {
		_ = h.proc.Stop()
		_ = h.proc.Wait()
		m.app.Procs.Untrack(name)
	}()

	seen := newDedup()
	scanner := bufio.NewScanner(h.proc.Stdout())
	for scanner.Scan() {
		if stopped(stop) {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if seen.duplicate(line) {
			continue
		}
		if !m.debounceThenPush(ctx, h.Direction, stop) {
			return
		}
	}
	// Scanner exits on listener EOF: either the process died or Stop killed it.
	if !stopped(stop) {
		m.log.Warn("event listener exited unexpectedly", "direction", h.Direction.String())
	}
}

// debounceThenPush sleeps the debounce window, then requests exactly one
// pass. Returns false when the stop flag was raised during the sleep.
func (m *Manager) debounceThenPush(ctx context.Context, d reconcile.Direction, stop <-chan struct{}) bool {
	select {
	case <-time.After(m.debounce):
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
	if m.queue.Push(d) {
		m.log.Debug("reconciliation requested", "direction", d.String())
	}
	return true
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// dedup drops event lines identical to one seen within the debounce window,
// so a tool that repeats the same path in a burst counts once.
type dedup struct {
	seen map[uint64]time.Time
}

func newDedup() *dedup {
	return &dedup{seen: make(map[uint64]time.Time)}
}

func (d *dedup) duplicate(line string) bool {
	now := time.Now()
	key := xxhash.Sum64String(line)
	if last, ok := d.seen[key]; ok && now.Sub(last) < DebounceWindow {
		return true
	}
	// Trim stale entries before the map grows without bound.
	if len(d.seen) > 1024 {
		for k, t := range d.seen {
			if now.Sub(t) >= DebounceWindow {
				delete(d.seen, k)
			}
		}
	}
	d.seen[key] = now
	return false
}

// logWriter routes helper stderr into the log stream.
type logWriter struct {
	log  *slog.Logger
	name string
}

func (w logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.log.Debug("listener output", "name", w.name, "msg", msg)
	}
	return len(p), nil
}

var _ io.Writer = logWriter{}
