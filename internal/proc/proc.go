package proc

import (
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Registry maps logical helper names (e.g. "continuous-sync",
// "watch-phone-to-local") to process ids. It is the only shared record of
// spawned helpers, so all mutation goes through the mutex.
type Registry struct {
	mu    sync.Mutex
	procs map[string]int
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		procs: make(map[string]int),
		log:   log,
	}
}

// Track records a helper process under its logical name. A second Track with
// the same name replaces the previous pid; the old process is assumed gone.
func (r *Registry) Track(name string, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[name] = pid
	r.log.Debug("tracking helper process", "name", name, "pid", pid)
}

// Untrack drops a helper from the registry without signalling it.
func (r *Registry) Untrack(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, name)
}

// Names returns the logical names currently tracked, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll signals SIGTERM to every tracked process group. Helpers fork
// children that must die too, so the group (-pid) is targeted rather than
// the pid itself. Best-effort: failures are logged and the iteration
// continues, and there is no confirmation the processes actually exited.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, pid := range r.procs {
		if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
			r.log.Warn("failed to signal helper process group", "name", name, "pid", pid, "err", err)
			// The group may already be gone; try the pid directly.
			if err := unix.Kill(pid, unix.SIGTERM); err != nil {
				r.log.Debug("helper already exited", "name", name, "pid", pid)
			}
		} else {
			r.log.Info("terminated helper process group", "name", name, "pid", pid)
		}
		delete(r.procs, name)
	}
}
