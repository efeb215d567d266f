package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

// MirrorTimeout is the wall-clock bound on a single mirroring invocation. A
// timeout is a failure, not retried automatically; the next trigger is the
// retry mechanism.
const MirrorTimeout = 300 * time.Second

// Direction of a reconciliation pass.
type Direction int

const (
	DirPhoneToLocal Direction = iota
	DirLocalToPhone
)

func (d Direction) String() string {
	if d == DirPhoneToLocal {
		return "phone-to-local"
	}
	return "local-to-phone"
}

// Trigger origins recorded in the pass history.
const (
	TriggerInitial = "initial"
	TriggerWatch   = "watch"
)

// Reconciler performs one-directional tree mirroring through the external
// mirroring tool. A per-direction mutex guarantees a direction never runs
// concurrently with itself.
type Reconciler struct {
	cfg    *config.Config
	runner execx.Runner
	log    *slog.Logger
	hist   *History // optional; nil disables pass recording

	dirMu [2]sync.Mutex
}

func NewReconciler(cfg *config.Config, runner execx.Runner, hist *History, log *slog.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, runner: runner, hist: hist, log: log}
}

// SyncPhoneToLocal mirrors the phone tree onto the local tree.
func (r *Reconciler) SyncPhoneToLocal(ctx context.Context) bool {
	return r.Sync(ctx, DirPhoneToLocal, TriggerWatch)
}

// SyncLocalToPhone mirrors the local tree onto the phone tree.
func (r *Reconciler) SyncLocalToPhone(ctx context.Context) bool {
	return r.Sync(ctx, DirLocalToPhone, TriggerWatch)
}

// Sync runs one mirroring pass for the given direction. Non-zero exit or
// timeout is failure; the tool's error stream is logged. No checksumming
// beyond what the mirroring tool guarantees.
func (r *Reconciler) Sync(ctx context.Context, d Direction, trigger string) bool {
	r.dirMu[d].Lock()
	defer r.dirMu[d].Unlock()

	src, dst := r.endpoints(d)
	args := r.mirrorArgs(src, dst)

	r.log.Info("reconciliation pass starting", "direction", d.String(), "trigger", trigger)
	started := time.Now()
	res, err := r.runner.Run(ctx, MirrorTimeout, "rsync", args...)
	elapsed := time.Since(started)

	ok := err == nil
	if errors.Is(err, execx.ErrTimeout) {
		r.log.Error("mirroring tool exceeded time bound", "direction", d.String(), "timeout", MirrorTimeout)
	} else if err != nil {
		r.log.Error("mirroring tool failed", "direction", d.String(), "exit", res.ExitCode, "err", err, "stderr", strings.TrimSpace(res.Stderr))
	} else {
		r.log.Info("reconciliation pass finished", "direction", d.String(), "took", elapsed)
	}

	r.record(d, trigger, started, elapsed, ok)
	return ok
}

// mirrorArgs builds the mirroring invocation: archive mode, extraneous
// destination files deleted, one --exclude per non-blank pattern in
// configured order, and trailing-slash endpoints so directory contents are
// mirrored rather than the directories themselves.
func (r *Reconciler) mirrorArgs(src, dst string) []string {
	args := []string{"-a", "--delete"}
	for _, pattern := range r.cfg.Sync.ExcludePatterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		args = append(args, "--exclude", pattern)
	}
	return append(args, withSlash(src), withSlash(dst))
}

func (r *Reconciler) endpoints(d Direction) (src, dst string) {
	if d == DirPhoneToLocal {
		return r.cfg.PhonePath(), r.cfg.Paths.LocalSyncDir
	}
	return r.cfg.Paths.LocalSyncDir, r.cfg.PhonePath()
}

func withSlash(p string) string {
	return strings.TrimRight(p, "/") + "/"
}

func (r *Reconciler) record(d Direction, trigger string, started time.Time, took time.Duration, ok bool) {
	if r.hist == nil {
		return
	}
	err := r.hist.Record(PassRecord{
		Direction:  d.String(),
		Trigger:    trigger,
		StartedAt:  started,
		DurationMS: took.Milliseconds(),
		Success:    ok,
	})
	if err != nil {
		r.log.Debug("failed to record pass history", "err", err)
	}
}
