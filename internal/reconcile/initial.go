package reconcile

import (
	"context"
	"os"
	"time"
)

// InitialSync runs once per device-connect transition. It compares the
// whole-tree modification times of the two sides with a single
// directory-level stat each and runs the direction(s) the staleness
// heuristic picks. Prior status stamps survive untouched until a pass
// succeeds. Returns false if any attempted direction failed.
func (r *Reconciler) InitialSync(ctx context.Context, status *StatusStore) bool {
	phoneMod, phoneErr := treeModTime(r.cfg.PhonePath())
	localMod, localErr := treeModTime(r.cfg.Paths.LocalSyncDir)

	var runPhone, runLocal bool
	switch {
	case phoneErr != nil || localErr != nil:
		// Ambiguous: force every enabled direction. The push direction still
		// honors the two-way flag; one-way setups never write to the phone.
		r.log.Warn("tree stat failed, running all enabled directions",
			"phoneErr", phoneErr, "localErr", localErr)
		runPhone = true
		runLocal = r.cfg.Sync.TwoWaySync
	case phoneMod.After(localMod):
		r.log.Info("phone tree is newer", "phone", phoneMod, "local", localMod)
		runPhone = true
	case localMod.After(phoneMod):
		r.log.Info("local tree is newer", "phone", phoneMod, "local", localMod)
		runLocal = r.cfg.Sync.TwoWaySync
	default:
		r.log.Info("trees have equal modification times, nothing to do")
	}

	if !runPhone && !runLocal {
		return true
	}

	attempted, succeeded := 0, 0
	if runPhone {
		attempted++
		if r.Sync(ctx, DirPhoneToLocal, TriggerInitial) {
			succeeded++
			now := time.Now()
			if err := status.Update(func(st *SyncStatus) { st.LastSyncFromPhone = &now }); err != nil {
				r.log.Warn("failed to persist status", "err", err)
			}
		}
	}
	if runLocal {
		attempted++
		if r.Sync(ctx, DirLocalToPhone, TriggerInitial) {
			succeeded++
			now := time.Now()
			if err := status.Update(func(st *SyncStatus) { st.LastSyncToPhone = &now }); err != nil {
				r.log.Warn("failed to persist status", "err", err)
			}
		}
	}

	if succeeded == attempted {
		now := time.Now()
		if err := status.Update(func(st *SyncStatus) { st.LastFullSync = &now }); err != nil {
			r.log.Warn("failed to persist status", "err", err)
		}
		return true
	}
	return false
}

// treeModTime is a single directory-level stat, not a recursive walk. Good
// enough to pick an initial direction without per-file diffing.
func treeModTime(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
