package watcher

import (
	"context"
	"path/filepath"

	"github.com/rjeczalik/notify"
)

// runNative watches src with an in-process recursive watcher instead of the
// external listener. Only offered for the local tree; MTP mounts go through
// the external tool.
func (m *Manager) runNative(ctx context.Context, h *Handle, src string, stop <-chan struct{}) {
	defer close(h.done)

	ch := make(chan notify.EventInfo, 64)
	if err := notify.Watch(filepath.Join(src, "..."), ch, notify.All); err != nil {
		m.log.Error("failed to start native watcher", "direction", h.Direction.String(), "err", err)
		return
	}
	defer notify.Stop(ch)
	m.log.Info("native watcher started", "direction", h.Direction.String(), "path", src)

	seen := newDedup()
	for {
		select {
		case ev := <-ch:
			if seen.duplicate(ev.Path()) {
				continue
			}
			if !m.debounceThenPush(ctx, h.Direction, stop) {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
