package mount

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

const (
	mountTimeout   = 60 * time.Second
	toolTimeout    = 10 * time.Second
	stabilizeDelay = 2 * time.Second
)

// Desktop helpers that grab the MTP endpoint as soon as a phone appears and
// make the FUSE mount fail with "device busy". Stopped best-effort before
// mounting.
var interferingProcesses = []string{
	"gvfs-mtp-volume-monitor",
	"gvfs-gphoto2-volume-monitor",
	"gvfsd-mtp",
}

// Controller mounts and unmounts the device filesystem view. Mount state is
// never cached: external tools may mount or unmount behind our back, so
// every decision starts from a live mount-point test.
type Controller struct {
	cfg    *config.Config
	runner execx.Runner
	log    *slog.Logger

	stabilize time.Duration
}

func NewController(cfg *config.Config, runner execx.Runner, log *slog.Logger) *Controller {
	return &Controller{cfg: cfg, runner: runner, log: log, stabilize: stabilizeDelay}
}

// IsMounted queries the OS mount table for the configured mount point. Any
// failure to run the test counts as "not mounted" — failing toward a remount
// is safer than silently skipping one.
func (c *Controller) IsMounted(ctx context.Context) bool {
	_, err := c.runner.Run(ctx, toolTimeout, "mountpoint", "-q", c.cfg.Paths.MountPoint)
	return err == nil
}

// EnsureMounted mounts the device filesystem view if it is not already
// mounted, then verifies the phone-side subtree exists, creating it if
// missing. Returns false on tool failure or timeout.
func (c *Controller) EnsureMounted(ctx context.Context) bool {
	if c.IsMounted(ctx) {
		c.log.Debug("mount point already mounted", "path", c.cfg.Paths.MountPoint)
		return true
	}

	if err := os.MkdirAll(c.cfg.Paths.MountPoint, 0755); err != nil {
		c.log.Error("cannot create mount point", "path", c.cfg.Paths.MountPoint, "err", err)
		return false
	}

	c.stopInterfering(ctx)

	res, err := c.runner.Run(ctx, mountTimeout, "jmtpfs", c.cfg.Paths.MountPoint)
	if err != nil {
		if errors.Is(err, execx.ErrTimeout) {
			c.log.Error("mount tool timed out", "path", c.cfg.Paths.MountPoint)
		} else {
			c.log.Error("mount tool failed", "path", c.cfg.Paths.MountPoint, "err", err, "stderr", strings.TrimSpace(res.Stderr))
		}
		return false
	}

	// Give the FUSE layer a moment before touching the tree; early stats on
	// a fresh MTP mount come back empty.
	select {
	case <-time.After(c.stabilize):
	case <-ctx.Done():
		return false
	}

	phonePath := c.cfg.PhonePath()
	if _, err := os.Stat(phonePath); os.IsNotExist(err) {
		c.log.Info("phone directory missing on device, creating", "path", phonePath)
		if err := os.MkdirAll(phonePath, 0755); err != nil {
			c.log.Error("cannot create phone directory", "path", phonePath, "err", err)
			return false
		}
	} else if err != nil {
		c.log.Error("cannot stat phone directory", "path", phonePath, "err", err)
		return false
	}

	c.log.Info("device mounted", "path", c.cfg.Paths.MountPoint)
	return true
}

// EnsureUnmounted unmounts the mount point if mounted. The primary unmount
// tool is tried first, then the fallback. Errors never propagate to the
// caller; both failing yields false plus a logged error.
func (c *Controller) EnsureUnmounted(ctx context.Context) bool {
	if !c.IsMounted(ctx) {
		return true
	}

	res, err := c.runner.Run(ctx, toolTimeout, "fusermount", "-u", c.cfg.Paths.MountPoint)
	if err == nil {
		c.log.Info("device unmounted", "path", c.cfg.Paths.MountPoint)
		c.logResidualMount()
		return true
	}
	c.log.Warn("primary unmount failed, trying fallback", "err", err, "stderr", strings.TrimSpace(res.Stderr))

	res, err = c.runner.Run(ctx, toolTimeout, "umount", "-l", c.cfg.Paths.MountPoint)
	if err == nil {
		c.log.Info("device unmounted via fallback", "path", c.cfg.Paths.MountPoint)
		c.logResidualMount()
		return true
	}
	c.log.Error("both unmount tools failed, mount point stuck", "path", c.cfg.Paths.MountPoint, "err", err, "stderr", strings.TrimSpace(res.Stderr))
	return false
}

// stopInterfering kills known desktop-integration processes that hold the
// MTP endpoint. Best-effort: pkill exiting non-zero just means nothing
// matched.
func (c *Controller) stopInterfering(ctx context.Context) {
	for _, name := range interferingProcesses {
		if _, err := c.runner.Run(ctx, toolTimeout, "pkill", "-f", name); err == nil {
			c.log.Debug("stopped interfering process", "name", name)
		}
	}
}

// logResidualMount warns when the mount point still straddles a device
// boundary after a reportedly successful unmount. Diagnostic only.
func (c *Controller) logResidualMount() {
	crossed, err := crossesDevice(c.cfg.Paths.MountPoint)
	if err == nil && crossed {
		c.log.Warn("mount point still crosses a device boundary after unmount", "path", c.cfg.Paths.MountPoint)
	}
}
