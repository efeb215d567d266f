package mount

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers per-tool, recording every invocation.
type fakeRunner struct {
	calls []call
	fail  map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (execx.Result, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if err, ok := f.fail[name]; ok && err != nil {
		return execx.Result{ExitCode: 1, Stderr: err.Error()}, err
	}
	return execx.Result{}, nil
}

func (f *fakeRunner) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func testController(t *testing.T, fail map[string]error) (*Controller, *fakeRunner) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{
			MountPoint:   filepath.Join(dir, "mnt"),
			PhoneDir:     "DCIM",
			LocalSyncDir: filepath.Join(dir, "local"),
		},
	}
	runner := &fakeRunner{fail: fail}
	c := NewController(cfg, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.stabilize = time.Millisecond
	return c, runner
}

func TestIsMountedFailSafe(t *testing.T) {
	// Any failure of the mount-point test tool must read as "not mounted".
	c, _ := testController(t, map[string]error{"mountpoint": errors.New("exit 32")})
	if c.IsMounted(context.Background()) {
		t.Error("IsMounted must be false when the test tool errors")
	}
}

func TestEnsureMountedNoopWhenMounted(t *testing.T) {
	c, runner := testController(t, nil) // mountpoint succeeds -> mounted
	if !c.EnsureMounted(context.Background()) {
		t.Fatal("EnsureMounted should succeed when already mounted")
	}
	if runner.count("jmtpfs") != 0 {
		t.Error("mount tool must not be invoked when already mounted")
	}
}

func TestEnsureMountedIdempotent(t *testing.T) {
	// First call mounts (mountpoint says not mounted, jmtpfs succeeds); the
	// second call sees it mounted and must not invoke the mount tool again.
	mounted := false
	runner := &dynamicRunner{handler: func(name string, args []string) error {
		switch name {
		case "mountpoint":
			if mounted {
				return nil
			}
			return errors.New("not a mountpoint")
		case "jmtpfs":
			mounted = true
			return nil
		}
		return nil
	}}

	dir := t.TempDir()
	cfg := &config.Config{Paths: config.Paths{MountPoint: filepath.Join(dir, "mnt"), PhoneDir: "DCIM"}}
	c := NewController(cfg, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.stabilize = time.Millisecond

	if !c.EnsureMounted(context.Background()) {
		t.Fatal("first EnsureMounted failed")
	}
	if !c.EnsureMounted(context.Background()) {
		t.Fatal("second EnsureMounted failed")
	}
	if got := runner.count("jmtpfs"); got != 1 {
		t.Errorf("mount tool invoked %d times, want 1", got)
	}
}

func TestEnsureMountedToolFailure(t *testing.T) {
	c, _ := testController(t, map[string]error{
		"mountpoint": errors.New("not mounted"),
		"jmtpfs":     errors.New("device busy"),
	})
	if c.EnsureMounted(context.Background()) {
		t.Error("EnsureMounted must fail when the mount tool fails")
	}
}

func TestEnsureMountedTimeout(t *testing.T) {
	c, _ := testController(t, map[string]error{
		"mountpoint": errors.New("not mounted"),
		"jmtpfs":     execx.ErrTimeout,
	})
	if c.EnsureMounted(context.Background()) {
		t.Error("EnsureMounted must fail on mount tool timeout")
	}
}

func TestEnsureMountedCreatesPhoneDir(t *testing.T) {
	c, _ := testController(t, map[string]error{"mountpoint": errors.New("not mounted")})
	if !c.EnsureMounted(context.Background()) {
		t.Fatal("EnsureMounted failed")
	}
	// The phone-side subtree must exist afterwards.
	if _, err := os.Stat(c.cfg.PhonePath()); err != nil {
		t.Fatalf("phone path not created: %v", err)
	}
}

func TestEnsureUnmountedNoopWhenNotMounted(t *testing.T) {
	c, runner := testController(t, map[string]error{"mountpoint": errors.New("not mounted")})
	if !c.EnsureUnmounted(context.Background()) {
		t.Fatal("EnsureUnmounted should succeed when not mounted")
	}
	if runner.count("fusermount") != 0 || runner.count("umount") != 0 {
		t.Error("no unmount tool should run when not mounted")
	}
}

func TestEnsureUnmountedFallback(t *testing.T) {
	c, runner := testController(t, map[string]error{"fusermount": errors.New("busy")})
	if !c.EnsureUnmounted(context.Background()) {
		t.Fatal("fallback unmount should have succeeded")
	}
	if runner.count("fusermount") != 1 || runner.count("umount") != 1 {
		t.Errorf("expected primary then fallback, got %+v", runner.calls)
	}
}

func TestEnsureUnmountedBothFail(t *testing.T) {
	c, _ := testController(t, map[string]error{
		"fusermount": errors.New("busy"),
		"umount":     errors.New("busy"),
	})
	if c.EnsureUnmounted(context.Background()) {
		t.Error("EnsureUnmounted must report failure when both tools fail")
	}
}

// dynamicRunner dispatches to a handler and counts like fakeRunner.
type dynamicRunner struct {
	calls   []call
	handler func(name string, args []string) error
}

func (d *dynamicRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (execx.Result, error) {
	d.calls = append(d.calls, call{name: name, args: args})
	if err := d.handler(name, args); err != nil {
		return execx.Result{ExitCode: 1, Stderr: err.Error()}, err
	}
	return execx.Result{}, nil
}

func (d *dynamicRunner) count(name string) int {
	n := 0
	for _, c := range d.calls {
		if c.name == name {
			n++
		}
	}
	return n
}
