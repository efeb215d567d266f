package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []call
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (execx.Result, error) {
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	if f.err != nil {
		return execx.Result{ExitCode: 1, Stderr: "boom"}, f.err
	}
	return execx.Result{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(excludes []string) *config.Config {
	return &config.Config{
		Paths: config.Paths{
			MountPoint:   "/mnt/phone",
			PhoneDir:     "DCIM",
			LocalSyncDir: "/data/photos",
		},
		Sync: config.SyncSettings{
			ExcludePatterns: excludes,
			TwoWaySync:      true,
		},
	}
}

func TestMirrorArgsExclusionsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	r := NewReconciler(testConfig([]string{".thumbnails", "  ", "*.tmp", "", "cache"}), runner, nil, testLogger())

	if !r.SyncPhoneToLocal(context.Background()) {
		t.Fatal("sync should succeed")
	}
	if len(runner.calls) != 1 || runner.calls[0].name != "rsync" {
		t.Fatalf("expected one rsync call, got %+v", runner.calls)
	}

	want := []string{
		"-a", "--delete",
		"--exclude", ".thumbnails",
		"--exclude", "*.tmp",
		"--exclude", "cache",
		"/mnt/phone/DCIM/", "/data/photos/",
	}
	if !reflect.DeepEqual(runner.calls[0].args, want) {
		t.Errorf("rsync args:\ngot  %v\nwant %v", runner.calls[0].args, want)
	}
}

func TestEndpointsTrailingSlash(t *testing.T) {
	runner := &fakeRunner{}
	// Paths already carrying a trailing slash must not double it.
	cfg := testConfig(nil)
	cfg.Paths.LocalSyncDir = "/data/photos/"
	r := NewReconciler(cfg, runner, nil, testLogger())

	if !r.SyncLocalToPhone(context.Background()) {
		t.Fatal("sync should succeed")
	}
	args := runner.calls[0].args
	src, dst := args[len(args)-2], args[len(args)-1]
	if src != "/data/photos/" {
		t.Errorf("source = %q, want single trailing slash", src)
	}
	if dst != "/mnt/phone/DCIM/" {
		t.Errorf("destination = %q", dst)
	}
}

func TestSyncTimeoutIsFailure(t *testing.T) {
	runner := &fakeRunner{err: execx.ErrTimeout}
	r := NewReconciler(testConfig(nil), runner, nil, testLogger())
	if r.SyncPhoneToLocal(context.Background()) {
		t.Error("timeout must be reported as failure")
	}
}

func TestSyncNonZeroExitIsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("rsync: exit status 23")}
	r := NewReconciler(testConfig(nil), runner, nil, testLogger())
	if r.SyncLocalToPhone(context.Background()) {
		t.Error("non-zero exit must be reported as failure")
	}
}

func TestDirectionStrings(t *testing.T) {
	if DirPhoneToLocal.String() != "phone-to-local" || DirLocalToPhone.String() != "local-to-phone" {
		t.Errorf("unexpected direction names: %s, %s", DirPhoneToLocal, DirLocalToPhone)
	}
}
