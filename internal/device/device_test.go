package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

const sampleListing = `Bus 002 Device 001: ID 1d6b:0003 Linux Foundation 3.0 root hub
Bus 001 Device 004: ID 18d1:4ee1 Google Inc. Nexus/Pixel Device (MTP)
Bus 001 Device 001: ID 1d6b:0002 Linux Foundation 2.0 root hub
`

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		id   config.DeviceIdentity
		want bool
	}{
		{"vendor:product pair", config.DeviceIdentity{VendorID: "18d1", ProductID: "4ee1"}, true},
		{"pair case-insensitive", config.DeviceIdentity{VendorID: "18D1", ProductID: "4EE1"}, true},
		{"display name", config.DeviceIdentity{Name: "Nexus/Pixel"}, true},
		{"wrong pair", config.DeviceIdentity{VendorID: "dead", ProductID: "beef"}, false},
		{"wrong name", config.DeviceIdentity{Name: "iPhone"}, false},
		{"pair wrong but name right", config.DeviceIdentity{VendorID: "dead", ProductID: "beef", Name: "Google Inc."}, true},
		{"empty identity", config.DeviceIdentity{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(sampleListing, tt.id); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	out string
	err error
}

func (f fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (execx.Result, error) {
	return execx.Result{Stdout: f.out}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPresentListingFailureMeansAbsent(t *testing.T) {
	d := NewDetector(config.DeviceIdentity{VendorID: "18d1", ProductID: "4ee1"},
		fakeRunner{err: errors.New("lsusb: not found")}, testLogger())
	if d.Present(context.Background()) {
		t.Error("listing failure must count as device absent")
	}
}

func TestPresent(t *testing.T) {
	d := NewDetector(config.DeviceIdentity{VendorID: "18d1", ProductID: "4ee1"},
		fakeRunner{out: sampleListing}, testLogger())
	if !d.Present(context.Background()) {
		t.Error("expected device present")
	}
}
