package device

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

const listTimeout = 5 * time.Second

// Detector answers "is the phone plugged in" by matching the configured
// identity against the USB device listing. Any failure to obtain the listing
// counts as absent.
type Detector struct {
	id     config.DeviceIdentity
	runner execx.Runner
	log    *slog.Logger
}

func NewDetector(id config.DeviceIdentity, runner execx.Runner, log *slog.Logger) *Detector {
	return &Detector{id: id, runner: runner, log: log}
}

// Present runs the device-list tool and scans its output for the configured
// vendor:product pair or the display name.
func (d *Detector) Present(ctx context.Context) bool {
	res, err := d.runner.Run(ctx, listTimeout, "lsusb")
	if err != nil {
		d.log.Debug("device listing failed", "err", err)
		return false
	}
	return Matches(res.Stdout, d.id)
}

// Matches reports whether a USB listing contains the device. lsusb prints
// ids as "ID 18d1:4ee1", so the pair is matched as a single token; the
// display name is a plain substring match.
func Matches(listing string, id config.DeviceIdentity) bool {
	if id.VendorID != "" && id.ProductID != "" {
		pair := strings.ToLower(id.VendorID + ":" + id.ProductID)
		if strings.Contains(strings.ToLower(listing), pair) {
			return true
		}
	}
	if id.Name != "" && strings.Contains(listing, id.Name) {
		return true
	}
	return false
}
