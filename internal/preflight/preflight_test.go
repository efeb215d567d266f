package preflight

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

func TestRequiredToolsBaseline(t *testing.T) {
	cfg := &config.Config{}
	names := make(map[string]bool)
	for _, tool := range requiredTools(cfg) {
		names[tool.name] = true
	}
	for _, want := range []string{"lsusb", "jmtpfs", "fusermount", "umount", "mountpoint", "rsync", "inotifywait"} {
		if !names[want] {
			t.Errorf("required tool %q missing from the baseline set", want)
		}
	}
	if names["syncthing"] {
		t.Error("continuous-sync binary must not be required when auto-start is off")
	}
}

func TestRequiredToolsIncludesSyncServiceWhenAutoStart(t *testing.T) {
	cfg := &config.Config{Syncthing: config.Syncthing{AutoStart: true, Cmd: "syncthing"}}
	found := false
	for _, tool := range requiredTools(cfg) {
		if tool.name == "syncthing" {
			found = true
		}
	}
	if !found {
		t.Error("auto-start must add the continuous-sync binary to the probe set")
	}
}

func TestCheckNamesMissingTools(t *testing.T) {
	cfg := &config.Config{
		Syncthing: config.Syncthing{AutoStart: true, Cmd: "definitely-not-installed-anywhere"},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := Check(context.Background(), execx.System{}, cfg, log)
	if err == nil {
		t.Fatal("a nonexistent binary must fail the preflight check")
	}
	if !strings.Contains(err.Error(), "definitely-not-installed-anywhere") {
		t.Errorf("error must name the missing tool: %v", err)
	}
}
