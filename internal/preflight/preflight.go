package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/execx"
)

// probeTimeout bounds each tool probe; a tool that cannot answer a version
// query within this window counts as unresponsive.
const probeTimeout = 5 * time.Second

type tool struct {
	name string
	args []string
}

// requiredTools lists the external collaborators the daemon cannot run
// without. The continuous-sync binary is only required when auto-start is
// enabled.
func requiredTools(cfg *config.Config) []tool {
	tools := []tool{
		{"lsusb", []string{"-V"}},
		{"jmtpfs", []string{"--version"}},
		{"fusermount", []string{"-V"}},
		{"umount", []string{"--version"}},
		{"mountpoint", []string{"--version"}},
		{"rsync", []string{"--version"}},
		{"inotifywait", []string{"--help"}},
	}
	if cfg.Syncthing.AutoStart {
		tools = append(tools, tool{cfg.Syncthing.Cmd, []string{"--version"}})
	}
	return tools
}

// Check probes every required external tool. A missing binary or a probe
// that does not come back within the timeout is fatal; the returned error
// names every offender so the user can fix them in one go.
func Check(ctx context.Context, runner execx.Runner, cfg *config.Config, log *slog.Logger) error {
	var missing []string
	for _, t := range requiredTools(cfg) {
		if _, err := exec.LookPath(t.name); err != nil {
			log.Error("required tool not found", "tool", t.name)
			missing = append(missing, t.name)
			continue
		}
		_, err := runner.Run(ctx, probeTimeout, t.name, t.args...)
		if errors.Is(err, execx.ErrTimeout) {
			log.Error("required tool unresponsive", "tool", t.name)
			missing = append(missing, t.name)
			continue
		}
		// A non-zero exit on a version/help probe still proves the tool runs.
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			log.Error("required tool failed to execute", "tool", t.name, "err", err)
			missing = append(missing, t.name)
			continue
		}
		log.Debug("tool probe ok", "tool", t.name)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required external tools: %s", strings.Join(missing, ", "))
	}
	return nil
}
