package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mtp-bridge/internal/appctx"
	"mtp-bridge/internal/bridge"
	"mtp-bridge/internal/config"
	"mtp-bridge/internal/device"
	"mtp-bridge/internal/execx"
	"mtp-bridge/internal/logging"
	"mtp-bridge/internal/mount"
	"mtp-bridge/internal/preflight"
	"mtp-bridge/internal/reconcile"
	"mtp-bridge/internal/watcher"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mtp-bridge [config-file]",
	Short: "Bridge a USB-attached MTP phone and a local directory tree",
	Long: `mtp-bridge keeps a phone's storage and a local directory in sync: it detects
the device, mounts it through jmtpfs, reconciles the two trees with rsync,
watches both sides for changes, and optionally hands the settled local tree
to syncthing for continuous sync.

Single-instance daemon: running two instances against the same mount point or
local tree is undefined behavior.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runBridge,
}

// Execute runs the CLI. A non-nil return maps to exit code 1 in main.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfgPath := config.DefaultPath()
	if len(args) == 1 {
		cfgPath = args[0]
	}

	stateDir := config.StateDir()
	log, logCloser, err := logging.Setup(filepath.Join(stateDir, "logs"), os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	cfg, wroteDefaults, err := config.Load(cfgPath)
	if err != nil {
		log.Error("configuration failed", "path", cfgPath, "err", err)
		return err
	}
	if wroteDefaults {
		log.Info("no config file found, wrote defaults", "path", cfgPath)
		log.Info("edit the [device] and [paths] sections to match your phone, then restart; running with defaults for now")
	}

	if err := os.MkdirAll(cfg.Paths.LocalSyncDir, 0755); err != nil {
		log.Error("cannot create local sync directory", "path", cfg.Paths.LocalSyncDir, "err", err)
		return err
	}

	runner := execx.System{}
	if err := preflight.Check(cmd.Context(), runner, cfg, log); err != nil {
		log.Error("startup dependency check failed", "err", err)
		return err
	}

	app := appctx.New(cmd.Context(), log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			app.Shutdown(sig.String())
		case <-app.Context().Done():
		}
	}()

	hist, err := reconcile.OpenHistory(filepath.Join(stateDir, "history.db"))
	if err != nil {
		// History is diagnostic; a broken DB must not keep the bridge down.
		log.Warn("sync history unavailable", "err", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	status := reconcile.NewStatusStore(cfg.StatusFilePath(), log)
	rec := reconcile.NewReconciler(cfg, runner, hist, log)
	detector := device.NewDetector(cfg.Device, runner, log)
	mounts := mount.NewController(cfg, runner, log)
	queue := watcher.NewQueue()
	watch := watcher.NewManager(app, cfg, runner, queue)

	br := bridge.New(app, cfg, detector, mounts, rec, watch, status, queue, runner)
	if err := br.Run(app.Context()); err != nil && !app.Stopping() {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
