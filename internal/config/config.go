package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Watch backends for the local-side change watcher. The phone side always
// uses the external listener tool: FUSE-backed MTP trees do not reliably
// deliver inotify events to in-process watchers.
const (
	BackendInotifywait = "inotifywait"
	BackendNative      = "native"
)

// StatusFileName is the persisted sync-status dotfile, kept inside the local
// sync directory so it travels with the tree it describes.
const StatusFileName = ".mtp-sync-status.json"

// DeviceIdentity identifies the phone in a USB device listing. Loaded once
// at startup, used only for presence detection.
type DeviceIdentity struct {
	VendorID  string
	ProductID string
	Name      string
}

type Paths struct {
	MountPoint   string
	PhoneDir     string
	LocalSyncDir string
}

type SyncSettings struct {
	ExcludePatterns []string
	SyncInterval    int // seconds between device presence polls
	TwoWaySync      bool
	WatchBackend    string
}

type Syncthing struct {
	AutoStart bool
	Cmd       string
	Args      []string
}

// Config is immutable after load; the bridge controller owns it and shares
// it read-only with every component.
type Config struct {
	Device    DeviceIdentity
	Paths     Paths
	Sync      SyncSettings
	Syncthing Syncthing
}

// PhonePath is the phone-side directory as seen through the mount point.
func (c *Config) PhonePath() string {
	return filepath.Join(c.Paths.MountPoint, c.Paths.PhoneDir)
}

// StatusFilePath is the persisted SyncStatus location.
func (c *Config) StatusFilePath() string {
	return filepath.Join(c.Paths.LocalSyncDir, StatusFileName)
}

// DefaultPath returns the fixed user-config location used when no positional
// argument is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.ini"
	}
	return filepath.Join(home, ".config", "mtp-bridge", "config.ini")
}

// StateDir is the dotdir holding logs and the sync history database.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mtp-bridge"
	}
	return filepath.Join(home, ".mtp-bridge")
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Device: DeviceIdentity{
			VendorID:  "18d1",
			ProductID: "4ee1",
			Name:      "Android",
		},
		Paths: Paths{
			MountPoint:   filepath.Join(home, "mnt", "phone"),
			PhoneDir:     "DCIM",
			LocalSyncDir: filepath.Join(home, "PhoneSync"),
		},
		Sync: SyncSettings{
			ExcludePatterns: []string{".thumbnails", "*.tmp"},
			SyncInterval:    5,
			TwoWaySync:      true,
			WatchBackend:    BackendInotifywait,
		},
		Syncthing: Syncthing{
			AutoStart: false,
			Cmd:       "syncthing",
			Args:      []string{"serve", "--no-browser"},
		},
	}
}

// Load reads the INI config at path. A missing file is not an error: the
// defaults are written there and returned, with wroteDefaults set so the
// caller can log instructions.
func Load(path string) (cfg *Config, wroteDefaults bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		cfg = defaults()
		if err := Write(path, cfg); err != nil {
			return nil, false, fmt.Errorf("write default config: %w", err)
		}
		return cfg, true, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("error parsing config file: %w", err)
	}

	def := defaults()
	cfg = &Config{}

	dev := file.Section("device")
	cfg.Device.VendorID = dev.Key("vendor_id").MustString(def.Device.VendorID)
	cfg.Device.ProductID = dev.Key("product_id").MustString(def.Device.ProductID)
	cfg.Device.Name = dev.Key("name").MustString(def.Device.Name)

	paths := file.Section("paths")
	cfg.Paths.MountPoint = paths.Key("mount_point").MustString(def.Paths.MountPoint)
	cfg.Paths.PhoneDir = paths.Key("phone_dir").MustString(def.Paths.PhoneDir)
	cfg.Paths.LocalSyncDir = paths.Key("local_sync_dir").MustString(def.Paths.LocalSyncDir)

	sync := file.Section("sync")
	if sync.HasKey("exclude_patterns") {
		cfg.Sync.ExcludePatterns = sync.Key("exclude_patterns").Strings(",")
	} else {
		cfg.Sync.ExcludePatterns = def.Sync.ExcludePatterns
	}
	cfg.Sync.SyncInterval = sync.Key("sync_interval").MustInt(def.Sync.SyncInterval)
	cfg.Sync.TwoWaySync = sync.Key("two_way_sync").MustBool(def.Sync.TwoWaySync)
	cfg.Sync.WatchBackend = sync.Key("watch_backend").MustString(def.Sync.WatchBackend)

	st := file.Section("syncthing")
	cfg.Syncthing.AutoStart = st.Key("auto_start").MustBool(def.Syncthing.AutoStart)
	cfg.Syncthing.Cmd = st.Key("syncthing_cmd").MustString(def.Syncthing.Cmd)
	if st.HasKey("syncthing_args") {
		cfg.Syncthing.Args = strings.Fields(st.Key("syncthing_args").String())
	} else {
		cfg.Syncthing.Args = def.Syncthing.Args
	}

	if err := Validate(cfg); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// Write serializes cfg as an INI file, creating parent directories.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file := ini.Empty()

	dev := file.Section("device")
	dev.Key("vendor_id").SetValue(cfg.Device.VendorID)
	dev.Key("product_id").SetValue(cfg.Device.ProductID)
	dev.Key("name").SetValue(cfg.Device.Name)

	paths := file.Section("paths")
	paths.Key("mount_point").SetValue(cfg.Paths.MountPoint)
	paths.Key("phone_dir").SetValue(cfg.Paths.PhoneDir)
	paths.Key("local_sync_dir").SetValue(cfg.Paths.LocalSyncDir)

	sync := file.Section("sync")
	sync.Key("exclude_patterns").SetValue(strings.Join(cfg.Sync.ExcludePatterns, ","))
	sync.Key("sync_interval").SetValue(fmt.Sprintf("%d", cfg.Sync.SyncInterval))
	sync.Key("two_way_sync").SetValue(fmt.Sprintf("%t", cfg.Sync.TwoWaySync))
	sync.Key("watch_backend").SetValue(cfg.Sync.WatchBackend)

	st := file.Section("syncthing")
	st.Key("auto_start").SetValue(fmt.Sprintf("%t", cfg.Syncthing.AutoStart))
	st.Key("syncthing_cmd").SetValue(cfg.Syncthing.Cmd)
	st.Key("syncthing_args").SetValue(strings.Join(cfg.Syncthing.Args, " "))

	return file.SaveTo(path)
}

// Validate checks the configuration for required fields.
func Validate(cfg *Config) error {
	var validationErrors []string

	if strings.TrimSpace(cfg.Device.Name) == "" &&
		(strings.TrimSpace(cfg.Device.VendorID) == "" || strings.TrimSpace(cfg.Device.ProductID) == "") {
		validationErrors = append(validationErrors, "device needs either a name or a vendor_id/product_id pair")
	}

	if strings.TrimSpace(cfg.Paths.MountPoint) == "" {
		validationErrors = append(validationErrors, "paths.mount_point cannot be empty")
	}

	if strings.TrimSpace(cfg.Paths.LocalSyncDir) == "" {
		validationErrors = append(validationErrors, "paths.local_sync_dir cannot be empty")
	}

	if cfg.Sync.SyncInterval < 1 {
		validationErrors = append(validationErrors, "sync.sync_interval must be at least 1 second")
	}

	switch cfg.Sync.WatchBackend {
	case BackendInotifywait, BackendNative:
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("sync.watch_backend must be %q or %q", BackendInotifywait, BackendNative))
	}

	if cfg.Syncthing.AutoStart && strings.TrimSpace(cfg.Syncthing.Cmd) == "" {
		validationErrors = append(validationErrors, "syncthing.syncthing_cmd cannot be empty when auto_start is enabled")
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}
	return nil
}
