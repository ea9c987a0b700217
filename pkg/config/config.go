package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageSQLite      = "sqlite"
	StoragePreferences = "preferences"
	StorageMemory      = "memory"
)

// Dismiss actions
const (
	DismissNone   = "none"
	DismissSnooze = "snooze"
	DismissStop   = "stop"
)

// Ringing policies for a fire that arrives while another alarm rings
const (
	RingingQueue  = "queue"
	RingingReject = "reject"
)

// Config holds application configuration
type Config struct {
	// Listen is the HTTP address of the command API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// MetricsListen serves /metrics on a separate address. Empty serves it on Listen.
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`

	Storage      string `yaml:"storage" json:"storage"`
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Sweep is the cron spec of the wall-clock timer sweep
	Sweep string `yaml:"sweep" json:"sweep"`

	// Housekeeping is the cron spec of the timer reconciliation job
	Housekeeping string `yaml:"housekeeping" json:"housekeeping"`

	// MaxTimers bounds the notification id pool
	MaxTimers int `yaml:"max_timers" json:"max_timers"`

	AutoStart     bool   `yaml:"auto_start" json:"auto_start"`
	SoundFile     string `yaml:"sound_file" json:"sound_file"`
	DismissAction string `yaml:"dismiss_action" json:"dismiss_action"`
	RingingPolicy string `yaml:"ringing_policy" json:"ringing_policy"`
	Hotkeys       bool   `yaml:"hotkeys" json:"hotkeys"`

	// SnoozeDefault is used for records created without a snooze interval
	SnoozeDefault int `yaml:"snooze_default" json:"snooze_default"`

	// Timezone is the IANA zone alarms are evaluated in. Empty means local time.
	Timezone string `yaml:"timezone" json:"timezone"`
}

// DefaultPath returns the per-user config location
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "alarm-clock", "config.yaml")
}

// DefaultConfig returns an in-memory default configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:7474",
		Storage:       StorageSQLite,
		DatabasePath:  defaultDatabasePath(),
		Sweep:         "@every 15s",
		Housekeeping:  "@hourly",
		MaxTimers:     4096,
		AutoStart:     false,
		DismissAction: DismissNone,
		RingingPolicy: RingingQueue,
		Hotkeys:       true,
		SnoozeDefault: 1,
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "alarm-clock", "alarms.db")
}

// Normalize fills in missing or unknown values with defaults
func (c *Config) Normalize() {
	def := DefaultConfig()

	switch c.Storage {
	case StorageSQLite, StoragePreferences, StorageMemory:
	default:
		c.Storage = def.Storage
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.Sweep == "" {
		c.Sweep = def.Sweep
	}
	if c.Housekeeping == "" {
		c.Housekeeping = def.Housekeeping
	}
	if c.MaxTimers <= 0 {
		c.MaxTimers = def.MaxTimers
	}
	switch c.DismissAction {
	case DismissNone, DismissSnooze, DismissStop:
	default:
		c.DismissAction = def.DismissAction
	}
	switch c.RingingPolicy {
	case RingingQueue, RingingReject:
	default:
		c.RingingPolicy = def.RingingPolicy
	}
	if c.SnoozeDefault < 0 {
		c.SnoozeDefault = def.SnoozeDefault
	}
}

// Location resolves Timezone, falling back to time.Local
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML config at path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".alarm-clock-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save
func (c *Config) Save(path string) error {
	return Save(path, c)
}
