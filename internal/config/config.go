package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Device selection; empty means the sole connected device
	Serial string `mapstructure:"serial"`

	// Platform tool executables
	ADBPath      string `mapstructure:"adb-path"`
	FastbootPath string `mapstructure:"fastboot-path"`

	// Remote catalog
	PortalURL  string `mapstructure:"portal-url"`
	MirrorHost string `mapstructure:"mirror-host"`

	// On-device paths
	DeviceCacheDir   string `mapstructure:"device-cache-dir"`
	DeviceStagingDir string `mapstructure:"device-staging-dir"`
	MagiskDir        string `mapstructure:"magisk-dir"`
	MagiskAppID      string `mapstructure:"magisk-app-id"`

	// Local staging and state
	WorkDir     string `mapstructure:"work-dir"`
	JournalPath string `mapstructure:"journal-path"`
	FSMDBPath   string `mapstructure:"fsm-db-path"`

	// Payload extraction utility (pinned release archive)
	PayloadDumperURL string `mapstructure:"payload-dumper-url"`

	// Bootloader transition wait, in seconds
	BootloaderTimeout int `mapstructure:"bootloader-timeout"`
	PollInterval      int `mapstructure:"poll-interval"`
}

// DefaultPayloadDumperURL pins the payload extraction utility release that
// the payload-based OTA path fetches on demand.
const DefaultPayloadDumperURL = "https://github.com/ssut/payload-dumper-go/releases/download/1.3.0/payload-dumper-go_1.3.0_linux_amd64.tar.gz"

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("serial", "")
	viper.SetDefault("adb-path", "adb")
	viper.SetDefault("fastboot-path", "fastboot")
	viper.SetDefault("portal-url", "https://download.lineageos.org")
	viper.SetDefault("mirror-host", "mirrorbits.lineageos.org")
	viper.SetDefault("device-cache-dir", "/data/lineageos_updates")
	viper.SetDefault("device-staging-dir", "/sdcard/Download")
	viper.SetDefault("magisk-dir", "/data/adb/magisk")
	viper.SetDefault("magisk-app-id", "com.topjohnwu.magisk")
	viper.SetDefault("work-dir", "/tmp/reinstall-magisk")
	viper.SetDefault("journal-path", ".artifacts/runs.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("payload-dumper-url", DefaultPayloadDumperURL)
	viper.SetDefault("bootloader-timeout", 60)
	viper.SetDefault("poll-interval", 5)

	// Environment variables (REINSTALL_MAGISK_SERIAL, etc.)
	viper.SetEnvPrefix("REINSTALL_MAGISK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.reinstall-magisk")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.ADBPath == "" {
		return fmt.Errorf("adb-path cannot be empty")
	}
	if c.FastbootPath == "" {
		return fmt.Errorf("fastboot-path cannot be empty")
	}
	if c.PortalURL == "" {
		return fmt.Errorf("portal-url cannot be empty")
	}
	if c.MirrorHost == "" {
		return fmt.Errorf("mirror-host cannot be empty")
	}
	if c.DeviceCacheDir == "" {
		return fmt.Errorf("device-cache-dir cannot be empty")
	}
	if c.DeviceStagingDir == "" {
		return fmt.Errorf("device-staging-dir cannot be empty")
	}
	if c.MagiskDir == "" {
		return fmt.Errorf("magisk-dir cannot be empty")
	}
	if c.MagiskAppID == "" {
		return fmt.Errorf("magisk-app-id cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.JournalPath == "" {
		return fmt.Errorf("journal-path cannot be empty")
	}
	if c.PayloadDumperURL == "" {
		return fmt.Errorf("payload-dumper-url cannot be empty")
	}
	if c.BootloaderTimeout <= 0 {
		return fmt.Errorf("bootloader-timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	return nil
}
