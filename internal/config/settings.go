package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Settings holds tool-level configuration for hive itself, as opposed to
// the swarm topology. Loaded from the user's XDG config path with
// environment variable overrides.
type Settings struct {
	// SessionRoot is the directory session state is written under.
	SessionRoot string `mapstructure:"session_root"`
	// ClaudeBinary is the Claude Code CLI executable to launch.
	ClaudeBinary string `mapstructure:"claude_binary"`
	// GracePeriod is how long to wait for voluntary exit before
	// force-terminating a process at teardown.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// StartupTimeout bounds preflight checks before the main instance
	// is launched.
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	// DebugLog is an optional path for supervisor debug logging.
	DebugLog string `mapstructure:"debug_log"`
}

// DefaultSessionRoot returns the XDG data path sessions live under.
func DefaultSessionRoot() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hive", "sessions")
}

func userConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "hive")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session_root", DefaultSessionRoot())
	v.SetDefault("claude_binary", "claude")
	v.SetDefault("grace_period", 5*time.Second)
	v.SetDefault("startup_timeout", 10*time.Second)
	v.SetDefault("debug_log", "")
}

// LoadSettings loads tool settings.
// Precedence (highest to lowest):
//  1. HIVE_* environment variables
//  2. User config (~/.config/hive/config.yaml)
//  3. Built-in defaults
func LoadSettings() (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	v.SetEnvPrefix("HIVE")
	v.AutomaticEnv()

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	return s, nil
}

// LoadSettingsFromPath loads settings from a specific file (for testing).
func LoadSettingsFromPath(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading settings from %s: %w", path, err)
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	return s, nil
}
