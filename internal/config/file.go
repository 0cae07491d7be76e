package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "carlink"
	configFile = "config.yaml"
)

// Stale threshold bounds accepted by Validate
const (
	MinStaleThreshold = time.Millisecond
	MaxStaleThreshold = time.Second
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/carlink or $HOME/.config/carlink
//   - macOS: $HOME/.config/carlink
//   - Windows: %LOCALAPPDATA%\carlink
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

func resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return GetConfigPath()
}

// Load reads the settings at path, or the default location when path is
// empty. Keys absent from the file keep their defaults. A missing file yields
// Default().
func Load(path string) (*Config, error) {
	path, err := resolve(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, errors.New("heartbeat.interval must be positive"))
	}
	if c.Heartbeat.Timeout <= c.Heartbeat.Interval {
		errs = append(errs, fmt.Errorf("heartbeat.timeout %s must exceed heartbeat.interval %s",
			c.Heartbeat.Timeout, c.Heartbeat.Interval))
	}
	if c.Video.StaleThreshold < MinStaleThreshold || c.Video.StaleThreshold > MaxStaleThreshold {
		errs = append(errs, fmt.Errorf("video.stale_threshold %s outside [%s, %s]",
			c.Video.StaleThreshold, MinStaleThreshold, MaxStaleThreshold))
	}
	if c.Video.JitterAllowance < 0 {
		errs = append(errs, errors.New("video.jitter_allowance must not be negative"))
	}
	if c.Audio.DuckLevel < 0 || c.Audio.DuckLevel > 1 {
		errs = append(errs, fmt.Errorf("audio.duck_level %v outside [0, 1]", c.Audio.DuckLevel))
	}
	if c.Display.Width == 0 || c.Display.Height == 0 {
		errs = append(errs, errors.New("display width and height must be set"))
	}
	if c.Display.Mic != MicHost && c.Display.Mic != MicBox {
		errs = append(errs, fmt.Errorf("display.mic %q must be %q or %q", c.Display.Mic, MicHost, MicBox))
	}
	if c.Adapter.TCPAddr == "" && len(c.Adapter.ProductIDs) == 0 {
		errs = append(errs, errors.New("adapter.product_ids must not be empty"))
	}
	if c.Session.ReconnectMax < c.Session.ReconnectInitial {
		errs = append(errs, errors.New("session.reconnect_max must not be below session.reconnect_initial"))
	}
	return errors.Join(errs...)
}

// Save writes the settings to path, or the default location when path is
// empty. The write goes through a temporary file and a rename.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	path, err := resolve(path)
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# carlinkd configuration
# Durations use Go syntax: 500ms, 2s, 1m.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// Marshal renders the settings as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
