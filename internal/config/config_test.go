package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/transport/usb"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "carlink") {
		t.Errorf("GetConfigDir() = %v, should contain 'carlink'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDirHonoursXDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	want := filepath.Join(dir, "carlink", "config.yaml")
	if got != want {
		t.Errorf("GetConfigPath() = %v, want %v", got, want)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Video.StaleThreshold != 35*time.Millisecond {
		t.Errorf("StaleThreshold = %v, want 35ms", cfg.Video.StaleThreshold)
	}
	if cfg.Heartbeat.Interval != 2*time.Second || cfg.Heartbeat.Timeout != 10*time.Second {
		t.Errorf("Heartbeat = %+v, want 2s/10s", cfg.Heartbeat)
	}
	if cfg.Adapter.VendorID != 0x1314 {
		t.Errorf("VendorID = %#x, want 0x1314", cfg.Adapter.VendorID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero interval", func(c *Config) { c.Heartbeat.Interval = 0 }, "heartbeat.interval"},
		{"timeout not above interval", func(c *Config) { c.Heartbeat.Timeout = c.Heartbeat.Interval }, "heartbeat.timeout"},
		{"stale threshold too small", func(c *Config) { c.Video.StaleThreshold = 0 }, "stale_threshold"},
		{"stale threshold too large", func(c *Config) { c.Video.StaleThreshold = 2 * time.Second }, "stale_threshold"},
		{"stale threshold at bound", func(c *Config) { c.Video.StaleThreshold = time.Second }, ""},
		{"duck level", func(c *Config) { c.Audio.DuckLevel = 1.5 }, "duck_level"},
		{"mic source", func(c *Config) { c.Display.Mic = "phone" }, "display.mic"},
		{"no product ids over usb", func(c *Config) { c.Adapter.ProductIDs = nil }, "product_ids"},
		{"no product ids over tcp", func(c *Config) {
			c.Adapter.ProductIDs = nil
			c.Adapter.TCPAddr = "127.0.0.1:9000"
		}, ""},
		{"reconnect bounds", func(c *Config) { c.Session.ReconnectMax = time.Millisecond }, "reconnect_max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Display.Width != 800 {
		t.Errorf("Display.Width = %v, want 800", cfg.Display.Width)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
heartbeat:
  interval: 1s
video:
  stale_threshold: 50ms
adapter:
  vendor_id: 0x1314
  product_ids: [0x1521]
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Heartbeat.Interval != time.Second {
		t.Errorf("Heartbeat.Interval = %v, want 1s", cfg.Heartbeat.Interval)
	}
	if cfg.Heartbeat.Timeout != 10*time.Second {
		t.Errorf("Heartbeat.Timeout = %v, want default 10s", cfg.Heartbeat.Timeout)
	}
	if cfg.Video.StaleThreshold != 50*time.Millisecond {
		t.Errorf("StaleThreshold = %v, want 50ms", cfg.Video.StaleThreshold)
	}
	if len(cfg.Adapter.ProductIDs) != 1 || cfg.Adapter.ProductIDs[0] != 0x1521 {
		t.Errorf("ProductIDs = %v, want [0x1521]", cfg.Adapter.ProductIDs)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad version", "version: 2\n"},
		{"bad yaml", "version: [\n"},
		{"invalid values", "version: 1\nheartbeat:\n  timeout: 1s\n  interval: 2s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Display.NightMode = true
	cfg.Display.Mic = MicBox
	cfg.Video.StaleThreshold = 40 * time.Millisecond
	cfg.Status.Addr = "127.0.0.1:9999"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "stale_threshold: 40ms") {
		t.Errorf("saved file should carry duration strings, got:\n%s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.Display.NightMode || loaded.Display.Mic != MicBox {
		t.Errorf("Display = %+v, want night mode and box mic", loaded.Display)
	}
	if loaded.Video.StaleThreshold != 40*time.Millisecond {
		t.Errorf("StaleThreshold = %v, want 40ms", loaded.Video.StaleThreshold)
	}
	if loaded.Status.Addr != "127.0.0.1:9999" {
		t.Errorf("Status.Addr = %v, want 127.0.0.1:9999", loaded.Status.Addr)
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := Default()
	cfg.Display.Mic = MicBox
	cfg.Video.Navigation = false

	ec := cfg.EngineConfig()
	if ec.Init.Open.Width != 800 || ec.Init.Open.Height != 480 {
		t.Errorf("Open = %+v, want 800x480", ec.Init.Open)
	}
	if !ec.Init.BoxMic {
		t.Error("Init.BoxMic = false, want true")
	}
	if ec.NavigationVideo {
		t.Error("NavigationVideo = true, want false")
	}
	if ec.Video.StaleThreshold != cfg.Video.StaleThreshold {
		t.Errorf("Video.StaleThreshold = %v, want %v", ec.Video.StaleThreshold, cfg.Video.StaleThreshold)
	}
	if ec.HeartbeatTimeout != cfg.Heartbeat.Timeout {
		t.Errorf("HeartbeatTimeout = %v, want %v", ec.HeartbeatTimeout, cfg.Heartbeat.Timeout)
	}
}

func TestOpener(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.Opener().(*usb.Opener); !ok {
		t.Errorf("Opener() = %T, want *usb.Opener", cfg.Opener())
	}

	cfg.Adapter.TCPAddr = "127.0.0.1:9000"
	tcp, ok := cfg.Opener().(*transport.TCPOpener)
	if !ok {
		t.Fatalf("Opener() = %T, want *transport.TCPOpener", cfg.Opener())
	}
	if tcp.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %v, want 127.0.0.1:9000", tcp.Addr)
	}
}
