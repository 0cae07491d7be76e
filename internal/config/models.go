package config

import (
	"time"

	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/heartbeat"
	"github.com/muurk/carlink/internal/session"
	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/transport/usb"
	"github.com/muurk/carlink/internal/video"
)

// CurrentVersion is the settings file schema version
const CurrentVersion = 1

// Mic sources
const (
	MicHost = "host"
	MicBox  = "box"
)

// Config is the whole settings file
type Config struct {
	Version   int             `yaml:"version"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Display   DisplayConfig   `yaml:"display"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Video     VideoConfig     `yaml:"video"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Status    StatusConfig    `yaml:"status"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AdapterConfig selects the adapter. A non-empty TCPAddr replaces USB with a
// TCP bridge.
type AdapterConfig struct {
	VendorID   uint16   `yaml:"vendor_id"`
	ProductIDs []uint16 `yaml:"product_ids"`
	TCPAddr    string   `yaml:"tcp_addr,omitempty"`
}

// DisplayConfig is what the host announces in Open and the init files
type DisplayConfig struct {
	Width          uint32 `yaml:"width"`
	Height         uint32 `yaml:"height"`
	FPS            uint32 `yaml:"fps"`
	DPI            uint32 `yaml:"dpi"`
	Format         uint32 `yaml:"format"`
	PacketMax      uint32 `yaml:"packet_max"`
	IBoxVersion    uint32 `yaml:"i_box_version"`
	PhoneWorkMode  uint32 `yaml:"phone_work_mode"`
	NightMode      bool   `yaml:"night_mode"`
	RightHandDrive bool   `yaml:"right_hand_drive"`
	ChargeMode     uint32 `yaml:"charge_mode"`
	BoxName        string `yaml:"box_name"`
	MediaDelay     int    `yaml:"media_delay"`
	Wifi5G         bool   `yaml:"wifi_5g"`
	Mic            string `yaml:"mic"` // "host" or "box"
	AudioTransfer  bool   `yaml:"audio_transfer"`
}

type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type VideoConfig struct {
	StaleThreshold  time.Duration `yaml:"stale_threshold"`
	JitterAllowance time.Duration `yaml:"jitter_allowance"`
	MaxQueued       int           `yaml:"max_queued"`
	Navigation      bool          `yaml:"navigation"`
}

type AudioConfig struct {
	DuckLevel   float32 `yaml:"duck_level"`
	MaxQueued   int     `yaml:"max_queued"`
	BufferLimit int     `yaml:"buffer_limit"` // bytes of 48 kHz stereo PCM per sink
	Enabled     bool    `yaml:"enabled"`
}

type SessionConfig struct {
	MaxResync        int           `yaml:"max_resync"`
	WriteQueue       int           `yaml:"write_queue"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
}

// StatusConfig controls the local status server and its mDNS advertisement
type StatusConfig struct {
	Addr      string `yaml:"addr"`
	Advertise bool   `yaml:"advertise"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Default returns the settings used when no file exists
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Adapter: AdapterConfig{
			VendorID:   usb.DefaultVendorID,
			ProductIDs: append([]uint16(nil), usb.DefaultProductIDs...),
		},
		Display: DisplayConfig{
			Width:         800,
			Height:        480,
			FPS:           30,
			DPI:           160,
			Format:        5,
			PacketMax:     49152,
			IBoxVersion:   2,
			PhoneWorkMode: 2,
			BoxName:       "carlink",
			Wifi5G:        true,
			Mic:           MicHost,
		},
		Heartbeat: HeartbeatConfig{
			Interval: heartbeat.DefaultInterval,
			Timeout:  heartbeat.DefaultTimeout,
		},
		Video: VideoConfig{
			StaleThreshold:  video.DefaultStaleThreshold,
			JitterAllowance: video.DefaultJitterAllowance,
			MaxQueued:       video.DefaultMaxQueued,
			Navigation:      true,
		},
		Audio: AudioConfig{
			DuckLevel:   audio.DefaultDuckLevel,
			MaxQueued:   audio.DefaultMaxQueued,
			BufferLimit: audio.DefaultBufferLimit,
			Enabled:     true,
		},
		Session: SessionConfig{
			MaxResync:        transport.DefaultMaxResync,
			WriteQueue:       transport.DefaultWriteQueue,
			ReconnectInitial: session.DefaultReconnectInitial,
			ReconnectMax:     session.DefaultReconnectMax,
			DrainTimeout:     time.Second,
		},
		Status: StatusConfig{
			Addr:      ":8470",
			Advertise: true,
		},
	}
}
