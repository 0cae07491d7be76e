package config

import (
	"time"

	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/session"
	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/transport/usb"
)

const dialTimeout = 5 * time.Second

// InitParams returns the values pushed to the adapter at session start.
// SyncTime is left for the engine to stamp.
func (c *Config) InitParams() protocol.InitParams {
	d := c.Display
	return protocol.InitParams{
		Open: protocol.OpenParams{
			Width:         d.Width,
			Height:        d.Height,
			FPS:           d.FPS,
			Format:        d.Format,
			PacketMax:     d.PacketMax,
			IBoxVersion:   d.IBoxVersion,
			PhoneWorkMode: d.PhoneWorkMode,
		},
		DPI:            d.DPI,
		NightMode:      d.NightMode,
		RightHandDrive: d.RightHandDrive,
		ChargeMode:     d.ChargeMode,
		BoxName:        d.BoxName,
		MediaDelay:     d.MediaDelay,
		Wifi5G:         d.Wifi5G,
		BoxMic:         d.Mic == MicBox,
		AudioTransfer:  d.AudioTransfer,
	}
}

// EngineConfig maps the file onto the session engine's configuration
func (c *Config) EngineConfig() session.Config {
	return session.Config{
		Init:              c.InitParams(),
		HeartbeatInterval: c.Heartbeat.Interval,
		HeartbeatTimeout:  c.Heartbeat.Timeout,
		MaxResync:         c.Session.MaxResync,
		WriteQueue:        c.Session.WriteQueue,
		NavigationVideo:   c.Video.Navigation,
		Video: session.VideoConfig{
			StaleThreshold:  c.Video.StaleThreshold,
			JitterAllowance: c.Video.JitterAllowance,
			MaxQueued:       c.Video.MaxQueued,
		},
		Audio: audio.Config{
			DuckLevel: c.Audio.DuckLevel,
			MaxQueued: c.Audio.MaxQueued,
		},
		ReconnectInitial: c.Session.ReconnectInitial,
		ReconnectMax:     c.Session.ReconnectMax,
		DrainTimeout:     c.Session.DrainTimeout,
	}
}

// Opener returns the USB opener, or a TCP opener when tcp_addr is set
func (c *Config) Opener() transport.Opener {
	if c.Adapter.TCPAddr != "" {
		return &transport.TCPOpener{Addr: c.Adapter.TCPAddr, Timeout: dialTimeout}
	}
	return &usb.Opener{
		VendorID:   c.Adapter.VendorID,
		ProductIDs: append([]uint16(nil), c.Adapter.ProductIDs...),
	}
}
