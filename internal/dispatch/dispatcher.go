// Package dispatch is the outbound call surface for UI and input
// collaborators. Each method turns one intent into a frame and hands it to
// the session's serialized write path; none of them hold protocol state.
package dispatch

import (
	"context"
	"fmt"

	"github.com/muurk/carlink/internal/protocol"
)

// Sender is the serialized outbound path. transport.Writer and
// session.Engine both satisfy it.
type Sender interface {
	Send(ctx context.Context, f protocol.Frame) error
}

// Dispatcher builds outbound frames
type Dispatcher struct {
	sender Sender
}

// New creates a dispatcher writing to sender
func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Touch is one single-touch event in normalised [0,1] coordinates
type Touch struct {
	Action protocol.TouchAction
	X, Y   float64
}

// Contact is one multi-touch point in normalised [0,1] coordinates
type Contact struct {
	ID     uint32
	Action uint32
	X, Y   float64
}

// SendTouch sends a single-touch event
func (d *Dispatcher) SendTouch(ctx context.Context, t Touch) error {
	switch t.Action {
	case protocol.TouchDown, protocol.TouchMove, protocol.TouchUp:
	default:
		return fmt.Errorf("invalid touch action %d", t.Action)
	}
	return d.send(ctx, protocol.BuildTouch(t.Action, t.X, t.Y))
}

// SendMultiTouch sends all active contacts in one frame
func (d *Dispatcher) SendMultiTouch(ctx context.Context, contacts []Contact) error {
	if len(contacts) == 0 {
		return fmt.Errorf("multi-touch requires at least one contact")
	}
	wire := make([]protocol.TouchContact, len(contacts))
	for i, c := range contacts {
		if c.Action > protocol.MultiTouchMove {
			return fmt.Errorf("invalid multi-touch action %d for contact %d", c.Action, c.ID)
		}
		wire[i] = protocol.TouchContact{
			X:      float32(clampUnit(c.X)),
			Y:      float32(clampUnit(c.Y)),
			Action: c.Action,
			ID:     c.ID,
		}
	}
	return d.send(ctx, protocol.BuildMultiTouch(wire))
}

// SendCommand sends a command id. Ids the adapter only ever emits are
// rejected.
func (d *Dispatcher) SendCommand(ctx context.Context, id protocol.CommandID) error {
	rec := protocol.ClassifyCommand(id)
	if _, known := protocol.LookupCommand(id); known && !rec.Flow.Allows(protocol.Outbound) {
		return fmt.Errorf("command %s is adapter-to-host only", rec.Name)
	}
	return d.send(ctx, protocol.BuildCommand(id))
}

// SendConfig pushes a BoxSettings blob. v is marshalled to JSON.
func (d *Dispatcher) SendConfig(ctx context.Context, v interface{}) error {
	f, err := protocol.BuildBoxSettings(v)
	if err != nil {
		return err
	}
	return d.send(ctx, f)
}

// SendFile writes a file on the adapter
func (d *Dispatcher) SendFile(ctx context.Context, name string, content []byte) error {
	if name == "" {
		return fmt.Errorf("file name must not be empty")
	}
	return d.send(ctx, protocol.BuildSendFile(name, content))
}

// SetNightMode toggles the projected UI's night theme
func (d *Dispatcher) SetNightMode(ctx context.Context, on bool) error {
	id := protocol.CmdDisableNightMode
	if on {
		id = protocol.CmdEnableNightMode
	}
	return d.send(ctx, protocol.BuildCommand(id))
}

// RequestKeyframe asks the adapter for a fresh keyframe
func (d *Dispatcher) RequestKeyframe(ctx context.Context) error {
	return d.send(ctx, protocol.BuildKeyframeRequest())
}

// SendMicrophone sends captured 16-bit mono PCM. sampleRate must be the rate
// the adapter last requested.
func (d *Dispatcher) SendMicrophone(ctx context.Context, sampleRate int, pcm []byte) error {
	decodeType, ok := protocol.MicDecodeType(sampleRate)
	if !ok {
		return fmt.Errorf("unsupported microphone rate %d", sampleRate)
	}
	return d.send(ctx, protocol.BuildMicrophoneAudio(decodeType, pcm))
}

// SendGNSS sends NMEA sentences
func (d *Dispatcher) SendGNSS(ctx context.Context, nmea []byte) error {
	return d.send(ctx, protocol.BuildGNSS(nmea))
}

// DisconnectPhone asks the adapter to drop the phone link
func (d *Dispatcher) DisconnectPhone(ctx context.Context) error {
	return d.send(ctx, protocol.BuildDisconnectPhone())
}

// CloseDongle asks the adapter to shut down the session
func (d *Dispatcher) CloseDongle(ctx context.Context) error {
	return d.send(ctx, protocol.BuildCloseDongle())
}

func (d *Dispatcher) send(ctx context.Context, f protocol.Frame) error {
	if err := d.sender.Send(ctx, f); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
