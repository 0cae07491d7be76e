package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is a decoded payload
type Message interface {
	Type() MessageType
	String() string
}

// OpenParams is the Open request (outbound) and its Opened echo (inbound).
type OpenParams struct {
	Width         uint32 `struc:"uint32,little"`
	Height        uint32 `struc:"uint32,little"`
	FPS           uint32 `struc:"uint32,little"`
	Format        uint32 `struc:"uint32,little"`
	PacketMax     uint32 `struc:"uint32,little"`
	IBoxVersion   uint32 `struc:"uint32,little"`
	PhoneWorkMode uint32 `struc:"uint32,little"`
}

// openSize is the packed size of OpenParams
const openSize = 28

// Open is the host's session open request
type Open struct{ OpenParams }

func (m *Open) Type() MessageType { return TypeOpen }

func (m *Open) String() string {
	return fmt.Sprintf("Open{%dx%d@%d, format=%d, packet_max=%d}",
		m.Width, m.Height, m.FPS, m.Format, m.PacketMax)
}

// Opened is the adapter's echo of the accepted open parameters
type Opened struct{ OpenParams }

func (m *Opened) Type() MessageType { return TypeOpen }

func (m *Opened) String() string {
	return fmt.Sprintf("Opened{%dx%d@%d, format=%d}", m.Width, m.Height, m.FPS, m.Format)
}

type pluggedPayload struct {
	Kind   uint32 `struc:"uint32,little"`
	Medium uint32 `struc:"uint32,little"`
}

// Plugged reports that a phone attached to the adapter
type Plugged struct {
	Kind   PeerKind
	Medium Medium
}

func (m *Plugged) Type() MessageType { return TypePlugged }

func (m *Plugged) String() string {
	return fmt.Sprintf("Plugged{kind=%s, medium=%s}", m.Kind, m.Medium)
}

// Unplugged reports that the phone went away. It always ends the session.
type Unplugged struct{}

func (m *Unplugged) Type() MessageType { return TypeUnplugged }
func (m *Unplugged) String() string    { return "Unplugged{}" }

// Phase carries the adapter-reported session stage
type Phase struct {
	Value uint32
}

func (m *Phase) Type() MessageType { return TypePhase }

func (m *Phase) String() string {
	return fmt.Sprintf("Phase{value=%d}", m.Value)
}

// VideoStream distinguishes the two video type codes
type VideoStream int

const (
	StreamPrimary VideoStream = iota
	StreamNavigation
)

// String returns the stream name
func (s VideoStream) String() string {
	if s == StreamNavigation {
		return "navigation"
	}
	return "primary"
}

// VideoHeader is the 20-byte video sub-header
type VideoHeader struct {
	Width        uint32 `struc:"uint32,little"`
	Height       uint32 `struc:"uint32,little"`
	EncoderState uint32 `struc:"uint32,little"`
	PTS          uint32 `struc:"uint32,little"`
	Flags        uint32 `struc:"uint32,little"`
}

// VideoHeaderSize is the packed size of VideoHeader
const VideoHeaderSize = 20

// VideoData is one H.264 Annex-B access unit plus its sub-header
type VideoData struct {
	Stream VideoStream
	VideoHeader
	Data []byte
}

func (m *VideoData) Type() MessageType {
	if m.Stream == StreamNavigation {
		return TypeNaviVideo
	}
	return TypeVideo
}

func (m *VideoData) String() string {
	return fmt.Sprintf("VideoData{stream=%s, %dx%d, pts=%d, flags=0x%x, nal_bytes=%d}",
		m.Stream, m.Width, m.Height, m.PTS, m.Flags, len(m.Data))
}

// AudioHeader is the 12-byte audio sub-header
type AudioHeader struct {
	DecodeType uint32  `struc:"uint32,little"`
	Volume     float32 `struc:"float32,little"`
	AudioType  uint32  `struc:"uint32,little"`
}

// AudioHeaderSize is the packed size of AudioHeader
const AudioHeaderSize = 12

// Audio payload lengths that select a non-PCM meaning
const (
	audioCommandLen = AudioHeaderSize + 1
	audioVolumeLen  = AudioHeaderSize + 4
)

// AudioControl is a 13-byte audio payload whose final byte is a command
type AudioControl struct {
	AudioHeader
	Command AudioCommand
}

func (m *AudioControl) Type() MessageType { return TypeAudio }

func (m *AudioControl) String() string {
	return fmt.Sprintf("AudioControl{type=%s, decode=%d, cmd=%s}",
		AudioType(m.AudioType), m.DecodeType, m.Command)
}

// AudioVolume is a 16-byte audio payload: a volume ramp for the channel
type AudioVolume struct {
	AudioHeader
	Duration float32
}

func (m *AudioVolume) Type() MessageType { return TypeAudio }

func (m *AudioVolume) String() string {
	return fmt.Sprintf("AudioVolume{type=%s, volume=%.2f, duration=%.2f}",
		AudioType(m.AudioType), m.Volume, m.Duration)
}

// AudioPCM is raw signed 16-bit PCM following the sub-header
type AudioPCM struct {
	AudioHeader
	Data []byte
}

func (m *AudioPCM) Type() MessageType { return TypeAudio }

func (m *AudioPCM) String() string {
	return fmt.Sprintf("AudioPCM{type=%s, decode=%d, bytes=%d}",
		AudioType(m.AudioType), m.DecodeType, len(m.Data))
}

// Command carries a 4-byte command id
type Command struct {
	ID CommandID
}

func (m *Command) Type() MessageType { return TypeCommand }

func (m *Command) String() string {
	return fmt.Sprintf("Command{%s}", m.ID)
}

// KeyframeRequest is the empty outbound use of TypePIN
type KeyframeRequest struct{}

func (m *KeyframeRequest) Type() MessageType { return TypePIN }
func (m *KeyframeRequest) String() string    { return "KeyframeRequest{}" }

// PairingPIN is the non-empty inbound use of TypePIN
type PairingPIN struct {
	PIN string
}

func (m *PairingPIN) Type() MessageType { return TypePIN }

func (m *PairingPIN) String() string {
	return fmt.Sprintf("PairingPIN{%s}", m.PIN)
}

// DeviceInfo covers the informational string notifications: Bluetooth
// address/name, WiFi name, paired list, HiCar link and software version.
type DeviceInfo struct {
	Kind  MessageType
	Value string
}

func (m *DeviceInfo) Type() MessageType { return m.Kind }

func (m *DeviceInfo) String() string {
	return fmt.Sprintf("%s{%q}", m.Kind, m.Value)
}

// ManufacturerInfo is two opaque adapter identifiers
type ManufacturerInfo struct {
	A uint32 `struc:"uint32,little"`
	B uint32 `struc:"uint32,little"`
}

func (m *ManufacturerInfo) Type() MessageType { return TypeManufacturerInfo }

func (m *ManufacturerInfo) String() string {
	return fmt.Sprintf("ManufacturerInfo{a=%d, b=%d}", m.A, m.B)
}

// BoxSettings is a JSON configuration blob (sent by the host, reported by the adapter)
type BoxSettings struct {
	Settings json.RawMessage
}

func (m *BoxSettings) Type() MessageType { return TypeBoxSettings }

func (m *BoxSettings) String() string {
	return fmt.Sprintf("BoxSettings{%d bytes}", len(m.Settings))
}

// MediaData is now-playing metadata pushed by the phone
type MediaData struct {
	Kind uint32
	Data []byte
}

func (m *MediaData) Type() MessageType { return TypeMediaData }

func (m *MediaData) String() string {
	return fmt.Sprintf("MediaData{kind=%d, bytes=%d}", m.Kind, len(m.Data))
}

// Heartbeat is the empty keepalive (sent by the host, sometimes echoed)
type Heartbeat struct{}

func (m *Heartbeat) Type() MessageType { return TypeHeartbeat }
func (m *Heartbeat) String() string    { return "Heartbeat{}" }

type touchPayload struct {
	Action uint32 `struc:"uint32,little"`
	X      uint32 `struc:"uint32,little"`
	Y      uint32 `struc:"uint32,little"`
	Flags  uint32 `struc:"uint32,little"`
}

// Touch is a single-contact touch event with coordinates scaled to 0..10000
type Touch struct {
	Action TouchAction
	X, Y   uint32
}

func (m *Touch) Type() MessageType { return TypeTouch }

func (m *Touch) String() string {
	return fmt.Sprintf("Touch{action=%d, x=%d, y=%d}", m.Action, m.X, m.Y)
}

// TouchContact is one contact of a multi-touch frame
type TouchContact struct {
	X      float32 `struc:"float32,little"`
	Y      float32 `struc:"float32,little"`
	Action uint32  `struc:"uint32,little"`
	ID     uint32  `struc:"uint32,little"`
}

const touchContactSize = 16

// MultiTouch carries several contacts with normalised coordinates
type MultiTouch struct {
	Contacts []TouchContact
}

func (m *MultiTouch) Type() MessageType { return TypeMultiTouch }

func (m *MultiTouch) String() string {
	return fmt.Sprintf("MultiTouch{contacts=%d}", len(m.Contacts))
}

// SendFile writes a small file on the adapter (settings are passed this way)
type SendFile struct {
	Name    string
	Content []byte
}

func (m *SendFile) Type() MessageType { return TypeSendFile }

func (m *SendFile) String() string {
	return fmt.Sprintf("SendFile{%s, %d bytes}", m.Name, len(m.Content))
}

// GNSS carries NMEA sentences for the phone's location services
type GNSS struct {
	NMEA []byte
}

func (m *GNSS) Type() MessageType { return TypeGNSS }

func (m *GNSS) String() string {
	return fmt.Sprintf("GNSS{%d bytes}", len(m.NMEA))
}

// Simple carries payload-free host requests (disconnect phone, close dongle)
type Simple struct {
	Kind MessageType
}

func (m *Simple) Type() MessageType { return m.Kind }
func (m *Simple) String() string    { return m.Kind.String() + "{}" }

// Unknown is the fallback for frames with no decode table entry
type Unknown struct {
	MessageType MessageType
	Data        []byte
}

func (m *Unknown) Type() MessageType { return m.MessageType }

func (m *Unknown) String() string {
	return fmt.Sprintf("Unknown{type=%s, len=%d}", m.MessageType, len(m.Data))
}
