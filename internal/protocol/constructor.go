package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lunixbochs/struc"
)

// TouchScale is the full-scale value of single-touch coordinates
const TouchScale = 10000

// mustPack packs a fixed-layout struct. The layouts in this package are
// static, so a failure here is a programming error.
func mustPack(v interface{}) []byte {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, v); err != nil {
		panic(fmt.Sprintf("protocol: pack %T: %v", v, err))
	}
	return buf.Bytes()
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// BuildOpen constructs the session open request
func BuildOpen(p OpenParams) Frame {
	return Frame{Type: TypeOpen, Payload: mustPack(&p)}
}

// BuildHeartbeat constructs the empty keepalive
func BuildHeartbeat() Frame {
	return Frame{Type: TypeHeartbeat}
}

// BuildCommand constructs a command frame
func BuildCommand(id CommandID) Frame {
	return Frame{Type: TypeCommand, Payload: u32(uint32(id))}
}

// BuildKeyframeRequest asks the adapter for a fresh IDR frame
func BuildKeyframeRequest() Frame {
	return Frame{Type: TypePIN}
}

// BuildDisconnectPhone asks the adapter to drop the phone link
func BuildDisconnectPhone() Frame {
	return Frame{Type: TypeDisconnectPhone}
}

// BuildCloseDongle asks the adapter to close its side of the session
func BuildCloseDongle() Frame {
	return Frame{Type: TypeCloseDongle}
}

func scaleTouch(v float64) uint32 {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint32(math.Round(v * TouchScale))
}

// BuildTouch constructs a single-touch frame. x and y are normalised to
// [0,1] and clamped.
func BuildTouch(action TouchAction, x, y float64) Frame {
	p := &touchPayload{
		Action: uint32(action),
		X:      scaleTouch(x),
		Y:      scaleTouch(y),
	}
	return Frame{Type: TypeTouch, Payload: mustPack(p)}
}

// BuildMultiTouch constructs a multi-touch frame
func BuildMultiTouch(contacts []TouchContact) Frame {
	var buf bytes.Buffer
	for i := range contacts {
		if err := struc.Pack(&buf, &contacts[i]); err != nil {
			panic(fmt.Sprintf("protocol: pack contact: %v", err))
		}
	}
	return Frame{Type: TypeMultiTouch, Payload: buf.Bytes()}
}

// BuildSendFile constructs a file write. The name is NUL-terminated on the wire.
func BuildSendFile(name string, content []byte) Frame {
	nameBytes := append([]byte(name), 0)
	var buf bytes.Buffer
	buf.Write(u32(uint32(len(nameBytes))))
	buf.Write(nameBytes)
	buf.Write(u32(uint32(len(content))))
	buf.Write(content)
	return Frame{Type: TypeSendFile, Payload: buf.Bytes()}
}

// BuildSendNumber writes a u32 setting file
func BuildSendNumber(name string, v uint32) Frame {
	return BuildSendFile(name, u32(v))
}

// BuildSendBool writes a boolean setting file as 0 or 1
func BuildSendBool(name string, v bool) Frame {
	var n uint32
	if v {
		n = 1
	}
	return BuildSendNumber(name, n)
}

// BuildSendString writes a text setting file
func BuildSendString(name, s string) Frame {
	return BuildSendFile(name, []byte(s))
}

// BuildBoxSettings marshals v as the adapter's JSON settings blob
func BuildBoxSettings(v interface{}) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal box settings: %w", err)
	}
	return Frame{Type: TypeBoxSettings, Payload: data}, nil
}

// BuildMicrophoneAudio wraps captured PCM for the adapter
func BuildMicrophoneAudio(decodeType uint32, pcm []byte) Frame {
	h := mustPack(&AudioHeader{DecodeType: decodeType, AudioType: uint32(AudioMicrophone)})
	return Frame{Type: TypeAudio, Payload: append(h, pcm...)}
}

// BuildGNSS wraps NMEA sentences with their length prefix
func BuildGNSS(nmea []byte) Frame {
	return Frame{Type: TypeGNSS, Payload: append(u32(uint32(len(nmea))), nmea...)}
}

// Adapter-side builders. The host never sends these; they exist for bench
// rigs and tests that play the adapter's part.

// BuildOpened constructs the adapter's echo of the open parameters
func BuildOpened(p OpenParams) Frame {
	return Frame{Type: TypeOpen, Payload: mustPack(&p)}
}

// BuildPhase constructs a phase report
func BuildPhase(v uint32) Frame {
	return Frame{Type: TypePhase, Payload: u32(v)}
}

// BuildPlugged constructs the long form of the plugged notification
func BuildPlugged(kind PeerKind, medium Medium) Frame {
	return Frame{Type: TypePlugged, Payload: mustPack(&pluggedPayload{Kind: uint32(kind), Medium: uint32(medium)})}
}

// BuildUnplugged constructs the unplugged notification
func BuildUnplugged() Frame {
	return Frame{Type: TypeUnplugged}
}

// BuildVideo constructs a video frame on the given stream
func BuildVideo(stream VideoStream, h VideoHeader, nal []byte) Frame {
	t := TypeVideo
	if stream == StreamNavigation {
		t = TypeNaviVideo
	}
	return Frame{Type: t, Payload: append(mustPack(&h), nal...)}
}

// BuildAudioCommand constructs a 13-byte audio command
func BuildAudioCommand(decodeType uint32, audioType AudioType, cmd AudioCommand) Frame {
	h := mustPack(&AudioHeader{DecodeType: decodeType, AudioType: uint32(audioType)})
	return Frame{Type: TypeAudio, Payload: append(h, byte(cmd))}
}

// BuildAudioVolume constructs a 16-byte volume ramp
func BuildAudioVolume(audioType AudioType, volume, duration float32) Frame {
	h := mustPack(&AudioHeader{Volume: volume, AudioType: uint32(audioType)})
	return Frame{Type: TypeAudio, Payload: append(h, u32(math.Float32bits(duration))...)}
}

// BuildAudioPCM constructs an inbound PCM chunk
func BuildAudioPCM(decodeType uint32, audioType AudioType, pcm []byte) Frame {
	h := mustPack(&AudioHeader{DecodeType: decodeType, AudioType: uint32(audioType)})
	return Frame{Type: TypeAudio, Payload: append(h, pcm...)}
}

// InitParams are the host settings pushed to the adapter at session start
type InitParams struct {
	Open           OpenParams
	DPI            uint32
	NightMode      bool
	RightHandDrive bool
	ChargeMode     uint32
	BoxName        string
	MediaDelay     int
	Wifi5G         bool
	BoxMic         bool
	AudioTransfer  bool
	SyncTime       time.Time
}

// boxSettings is the JSON blob the adapter expects
type boxSettings struct {
	MediaDelay       int   `json:"mediaDelay"`
	SyncTime         int64 `json:"syncTime"`
	AndroidAutoSizeW int   `json:"androidAutoSizeW"`
	AndroidAutoSizeH int   `json:"androidAutoSizeH"`
}

// Adapter-side file paths written during initialisation
const (
	FileScreenDPI     = "/tmp/screen_dpi"
	FileNightMode     = "/tmp/night_mode"
	FileHandDriveMode = "/tmp/hand_drive_mode"
	FileChargeMode    = "/tmp/charge_mode"
	FileBoxName       = "/etc/box_name"
)

// BuildInitSequence returns the frames sent at session start, in order.
// The DPI file precedes Open; everything else follows it.
func BuildInitSequence(p InitParams) ([]Frame, error) {
	settings, err := BuildBoxSettings(&boxSettings{
		MediaDelay:       p.MediaDelay,
		SyncTime:         p.SyncTime.Unix(),
		AndroidAutoSizeW: int(p.Open.Width),
		AndroidAutoSizeH: int(p.Open.Height),
	})
	if err != nil {
		return nil, err
	}

	band := CmdWifi24G
	if p.Wifi5G {
		band = CmdWifi5G
	}
	mic := CmdHostMic
	if p.BoxMic {
		mic = CmdBoxMic
	}
	transfer := CmdAudioTransferOff
	if p.AudioTransfer {
		transfer = CmdAudioTransferOn
	}

	return []Frame{
		BuildSendNumber(FileScreenDPI, p.DPI),
		BuildOpen(p.Open),
		BuildSendBool(FileNightMode, p.NightMode),
		BuildSendBool(FileHandDriveMode, p.RightHandDrive),
		BuildSendNumber(FileChargeMode, p.ChargeMode),
		BuildSendString(FileBoxName, p.BoxName),
		settings,
		BuildCommand(CmdWifiEnable),
		BuildCommand(band),
		BuildCommand(mic),
		BuildCommand(transfer),
	}, nil
}
