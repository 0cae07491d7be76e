package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lunixbochs/struc"
)

// decodeKey selects the candidate layouts for a frame. Length picks among them.
type decodeKey struct {
	Type      MessageType
	Direction Direction
}

// variant is one payload layout. The first variant whose length predicate
// matches decodes the payload.
type variant struct {
	match  func(n int) bool
	decode func(payload []byte) (Message, error)
}

func exactly(n int) func(int) bool { return func(l int) bool { return l == n } }
func atLeast(n int) func(int) bool { return func(l int) bool { return l >= n } }
func anyLength(int) bool           { return true }

func multipleOf(n int) func(int) bool {
	return func(l int) bool { return l > 0 && l%n == 0 }
}

var decodeTable map[decodeKey][]variant

func init() {
	in := func(t MessageType) decodeKey { return decodeKey{t, Inbound} }
	out := func(t MessageType) decodeKey { return decodeKey{t, Outbound} }

	decodeTable = map[decodeKey][]variant{
		in(TypeOpen):  {{exactly(openSize), parseOpened}},
		out(TypeOpen): {{exactly(openSize), parseOpen}},

		in(TypePlugged): {
			{exactly(4), parsePluggedWired},
			{exactly(8), parsePlugged},
		},
		in(TypePhase):     {{exactly(4), parsePhase}},
		in(TypeUnplugged): {{anyLength, func([]byte) (Message, error) { return &Unplugged{}, nil }}},

		in(TypeVideo):     {{atLeast(VideoHeaderSize), videoParser(StreamPrimary)}},
		in(TypeNaviVideo): {{atLeast(VideoHeaderSize), videoParser(StreamNavigation)}},

		in(TypeAudio): {
			{exactly(audioCommandLen), parseAudioControl},
			{exactly(audioVolumeLen), parseAudioVolume},
			{atLeast(AudioHeaderSize), parseAudioPCM},
		},
		out(TypeAudio): {{atLeast(AudioHeaderSize), parseAudioPCM}},

		in(TypeCommand):  {{exactly(4), parseCommand}},
		out(TypeCommand): {{exactly(4), parseCommand}},

		in(TypePIN):  {{atLeast(1), parsePairingPIN}},
		out(TypePIN): {{exactly(0), func([]byte) (Message, error) { return &KeyframeRequest{}, nil }}},

		in(TypeBluetoothAddress):    {{anyLength, deviceInfoParser(TypeBluetoothAddress)}},
		in(TypeBluetoothDeviceName): {{anyLength, deviceInfoParser(TypeBluetoothDeviceName)}},
		in(TypeWifiDeviceName):      {{anyLength, deviceInfoParser(TypeWifiDeviceName)}},
		in(TypeBluetoothPairedList): {{anyLength, deviceInfoParser(TypeBluetoothPairedList)}},
		in(TypeHiCarLink):           {{anyLength, deviceInfoParser(TypeHiCarLink)}},
		in(TypeSoftwareVersion):     {{anyLength, deviceInfoParser(TypeSoftwareVersion)}},

		in(TypeManufacturerInfo): {{exactly(8), parseManufacturerInfo}},
		in(TypeBoxSettings):      {{anyLength, parseBoxSettings}},
		out(TypeBoxSettings):     {{anyLength, parseBoxSettings}},
		in(TypeMediaData):        {{atLeast(4), parseMediaData}},

		in(TypeHeartbeat):  {{anyLength, func([]byte) (Message, error) { return &Heartbeat{}, nil }}},
		out(TypeHeartbeat): {{exactly(0), func([]byte) (Message, error) { return &Heartbeat{}, nil }}},

		out(TypeTouch):      {{exactly(16), parseTouch}},
		out(TypeMultiTouch): {{multipleOf(touchContactSize), parseMultiTouch}},
		out(TypeSendFile):   {{atLeast(8), parseSendFile}},
		out(TypeGNSS):       {{atLeast(4), parseGNSS}},

		out(TypeDisconnectPhone): {{exactly(0), simpleParser(TypeDisconnectPhone)}},
		out(TypeCloseDongle):     {{exactly(0), simpleParser(TypeCloseDongle)}},
	}
}

// Parse decodes the payload of f as sent in direction dir. Frames whose
// (type, direction) has no table entry decode to *Unknown; a known pair whose
// payload length matches no layout is a *PayloadError.
func Parse(f Frame, dir Direction) (Message, error) {
	variants, ok := decodeTable[decodeKey{f.Type, dir}]
	if !ok {
		return &Unknown{MessageType: f.Type, Data: f.Payload}, nil
	}

	for _, v := range variants {
		if !v.match(len(f.Payload)) {
			continue
		}
		msg, err := v.decode(f.Payload)
		if err != nil {
			return nil, &PayloadError{Type: f.Type, Direction: dir, Length: len(f.Payload), Err: err}
		}
		return msg, nil
	}

	return nil, &PayloadError{Type: f.Type, Direction: dir, Length: len(f.Payload)}
}

// Known reports whether (t, dir) has a decode table entry
func Known(t MessageType, dir Direction) bool {
	_, ok := decodeTable[decodeKey{t, dir}]
	return ok
}

func unpack(payload []byte, v interface{}) error {
	return struc.Unpack(bytes.NewReader(payload), v)
}

func parseOpen(payload []byte) (Message, error) {
	m := &Open{}
	if err := unpack(payload, &m.OpenParams); err != nil {
		return nil, err
	}
	return m, nil
}

func parseOpened(payload []byte) (Message, error) {
	m := &Opened{}
	if err := unpack(payload, &m.OpenParams); err != nil {
		return nil, err
	}
	return m, nil
}

// parsePluggedWired handles the short form, which older firmware sends for
// wired phones.
func parsePluggedWired(payload []byte) (Message, error) {
	return &Plugged{
		Kind:   PeerKind(binary.LittleEndian.Uint32(payload)),
		Medium: MediumWired,
	}, nil
}

func parsePlugged(payload []byte) (Message, error) {
	var p pluggedPayload
	if err := unpack(payload, &p); err != nil {
		return nil, err
	}
	return &Plugged{Kind: PeerKind(p.Kind), Medium: Medium(p.Medium)}, nil
}

func parsePhase(payload []byte) (Message, error) {
	return &Phase{Value: binary.LittleEndian.Uint32(payload)}, nil
}

func videoParser(stream VideoStream) func([]byte) (Message, error) {
	return func(payload []byte) (Message, error) {
		m := &VideoData{Stream: stream}
		if err := unpack(payload[:VideoHeaderSize], &m.VideoHeader); err != nil {
			return nil, err
		}
		m.Data = payload[VideoHeaderSize:]
		return m, nil
	}
}

func parseAudioHeader(payload []byte) (AudioHeader, error) {
	var h AudioHeader
	err := unpack(payload[:AudioHeaderSize], &h)
	return h, err
}

func parseAudioControl(payload []byte) (Message, error) {
	h, err := parseAudioHeader(payload)
	if err != nil {
		return nil, err
	}
	return &AudioControl{AudioHeader: h, Command: AudioCommand(payload[AudioHeaderSize])}, nil
}

func parseAudioVolume(payload []byte) (Message, error) {
	h, err := parseAudioHeader(payload)
	if err != nil {
		return nil, err
	}
	d := math.Float32frombits(binary.LittleEndian.Uint32(payload[AudioHeaderSize:]))
	return &AudioVolume{AudioHeader: h, Duration: d}, nil
}

func parseAudioPCM(payload []byte) (Message, error) {
	h, err := parseAudioHeader(payload)
	if err != nil {
		return nil, err
	}
	return &AudioPCM{AudioHeader: h, Data: payload[AudioHeaderSize:]}, nil
}

func parseCommand(payload []byte) (Message, error) {
	return &Command{ID: CommandID(binary.LittleEndian.Uint32(payload))}, nil
}

func parsePairingPIN(payload []byte) (Message, error) {
	return &PairingPIN{PIN: nullTermString(payload)}, nil
}

func deviceInfoParser(t MessageType) func([]byte) (Message, error) {
	return func(payload []byte) (Message, error) {
		return &DeviceInfo{Kind: t, Value: nullTermString(payload)}, nil
	}
}

func simpleParser(t MessageType) func([]byte) (Message, error) {
	return func([]byte) (Message, error) { return &Simple{Kind: t}, nil }
}

func parseManufacturerInfo(payload []byte) (Message, error) {
	m := &ManufacturerInfo{}
	if err := unpack(payload, m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseBoxSettings(payload []byte) (Message, error) {
	raw := bytes.TrimRight(payload, "\x00")
	if len(raw) > 0 && !json.Valid(raw) {
		return nil, errors.New("settings are not valid JSON")
	}
	return &BoxSettings{Settings: json.RawMessage(raw)}, nil
}

func parseMediaData(payload []byte) (Message, error) {
	return &MediaData{
		Kind: binary.LittleEndian.Uint32(payload),
		Data: payload[4:],
	}, nil
}

func parseTouch(payload []byte) (Message, error) {
	var p touchPayload
	if err := unpack(payload, &p); err != nil {
		return nil, err
	}
	return &Touch{Action: TouchAction(p.Action), X: p.X, Y: p.Y}, nil
}

func parseMultiTouch(payload []byte) (Message, error) {
	n := len(payload) / touchContactSize
	m := &MultiTouch{Contacts: make([]TouchContact, n)}
	r := bytes.NewReader(payload)
	for i := range m.Contacts {
		if err := struc.Unpack(r, &m.Contacts[i]); err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
	}
	return m, nil
}

// SendFile layout: name length (including NUL), name, content length, content.
func parseSendFile(payload []byte) (Message, error) {
	// Lengths stay uint32 until bounded so a huge value cannot wrap int
	nameLen := binary.LittleEndian.Uint32(payload)
	if uint64(nameLen) > uint64(len(payload)-8) {
		return nil, fmt.Errorf("name length %d overruns payload", nameLen)
	}
	name := nullTermString(payload[4 : 4+int(nameLen)])
	rest := payload[4+int(nameLen):]
	contentLen := binary.LittleEndian.Uint32(rest)
	if uint64(contentLen) != uint64(len(rest)-4) {
		return nil, fmt.Errorf("content length %d, have %d", contentLen, len(rest)-4)
	}
	return &SendFile{Name: name, Content: rest[4:]}, nil
}

func parseGNSS(payload []byte) (Message, error) {
	n := binary.LittleEndian.Uint32(payload)
	if uint64(n) != uint64(len(payload)-4) {
		return nil, fmt.Errorf("NMEA length %d, have %d", n, len(payload)-4)
	}
	return &GNSS{NMEA: payload[4:]}, nil
}

func nullTermString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
