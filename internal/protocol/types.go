package protocol

import "fmt"

// MessageType is the envelope type code.
type MessageType uint32

// Message type codes. Several are dual-purpose: the same code means different
// things depending on direction and payload length (see parser.go).
const (
	TypeOpen                MessageType = 0x01 // out: open request; in: opened echo
	TypePlugged             MessageType = 0x02
	TypePhase               MessageType = 0x03
	TypeUnplugged           MessageType = 0x04
	TypeTouch               MessageType = 0x05
	TypeVideo               MessageType = 0x06
	TypeAudio               MessageType = 0x07 // in: command/volume/PCM; out: microphone PCM
	TypeCommand             MessageType = 0x08
	TypeLogoType            MessageType = 0x09
	TypeBluetoothAddress    MessageType = 0x0A
	TypePIN                 MessageType = 0x0C // out empty: keyframe request; in: pairing PIN
	TypeBluetoothDeviceName MessageType = 0x0D
	TypeWifiDeviceName      MessageType = 0x0E
	TypeDisconnectPhone     MessageType = 0x0F
	TypeBluetoothPairedList MessageType = 0x12
	TypeManufacturerInfo    MessageType = 0x14
	TypeCloseDongle         MessageType = 0x15
	TypeMultiTouch          MessageType = 0x17
	TypeHiCarLink           MessageType = 0x18
	TypeBoxSettings         MessageType = 0x19
	TypeGNSS                MessageType = 0x29
	TypeMediaData           MessageType = 0x2A
	TypeNaviVideo           MessageType = 0x2C
	TypeSendFile            MessageType = 0x99
	TypeHeartbeat           MessageType = 0xAA
	TypeSoftwareVersion     MessageType = 0xCC
)

var messageTypeNames = map[MessageType]string{
	TypeOpen:                "Open",
	TypePlugged:             "Plugged",
	TypePhase:               "Phase",
	TypeUnplugged:           "Unplugged",
	TypeTouch:               "Touch",
	TypeVideo:               "Video",
	TypeAudio:               "Audio",
	TypeCommand:             "Command",
	TypeLogoType:            "LogoType",
	TypeBluetoothAddress:    "BluetoothAddress",
	TypePIN:                 "PIN",
	TypeBluetoothDeviceName: "BluetoothDeviceName",
	TypeWifiDeviceName:      "WifiDeviceName",
	TypeDisconnectPhone:     "DisconnectPhone",
	TypeBluetoothPairedList: "BluetoothPairedList",
	TypeManufacturerInfo:    "ManufacturerInfo",
	TypeCloseDongle:         "CloseDongle",
	TypeMultiTouch:          "MultiTouch",
	TypeHiCarLink:           "HiCarLink",
	TypeBoxSettings:         "BoxSettings",
	TypeGNSS:                "GNSS",
	TypeMediaData:           "MediaData",
	TypeNaviVideo:           "NaviVideo",
	TypeSendFile:            "SendFile",
	TypeHeartbeat:           "Heartbeat",
	TypeSoftwareVersion:     "SoftwareVersion",
}

// String returns a human-readable name for the type code
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint32(t))
}

// Direction says which side sent a frame.
type Direction int

const (
	// Inbound frames travel adapter -> host
	Inbound Direction = iota
	// Outbound frames travel host -> adapter
	Outbound
)

// String returns "in" or "out"
func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// Phase values carried by TypePhase
const (
	PhaseTerminated uint32 = 0
	PhaseConnecting uint32 = 7
	PhaseStreaming  uint32 = 8
)

// PeerKind identifies the projection protocol on the phone side
type PeerKind uint32

const (
	PeerUnknown     PeerKind = 0
	PeerCarPlay     PeerKind = 3
	PeerAndroidAuto PeerKind = 5
	PeerHiCar       PeerKind = 6
)

// String returns a human-readable name for the peer kind
func (k PeerKind) String() string {
	switch k {
	case PeerCarPlay:
		return "CarPlay"
	case PeerAndroidAuto:
		return "AndroidAuto"
	case PeerHiCar:
		return "HiCar"
	case PeerUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("PeerKind(%d)", uint32(k))
	}
}

// Medium is the phone <-> adapter link
type Medium uint32

const (
	MediumWired    Medium = 0
	MediumWireless Medium = 1
)

// String returns "wired" or "wireless"
func (m Medium) String() string {
	if m == MediumWireless {
		return "wireless"
	}
	return "wired"
}

// Touch actions for single-touch frames
type TouchAction uint32

const (
	TouchDown TouchAction = 14
	TouchMove TouchAction = 15
	TouchUp   TouchAction = 16
)

// Multi-touch contact actions
const (
	MultiTouchUp   uint32 = 0
	MultiTouchDown uint32 = 1
	MultiTouchMove uint32 = 2
)
