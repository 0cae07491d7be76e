package protocol

import "fmt"

// Class is the semantic category of an inbound message or command id.
type Class int

const (
	// ClassControl messages are acted on immediately
	ClassControl Class = iota
	// ClassStatusNotification messages update telemetry only. They never move
	// the session phase.
	ClassStatusNotification
	// ClassSessionAffecting messages may end the session
	ClassSessionAffecting
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case ClassControl:
		return "Control"
	case ClassStatusNotification:
		return "StatusNotification"
	case ClassSessionAffecting:
		return "SessionAffecting"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Flow is the expected direction of a message or command
type Flow int

const (
	FlowHostToAdapter Flow = iota + 1
	FlowAdapterToHost
	FlowBidirectional
)

// String returns the flow as an arrow
func (f Flow) String() string {
	switch f {
	case FlowHostToAdapter:
		return "host->adapter"
	case FlowAdapterToHost:
		return "adapter->host"
	case FlowBidirectional:
		return "both"
	default:
		return "unknown"
	}
}

// Allows reports whether a frame travelling in dir is expected
func (f Flow) Allows(dir Direction) bool {
	switch f {
	case FlowBidirectional:
		return true
	case FlowHostToAdapter:
		return dir == Outbound
	case FlowAdapterToHost:
		return dir == Inbound
	default:
		return false
	}
}

// CommandID is the 4-byte id carried by TypeCommand
type CommandID uint32

const (
	CmdStartRecordAudio  CommandID = 1
	CmdStopRecordAudio   CommandID = 2
	CmdRequestHostUI     CommandID = 3
	CmdSiri              CommandID = 5
	CmdHostMic           CommandID = 7
	CmdFrame             CommandID = 12
	CmdBoxMic            CommandID = 15
	CmdEnableNightMode   CommandID = 16
	CmdDisableNightMode  CommandID = 17
	CmdAudioTransferOn   CommandID = 22
	CmdAudioTransferOff  CommandID = 23
	CmdWifi24G           CommandID = 24
	CmdWifi5G            CommandID = 25
	CmdLeft              CommandID = 100
	CmdRight             CommandID = 101
	CmdSelectDown        CommandID = 104
	CmdSelectUp          CommandID = 105
	CmdBack              CommandID = 106
	CmdUp                CommandID = 113
	CmdDown              CommandID = 114
	CmdHome              CommandID = 200
	CmdPlay              CommandID = 201
	CmdPause             CommandID = 202
	CmdPlayOrPause       CommandID = 203
	CmdNext              CommandID = 204
	CmdPrev              CommandID = 205
	CmdAcceptPhone       CommandID = 300
	CmdRejectPhone       CommandID = 301
	CmdRequestVideoFocus CommandID = 500
	CmdReleaseVideoFocus CommandID = 501
	CmdRequestNaviFocus  CommandID = 508
	CmdReleaseNaviFocus  CommandID = 509
	CmdWifiEnable        CommandID = 1000
	CmdAutoConnect       CommandID = 1001
	CmdWifiConnect       CommandID = 1002
	CmdScanningDevice    CommandID = 1003
	CmdDeviceFound       CommandID = 1004
	CmdDeviceNotFound    CommandID = 1005
	CmdConnectFailed     CommandID = 1006
	CmdBTConnected       CommandID = 1007
	CmdBTDisconnected    CommandID = 1008
	CmdWifiConnected     CommandID = 1009
	CmdWifiDisconnected  CommandID = 1010
	CmdBTPairStart       CommandID = 1011
	CmdWifiPair          CommandID = 1012
)

// CommandRecord is one row of the command table
type CommandRecord struct {
	ID    CommandID
	Name  string
	Flow  Flow
	Class Class
}

var commandTable = map[CommandID]CommandRecord{}

func control(id CommandID, name string, flow Flow) {
	commandTable[id] = CommandRecord{ID: id, Name: name, Flow: flow, Class: ClassControl}
}

func status(id CommandID, name string) {
	commandTable[id] = CommandRecord{ID: id, Name: name, Flow: FlowAdapterToHost, Class: ClassStatusNotification}
}

func init() {
	control(CmdStartRecordAudio, "StartRecordAudio", FlowAdapterToHost)
	control(CmdStopRecordAudio, "StopRecordAudio", FlowAdapterToHost)
	control(CmdRequestHostUI, "RequestHostUI", FlowAdapterToHost)
	control(CmdSiri, "Siri", FlowHostToAdapter)
	control(CmdHostMic, "HostMic", FlowHostToAdapter)
	control(CmdFrame, "Frame", FlowHostToAdapter)
	control(CmdBoxMic, "BoxMic", FlowHostToAdapter)
	control(CmdEnableNightMode, "EnableNightMode", FlowHostToAdapter)
	control(CmdDisableNightMode, "DisableNightMode", FlowHostToAdapter)
	control(CmdAudioTransferOn, "AudioTransferOn", FlowHostToAdapter)
	control(CmdAudioTransferOff, "AudioTransferOff", FlowHostToAdapter)
	control(CmdWifi24G, "Wifi24G", FlowHostToAdapter)
	control(CmdWifi5G, "Wifi5G", FlowHostToAdapter)

	// Knob and d-pad block
	for id := CommandID(100); id <= 114; id++ {
		control(id, fmt.Sprintf("Knob%d", id), FlowHostToAdapter)
	}
	control(CmdLeft, "Left", FlowHostToAdapter)
	control(CmdRight, "Right", FlowHostToAdapter)
	control(CmdSelectDown, "SelectDown", FlowHostToAdapter)
	control(CmdSelectUp, "SelectUp", FlowHostToAdapter)
	control(CmdBack, "Back", FlowHostToAdapter)
	control(CmdUp, "Up", FlowHostToAdapter)
	control(CmdDown, "Down", FlowHostToAdapter)

	control(CmdHome, "Home", FlowHostToAdapter)
	control(CmdPlay, "Play", FlowHostToAdapter)
	control(CmdPause, "Pause", FlowHostToAdapter)
	control(CmdPlayOrPause, "PlayOrPause", FlowHostToAdapter)
	control(CmdNext, "Next", FlowHostToAdapter)
	control(CmdPrev, "Prev", FlowHostToAdapter)
	control(CmdAcceptPhone, "AcceptPhone", FlowHostToAdapter)
	control(CmdRejectPhone, "RejectPhone", FlowHostToAdapter)
	control(CmdRequestVideoFocus, "RequestVideoFocus", FlowBidirectional)
	control(CmdReleaseVideoFocus, "ReleaseVideoFocus", FlowBidirectional)
	control(CmdRequestNaviFocus, "RequestNaviFocus", FlowBidirectional)
	control(CmdReleaseNaviFocus, "ReleaseNaviFocus", FlowBidirectional)
	control(CmdWifiEnable, "WifiEnable", FlowHostToAdapter)
	control(CmdAutoConnect, "AutoConnect", FlowHostToAdapter)
	control(CmdWifiConnect, "WifiConnect", FlowHostToAdapter)
	control(CmdWifiPair, "WifiPair", FlowHostToAdapter)

	// Wireless link notices. These are informational even when the wording
	// sounds fatal: a WiFi blip reports WifiDisconnected while the session
	// carries on.
	status(CmdScanningDevice, "ScanningDevice")
	status(CmdDeviceFound, "DeviceFound")
	status(CmdDeviceNotFound, "DeviceNotFound")
	status(CmdConnectFailed, "ConnectDeviceFailed")
	status(CmdBTConnected, "BTConnected")
	status(CmdBTDisconnected, "BTDisconnected")
	status(CmdWifiConnected, "WifiConnected")
	status(CmdWifiDisconnected, "WifiDisconnected")
	status(CmdBTPairStart, "BTPairStart")
}

// LookupCommand returns the table row for id
func LookupCommand(id CommandID) (CommandRecord, bool) {
	r, ok := commandTable[id]
	return r, ok
}

// ClassifyCommand returns the row for id. Unknown ids are treated as status
// notifications: no command id can end a session.
func ClassifyCommand(id CommandID) CommandRecord {
	if r, ok := commandTable[id]; ok {
		return r
	}
	return CommandRecord{
		ID:    id,
		Name:  fmt.Sprintf("Command(%d)", uint32(id)),
		Flow:  FlowAdapterToHost,
		Class: ClassStatusNotification,
	}
}

// String returns the command name
func (id CommandID) String() string {
	return ClassifyCommand(id).Name
}

// TypeRecord classifies a whole message type
type TypeRecord struct {
	Flow  Flow
	Class Class
}

// typeTable covers every type code. Phase is listed as Control; a phase value
// of zero is promoted to SessionAffecting by Classify.
var typeTable = map[MessageType]TypeRecord{
	TypeOpen:                {FlowBidirectional, ClassControl},
	TypePlugged:             {FlowAdapterToHost, ClassControl},
	TypePhase:               {FlowAdapterToHost, ClassControl},
	TypeUnplugged:           {FlowAdapterToHost, ClassSessionAffecting},
	TypeTouch:               {FlowHostToAdapter, ClassControl},
	TypeVideo:               {FlowAdapterToHost, ClassControl},
	TypeAudio:               {FlowBidirectional, ClassControl},
	TypeCommand:             {FlowBidirectional, ClassControl},
	TypeLogoType:            {FlowHostToAdapter, ClassControl},
	TypeBluetoothAddress:    {FlowAdapterToHost, ClassStatusNotification},
	TypePIN:                 {FlowBidirectional, ClassStatusNotification},
	TypeBluetoothDeviceName: {FlowAdapterToHost, ClassStatusNotification},
	TypeWifiDeviceName:      {FlowAdapterToHost, ClassStatusNotification},
	TypeDisconnectPhone:     {FlowHostToAdapter, ClassControl},
	TypeBluetoothPairedList: {FlowAdapterToHost, ClassStatusNotification},
	TypeManufacturerInfo:    {FlowAdapterToHost, ClassStatusNotification},
	TypeCloseDongle:         {FlowHostToAdapter, ClassControl},
	TypeMultiTouch:          {FlowHostToAdapter, ClassControl},
	TypeHiCarLink:           {FlowAdapterToHost, ClassStatusNotification},
	TypeBoxSettings:         {FlowBidirectional, ClassStatusNotification},
	TypeGNSS:                {FlowHostToAdapter, ClassControl},
	TypeMediaData:           {FlowAdapterToHost, ClassStatusNotification},
	TypeNaviVideo:           {FlowAdapterToHost, ClassControl},
	TypeSendFile:            {FlowHostToAdapter, ClassControl},
	TypeHeartbeat:           {FlowBidirectional, ClassStatusNotification},
	TypeSoftwareVersion:     {FlowAdapterToHost, ClassStatusNotification},
}

// LookupType returns the record for a type code
func LookupType(t MessageType) (TypeRecord, bool) {
	r, ok := typeTable[t]
	return r, ok
}

// Classify tags a decoded message. Exactly two message shapes are
// SessionAffecting: Unplugged and a Phase with value zero. The third trigger,
// liveness timeout, is a local event with no message.
func Classify(msg Message) Class {
	switch m := msg.(type) {
	case *Unplugged:
		return ClassSessionAffecting
	case *Phase:
		if m.Value == PhaseTerminated {
			return ClassSessionAffecting
		}
		return ClassControl
	case *Command:
		return ClassifyCommand(m.ID).Class
	case *Unknown:
		return ClassStatusNotification
	}
	if r, ok := typeTable[msg.Type()]; ok && r.Class != ClassSessionAffecting {
		return r.Class
	}
	return ClassStatusNotification
}

// IsSessionEnding reports whether msg terminates the session
func IsSessionEnding(msg Message) bool {
	return Classify(msg) == ClassSessionAffecting
}
