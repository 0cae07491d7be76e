package protocol

import "fmt"

// AudioType selects the logical audio channel
type AudioType uint32

const (
	AudioMain       AudioType = 1
	AudioNavigation AudioType = 2
	AudioMicrophone AudioType = 3
)

// String returns a human-readable channel name
func (a AudioType) String() string {
	switch a {
	case AudioMain:
		return "main"
	case AudioNavigation:
		return "navigation"
	case AudioMicrophone:
		return "microphone"
	default:
		return fmt.Sprintf("audio_type(%d)", uint32(a))
	}
}

// AudioCommand is the single command byte of a 13-byte audio payload
type AudioCommand uint8

const (
	AudioOutputStart    AudioCommand = 1
	AudioOutputStop     AudioCommand = 2
	AudioInputStart     AudioCommand = 3
	AudioPhonecallStart AudioCommand = 4
	AudioPhonecallStop  AudioCommand = 5
	AudioNaviStart      AudioCommand = 6
	AudioNaviStop       AudioCommand = 7
	AudioSiriStart      AudioCommand = 8
	AudioSiriStop       AudioCommand = 9
	AudioMediaStart     AudioCommand = 10
	AudioMediaStop      AudioCommand = 11
	AudioAlertStart     AudioCommand = 12
	AudioAlertStop      AudioCommand = 13
	AudioIncomingCall   AudioCommand = 14
	AudioInputStop      AudioCommand = 15
	AudioNaviComplete   AudioCommand = 16
)

var audioCommandNames = map[AudioCommand]string{
	AudioOutputStart:    "OUTPUT_START",
	AudioOutputStop:     "OUTPUT_STOP",
	AudioInputStart:     "INPUT_START",
	AudioPhonecallStart: "PHONECALL_START",
	AudioPhonecallStop:  "PHONECALL_STOP",
	AudioNaviStart:      "NAVI_START",
	AudioNaviStop:       "NAVI_STOP",
	AudioSiriStart:      "SIRI_START",
	AudioSiriStop:       "SIRI_STOP",
	AudioMediaStart:     "MEDIA_START",
	AudioMediaStop:      "MEDIA_STOP",
	AudioAlertStart:     "ALERT_START",
	AudioAlertStop:      "ALERT_STOP",
	AudioIncomingCall:   "INCOMING_CALL",
	AudioInputStop:      "INPUT_STOP",
	AudioNaviComplete:   "NAVI_COMPLETE",
}

// String returns the command name
func (c AudioCommand) String() string {
	if name, ok := audioCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AUDIO_CMD(%d)", uint8(c))
}

// Known reports whether c is a recognised command
func (c AudioCommand) Known() bool {
	_, ok := audioCommandNames[c]
	return ok
}

// AudioFormat describes PCM layout. All PCM is signed 16-bit little-endian.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz/2ch"
func (f AudioFormat) String() string {
	if f.SampleRate == 0 {
		return "untagged"
	}
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// decodeTypeFormats lists the playback formats the router tags. Other
// decode_type values pass through untagged.
var decodeTypeFormats = map[uint32]AudioFormat{
	2: {SampleRate: 44100, Channels: 2},
	4: {SampleRate: 48000, Channels: 2},
	5: {SampleRate: 16000, Channels: 1},
}

// FormatForDecodeType maps a decode_type onto a playback format.
func FormatForDecodeType(decodeType uint32) (AudioFormat, bool) {
	f, ok := decodeTypeFormats[decodeType]
	return f, ok
}

// Microphone decode types. Capture is only ever 8 kHz or 16 kHz mono.
const (
	MicDecodeType8k  uint32 = 3
	MicDecodeType16k uint32 = 5
)

// MicSampleRate maps an input-start decode_type onto a capture rate.
func MicSampleRate(decodeType uint32) (int, bool) {
	switch decodeType {
	case MicDecodeType8k:
		return 8000, true
	case MicDecodeType16k:
		return 16000, true
	default:
		return 0, false
	}
}

// MicDecodeType is the inverse of MicSampleRate.
func MicDecodeType(sampleRate int) (uint32, bool) {
	switch sampleRate {
	case 8000:
		return MicDecodeType8k, true
	case 16000:
		return MicDecodeType16k, true
	default:
		return 0, false
	}
}
