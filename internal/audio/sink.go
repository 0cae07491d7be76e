package audio

import (
	"github.com/muurk/carlink/internal/protocol"
)

// Sink plays one audio_type's PCM. The router pauses a sink on stop and
// resumes it on start; it never closes a sink while the session lives, since
// the adapter emits stop/start bursts during calls.
type Sink interface {
	// Write plays signed 16-bit little-endian PCM. An untagged format means
	// the decode_type had no known layout.
	Write(pcm []byte, format protocol.AudioFormat) error
	SetVolume(v float32)
	Pause()
	Resume()
	Close() error
}

// SinkFactory creates the sink for an audio_type on first use
type SinkFactory func(t protocol.AudioType) (Sink, error)

// Capture is the microphone collaborator. Start is only ever called with 8000
// or 16000.
type Capture interface {
	Start(sampleRate int) error
	Stop()
}

// nopSink discards audio; used when the factory fails so one broken output
// does not stall routing.
type nopSink struct{}

func (nopSink) Write([]byte, protocol.AudioFormat) error { return nil }
func (nopSink) SetVolume(float32)                        {}
func (nopSink) Pause()                                   {}
func (nopSink) Resume()                                  {}
func (nopSink) Close() error                             { return nil }
