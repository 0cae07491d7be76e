package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hajimehoshi/oto/v2"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
)

// DefaultBufferLimit bounds each sink's pending PCM to roughly half a second
// of 48 kHz stereo.
const DefaultBufferLimit = OutputSampleRate * OutputChannels * 2 / 2

var errSinkClosed = errors.New("audio sink closed")

// OtoOutput shares one oto context across all audio_type sinks. oto permits a
// single context per process.
type OtoOutput struct {
	ctx   *oto.Context
	limit int
}

// NewOtoOutput opens the system audio device at 48 kHz stereo
func NewOtoOutput(bufferLimit int) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(OutputSampleRate, OutputChannels, 2)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	if bufferLimit <= 0 {
		bufferLimit = DefaultBufferLimit
	}
	return &OtoOutput{ctx: ctx, limit: bufferLimit}, nil
}

// Factory returns a SinkFactory producing one player per audio_type
func (o *OtoOutput) Factory() SinkFactory {
	return func(t protocol.AudioType) (Sink, error) {
		buf := newPCMBuffer(o.limit)
		p := o.ctx.NewPlayer(buf)
		logging.Debug("Created audio player", zap.String("audio_type", t.String()))
		return &otoSink{player: p, buf: buf, audioType: t}, nil
	}
}

type otoSink struct {
	player    oto.Player
	buf       *pcmBuffer
	audioType protocol.AudioType

	mu     sync.Mutex
	closed bool
}

func (s *otoSink) Write(pcm []byte, f protocol.AudioFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if dropped := s.buf.Write(ToOutput(pcm, f)); dropped > 0 {
		logging.Debug("Audio sink overrun",
			zap.String("audio_type", s.audioType.String()),
			zap.Int("dropped_bytes", dropped))
	}
	if !s.player.IsPlaying() {
		s.player.Play()
	}
	return nil
}

func (s *otoSink) SetVolume(v float32) {
	s.player.SetVolume(float64(v))
}

func (s *otoSink) Pause() {
	s.player.Pause()
	s.buf.Reset()
}

func (s *otoSink) Resume() {
	s.player.Play()
}

func (s *otoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.player.Close()
}

// pcmBuffer feeds an oto player. Reads never block: an empty buffer yields
// silence so the player keeps its clock running between bursts.
type pcmBuffer struct {
	mu    sync.Mutex
	data  []byte
	limit int
}

func newPCMBuffer(limit int) *pcmBuffer {
	return &pcmBuffer{limit: limit}
}

// Write appends pcm, discarding the oldest audio beyond the limit. It
// returns the number of bytes discarded.
func (b *pcmBuffer) Write(pcm []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, pcm...)
	over := len(b.data) - b.limit
	if over <= 0 {
		return 0
	}
	// Keep whole stereo frames
	over += (4 - over%4) % 4
	if over > len(b.data) {
		over = len(b.data)
	}
	b.data = append(b.data[:0], b.data[over:]...)
	return over
}

func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(p, b.data)
	b.data = b.data[n:]
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (b *pcmBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *pcmBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}
