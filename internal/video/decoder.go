package video

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/muurk/carlink/internal/protocol"
)

// ErrCorrupted is returned by Decoder.Submit when the decoder's reference
// state is broken and it needs a new keyframe.
var ErrCorrupted = errors.New("video: decoder corrupted")

// Decoder consumes admitted access units. Decoding and rendering happen
// behind this interface.
type Decoder interface {
	// Submit feeds one Annex-B access unit. Returning an error wrapping
	// ErrCorrupted triggers keyframe recovery.
	Submit(data []byte, keyframe bool) error
	// NeedsReplacement reports whether recovery must discard this instance
	// instead of continuing to feed it after the next keyframe.
	NeedsReplacement() bool
	Close() error
}

// DecoderFactory creates a decoder for one stream
type DecoderFactory func(stream protocol.VideoStream) (Decoder, error)

// FuncDecoder adapts a callback into a Decoder that never needs replacement
type FuncDecoder func(data []byte, keyframe bool) error

// Submit calls f
func (f FuncDecoder) Submit(data []byte, keyframe bool) error { return f(data, keyframe) }

// NeedsReplacement always reports false
func (f FuncDecoder) NeedsReplacement() bool { return false }

// Close does nothing
func (f FuncDecoder) Close() error { return nil }

// StreamWriter writes admitted access units as a raw Annex-B elementary
// stream, which ffplay and gstreamer can render directly.
type StreamWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

// NewStreamWriter writes to w. If w is an io.Closer it is closed by Close.
func NewStreamWriter(w io.Writer) *StreamWriter {
	sw := &StreamWriter{w: bufio.NewWriterSize(w, 256*1024)}
	if c, ok := w.(io.Closer); ok {
		sw.c = c
	}
	return sw
}

// FileDecoderFactory returns a factory writing each stream to its own file,
// named "<prefix>-<stream>.h264".
func FileDecoderFactory(prefix string) DecoderFactory {
	return func(stream protocol.VideoStream) (Decoder, error) {
		name := fmt.Sprintf("%s-%s.h264", prefix, stream)
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open video output: %w", err)
		}
		return NewStreamWriter(f), nil
	}
}

// Submit appends data to the stream
func (s *StreamWriter) Submit(data []byte, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	return s.w.Flush()
}

// NeedsReplacement reports false; a byte stream has no reference state
func (s *StreamWriter) NeedsReplacement() bool { return false }

// Close flushes and closes the underlying writer
func (s *StreamWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
