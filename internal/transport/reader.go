package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrResyncExhausted is returned when the stream produced too many
// consecutive bad envelopes without a single good frame in between.
var ErrResyncExhausted = errors.New("transport: resynchronisation limit reached")

const (
	// DefaultMaxResync is the consecutive resync budget when none is configured
	DefaultMaxResync = 64
	readChunk        = 16 * 1024
)

// Reader yields frames from a byte stream. Bytes already buffered survive
// partial reads. After a bad envelope it scans forward byte by byte for the
// next magic sequence, so one corrupt frame costs one frame.
type Reader struct {
	src       io.Reader
	buf       []byte
	start     int
	chunk     []byte
	maxResync int
	resyncs   int
	warn      rate.Sometimes
}

// NewReader wraps src. maxResync <= 0 selects DefaultMaxResync.
func NewReader(src io.Reader, maxResync int) *Reader {
	if maxResync <= 0 {
		maxResync = DefaultMaxResync
	}
	return &Reader{
		src:       src,
		chunk:     make([]byte, readChunk),
		maxResync: maxResync,
		warn:      rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
}

// ReadFrame blocks until a complete, valid frame is available. It returns
// ErrResyncExhausted after maxResync consecutive bad envelopes, or the
// underlying read error.
func (r *Reader) ReadFrame() (protocol.Frame, error) {
	for {
		f, n, err := protocol.Decode(r.buf[r.start:])
		if err == nil {
			r.start += n
			r.resyncs = 0
			r.compact()
			return f, nil
		}

		if protocol.IsTruncated(err) {
			if err := r.fill(); err != nil {
				return protocol.Frame{}, err
			}
			continue
		}

		var fe *protocol.FrameError
		if !errors.As(err, &fe) {
			return protocol.Frame{}, err
		}
		if err := r.resync(fe); err != nil {
			return protocol.Frame{}, err
		}
	}
}

// Resyncs returns the current count of consecutive resynchronisations
func (r *Reader) Resyncs() int {
	return r.resyncs
}

func (r *Reader) resync(fe *protocol.FrameError) error {
	r.resyncs++
	metrics.Resyncs.WithLabelValues(fe.Kind.String()).Inc()
	r.warn.Do(func() {
		logging.Warn("Resynchronising frame stream",
			zap.String("cause", fe.Kind.String()),
			zap.String("detail", fe.Detail),
			zap.Int("consecutive", r.resyncs),
		)
	})
	if r.resyncs > r.maxResync {
		return fmt.Errorf("%w: %d consecutive bad envelopes", ErrResyncExhausted, r.resyncs)
	}

	// Always advance at least one byte past the rejected position
	next := protocol.IndexMagic(r.buf, r.start+1)
	if next < 0 {
		r.buf = r.buf[:0]
		r.start = 0
		return nil
	}
	r.start = next
	r.compact()
	return nil
}

func (r *Reader) fill() error {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		metrics.BytesIn.Add(float64(n))
		r.buf = append(r.buf, r.chunk[:n]...)
		if logging.DebugEnabled() {
			logging.LogRawBytes("in", r.chunk[:n])
		}
	}
	if err != nil {
		if n > 0 && errors.Is(err, io.EOF) {
			// Let the caller see the buffered bytes before EOF
			return nil
		}
		return err
	}
	return nil
}

// compact drops consumed bytes once they dominate the buffer
func (r *Reader) compact() {
	if r.start == 0 {
		return
	}
	if r.start == len(r.buf) {
		r.buf = r.buf[:0]
		r.start = 0
		return
	}
	if r.start > len(r.buf)/2 {
		n := copy(r.buf, r.buf[r.start:])
		r.buf = r.buf[:n]
		r.start = 0
	}
}
