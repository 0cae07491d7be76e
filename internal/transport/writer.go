package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
)

// ErrWriterClosed is returned by Send after Close or a write failure
var ErrWriterClosed = errors.New("transport: writer closed")

// DefaultWriteQueue is the outbound queue depth when none is configured
const DefaultWriteQueue = 64

// Writer serialises frames from any number of goroutines onto one
// io.Writer. Run must be running for Send to make progress.
type Writer struct {
	dst   io.Writer
	queue chan protocol.Frame
	done  chan struct{}

	// closing releases senders blocked on a full queue so Close can take mu
	closing     chan struct{}
	closingOnce sync.Once

	mu     sync.RWMutex
	closed bool
	err    error
}

// NewWriter creates a writer with the given queue depth
func NewWriter(dst io.Writer, depth int) *Writer {
	if depth <= 0 {
		depth = DefaultWriteQueue
	}
	return &Writer{
		dst:     dst,
		queue:   make(chan protocol.Frame, depth),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// Send queues f for writing. It blocks while the queue is full.
func (w *Writer) Send(ctx context.Context, f protocol.Frame) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case <-w.done:
		return ErrWriterClosed
	case <-w.closing:
		return ErrWriterClosed
	default:
	}

	select {
	case w.queue <- f:
		return nil
	case <-w.done:
		return ErrWriterClosed
	case <-w.closing:
		return ErrWriterClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run writes queued frames until Close has been called and the queue is
// drained, or a write fails.
func (w *Writer) Run() error {
	defer close(w.done)
	for f := range w.queue {
		if err := w.write(f); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

func (w *Writer) write(f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		// An unencodable frame is the producer's bug, not a channel failure
		logging.Error("Dropping unencodable frame", zap.String("type", f.Type.String()), zap.Error(err))
		return nil
	}
	if _, err := w.dst.Write(data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", f.Type, err)
	}
	metrics.FramesOut.WithLabelValues(f.Type.String()).Inc()
	logging.LogFrame("out", f.Type.String(), f.Payload)
	return nil
}

// Close stops accepting frames and waits for the queue to drain, or for ctx
// to expire. Senders blocked on a full queue return ErrWriterClosed. It
// returns the write error that stopped Run, if any.
func (w *Writer) Close(ctx context.Context) error {
	w.closingOnce.Do(func() { close(w.closing) })

	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return fmt.Errorf("drain pending writes: %w", ctx.Err())
	}
}

// Done is closed when Run returns
func (w *Writer) Done() <-chan struct{} {
	return w.done
}
