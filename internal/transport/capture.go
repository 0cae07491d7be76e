package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"go.uber.org/zap"
)

// RecordingOpener wraps an Opener and copies every byte read from each
// channel into Dir/capture-<timestamp>.bin. The files replay through Reader.
type RecordingOpener struct {
	Opener Opener
	Dir    string
	Now    func() time.Time
}

// Open opens the inner channel and starts a new capture file
func (o *RecordingOpener) Open(ctx context.Context) (Channel, error) {
	ch, err := o.Opener.Open(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	name := filepath.Join(o.Dir, "capture-"+now().Format("20060102-150405.000")+".bin")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	logging.Info("Recording adapter input", zap.String("file", name))
	return &recordingChannel{Channel: ch, rec: f}, nil
}

type recordingChannel struct {
	Channel
	rec  *os.File
	once sync.Once
	err  error
}

func (c *recordingChannel) Read(p []byte) (int, error) {
	n, err := c.Channel.Read(p)
	if n > 0 {
		if _, werr := c.rec.Write(p[:n]); werr != nil {
			logging.Debug("Capture write failed", zap.Error(werr))
		}
	}
	return n, err
}

func (c *recordingChannel) Close() error {
	c.once.Do(func() {
		c.err = c.Channel.Close()
		if err := c.rec.Close(); c.err == nil {
			c.err = err
		}
	})
	return c.err
}
