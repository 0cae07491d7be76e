package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/muurk/carlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingOpenerReplays(t *testing.T) {
	dir := t.TempDir()
	host, dev := net.Pipe()
	o := &RecordingOpener{
		Opener: OpenerFunc(func(context.Context) (Channel, error) { return host, nil }),
		Dir:    dir,
		Now:    func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) },
	}

	ch, err := o.Open(context.Background())
	require.NoError(t, err)

	frames := []protocol.Frame{protocol.BuildPhase(7), protocol.BuildHeartbeat(), protocol.BuildPhase(8)}
	go func() {
		for _, f := range frames {
			b, _ := f.Encode()
			_, _ = dev.Write(b)
		}
		_ = dev.Close()
	}()

	r := NewReader(ch, 0)
	for range frames {
		_, err := r.ReadFrame()
		require.NoError(t, err)
	}
	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "second close is a no-op")

	f, err := os.Open(filepath.Join(dir, "capture-20260506-070809.000.bin"))
	require.NoError(t, err)
	defer f.Close()

	replay := NewReader(f, 0)
	for _, want := range frames {
		got, err := replay.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, len(want.Payload), len(got.Payload))
	}
}

func TestRecordingOpenerPassesOpenErrors(t *testing.T) {
	boom := errors.New("no adapter")
	o := &RecordingOpener{
		Opener: OpenerFunc(func(context.Context) (Channel, error) { return nil, boom }),
		Dir:    t.TempDir(),
	}
	_, err := o.Open(context.Background())
	assert.ErrorIs(t, err, boom)
}
