package video

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/carlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	mu        sync.Mutex
	submitted [][]byte
	corruptOn int
	replace   bool
	closed    bool
}

func (d *fakeDecoder) Submit(data []byte, keyframe bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, data)
	if d.corruptOn > 0 && len(d.submitted) == d.corruptOn {
		return ErrCorrupted
	}
	return nil
}

func (d *fakeDecoder) NeedsReplacement() bool { return d.replace }

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDecoder) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDecoder) received(data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.submitted {
		if bytes.Equal(s, data) {
			return true
		}
	}
	return false
}

func (d *fakeDecoder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submitted)
}

type harness struct {
	pipeline *Pipeline
	decoders []*fakeDecoder
	mu       sync.Mutex
	requests atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHarness(t *testing.T, cfg PipelineConfig, mk func() *fakeDecoder) *harness {
	t.Helper()
	h := &harness{done: make(chan struct{})}
	factory := func(protocol.VideoStream) (Decoder, error) {
		d := mk()
		h.mu.Lock()
		h.decoders = append(h.decoders, d)
		h.mu.Unlock()
		return d, nil
	}
	request := func(context.Context) error {
		h.requests.Add(1)
		return nil
	}
	h.pipeline = NewPipeline(cfg, factory, request)
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		h.pipeline.Run(ctx)
	}()
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) decoder(i int) *fakeDecoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.decoders) {
		return nil
	}
	return h.decoders[i]
}

func TestPipelineDeliversAdmittedFrames(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Second}, func() *fakeDecoder { return &fakeDecoder{} })
	h.start()
	defer h.stop()

	now := time.Now()
	h.pipeline.Push(newFrame(idr, now))
	h.pipeline.Push(newFrame(inter, now))
	h.pipeline.Push(newFrame(inter, now))

	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.count() == 3
	}, time.Second, 5*time.Millisecond)

	s := h.pipeline.Stats()
	assert.EqualValues(t, 3, s.Admitted)
	assert.True(t, s.HasLast)
	assert.Zero(t, h.requests.Load())
}

func TestPipelineWaitsForKeyframeBeforeFirstDecoder(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Second}, func() *fakeDecoder { return &fakeDecoder{} })
	h.start()
	defer h.stop()

	now := time.Now()
	h.pipeline.Push(newFrame(inter, now))
	h.pipeline.Push(newFrame(inter, now))

	require.Eventually(t, func() bool { return h.requests.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.decoder(0), "decoder created without a keyframe")

	h.pipeline.Push(newFrame(idr, time.Now()))
	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPipelineCorruptionReplacesDecoder(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Second}, func() *fakeDecoder {
		return &fakeDecoder{corruptOn: 2, replace: true}
	})
	h.start()
	defer h.stop()

	now := time.Now()
	h.pipeline.Push(newFrame(idr, now))
	h.pipeline.Push(newFrame(inter, now)) // decoder reports corruption here
	h.pipeline.Push(newFrame(inter, now)) // dropped: awaiting keyframe

	require.Eventually(t, func() bool {
		return h.pipeline.Stats().DroppedAwaiting == 1
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, h.requests.Load())
	assert.True(t, h.decoder(0).isClosed())

	h.pipeline.Push(newFrame(idr, time.Now()))
	require.Eventually(t, func() bool {
		d := h.decoder(1)
		return d != nil && d.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, h.pipeline.Stats().DecoderResets)
}

func TestPipelineCorruptionKeepsFlushableDecoder(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Second}, func() *fakeDecoder { return &fakeDecoder{} })
	h.start()
	defer h.stop()

	h.pipeline.Push(newFrame(idr, time.Now()))
	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.count() == 1
	}, time.Second, 5*time.Millisecond)

	h.pipeline.ReportCorruption()
	require.Eventually(t, func() bool { return h.requests.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.pipeline.Push(newFrame(inter, time.Now()))
	h.pipeline.Push(newFrame(idr, time.Now()))
	require.Eventually(t, func() bool { return h.decoder(0).count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.decoder(1), "flushable decoder was replaced")
	assert.EqualValues(t, 1, h.pipeline.Stats().DroppedAwaiting)
}

func TestPipelineBacklogSkipsToNewestKeyframe(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Hour, MaxQueued: 4, JitterAllowance: time.Hour},
		func() *fakeDecoder { return &fakeDecoder{} })

	// Worker not started: everything queues
	now := time.Now()
	h.pipeline.Push(newFrame(idr, now))
	h.pipeline.Push(newFrame(inter, now))
	h.pipeline.Push(newFrame(inter, now))
	h.pipeline.Push(newFrame(idr, now))
	h.pipeline.Push(newFrame(inter, now)) // fifth frame exceeds MaxQueued

	assert.EqualValues(t, 3, h.pipeline.Stats().DroppedBacklog)

	h.start()
	defer h.stop()
	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.count() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, idr, h.decoder(0).submitted[0])
}

func TestPipelineBacklogWithoutKeyframeRequestsOne(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Hour, JitterAllowance: 100 * time.Millisecond},
		func() *fakeDecoder { return &fakeDecoder{} })

	base := time.Now()
	h.pipeline.Push(newFrame(inter, base))
	h.pipeline.Push(newFrame(inter, base.Add(150*time.Millisecond)))
	assert.EqualValues(t, 2, h.pipeline.Stats().DroppedBacklog)

	h.start()
	defer h.stop()
	h.pipeline.Push(newFrame(inter, time.Now()))

	require.Eventually(t, func() bool { return h.requests.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.pipeline.Stats().DroppedAwaiting == 1 }, time.Second, 5*time.Millisecond)
}

func TestPipelineDropsStaleFrames(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock.Now()
	}
	h := newHarness(t, PipelineConfig{StaleThreshold: 35 * time.Millisecond, Now: now},
		func() *fakeDecoder { return &fakeDecoder{} })

	arrival := now()
	h.pipeline.Push(newFrame(idr, arrival))
	h.pipeline.Push(newFrame(inter, arrival))
	mu.Lock()
	clock.Advance(50 * time.Millisecond)
	mu.Unlock()

	h.start()
	defer h.stop()
	require.Eventually(t, func() bool {
		s := h.pipeline.Stats()
		return s.Admitted == 1 && s.DroppedStale == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPipelineOverflowKeepsOnlyKeyframe(t *testing.T) {
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Hour, MaxQueued: 6, JitterAllowance: time.Hour},
		func() *fakeDecoder { return &fakeDecoder{} })

	now := time.Now()
	h.pipeline.Push(newFrame(idr, now))
	for i := 0; i < 24; i++ {
		h.pipeline.Push(newFrame(inter, now))
	}
	h.pipeline.Push(newFrame(inter, now)) // follows the gap

	h.pipeline.mu.Lock()
	queued := len(h.pipeline.queue)
	head := h.pipeline.queue[0]
	h.pipeline.mu.Unlock()
	assert.Equal(t, 2, queued)
	assert.True(t, head.Keyframe, "keyframe dropped from the backlog")
	assert.EqualValues(t, 24, h.pipeline.Stats().DroppedBacklog)

	h.start()
	defer h.stop()
	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.count() == 1 && h.pipeline.Stats().DroppedAwaiting == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, idr, h.decoder(0).submitted[0])
	assert.EqualValues(t, 1, h.requests.Load())

	h.pipeline.Push(newFrame(idr, time.Now()))
	require.Eventually(t, func() bool { return h.decoder(0).count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPipelineBacklogNeverLosesNewestKeyframe(t *testing.T) {
	const maxQueued = 6
	h := newHarness(t, PipelineConfig{StaleThreshold: time.Hour, MaxQueued: maxQueued, JitterAllowance: 150 * time.Millisecond},
		func() *fakeDecoder { return &fakeDecoder{} })

	rng := rand.New(rand.NewSource(7))
	arrival := time.Now()
	var newest *Frame
	for i := 0; i < 3000; i++ {
		arrival = arrival.Add(time.Duration(rng.Intn(40)) * time.Millisecond)
		var f *Frame
		if rng.Intn(30) == 0 {
			data := append(append([]byte(nil), idr...), byte(i), byte(i>>8))
			f = newFrame(data, arrival)
			newest = f
		} else {
			f = newFrame(inter, arrival)
		}
		h.pipeline.Push(f)

		h.pipeline.mu.Lock()
		queue := append([]*Frame(nil), h.pipeline.queue...)
		h.pipeline.mu.Unlock()

		if len(queue) > 4*maxQueued {
			t.Fatalf("push %d: queue length %d exceeds %d", i, len(queue), 4*maxQueued)
		}
		if newest == nil {
			continue
		}
		found := false
		for _, q := range queue {
			if q == newest {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("push %d: newest keyframe was dropped from the backlog", i)
		}
	}
	require.NotNil(t, newest)

	h.start()
	defer h.stop()
	require.Eventually(t, func() bool {
		d := h.decoder(0)
		return d != nil && d.received(newest.Data)
	}, time.Second, 5*time.Millisecond)
}
