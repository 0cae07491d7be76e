package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/muurk/carlink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	writes  int
	formats []protocol.AudioFormat
	volume  float32
	paused  bool
	resumes int
	closed  bool
}

func (s *fakeSink) Write(pcm []byte, f protocol.AudioFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.formats = append(s.formats, f)
	return nil
}

func (s *fakeSink) SetVolume(v float32) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	s.paused = false
	s.resumes++
	s.mu.Unlock()
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) state() (writes int, volume float32, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes, s.volume, s.paused
}

type fakeCapture struct {
	mu     sync.Mutex
	starts []int
	stops  int
}

func (c *fakeCapture) Start(rate int) error {
	c.mu.Lock()
	c.starts = append(c.starts, rate)
	c.mu.Unlock()
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

type routerHarness struct {
	router  *Router
	capture *fakeCapture
	mu      sync.Mutex
	sinks   map[protocol.AudioType]*fakeSink
	created int
	markers int
	cancel  context.CancelFunc
	done    chan struct{}
}

func newRouterHarness(t *testing.T, cfg Config) *routerHarness {
	t.Helper()
	h := &routerHarness{
		capture: &fakeCapture{},
		sinks:   make(map[protocol.AudioType]*fakeSink),
		done:    make(chan struct{}),
	}
	factory := func(at protocol.AudioType) (Sink, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		s := &fakeSink{}
		h.sinks[at] = s
		h.created++
		return s, nil
	}
	h.router = NewRouter(cfg, factory, h.capture)
	return h
}

func (h *routerHarness) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		h.router.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func (h *routerHarness) sink(at protocol.AudioType) *fakeSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[at]
}

// settle submits a volume change on a fresh, unused channel and waits for it
// to be applied, so every earlier message has been processed.
func (h *routerHarness) settle(t *testing.T) Snapshot {
	t.Helper()
	h.mu.Lock()
	h.markers++
	marker := protocol.AudioType(100 + h.markers)
	h.mu.Unlock()

	h.router.Submit(&protocol.AudioVolume{AudioHeader: protocol.AudioHeader{AudioType: uint32(marker), Volume: 0.5}})
	require.Eventually(t, func() bool {
		_, ok := h.router.Snapshot().Streams[marker]
		return ok
	}, time.Second, time.Millisecond)
	return h.router.Snapshot()
}

func command(at protocol.AudioType, decodeType uint32, cmd protocol.AudioCommand) *protocol.AudioControl {
	return &protocol.AudioControl{
		AudioHeader: protocol.AudioHeader{DecodeType: decodeType, AudioType: uint32(at)},
		Command:     cmd,
	}
}

func pcm(at protocol.AudioType, decodeType uint32) *protocol.AudioPCM {
	return &protocol.AudioPCM{
		AudioHeader: protocol.AudioHeader{DecodeType: decodeType, AudioType: uint32(at)},
		Data:        make([]byte, 64),
	}
}

func TestRouterStartStopPausesWithoutClosing(t *testing.T) {
	h := newRouterHarness(t, Config{})
	h.start(t)

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioMediaStart))
	h.router.Submit(pcm(protocol.AudioMain, 4))
	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioMediaStop))
	snap := h.settle(t)

	s := h.sink(protocol.AudioMain)
	require.NotNil(t, s)
	writes, _, paused := s.state()
	assert.Equal(t, 1, writes)
	assert.True(t, paused)
	assert.False(t, snap.Streams[protocol.AudioMain].Active)

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioMediaStart))
	h.settle(t)
	_, _, paused = s.state()
	assert.False(t, paused)

	h.mu.Lock()
	assert.Equal(t, 1, h.created, "main sink recreated")
	h.mu.Unlock()
	assert.False(t, s.closed)
}

func TestRouterTagsPCMWithDecodeTypeFormat(t *testing.T) {
	h := newRouterHarness(t, Config{})
	h.start(t)

	h.router.Submit(command(protocol.AudioMain, 2, protocol.AudioOutputStart))
	h.router.Submit(pcm(protocol.AudioMain, 2))
	h.router.Submit(pcm(protocol.AudioNavigation, 5)) // no start: implicitly activated
	h.router.Submit(pcm(protocol.AudioMain, 9))       // unknown decode type: untagged
	snap := h.settle(t)

	main := h.sink(protocol.AudioMain)
	main.mu.Lock()
	assert.Equal(t, protocol.AudioFormat{SampleRate: 44100, Channels: 2}, main.formats[0])
	main.mu.Unlock()

	nav := h.sink(protocol.AudioNavigation)
	require.NotNil(t, nav)
	nav.mu.Lock()
	assert.Equal(t, protocol.AudioFormat{SampleRate: 16000, Channels: 1}, nav.formats[0])
	nav.mu.Unlock()
	assert.True(t, snap.Streams[protocol.AudioNavigation].Active)
}

func TestRouterDucksMainDuringNavigation(t *testing.T) {
	h := newRouterHarness(t, Config{DuckLevel: 0.2})
	h.start(t)

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioMediaStart))
	h.router.Submit(&protocol.AudioVolume{AudioHeader: protocol.AudioHeader{AudioType: uint32(protocol.AudioMain), Volume: 0.5}})
	snap := h.settle(t)
	assert.InDelta(t, 0.5, snap.MainVolume, 1e-6)

	h.router.Submit(command(protocol.AudioNavigation, 5, protocol.AudioNaviStart))
	snap = h.settle(t)
	assert.True(t, snap.Ducked)
	assert.InDelta(t, 0.1, snap.MainVolume, 1e-6)
	_, vol, _ := h.sink(protocol.AudioMain).state()
	assert.InDelta(t, 0.1, vol, 1e-6)

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioAlertStart))
	h.router.Submit(command(protocol.AudioNavigation, 5, protocol.AudioNaviComplete))
	snap = h.settle(t)
	assert.True(t, snap.Ducked, "alert still ducking")

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioAlertStop))
	snap = h.settle(t)
	assert.False(t, snap.Ducked)
	assert.InDelta(t, 0.5, snap.MainVolume, 1e-6)
}

func TestRouterPhonecallStopIsIdempotent(t *testing.T) {
	h := newRouterHarness(t, Config{})
	h.start(t)

	h.router.Submit(command(protocol.AudioMain, 5, protocol.AudioPhonecallStart))
	snap := h.settle(t)
	assert.True(t, snap.InCall)

	h.router.Submit(command(protocol.AudioMain, 5, protocol.AudioPhonecallStop))
	h.router.Submit(command(protocol.AudioMain, 5, protocol.AudioPhonecallStop))
	snap = h.settle(t)
	assert.False(t, snap.InCall)
	assert.False(t, snap.Streams[protocol.AudioMain].Active)

	s := h.sink(protocol.AudioMain)
	s.mu.Lock()
	assert.Equal(t, 1, s.resumes)
	s.mu.Unlock()
}

func TestRouterMicrophoneRate(t *testing.T) {
	tests := []struct {
		name       string
		decodeType uint32
		wantRate   int
	}{
		{"8 kHz", protocol.MicDecodeType8k, 8000},
		{"16 kHz", protocol.MicDecodeType16k, 16000},
		{"unsupported keeps previous", 4, 16000},
	}

	h := newRouterHarness(t, Config{})
	h.start(t)
	h.router.Submit(command(protocol.AudioMicrophone, protocol.MicDecodeType16k, protocol.AudioInputStart))
	h.settle(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.router.Submit(command(protocol.AudioMicrophone, tt.decodeType, protocol.AudioInputStart))
			snap := h.settle(t)
			assert.Equal(t, tt.wantRate, snap.MicRate)
		})
	}

	h.capture.mu.Lock()
	assert.Equal(t, []int{16000, 8000, 16000}, h.capture.starts)
	h.capture.mu.Unlock()

	h.router.Submit(command(protocol.AudioMicrophone, 0, protocol.AudioInputStop))
	h.router.Submit(command(protocol.AudioMicrophone, 0, protocol.AudioInputStop))
	h.settle(t)
	h.capture.mu.Lock()
	assert.Equal(t, 1, h.capture.stops)
	h.capture.mu.Unlock()
}

func TestRouterDropsPCMWhenBacklogFull(t *testing.T) {
	h := newRouterHarness(t, Config{MaxQueued: 2})

	// Not running: the queue fills
	for i := 0; i < 5; i++ {
		h.router.Submit(pcm(protocol.AudioMain, 4))
	}
	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioMediaStop))

	h.start(t)
	snap := h.settle(t)

	writes, _, paused := h.sink(protocol.AudioMain).state()
	assert.Equal(t, 2, writes)
	assert.True(t, paused, "command dropped with PCM")
	assert.False(t, snap.Streams[protocol.AudioMain].Active)
}

func TestRouterClosesSinksOnShutdown(t *testing.T) {
	h := newRouterHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.router.Run(ctx)
	}()

	h.router.Submit(command(protocol.AudioMain, 4, protocol.AudioOutputStart))
	h.router.Submit(command(protocol.AudioMicrophone, 5, protocol.AudioInputStart))
	require.Eventually(t, func() bool { return h.router.MicRate() == 16000 }, time.Second, time.Millisecond)

	cancel()
	<-done
	s := h.sink(protocol.AudioMain)
	s.mu.Lock()
	assert.True(t, s.closed)
	s.mu.Unlock()
	h.capture.mu.Lock()
	assert.Equal(t, 1, h.capture.stops)
	h.capture.mu.Unlock()
}
