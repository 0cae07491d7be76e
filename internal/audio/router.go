// Package audio routes the adapter's audio channels to playback sinks.
//
// Each audio_type (main, navigation, microphone) has its own stream state,
// driven by the command byte of 13-byte audio frames. Navigation prompts and
// alerts duck the main channel; their stop or completion restores it. PCM is
// forwarded tagged with the format its decode_type implies.
package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Router defaults
const (
	DefaultDuckLevel = 0.2
	DefaultMaxQueued = 64
)

// StreamState is the state of one audio_type
type StreamState struct {
	Active     bool
	DecodeType uint32
	Format     protocol.AudioFormat
	Volume     float32
}

// Snapshot is a copy of the router state for status reporting
type Snapshot struct {
	Streams    map[protocol.AudioType]StreamState
	MainVolume float32
	Ducked     bool
	InCall     bool
	MicRate    int
}

// Config configures a Router
type Config struct {
	DuckLevel float32
	MaxQueued int
}

type duckSource int

const (
	duckNavigation duckSource = iota
	duckAlert
)

// Router interprets audio commands and delivers PCM. Messages are queued by
// Submit and applied on the Run goroutine, which owns all state.
type Router struct {
	cfg     Config
	factory SinkFactory
	capture Capture

	// owned by Run
	streams    map[protocol.AudioType]*StreamState
	sinks      map[protocol.AudioType]Sink
	baseVolume float32
	ducking    map[duckSource]bool
	inCall     bool
	micRate    int

	mu         sync.Mutex
	queue      []protocol.Message
	pendingPCM int
	snapshot   Snapshot

	signal  chan struct{}
	dropLog rate.Sometimes
}

// NewRouter creates a router. capture may be nil.
func NewRouter(cfg Config, factory SinkFactory, capture Capture) *Router {
	if cfg.DuckLevel <= 0 || cfg.DuckLevel > 1 {
		cfg.DuckLevel = DefaultDuckLevel
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultMaxQueued
	}
	r := &Router{
		cfg:        cfg,
		factory:    factory,
		capture:    capture,
		streams:    make(map[protocol.AudioType]*StreamState),
		sinks:      make(map[protocol.AudioType]Sink),
		baseVolume: 1,
		ducking:    make(map[duckSource]bool),
		signal:     make(chan struct{}, 1),
		dropLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	r.publish()
	return r
}

// Submit queues an inbound audio message. Commands and volume changes are
// always queued; PCM is dropped when the backlog is full.
func (r *Router) Submit(msg protocol.Message) {
	r.mu.Lock()
	if pcm, ok := msg.(*protocol.AudioPCM); ok {
		if r.pendingPCM >= r.cfg.MaxQueued {
			r.mu.Unlock()
			metrics.AudioDropped.WithLabelValues(protocol.AudioType(pcm.AudioType).String()).Inc()
			r.dropLog.Do(func() {
				logging.Warn("Audio backlog full, dropping PCM",
					zap.String("audio_type", protocol.AudioType(pcm.AudioType).String()))
			})
			return
		}
		r.pendingPCM++
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Run applies queued messages until ctx is cancelled, then closes all sinks
// and stops capture.
func (r *Router) Run(ctx context.Context) error {
	defer r.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.signal:
		}
		for {
			msg := r.pop()
			if msg == nil {
				break
			}
			r.apply(msg)
		}
		r.publish()
	}
}

func (r *Router) pop() protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	msg := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]
	if _, ok := msg.(*protocol.AudioPCM); ok {
		r.pendingPCM--
	}
	return msg
}

func (r *Router) apply(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.AudioControl:
		r.handleCommand(m)
	case *protocol.AudioVolume:
		r.handleVolume(m)
	case *protocol.AudioPCM:
		r.handlePCM(m)
	default:
		logging.Debug("Router ignoring message", zap.String("msg", msg.String()))
	}
}

func (r *Router) stream(t protocol.AudioType) *StreamState {
	st, ok := r.streams[t]
	if !ok {
		st = &StreamState{Volume: 1}
		r.streams[t] = st
	}
	return st
}

func (r *Router) sink(t protocol.AudioType) Sink {
	if s, ok := r.sinks[t]; ok {
		return s
	}
	var s Sink = nopSink{}
	if r.factory != nil {
		created, err := r.factory(t)
		if err != nil {
			logging.Error("Failed to create audio sink", zap.String("audio_type", t.String()), zap.Error(err))
		} else {
			s = created
		}
	}
	r.sinks[t] = s
	r.applyVolume(t, s)
	return s
}

func (r *Router) activate(t protocol.AudioType, decodeType uint32) {
	st := r.stream(t)
	st.DecodeType = decodeType
	st.Format, _ = protocol.FormatForDecodeType(decodeType)
	if !st.Active {
		st.Active = true
		r.sink(t).Resume()
	}
}

// deactivate marks the stream idle and pauses its sink. The sink survives.
func (r *Router) deactivate(t protocol.AudioType) {
	st := r.stream(t)
	if !st.Active {
		return
	}
	st.Active = false
	if s, ok := r.sinks[t]; ok {
		s.Pause()
	}
}

func (r *Router) handleCommand(m *protocol.AudioControl) {
	t := protocol.AudioType(m.AudioType)
	metrics.AudioCommands.WithLabelValues(m.Command.String()).Inc()
	logging.Debug("Audio command",
		zap.String("command", m.Command.String()),
		zap.String("audio_type", t.String()),
		zap.Uint32("decode_type", m.DecodeType),
	)

	switch m.Command {
	case protocol.AudioOutputStart, protocol.AudioMediaStart, protocol.AudioSiriStart:
		r.activate(t, m.DecodeType)

	case protocol.AudioOutputStop, protocol.AudioMediaStop, protocol.AudioSiriStop:
		// Stops arrive in bursts during calls; pausing is cheap to undo
		r.deactivate(t)

	case protocol.AudioPhonecallStart:
		r.inCall = true
		r.activate(t, m.DecodeType)

	case protocol.AudioPhonecallStop:
		if !r.inCall {
			logging.Debug("Call already ended")
			return
		}
		r.inCall = false
		r.deactivate(t)

	case protocol.AudioIncomingCall:
		r.activate(t, m.DecodeType)

	case protocol.AudioNaviStart:
		r.activate(t, m.DecodeType)
		r.setDuck(duckNavigation, true)

	case protocol.AudioNaviStop, protocol.AudioNaviComplete:
		r.deactivate(t)
		r.setDuck(duckNavigation, false)

	case protocol.AudioAlertStart:
		r.activate(t, m.DecodeType)
		r.setDuck(duckAlert, true)

	case protocol.AudioAlertStop:
		r.deactivate(t)
		r.setDuck(duckAlert, false)

	case protocol.AudioInputStart:
		r.startMic(m.DecodeType)

	case protocol.AudioInputStop:
		r.stopMic()

	default:
		logging.Debug("Unknown audio command", zap.Uint8("command", uint8(m.Command)))
	}
}

func (r *Router) startMic(decodeType uint32) {
	sr, ok := protocol.MicSampleRate(decodeType)
	if !ok {
		logging.Warn("Ignoring microphone start with unsupported decode type",
			zap.Uint32("decode_type", decodeType))
		return
	}
	st := r.stream(protocol.AudioMicrophone)
	st.Active = true
	st.DecodeType = decodeType
	st.Format = protocol.AudioFormat{SampleRate: sr, Channels: 1}
	r.micRate = sr

	if r.capture != nil {
		if err := r.capture.Start(sr); err != nil {
			logging.Error("Failed to start microphone capture", zap.Int("rate", sr), zap.Error(err))
		}
	}
}

func (r *Router) stopMic() {
	st := r.stream(protocol.AudioMicrophone)
	if !st.Active {
		return
	}
	st.Active = false
	if r.capture != nil {
		r.capture.Stop()
	}
}

func (r *Router) handleVolume(m *protocol.AudioVolume) {
	t := protocol.AudioType(m.AudioType)
	v := clamp(m.Volume)
	if t == protocol.AudioMain {
		r.baseVolume = v
	} else {
		r.stream(t).Volume = v
	}
	if s, ok := r.sinks[t]; ok {
		r.applyVolume(t, s)
	}
}

func (r *Router) handlePCM(m *protocol.AudioPCM) {
	t := protocol.AudioType(m.AudioType)
	st := r.stream(t)
	if !st.Active || st.DecodeType != m.DecodeType {
		// PCM without a preceding start still plays
		r.activate(t, m.DecodeType)
	}
	if len(m.Data) == 0 {
		return
	}
	if err := r.sink(t).Write(m.Data, st.Format); err != nil {
		logging.Debug("Audio sink write failed", zap.String("audio_type", t.String()), zap.Error(err))
	}
}

func (r *Router) setDuck(src duckSource, on bool) {
	if r.ducking[src] == on {
		return
	}
	r.ducking[src] = on
	if s, ok := r.sinks[protocol.AudioMain]; ok {
		r.applyVolume(protocol.AudioMain, s)
	}
}

func (r *Router) ducked() bool {
	for _, on := range r.ducking {
		if on {
			return true
		}
	}
	return false
}

// MainVolume is the effective main channel volume after ducking
func (r *Router) mainVolume() float32 {
	if r.ducked() {
		return r.baseVolume * r.cfg.DuckLevel
	}
	return r.baseVolume
}

func (r *Router) applyVolume(t protocol.AudioType, s Sink) {
	if t == protocol.AudioMain {
		s.SetVolume(r.mainVolume())
		return
	}
	s.SetVolume(r.stream(t).Volume)
}

func (r *Router) publish() {
	snap := Snapshot{
		Streams:    make(map[protocol.AudioType]StreamState, len(r.streams)),
		MainVolume: r.mainVolume(),
		Ducked:     r.ducked(),
		InCall:     r.inCall,
		MicRate:    r.micRate,
	}
	for t, st := range r.streams {
		snap.Streams[t] = *st
	}
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()
}

// Snapshot returns the state as of the last processed batch
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// MicRate returns the capture rate signalled by the last valid input start,
// or 0 before any.
func (r *Router) MicRate() int {
	return r.Snapshot().MicRate
}

func (r *Router) shutdown() {
	for t, s := range r.sinks {
		if err := s.Close(); err != nil {
			logging.Debug("Audio sink close failed", zap.String("audio_type", t.String()), zap.Error(err))
		}
	}
	r.sinks = map[protocol.AudioType]Sink{}
	if st, ok := r.streams[protocol.AudioMicrophone]; ok && st.Active && r.capture != nil {
		r.capture.Stop()
	}
	r.publish()
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// String returns a one-line summary for logs
func (s Snapshot) String() string {
	return fmt.Sprintf("main=%.2f ducked=%t call=%t mic=%dHz streams=%d",
		s.MainVolume, s.Ducked, s.InCall, s.MicRate, len(s.Streams))
}
