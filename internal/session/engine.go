// Package session runs the adapter connection: it opens the channel, sends the
// initialisation sequence, follows the adapter's phase reports and tears the
// session down on unplug, phase zero, liveness timeout or channel failure.
//
// All phase changes happen on one goroutine, the consumer of the session's
// event queue. The frame reader, the heartbeat watchdog and the writer only
// post events; they never touch phase directly.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/heartbeat"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/transport"
	"github.com/muurk/carlink/internal/video"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	eventQueueDepth     = 256
	defaultDrainTimeout = time.Second
)

// VideoConfig tunes both video pipelines
type VideoConfig struct {
	StaleThreshold  time.Duration
	JitterAllowance time.Duration
	MaxQueued       int
}

// Config configures the engine
type Config struct {
	Init              protocol.InitParams
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxResync         int
	WriteQueue        int
	// NavigationVideo enables the navigation focus echo that starts the
	// secondary video stream
	NavigationVideo  bool
	Video            VideoConfig
	Audio            audio.Config
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	DrainTimeout     time.Duration
	Now              func() time.Time
}

// Sinks are the decode and playback collaborators. Nil members discard.
type Sinks struct {
	Video   video.DecoderFactory
	Audio   audio.SinkFactory
	Capture audio.Capture
}

// Engine owns the adapter connection. One engine drives one adapter.
type Engine struct {
	cfg    Config
	opener transport.Opener
	sinks  Sinks
	bus    *Bus

	phase    atomic.Int32
	sessions atomic.Uint64

	mu      sync.RWMutex
	current *session
	peer    Peer
	info    map[string]string
	since   time.Time

	lastStreamed bool
}

type session struct {
	id       string
	writer   *transport.Writer
	reader   *transport.Reader
	monitor  *heartbeat.Monitor
	router   *audio.Router
	video    map[protocol.VideoStream]*video.Pipeline
	events   chan event
	parseLog rate.Sometimes
	dropLog  rate.Sometimes
}

type eventKind int

const (
	evFrame eventKind = iota
	evLiveness
	evChannelError
)

type event struct {
	kind eventKind
	msg  protocol.Message
	at   time.Time
	err  error
}

// New creates an engine. The engine starts Idle; Run or Serve opens a session.
func New(cfg Config, opener transport.Opener, sinks Sinks) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if sinks.Video == nil {
		sinks.Video = func(protocol.VideoStream) (video.Decoder, error) {
			return video.FuncDecoder(func([]byte, bool) error { return nil }), nil
		}
	}
	e := &Engine{
		cfg:    cfg,
		opener: opener,
		sinks:  sinks,
		bus:    NewBus(),
		info:   make(map[string]string),
	}
	metrics.Phase.Set(float64(PhaseIdle))
	return e
}

// Bus returns the event bus
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Phase returns the current phase
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Streaming reports whether stream data is currently forwarded
func (e *Engine) Streaming() bool {
	return e.Phase() == PhaseStreaming
}

// Send queues a frame on the open session's write path
func (e *Engine) Send(ctx context.Context, f protocol.Frame) error {
	e.mu.RLock()
	s := e.current
	e.mu.RUnlock()
	if s == nil {
		return ErrNotOpen
	}
	return s.writer.Send(ctx, f)
}

// ReportCorruption forwards a decoder corruption signal for stream
func (e *Engine) ReportCorruption(stream protocol.VideoStream) {
	e.mu.RLock()
	s := e.current
	e.mu.RUnlock()
	if s == nil {
		return
	}
	if p, ok := s.video[stream]; ok {
		p.ReportCorruption()
	}
}

// Serve runs one session over ch until it ends, and returns why. ch is
// closed before Serve returns.
func (e *Engine) Serve(ctx context.Context, ch transport.Channel) Reason {
	s := e.newSession(ch)
	sessCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sessCtx)

	g.Go(func() error {
		if err := s.writer.Run(); err != nil {
			s.post(gctx, event{kind: evChannelError, err: err})
		}
		return nil
	})
	// Armed before the first init frame; its first keepalive is a full
	// interval away.
	g.Go(func() error {
		if err := s.monitor.Run(gctx); err != nil {
			s.post(gctx, event{kind: evLiveness, err: err})
		}
		return nil
	})
	g.Go(func() error {
		e.readLoop(gctx, s)
		return nil
	})
	g.Go(func() error {
		return s.router.Run(gctx)
	})
	for _, p := range s.video {
		p := p
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	e.attach(s)
	reason := ReasonShutdown
	select {
	case <-s.monitor.Armed():
		reason = e.open(gctx, s)
	case <-gctx.Done():
	}
	if reason == ReasonNone {
		reason = e.loop(gctx, s)
	}
	if ctx.Err() != nil {
		reason = ReasonShutdown
	}

	// Release everything before anyone may reopen
	cancel()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), e.cfg.DrainTimeout)
	if err := s.writer.Close(drainCtx); err != nil {
		logging.Debug("Pending writes not drained", zap.String("session_id", s.id), zap.Error(err))
	}
	drainCancel()
	if err := ch.Close(); err != nil {
		logging.Debug("Channel close failed", zap.String("session_id", s.id), zap.Error(err))
	}
	_ = g.Wait()

	e.detach(s)
	e.setPhase(s, PhaseTerminated, reason.String())
	metrics.Sessions.WithLabelValues(reason.String()).Inc()
	e.publish(s, Event{Kind: EventDisconnected, Reason: reason})
	logging.Info("Session ended",
		zap.String("session_id", s.id),
		zap.String("reason", reason.String()),
		zap.String("status", reason.UserMessage()),
	)
	return reason
}

func (e *Engine) newSession(ch transport.Channel) *session {
	s := &session{
		id:       uuid.NewString(),
		writer:   transport.NewWriter(ch, e.cfg.WriteQueue),
		reader:   transport.NewReader(ch, e.cfg.MaxResync),
		events:   make(chan event, eventQueueDepth),
		video:    make(map[protocol.VideoStream]*video.Pipeline, 2),
		parseLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
		dropLog:  rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	s.monitor = heartbeat.New(e.cfg.HeartbeatInterval, e.cfg.HeartbeatTimeout, s.writer.Send)
	s.router = audio.NewRouter(e.cfg.Audio, e.sinks.Audio, e.sinks.Capture)

	request := func(ctx context.Context) error {
		return s.writer.Send(ctx, protocol.BuildKeyframeRequest())
	}
	for _, stream := range []protocol.VideoStream{protocol.StreamPrimary, protocol.StreamNavigation} {
		s.video[stream] = video.NewPipeline(video.PipelineConfig{
			Stream:          stream,
			StaleThreshold:  e.cfg.Video.StaleThreshold,
			JitterAllowance: e.cfg.Video.JitterAllowance,
			MaxQueued:       e.cfg.Video.MaxQueued,
			Now:             e.cfg.Now,
		}, e.sinks.Video, request)
	}
	return s
}

func (e *Engine) attach(s *session) {
	e.mu.Lock()
	e.current = s
	e.peer = Peer{}
	e.info = make(map[string]string)
	e.since = e.cfg.Now()
	e.lastStreamed = false
	e.mu.Unlock()
	e.sessions.Add(1)
}

func (e *Engine) detach(s *session) {
	e.mu.Lock()
	if e.current == s {
		e.current = nil
	}
	e.mu.Unlock()
}

// open sends the initialisation sequence, Open included
func (e *Engine) open(ctx context.Context, s *session) Reason {
	params := e.cfg.Init
	params.SyncTime = e.cfg.Now()
	frames, err := protocol.BuildInitSequence(params)
	if err != nil {
		logging.Error("Failed to build init sequence", zap.Error(err))
		return ReasonChannelError
	}

	e.setPhase(s, PhaseOpening, "open sent")
	for _, f := range frames {
		if err := s.writer.Send(ctx, f); err != nil {
			if ctx.Err() != nil {
				return ReasonShutdown
			}
			logging.Warn("Init sequence interrupted", zap.String("session_id", s.id), zap.Error(err))
			return ReasonChannelError
		}
	}
	logging.Info("Session opened",
		zap.String("session_id", s.id),
		zap.Uint32("width", params.Open.Width),
		zap.Uint32("height", params.Open.Height),
	)
	return ReasonNone
}

func (s *session) post(ctx context.Context, ev event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) readLoop(ctx context.Context, s *session) {
	for {
		f, err := s.reader.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				s.post(ctx, event{kind: evChannelError, err: err})
			}
			return
		}
		at := e.cfg.Now()
		s.monitor.Reset()
		metrics.FramesIn.WithLabelValues(f.Type.String()).Inc()
		logging.LogFrame("in", f.Type.String(), f.Payload)

		msg, err := protocol.Parse(f, protocol.Inbound)
		if err != nil {
			metrics.PayloadErrors.WithLabelValues(f.Type.String()).Inc()
			s.parseLog.Do(func() {
				logging.Warn("Discarding malformed payload",
					zap.String("session_id", s.id),
					zap.String("type", f.Type.String()),
					zap.Error(err))
			})
			continue
		}
		s.post(ctx, event{kind: evFrame, msg: msg, at: at})
	}
}

// loop is the single consumer of the session's event queue
func (e *Engine) loop(ctx context.Context, s *session) Reason {
	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case ev := <-s.events:
			switch ev.kind {
			case evFrame:
				if r := e.handle(ctx, s, ev.msg, ev.at); r != ReasonNone {
					return r
				}
			case evLiveness:
				logging.Warn("Adapter went silent", zap.String("session_id", s.id), zap.Error(ev.err))
				return ReasonLivenessTimeout
			case evChannelError:
				if errors.Is(ev.err, transport.ErrResyncExhausted) {
					logging.Warn("Frame stream unrecoverable", zap.String("session_id", s.id), zap.Error(ev.err))
				} else {
					logging.Warn("Channel failed", zap.String("session_id", s.id), zap.Error(ev.err))
				}
				return ReasonChannelError
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, s *session, msg protocol.Message, at time.Time) Reason {
	if protocol.IsSessionEnding(msg) {
		if _, ok := msg.(*protocol.Unplugged); ok {
			return ReasonUnplugged
		}
		return ReasonPhaseZero
	}

	switch m := msg.(type) {
	case *protocol.Phase:
		e.handlePhase(s, m.Value)

	case *protocol.Plugged:
		peer := Peer{Kind: m.Kind, Medium: m.Medium, Known: true}
		e.mu.Lock()
		e.peer = peer
		e.mu.Unlock()
		logging.Info("Phone plugged", zap.String("session_id", s.id), zap.String("peer", peer.String()))
		e.publish(s, Event{Kind: EventPeer})

	case *protocol.Opened:
		logging.Debug("Adapter acknowledged open", zap.String("session_id", s.id), zap.String("params", m.String()))

	case *protocol.VideoData:
		if !e.Streaming() {
			e.dropStream(s, msg)
			return ReasonNone
		}
		if p, ok := s.video[m.Stream]; ok {
			p.Push(video.NewFrame(m, at))
		}

	case *protocol.AudioPCM:
		if !e.Streaming() {
			e.dropStream(s, msg)
			return ReasonNone
		}
		s.router.Submit(m)

	case *protocol.AudioControl, *protocol.AudioVolume:
		s.router.Submit(msg)

	case *protocol.Command:
		e.handleCommand(ctx, s, m)

	case *protocol.Heartbeat:

	default:
		e.handleNotice(s, msg)
	}
	return ReasonNone
}

func (e *Engine) handlePhase(s *session, value uint32) {
	cur := e.Phase()
	switch value {
	case protocol.PhaseConnecting:
		switch cur {
		case PhaseOpening:
			e.setPhase(s, PhaseConnecting, "phase 7")
			e.publish(s, Event{Kind: EventConnected})
		case PhaseConnecting:
			logging.Debug("Repeated connecting phase", zap.String("session_id", s.id))
		default:
			e.violation(s, "phase 7 while "+cur.String())
		}

	case protocol.PhaseStreaming:
		switch cur {
		case PhaseOpening:
			// Adapter skipped the negotiating report
			e.setPhase(s, PhaseConnecting, "phase 8")
			e.publish(s, Event{Kind: EventConnected})
			fallthrough
		case PhaseConnecting:
			e.setPhase(s, PhaseStreaming, "phase 8")
			e.publish(s, Event{Kind: EventStreaming})
		case PhaseStreaming:
			logging.Debug("Repeated streaming phase", zap.String("session_id", s.id))
		default:
			e.violation(s, "phase 8 while "+cur.String())
		}

	default:
		logging.Debug("Reserved phase value", zap.String("session_id", s.id), zap.Uint32("value", value))
	}
}

func (e *Engine) handleCommand(ctx context.Context, s *session, m *protocol.Command) {
	rec := protocol.ClassifyCommand(m.ID)

	if m.ID == protocol.CmdRequestNaviFocus && e.cfg.NavigationVideo && e.Streaming() {
		if err := s.writer.Send(ctx, protocol.BuildCommand(m.ID)); err != nil {
			logging.Debug("Navigation focus echo not sent", zap.String("session_id", s.id), zap.Error(err))
		} else {
			logging.Debug("Echoed navigation focus request", zap.String("session_id", s.id))
		}
	}

	if rec.Class == protocol.ClassStatusNotification {
		logging.Info("Adapter status", zap.String("session_id", s.id), zap.String("status", rec.Name))
		e.publish(s, Event{Kind: EventNotice, Notice: rec.Name})
		return
	}
	logging.Debug("Adapter command", zap.String("session_id", s.id), zap.String("command", rec.Name))
}

func (e *Engine) handleNotice(s *session, msg protocol.Message) {
	var key, value string
	switch m := msg.(type) {
	case *protocol.DeviceInfo:
		key, value = m.Kind.String(), m.Value
	case *protocol.PairingPIN:
		key, value = "PIN", m.PIN
	case *protocol.ManufacturerInfo:
		key, value = "ManufacturerInfo", m.String()
	case *protocol.BoxSettings:
		key, value = "BoxSettings", string(m.Settings)
	case *protocol.MediaData:
		logging.Debug("Media metadata", zap.String("session_id", s.id), zap.String("msg", m.String()))
		return
	default:
		logging.Debug("Ignoring message", zap.String("session_id", s.id), zap.String("msg", msg.String()))
		return
	}

	e.mu.Lock()
	e.info[key] = value
	e.mu.Unlock()
	logging.Debug("Adapter info", zap.String("session_id", s.id), zap.String(key, value))
	e.publish(s, Event{Kind: EventNotice, Notice: key})
}

func (e *Engine) dropStream(s *session, msg protocol.Message) {
	s.dropLog.Do(func() {
		logging.Debug("Discarding stream data outside streaming phase",
			zap.String("session_id", s.id),
			zap.String("phase", e.Phase().String()),
			zap.String("type", msg.Type().String()))
	})
}

func (e *Engine) violation(s *session, detail string) {
	metrics.ProtocolViolations.Inc()
	logging.Warn("Protocol violation discarded", zap.String("session_id", s.id), zap.String("detail", detail))
}

func (e *Engine) setPhase(s *session, to Phase, cause string) {
	from := Phase(e.phase.Swap(int32(to)))
	if to == PhaseStreaming {
		e.mu.Lock()
		e.lastStreamed = true
		e.mu.Unlock()
	}
	metrics.Phase.Set(float64(to))
	logging.LogPhase(s.id, from.String(), to.String(), cause)
}

func (e *Engine) publish(s *session, ev Event) {
	ev.SessionID = s.id
	ev.At = e.cfg.Now()
	e.mu.RLock()
	ev.Peer = e.peer
	e.mu.RUnlock()
	e.bus.Publish(ev)
}
