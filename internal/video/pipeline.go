package video

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pipeline defaults
const (
	DefaultJitterAllowance = 150 * time.Millisecond
	DefaultMaxQueued       = 6
)

// KeyframeRequester asks the adapter for a new keyframe
type KeyframeRequester func(ctx context.Context) error

// PipelineConfig configures one stream's pipeline
type PipelineConfig struct {
	Stream          protocol.VideoStream
	StaleThreshold  time.Duration
	JitterAllowance time.Duration
	MaxQueued       int
	Now             func() time.Time
}

// Stats counts pipeline outcomes
type Stats struct {
	Admitted         uint64
	DroppedStale     uint64
	DroppedAwaiting  uint64
	DroppedBacklog   uint64
	KeyframeRequests uint64
	DecoderResets    uint64
	AwaitingKeyframe bool
	Last             Meta
	HasLast          bool
}

// Pipeline delivers one stream's frames to its decoder on its own goroutine,
// so a slow decoder never stalls frame intake. Push never blocks.
type Pipeline struct {
	cfg     PipelineConfig
	policy  *Policy
	factory DecoderFactory
	request KeyframeRequester
	dec     Decoder

	mu          sync.Mutex
	queue       []*Frame
	needRequest bool
	// gapAfter is a kept keyframe whose followers were dropped. Inter frames
	// after it reference missing data.
	gapAfter *Frame
	statsMu  sync.Mutex
	stats    Stats

	signal  chan struct{}
	corrupt chan struct{}
	dropLog rate.Sometimes

	backlogDrops atomic.Uint64
}

// NewPipeline creates a pipeline. Zero config values select defaults.
func NewPipeline(cfg PipelineConfig, factory DecoderFactory, request KeyframeRequester) *Pipeline {
	if cfg.JitterAllowance <= 0 {
		cfg.JitterAllowance = DefaultJitterAllowance
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultMaxQueued
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		cfg:     cfg,
		policy:  NewPolicy(cfg.StaleThreshold, cfg.Now),
		factory: factory,
		request: request,
		signal:  make(chan struct{}, 1),
		corrupt: make(chan struct{}, 1),
		dropLog: rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
}

// Push queues a frame. When the backlog exceeds the jitter allowance it skips
// forward to the newest queued keyframe; with no keyframe queued it drops the
// backlog and waits for one. A queued keyframe is never dropped unless a
// newer one is queued behind it.
func (p *Pipeline) Push(f *Frame) {
	p.mu.Lock()
	p.queue = append(p.queue, f)
	p.trimLocked()
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *Pipeline) trimLocked() {
	n := len(p.queue)
	span := p.queue[n-1].Arrival.Sub(p.queue[0].Arrival)
	if n <= p.cfg.MaxQueued && span <= p.cfg.JitterAllowance {
		return
	}

	newest := -1
	for i := n - 1; i >= 0; i-- {
		if p.queue[i].Keyframe {
			newest = i
			break
		}
	}

	switch {
	case newest > 0:
		p.dropLocked(newest)
	case newest < 0:
		p.dropLocked(n)
		p.needRequest = true
	case n > 4*p.cfg.MaxQueued:
		// The only keyframe is the oldest frame and the decoder is not
		// keeping up at all: keep it, drop what follows
		p.dropTailLocked(1)
		p.gapAfter = p.queue[0]
	}
}

func (p *Pipeline) dropTailLocked(keep int) {
	k := len(p.queue) - keep
	for i := keep; i < len(p.queue); i++ {
		p.queue[i] = nil
	}
	p.queue = p.queue[:keep]
	p.countBacklogDrops(k)
}

func (p *Pipeline) dropLocked(k int) {
	for i := 0; i < k; i++ {
		p.queue[i] = nil
	}
	p.queue = p.queue[k:]
	if k > 0 {
		p.gapAfter = nil
	}
	p.countBacklogDrops(k)
}

func (p *Pipeline) countBacklogDrops(k int) {
	p.backlogDrops.Add(uint64(k))
	metrics.VideoDecisions.WithLabelValues(p.cfg.Stream.String(), DropBacklog.String()).Add(float64(k))
}

// ReportCorruption signals decoder corruption detected outside Submit
func (p *Pipeline) ReportCorruption() {
	select {
	case p.corrupt <- struct{}{}:
	default:
	}
}

// Run delivers frames until ctx is cancelled, then closes the decoder
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.closeDecoder()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.corrupt:
			p.recover(ctx)
		case <-p.signal:
		}

		for {
			f, request, gap := p.pop()
			if request {
				p.policy.AwaitKeyframe()
				p.requestKeyframe(ctx)
			}
			if f == nil {
				break
			}
			p.deliver(ctx, f)
			if gap {
				p.policy.AwaitKeyframe()
				p.requestKeyframe(ctx)
			}
		}
	}
}

func (p *Pipeline) pop() (*Frame, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	request := p.needRequest
	p.needRequest = false
	if len(p.queue) == 0 {
		return nil, request, false
	}
	f := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	gap := f == p.gapAfter
	if gap {
		p.gapAfter = nil
	}
	return f, request, gap
}

func (p *Pipeline) deliver(ctx context.Context, f *Frame) {
	stream := p.cfg.Stream.String()
	age := p.policy.Age(f)
	d := p.policy.Decide(f)
	metrics.VideoDecisions.WithLabelValues(stream, d.String()).Inc()
	metrics.VideoAge.WithLabelValues(stream).Observe(age.Seconds())

	p.statsMu.Lock()
	switch d {
	case Admit:
		p.stats.Admitted++
	case DropStale:
		p.stats.DroppedStale++
	case DropAwaitingKeyframe:
		p.stats.DroppedAwaiting++
	}
	p.stats.AwaitingKeyframe = p.policy.AwaitingKeyframe()
	p.stats.Last, p.stats.HasLast = p.policy.Last()
	p.statsMu.Unlock()

	if d != Admit {
		p.dropLog.Do(func() {
			logging.Debug("Video frame dropped",
				zap.String("stream", stream),
				zap.String("decision", d.String()),
				zap.Duration("age", age),
			)
		})
		return
	}

	if p.dec == nil {
		if !f.Keyframe {
			// A fresh decoder cannot start mid-GOP
			p.policy.AwaitKeyframe()
			p.requestKeyframe(ctx)
			return
		}
		dec, err := p.factory(p.cfg.Stream)
		if err != nil {
			logging.Error("Failed to create decoder", zap.String("stream", stream), zap.Error(err))
			return
		}
		p.dec = dec
	}

	if err := p.dec.Submit(f.Data, f.Keyframe); err != nil {
		if errors.Is(err, ErrCorrupted) {
			p.recover(ctx)
			return
		}
		logging.Warn("Decoder rejected frame", zap.String("stream", stream), zap.Error(err))
	}
}

// recover stops feeding the decoder until a keyframe arrives, replacing the
// instance when the decoder says a flush is not enough.
func (p *Pipeline) recover(ctx context.Context) {
	p.policy.AwaitKeyframe()
	p.requestKeyframe(ctx)
	if p.dec != nil && p.dec.NeedsReplacement() {
		p.closeDecoder()
		p.statsMu.Lock()
		p.stats.DecoderResets++
		p.statsMu.Unlock()
	}
	logging.Info("Video decoder corruption, awaiting keyframe",
		zap.String("stream", p.cfg.Stream.String()))
}

func (p *Pipeline) requestKeyframe(ctx context.Context) {
	if p.request == nil {
		return
	}
	if err := p.request(ctx); err != nil {
		logging.Debug("Keyframe request not sent", zap.Error(err))
		return
	}
	metrics.KeyframeRequests.Inc()
	p.statsMu.Lock()
	p.stats.KeyframeRequests++
	p.stats.AwaitingKeyframe = p.policy.AwaitingKeyframe()
	p.statsMu.Unlock()
}

func (p *Pipeline) closeDecoder() {
	if p.dec == nil {
		return
	}
	if err := p.dec.Close(); err != nil {
		logging.Debug("Decoder close failed", zap.Error(err))
	}
	p.dec = nil
}

// Stats returns a snapshot of the pipeline counters. Last and
// AwaitingKeyframe are only updated by the worker and may lag by one frame.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	s := p.stats
	p.statsMu.Unlock()
	s.DroppedBacklog = p.backlogDrops.Load()
	return s
}
