// Package video decides which incoming video frames reach the decoder.
//
// Staleness is measured from local arrival time. The pts in the video
// sub-header is stream-relative and never compared to the wall clock.
// Keyframes are always admitted; late inter frames are dropped rather than
// shown late. After decoder corruption nothing but a keyframe is admitted.
package video

import (
	"fmt"
	"time"

	"github.com/muurk/carlink/internal/protocol"
)

// DefaultStaleThreshold is the age past which a non-keyframe is dropped
const DefaultStaleThreshold = 35 * time.Millisecond

// Decision is the outcome of admitting one frame
type Decision int

const (
	Admit Decision = iota
	DropStale
	DropAwaitingKeyframe
	DropBacklog
)

// String returns the decision name used in metrics and logs
func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case DropStale:
		return "drop_stale"
	case DropAwaitingKeyframe:
		return "drop_awaiting_keyframe"
	case DropBacklog:
		return "drop_backlog"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Frame is one received video message plus its arrival instant
type Frame struct {
	Stream   protocol.VideoStream
	Header   protocol.VideoHeader
	Data     []byte
	Keyframe bool
	Arrival  time.Time
}

// NewFrame builds a Frame from a decoded message
func NewFrame(msg *protocol.VideoData, arrival time.Time) *Frame {
	return &Frame{
		Stream:   msg.Stream,
		Header:   msg.VideoHeader,
		Data:     msg.Data,
		Keyframe: IsKeyframe(msg.Data),
		Arrival:  arrival,
	}
}

// Meta is the retained description of the last admitted frame
type Meta struct {
	Width        uint32
	Height       uint32
	EncoderState uint32
	PTS          uint32
	Flags        uint32
	Keyframe     bool
	Arrival      time.Time
}

// Policy holds per-stream admission state. It is not safe for concurrent use;
// each stream's pipeline worker owns one.
type Policy struct {
	threshold        time.Duration
	now              func() time.Time
	awaitingKeyframe bool
	last             *Meta
}

// NewPolicy creates a policy. now may be nil for the wall clock.
func NewPolicy(threshold time.Duration, now func() time.Time) *Policy {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Policy{threshold: threshold, now: now}
}

// Decide returns the admission decision for f and records it
func (p *Policy) Decide(f *Frame) Decision {
	if f.Keyframe {
		p.awaitingKeyframe = false
		p.record(f)
		return Admit
	}
	if p.awaitingKeyframe {
		return DropAwaitingKeyframe
	}
	if p.Age(f) > p.threshold {
		return DropStale
	}
	p.record(f)
	return Admit
}

// Age is the time f has spent between arrival and now
func (p *Policy) Age(f *Frame) time.Duration {
	return p.now().Sub(f.Arrival)
}

// AwaitKeyframe makes every non-keyframe a drop until the next keyframe
func (p *Policy) AwaitKeyframe() {
	p.awaitingKeyframe = true
}

// AwaitingKeyframe reports whether the policy is waiting for a sync point
func (p *Policy) AwaitingKeyframe() bool {
	return p.awaitingKeyframe
}

// Last returns the metadata of the most recently admitted frame
func (p *Policy) Last() (Meta, bool) {
	if p.last == nil {
		return Meta{}, false
	}
	return *p.last, true
}

func (p *Policy) record(f *Frame) {
	p.last = &Meta{
		Width:        f.Header.Width,
		Height:       f.Header.Height,
		EncoderState: f.Header.EncoderState,
		PTS:          f.Header.PTS,
		Flags:        f.Header.Flags,
		Keyframe:     f.Keyframe,
		Arrival:      f.Arrival,
	}
}
