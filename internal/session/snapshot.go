package session

import (
	"time"

	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/heartbeat"
	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/video"
)

// Snapshot is a point-in-time view of the engine for status reporting
type Snapshot struct {
	SessionID string
	Phase     Phase
	Peer      Peer
	Since     time.Time
	Sessions  uint64
	Info      map[string]string
	Heartbeat heartbeat.State
	Audio     audio.Snapshot
	Video     map[protocol.VideoStream]video.Stats
}

// Snapshot returns the current state. Per-session fields are zero when no
// session is open.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	s := e.current
	snap := Snapshot{
		Phase:    e.Phase(),
		Peer:     e.peer,
		Since:    e.since,
		Sessions: e.sessions.Load(),
		Info:     make(map[string]string, len(e.info)),
	}
	for k, v := range e.info {
		snap.Info[k] = v
	}
	e.mu.RUnlock()

	if s == nil {
		return snap
	}
	snap.SessionID = s.id
	snap.Heartbeat = s.monitor.State()
	snap.Audio = s.router.Snapshot()
	snap.Video = make(map[protocol.VideoStream]video.Stats, len(s.video))
	for stream, p := range s.video {
		snap.Video[stream] = p.Stats()
	}
	return snap
}
