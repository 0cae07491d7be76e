package server

import (
	"time"

	"github.com/muurk/carlink/internal/session"
)

// Message types on the /ws feed
const (
	TypeStatus       = "status"
	TypeConnected    = "connected"
	TypeStreaming    = "streaming"
	TypeDisconnected = "disconnected"
	TypeNotice       = "notice"
	TypePeer         = "peer"
)

// Message is one /ws feed entry
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Phase     string    `json:"phase"`
	Peer      string    `json:"peer,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Text      string    `json:"message,omitempty"`
	Notice    string    `json:"notice,omitempty"`
	At        time.Time `json:"at"`
}

// StatusView is the /status document
type StatusView struct {
	SessionID string               `json:"session_id,omitempty"`
	Phase     string               `json:"phase"`
	Peer      string               `json:"peer"`
	Since     *time.Time           `json:"since,omitempty"`
	Sessions  uint64               `json:"sessions"`
	Info      map[string]string    `json:"info,omitempty"`
	Heartbeat *HeartbeatView       `json:"heartbeat,omitempty"`
	Audio     *AudioView           `json:"audio,omitempty"`
	Video     map[string]VideoView `json:"video,omitempty"`
}

type HeartbeatView struct {
	LastSend   time.Time `json:"last_send"`
	LastRx     time.Time `json:"last_rx"`
	IntervalMS int64     `json:"interval_ms"`
	TimeoutMS  int64     `json:"timeout_ms"`
}

type AudioView struct {
	MainVolume float32                    `json:"main_volume"`
	Ducked     bool                       `json:"ducked"`
	InCall     bool                       `json:"in_call"`
	MicRate    int                        `json:"mic_rate,omitempty"`
	Streams    map[string]AudioStreamView `json:"streams"`
}

type AudioStreamView struct {
	Active     bool    `json:"active"`
	DecodeType uint32  `json:"decode_type"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Volume     float32 `json:"volume"`
}

type VideoView struct {
	Admitted         uint64 `json:"admitted"`
	DroppedStale     uint64 `json:"dropped_stale"`
	DroppedAwaiting  uint64 `json:"dropped_awaiting"`
	DroppedBacklog   uint64 `json:"dropped_backlog"`
	KeyframeRequests uint64 `json:"keyframe_requests"`
	DecoderResets    uint64 `json:"decoder_resets"`
	AwaitingKeyframe bool   `json:"awaiting_keyframe"`
	Width            uint32 `json:"width,omitempty"`
	Height           uint32 `json:"height,omitempty"`
}

func eventType(k session.EventKind) string {
	switch k {
	case session.EventConnected:
		return TypeConnected
	case session.EventStreaming:
		return TypeStreaming
	case session.EventDisconnected:
		return TypeDisconnected
	case session.EventPeer:
		return TypePeer
	default:
		return TypeNotice
	}
}

// newMessage renders a bus event. phase is the engine phase at render time;
// a disconnect always reports terminated.
func newMessage(ev session.Event, phase session.Phase) Message {
	m := Message{
		Type:      eventType(ev.Kind),
		SessionID: ev.SessionID,
		Phase:     phase.String(),
		Notice:    ev.Notice,
		At:        ev.At,
	}
	if ev.Peer.Known {
		m.Peer = ev.Peer.String()
	}
	if ev.Kind == session.EventDisconnected {
		m.Phase = session.PhaseTerminated.String()
		m.Reason = ev.Reason.String()
		m.Text = ev.Reason.UserMessage()
	}
	return m
}

func statusMessage(snap session.Snapshot, now time.Time) Message {
	m := Message{
		Type:      TypeStatus,
		SessionID: snap.SessionID,
		Phase:     snap.Phase.String(),
		At:        now,
	}
	if snap.Peer.Known {
		m.Peer = snap.Peer.String()
	}
	return m
}

func newStatusView(snap session.Snapshot) StatusView {
	v := StatusView{
		SessionID: snap.SessionID,
		Phase:     snap.Phase.String(),
		Peer:      snap.Peer.String(),
		Sessions:  snap.Sessions,
		Info:      snap.Info,
	}
	if !snap.Since.IsZero() {
		since := snap.Since
		v.Since = &since
	}
	if snap.SessionID == "" {
		return v
	}

	hb := snap.Heartbeat
	v.Heartbeat = &HeartbeatView{
		LastSend:   hb.LastSend,
		LastRx:     hb.LastRx,
		IntervalMS: hb.Interval.Milliseconds(),
		TimeoutMS:  hb.Timeout.Milliseconds(),
	}

	a := snap.Audio
	v.Audio = &AudioView{
		MainVolume: a.MainVolume,
		Ducked:     a.Ducked,
		InCall:     a.InCall,
		MicRate:    a.MicRate,
		Streams:    make(map[string]AudioStreamView, len(a.Streams)),
	}
	for t, st := range a.Streams {
		v.Audio.Streams[t.String()] = AudioStreamView{
			Active:     st.Active,
			DecodeType: st.DecodeType,
			SampleRate: st.Format.SampleRate,
			Channels:   st.Format.Channels,
			Volume:     st.Volume,
		}
	}

	v.Video = make(map[string]VideoView, len(snap.Video))
	for stream, s := range snap.Video {
		vv := VideoView{
			Admitted:         s.Admitted,
			DroppedStale:     s.DroppedStale,
			DroppedAwaiting:  s.DroppedAwaiting,
			DroppedBacklog:   s.DroppedBacklog,
			KeyframeRequests: s.KeyframeRequests,
			DecoderResets:    s.DecoderResets,
			AwaitingKeyframe: s.AwaitingKeyframe,
		}
		if s.HasLast {
			vv.Width, vv.Height = s.Last.Width, s.Last.Height
		}
		v.Video[stream.String()] = vv
	}
	return v
}
