package session

import (
	"sync"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
)

// EventKind identifies a session event
type EventKind int

const (
	// EventConnected: the adapter reported negotiation with a phone
	EventConnected EventKind = iota
	// EventStreaming: projection is live
	EventStreaming
	// EventDisconnected: the session ended; Reason says why
	EventDisconnected
	// EventNotice: an informational notification (device name, wireless
	// link status). Never accompanies a phase change.
	EventNotice
	// EventPeer: the adapter described the connected phone. It may arrive
	// after EventConnected and updates its peer.
	EventPeer
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventStreaming:
		return "streaming"
	case EventDisconnected:
		return "disconnected"
	case EventNotice:
		return "notice"
	case EventPeer:
		return "peer"
	default:
		return "unknown"
	}
}

// Peer describes the connected phone
type Peer struct {
	Kind   protocol.PeerKind
	Medium protocol.Medium
	Known  bool
}

func (p Peer) String() string {
	if !p.Known {
		return "unknown"
	}
	return p.Kind.String() + "/" + p.Medium.String()
}

// Event is published on the Bus
type Event struct {
	Kind      EventKind
	SessionID string
	Peer      Peer
	Reason    Reason
	Notice    string
	At        time.Time
}

const defaultSubscriberBuffer = 32

// Bus fans session events out to subscribers. Publish never blocks; a
// subscriber that falls behind loses events.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription receives events on C until Close
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. buffer <= 0 selects a default.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close unregisters the subscription and closes C
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers e to every subscriber with room for it
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			logging.Warn("Session event dropped for slow subscriber",
				zap.String("event", e.Kind.String()),
				zap.String("session_id", e.SessionID))
		}
	}
}
