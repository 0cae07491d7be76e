// Package heartbeat keeps the adapter link alive and detects when it dies.
//
// The Monitor runs two independent timers. The send timer emits a keepalive
// every Interval; its first tick is a full Interval after Run starts, so it can
// be armed before the initialisation frames go out without racing them. The
// liveness timer is pushed back by every inbound frame (not just keepalive
// echoes) and ends Run with ErrLivenessTimeout after Timeout of silence.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/metrics"
	"github.com/muurk/carlink/internal/protocol"
	"go.uber.org/zap"
)

// ErrLivenessTimeout is returned by Run when no frame arrived within Timeout
var ErrLivenessTimeout = errors.New("heartbeat: liveness timeout")

// Defaults
const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// SendFunc writes one frame to the adapter
type SendFunc func(ctx context.Context, f protocol.Frame) error

// State is a snapshot of liveness bookkeeping
type State struct {
	LastSend time.Time
	LastRx   time.Time
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor is the keepalive sender and liveness watchdog for one session
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	send     SendFunc
	resets   chan struct{}
	armed    chan struct{}

	lastSend atomic.Int64
	lastRx   atomic.Int64
}

// New creates a monitor. Zero durations select the defaults.
func New(interval, timeout time.Duration, send SendFunc) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		send:     send,
		resets:   make(chan struct{}, 1),
		armed:    make(chan struct{}),
	}
}

// Reset records an inbound frame. It never blocks: resets that arrive while
// one is already pending coalesce.
func (m *Monitor) Reset() {
	m.lastRx.Store(time.Now().UnixNano())
	select {
	case m.resets <- struct{}{}:
	default:
	}
}

// Run arms both timers and blocks until ctx is cancelled (returning nil) or
// the liveness timer fires (returning ErrLivenessTimeout). It fires at most
// once; a new session needs a new Monitor.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	liveness := time.NewTimer(m.timeout)
	defer liveness.Stop()

	m.lastRx.Store(time.Now().UnixNano())
	close(m.armed)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.resets:
			liveness.Reset(m.timeout)

		case <-ticker.C:
			if err := m.send(ctx, protocol.BuildHeartbeat()); err != nil {
				// A dead writer surfaces as a channel error elsewhere
				logging.Debug("Keepalive not sent", zap.Error(err))
				continue
			}
			m.lastSend.Store(time.Now().UnixNano())
			metrics.Keepalives.Inc()

		case <-liveness.C:
			// A reset may have raced the expiry
			select {
			case <-m.resets:
				liveness.Reset(m.timeout)
				continue
			default:
			}
			metrics.LivenessTimeouts.Inc()
			silence := time.Since(time.Unix(0, m.lastRx.Load()))
			return fmt.Errorf("%w: no frame for %s", ErrLivenessTimeout, silence.Round(time.Millisecond))
		}
	}
}

// Armed is closed once Run has started both timers
func (m *Monitor) Armed() <-chan struct{} {
	return m.armed
}

// State returns the current bookkeeping
func (m *Monitor) State() State {
	s := State{Interval: m.interval, Timeout: m.timeout}
	if ns := m.lastSend.Load(); ns != 0 {
		s.LastSend = time.Unix(0, ns)
	}
	if ns := m.lastRx.Load(); ns != 0 {
		s.LastRx = time.Unix(0, ns)
	}
	return s
}
