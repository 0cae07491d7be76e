package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/muurk/carlink/internal/logging"
	"go.uber.org/zap"
)

// Reconnect defaults
const (
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 10 * time.Second
)

// Run opens the adapter, serves sessions and reopens after every recoverable
// end until ctx is cancelled. The channel of a finished session is always
// closed before the next Open.
func (e *Engine) Run(ctx context.Context) error {
	b := e.newBackOff()

	for {
		ch, err := e.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Warn("Failed to open adapter", zap.Error(err))
		} else {
			reason := e.Serve(ctx, ch)
			if ctx.Err() != nil || !reason.Recoverable() {
				return nil
			}
			if e.reachedStreaming() {
				b.Reset()
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = b.MaxInterval
		}
		logging.Info("Reopening adapter", zap.Duration("in", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (e *Engine) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.ReconnectInitial
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultReconnectInitial
	}
	b.MaxInterval = e.cfg.ReconnectMax
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultReconnectMax
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// reachedStreaming reports whether the last session got as far as streaming,
// which restarts the backoff schedule.
func (e *Engine) reachedStreaming() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStreamed
}
