package gnss

import (
	"context"
	"errors"

	"github.com/muurk/carlink/internal/logging"
	"go.uber.org/zap"
)

// Provider yields location fixes. The channel closes when the provider stops.
type Provider interface {
	Fixes() <-chan Fix
}

// SendFunc sends encoded NMEA to the adapter
type SendFunc func(ctx context.Context, nmea []byte) error

// Gate reports whether fixes may be forwarded, i.e. the session is streaming
type Gate func() bool

// Reporter forwards fixes from a Provider while the gate is open. Fixes
// arriving while it is closed are dropped rather than queued.
type Reporter struct {
	provider Provider
	send     SendFunc
	open     Gate

	sent    uint64
	dropped uint64
}

// NewReporter creates a reporter
func NewReporter(p Provider, send SendFunc, open Gate) *Reporter {
	return &Reporter{provider: p, send: send, open: open}
}

// Run forwards fixes until ctx is cancelled or the provider closes
func (r *Reporter) Run(ctx context.Context) error {
	fixes := r.provider.Fixes()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fix, ok := <-fixes:
			if !ok {
				return nil
			}
			if r.open != nil && !r.open() {
				r.dropped++
				continue
			}
			if err := r.send(ctx, Encode(fix)); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logging.Debug("GNSS fix not sent", zap.Error(err))
				r.dropped++
				continue
			}
			r.sent++
		}
	}
}

// Counts returns fixes sent and dropped. Only valid after Run returns.
func (r *Reporter) Counts() (sent, dropped uint64) {
	return r.sent, r.dropped
}

// ChanProvider adapts a channel to Provider
type ChanProvider chan Fix

// Fixes implements Provider
func (c ChanProvider) Fixes() <-chan Fix { return c }
