// Package transport carries frames over the duplex byte pipe to the adapter.
//
// A Channel is any io.ReadWriteCloser: a USB bulk endpoint pair in production,
// a TCP socket on a bench rig, or net.Pipe in tests. Reader turns the byte
// stream into frames and resynchronises after corruption. Writer serialises
// frames from many producers onto the single write path.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Channel is a duplex byte pipe to one adapter
type Channel interface {
	io.ReadWriteCloser
}

// Opener creates a fresh Channel. Each session opens its own and closes it on
// teardown; channels are never reused.
type Opener interface {
	Open(ctx context.Context) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context) (Channel, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// TCPOpener dials an adapter exposed over TCP, for bench rigs that bridge the
// USB pipe onto the network.
type TCPOpener struct {
	Addr    string
	Timeout time.Duration
}

// Open dials Addr
func (o *TCPOpener) Open(ctx context.Context) (Channel, error) {
	d := net.Dialer{Timeout: o.Timeout}
	conn, err := d.DialContext(ctx, "tcp", o.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial adapter at %s: %w", o.Addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}
