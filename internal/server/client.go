package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/carlink/internal/logging"
	"go.uber.org/zap"
)

// Client reads a status server
type Client struct {
	addr string
	http *http.Client
}

// NewClient creates a client for the server at addr (host:port)
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Addr returns the server address
func (c *Client) Addr() string {
	return c.addr
}

// Status fetches /status
func (c *Client) Status(ctx context.Context) (*StatusView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addr+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}
	var v StatusView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &v, nil
}

// Watch connects to /ws and delivers messages until ctx is cancelled or the
// connection drops; the channel is then closed.
func (c *Client) Watch(ctx context.Context) (<-chan Message, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+c.addr+"/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}

	out := make(chan Message, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var m Message
			if err := conn.ReadJSON(&m); err != nil {
				if ctx.Err() == nil {
					logging.Debug("Status feed closed", zap.String("addr", c.addr), zap.Error(err))
				}
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
