package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/carlink/internal/gnss"
	"github.com/muurk/carlink/internal/logging"
	"github.com/muurk/carlink/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration
type Config struct {
	Addr string

	// Control enables the /control endpoints when set
	Control Controller

	// Fixes receives locations posted to /gnss when set
	Fixes chan<- gnss.Fix
}

// Source is the engine as seen by the status server
type Source interface {
	Bus() *session.Bus
	Snapshot() session.Snapshot
	Phase() session.Phase
}

// Status serves the event feed, the snapshot and metrics
type Status struct {
	config   Config
	src      Source
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	addr    net.Addr
	ready   chan struct{}
}

// New creates a status server for src
func New(config Config, src Source) *Status {
	return &Status{
		config:  config,
		src:     src,
		now:     time.Now,
		clients: make(map[*client]struct{}),
		ready:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local tooling only; the feed carries no credentials
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes
func (s *Status) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	s.registerControl(mux)
	return mux
}

// Start listens on the configured address and serves until ctx is cancelled
func (s *Status) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. ln is closed on return.
func (s *Status) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sub := s.src.Bus().Subscribe(64)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	logging.Info("Status server listening", zap.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		s.broadcast(gctx, sub)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Status server shutdown timeout, forcing close", zap.Error(err))
			_ = srv.Close()
		}
		return nil
	})

	err := g.Wait()
	logging.Info("Status server stopped")
	return err
}

// Addr returns the listening address once serving has started
func (s *Status) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr, nil
}

// GetActiveConnections returns the number of websocket clients
func (s *Status) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Status) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(newStatusView(s.src.Snapshot())); err != nil {
		logging.Debug("Failed to write status", zap.Error(err))
	}
}

// broadcast renders bus events and fans them out until the subscription ends
func (s *Status) broadcast(ctx context.Context, sub *session.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(newMessage(ev, s.src.Phase()))
			if err != nil {
				logging.Error("Failed to encode event", zap.Error(err))
				continue
			}
			s.fanOut(data)
		}
	}
}

func (s *Status) fanOut(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow status client", zap.String("remote_addr", c.remoteAddr))
			delete(s.clients, c)
			close(c.send)
		}
	}
}

func (s *Status) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}
