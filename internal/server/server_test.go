package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/muurk/carlink/internal/audio"
	"github.com/muurk/carlink/internal/protocol"
	"github.com/muurk/carlink/internal/session"
	"github.com/muurk/carlink/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bus  *session.Bus
	snap session.Snapshot
}

func (f *fakeSource) Bus() *session.Bus          { return f.bus }
func (f *fakeSource) Snapshot() session.Snapshot { return f.snap }
func (f *fakeSource) Phase() session.Phase       { return f.snap.Phase }

func streamingSnapshot() session.Snapshot {
	return session.Snapshot{
		SessionID: "4b1f",
		Phase:     session.PhaseStreaming,
		Peer:      session.Peer{Kind: protocol.PeerCarPlay, Medium: protocol.MediumWireless, Known: true},
		Since:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sessions:  3,
		Info:      map[string]string{"software_version": "2024.01"},
		Audio: audio.Snapshot{
			Streams: map[protocol.AudioType]audio.StreamState{
				protocol.AudioMain: {Active: true, DecodeType: 4, Format: protocol.AudioFormat{SampleRate: 48000, Channels: 2}, Volume: 1},
			},
			MainVolume: 0.2,
			Ducked:     true,
		},
		Video: map[protocol.VideoStream]video.Stats{
			protocol.StreamPrimary: {Admitted: 10, DroppedStale: 2, HasLast: true, Last: video.Meta{Width: 800, Height: 480}},
		},
	}
}

func startStatus(t *testing.T, src Source) (*Status, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	st := New(Config{}, src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return")
		}
	})

	addr, err := st.Addr(ctx)
	require.NoError(t, err)
	return st, addr.String()
}

func next(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "feed closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestFeedStartsWithStatusThenEvents(t *testing.T) {
	src := &fakeSource{bus: session.NewBus(), snap: streamingSnapshot()}
	st, addr := startStatus(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := NewClient(addr).Watch(ctx)
	require.NoError(t, err)

	hello := next(t, feed)
	assert.Equal(t, TypeStatus, hello.Type)
	assert.Equal(t, "streaming", hello.Phase)
	assert.Equal(t, "CarPlay/wireless", hello.Peer)
	assert.Equal(t, "4b1f", hello.SessionID)
	assert.Equal(t, 1, st.GetActiveConnections())

	at := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	src.bus.Publish(session.Event{Kind: session.EventDisconnected, SessionID: "4b1f", Reason: session.ReasonUnplugged, At: at})
	m := next(t, feed)
	assert.Equal(t, TypeDisconnected, m.Type)
	assert.Equal(t, "terminated", m.Phase)
	assert.Equal(t, "unplugged", m.Reason)
	assert.Equal(t, "adapter disconnected, retrying", m.Text)
	assert.True(t, at.Equal(m.At))

	src.bus.Publish(session.Event{Kind: session.EventNotice, SessionID: "4b1f", Notice: "bluetooth_connected"})
	m = next(t, feed)
	assert.Equal(t, TypeNotice, m.Type)
	assert.Equal(t, "bluetooth_connected", m.Notice)
	assert.Empty(t, m.Reason)
}

func TestFeedClosesOnShutdown(t *testing.T) {
	src := &fakeSource{bus: session.NewBus(), snap: session.Snapshot{Phase: session.PhaseIdle}}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	st := New(Config{}, src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Serve(ctx, ln) }()
	addr, err := st.Addr(ctx)
	require.NoError(t, err)

	feed, err := NewClient(addr.String()).Watch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", next(t, feed).Phase)

	cancel()
	require.NoError(t, <-done)
	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed not closed")
	}
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{bus: session.NewBus(), snap: streamingSnapshot()}
	_, addr := startStatus(t, src)

	v, err := NewClient(addr).Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "streaming", v.Phase)
	assert.Equal(t, "CarPlay/wireless", v.Peer)
	assert.EqualValues(t, 3, v.Sessions)
	assert.Equal(t, "2024.01", v.Info["software_version"])
	require.NotNil(t, v.Audio)
	assert.True(t, v.Audio.Ducked)
	assert.InDelta(t, 0.2, v.Audio.MainVolume, 1e-6)
	assert.Equal(t, 48000, v.Audio.Streams["main"].SampleRate)
	assert.EqualValues(t, 10, v.Video["primary"].Admitted)
	assert.EqualValues(t, 800, v.Video["primary"].Width)
	require.NotNil(t, v.Heartbeat)
}

func TestStatusEndpointWithoutSession(t *testing.T) {
	v := newStatusView(session.Snapshot{Phase: session.PhaseIdle})
	if v.Phase != "idle" {
		t.Errorf("Phase = %v, want idle", v.Phase)
	}
	if v.Peer != "unknown" {
		t.Errorf("Peer = %v, want unknown", v.Peer)
	}
	if v.Heartbeat != nil || v.Audio != nil || v.Video != nil {
		t.Errorf("per-session fields should be empty, got %+v", v)
	}
	if v.Since != nil {
		t.Errorf("Since = %v, want nil", v.Since)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	src := &fakeSource{bus: session.NewBus(), snap: session.Snapshot{}}
	_, addr := startStatus(t, src)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "carlink_session_phase"))
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		kind session.EventKind
		want string
	}{
		{session.EventConnected, "connected"},
		{session.EventStreaming, "streaming"},
		{session.EventDisconnected, "disconnected"},
		{session.EventNotice, "notice"},
		{session.EventPeer, "peer"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := eventType(tt.kind); got != tt.want {
				t.Errorf("eventType() = %v, want %v", got, tt.want)
			}
		})
	}
}
