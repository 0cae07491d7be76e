package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/carlink/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	view *server.StatusView
	err  error
}

func (f *fakeFetcher) Status(context.Context) (*server.StatusView, error) {
	return f.view, f.err
}

func newTestMonitor(f *fakeFetcher) (Monitor, chan server.Message) {
	feed := make(chan server.Message, 4)
	m := NewMonitor(context.Background(), "127.0.0.1:8470", f, feed)
	m.width = MaxContentWidth
	return m, feed
}

func update(t *testing.T, m Monitor, msg tea.Msg) (Monitor, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Monitor)
	require.True(t, ok)
	return mm, cmd
}

func TestMonitorRendersStatus(t *testing.T) {
	view := &server.StatusView{
		SessionID: "9c2e",
		Phase:     "streaming",
		Peer:      "AndroidAuto/wired",
		Sessions:  2,
		Audio: &server.AudioView{
			MainVolume: 0.2,
			Ducked:     true,
			MicRate:    16000,
			Streams: map[string]server.AudioStreamView{
				"main": {Active: true, DecodeType: 4, SampleRate: 48000, Channels: 2},
			},
		},
		Video: map[string]server.VideoView{
			"primary": {Admitted: 7, Width: 800, Height: 480, AwaitingKeyframe: true},
		},
	}
	m, _ := newTestMonitor(&fakeFetcher{view: view})
	m, _ = update(t, m, statusMsg{view: view})

	out := m.View()
	assert.Contains(t, out, "STREAMING")
	assert.Contains(t, out, "9c2e")
	assert.Contains(t, out, "AndroidAuto/wired")
	assert.Contains(t, out, "ducked")
	assert.Contains(t, out, "16000 Hz")
	assert.Contains(t, out, "48000 Hz 2ch")
	assert.Contains(t, out, "800x480")
	assert.Contains(t, out, "awaiting keyframe")
	assert.Contains(t, out, "127.0.0.1:8470")
}

func TestMonitorFeedEvents(t *testing.T) {
	f := &fakeFetcher{view: &server.StatusView{Phase: "streaming", Peer: "CarPlay/wireless"}}
	m, feed := newTestMonitor(f)
	m, _ = update(t, m, statusMsg{view: f.view})

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	m, cmd := update(t, m, feedMsg{Type: server.TypeDisconnected, Phase: "terminated",
		Reason: "unplugged", Text: "adapter disconnected, retrying", At: at})
	require.NotNil(t, cmd)
	assert.Equal(t, "terminated", m.status.Phase)

	out := m.View()
	assert.Contains(t, out, "adapter disconnected, retrying")
	assert.Contains(t, out, "unplugged")
	assert.Contains(t, out, "TERMINATED")

	// waitForFeed delivers the next message from the channel
	feed <- server.Message{Type: server.TypeNotice, Notice: "wifi_connected", Phase: "streaming"}
	msg := waitForFeed(feed)()
	assert.Equal(t, feedMsg{Type: server.TypeNotice, Notice: "wifi_connected", Phase: "streaming"}, msg)

	close(feed)
	assert.Equal(t, feedClosedMsg{}, waitForFeed(feed)())
}

func TestMonitorPeerUpdate(t *testing.T) {
	f := &fakeFetcher{view: &server.StatusView{Phase: "connecting", Peer: "unknown"}}
	m, _ := newTestMonitor(f)
	m, _ = update(t, m, statusMsg{view: f.view})

	m, _ = update(t, m, feedMsg{Type: server.TypePeer, Phase: "connecting", Peer: "CarPlay/wireless", At: time.Now()})
	assert.Equal(t, "CarPlay/wireless", m.status.Peer)
	assert.Equal(t, "connecting", m.status.Phase)
	assert.Contains(t, m.View(), "CarPlay/wireless")
}

func TestMonitorKeepsRecentEvents(t *testing.T) {
	m, _ := newTestMonitor(&fakeFetcher{})
	for i := 0; i < maxEvents+5; i++ {
		m, _ = update(t, m, feedMsg{Type: server.TypeNotice, Notice: "n"})
	}
	assert.Len(t, m.events, maxEvents)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Empty(t, m.events)
	assert.Contains(t, m.View(), "waiting for events")
}

func TestMonitorErrors(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	m, _ := newTestMonitor(f)

	m, _ = update(t, m, m.fetchStatus()())
	assert.Contains(t, m.View(), "connection refused")

	f.err = nil
	f.view = &server.StatusView{Phase: "idle"}
	m, _ = update(t, m, m.fetchStatus()())
	assert.NoError(t, m.err)

	m, _ = update(t, m, feedClosedMsg{})
	assert.Contains(t, m.View(), "event feed closed")

	// a later successful poll keeps the closed-feed error visible
	m, _ = update(t, m, statusMsg{view: f.view})
	assert.ErrorIs(t, m.err, errFeedClosed)
}

func TestMonitorQuit(t *testing.T) {
	m, _ := newTestMonitor(&fakeFetcher{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestHeaderRenderSortsParams(t *testing.T) {
	out := NewHeader("Carlink", "carlinkd run", map[string]string{"b": "2", "a": "1"}).SetWidth(80).Render()
	assert.Less(t, strings.Index(out, "a:"), strings.Index(out, "b:"))
	assert.Contains(t, out, "CARLINK")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"YES\n", true},
		{"no\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out strings.Builder
			got := Confirm(strings.NewReader(tt.input), &out, "Overwrite", []string{"config exists"})
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPrinterBoxes(t *testing.T) {
	var out strings.Builder
	p := NewPrinter(&out)
	p.PrintSuccess("Config written", map[string]string{"Path": "/tmp/carlink.yaml"})
	p.PrintError("Adapter not found", errors.New("usb: adapter not found"), []string{"Check the cable"})

	s := out.String()
	assert.Contains(t, s, "Config written")
	assert.Contains(t, s, "/tmp/carlink.yaml")
	assert.Contains(t, s, "usb: adapter not found")
	assert.Contains(t, s, "Check the cable")
}

func TestStylesUseDefaultPadding(t *testing.T) {
	assert.Equal(t, DefaultPadding, HeaderTitleStyle.GetPaddingLeft())
	assert.Equal(t, DefaultPadding, HeaderParamKeyStyle.GetPaddingLeft())
	assert.Equal(t, DefaultPadding, SuccessBoxStyle(80).GetPaddingLeft())
	assert.Equal(t, DefaultPadding, ErrorBoxStyle(80).GetPaddingRight())
}
