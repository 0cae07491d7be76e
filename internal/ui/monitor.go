package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muurk/carlink/internal/server"
)

const (
	maxEvents    = 12
	pollInterval = time.Second
)

var errFeedClosed = errors.New("event feed closed")

// StatusFetcher returns the status server snapshot
type StatusFetcher interface {
	Status(ctx context.Context) (*server.StatusView, error)
}

type feedMsg server.Message

type feedClosedMsg struct{}

type statusMsg struct {
	view *server.StatusView
	err  error
}

type tickMsg time.Time

type monitorKeyMap struct {
	Refresh key.Binding
	Clear   key.Binding
	Quit    key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Clear, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Clear, k.Quit}}
}

var defaultMonitorKeys = monitorKeyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear events")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Monitor is the `carlinkd monitor` dashboard
type Monitor struct {
	ctx    context.Context
	addr   string
	client StatusFetcher
	feed   <-chan server.Message

	status   *server.StatusView
	events   []server.Message
	feedOpen bool
	err      error

	spinner spinner.Model
	volume  progress.Model
	help    help.Model
	keys    monitorKeyMap
	width   int
}

// NewMonitor creates the dashboard model for the server at addr
func NewMonitor(ctx context.Context, addr string, client StatusFetcher, feed <-chan server.Message) Monitor {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(WarningColor)

	return Monitor{
		ctx:      ctx,
		addr:     addr,
		client:   client,
		feed:     feed,
		feedOpen: true,
		spinner:  sp,
		volume:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage()),
		help:     help.New(),
		keys:     defaultMonitorKeys,
		width:    GetTerminalWidth(),
	}
}

// RunMonitor follows the server behind client until the user quits or ctx ends
func RunMonitor(ctx context.Context, client *server.Client) error {
	feed, err := client.Watch(ctx)
	if err != nil {
		return err
	}
	p := tea.NewProgram(NewMonitor(ctx, client.Addr(), client, feed), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	return nil
}

func waitForFeed(feed <-chan server.Message) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return feedMsg(m)
	}
}

func (m Monitor) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
		defer cancel()
		v, err := m.client.Status(ctx)
		return statusMsg{view: v, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForFeed(m.feed), m.fetchStatus(), tick())
}

// Update implements tea.Model
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchStatus()
		case key.Matches(msg, m.keys.Clear):
			m.events = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.help.Width = m.width
		return m, nil

	case feedMsg:
		m.events = append(m.events, server.Message(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		if m.status != nil && msg.Type != server.TypeNotice {
			m.status.Phase = msg.Phase
		}
		if m.status != nil && msg.Type == server.TypePeer {
			m.status.Peer = msg.Peer
		}
		return m, tea.Batch(waitForFeed(m.feed), m.fetchStatus())

	case feedClosedMsg:
		m.feedOpen = false
		m.err = errFeedClosed
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = msg.view
		if m.feedOpen {
			m.err = nil
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStatus(), tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m Monitor) View() string {
	params := map[string]string{"Server": m.addr}
	sections := []string{NewHeader("Carlink Monitor", "carlinkd monitor", params).SetWidth(m.width).Render()}

	sections = append(sections, m.phaseLine())
	if m.err != nil {
		sections = append(sections, ErrorMessageStyle.Render("  "+m.err.Error()))
	}
	if m.status != nil {
		sections = append(sections, m.sessionPanel(), m.audioPanel())
		if len(m.status.Video) > 0 {
			sections = append(sections, m.videoPanel())
		}
	}
	sections = append(sections, m.eventsPanel(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Monitor) phaseLine() string {
	phase := "unknown"
	if m.status != nil {
		phase = m.status.Phase
	}
	marker := m.spinner.View()
	if phase == "streaming" {
		marker = lipgloss.NewStyle().Foreground(SuccessColor).Render(ActiveMarker)
	}
	return fmt.Sprintf("  %s %s", marker, PhaseStyle(phase).Render(strings.ToUpper(phase)))
}

func row(k, v string) string {
	return ResultKeyStyle.Render(k) + ResultValueStyle.Render(v)
}

func (m Monitor) sessionPanel() string {
	s := m.status
	lines := []string{SectionTitleStyle.Render("Session")}
	id := s.SessionID
	if id == "" {
		id = "none"
	}
	lines = append(lines, row("id", id), row("peer", s.Peer), row("sessions", fmt.Sprint(s.Sessions)))
	if s.Since != nil {
		lines = append(lines, row("since", s.Since.Local().Format("15:04:05")))
	}
	if hb := s.Heartbeat; hb != nil && !hb.LastRx.IsZero() {
		lines = append(lines, row("last rx", time.Since(hb.LastRx).Truncate(time.Millisecond).String()+" ago"))
	}
	for _, k := range sortedKeys(s.Info) {
		lines = append(lines, row(k, s.Info[k]))
	}
	return PanelStyle(m.width).Render(strings.Join(lines, "\n"))
}

func (m Monitor) audioPanel() string {
	a := m.status.Audio
	lines := []string{SectionTitleStyle.Render("Audio")}
	if a == nil {
		lines = append(lines, MutedStyle.Render("no session"))
		return PanelStyle(m.width).Render(strings.Join(lines, "\n"))
	}

	vol := m.volume.ViewAs(float64(a.MainVolume))
	flags := []string{}
	if a.Ducked {
		flags = append(flags, lipgloss.NewStyle().Foreground(WarningColor).Render("ducked"))
	}
	if a.InCall {
		flags = append(flags, lipgloss.NewStyle().Foreground(WarningColor).Render("in call"))
	}
	lines = append(lines, row("main volume", vol+" "+strings.Join(flags, " ")))
	if a.MicRate > 0 {
		lines = append(lines, row("microphone", fmt.Sprintf("%d Hz", a.MicRate)))
	}

	names := make([]string, 0, len(a.Streams))
	for name := range a.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := a.Streams[name]
		marker := MutedStyle.Render(IdleMarker)
		if st.Active {
			marker = lipgloss.NewStyle().Foreground(SuccessColor).Render(ActiveMarker)
		}
		format := "untagged"
		if st.SampleRate > 0 {
			format = fmt.Sprintf("%d Hz %dch", st.SampleRate, st.Channels)
		}
		lines = append(lines, row(name, fmt.Sprintf("%s decode %d, %s", marker, st.DecodeType, format)))
	}
	return PanelStyle(m.width).Render(strings.Join(lines, "\n"))
}

func (m Monitor) videoPanel() string {
	lines := []string{SectionTitleStyle.Render("Video")}
	for _, name := range sortedKeys(m.status.Video) {
		v := m.status.Video[name]
		state := fmt.Sprintf("%dx%d admitted %d, stale %d, backlog %d, keyframe req %d",
			v.Width, v.Height, v.Admitted, v.DroppedStale, v.DroppedBacklog, v.KeyframeRequests)
		if v.AwaitingKeyframe {
			state += lipgloss.NewStyle().Foreground(WarningColor).Render(" awaiting keyframe")
		}
		lines = append(lines, row(name, state))
	}
	return PanelStyle(m.width).Render(strings.Join(lines, "\n"))
}

func (m Monitor) eventsPanel() string {
	lines := []string{SectionTitleStyle.Render("Events")}
	if len(m.events) == 0 {
		lines = append(lines, MutedStyle.Render("waiting for events"))
	}
	for i := len(m.events) - 1; i >= 0; i-- {
		lines = append(lines, formatEvent(m.events[i]))
	}
	return PanelStyle(m.width).Render(strings.Join(lines, "\n"))
}

func formatEvent(e server.Message) string {
	ts := MutedStyle.Render(e.At.Local().Format("15:04:05.000"))
	var detail string
	switch e.Type {
	case server.TypeDisconnected:
		detail = ErrorMessageStyle.Render(e.Text) + MutedStyle.Render(" ("+e.Reason+")")
	case server.TypeNotice:
		detail = e.Notice
	default:
		detail = e.Peer
	}
	return fmt.Sprintf("%s  %-12s %s", ts, PhaseStyle(e.Phase).Render(e.Type), detail)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
