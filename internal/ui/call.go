package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/utils"
)

// transcriptLines is how many chat lines the view keeps on screen.
const transcriptLines = 8

// Actions are what the view can ask of the call.
type Actions struct {
	SendChat func(text string) error
	Hangup   func()
}

// TickMsg refreshes clocks and the negotiation countdown.
type TickMsg time.Time

type snapshotMsg call.Snapshot

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// CallModel renders a live call: status, participants, media, and the chat transcript with an input line.
type CallModel struct {
	snap      call.Snapshot
	roomLink  func(roomID string) string
	actions   Actions
	updates   <-chan call.Snapshot
	spinner   spinner.Model
	input     textinput.Model
	countdown progress.Model
	notice    string
	now       func() time.Time
	done      bool
}

// NewCallModel builds the view. roomLink, when not nil, turns a room id into a shareable link.
func NewCallModel(role string, roomLink func(string) string, actions Actions, updates <-chan call.Snapshot) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "Type a message"
	in.Prompt = "> "
	in.CharLimit = 500
	in.Width = 60
	in.Focus()

	return &CallModel{
		snap:     call.Snapshot{Role: role, Status: "Starting..."},
		roomLink: roomLink,
		actions:  actions,
		updates:  updates,
		spinner:  s,
		input:    in,
		countdown: progress.New(
			progress.WithGradient(CountdownStart, CountdownEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		now: time.Now,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tickCmd(), textinput.Blink)
}

func (m *CallModel) listen() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-m.updates
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.snap.State.Terminal() {
				m.done = true
				return m, tea.Quit
			}
			if m.actions.Hangup != nil {
				m.actions.Hangup()
			}
			m.notice = "Hanging up..."
			return m, nil

		case "enter":
			m.send()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.input.Width = max(20, msg.Width-6)
		m.countdown.Width = min(30, max(10, msg.Width-30))

	case snapshotMsg:
		m.snap = call.Snapshot(msg)
		if m.snap.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		cmds = append(cmds, m.listen())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		if !m.done {
			cmds = append(cmds, tickCmd())
		}

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) send() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.actions.SendChat == nil {
		return
	}
	if err := m.actions.SendChat(text); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
	m.input.Reset()
}

// Snapshot is the last state the view rendered.
func (m *CallModel) Snapshot() call.Snapshot {
	return m.snap
}

func (m *CallModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	s := m.snap

	title := fmt.Sprintf("%s LiveClass · %s", IconClass, roleTitle(s.Role))
	b.WriteString(HeaderStyle.Render(title) + "\n")

	switch {
	case s.RoomID == "":
	case m.roomLink != nil && s.State == call.StateNegotiating && s.Viewers() == 0:
		// Nobody has joined yet: show the link prominently so it can be shared.
		b.WriteString(RoomInfoView(s.RoomID, m.roomLink(s.RoomID)) + "\n")
	default:
		room := fmt.Sprintf("%s Room  %s", IconRoom, BoldStyle.Render(s.RoomID))
		if m.roomLink != nil {
			room += fmt.Sprintf("\n%s Link  %s", IconLink, MutedStyle.Render(m.roomLink(s.RoomID)))
		}
		b.WriteString(BoxStyle.Render(room) + "\n")
	}

	b.WriteString(m.statusLine() + "\n")
	if bar := m.countdownLine(); bar != "" {
		b.WriteString(bar + "\n")
	}

	viewers := fmt.Sprintf("%s %s", IconViewers, utils.Plural(s.Viewers(), "viewer"))
	if !s.ConnectedAt.IsZero() {
		viewers += MutedStyle.Render(fmt.Sprintf("   %s %s", IconTime, utils.FormatTimeDuration(m.now().Sub(s.ConnectedAt))))
	}
	b.WriteString("\n" + viewers + "\n")

	if s.LocalMedia != "" {
		b.WriteString(fmt.Sprintf("%s You: %s\n", IconCamera, s.LocalMedia))
	}
	for _, t := range s.RemoteTracks {
		line := fmt.Sprintf("%s Remote %s %s: %s", IconSignal, t.Kind, t.Codec, utils.FormatSize(t.Bytes))
		if !s.ConnectedAt.IsZero() {
			line += " " + MutedStyle.Render(utils.FormatBitrate(t.Bytes, m.now().Sub(s.ConnectedAt)))
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(fmt.Sprintf("\n%s Chat\n", IconChat))
	b.WriteString(m.transcript())
	b.WriteString(m.input.View() + "\n")

	if m.notice != "" {
		b.WriteString(WarningStyle.Render(m.notice) + "\n")
	}
	b.WriteString(FooterStyle.Render("enter to send · esc to hang up"))

	return b.String()
}

func (m *CallModel) statusLine() string {
	s := m.snap
	switch s.State {
	case call.StateConnected:
		return SuccessStyle.Render(IconSuccess+" ") + s.Status
	case call.StateError:
		return ErrorStyle.Render(IconError + " " + s.Status)
	case call.StateEnded:
		return IconHangup + " " + s.Status
	default:
		return m.spinner.View() + " " + s.Status
	}
}

func (m *CallModel) countdownLine() string {
	s := m.snap
	if s.NegotiationDeadline.IsZero() || s.State != call.StateNegotiating {
		return ""
	}
	total := s.NegotiationDeadline.Sub(s.NegotiationStarted)
	left := s.NegotiationDeadline.Sub(m.now())
	if total <= 0 {
		return ""
	}
	left = max(left, 0)
	return m.countdown.ViewAs(1-float64(left)/float64(total)) +
		MutedStyle.Render(fmt.Sprintf(" %s %s left", IconWaiting, utils.FormatTimeDuration(left)))
}

func (m *CallModel) transcript() string {
	lines := m.snap.Transcript
	if len(lines) == 0 {
		return MutedStyle.Render("  No messages yet") + "\n"
	}
	if len(lines) > transcriptLines {
		lines = lines[len(lines)-transcriptLines:]
	}

	var b strings.Builder
	for _, l := range lines {
		ts := TimestampStyle.Render(l.At.Format("15:04"))
		switch l.Sender {
		case call.SenderSystem:
			b.WriteString(fmt.Sprintf("  %s %s\n", ts, SystemLineStyle.Render(l.Text)))
		case call.SenderYou:
			b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, SelfSenderStyle.Render(l.Sender+":"), l.Text))
		default:
			b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, PeerSenderStyle.Render(l.Sender+":"), l.Text))
		}
	}
	return b.String()
}

func roleTitle(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// CallUI runs a CallModel in a bubbletea program fed by call snapshots.
type CallUI struct {
	model   *CallModel
	updates chan call.Snapshot
	mu      sync.Mutex
}

// NewCallUI creates the view. Actions are usually bound to a call.Controller.
func NewCallUI(role string, roomLink func(string) string, actions Actions) *CallUI {
	updates := make(chan call.Snapshot, 1)
	return &CallUI{
		model:   NewCallModel(role, roomLink, actions, updates),
		updates: updates,
	}
}

// Observe hands s to the view without blocking. Only the latest snapshot is kept.
func (u *CallUI) Observe(s call.Snapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for {
		select {
		case u.updates <- s:
			return
		default:
		}
		select {
		case <-u.updates:
		default:
		}
	}
}

// Run blocks until the call is over and the view has exited.
func (u *CallUI) Run() error {
	_, err := tea.NewProgram(u.model).Run()
	return err
}
