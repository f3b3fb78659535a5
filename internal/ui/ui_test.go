package ui

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/roomapi"
	"github.com/pakachere/liveclass/internal/signaling"
)

var at = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func connectedSnapshot() call.Snapshot {
	return call.Snapshot{
		State:  call.StateConnected,
		Status: "Connected",
		Role:   signaling.RoleTutor,
		RoomID: "room-1",
		Participants: []signaling.Participant{
			{Name: "Ms Rivera", Role: signaling.RoleTutor},
			{Name: "Sam", Role: signaling.RoleStudent},
		},
		Transcript: []call.ChatLine{
			{At: at, Sender: call.SenderSystem, Text: "Sam joined"},
			{At: at, Sender: "Sam", Text: "hi!"},
			{At: at, Sender: call.SenderYou, Text: "welcome"},
		},
		LocalMedia:   "camera off, microphone silence (Opus)",
		RemoteTracks: []media.TrackStats{{ID: "v", Kind: "video", Codec: "VP8", Packets: 10, Bytes: 2048}},
		ConnectedAt:  at,
	}
}

func newModel(actions Actions) *CallModel {
	m := NewCallModel(signaling.RoleTutor, func(id string) string { return "http://relay/live/" + id }, actions, nil)
	m.now = func() time.Time { return at.Add(65 * time.Second) }
	return m
}

func TestCallViewRendersSnapshot(t *testing.T) {
	m := newModel(Actions{})
	m.Update(snapshotMsg(connectedSnapshot()))

	out := m.View()
	assert.Contains(t, out, "LiveClass · Tutor")
	assert.Contains(t, out, "room-1")
	assert.Contains(t, out, "http://relay/live/room-1")
	assert.Contains(t, out, "1 viewer")
	assert.Contains(t, out, "1m 5s")
	assert.Contains(t, out, "Remote video VP8: 2.00 KB")
	assert.Contains(t, out, "Sam joined")
	assert.Contains(t, out, "Sam: hi!")
	assert.Contains(t, out, "You: welcome")
}

func TestCallViewCountdown(t *testing.T) {
	m := newModel(Actions{})
	s := call.Snapshot{
		State:               call.StateNegotiating,
		Status:              "Negotiating with Sam...",
		NegotiationStarted:  at,
		NegotiationDeadline: at.Add(2 * time.Minute),
	}
	m.Update(snapshotMsg(s))
	assert.Contains(t, m.View(), "55s left")

	s.State = call.StateConnected
	m.Update(snapshotMsg(s))
	assert.NotContains(t, m.View(), "left")
}

func TestCallViewSendsChat(t *testing.T) {
	var sent []string
	fail := false
	m := newModel(Actions{SendChat: func(text string) error {
		if fail {
			return errors.New("send chat: no room id")
		}
		sent = append(sent, text)
		return nil
	}})

	m.input.SetValue("  hello class ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"hello class"}, sent)
	assert.Empty(t, m.input.Value())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Len(t, sent, 1, "blank input is not sent")

	fail = true
	m.input.SetValue("again")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "again", m.input.Value(), "input kept when sending fails")
	assert.Contains(t, m.View(), "no room id")
}

func TestCallViewHangupAndQuit(t *testing.T) {
	hungUp := 0
	m := newModel(Actions{Hangup: func() { hungUp++ }})
	m.Update(snapshotMsg(connectedSnapshot()))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 1, hungUp)
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Hanging up...")

	ended := connectedSnapshot()
	ended.State = call.StateEnded
	_, cmd = m.Update(snapshotMsg(ended))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.Equal(t, call.StateEnded, m.Snapshot().State)
}

func TestCallUIObserveKeepsLatest(t *testing.T) {
	u := NewCallUI(signaling.RoleStudent, nil, Actions{})
	u.Observe(call.Snapshot{Status: "one"})
	u.Observe(call.Snapshot{Status: "two"})

	got := <-u.updates
	assert.Equal(t, "two", got.Status)
}

func TestCallSummaryView(t *testing.T) {
	s := connectedSnapshot()
	s.State = call.StateEnded
	s.Status = "Sam left the call"
	s.EndedAt = at.Add(3*time.Minute + 5*time.Second)

	out := CallSummaryView(s)
	assert.Contains(t, out, "Sam left the call")
	assert.Contains(t, out, "3m 5s")
	assert.Contains(t, out, "VP8 2.00 KB in 10 packets")

	failed := call.Snapshot{State: call.StateError, Status: "Failed to create room", Err: errors.New("create room: room creation failed")}
	out = CallSummaryView(failed)
	assert.Contains(t, out, "not connected")
	assert.Contains(t, out, "room creation failed")
}

func TestRoomsView(t *testing.T) {
	assert.Contains(t, RoomsView(nil, at), "No active rooms")

	out := RoomsView([]roomapi.Room{
		{RoomID: "r1", SessionID: "algebra", Participants: []string{"Ms Rivera", "Sam"}, CreatedAt: at.Add(-2 * time.Minute)},
		{RoomID: "r2", CreatedAt: at.Add(-5 * time.Second), Reserved: true},
	}, at)
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "algebra")
	assert.Contains(t, out, "Ms Rivera, Sam")
	assert.Contains(t, out, "2m 0s")
	assert.Contains(t, out, "reserved")
}

// captureStdout returns what f prints.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	out := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		out <- string(b)
	}()
	f()
	w.Close()
	return <-out
}

func TestSpinnerOutcome(t *testing.T) {
	out := captureStdout(t, func() {
		sp := NewSimpleSpinner("Shutting down relay...")
		sp.Start()
		sp.Success("Relay stopped")
		sp.Stop()
	})
	assert.Contains(t, out, "Shutting down relay...")
	assert.Contains(t, out, IconSuccess)
	assert.Contains(t, out, "Relay stopped\n")

	out = captureStdout(t, func() {
		sp := NewConnectionSpinner("Fetching rooms...")
		sp.Start()
		sp.Error("Could not reach the relay")
	})
	assert.Contains(t, out, IconError)
	assert.Contains(t, out, "Could not reach the relay\n")
}

func TestPrintHelpers(t *testing.T) {
	out := captureStdout(t, func() {
		PrintSuccess("Relay listening on :8080")
		PrintInfof("metrics at http://%s/metrics", ":8080")
		PrintInfo("Start one")
		PrintWarning("careful")
		PrintError("boom")
	})
	assert.Contains(t, out, IconSuccess)
	assert.Contains(t, out, " Relay listening on :8080\n")
	assert.Contains(t, out, IconInfo+" metrics at http://:8080/metrics\n")
	assert.Contains(t, out, IconInfo+" Start one\n")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "boom")
}
