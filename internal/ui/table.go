package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/utils"
)

// CallSummaryView renders the end-of-call table.
func CallSummaryView(s call.Snapshot) string {
	status := IconHangup + " " + s.Status
	if s.State == call.StateError {
		status = IconError + " " + s.Status
	}

	duration := "not connected"
	if !s.ConnectedAt.IsZero() {
		end := s.EndedAt
		if end.IsZero() {
			end = time.Now()
		}
		duration = utils.FormatTimeDuration(end.Sub(s.ConnectedAt))
	}

	messages := 0
	for _, l := range s.Transcript {
		if l.Sender != call.SenderSystem {
			messages++
		}
	}

	rows := [][]string{
		{"Status", status},
		{"Room", orDash(s.RoomID)},
		{"Role", roleTitle(s.Role)},
		{"Duration", duration},
		{"Messages", fmt.Sprintf("%d", messages)},
	}
	for _, t := range s.RemoteTracks {
		rows = append(rows, []string{
			"Received " + t.Kind,
			fmt.Sprintf("%s %s in %d packets", t.Codec, utils.FormatSize(t.Bytes), t.Packets),
		})
	}
	if s.Err != nil {
		rows = append(rows, []string{"Error", utils.TruncateString(s.Err.Error(), 60)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderCallSummary(s call.Snapshot) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("📊 Call Summary"))
	fmt.Println(CallSummaryView(s))
}

// RoomInfoView is the box shown when a tutor's room is ready.
func RoomInfoView(roomID, roomLink string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(roomLink),
	)
	return SuccessBoxStyle.Render(content)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
