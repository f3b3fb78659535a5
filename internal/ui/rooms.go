package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pakachere/liveclass/internal/roomapi"
	"github.com/pakachere/liveclass/internal/utils"
)

// RoomsView renders the relay's open rooms, oldest first as the relay returns them.
func RoomsView(rooms []roomapi.Room, now time.Time) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("Active rooms")
	t.AppendHeader(table.Row{"#", "Room", "Session", "Participants", "Age", "State"})

	total := 0
	for i, r := range rooms {
		state := "live"
		if r.Reserved {
			state = "reserved"
		}
		who := "-"
		if len(r.Participants) > 0 {
			who = utils.TruncateString(strings.Join(r.Participants, ", "), 40)
		}
		total += len(r.Participants)
		t.AppendRow(table.Row{
			i + 1,
			r.RoomID,
			orDash(r.SessionID),
			who,
			utils.FormatTimeDuration(now.Sub(r.CreatedAt)),
			state,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d rooms", len(rooms)), "", utils.Plural(total, "participant"), "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	return t.Render()
}
