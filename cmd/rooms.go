package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/roomapi"
	"github.com/pakachere/liveclass/internal/ui"
	"github.com/pakachere/liveclass/internal/utils"
)

var roomsFlags clientFlags

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the rooms open on a relay",
	Long: `List the rooms a relay currently knows about: live rooms with their participants
and reserved rooms nobody has joined yet.

Examples:
  liveclass rooms
  liveclass rooms --server class.example.com --secure`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := roomsFlags.load()
		if err != nil {
			return err
		}

		client := roomapi.New(cfg.APIURL(), newResolver(cfg))
		sp := ui.NewConnectionSpinner("Fetching rooms from " + cfg.Client.Server + "...")
		sp.Start()
		rooms, err := client.ListRooms(cmd.Context())
		if err != nil {
			sp.Error("Could not reach the relay at " + cfg.Client.Server)
			return call.Cause("list rooms", call.ErrRelayUnavailable, err)
		}
		sp.Success(fmt.Sprintf("%s open on %s", utils.Plural(len(rooms), "room"), cfg.Client.Server))

		if len(rooms) == 0 {
			ui.PrintInfo("Start one with: liveclass tutor --session <id>")
			return nil
		}
		fmt.Println(ui.RoomsView(rooms, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsFlags.register(roomsCmd.Flags(), false)
}
