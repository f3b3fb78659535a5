package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/signaling"
)

var studentFlags clientFlags

var studentCmd = &cobra.Command{
	Use:     "student <room-id|url>",
	Aliases: []string{"join", "s"},
	Short:   "Join a tutor's live session",
	Long: `Join a live session with the room ID or link the tutor shared.

Examples:
  liveclass student 5f0c3e0e-8d44-4c55-9a51-7c2b1f0d7a10
  liveclass student https://class.example.com/live/5f0c3e0e-8d44-4c55-9a51-7c2b1f0d7a10
  liveclass student 5f0c3e0e-8d44-4c55-9a51-7c2b1f0d7a10 --relay --turn turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		cfg, err := studentFlags.load()
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), cfg, call.Options{
			Role:   signaling.RoleStudent,
			RoomID: roomID,
		})
	},
}

func init() {
	rootCmd.AddCommand(studentCmd)

	studentFlags.register(studentCmd.Flags(), true)
}
