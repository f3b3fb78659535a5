package cmd

import (
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/signaling"
)

var (
	tutorFlags  clientFlags
	flagSession string
)

var tutorCmd = &cobra.Command{
	Use:     "tutor",
	Aliases: []string{"t"},
	Short:   "Start a live session as the tutor",
	Long: `Create a room for a tutoring session and wait for the student to join.

The room link is shown once the room is ready; the call connects as soon as the
student opens it.

Examples:
  liveclass tutor --session algebra-101
  liveclass tutor --server class.example.com --secure --name "Ms Rivera"
  liveclass tutor --video lesson.ivf --audio voice.ogg`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := tutorFlags.load()
		if err != nil {
			return err
		}
		session := flagSession
		if session == "" {
			session = "session-" + xid.New().String()
		}
		return runCall(cmd.Context(), cfg, call.Options{
			Role:      signaling.RoleTutor,
			SessionID: session,
		})
	},
}

func init() {
	rootCmd.AddCommand(tutorCmd)

	tutorFlags.register(tutorCmd.Flags(), true)
	tutorCmd.Flags().StringVar(&flagSession, "session", "", "Session ID the room belongs to (default generated)")
}
