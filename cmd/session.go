package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/instructoria/internal/config"
	"github.com/abhisek/instructoria/internal/content"
	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/store"
	"github.com/abhisek/instructoria/internal/tutor"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and reset lesson sessions (operator access)",
}

// operatorService builds a tutor service without a model provider. It is
// enough for every read and reset operation.
func operatorService(cfg *config.Config, st *store.Store) *tutor.Service {
	return tutor.NewService(tutor.Deps{
		Store:   st,
		Content: content.Chain{content.NewDir(cfg.Lessons.Dir, logger.Nop()), content.NewDB(st.Lessons())},
	}, cfg.TutorConfig())
}

var sessionProgressCmd = &cobra.Command{
	Use:   "progress <session-id>",
	Short: "Show where a session stands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		r, err := operatorService(cfg, st).Progress(cmd.Context(), "", args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Lesson:    %s (%s)\n", r.LessonTitle, r.LessonID)
		fmt.Fprintf(out, "State:     %s\n", r.State)
		fmt.Fprintf(out, "Progress:  %d/%d (%d%%)\n", r.CompletedCount, r.TotalActivities, r.Percentage)
		if r.CurrentActivityID != "" {
			fmt.Fprintf(out, "Current:   %d. %s (%s)\n", r.CurrentPosition, r.CurrentActivityTitle, r.CurrentActivityID)
		}
		if r.LastCompleted != nil {
			fmt.Fprintf(out, "Last done: %s after %d attempts\n", r.LastCompleted.Title, r.LastCompleted.Attempts)
		}
		if r.CompletedAt != nil {
			fmt.Fprintf(out, "Completed: %s\n", r.CompletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionTranscriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print the full conversation with activity markers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		t, err := operatorService(cfg, st).Transcript(cmd.Context(), "", args[0])
		if err != nil {
			return err
		}
		return t.Render(cmd.OutOrStdout())
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Delete a session's messages and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := operatorService(cfg, st).Reset(cmd.Context(), "", args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s reset.\n", args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionProgressCmd)
	sessionCmd.AddCommand(sessionTranscriptCmd)
	sessionCmd.AddCommand(sessionResetCmd)
}
