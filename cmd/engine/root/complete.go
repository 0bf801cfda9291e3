package root

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
)

func newCompleteCmd() *cobra.Command {
	var userFlag, dateFlag string

	cmd := &cobra.Command{
		Use:   "complete <habit-id>",
		Short: "Record a completion and refresh the habit's progression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return errors.New("--user is required")
			}
			habitID, err := parseID("habit", args[0])
			if err != nil {
				return err
			}
			userID, err := parseID("user", userFlag)
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, cleanup, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			today, err := a.today()
			if err != nil {
				return err
			}
			day := today
			if dateFlag != "" {
				if day, err = habits.ParseDay(dateFlag); err != nil {
					return err
				}
				if day.After(today) {
					return errors.New("cannot complete a habit in the future")
				}
			}

			res, err := a.progression.OnCompletion(ctx, habitID, userID, day, today)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printRefresh(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "owner of the habit")
	cmd.Flags().StringVar(&dateFlag, "date", "", "day to mark complete (YYYY-MM-DD, defaults to today)")
	return cmd
}
