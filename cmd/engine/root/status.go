package root

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "status <habit-id>",
		Short: "Show tier, milestones and XP of a habit",
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
			status, err := a.progression.GetStatus(ctx, habitID, userID, today)
			if err != nil {
				return err
			}
			total, err := a.ledger.TotalXP(ctx, userID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), struct {
					*progression.Status
					TotalXP int `json:"total_xp"`
				}{status, total})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconTrophy, "Habit status"))
			fmt.Fprintln(out, ui.LabelValue("Current streak", status.CurrentStreak))
			fmt.Fprintf(out, "%s %s %s %s\n", ui.Key.Render("Tier:"), ui.TierBadge(status.Tier.Tier.Name, status.Tier.Tier.Color), ui.ProgressBar(status.Tier.ProgressPercent), ui.Muted.Render(fmt.Sprintf("x%.1f XP", status.XPMultiplier)))
			if status.NextTier != nil {
				fmt.Fprintln(out, ui.Muted.Render(fmt.Sprintf("next: %s at %d days", status.NextTier.Name, status.NextTier.MinDays)))
			}
			fmt.Fprintln(out, ui.LabelValue("Habit XP", status.HabitXP))
			fmt.Fprintln(out, ui.LabelValue("Total XP", total))
			fmt.Fprintln(out, "")

			fmt.Fprintln(out, ui.H2.Render(ui.IconTrophy+" Milestones"))
			for _, m := range status.Milestones.Unlocked {
				fmt.Fprintf(out, "- %s %s %s\n", ui.Good.Render(ui.IconDone), m.Title, ui.Muted.Render(fmt.Sprintf("(%d days)", m.Days)))
			}
			for _, m := range status.Milestones.Upcoming {
				fmt.Fprintf(out, "- %s %s %s\n", ui.Muted.Render(ui.IconLock), m.Title, ui.Muted.Render(fmt.Sprintf("(%d days, %d to go)", m.Days, m.Days-status.CurrentStreak)))
			}

			if len(status.PastStreaks) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("Past streaks"))
				for _, run := range status.PastStreaks {
					fmt.Fprintf(out, "- %d days %s\n", run.Length, ui.Muted.Render(fmt.Sprintf("(%s to %s)", run.Start, run.End)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "owner of the habit")
	return cmd
}
