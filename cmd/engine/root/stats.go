package root

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/analytics"
	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var userFlag, periodFlag string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate a user's habits over a week, month or all time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return errors.New("--user is required")
			}
			userID, err := parseID("user", userFlag)
			if err != nil {
				return err
			}
			period, err := analytics.ParsePeriod(periodFlag)
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
			stats, err := a.analytics.GetPeriodStats(ctx, userID, period, today)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconCalendar, fmt.Sprintf("Stats (%s, %s to %s)", stats.Period, stats.Range.Start, stats.Range.End)))
			fmt.Fprintln(out, ui.LabelValue("Habits", stats.TotalHabits))
			fmt.Fprintln(out, ui.LabelValue("Current streak", stats.CurrentStreak))
			best := fmt.Sprint(stats.BestStreak)
			if stats.ChampionTitle != "" {
				best += " " + ui.Muted.Render("("+stats.ChampionTitle+")")
			}
			fmt.Fprintln(out, ui.LabelValue("Best streak", best))
			fmt.Fprintln(out, ui.LabelValue("Completed today", stats.CompletedToday))
			fmt.Fprintln(out, ui.LabelValue("Completions", stats.TotalCompletions))
			fmt.Fprintln(out, ui.LabelValue("Perfect days", stats.PerfectDays))
			fmt.Fprintln(out, ui.LabelValue("Average", ui.Percent(stats.WeeklyAverage)))
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "user to aggregate")
	cmd.Flags().StringVar(&periodFlag, "period", "week", "week, month or all")
	return cmd
}
