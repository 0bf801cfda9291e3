package root

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/analytics"
	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

func newInsightsCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "insights [habit-id]",
		Short: "Show predictions and performance for a habit, or for every habit of --user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && userFlag == "" {
				return errors.New("pass a habit id or --user")
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

			var list []analytics.Insights
			if len(args) == 1 {
				habitID, err := parseID("habit", args[0])
				if err != nil {
					return err
				}
				in, err := a.analytics.GetInsights(ctx, habitID, today)
				if err != nil {
					return err
				}
				list = append(list, *in)
			} else {
				userID, err := parseID("user", userFlag)
				if err != nil {
					return err
				}
				if list, err = a.analytics.GetUserInsights(ctx, userID, today); err != nil {
					return err
				}
			}

			if jsonOutput {
				if len(args) == 1 {
					return printJSON(cmd.OutOrStdout(), list[0])
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			for i := range list {
				printInsights(cmd, &list[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "show insights for every habit of this user")
	return cmd
}

func printInsights(cmd *cobra.Command, in *analytics.Insights) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Heading(ui.IconChart, "Insights "+in.HabitID.String()))
	fmt.Fprintln(out, ui.LabelValue("Streak", fmt.Sprintf("%d (best %d)", in.CurrentStreak, in.BestStreak)))
	fmt.Fprintln(out, ui.LabelValue("Momentum", ui.Momentum(string(in.Momentum))+" "+ui.Muted.Render(fmt.Sprintf("(%d vs %d)", in.RecentCompletions, in.PreviousCompletions))))
	fmt.Fprintln(out, ui.LabelValue("Velocity", fmt.Sprintf("%.1f%%", in.StreakVelocity)))
	fmt.Fprintln(out, ui.LabelValue("Success probability", ui.Percent(in.SuccessProbability)))
	fmt.Fprintln(out, ui.LabelValue("Habit formation", ui.ProgressBar(in.HabitFormationProgress)+fmt.Sprintf(" %.0f%%", in.HabitFormationProgress)))
	fmt.Fprintln(out, ui.LabelValue("Predicted max streak", in.PredictedMaxStreak))
	fmt.Fprintln(out, ui.LabelValue("Projected streak", fmt.Sprintf("%d in 30 days, %d in 90 days", in.Projected30Days, in.Projected90Days)))
	if in.BestDay != "" {
		fmt.Fprintln(out, ui.LabelValue("Best day", in.BestDay))
	}
	fmt.Fprintln(out, ui.LabelValue("Completion rate", ui.Percent(in.Performance.CompletionRate)))
	fmt.Fprintln(out, ui.LabelValue("Consistency", ui.Percent(in.Performance.ConsistencyScore)))
	fmt.Fprintln(out, ui.LabelValue("Strengths", ui.Tags(in.StrengthFactors, ui.Good)))
	fmt.Fprintln(out, ui.LabelValue("Risks", ui.Tags(in.RiskFactors, ui.Warn)))
	fmt.Fprintln(out, "")
}
