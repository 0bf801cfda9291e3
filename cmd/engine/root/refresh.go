package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/scheduler"
	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

func newRefreshCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "refresh [habit-id]",
		Short: "Recompute streaks, tiers and milestones for one habit or all active habits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if len(args) == 0 {
				sched := scheduler.NewScheduler(a.habits, a.progression, scheduler.Options{
					Location:    a.cfg.Engine.Location(),
					Concurrency: a.cfg.Scheduler.Concurrency,
				}, a.log)
				summary, err := sched.RunOnce(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), summary)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, ui.Heading(ui.IconSparkle, "Refresh for "+summary.Today.String()))
				fmt.Fprintln(out, ui.LabelValue("Habits", summary.Total))
				fmt.Fprintln(out, ui.LabelValue("Refreshed", ui.Good.Render(fmt.Sprint(summary.Refreshed))))
				if summary.Failed > 0 {
					fmt.Fprintln(out, ui.LabelValue("Failed", ui.Bad.Render(fmt.Sprint(summary.Failed))))
				}
				fmt.Fprintln(out, ui.LabelValue("Milestones unlocked", summary.Unlocked))
				fmt.Fprintln(out, ui.LabelValue("Tier changes", summary.TierChanges))
				fmt.Fprintln(out, ui.Muted.Render("took "+summary.Duration.String()))
				return nil
			}

			habitID, err := parseID("habit", args[0])
			if err != nil {
				return err
			}
			h, err := a.habits.GetHabit(ctx, habitID)
			if err != nil {
				return err
			}
			userID := h.UserID
			if userFlag != "" {
				if userID, err = parseID("user", userFlag); err != nil {
					return err
				}
			}

			res, err := a.progression.Refresh(ctx, habitID, userID, today)
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

	cmd.Flags().StringVar(&userFlag, "user", "", "owner of the habit (defaults to the stored owner)")
	return cmd
}

func printRefresh(cmd *cobra.Command, res *progression.RefreshResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Heading(ui.IconStreak, "Progression"))
	fmt.Fprintln(out, ui.LabelValue("Current streak", res.Streak.Current))
	fmt.Fprintln(out, ui.LabelValue("Best streak", res.Streak.Best))
	if res.Streak.Broken {
		fmt.Fprintln(out, ui.Warn.Render(ui.IconWarn+" streak broken"))
	}
	fmt.Fprintf(out, "%s %s %s\n", ui.Key.Render("Tier:"), ui.TierBadge(res.Tier.Tier.Name, res.Tier.Tier.Color), ui.ProgressBar(res.Tier.ProgressPercent))
	if res.TierChanged {
		fmt.Fprintln(out, ui.Gold.Render(fmt.Sprintf("Tier up: %s → %s", res.PreviousTier, res.Tier.Tier.Name)))
	}
	if res.Unlock.Unlocked {
		fmt.Fprintln(out, ui.Gold.Render(fmt.Sprintf("%s %s unlocked (+%d XP)", ui.IconTrophy, res.Unlock.Milestone.Title, res.Unlock.XPAwarded)))
	}
	fmt.Fprintln(out, ui.LabelValue("Completion rate", ui.Percent(res.Performance.CompletionRate)))
	fmt.Fprintln(out, ui.LabelValue("Consistency", ui.Percent(res.Performance.ConsistencyScore)))
}
