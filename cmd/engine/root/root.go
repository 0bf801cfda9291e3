package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

const Version = "0.3.0"

var (
	configPath string
	jsonOutput bool
	todayFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "habit-engine",
	Short:         "Habit progression and analytics engine",
	Long:          "Computes streaks, tiers, milestones and insights for habits stored in PostgreSQL.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of styled text")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "evaluate as of this day (YYYY-MM-DD)")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newWorkerCmd(),
		newRefreshCmd(),
		newCompleteCmd(),
		newUncompleteCmd(),
		newInsightsCmd(),
		newStatsCmd(),
		newStatusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Bad.Render(ui.IconError+" "+err.Error()))
		os.Exit(1)
	}
}
