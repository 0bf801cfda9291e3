package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/migrations"
	"github.com/Noxter68/habit-tracking-sub001/internal/ui"
)

func newMigrateCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the engine tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := connection.NewDatabase(cfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			var catalog []progression.Milestone
			if seed || cfg.Engine.CatalogSource == "database" {
				catalog = progression.MilestonesFromConfig(cfg.Milestones)
			}
			if err := migrations.AutoMigrate(ctx, db, catalog, log.Zap()); err != nil {
				log.Error("Migration failed", zap.Error(err))
				return err
			}

			history, err := migrations.GetMigrationHistory(ctx, db)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), history)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Heading(ui.IconDone, "Schema up to date"))
			for _, r := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "- v%d %s %s\n", r.Version, r.Name, ui.Muted.Render(r.AppliedAt.Format("2006-01-02 15:04")))
			}
			if len(catalog) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.LabelValue("Milestones seeded", len(catalog)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed-milestones", false, "upsert the configured milestone catalog into the milestones table")
	return cmd
}
