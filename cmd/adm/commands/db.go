// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"

	"aprenda/internal/database"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, logger *observability.Logger, db *sql.DB, databaseURL string) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the learning platform.

Available commands:
  migrate - Apply pending schema migrations
  stats   - Show database statistics`,
	}

	dbCmd.AddCommand(migrateCmd(dbManager, logger, databaseURL))
	dbCmd.AddCommand(statsCmd(logger, db))

	return dbCmd
}

func migrateCmd(dbManager *database.Manager, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply any pending schema migrations against the configured database.`,
		RunE:  runMigrate(dbManager, logger, databaseURL),
	}
}

func statsCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show row counts for the main tables.`,
		RunE:  runStats(logger, db),
	}
}

// runMigrate returns a function that applies pending migrations
func runMigrate(dbManager *database.Manager, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Applying migrations", map[string]interface{}{"database_url": MaskDatabaseURL(databaseURL)})

		if err := dbManager.RunMigrations(databaseURL); err != nil {
			logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to run migrations")
		}

		logger.Info(ctx, "Migrations applied", map[string]interface{}{})
		return nil
	}
}

// runStats returns a function that shows database statistics
func runStats(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Showing database statistics", map[string]interface{}{"database": getDatabaseInfo(db)})

		stats := map[string]interface{}{}
		for _, table := range []string{"users", "subjects", "topics", "questions", "user_progress", "answer_events", "study_plans", "study_sessions"} {
			var count int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
				return contextutils.WrapErrorf(err, "failed to count rows in %s", table)
			}
			stats[table] = count
		}

		logger.Info(ctx, "Database statistics", stats)
		return nil
	}
}
