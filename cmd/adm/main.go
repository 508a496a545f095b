// Package main provides the entry point for the learning platform admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"aprenda/cmd/adm/commands"
	"aprenda/internal/config"
	"aprenda/internal/database"
	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Quiet logging and no exporters for the CLI
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableLogging = false

	tp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, cfg.OpenTelemetry.ServiceName+"-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if tp != nil {
			if sdkProvider, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
				if err := sdkProvider.Shutdown(context.TODO()); err != nil {
					logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_url": commands.MaskDatabaseURL(cfg.Database.URL)})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	userService := services.NewUserService(db, logger)
	topicService := services.NewTopicService(db, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Learning Platform Administration Tool",
		Long: `Learning Platform Administration Tool

A CLI tool for administering the adaptive learning platform.
Provides commands for user management, database migrations, and seeding sample content.`,

		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.UserCommands(userService, logger, cfg.Database.URL))
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, logger, db, cfg.Database.URL))
	rootCmd.AddCommand(commands.SeedCommands(topicService, logger, db))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
