// Package main is the entry point for the background worker. It runs the task
// dispatcher plus a periodic sweeper that reschedules overdue study sessions.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aprenda/internal/config"
	"aprenda/internal/database"
	"aprenda/internal/observability"
	"aprenda/internal/tasks"
	contextutils "aprenda/internal/utils"
)

// sweepInterval is how often the worker looks for overdue sessions
const sweepInterval = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return contextutils.WrapError(err, "failed to load configuration")
	}

	tp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, cfg.OpenTelemetry.ServiceName+"-worker")
	if err != nil {
		return contextutils.WrapError(err, "failed to set up observability")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize database")
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn(ctx, "Failed to close database", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	dispatcher := tasks.NewDispatcher(&cfg.Tasks, logger)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info(ctx, "Worker started", map[string]interface{}{
		"sweep_interval": sweepInterval.String(),
	})

	for {
		select {
		case <-ticker.C:
			taskID, submitErr := dispatcher.Submit(ctx, "session_sweep", func(taskCtx context.Context) (interface{}, error) {
				return sweepOverdueSessions(taskCtx, db)
			})
			if submitErr != nil {
				logger.Warn(ctx, "Failed to queue session sweep", map[string]interface{}{"error": submitErr.Error()})
				continue
			}
			logger.Info(ctx, "Queued session sweep", map[string]interface{}{"task_id": taskID})
		case <-shutdownCh:
			logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.TaskShutdownTimeout)
			defer shutdownCancel()

			if shutdownErr := dispatcher.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error(ctx, "Task dispatcher shutdown failed", shutdownErr, nil)
			}
			if tp != nil {
				if sdkProvider, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
					if shutdownErr := sdkProvider.Shutdown(shutdownCtx); shutdownErr != nil {
						logger.Warn(ctx, "Tracer provider shutdown failed", map[string]interface{}{"error": shutdownErr.Error()})
					}
				}
			}
			return nil
		}
	}
}

// sweepOverdueSessions moves pending sessions whose date has passed to the
// next day so plans stay actionable
func sweepOverdueSessions(ctx context.Context, db *sql.DB) (interface{}, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE study_sessions
		SET scheduled_date = CURRENT_DATE + INTERVAL '1 day', updated_at = NOW()
		WHERE status = 'pending' AND scheduled_date < CURRENT_DATE
	`)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to sweep overdue sessions")
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get rows affected")
	}
	return map[string]interface{}{"rescheduled": moved}, nil
}
