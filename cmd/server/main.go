// Package main is the entry point for the learning API server. It wires the
// database, LLM client, services, background dispatcher, and HTTP routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"aprenda/internal/config"
	"aprenda/internal/database"
	"aprenda/internal/handlers"
	"aprenda/internal/llm"
	"aprenda/internal/observability"
	"aprenda/internal/services"
	"aprenda/internal/tasks"
	contextutils "aprenda/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return contextutils.WrapError(err, "failed to load configuration")
	}

	tp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, cfg.OpenTelemetry.ServiceName)
	if err != nil {
		return contextutils.WrapError(err, "failed to set up observability")
	}

	ctx := context.Background()
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

	client, err := llm.NewClient(cfg)
	if err != nil {
		return contextutils.WrapError(err, "failed to create LLM client")
	}

	dispatcher := tasks.NewDispatcher(&cfg.Tasks, logger)

	topics := services.NewTopicService(db, logger)
	questions := services.NewQuestionService(db, logger)
	progress := services.NewProgressService(db, logger)
	events := services.NewAnswerEventService(db, logger)
	interactions := services.NewLLMInteractionService(db, logger)
	cache := services.NewExplanationCacheRepository(db, logger)
	insightStore := services.NewInsightService(db, logger)
	planRepo := services.NewStudyPlanRepository(db, logger)
	users := services.NewUserService(db, logger)

	svc := &handlers.Services{
		Adaptive:     services.NewAdaptiveService(cfg, logger, progress, questions, topics, events),
		Explanations: services.NewExplanationService(cfg, logger, client, cache, questions, progress, interactions),
		Insights:     services.NewInsightsService(cfg, logger, client, events, insightStore, interactions),
		InsightStore: insightStore,
		Plans:        services.NewStudyPlanService(cfg, logger, client, planRepo, topics, progress, interactions),
		Topics:       topics,
		Users:        users,
		Interactions: interactions,
		Dispatcher:   dispatcher,
	}

	router := handlers.NewRouter(cfg, logger, svc)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: config.DefaultHTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Server listening", map[string]interface{}{
			"port":         cfg.Server.Port,
			"llm_provider": cfg.LLM.Provider,
		})
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)
	case err = <-errCh:
		logger.Error(ctx, "Server error", err, nil)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, config.ServerShutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error(ctx, "HTTP server shutdown failed", shutdownErr, nil)
	}
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

	logger.Info(ctx, "Shutdown completed", nil)
	return err
}
