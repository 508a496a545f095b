package handlers

import (
	"context"
	"net/http"

	"aprenda/internal/observability"
	"aprenda/internal/services"
	"aprenda/internal/tasks"
	contextutils "aprenda/internal/utils"

	"github.com/gin-gonic/gin"
)

// InsightsHandler serves performance analysis
type InsightsHandler struct {
	insights   services.InsightsService
	store      services.InsightService
	dispatcher *tasks.Dispatcher
	logger     *observability.Logger
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(insights services.InsightsService, store services.InsightService, dispatcher *tasks.Dispatcher, logger *observability.Logger) *InsightsHandler {
	return &InsightsHandler{
		insights:   insights,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// AnalyzePerformance runs a performance analysis synchronously
func (h *InsightsHandler) AnalyzePerformance(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "analyze_performance")
	var err error
	defer observability.FinishSpan(span, &err)

	insight, err := h.insights.AnalyzePerformance(ctx, currentUserID(c), requestLocale(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, insight)
}

// AnalyzePerformanceAsync queues a performance analysis and returns a task handle
func (h *InsightsHandler) AnalyzePerformanceAsync(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "analyze_performance_async")
	var err error
	defer observability.FinishSpan(span, &err)

	userID := currentUserID(c)
	locale := requestLocale(c)

	taskID, err := h.dispatcher.Submit(c.Request.Context(), "performance_analysis", func(taskCtx context.Context) (interface{}, error) {
		return h.insights.AnalyzePerformance(contextutils.WithUserID(taskCtx, userID), userID, locale)
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

// GetLatestInsight returns the caller's most recent stored insight
func (h *InsightsHandler) GetLatestInsight(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_latest_insight")
	var err error
	defer observability.FinishSpan(span, &err)

	insight, err := h.store.GetLatestInsight(ctx, currentUserID(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if insight == nil {
		StandardizeHTTPError(c, http.StatusNotFound, "No insight available", "Run a performance analysis first")
		return
	}

	c.JSON(http.StatusOK, insight)
}
