package handlers

import (
	"net/http"
	"strconv"

	"aprenda/internal/config"
	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/gin-gonic/gin"
)

// InteractionHandler serves the LLM interaction audit log
type InteractionHandler struct {
	interactions services.LLMInteractionService
	logger       *observability.Logger
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(interactions services.LLMInteractionService, logger *observability.Logger) *InteractionHandler {
	return &InteractionHandler{
		interactions: interactions,
		logger:       logger,
	}
}

// ListInteractions returns the caller's most recent LLM interactions
func (h *InteractionHandler) ListInteractions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_llm_interactions")
	var err error
	defer observability.FinishSpan(span, &err)

	limit := config.DefaultInteractionLimit
	if raw := c.Query("limit"); raw != "" {
		var convErr error
		limit, convErr = strconv.Atoi(raw)
		if convErr != nil || limit <= 0 || limit > config.MaxInteractionLimit {
			HandleValidationError(c, "limit", raw, "must be an integer between 1 and 100")
			return
		}
	}

	interactions, err := h.interactions.GetRecentInteractions(ctx, currentUserID(c), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}
