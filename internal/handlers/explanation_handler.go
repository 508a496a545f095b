package handlers

import (
	"net/http"
	"strconv"

	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/gin-gonic/gin"
)

// ExplanationHandler serves question explanations
type ExplanationHandler struct {
	explanations services.ExplanationService
	logger       *observability.Logger
}

// NewExplanationHandler creates a new explanation handler
func NewExplanationHandler(explanations services.ExplanationService, logger *observability.Logger) *ExplanationHandler {
	return &ExplanationHandler{
		explanations: explanations,
		logger:       logger,
	}
}

// GetExplanation returns the explanation for a question, personalized when
// the personalized query flag is set
func (h *ExplanationHandler) GetExplanation(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_explanation")
	var err error
	defer observability.FinishSpan(span, &err)

	questionID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "question id", c.Param("id"), "must be an integer")
		return
	}

	personalized := false
	if raw := c.Query("personalized"); raw != "" {
		personalized, convErr = strconv.ParseBool(raw)
		if convErr != nil {
			HandleValidationError(c, "personalized", raw, "must be a boolean")
			return
		}
	}

	refresh := false
	if raw := c.Query("refresh"); raw != "" {
		refresh, convErr = strconv.ParseBool(raw)
		if convErr != nil {
			HandleValidationError(c, "refresh", raw, "must be a boolean")
			return
		}
	}

	response, err := h.explanations.GetExplanation(ctx, currentUserID(c), questionID, personalized, refresh, requestLocale(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
