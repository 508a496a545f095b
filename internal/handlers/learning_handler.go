package handlers

import (
	"net/http"
	"strconv"

	"aprenda/internal/config"
	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/gin-gonic/gin"
)

// LearningHandler serves adaptive question selection, answer submission, and
// review recommendations
type LearningHandler struct {
	adaptive services.AdaptiveService
	logger   *observability.Logger
}

// NewLearningHandler creates a new learning handler
func NewLearningHandler(adaptive services.AdaptiveService, logger *observability.Logger) *LearningHandler {
	return &LearningHandler{
		adaptive: adaptive,
		logger:   logger,
	}
}

// GetNextQuestions returns questions for a topic at the caller's difficulty
func (h *LearningHandler) GetNextQuestions(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_next_questions")
	var err error
	defer observability.FinishSpan(span, &err)

	topicID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "topic id", c.Param("id"), "must be an integer")
		return
	}

	limit := config.DefaultQuestionCount
	if raw := c.Query("limit"); raw != "" {
		limit, convErr = strconv.Atoi(raw)
		if convErr != nil || limit <= 0 {
			HandleValidationError(c, "limit", raw, "must be a positive integer")
			return
		}
	}

	questions, err := h.adaptive.GetNextQuestions(ctx, currentUserID(c), topicID, limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// SubmitAnswerRequest is the payload for answer submission
type SubmitAnswerRequest struct {
	QuestionID       int     `json:"question_id" binding:"required"`
	AnswerID         int     `json:"answer_id" binding:"required"`
	TimeTakenSeconds float64 `json:"time_taken_seconds"`
}

// SubmitAnswer grades an answer and returns the updated progress
func (h *LearningHandler) SubmitAnswer(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_answer")
	var err error
	defer observability.FinishSpan(span, &err)

	var req SubmitAnswerRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	result, err := h.adaptive.SubmitAnswer(ctx, currentUserID(c), req.QuestionID, req.AnswerID, req.TimeTakenSeconds)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRecommendations returns review suggestions for the caller's weakest
// topics, or for one topic when topic_id is given
func (h *LearningHandler) GetRecommendations(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_recommendations")
	var err error
	defer observability.FinishSpan(span, &err)

	topicID, ok := optionalTopicID(c)
	if !ok {
		return
	}

	recommendations, err := h.adaptive.GetRecommendations(ctx, currentUserID(c), topicID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": recommendations})
}

// GetPerformanceAnalysis returns aggregate progress for a period, optionally
// scoped to one topic
func (h *LearningHandler) GetPerformanceAnalysis(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_performance_analysis")
	var err error
	defer observability.FinishSpan(span, &err)

	topicID, ok := optionalTopicID(c)
	if !ok {
		return
	}
	period := c.DefaultQuery("period", services.PeriodAll)

	analysis, err := h.adaptive.GetPerformanceAnalysis(ctx, currentUserID(c), topicID, period)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// optionalTopicID parses the topic_id query parameter. A false return means
// the value was malformed and a validation error has been written.
func optionalTopicID(c *gin.Context) (*int, bool) {
	raw := c.Query("topic_id")
	if raw == "" {
		return nil, true
	}
	topicID, convErr := strconv.Atoi(raw)
	if convErr != nil || topicID <= 0 {
		HandleValidationError(c, "topic_id", raw, "must be a positive integer")
		return nil, false
	}
	return &topicID, true
}
