package handlers

import (
	"net/http"
	"strconv"

	"aprenda/internal/observability"
	"aprenda/internal/services"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the subject and topic catalog
type CatalogHandler struct {
	topics services.TopicService
	logger *observability.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(topics services.TopicService, logger *observability.Logger) *CatalogHandler {
	return &CatalogHandler{
		topics: topics,
		logger: logger,
	}
}

// GetSubject returns one subject
func (h *CatalogHandler) GetSubject(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_subject")
	var err error
	defer observability.FinishSpan(span, &err)

	subjectID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "subject id", c.Param("id"), "must be an integer")
		return
	}

	subject, err := h.topics.GetSubject(ctx, subjectID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, subject)
}

// ListTopics returns the topics under a subject
func (h *CatalogHandler) ListTopics(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_topics")
	var err error
	defer observability.FinishSpan(span, &err)

	subjectID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "subject id", c.Param("id"), "must be an integer")
		return
	}

	topics, err := h.topics.GetTopicsBySubject(ctx, subjectID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

// GetTopic returns one topic
func (h *CatalogHandler) GetTopic(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_topic")
	var err error
	defer observability.FinishSpan(span, &err)

	topicID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "topic id", c.Param("id"), "must be an integer")
		return
	}

	topic, err := h.topics.GetTopic(ctx, topicID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, topic)
}
