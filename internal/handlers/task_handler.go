package handlers

import (
	"net/http"

	"aprenda/internal/observability"
	"aprenda/internal/tasks"

	"github.com/gin-gonic/gin"
)

// TaskHandler exposes the status of background tasks
type TaskHandler struct {
	dispatcher *tasks.Dispatcher
	logger     *observability.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(dispatcher *tasks.Dispatcher, logger *observability.Logger) *TaskHandler {
	return &TaskHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GetTaskStatus returns the status of a background task
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_task_status",
		observability.AttributeTaskID(c.Param("id")),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	status, ok := h.dispatcher.Status(c.Param("id"))
	if !ok {
		StandardizeHTTPError(c, http.StatusNotFound, "Task not found", c.Param("id"))
		return
	}

	c.JSON(http.StatusOK, status)
}
