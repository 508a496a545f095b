package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"aprenda/internal/observability"
	"aprenda/internal/services"
	"aprenda/internal/tasks"

	"github.com/gin-gonic/gin"
)

// StudyPlanHandler serves study plan generation and management
type StudyPlanHandler struct {
	plans      services.StudyPlanService
	dispatcher *tasks.Dispatcher
	logger     *observability.Logger
}

// NewStudyPlanHandler creates a new study plan handler
func NewStudyPlanHandler(plans services.StudyPlanService, dispatcher *tasks.Dispatcher, logger *observability.Logger) *StudyPlanHandler {
	return &StudyPlanHandler{
		plans:      plans,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GeneratePlanRequest is the payload for study plan generation
type GeneratePlanRequest struct {
	SubjectID     int                    `json:"subject_id" binding:"required"`
	Subjects      []services.PlanSubject `json:"subjects"`
	StartDate     string                 `json:"start_date" binding:"required"`
	DurationWeeks int                    `json:"duration_weeks" binding:"required"`
	Goals         string                 `json:"goals"`
	Preferences   string                 `json:"preferences"`
	Async         bool                   `json:"async"`
}

// GeneratePlan builds a study plan, inline or through the task dispatcher
func (h *StudyPlanHandler) GeneratePlan(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_plan")
	var err error
	defer observability.FinishSpan(span, &err)

	var req GeneratePlanRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	startDate, parseErr := time.Parse("2006-01-02", req.StartDate)
	if parseErr != nil {
		HandleValidationError(c, "start_date", req.StartDate, "must be formatted YYYY-MM-DD")
		return
	}

	serviceReq := &services.GenerateStudyPlanRequest{
		UserID:        currentUserID(c),
		SubjectID:     req.SubjectID,
		Subjects:      req.Subjects,
		StartDate:     startDate,
		DurationWeeks: req.DurationWeeks,
		Goals:         req.Goals,
		Preferences:   req.Preferences,
	}
	locale := requestLocale(c)

	if req.Async {
		taskID, submitErr := h.dispatcher.Submit(ctx, "study_plan_generation", func(taskCtx context.Context) (interface{}, error) {
			return h.plans.GenerateStudyPlan(taskCtx, serviceReq, locale)
		})
		if submitErr != nil {
			err = submitErr
			HandleAppError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
		return
	}

	plan, err := h.plans.GenerateStudyPlan(ctx, serviceReq, locale)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// GetPlan returns a plan with its sessions
func (h *StudyPlanHandler) GetPlan(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_plan")
	var err error
	defer observability.FinishSpan(span, &err)

	planID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "plan id", c.Param("id"), "must be an integer")
		return
	}

	plan, err := h.plans.GetStudyPlan(ctx, planID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// ListPlans returns the caller's plans newest first
func (h *StudyPlanHandler) ListPlans(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_plans")
	var err error
	defer observability.FinishSpan(span, &err)

	plans, err := h.plans.GetStudyPlans(ctx, currentUserID(c))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"study_plans": plans})
}

// ArchivePlan marks a plan archived
func (h *StudyPlanHandler) ArchivePlan(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "archive_plan")
	var err error
	defer observability.FinishSpan(span, &err)

	planID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "plan id", c.Param("id"), "must be an integer")
		return
	}

	if err = h.plans.ArchiveStudyPlan(ctx, planID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CompleteSession marks a session completed
func (h *StudyPlanHandler) CompleteSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "complete_session")
	var err error
	defer observability.FinishSpan(span, &err)

	sessionID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "session id", c.Param("id"), "must be an integer")
		return
	}

	if err = h.plans.CompleteSession(ctx, sessionID); err != nil {
		HandleAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RescheduleSessionRequest is the payload for session rescheduling
type RescheduleSessionRequest struct {
	NewDate string `json:"new_date" binding:"required"`
}

// RescheduleSession moves a session to a new date
func (h *StudyPlanHandler) RescheduleSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "reschedule_session")
	var err error
	defer observability.FinishSpan(span, &err)

	sessionID, convErr := strconv.Atoi(c.Param("id"))
	if convErr != nil {
		HandleValidationError(c, "session id", c.Param("id"), "must be an integer")
		return
	}

	var req RescheduleSessionRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	newDate, parseErr := time.Parse("2006-01-02", req.NewDate)
	if parseErr != nil {
		HandleValidationError(c, "new_date", req.NewDate, "must be formatted YYYY-MM-DD")
		return
	}

	if err = h.plans.RescheduleSession(ctx, sessionID, newDate); err != nil {
		HandleAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
