package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aprenda/internal/config"
	"aprenda/internal/llm"
	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// PlanSubject names an additional subject the plan should cover, with the
// learner's self-reported level in it
type PlanSubject struct {
	Name  string `json:"name" validate:"required"`
	Level string `json:"level" validate:"max=50"`
}

// GenerateStudyPlanRequest describes what the study plan should cover. The
// plan is persisted against SubjectID; Subjects lists further subjects for
// the prompt only.
type GenerateStudyPlanRequest struct {
	UserID        int           `json:"user_id" validate:"required,gt=0"`
	SubjectID     int           `json:"subject_id" validate:"required,gt=0"`
	Subjects      []PlanSubject `json:"subjects" validate:"dive"`
	StartDate     time.Time     `json:"start_date" validate:"required"`
	DurationWeeks int           `json:"duration_weeks" validate:"required,gte=1,lte=12"`
	Goals         string        `json:"goals" validate:"max=2000"`
	Preferences   string        `json:"preferences" validate:"max=2000"`
}

// dayOffsets maps schedule day names to offsets from the start of the week.
// An unknown or missing day falls back to Monday.
var dayOffsets = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// weeklySchedulePayload mirrors the JSON contract with the LLM
type weeklySchedulePayload struct {
	WeeklySchedule []scheduleWeek `json:"weekly_schedule"`
	Goals          string         `json:"goals"`
}

type scheduleWeek struct {
	Week int           `json:"week"`
	Days []scheduleDay `json:"days"`
}

type scheduleDay struct {
	Day             string   `json:"day"`
	Topic           string   `json:"topic"`
	DurationMinutes int      `json:"duration_minutes"`
	Resources       []string `json:"resources"`
	Activities      []string `json:"activities"`
}

// scheduleSchema constrains the weekly schedule JSON the LLM returns
const scheduleSchema = `{
	"type": "object",
	"required": ["weekly_schedule"],
	"properties": {
		"weekly_schedule": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["week", "days"],
				"properties": {
					"week": {"type": "integer", "minimum": 1},
					"days": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["topic"],
							"properties": {
								"day": {"type": "string"},
								"topic": {"type": "string"},
								"duration_minutes": {"type": "integer", "minimum": 0},
								"resources": {"type": "array", "items": {"type": "string"}},
								"activities": {"type": "array", "items": {"type": "string"}}
							}
						}
					}
				}
			}
		},
		"goals": {"type": "string"}
	}
}`

// DefaultSessionMinutes is used when the schedule omits a session duration
const DefaultSessionMinutes = 30

// StudyPlanService generates and manages study plans
type StudyPlanService interface {
	// GenerateStudyPlan builds a multi-week plan through the LLM and persists
	// it atomically with all of its sessions
	GenerateStudyPlan(ctx context.Context, req *GenerateStudyPlanRequest, locale contextutils.Locale) (*models.StudyPlan, error)

	// GetStudyPlan retrieves a plan with its sessions
	GetStudyPlan(ctx context.Context, planID int) (*models.StudyPlan, error)

	// GetStudyPlans lists a user's plans newest first
	GetStudyPlans(ctx context.Context, userID int) ([]*models.StudyPlan, error)

	// ArchiveStudyPlan marks a plan archived
	ArchiveStudyPlan(ctx context.Context, planID int) error

	// CompleteSession marks a session completed and completes the plan when it
	// was the last pending session
	CompleteSession(ctx context.Context, sessionID int) error

	// RescheduleSession moves a session to a new date
	RescheduleSession(ctx context.Context, sessionID int, newDate time.Time) error
}

// StudyPlanServiceImpl implements StudyPlanService
type StudyPlanServiceImpl struct {
	cfg          *config.Config
	logger       *observability.Logger
	client       llm.Client
	plans        StudyPlanRepository
	topics       TopicService
	progress     ProgressService
	interactions LLMInteractionService
	validate     *validator.Validate
}

// NewStudyPlanService creates a new study plan service
func NewStudyPlanService(
	cfg *config.Config,
	logger *observability.Logger,
	client llm.Client,
	plans StudyPlanRepository,
	topics TopicService,
	progress ProgressService,
	interactions LLMInteractionService,
) StudyPlanService {
	return &StudyPlanServiceImpl{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		plans:        plans,
		topics:       topics,
		progress:     progress,
		interactions: interactions,
		validate:     validator.New(),
	}
}

// GenerateStudyPlan builds a multi-week plan through the LLM and persists it atomically
func (s *StudyPlanServiceImpl) GenerateStudyPlan(ctx context.Context, req *GenerateStudyPlanRequest, locale contextutils.Locale) (result *models.StudyPlan, err error) {
	ctx, span := observability.TracePlanFunction(ctx, "generate_study_plan",
		observability.AttributeUserID(req.UserID),
		observability.AttributeSubjectID(req.SubjectID),
		attribute.Int("plan.duration_weeks", req.DurationWeeks),
	)
	defer observability.FinishSpan(span, &err)

	if err = s.validate.Struct(req); err != nil {
		err = contextutils.NewAppErrorWithCause(contextutils.ErrorCodeValidationFailed, contextutils.SeverityWarn, "invalid study plan request", err.Error(), err)
		return nil, err
	}

	subject, err := s.topics.GetSubject(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	prompt, err := s.buildPlanPrompt(ctx, req, subject)
	if err != nil {
		return nil, err
	}

	llmResult, err := s.client.Generate(ctx, prompt, llm.WithLocale(locale))
	if err != nil {
		s.recordInteraction(ctx, req.UserID, prompt, "", 0, models.InteractionStatusFailed, err.Error())
		return nil, err
	}
	if !llmResult.Success {
		s.recordInteraction(ctx, req.UserID, prompt, "", 0, models.InteractionStatusFailed, llmResult.Error)
		err = contextutils.NewAppError(contextutils.ErrorCodeLLMRequestFailed, contextutils.SeverityError, "study plan generation failed", llmResult.Error)
		return nil, err
	}

	tokens := llmResult.Usage.TotalTokens
	interactionID := s.recordInteraction(ctx, req.UserID, prompt, llmResult.Content, tokens, models.InteractionStatusSuccess, "")

	payload, err := parseSchedulePayload(llmResult.Content)
	if err != nil {
		s.markInteractionFailed(ctx, interactionID, err)
		return nil, err
	}

	plan, err := s.buildPlan(ctx, req, payload)
	if err != nil {
		s.markInteractionFailed(ctx, interactionID, err)
		return nil, err
	}

	if err = s.plans.CreatePlanWithSessions(ctx, plan); err != nil {
		s.markInteractionFailed(ctx, interactionID, err)
		return nil, err
	}

	span.SetAttributes(
		observability.AttributePlanID(plan.ID),
		attribute.Int("plan.session_count", len(plan.Sessions)),
	)
	return plan, nil
}

// buildPlan converts a parsed schedule into a plan with dated sessions.
// Session dates are the plan start plus whole weeks plus the day offset.
func (s *StudyPlanServiceImpl) buildPlan(ctx context.Context, req *GenerateStudyPlanRequest, payload *weeklySchedulePayload) (*models.StudyPlan, error) {
	startDate := req.StartDate.Truncate(24 * time.Hour)
	plan := &models.StudyPlan{
		UserID:    req.UserID,
		SubjectID: req.SubjectID,
		StartDate: startDate,
		EndDate:   startDate.AddDate(0, 0, req.DurationWeeks*7-1),
		Status:    models.PlanStatusActive,
	}

	goals := req.Goals
	if goals == "" {
		goals = payload.Goals
	}
	if goals != "" {
		plan.Goals = sql.NullString{String: goals, Valid: true}
	}

	for _, week := range payload.WeeklySchedule {
		if week.Week < 1 || week.Week > req.DurationWeeks {
			continue
		}
		for _, day := range week.Days {
			offset, ok := dayOffsets[strings.ToLower(strings.TrimSpace(day.Day))]
			if !ok {
				offset = dayOffsets["monday"]
			}
			scheduledDate := startDate.AddDate(0, 0, (week.Week-1)*7+offset)

			session := models.StudySession{
				ScheduledDate:   scheduledDate,
				DurationMinutes: day.DurationMinutes,
				Resources:       day.Resources,
				Activities:      day.Activities,
				Status:          models.SessionStatusPending,
			}
			if session.DurationMinutes <= 0 {
				session.DurationMinutes = DefaultSessionMinutes
			}

			if strings.TrimSpace(day.Topic) != "" {
				topic, err := s.topics.ResolveTopic(ctx, req.SubjectID, day.Topic)
				if err != nil {
					return nil, err
				}
				session.TopicID = sql.NullInt64{Int64: int64(topic.ID), Valid: true}
			}

			plan.Sessions = append(plan.Sessions, session)
		}
	}

	return plan, nil
}

func (s *StudyPlanServiceImpl) buildPlanPrompt(ctx context.Context, req *GenerateStudyPlanRequest, subject *models.Subject) (string, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Create a %d-week study plan for the subject %q.\n", req.DurationWeeks, subject.Name))
	if len(req.Subjects) > 0 {
		b.WriteString("Also cover these subjects:\n")
		for _, planSubject := range req.Subjects {
			if planSubject.Level != "" {
				b.WriteString(fmt.Sprintf("- %s (%s)\n", planSubject.Name, planSubject.Level))
			} else {
				b.WriteString(fmt.Sprintf("- %s\n", planSubject.Name))
			}
		}
	}
	if req.Goals != "" {
		b.WriteString("The learner's goals: ")
		b.WriteString(req.Goals)
		b.WriteString("\n")
	}
	if req.Preferences != "" {
		b.WriteString("The learner's preferences: ")
		b.WriteString(req.Preferences)
		b.WriteString("\n")
	}

	progressRows, err := s.progress.GetAllProgress(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	if len(progressRows) > 0 {
		b.WriteString("\nCurrent proficiency per topic:\n")
		for _, progress := range progressRows {
			topic, topicErr := s.topics.GetTopic(ctx, progress.TopicID)
			if topicErr != nil {
				return "", topicErr
			}
			b.WriteString(fmt.Sprintf("- %s: %.0f%% (%s)\n", topic.Name, progress.Proficiency*100, progress.MasteryLevel))
		}
		b.WriteString("Schedule more time for the weakest topics.\n")
	}

	b.WriteString("\nRespond with a single JSON object of the form ")
	b.WriteString(`{"weekly_schedule": [{"week": 1, "days": [{"day": "Monday", "topic": "...", "duration_minutes": 30, "resources": ["..."], "activities": ["..."]}]}], "goals": "..."}`)
	b.WriteString(". Days are Monday through Sunday. Respond with JSON only.")
	return b.String(), nil
}

// parseSchedulePayload extracts and validates the weekly schedule JSON
func parseSchedulePayload(content string) (*weeklySchedulePayload, error) {
	block := extractJSONBlock(content)
	if block == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "no JSON object in schedule response", "")
	}

	schemaResult, err := gojsonschemaValidate(scheduleSchema, block)
	if err != nil {
		return nil, err
	}
	if !schemaResult.Valid() {
		details := make([]string, 0, len(schemaResult.Errors()))
		for _, validationErr := range schemaResult.Errors() {
			details = append(details, validationErr.String())
		}
		return nil, contextutils.NewAppError(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "schedule response failed schema validation", strings.Join(details, "; "))
	}

	payload := &weeklySchedulePayload{}
	if err := json.Unmarshal([]byte(block), payload); err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "failed to decode schedule response", "", err)
	}
	if len(payload.WeeklySchedule) == 0 {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "schedule response contains no weeks", "")
	}

	return payload, nil
}

// GetStudyPlan retrieves a plan with its sessions
func (s *StudyPlanServiceImpl) GetStudyPlan(ctx context.Context, planID int) (*models.StudyPlan, error) {
	return s.plans.GetPlan(ctx, planID)
}

// GetStudyPlans lists a user's plans newest first
func (s *StudyPlanServiceImpl) GetStudyPlans(ctx context.Context, userID int) ([]*models.StudyPlan, error) {
	return s.plans.GetPlansByUser(ctx, userID)
}

// ArchiveStudyPlan marks a plan archived
func (s *StudyPlanServiceImpl) ArchiveStudyPlan(ctx context.Context, planID int) error {
	return s.plans.UpdatePlanStatus(ctx, planID, models.PlanStatusArchived)
}

// CompleteSession marks a session completed and completes the plan when it was
// the last pending session
func (s *StudyPlanServiceImpl) CompleteSession(ctx context.Context, sessionID int) (err error) {
	ctx, span := observability.TracePlanFunction(ctx, "complete_session",
		observability.AttributeSessionID(sessionID),
	)
	defer observability.FinishSpan(span, &err)

	session, err := s.plans.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err = s.plans.UpdateSessionStatus(ctx, sessionID, models.SessionStatusCompleted); err != nil {
		return err
	}

	plan, err := s.plans.GetPlan(ctx, session.PlanID)
	if err != nil {
		return err
	}
	for _, planSession := range plan.Sessions {
		if planSession.Status == models.SessionStatusPending {
			return nil
		}
	}

	span.SetAttributes(attribute.Bool("plan.completed", true))
	return s.plans.UpdatePlanStatus(ctx, plan.ID, models.PlanStatusCompleted)
}

// RescheduleSession moves a session to a new date
func (s *StudyPlanServiceImpl) RescheduleSession(ctx context.Context, sessionID int, newDate time.Time) error {
	return s.plans.RescheduleSession(ctx, sessionID, newDate)
}

// recordInteraction appends an audit row and returns its id, or 0 when the
// write failed. Audit failures never fail the caller.
func (s *StudyPlanServiceImpl) recordInteraction(ctx context.Context, userID int, prompt, response string, tokens int, status models.InteractionStatus, errorMessage string) int {
	interaction := &models.LLMInteraction{
		UserID:          sql.NullInt64{Int64: int64(userID), Valid: true},
		InteractionType: InteractionTypeStudyPlan,
		Prompt:          prompt,
		Status:          status,
		ModelUsed:       sql.NullString{String: s.client.ModelName(), Valid: true},
	}
	if response != "" {
		interaction.Response = sql.NullString{String: response, Valid: true}
	}
	if tokens > 0 {
		interaction.TokensUsed = sql.NullInt64{Int64: int64(tokens), Valid: true}
	}
	if errorMessage != "" {
		interaction.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	}

	if err := s.interactions.RecordInteraction(ctx, interaction); err != nil {
		s.logger.Warn(ctx, "Failed to record LLM interaction", map[string]interface{}{
			"interaction_type": interaction.InteractionType,
			"error":            err.Error(),
		})
		return 0
	}
	return interaction.ID
}

func (s *StudyPlanServiceImpl) markInteractionFailed(ctx context.Context, interactionID int, cause error) {
	if interactionID == 0 {
		return
	}
	if err := s.interactions.MarkFailed(ctx, interactionID, cause.Error()); err != nil {
		s.logger.Warn(ctx, "Failed to mark LLM interaction failed", map[string]interface{}{
			"interaction_id": interactionID,
			"error":          err.Error(),
		})
	}
}
