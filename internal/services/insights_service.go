package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"aprenda/internal/config"
	"aprenda/internal/llm"
	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// insightSchema constrains the JSON the LLM returns for a performance
// analysis. Keys are all optional; absent ones are defaulted after parsing.
const insightSchema = `{
	"type": "object",
	"properties": {
		"strengths": {"type": "array", "items": {"type": "string"}},
		"weaknesses": {"type": "array", "items": {"type": "string"}},
		"patterns": {"type": "array", "items": {"type": "string"}},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"next_topics": {"type": "array", "items": {"type": "string"}},
		"progress_summary": {"type": "string"}
	}
}`

// DefaultProgressSummary is used when the LLM omits a summary
const DefaultProgressSummary = "Keep practicing to build a clearer picture of your progress."

// insightPayload mirrors the JSON contract with the LLM
type insightPayload struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
	NextTopics      []string `json:"next_topics"`
	ProgressSummary string   `json:"progress_summary"`
}

// InsightsService analyzes a user's answer history through the LLM
type InsightsService interface {
	// AnalyzePerformance produces a learning insight from the user's answer
	// history. With no history the analysis is skipped and a default insight
	// returned without calling the LLM.
	AnalyzePerformance(ctx context.Context, userID int, locale contextutils.Locale) (*models.LearningInsight, error)
}

// InsightsServiceImpl implements InsightsService
type InsightsServiceImpl struct {
	cfg          *config.Config
	logger       *observability.Logger
	client       llm.Client
	events       AnswerEventService
	insights     InsightService
	interactions LLMInteractionService
}

// NewInsightsService creates a new insights service
func NewInsightsService(
	cfg *config.Config,
	logger *observability.Logger,
	client llm.Client,
	events AnswerEventService,
	insights InsightService,
	interactions LLMInteractionService,
) InsightsService {
	return &InsightsServiceImpl{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		events:       events,
		insights:     insights,
		interactions: interactions,
	}
}

// AnalyzePerformance produces a learning insight from the user's answer history
func (s *InsightsServiceImpl) AnalyzePerformance(ctx context.Context, userID int, locale contextutils.Locale) (result *models.LearningInsight, err error) {
	ctx, span := observability.TraceInsightsFunction(ctx, "analyze_performance",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	count, err := s.events.CountAnswers(ctx, userID)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		span.SetAttributes(attribute.Bool("analysis.skipped", true))
		s.logger.Info(ctx, "performance_analysis_skipped", map[string]interface{}{
			"user_id": userID,
			"reason":  "no_answer_history",
		})
		s.recordInteraction(ctx, userID, "", "", 0, models.InteractionStatusSkipped, "", map[string]interface{}{
			"reason": "no_answer_history",
		})
		return &models.LearningInsight{
			UserID:          userID,
			Strengths:       []string{},
			Weaknesses:      []string{},
			Patterns:        []string{},
			Recommendations: []string{"Answer some questions so your performance can be analyzed."},
			NextTopics:      []string{},
			ProgressSummary: "No answer history yet.",
		}, nil
	}

	performance, err := s.events.GetTopicPerformance(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := buildAnalysisPrompt(performance)
	llmResult, err := s.client.Generate(ctx, prompt, llm.WithLocale(locale))
	if err != nil {
		s.recordInteraction(ctx, userID, prompt, "", 0, models.InteractionStatusFailed, err.Error(), nil)
		return nil, err
	}
	if !llmResult.Success {
		s.recordInteraction(ctx, userID, prompt, "", 0, models.InteractionStatusFailed, llmResult.Error, nil)
		err = contextutils.NewAppError(contextutils.ErrorCodeLLMRequestFailed, contextutils.SeverityError, "performance analysis failed", llmResult.Error)
		return nil, err
	}

	payload, err := parseInsightPayload(llmResult.Content)
	if err != nil {
		s.recordInteraction(ctx, userID, prompt, llmResult.Content, 0, models.InteractionStatusFailed, err.Error(), nil)
		return nil, err
	}

	tokens := llmResult.Usage.TotalTokens
	s.recordInteraction(ctx, userID, prompt, llmResult.Content, tokens, models.InteractionStatusSuccess, "", nil)

	insight := &models.LearningInsight{
		UserID:          userID,
		Strengths:       payload.Strengths,
		Weaknesses:      payload.Weaknesses,
		Patterns:        payload.Patterns,
		Recommendations: payload.Recommendations,
		NextTopics:      payload.NextTopics,
		ProgressSummary: payload.ProgressSummary,
		ModelUsed:       sql.NullString{String: s.client.ModelName(), Valid: true},
	}
	if err = s.insights.SaveInsight(ctx, insight); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("analysis.topic_count", len(performance)),
		attribute.Int("analysis.tokens_used", tokens),
	)
	return insight, nil
}

func buildAnalysisPrompt(performance []*models.TopicPerformance) string {
	var b strings.Builder
	b.WriteString("Analyze this learner's performance and respond with a single JSON object ")
	b.WriteString("containing the keys strengths, weaknesses, patterns, recommendations, ")
	b.WriteString("next_topics (arrays of strings) and progress_summary (string).\n\n")
	b.WriteString("Per-topic history:\n")
	for _, tp := range performance {
		b.WriteString(fmt.Sprintf("- %s: %d answered, %.0f%% correct, %.1fs average\n",
			tp.TopicName, tp.TotalAnswers, tp.AccuracyPercent(), tp.AvgTimeSeconds))
	}
	b.WriteString("\nRespond with JSON only.")
	return b.String()
}

// parseInsightPayload extracts the first JSON object from the LLM output,
// validates it against the insight schema, and fills in defaults for any
// missing keys
func parseInsightPayload(content string) (*insightPayload, error) {
	block := extractJSONBlock(content)
	if block == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "no JSON object in analysis response", "")
	}

	schemaResult, err := gojsonschemaValidate(insightSchema, block)
	if err != nil {
		return nil, err
	}
	if !schemaResult.Valid() {
		details := make([]string, 0, len(schemaResult.Errors()))
		for _, validationErr := range schemaResult.Errors() {
			details = append(details, validationErr.String())
		}
		return nil, contextutils.NewAppError(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "analysis response failed schema validation", strings.Join(details, "; "))
	}

	payload := &insightPayload{}
	if err := json.Unmarshal([]byte(block), payload); err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "failed to decode analysis response", "", err)
	}

	if payload.Strengths == nil {
		payload.Strengths = []string{}
	}
	if payload.Weaknesses == nil {
		payload.Weaknesses = []string{}
	}
	if payload.Patterns == nil {
		payload.Patterns = []string{}
	}
	if payload.Recommendations == nil {
		payload.Recommendations = []string{}
	}
	if payload.NextTopics == nil {
		payload.NextTopics = []string{}
	}
	if payload.ProgressSummary == "" {
		payload.ProgressSummary = DefaultProgressSummary
	}

	return payload, nil
}

// gojsonschemaValidate validates a JSON document against a schema, wrapping
// parse failures as invalid-response errors
func gojsonschemaValidate(schema, document string) (*gojsonschema.Result, error) {
	schemaResult, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(document),
	)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeLLMResponseInvalid, contextutils.SeverityError, "response is not valid JSON", "", err)
	}
	return schemaResult, nil
}

// extractJSONBlock returns the first balanced {...} block in the text,
// tolerating markdown fences and prose around it
func extractJSONBlock(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1]
				}
			}
		}
	}
	return ""
}

func (s *InsightsServiceImpl) recordInteraction(ctx context.Context, userID int, prompt, response string, tokens int, status models.InteractionStatus, errorMessage string, metadata map[string]interface{}) {
	interaction := &models.LLMInteraction{
		UserID:          sql.NullInt64{Int64: int64(userID), Valid: true},
		InteractionType: InteractionTypePerformanceAnalysis,
		Prompt:          prompt,
		Status:          status,
		Metadata:        metadata,
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
	if status != models.InteractionStatusSkipped {
		interaction.ModelUsed = sql.NullString{String: s.client.ModelName(), Valid: true}
	}

	if err := s.interactions.RecordInteraction(ctx, interaction); err != nil {
		s.logger.Warn(ctx, "Failed to record LLM interaction", map[string]interface{}{
			"interaction_type": interaction.InteractionType,
			"error":            err.Error(),
		})
	}
}
