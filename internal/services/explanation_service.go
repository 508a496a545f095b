package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"aprenda/internal/config"
	"aprenda/internal/llm"
	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// FallbackExplanation is returned when the LLM is unavailable and the
// question carries no stored explanation
const FallbackExplanation = "An explanation is not available right now. Review the correct answer and try again later."

// ExplanationResponse is the result of an explanation request
type ExplanationResponse struct {
	Explanation string `json:"explanation"`
	Source      string `json:"source"` // cache, generated, or fallback
	ModelUsed   string `json:"model_used,omitempty"`
}

// ExplanationService produces question explanations, serving from the
// permanent cache when possible and generating through the LLM otherwise
type ExplanationService interface {
	// GetExplanation returns an explanation for a question, personalized to the
	// user's progress when requested. refresh skips the cache read and
	// regenerates; the fresh result is still written back to the cache.
	GetExplanation(ctx context.Context, userID, questionID int, personalized, refresh bool, locale contextutils.Locale) (*ExplanationResponse, error)
}

// ExplanationServiceImpl implements ExplanationService
type ExplanationServiceImpl struct {
	cfg          *config.Config
	logger       *observability.Logger
	client       llm.Client
	cache        ExplanationCacheRepository
	questions    QuestionService
	progress     ProgressService
	interactions LLMInteractionService
}

// NewExplanationService creates a new explanation service
func NewExplanationService(
	cfg *config.Config,
	logger *observability.Logger,
	client llm.Client,
	cache ExplanationCacheRepository,
	questions QuestionService,
	progress ProgressService,
	interactions LLMInteractionService,
) ExplanationService {
	return &ExplanationServiceImpl{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		cache:        cache,
		questions:    questions,
		progress:     progress,
		interactions: interactions,
	}
}

// GetExplanation returns an explanation for a question
func (s *ExplanationServiceImpl) GetExplanation(ctx context.Context, userID, questionID int, personalized, refresh bool, locale contextutils.Locale) (result *ExplanationResponse, err error) {
	ctx, span := observability.TraceExplanationFunction(ctx, "get_explanation",
		observability.AttributeUserID(userID),
		observability.AttributeQuestionID(questionID),
		attribute.Bool("explanation.personalized", personalized),
		attribute.Bool("explanation.refresh", refresh),
	)
	defer observability.FinishSpan(span, &err)

	question, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if s.cfg.LLM.CacheEnabled && !refresh {
		cached, cacheErr := s.cache.GetCachedExplanation(ctx, questionID, question.Difficulty, personalized)
		if cacheErr != nil {
			return nil, cacheErr
		}
		if cached != nil {
			span.SetAttributes(attribute.String("explanation.source", "cache"))
			response := &ExplanationResponse{
				Explanation: cached.Explanation,
				Source:      "cache",
			}
			if cached.ModelUsed.Valid {
				response.ModelUsed = cached.ModelUsed.String
			}
			return response, nil
		}
	}

	prompt, err := s.buildPrompt(ctx, userID, question, personalized)
	if err != nil {
		return nil, err
	}

	llmResult, err := s.client.Generate(ctx, prompt, llm.WithLocale(locale))
	if err != nil || !llmResult.Success {
		errorMessage := ""
		if err != nil {
			errorMessage = err.Error()
		} else {
			errorMessage = llmResult.Error
		}
		s.recordInteraction(ctx, userID, prompt, "", 0, models.InteractionStatusFailed, errorMessage)

		span.SetAttributes(attribute.String("explanation.source", "fallback"))
		s.logger.Warn(ctx, "Explanation generation failed, using fallback", map[string]interface{}{
			"question_id": questionID,
			"error":       errorMessage,
		})

		fallback := FallbackExplanation
		if question.Explanation.Valid && question.Explanation.String != "" {
			fallback = question.Explanation.String
		}
		err = nil
		return &ExplanationResponse{Explanation: fallback, Source: "fallback"}, nil
	}

	explanation := strings.TrimSpace(llmResult.Content)
	tokens := llmResult.Usage.TotalTokens

	if s.cfg.LLM.CacheEnabled {
		entry := &models.ExplanationCacheEntry{
			QuestionID:      questionID,
			DifficultyLevel: question.Difficulty,
			IsPersonalized:  personalized,
			Explanation:     explanation,
			ModelUsed:       sql.NullString{String: s.client.ModelName(), Valid: true},
			TokensUsed:      sql.NullInt64{Int64: int64(tokens), Valid: true},
		}
		if cacheErr := s.cache.SaveExplanation(ctx, entry); cacheErr != nil {
			// A lost cache write costs one extra generation later, not the response
			s.logger.Warn(ctx, "Failed to cache explanation", map[string]interface{}{
				"question_id": questionID,
				"error":       cacheErr.Error(),
			})
		}
	}

	s.recordInteraction(ctx, userID, prompt, explanation, tokens, models.InteractionStatusSuccess, "")

	span.SetAttributes(
		attribute.String("explanation.source", "generated"),
		attribute.Int("explanation.tokens_used", tokens),
	)
	return &ExplanationResponse{
		Explanation: explanation,
		Source:      "generated",
		ModelUsed:   s.client.ModelName(),
	}, nil
}

func (s *ExplanationServiceImpl) buildPrompt(ctx context.Context, userID int, question *models.Question, personalized bool) (string, error) {
	var b strings.Builder
	b.WriteString("Explain the following ")
	b.WriteString(string(question.Difficulty))
	b.WriteString(" ")
	b.WriteString(strings.ReplaceAll(string(question.Type), "_", " "))
	b.WriteString(" question to a learner.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question.Content)
	b.WriteString("\n")

	for _, answer := range question.Answers {
		if answer.IsCorrect {
			b.WriteString("Correct answer: ")
			b.WriteString(answer.Content)
			b.WriteString("\n")
			break
		}
	}

	if question.Explanation.Valid && strings.TrimSpace(question.Explanation.String) != "" {
		b.WriteString("Existing short explanation to expand on: ")
		b.WriteString(question.Explanation.String)
		b.WriteString("\n")
	}

	if personalized {
		progress, err := s.progress.GetProgress(ctx, userID, question.TopicID)
		if err != nil {
			return "", err
		}
		if progress != nil {
			b.WriteString(fmt.Sprintf("\nThe learner's proficiency in this topic is %.0f%% (%s level).\n",
				progress.Proficiency*100, progress.MasteryLevel))
			if len(progress.FocusAreas) > 0 {
				b.WriteString("They are focusing on: ")
				b.WriteString(strings.Join(progress.FocusAreas, ", "))
				b.WriteString(".\n")
			}
			b.WriteString("Adjust the depth and vocabulary of the explanation to that level.\n")
		}
	}

	b.WriteString("\nExplain why the correct answer is right and, where relevant, why the common alternatives are wrong.")
	return b.String(), nil
}

func (s *ExplanationServiceImpl) recordInteraction(ctx context.Context, userID int, prompt, response string, tokens int, status models.InteractionStatus, errorMessage string) {
	interaction := &models.LLMInteraction{
		UserID:          sql.NullInt64{Int64: int64(userID), Valid: true},
		InteractionType: InteractionTypeExplanation,
		Prompt:          prompt,
		Status:          status,
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
	interaction.ModelUsed = sql.NullString{String: s.client.ModelName(), Valid: true}

	if err := s.interactions.RecordInteraction(ctx, interaction); err != nil {
		s.logger.Warn(ctx, "Failed to record LLM interaction", map[string]interface{}{
			"interaction_type": interaction.InteractionType,
			"error":            err.Error(),
		})
	}
}
