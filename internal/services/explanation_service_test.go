package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprenda/internal/llm"
	"aprenda/internal/models"
	contextutils "aprenda/internal/utils"
)

func newExplanationFixture() (ExplanationService, *llm.MockClient, *fakeExplanationCacheRepository, *fakeQuestionService, *fakeProgressService, *fakeLLMInteractionService) {
	client := llm.NewMockClient()
	cache := newFakeExplanationCacheRepository()
	questions := newFakeQuestionService()
	progress := newFakeProgressService()
	interactions := &fakeLLMInteractionService{}
	service := NewExplanationService(newTestConfig(), newTestLogger(), client, cache, questions, progress, interactions)
	return service, client, cache, questions, progress, interactions
}

func addExplainableQuestion(questions *fakeQuestionService) {
	questions.addQuestion(&models.Question{
		ID: 1, TopicID: 1, Content: "What is 2+2?",
		Type: models.QuestionTypeMultipleChoice, Difficulty: models.DifficultyEasy,
		Answers: []models.Answer{
			{ID: 10, QuestionID: 1, Content: "4", IsCorrect: true},
			{ID: 11, QuestionID: 1, Content: "5", IsCorrect: false},
		},
	})
}

func TestGetExplanation_GeneratesAndCaches(t *testing.T) {
	service, client, cache, questions, _, interactions := newExplanationFixture()
	addExplainableQuestion(questions)
	client.QueueContent("Two plus two equals four because addition combines quantities.")

	response, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, "generated", response.Source)
	assert.Equal(t, "mock-model", response.ModelUsed)
	assert.Contains(t, response.Explanation, "four")
	assert.Equal(t, 1, cache.saves)

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, models.InteractionStatusSuccess, interactions.interactions[0].Status)
	assert.Equal(t, InteractionTypeExplanation, interactions.interactions[0].InteractionType)
}

func TestGetExplanation_SecondRequestServedFromCache(t *testing.T) {
	service, client, _, questions, _, _ := newExplanationFixture()
	addExplainableQuestion(questions)
	client.QueueContent("First explanation.")

	first, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)
	second, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, 1, client.Calls())
	assert.Equal(t, "generated", first.Source)
	assert.Equal(t, "cache", second.Source)
	assert.Equal(t, first.Explanation, second.Explanation)
}

func TestGetExplanation_RefreshBypassesCacheAndRewrites(t *testing.T) {
	service, client, cache, questions, _, _ := newExplanationFixture()
	addExplainableQuestion(questions)
	client.QueueContent("First explanation.")
	client.QueueContent("Second explanation.")

	_, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	refreshed, err := service.GetExplanation(context.Background(), 7, 1, false, true, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, "generated", refreshed.Source)
	assert.Equal(t, "Second explanation.", refreshed.Explanation)

	// The regenerated text replaces the cached entry
	cached, err := cache.GetCachedExplanation(context.Background(), 1, models.DifficultyEasy, false)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Second explanation.", cached.Explanation)
	assert.Equal(t, 2, cache.saves)
}

func TestGetExplanation_PersonalizedKeyIsSeparate(t *testing.T) {
	service, client, _, questions, progress, _ := newExplanationFixture()
	addExplainableQuestion(questions)
	progress.setProficiency(7, 1, 0.5)
	client.QueueContent("Generic explanation.")
	client.QueueContent("Personalized explanation.")

	_, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)
	personalized, err := service.GetExplanation(context.Background(), 7, 1, true, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, "Personalized explanation.", personalized.Explanation)
}

func TestGetExplanation_PersonalizedPromptIncludesProgress(t *testing.T) {
	service, client, _, questions, progress, _ := newExplanationFixture()
	addExplainableQuestion(questions)
	progress.setProficiency(7, 1, 0.5)
	progress.rows[progressKey(7, 1)].FocusAreas = []string{"mental arithmetic"}
	client.QueueContent("Explanation.")

	_, err := service.GetExplanation(context.Background(), 7, 1, true, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	require.Len(t, client.Prompts(), 1)
	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "50%")
	assert.Contains(t, prompt, "intermediate")
	assert.Contains(t, prompt, "mental arithmetic")
	assert.Contains(t, prompt, "What is 2+2?")
	assert.Contains(t, prompt, "Correct answer: 4")
}

func TestGetExplanation_PromptIncludesTypeAndStoredExplanation(t *testing.T) {
	service, client, _, questions, _, _ := newExplanationFixture()
	questions.addQuestion(&models.Question{
		ID: 1, TopicID: 1, Content: "What is 2+2?",
		Type: models.QuestionTypeMultipleChoice, Difficulty: models.DifficultyEasy,
		Explanation: sql.NullString{String: "Count up from two.", Valid: true},
		Answers:     []models.Answer{{ID: 10, QuestionID: 1, Content: "4", IsCorrect: true}},
	})
	client.QueueContent("A longer explanation.")

	_, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	require.Len(t, client.Prompts(), 1)
	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "easy multiple choice question")
	assert.Contains(t, prompt, "Existing short explanation to expand on: Count up from two.")
}

func TestGetExplanation_RecordsTokenUsage(t *testing.T) {
	service, client, cache, questions, _, interactions := newExplanationFixture()
	addExplainableQuestion(questions)
	client.QueueResponse(&llm.Result{
		Success: true,
		Content: "Four, because addition combines quantities.",
		Usage:   llm.Usage{TotalTokens: 42},
	})

	_, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, int64(42), interactions.interactions[0].TokensUsed.Int64)

	cached, err := cache.GetCachedExplanation(context.Background(), 1, models.DifficultyEasy, false)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(42), cached.TokensUsed.Int64)
}

func TestGetExplanation_FallbackOnProviderFailure(t *testing.T) {
	service, client, cache, questions, _, interactions := newExplanationFixture()
	addExplainableQuestion(questions)
	client.QueueFailure("rate limited")

	response, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, "fallback", response.Source)
	assert.Equal(t, FallbackExplanation, response.Explanation)
	assert.Equal(t, 0, cache.saves)

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, models.InteractionStatusFailed, interactions.interactions[0].Status)
	assert.Equal(t, "rate limited", interactions.interactions[0].ErrorMessage.String)
}

func TestGetExplanation_FallbackPrefersStoredExplanation(t *testing.T) {
	service, client, _, questions, _, _ := newExplanationFixture()
	questions.addQuestion(&models.Question{
		ID: 1, TopicID: 1, Content: "What is 2+2?", Difficulty: models.DifficultyEasy,
		Explanation: sql.NullString{String: "Count up from two.", Valid: true},
		Answers:     []models.Answer{{ID: 10, QuestionID: 1, Content: "4", IsCorrect: true}},
	})
	client.QueueFailure("rate limited")

	response, err := service.GetExplanation(context.Background(), 7, 1, false, false, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, "fallback", response.Source)
	assert.Equal(t, "Count up from two.", response.Explanation)
}

func TestGetExplanation_UnknownQuestion(t *testing.T) {
	service, _, _, _, _, _ := newExplanationFixture()

	_, err := service.GetExplanation(context.Background(), 7, 99, false, false, contextutils.LocaleEnglish)
	assert.True(t, contextutils.IsError(err, contextutils.ErrQuestionNotFound))
}
