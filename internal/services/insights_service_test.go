package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprenda/internal/llm"
	"aprenda/internal/models"
	contextutils "aprenda/internal/utils"
)

func newInsightsFixture() (InsightsService, *llm.MockClient, *fakeAnswerEventService, *fakeInsightService, *fakeLLMInteractionService) {
	client := llm.NewMockClient()
	events := &fakeAnswerEventService{}
	insights := &fakeInsightService{}
	interactions := &fakeLLMInteractionService{}
	service := NewInsightsService(newTestConfig(), newTestLogger(), client, events, insights, interactions)
	return service, client, events, insights, interactions
}

func TestAnalyzePerformance_SkippedWithoutHistory(t *testing.T) {
	service, client, _, insights, interactions := newInsightsFixture()

	insight, err := service.AnalyzePerformance(context.Background(), 7, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, 0, client.Calls())
	assert.Empty(t, insights.saved)
	assert.Empty(t, insight.Strengths)
	assert.NotEmpty(t, insight.Recommendations)
	assert.Equal(t, "No answer history yet.", insight.ProgressSummary)

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, models.InteractionStatusSkipped, interactions.interactions[0].Status)
	assert.Equal(t, "no_answer_history", interactions.interactions[0].Metadata["reason"])
}

func TestAnalyzePerformance_ParsesAndPersistsInsight(t *testing.T) {
	service, client, events, insights, interactions := newInsightsFixture()
	events.events = []*models.AnswerEvent{{UserID: 7, QuestionID: 1, TopicID: 1, IsCorrect: true}}
	events.performance = []*models.TopicPerformance{
		{TopicID: 1, TopicName: "Algebra", TotalAnswers: 12, CorrectAnswers: 9, AvgTimeSeconds: 14.5},
		{TopicID: 2, TopicName: "Geometry", TotalAnswers: 4, CorrectAnswers: 1, AvgTimeSeconds: 48.0},
	}
	client.QueueContent("```json\n" + `{
		"strengths": ["Algebra fundamentals"],
		"weaknesses": ["Geometry proofs"],
		"patterns": ["Slow on spatial questions"],
		"recommendations": ["Practice geometry daily"],
		"next_topics": ["Triangles"],
		"progress_summary": "Solid algebra, geometry needs work."
	}` + "\n```")

	insight, err := service.AnalyzePerformance(context.Background(), 7, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, []string{"Algebra fundamentals"}, insight.Strengths)
	assert.Equal(t, []string{"Geometry proofs"}, insight.Weaknesses)
	assert.Equal(t, []string{"Triangles"}, insight.NextTopics)
	assert.Equal(t, "Solid algebra, geometry needs work.", insight.ProgressSummary)

	require.Len(t, insights.saved, 1)
	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, models.InteractionStatusSuccess, interactions.interactions[0].Status)

	require.Len(t, client.Prompts(), 1)
	prompt := client.Prompts()[0]
	assert.Contains(t, prompt, "Algebra: 12 answered, 75% correct")
	assert.Contains(t, prompt, "Geometry: 4 answered, 25% correct")
}

func TestAnalyzePerformance_MissingKeysDefaulted(t *testing.T) {
	service, client, events, _, _ := newInsightsFixture()
	events.events = []*models.AnswerEvent{{UserID: 7, QuestionID: 1, TopicID: 1, IsCorrect: true}}
	events.performance = []*models.TopicPerformance{{TopicID: 1, TopicName: "Algebra", TotalAnswers: 1, CorrectAnswers: 1}}
	client.QueueContent(`{"strengths": ["Consistency"]}`)

	insight, err := service.AnalyzePerformance(context.Background(), 7, contextutils.LocaleEnglish)
	require.NoError(t, err)

	assert.Equal(t, []string{"Consistency"}, insight.Strengths)
	assert.Empty(t, insight.Weaknesses)
	assert.Empty(t, insight.Patterns)
	assert.Empty(t, insight.Recommendations)
	assert.Empty(t, insight.NextTopics)
	assert.Equal(t, DefaultProgressSummary, insight.ProgressSummary)
	assert.NotNil(t, insight.Weaknesses)
}

func TestAnalyzePerformance_NonJSONResponse(t *testing.T) {
	service, client, events, insights, interactions := newInsightsFixture()
	events.events = []*models.AnswerEvent{{UserID: 7, QuestionID: 1, TopicID: 1, IsCorrect: true}}
	events.performance = []*models.TopicPerformance{{TopicID: 1, TopicName: "Algebra", TotalAnswers: 1}}
	client.QueueContent("I cannot produce an analysis right now.")

	_, err := service.AnalyzePerformance(context.Background(), 7, contextutils.LocaleEnglish)
	assert.Equal(t, contextutils.ErrorCodeLLMResponseInvalid, contextutils.GetErrorCode(err))
	assert.Empty(t, insights.saved)

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, models.InteractionStatusFailed, interactions.interactions[0].Status)
}

func TestAnalyzePerformance_ProviderFailure(t *testing.T) {
	service, client, events, _, interactions := newInsightsFixture()
	events.events = []*models.AnswerEvent{{UserID: 7, QuestionID: 1, TopicID: 1, IsCorrect: true}}
	events.performance = []*models.TopicPerformance{{TopicID: 1, TopicName: "Algebra", TotalAnswers: 1}}
	client.QueueFailure("quota exceeded")

	_, err := service.AnalyzePerformance(context.Background(), 7, contextutils.LocaleEnglish)
	assert.Equal(t, contextutils.ErrorCodeLLMRequestFailed, contextutils.GetErrorCode(err))

	require.Len(t, interactions.interactions, 1)
	assert.Equal(t, "quota exceeded", interactions.interactions[0].ErrorMessage.String)
}

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"markdown fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around object", `Here you go: {"a": {"b": 2}} hope it helps`, `{"a": {"b": 2}}`},
		{"braces inside strings", `{"a": "ar}ray {"}`, `{"a": "ar}ray {"}`},
		{"no object", "nothing here", ""},
		{"unbalanced object", `{"a": 1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSONBlock(tt.content))
		})
	}
}
