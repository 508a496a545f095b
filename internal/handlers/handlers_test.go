package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprenda/internal/config"
	"aprenda/internal/models"
	"aprenda/internal/observability"
	"aprenda/internal/services"
	"aprenda/internal/tasks"
	contextutils "aprenda/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(nil)
}

// stubAdaptiveService returns canned data so handler plumbing can be tested
// without a database
type stubAdaptiveService struct {
	questions       []*models.Question
	answerResult    *services.AnswerResult
	recommendations []*models.Recommendation
	analysis        *services.PerformanceAnalysis
	err             error
	lastUserID      int
	lastTopicID     int
	lastLimit       int
	lastTopicFilter *int
	lastPeriod      string
}

func (s *stubAdaptiveService) GetNextQuestions(_ context.Context, userID, topicID, limit int) ([]*models.Question, error) {
	s.lastUserID, s.lastTopicID, s.lastLimit = userID, topicID, limit
	return s.questions, s.err
}

func (s *stubAdaptiveService) SubmitAnswer(_ context.Context, userID, _, _ int, _ float64) (*services.AnswerResult, error) {
	s.lastUserID = userID
	return s.answerResult, s.err
}

func (s *stubAdaptiveService) GetRecommendations(_ context.Context, userID int, topicID *int) ([]*models.Recommendation, error) {
	s.lastUserID, s.lastTopicFilter = userID, topicID
	return s.recommendations, s.err
}

func (s *stubAdaptiveService) GetPerformanceAnalysis(_ context.Context, userID int, topicID *int, period string) (*services.PerformanceAnalysis, error) {
	s.lastUserID, s.lastTopicFilter, s.lastPeriod = userID, topicID, period
	return s.analysis, s.err
}

func newLearningRouter(stub *stubAdaptiveService) *gin.Engine {
	router := gin.New()
	handler := NewLearningHandler(stub, testLogger())
	authed := router.Group("/v1")
	authed.Use(RequireUser())
	authed.GET("/topics/:id/questions", handler.GetNextQuestions)
	authed.POST("/answers", handler.SubmitAnswer)
	authed.GET("/recommendations", handler.GetRecommendations)
	authed.GET("/performance", handler.GetPerformanceAnalysis)
	return router
}

func TestRequireUser_MissingHeader(t *testing.T) {
	router := newLearningRouter(&stubAdaptiveService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), UserIDHeader)
}

func TestRequireUser_InvalidHeader(t *testing.T) {
	router := newLearningRouter(&stubAdaptiveService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	req.Header.Set(UserIDHeader, "not-a-number")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNextQuestions_PassesUserAndTopic(t *testing.T) {
	stub := &stubAdaptiveService{questions: []*models.Question{{ID: 1, TopicID: 3, Difficulty: models.DifficultyEasy}}}
	router := newLearningRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/topics/3/questions?limit=5", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, stub.lastUserID)
	assert.Equal(t, 3, stub.lastTopicID)
	assert.Equal(t, 5, stub.lastLimit)

	var body map[string][]models.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["questions"], 1)
}

func TestGetNextQuestions_TopicNotFound(t *testing.T) {
	stub := &stubAdaptiveService{err: contextutils.ErrTopicNotFound}
	router := newLearningRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/topics/99/questions", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "TOPIC_NOT_FOUND")
}

func TestSubmitAnswer_ReturnsResult(t *testing.T) {
	stub := &stubAdaptiveService{answerResult: &services.AnswerResult{
		IsCorrect:      true,
		Proficiency:    0.6,
		MasteryLevel:   models.MasteryIntermediate,
		NextDifficulty: models.DifficultyMedium,
	}}
	router := newLearningRouter(stub)

	payload, _ := json.Marshal(SubmitAnswerRequest{QuestionID: 1, AnswerID: 10, TimeTakenSeconds: 30})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/answers", bytes.NewReader(payload))
	req.Header.Set(UserIDHeader, "7")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result services.AnswerResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.IsCorrect)
	assert.InDelta(t, 0.6, result.Proficiency, 1e-9)
}

func TestSubmitAnswer_MissingFields(t *testing.T) {
	router := newLearningRouter(&stubAdaptiveService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/answers", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(UserIDHeader, "7")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRecommendations_OptionalTopicFilter(t *testing.T) {
	stub := &stubAdaptiveService{recommendations: []*models.Recommendation{{TopicID: 3, TopicName: "Algebra"}}}
	router := newLearningRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations?topic_id=3", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.lastTopicFilter)
	assert.Equal(t, 3, *stub.lastTopicFilter)

	// Absent parameter means no filter
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, stub.lastTopicFilter)
}

func TestGetRecommendations_MalformedTopicFilter(t *testing.T) {
	router := newLearningRouter(&stubAdaptiveService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations?topic_id=abc", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPerformanceAnalysis_PassesFilters(t *testing.T) {
	stub := &stubAdaptiveService{analysis: &services.PerformanceAnalysis{Period: services.PeriodWeek, TopicsStudied: 1}}
	router := newLearningRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/performance?topic_id=3&period=week", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, stub.lastUserID)
	require.NotNil(t, stub.lastTopicFilter)
	assert.Equal(t, 3, *stub.lastTopicFilter)
	assert.Equal(t, services.PeriodWeek, stub.lastPeriod)

	var analysis services.PerformanceAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.Equal(t, 1, analysis.TopicsStudied)
}

func TestGetPerformanceAnalysis_DefaultsToAllTime(t *testing.T) {
	stub := &stubAdaptiveService{analysis: &services.PerformanceAnalysis{Period: services.PeriodAll}}
	router := newLearningRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/performance", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.PeriodAll, stub.lastPeriod)
}

type stubInteractionService struct {
	interactions []*models.LLMInteraction
	lastUserID   int
	lastLimit    int
}

func (s *stubInteractionService) RecordInteraction(_ context.Context, _ *models.LLMInteraction) error {
	return nil
}

func (s *stubInteractionService) MarkFailed(_ context.Context, _ int, _ string) error {
	return nil
}

func (s *stubInteractionService) GetRecentInteractions(_ context.Context, userID, limit int) ([]*models.LLMInteraction, error) {
	s.lastUserID, s.lastLimit = userID, limit
	return s.interactions, nil
}

func newInteractionRouter(stub *stubInteractionService) *gin.Engine {
	router := gin.New()
	handler := NewInteractionHandler(stub, testLogger())
	authed := router.Group("/v1")
	authed.Use(RequireUser())
	authed.GET("/interactions", handler.ListInteractions)
	return router
}

func TestListInteractions(t *testing.T) {
	stub := &stubInteractionService{interactions: []*models.LLMInteraction{
		{ID: 1, InteractionType: "explanation_generation", Status: models.InteractionStatusSuccess},
	}}
	router := newInteractionRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/interactions?limit=5", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, stub.lastUserID)
	assert.Equal(t, 5, stub.lastLimit)
	assert.Contains(t, w.Body.String(), "explanation_generation")
}

func TestListInteractions_LimitBounds(t *testing.T) {
	stub := &stubInteractionService{}
	router := newInteractionRouter(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/interactions", nil)
	req.Header.Set(UserIDHeader, "7")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.DefaultInteractionLimit, stub.lastLimit)

	for _, raw := range []string{"0", "-1", "101", "abc"} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/v1/interactions?limit="+raw, nil)
		req.Header.Set(UserIDHeader, "7")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestGetTaskStatus(t *testing.T) {
	dispatcher := tasks.NewDispatcher(&config.TasksConfig{Workers: 1, QueueSize: 4}, testLogger())
	defer func() { _ = dispatcher.Shutdown(context.Background()) }()

	router := gin.New()
	handler := NewTaskHandler(dispatcher, testLogger())
	router.GET("/v1/tasks/:id", handler.GetTaskStatus)

	id, err := dispatcher.Submit(context.Background(), "work", func(_ context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := dispatcher.Status(id)
		return ok && status.State == tasks.TaskStateCompleted
	}, 5*time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+id, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var status tasks.TaskStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, tasks.TaskStateCompleted, status.State)
	assert.Equal(t, "done", status.Result)
}

func TestGetTaskStatus_UnknownTask(t *testing.T) {
	dispatcher := tasks.NewDispatcher(&config.TasksConfig{Workers: 1, QueueSize: 4}, testLogger())
	defer func() { _ = dispatcher.Shutdown(context.Background()) }()

	router := gin.New()
	handler := NewTaskHandler(dispatcher, testLogger())
	router.GET("/v1/tasks/:id", handler.GetTaskStatus)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/does-not-exist", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     contextutils.ErrorCode
		expected int
	}{
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeInvalidAnswer, http.StatusBadRequest},
		{contextutils.ErrorCodeValidationFailed, http.StatusBadRequest},
		{contextutils.ErrorCodeQuestionNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeStudyPlanNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeRecordExists, http.StatusConflict},
		{contextutils.ErrorCodeLLMUnavailable, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeLLMResponseInvalid, http.StatusInternalServerError},
		{contextutils.ErrorCodeTimeout, http.StatusRequestTimeout},
		{contextutils.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
