//go:build integration
// +build integration

package services

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"aprenda/internal/config"
	"aprenda/internal/database"
	"aprenda/internal/models"
	"aprenda/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDatabaseURL := os.Getenv("TEST_DATABASE_URL")
	if testDatabaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	db, err := database.NewManager(logger).InitDB(testDatabaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func createTestUser(t *testing.T, users UserService) *models.User {
	t.Helper()

	email := fmt.Sprintf("learner-%d@example.com", time.Now().UnixNano())
	user, err := users.CreateUser(context.Background(), "Test Learner", email, "")
	require.NoError(t, err)
	return user
}

func createTestTopic(t *testing.T, topics TopicService) *models.Topic {
	t.Helper()

	ctx := context.Background()
	subject, err := topics.GetOrCreateSubject(ctx, fmt.Sprintf("Subject %d", time.Now().UnixNano()), "")
	require.NoError(t, err)
	topic, err := topics.CreateTopic(ctx, subject.ID, "Fractions", "", nil)
	require.NoError(t, err)
	return topic
}

func createTestQuestion(t *testing.T, db *sql.DB, topicID int) int {
	t.Helper()

	var questionID int
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO questions (topic_id, content, question_type, difficulty, explanation)
		VALUES ($1, 'What is 1/2 + 1/4?', 'multiple_choice', 'easy', 'Convert to quarters first.')
		RETURNING id
	`, topicID).Scan(&questionID)
	require.NoError(t, err)
	return questionID
}

func TestApplyAnswer_Progression_Integration(t *testing.T) {
	db := openTestDB(t)
	logger := observability.NewLogger(nil)
	ctx := context.Background()

	users := NewUserService(db, logger)
	topics := NewTopicService(db, logger)
	progress := NewProgressService(db, logger)

	user := createTestUser(t, users)
	topic := createTestTopic(t, topics)

	// First correct answer seeds a progress row
	p, err := progress.ApplyAnswer(ctx, user.ID, topic.ID, true, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, p.Proficiency, 1e-9)
	assert.Equal(t, 1, p.QuestionsAnswered)
	assert.Equal(t, 1, p.LearningStreak)
	assert.Equal(t, models.MasteryBeginner, p.MasteryLevel)

	// A fast correct answer gets the larger gain
	p, err = progress.ApplyAnswer(ctx, user.ID, topic.ID, true, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p.Proficiency, 1e-9)
	assert.Equal(t, 2, p.LearningStreak)

	// An incorrect answer loses ground and resets the streak
	p, err = progress.ApplyAnswer(ctx, user.ID, topic.ID, false, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p.Proficiency, 1e-9)
	assert.Equal(t, 0, p.LearningStreak)
	assert.Equal(t, 3, p.QuestionsAnswered)
	assert.Equal(t, 2, p.QuestionsCorrect)

	stored, err := progress.GetProgress(ctx, user.ID, topic.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, 0.2, stored.Proficiency, 1e-9)
}

func TestExplanationCache_UpsertReplaces_Integration(t *testing.T) {
	db := openTestDB(t)
	logger := observability.NewLogger(nil)
	ctx := context.Background()

	topics := NewTopicService(db, logger)
	cache := NewExplanationCacheRepository(db, logger)

	topic := createTestTopic(t, topics)
	questionID := createTestQuestion(t, db, topic.ID)

	entry := &models.ExplanationCacheEntry{
		QuestionID:      questionID,
		DifficultyLevel: models.DifficultyEasy,
		IsPersonalized:  false,
		Explanation:     "Quarters make this easy to see.",
	}
	require.NoError(t, cache.SaveExplanation(ctx, entry))

	// A second write for the same key replaces the row instead of erroring
	replacement := &models.ExplanationCacheEntry{
		QuestionID:      questionID,
		DifficultyLevel: models.DifficultyEasy,
		IsPersonalized:  false,
		Explanation:     "A regenerated explanation that replaces the first.",
	}
	require.NoError(t, cache.SaveExplanation(ctx, replacement))

	cached, err := cache.GetCachedExplanation(ctx, questionID, models.DifficultyEasy, false)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "A regenerated explanation that replaces the first.", cached.Explanation)
}

func TestCreatePlanWithSessions_Atomic_Integration(t *testing.T) {
	db := openTestDB(t)
	logger := observability.NewLogger(nil)
	ctx := context.Background()

	users := NewUserService(db, logger)
	topics := NewTopicService(db, logger)
	plans := NewStudyPlanRepository(db, logger)

	user := createTestUser(t, users)
	topic := createTestTopic(t, topics)

	subject, err := topics.GetSubject(ctx, topic.SubjectID)
	require.NoError(t, err)

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	plan := &models.StudyPlan{
		UserID:    user.ID,
		SubjectID: subject.ID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 6),
		Status:    models.PlanStatusActive,
		Goals:     sql.NullString{String: "Master fractions", Valid: true},
		Sessions: []models.StudySession{
			{
				TopicID:         sql.NullInt64{Int64: int64(topic.ID), Valid: true},
				ScheduledDate:   start,
				DurationMinutes: 45,
				Resources:       []string{"Fractions video"},
				Activities:      []string{"Practice 10 problems"},
				Status:          models.SessionStatusPending,
			},
			{
				ScheduledDate:   start.AddDate(0, 0, 2),
				DurationMinutes: 30,
				Resources:       []string{},
				Activities:      []string{"Review mistakes"},
				Status:          models.SessionStatusPending,
			},
		},
	}
	require.NoError(t, plans.CreatePlanWithSessions(ctx, plan))
	require.NotZero(t, plan.ID)

	loaded, err := plans.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 2)
	assert.Equal(t, models.PlanStatusActive, loaded.Status)
	assert.True(t, loaded.Sessions[0].TopicID.Valid)
	assert.Equal(t, []string{"Fractions video"}, loaded.Sessions[0].Resources)
	assert.False(t, loaded.Sessions[1].TopicID.Valid)
}
