package services

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// AnswerEventService defines answer history operations
type AnswerEventService interface {
	// RecordAnswer persists one answer event
	RecordAnswer(ctx context.Context, event *models.AnswerEvent) error

	// CountAnswers returns the number of answer events for a user
	CountAnswers(ctx context.Context, userID int) (int, error)

	// GetTopicPerformance aggregates a user's answer history per topic
	GetTopicPerformance(ctx context.Context, userID int) ([]*models.TopicPerformance, error)
}

// AnswerEventServiceImpl implements AnswerEventService
type AnswerEventServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAnswerEventService creates a new answer event service
func NewAnswerEventService(db *sql.DB, logger *observability.Logger) AnswerEventService {
	return &AnswerEventServiceImpl{
		db:     db,
		logger: logger,
	}
}

// RecordAnswer persists one answer event
func (s *AnswerEventServiceImpl) RecordAnswer(ctx context.Context, event *models.AnswerEvent) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "record_answer",
		observability.AttributeUserID(event.UserID),
		observability.AttributeQuestionID(event.QuestionID),
		observability.AttributeTopicID(event.TopicID),
		attribute.Bool("answer.correct", event.IsCorrect),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO answer_events (user_id, question_id, topic_id, answer_id, is_correct, time_taken_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		event.UserID,
		event.QuestionID,
		event.TopicID,
		event.AnswerID,
		event.IsCorrect,
		event.TimeTakenSeconds,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to record answer event")
		return err
	}

	return nil
}

// CountAnswers returns the number of answer events for a user
func (s *AnswerEventServiceImpl) CountAnswers(ctx context.Context, userID int) (result int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "count_answers",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_events WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		err = contextutils.WrapError(err, "failed to count answer events")
		return 0, err
	}

	span.SetAttributes(attribute.Int("answers.count", count))
	return count, nil
}

// GetTopicPerformance aggregates a user's answer history per topic
func (s *AnswerEventServiceImpl) GetTopicPerformance(ctx context.Context, userID int) (result []*models.TopicPerformance, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_topic_performance",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT t.id, t.name,
		       COUNT(ae.id) AS total_answers,
		       COUNT(ae.id) FILTER (WHERE ae.is_correct) AS correct_answers,
		       COALESCE(AVG(ae.time_taken_seconds), 0) AS avg_time_seconds
		FROM answer_events ae
		JOIN topics t ON t.id = ae.topic_id
		WHERE ae.user_id = $1
		GROUP BY t.id, t.name
		ORDER BY t.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query topic performance")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var performance []*models.TopicPerformance
	for rows.Next() {
		tp := &models.TopicPerformance{}
		if err = rows.Scan(
			&tp.TopicID,
			&tp.TopicName,
			&tp.TotalAnswers,
			&tp.CorrectAnswers,
			&tp.AvgTimeSeconds,
		); err != nil {
			err = contextutils.WrapError(err, "failed to scan topic performance")
			return nil, err
		}
		performance = append(performance, tp)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate topic performance")
		return nil, err
	}

	span.SetAttributes(attribute.Int("performance.topic_count", len(performance)))
	return performance, nil
}
