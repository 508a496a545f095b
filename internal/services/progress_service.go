package services

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// ProgressService defines per-topic user progress operations
type ProgressService interface {
	// GetProgress retrieves a user's progress for a topic, or nil if none exists
	GetProgress(ctx context.Context, userID, topicID int) (*models.UserProgress, error)

	// GetAllProgress lists all progress rows for a user ordered by proficiency ascending
	GetAllProgress(ctx context.Context, userID int) ([]*models.UserProgress, error)

	// GetWeakestTopics lists up to limit progress rows with the lowest proficiency
	GetWeakestTopics(ctx context.Context, userID int, limit int) ([]*models.UserProgress, error)

	// ApplyAnswer atomically updates a user's proficiency for a topic from one
	// answer event, creating the progress row if missing. The row is locked for
	// the duration of the update so concurrent answers serialize.
	ApplyAnswer(ctx context.Context, userID, topicID int, correct bool, timeTakenSeconds float64) (*models.UserProgress, error)
}

// ProgressServiceImpl implements ProgressService
type ProgressServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewProgressService creates a new progress service
func NewProgressService(db *sql.DB, logger *observability.Logger) ProgressService {
	return &ProgressServiceImpl{
		db:     db,
		logger: logger,
	}
}

// GetProgress retrieves a user's progress for a topic, or nil if none exists
func (s *ProgressServiceImpl) GetProgress(ctx context.Context, userID, topicID int) (result *models.UserProgress, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_progress",
		observability.AttributeUserID(userID),
		observability.AttributeTopicID(topicID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, user_id, topic_id, proficiency, mastery_level, questions_answered,
		       questions_correct, learning_streak, focus_areas, last_interaction,
		       created_at, updated_at
		FROM user_progress
		WHERE user_id = $1 AND topic_id = $2
	`

	progress, err := scanProgress(s.db.QueryRowContext(ctx, query, userID, topicID))
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("progress.found", false))
		return nil, nil
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query user progress")
		return nil, err
	}

	return progress, nil
}

// GetAllProgress lists all progress rows for a user ordered by proficiency ascending
func (s *ProgressServiceImpl) GetAllProgress(ctx context.Context, userID int) (result []*models.UserProgress, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_all_progress",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	return s.queryProgressRows(ctx, span, `
		SELECT id, user_id, topic_id, proficiency, mastery_level, questions_answered,
		       questions_correct, learning_streak, focus_areas, last_interaction,
		       created_at, updated_at
		FROM user_progress
		WHERE user_id = $1
		ORDER BY proficiency ASC
	`, userID)
}

// GetWeakestTopics lists up to limit progress rows with the lowest proficiency
func (s *ProgressServiceImpl) GetWeakestTopics(ctx context.Context, userID int, limit int) (result []*models.UserProgress, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_weakest_topics",
		observability.AttributeUserID(userID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	return s.queryProgressRows(ctx, span, `
		SELECT id, user_id, topic_id, proficiency, mastery_level, questions_answered,
		       questions_correct, learning_streak, focus_areas, last_interaction,
		       created_at, updated_at
		FROM user_progress
		WHERE user_id = $1
		ORDER BY proficiency ASC, updated_at ASC
		LIMIT $2
	`, userID, limit)
}

// ApplyAnswer atomically updates a user's proficiency for a topic from one answer event
func (s *ProgressServiceImpl) ApplyAnswer(ctx context.Context, userID, topicID int, correct bool, timeTakenSeconds float64) (result *models.UserProgress, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "apply_answer",
		observability.AttributeUserID(userID),
		observability.AttributeTopicID(topicID),
		attribute.Bool("answer.correct", correct),
		attribute.Float64("answer.time_taken_seconds", timeTakenSeconds),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = contextutils.WrapError(err, "failed to begin transaction")
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rbErr.Error()})
			}
		}
	}()

	// Ensure a row exists, then lock it so concurrent answers serialize
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_progress (user_id, topic_id, proficiency, mastery_level)
		VALUES ($1, $2, 0, 'beginner')
		ON CONFLICT (user_id, topic_id) DO NOTHING
	`, userID, topicID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to ensure progress row")
		return nil, err
	}

	progress, err := scanProgress(tx.QueryRowContext(ctx, `
		SELECT id, user_id, topic_id, proficiency, mastery_level, questions_answered,
		       questions_correct, learning_streak, focus_areas, last_interaction,
		       created_at, updated_at
		FROM user_progress
		WHERE user_id = $1 AND topic_id = $2
		FOR UPDATE
	`, userID, topicID))
	if err != nil {
		err = contextutils.WrapError(err, "failed to lock progress row")
		return nil, err
	}

	progress.Proficiency = NextProficiency(progress.Proficiency, correct, timeTakenSeconds)
	progress.MasteryLevel = MasteryForProficiency(progress.Proficiency)
	progress.QuestionsAnswered++
	if correct {
		progress.QuestionsCorrect++
		progress.LearningStreak++
	} else {
		progress.LearningStreak = 0
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE user_progress
		SET proficiency = $1,
		    mastery_level = $2,
		    questions_answered = $3,
		    questions_correct = $4,
		    learning_streak = $5,
		    last_interaction = NOW(),
		    updated_at = NOW()
		WHERE id = $6
		RETURNING last_interaction, updated_at
	`, progress.Proficiency, progress.MasteryLevel, progress.QuestionsAnswered,
		progress.QuestionsCorrect, progress.LearningStreak, progress.ID,
	).Scan(&progress.LastInteraction, &progress.UpdatedAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to update progress row")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = contextutils.WrapError(err, "failed to commit progress update")
		return nil, err
	}

	span.SetAttributes(
		observability.AttributeProficiency(progress.Proficiency),
		attribute.String("progress.mastery_level", string(progress.MasteryLevel)),
	)
	return progress, nil
}

func (s *ProgressServiceImpl) queryProgressRows(ctx context.Context, span interface{ SetAttributes(...attribute.KeyValue) }, query string, args ...interface{}) ([]*models.UserProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user progress")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var progressRows []*models.UserProgress
	for rows.Next() {
		progress, scanErr := scanProgress(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan user progress")
		}
		progressRows = append(progressRows, progress)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate user progress")
	}

	span.SetAttributes(attribute.Int("progress.count", len(progressRows)))
	return progressRows, nil
}

func scanProgress(row rowScanner) (*models.UserProgress, error) {
	progress := &models.UserProgress{}
	err := row.Scan(
		&progress.ID,
		&progress.UserID,
		&progress.TopicID,
		&progress.Proficiency,
		&progress.MasteryLevel,
		&progress.QuestionsAnswered,
		&progress.QuestionsCorrect,
		&progress.LearningStreak,
		pq.Array(&progress.FocusAreas),
		&progress.LastInteraction,
		&progress.CreatedAt,
		&progress.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return progress, nil
}
