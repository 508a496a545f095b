package services

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"github.com/lib/pq"
)

// InsightService persists generated learning insights
type InsightService interface {
	// SaveInsight stores one learning insight
	SaveInsight(ctx context.Context, insight *models.LearningInsight) error

	// GetLatestInsight returns a user's most recent insight, or nil if none exists
	GetLatestInsight(ctx context.Context, userID int) (*models.LearningInsight, error)
}

// InsightServiceImpl implements InsightService
type InsightServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewInsightService creates a new insight service
func NewInsightService(db *sql.DB, logger *observability.Logger) InsightService {
	return &InsightServiceImpl{
		db:     db,
		logger: logger,
	}
}

// SaveInsight stores one learning insight
func (s *InsightServiceImpl) SaveInsight(ctx context.Context, insight *models.LearningInsight) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_insight",
		observability.AttributeUserID(insight.UserID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO learning_insights (user_id, strengths, weaknesses, patterns, recommendations, next_topics, progress_summary, model_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		insight.UserID,
		pq.Array(insight.Strengths),
		pq.Array(insight.Weaknesses),
		pq.Array(insight.Patterns),
		pq.Array(insight.Recommendations),
		pq.Array(insight.NextTopics),
		insight.ProgressSummary,
		insight.ModelUsed,
	).Scan(&insight.ID, &insight.CreatedAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to save learning insight")
		return err
	}

	return nil
}

// GetLatestInsight returns a user's most recent insight, or nil if none exists
func (s *InsightServiceImpl) GetLatestInsight(ctx context.Context, userID int) (result *models.LearningInsight, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_latest_insight",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, user_id, strengths, weaknesses, patterns, recommendations, next_topics, progress_summary, model_used, created_at
		FROM learning_insights
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	insight := &models.LearningInsight{}
	err = s.db.QueryRowContext(ctx, query, userID).Scan(
		&insight.ID,
		&insight.UserID,
		pq.Array(&insight.Strengths),
		pq.Array(&insight.Weaknesses),
		pq.Array(&insight.Patterns),
		pq.Array(&insight.Recommendations),
		pq.Array(&insight.NextTopics),
		&insight.ProgressSummary,
		&insight.ModelUsed,
		&insight.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query latest insight")
		return nil, err
	}

	return insight, nil
}
