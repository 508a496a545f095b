package services

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// pqUniqueViolation is the Postgres error code for unique constraint violations
const pqUniqueViolation = "23505"

// ExplanationCacheRepository defines the interface for explanation cache operations
type ExplanationCacheRepository interface {
	// GetCachedExplanation retrieves a cached explanation for the given key, or nil if absent
	GetCachedExplanation(ctx context.Context, questionID int, difficulty models.DifficultyLevel, isPersonalized bool) (*models.ExplanationCacheEntry, error)

	// SaveExplanation stores an explanation in the cache. Entries never expire.
	SaveExplanation(ctx context.Context, entry *models.ExplanationCacheEntry) error
}

// ExplanationCacheRepositoryImpl implements ExplanationCacheRepository
type ExplanationCacheRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewExplanationCacheRepository creates a new explanation cache repository
func NewExplanationCacheRepository(db *sql.DB, logger *observability.Logger) ExplanationCacheRepository {
	return &ExplanationCacheRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// GetCachedExplanation retrieves a cached explanation for the given key, or nil if absent
func (r *ExplanationCacheRepositoryImpl) GetCachedExplanation(ctx context.Context, questionID int, difficulty models.DifficultyLevel, isPersonalized bool) (result *models.ExplanationCacheEntry, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_cached_explanation",
		observability.AttributeQuestionID(questionID),
		observability.AttributeDifficulty(string(difficulty)),
		attribute.Bool("cache.personalized", isPersonalized),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, question_id, difficulty_level, is_personalized, explanation,
		       model_used, tokens_used, created_at
		FROM explanation_cache
		WHERE question_id = $1
		  AND difficulty_level = $2
		  AND is_personalized = $3
	`

	entry := &models.ExplanationCacheEntry{}
	err = r.db.QueryRowContext(ctx, query, questionID, difficulty, isPersonalized).Scan(
		&entry.ID,
		&entry.QuestionID,
		&entry.DifficultyLevel,
		&entry.IsPersonalized,
		&entry.Explanation,
		&entry.ModelUsed,
		&entry.TokensUsed,
		&entry.CreatedAt,
	)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("cache.found", false))
		return nil, nil
	}

	if err != nil {
		err = contextutils.WrapError(err, "failed to query explanation cache")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("cache.found", true))
	return entry, nil
}

// SaveExplanation stores an explanation in the cache. An existing entry for
// the same key is replaced, so a regenerated explanation supersedes the old
// one and concurrent writers never conflict.
func (r *ExplanationCacheRepositoryImpl) SaveExplanation(ctx context.Context, entry *models.ExplanationCacheEntry) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_explanation_cache",
		observability.AttributeQuestionID(entry.QuestionID),
		observability.AttributeDifficulty(string(entry.DifficultyLevel)),
		attribute.Bool("cache.personalized", entry.IsPersonalized),
		attribute.Int("cache.explanation_length", len(entry.Explanation)),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO explanation_cache (question_id, difficulty_level, is_personalized, explanation, model_used, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (question_id, difficulty_level, is_personalized)
		DO UPDATE SET explanation = EXCLUDED.explanation,
		              model_used = EXCLUDED.model_used,
		              tokens_used = EXCLUDED.tokens_used
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.QuestionID,
		entry.DifficultyLevel,
		entry.IsPersonalized,
		entry.Explanation,
		entry.ModelUsed,
		entry.TokensUsed,
	)
	if err != nil {
		err = contextutils.WrapError(err, "failed to save explanation to cache")
		return err
	}

	return nil
}
