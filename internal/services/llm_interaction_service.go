package services

import (
	"context"
	"database/sql"
	"encoding/json"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// Interaction types recorded in the LLM audit log
const (
	InteractionTypeExplanation         = "explanation_generation"
	InteractionTypePerformanceAnalysis = "performance_analysis"
	InteractionTypeStudyPlan           = "study_plan_generation"
)

// LLMInteractionService records every LLM round trip for auditing
type LLMInteractionService interface {
	// RecordInteraction persists one LLM interaction row
	RecordInteraction(ctx context.Context, interaction *models.LLMInteraction) error

	// MarkFailed flips an already recorded interaction to failed. The log is
	// otherwise append only; this is the one correction allowed, for responses
	// that came back fine but failed post-processing.
	MarkFailed(ctx context.Context, interactionID int, reason string) error

	// GetRecentInteractions lists a user's most recent LLM interactions
	GetRecentInteractions(ctx context.Context, userID, limit int) ([]*models.LLMInteraction, error)
}

// LLMInteractionServiceImpl implements LLMInteractionService
type LLMInteractionServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewLLMInteractionService creates a new LLM interaction service
func NewLLMInteractionService(db *sql.DB, logger *observability.Logger) LLMInteractionService {
	return &LLMInteractionServiceImpl{
		db:     db,
		logger: logger,
	}
}

// RecordInteraction persists one LLM interaction row. Failures are logged and
// returned but callers typically treat them as non-fatal: losing an audit row
// must not fail the user-facing operation.
func (s *LLMInteractionServiceImpl) RecordInteraction(ctx context.Context, interaction *models.LLMInteraction) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "record_llm_interaction",
		attribute.String("interaction.type", interaction.InteractionType),
		attribute.String("interaction.status", string(interaction.Status)),
	)
	defer observability.FinishSpan(span, &err)

	metadata := interaction.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		err = contextutils.WrapError(err, "failed to marshal interaction metadata")
		return err
	}

	query := `
		INSERT INTO llm_interactions (user_id, interaction_type, prompt, response, model_used, tokens_used, status, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		interaction.UserID,
		interaction.InteractionType,
		interaction.Prompt,
		interaction.Response,
		interaction.ModelUsed,
		interaction.TokensUsed,
		interaction.Status,
		interaction.ErrorMessage,
		metadataJSON,
	).Scan(&interaction.ID, &interaction.CreatedAt)
	if err != nil {
		err = contextutils.WrapError(err, "failed to record llm interaction")
		return err
	}

	return nil
}

// MarkFailed flips an already recorded interaction to failed
func (s *LLMInteractionServiceImpl) MarkFailed(ctx context.Context, interactionID int, reason string) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "mark_llm_interaction_failed",
		attribute.Int("interaction.id", interactionID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		UPDATE llm_interactions
		SET status = $1, error_message = $2
		WHERE id = $3
	`

	execResult, err := s.db.ExecContext(ctx, query, models.InteractionStatusFailed, reason, interactionID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to mark llm interaction failed")
		return err
	}
	affected, err := execResult.RowsAffected()
	if err != nil {
		err = contextutils.WrapError(err, "failed to read affected rows")
		return err
	}
	if affected == 0 {
		err = contextutils.ErrRecordNotFound
		return err
	}

	return nil
}

// GetRecentInteractions lists a user's most recent LLM interactions
func (s *LLMInteractionServiceImpl) GetRecentInteractions(ctx context.Context, userID, limit int) (result []*models.LLMInteraction, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_recent_llm_interactions",
		observability.AttributeUserID(userID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, user_id, interaction_type, prompt, response, model_used, tokens_used, status, error_message, metadata, created_at
		FROM llm_interactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query llm interactions")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var interactions []*models.LLMInteraction
	for rows.Next() {
		interaction := &models.LLMInteraction{}
		var metadataJSON []byte
		if err = rows.Scan(
			&interaction.ID,
			&interaction.UserID,
			&interaction.InteractionType,
			&interaction.Prompt,
			&interaction.Response,
			&interaction.ModelUsed,
			&interaction.TokensUsed,
			&interaction.Status,
			&interaction.ErrorMessage,
			&metadataJSON,
			&interaction.CreatedAt,
		); err != nil {
			err = contextutils.WrapError(err, "failed to scan llm interaction")
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err = json.Unmarshal(metadataJSON, &interaction.Metadata); err != nil {
				err = contextutils.WrapError(err, "failed to unmarshal interaction metadata")
				return nil, err
			}
		}
		interactions = append(interactions, interaction)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate llm interactions")
		return nil, err
	}

	span.SetAttributes(attribute.Int("interactions.count", len(interactions)))
	return interactions, nil
}
