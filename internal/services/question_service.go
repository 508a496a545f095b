package services

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// QuestionService defines question catalog operations
type QuestionService interface {
	// GetQuestion retrieves a question with its answers
	GetQuestion(ctx context.Context, questionID int) (*models.Question, error)

	// GetQuestionsByTopic retrieves up to limit questions for a topic at the given
	// difficulty, falling back to any difficulty when the bucket is empty
	GetQuestionsByTopic(ctx context.Context, topicID int, difficulty models.DifficultyLevel, limit int) ([]*models.Question, error)

	// GetCorrectAnswer returns the correct answer for a question, or nil for
	// question types without a stored correct answer
	GetCorrectAnswer(ctx context.Context, questionID int) (*models.Answer, error)
}

// QuestionServiceImpl implements QuestionService
type QuestionServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewQuestionService creates a new question service
func NewQuestionService(db *sql.DB, logger *observability.Logger) QuestionService {
	return &QuestionServiceImpl{
		db:     db,
		logger: logger,
	}
}

// GetQuestion retrieves a question with its answers
func (s *QuestionServiceImpl) GetQuestion(ctx context.Context, questionID int) (result *models.Question, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_question",
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, topic_id, content, question_type, difficulty, explanation, created_at, updated_at
		FROM questions
		WHERE id = $1
	`

	question := &models.Question{}
	err = s.db.QueryRowContext(ctx, query, questionID).Scan(
		&question.ID,
		&question.TopicID,
		&question.Content,
		&question.Type,
		&question.Difficulty,
		&question.Explanation,
		&question.CreatedAt,
		&question.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrQuestionNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query question")
		return nil, err
	}

	if err = s.loadAnswers(ctx, question); err != nil {
		return nil, err
	}

	return question, nil
}

// GetQuestionsByTopic retrieves up to limit questions for a topic at the given
// difficulty, falling back to any difficulty when the bucket is empty
func (s *QuestionServiceImpl) GetQuestionsByTopic(ctx context.Context, topicID int, difficulty models.DifficultyLevel, limit int) (result []*models.Question, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_questions_by_topic",
		observability.AttributeTopicID(topicID),
		observability.AttributeDifficulty(string(difficulty)),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	questions, err := s.queryQuestions(ctx, `
		SELECT id, topic_id, content, question_type, difficulty, explanation, created_at, updated_at
		FROM questions
		WHERE topic_id = $1 AND difficulty = $2
		ORDER BY RANDOM()
		LIMIT $3
	`, topicID, difficulty, limit)
	if err != nil {
		return nil, err
	}

	// Empty difficulty bucket falls back to the whole topic
	if len(questions) == 0 {
		span.SetAttributes(attribute.Bool("questions.fallback", true))
		questions, err = s.queryQuestions(ctx, `
			SELECT id, topic_id, content, question_type, difficulty, explanation, created_at, updated_at
			FROM questions
			WHERE topic_id = $1
			ORDER BY RANDOM()
			LIMIT $2
		`, topicID, limit)
		if err != nil {
			return nil, err
		}
	}

	for _, q := range questions {
		if err = s.loadAnswers(ctx, q); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("questions.count", len(questions)))
	return questions, nil
}

// GetCorrectAnswer returns the correct answer for a question, or nil for
// question types without a stored correct answer
func (s *QuestionServiceImpl) GetCorrectAnswer(ctx context.Context, questionID int) (result *models.Answer, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_correct_answer",
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, question_id, content, is_correct, created_at
		FROM answers
		WHERE question_id = $1 AND is_correct = TRUE
		LIMIT 1
	`

	answer := &models.Answer{}
	err = s.db.QueryRowContext(ctx, query, questionID).Scan(
		&answer.ID,
		&answer.QuestionID,
		&answer.Content,
		&answer.IsCorrect,
		&answer.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query correct answer")
		return nil, err
	}

	return answer, nil
}

func (s *QuestionServiceImpl) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query questions")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var questions []*models.Question
	for rows.Next() {
		question := &models.Question{}
		if err := rows.Scan(
			&question.ID,
			&question.TopicID,
			&question.Content,
			&question.Type,
			&question.Difficulty,
			&question.Explanation,
			&question.CreatedAt,
			&question.UpdatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan question")
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate questions")
	}

	return questions, nil
}

func (s *QuestionServiceImpl) loadAnswers(ctx context.Context, question *models.Question) error {
	query := `
		SELECT id, question_id, content, is_correct, created_at
		FROM answers
		WHERE question_id = $1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, question.ID)
	if err != nil {
		return contextutils.WrapError(err, "failed to query answers")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var answers []models.Answer
	for rows.Next() {
		var answer models.Answer
		if err := rows.Scan(
			&answer.ID,
			&answer.QuestionID,
			&answer.Content,
			&answer.IsCorrect,
			&answer.CreatedAt,
		); err != nil {
			return contextutils.WrapError(err, "failed to scan answer")
		}
		answers = append(answers, answer)
	}
	if err := rows.Err(); err != nil {
		return contextutils.WrapError(err, "failed to iterate answers")
	}

	question.Answers = answers
	return nil
}
