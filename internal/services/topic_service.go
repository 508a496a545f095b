package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// TopicService defines subject and topic catalog operations
type TopicService interface {
	// GetSubject retrieves a subject by ID
	GetSubject(ctx context.Context, subjectID int) (*models.Subject, error)

	// GetOrCreateSubject returns the subject with the given name, creating it if absent
	GetOrCreateSubject(ctx context.Context, name, description string) (*models.Subject, error)

	// GetTopic retrieves a topic by ID
	GetTopic(ctx context.Context, topicID int) (*models.Topic, error)

	// GetTopicsBySubject lists all topics under a subject
	GetTopicsBySubject(ctx context.Context, subjectID int) ([]*models.Topic, error)

	// FindTopicByName resolves a topic name within a subject using a fuzzy match:
	// exact case-insensitive first, then substring. Returns nil when nothing matches.
	FindTopicByName(ctx context.Context, subjectID int, name string) (*models.Topic, error)

	// CreateTopic creates a new topic under a subject
	CreateTopic(ctx context.Context, subjectID int, name, description string, metadata map[string]interface{}) (*models.Topic, error)

	// ResolveTopic finds a topic by fuzzy name match or creates it when missing
	ResolveTopic(ctx context.Context, subjectID int, name string) (*models.Topic, error)
}

// TopicServiceImpl implements TopicService
type TopicServiceImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewTopicService creates a new topic service
func NewTopicService(db *sql.DB, logger *observability.Logger) TopicService {
	return &TopicServiceImpl{
		db:     db,
		logger: logger,
	}
}

// GetSubject retrieves a subject by ID
func (s *TopicServiceImpl) GetSubject(ctx context.Context, subjectID int) (result *models.Subject, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_subject",
		observability.AttributeSubjectID(subjectID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, name, description, created_at, updated_at
		FROM subjects
		WHERE id = $1
	`

	subject := &models.Subject{}
	err = s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&subject.ID,
		&subject.Name,
		&subject.Description,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrTopicNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query subject")
		return nil, err
	}

	return subject, nil
}

// GetOrCreateSubject returns the subject with the given name, creating it if absent
func (s *TopicServiceImpl) GetOrCreateSubject(ctx context.Context, name, description string) (result *models.Subject, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_or_create_subject",
		attribute.String("subject.name", name),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		INSERT INTO subjects (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
		RETURNING id, name, description, created_at, updated_at
	`

	subject := &models.Subject{}
	err = s.db.QueryRowContext(ctx, query, name, newNullString(description)).Scan(
		&subject.ID,
		&subject.Name,
		&subject.Description,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		err = contextutils.WrapError(err, "failed to get or create subject")
		return nil, err
	}

	return subject, nil
}

// GetTopic retrieves a topic by ID
func (s *TopicServiceImpl) GetTopic(ctx context.Context, topicID int) (result *models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_topic",
		observability.AttributeTopicID(topicID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, subject_id, name, description, metadata, created_at, updated_at
		FROM topics
		WHERE id = $1
	`

	topic, err := s.scanTopic(s.db.QueryRowContext(ctx, query, topicID))
	if err == sql.ErrNoRows {
		return nil, contextutils.ErrTopicNotFound
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query topic")
		return nil, err
	}

	return topic, nil
}

// GetTopicsBySubject lists all topics under a subject
func (s *TopicServiceImpl) GetTopicsBySubject(ctx context.Context, subjectID int) (result []*models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_topics_by_subject",
		observability.AttributeSubjectID(subjectID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, subject_id, name, description, metadata, created_at, updated_at
		FROM topics
		WHERE subject_id = $1
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		err = contextutils.WrapError(err, "failed to query topics")
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var topics []*models.Topic
	for rows.Next() {
		topic, scanErr := s.scanTopic(rows)
		if scanErr != nil {
			err = contextutils.WrapError(scanErr, "failed to scan topic")
			return nil, err
		}
		topics = append(topics, topic)
	}
	if err = rows.Err(); err != nil {
		err = contextutils.WrapError(err, "failed to iterate topics")
		return nil, err
	}

	span.SetAttributes(attribute.Int("topics.count", len(topics)))
	return topics, nil
}

// FindTopicByName resolves a topic name within a subject using a fuzzy match
func (s *TopicServiceImpl) FindTopicByName(ctx context.Context, subjectID int, name string) (result *models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "find_topic_by_name",
		observability.AttributeSubjectID(subjectID),
		attribute.String("topic.name", name),
	)
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	// Exact case-insensitive match wins over a substring match
	query := `
		SELECT id, subject_id, name, description, metadata, created_at, updated_at
		FROM topics
		WHERE subject_id = $1 AND LOWER(name) = LOWER($2)
	`
	topic, err := s.scanTopic(s.db.QueryRowContext(ctx, query, subjectID, name))
	if err == nil {
		span.SetAttributes(attribute.String("topic.match", "exact"))
		return topic, nil
	}
	if err != sql.ErrNoRows {
		err = contextutils.WrapError(err, "failed to query topic by name")
		return nil, err
	}

	query = `
		SELECT id, subject_id, name, description, metadata, created_at, updated_at
		FROM topics
		WHERE subject_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY LENGTH(name)
		LIMIT 1
	`
	topic, err = s.scanTopic(s.db.QueryRowContext(ctx, query, subjectID, name))
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.String("topic.match", "none"))
		return nil, nil
	}
	if err != nil {
		err = contextutils.WrapError(err, "failed to query topic by partial name")
		return nil, err
	}

	span.SetAttributes(attribute.String("topic.match", "partial"))
	return topic, nil
}

// CreateTopic creates a new topic under a subject
func (s *TopicServiceImpl) CreateTopic(ctx context.Context, subjectID int, name, description string, metadata map[string]interface{}) (result *models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_topic",
		observability.AttributeSubjectID(subjectID),
		attribute.String("topic.name", name),
	)
	defer observability.FinishSpan(span, &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn, "topic name is required", "")
	}

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		err = contextutils.WrapError(err, "failed to marshal topic metadata")
		return nil, err
	}

	query := `
		INSERT INTO topics (subject_id, name, description, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, subject_id, name, description, metadata, created_at, updated_at
	`

	topic, err := s.scanTopic(s.db.QueryRowContext(ctx, query, subjectID, name, newNullString(description), metadataJSON))
	if err != nil {
		err = contextutils.WrapError(err, "failed to create topic")
		return nil, err
	}

	span.SetAttributes(observability.AttributeTopicID(topic.ID))
	return topic, nil
}

// ResolveTopic finds a topic by fuzzy name match or creates it when missing
func (s *TopicServiceImpl) ResolveTopic(ctx context.Context, subjectID int, name string) (result *models.Topic, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "resolve_topic",
		observability.AttributeSubjectID(subjectID),
		attribute.String("topic.name", name),
	)
	defer observability.FinishSpan(span, &err)

	topic, err := s.FindTopicByName(ctx, subjectID, name)
	if err != nil {
		return nil, err
	}
	if topic != nil {
		span.SetAttributes(attribute.Bool("topic.created", false))
		return topic, nil
	}

	topic, err = s.CreateTopic(ctx, subjectID, name, "", map[string]interface{}{"source": "study_plan"})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("topic.created", true))
	s.logger.Info(ctx, "Created topic from unresolved name", map[string]interface{}{
		"subject_id": subjectID,
		"topic_id":   topic.ID,
		"name":       topic.Name,
	})
	return topic, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan code
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *TopicServiceImpl) scanTopic(row rowScanner) (*models.Topic, error) {
	topic := &models.Topic{}
	var metadataJSON []byte
	err := row.Scan(
		&topic.ID,
		&topic.SubjectID,
		&topic.Name,
		&topic.Description,
		&metadataJSON,
		&topic.CreatedAt,
		&topic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &topic.Metadata); err != nil {
			return nil, contextutils.WrapError(err, "failed to unmarshal topic metadata")
		}
	}
	return topic, nil
}

func newNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
