package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aprenda/internal/config"
	"aprenda/internal/models"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// AnswerResult is the outcome of one submitted answer
type AnswerResult struct {
	IsCorrect       bool                   `json:"is_correct"`
	CorrectAnswerID *int                   `json:"correct_answer_id,omitempty"`
	Explanation     string                 `json:"explanation,omitempty"`
	Proficiency     float64                `json:"proficiency"`
	MasteryLevel    models.MasteryLevel    `json:"mastery_level"`
	NextDifficulty  models.DifficultyLevel `json:"next_difficulty"`
	LearningStreak  int                    `json:"learning_streak"`
}

// Periods accepted by GetPerformanceAnalysis
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

// TopicAnalysis is the per-topic detail of a performance analysis
type TopicAnalysis struct {
	TopicID           int                 `json:"topic_id"`
	TopicName         string              `json:"topic_name"`
	Proficiency       float64             `json:"proficiency"`
	MasteryLevel      models.MasteryLevel `json:"mastery_level"`
	QuestionsAnswered int                 `json:"questions_answered"`
	QuestionsCorrect  int                 `json:"questions_correct"`
	LearningStreak    int                 `json:"learning_streak"`
}

// PerformanceAnalysis aggregates a user's progress over a period
type PerformanceAnalysis struct {
	Period             string           `json:"period"`
	TopicsStudied      int              `json:"topics_studied"`
	QuestionsAnswered  int              `json:"questions_answered"`
	QuestionsCorrect   int              `json:"questions_correct"`
	Accuracy           float64          `json:"accuracy"`
	AverageProficiency float64          `json:"average_proficiency"`
	Topics             []*TopicAnalysis `json:"topics"`
}

// AdaptiveService selects questions matched to a user's proficiency and
// folds answer outcomes back into their progress
type AdaptiveService interface {
	// GetNextQuestions returns up to limit questions for a topic at the user's
	// current difficulty. An empty result is not an error.
	GetNextQuestions(ctx context.Context, userID, topicID, limit int) ([]*models.Question, error)

	// SubmitAnswer grades one answer, records the event, and updates progress
	SubmitAnswer(ctx context.Context, userID, questionID, answerID int, timeTakenSeconds float64) (*AnswerResult, error)

	// GetPerformanceAnalysis aggregates the user's progress rows, optionally
	// scoped to one topic, over the given period (week, month, or all)
	GetPerformanceAnalysis(ctx context.Context, userID int, topicID *int, period string) (*PerformanceAnalysis, error)

	// GetRecommendations suggests review work for the user's weakest topics,
	// or for one topic when topicID is set
	GetRecommendations(ctx context.Context, userID int, topicID *int) ([]*models.Recommendation, error)
}

// AdaptiveServiceImpl implements AdaptiveService
type AdaptiveServiceImpl struct {
	cfg       *config.Config
	logger    *observability.Logger
	progress  ProgressService
	questions QuestionService
	topics    TopicService
	events    AnswerEventService
}

// NewAdaptiveService creates a new adaptive service
func NewAdaptiveService(
	cfg *config.Config,
	logger *observability.Logger,
	progress ProgressService,
	questions QuestionService,
	topics TopicService,
	events AnswerEventService,
) AdaptiveService {
	return &AdaptiveServiceImpl{
		cfg:       cfg,
		logger:    logger,
		progress:  progress,
		questions: questions,
		topics:    topics,
		events:    events,
	}
}

// GetNextQuestions returns up to limit questions for a topic at the user's current difficulty
func (s *AdaptiveServiceImpl) GetNextQuestions(ctx context.Context, userID, topicID, limit int) (result []*models.Question, err error) {
	ctx, span := observability.TraceAdaptiveFunction(ctx, "get_next_questions",
		observability.AttributeUserID(userID),
		observability.AttributeTopicID(topicID),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = config.DefaultQuestionCount
	}

	if _, err = s.topics.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}

	proficiency := 0.0
	progress, err := s.progress.GetProgress(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		proficiency = progress.Proficiency
	}

	difficulty := DifficultyForProficiency(proficiency)
	span.SetAttributes(
		observability.AttributeProficiency(proficiency),
		observability.AttributeDifficulty(string(difficulty)),
	)

	questions, err := s.questions.GetQuestionsByTopic(ctx, topicID, difficulty, limit)
	if err != nil {
		return nil, err
	}

	if len(questions) == 0 {
		s.logger.Info(ctx, "No questions available for topic", map[string]interface{}{
			"user_id":  userID,
			"topic_id": topicID,
		})
	}

	return questions, nil
}

// SubmitAnswer grades one answer, records the event, and updates progress
func (s *AdaptiveServiceImpl) SubmitAnswer(ctx context.Context, userID, questionID, answerID int, timeTakenSeconds float64) (result *AnswerResult, err error) {
	ctx, span := observability.TraceAdaptiveFunction(ctx, "submit_answer",
		observability.AttributeUserID(userID),
		observability.AttributeQuestionID(questionID),
		attribute.Float64("answer.time_taken_seconds", timeTakenSeconds),
	)
	defer observability.FinishSpan(span, &err)

	if timeTakenSeconds < 0 {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "time taken must not be negative", "")
	}

	question, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	var selected *models.Answer
	for i := range question.Answers {
		if question.Answers[i].ID == answerID {
			selected = &question.Answers[i]
			break
		}
	}
	if selected == nil {
		return nil, contextutils.ErrInvalidAnswer
	}

	event := &models.AnswerEvent{
		UserID:           userID,
		QuestionID:       questionID,
		TopicID:          question.TopicID,
		AnswerID:         newNullInt64(answerID),
		IsCorrect:        selected.IsCorrect,
		TimeTakenSeconds: timeTakenSeconds,
	}
	if err = s.events.RecordAnswer(ctx, event); err != nil {
		return nil, err
	}

	progress, err := s.progress.ApplyAnswer(ctx, userID, question.TopicID, selected.IsCorrect, timeTakenSeconds)
	if err != nil {
		return nil, err
	}

	answerResult := &AnswerResult{
		IsCorrect:      selected.IsCorrect,
		Proficiency:    progress.Proficiency,
		MasteryLevel:   progress.MasteryLevel,
		NextDifficulty: DifficultyForProficiency(progress.Proficiency),
		LearningStreak: progress.LearningStreak,
	}
	if question.Explanation.Valid {
		answerResult.Explanation = question.Explanation.String
	}
	correctAnswer, err := s.questions.GetCorrectAnswer(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if correctAnswer != nil {
		id := correctAnswer.ID
		answerResult.CorrectAnswerID = &id
	}

	span.SetAttributes(
		attribute.Bool("answer.correct", selected.IsCorrect),
		observability.AttributeProficiency(progress.Proficiency),
	)
	return answerResult, nil
}

// GetPerformanceAnalysis aggregates the user's progress rows over a period
func (s *AdaptiveServiceImpl) GetPerformanceAnalysis(ctx context.Context, userID int, topicID *int, period string) (result *PerformanceAnalysis, err error) {
	ctx, span := observability.TraceAdaptiveFunction(ctx, "get_performance_analysis",
		observability.AttributeUserID(userID),
		attribute.String("analysis.period", period),
	)
	defer observability.FinishSpan(span, &err)

	cutoff, err := periodCutoff(period)
	if err != nil {
		return nil, err
	}

	var rows []*models.UserProgress
	if topicID != nil {
		span.SetAttributes(observability.AttributeTopicID(*topicID))
		if _, err = s.topics.GetTopic(ctx, *topicID); err != nil {
			return nil, err
		}
		progress, progressErr := s.progress.GetProgress(ctx, userID, *topicID)
		if progressErr != nil {
			err = progressErr
			return nil, err
		}
		if progress != nil {
			rows = append(rows, progress)
		}
	} else {
		rows, err = s.progress.GetAllProgress(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	analysis := &PerformanceAnalysis{Period: period, Topics: []*TopicAnalysis{}}
	proficiencySum := 0.0
	for _, progress := range rows {
		if !cutoff.IsZero() && (!progress.LastInteraction.Valid || progress.LastInteraction.Time.Before(cutoff)) {
			continue
		}
		topic, topicErr := s.topics.GetTopic(ctx, progress.TopicID)
		if topicErr != nil {
			err = topicErr
			return nil, err
		}
		analysis.Topics = append(analysis.Topics, &TopicAnalysis{
			TopicID:           topic.ID,
			TopicName:         topic.Name,
			Proficiency:       progress.Proficiency,
			MasteryLevel:      progress.MasteryLevel,
			QuestionsAnswered: progress.QuestionsAnswered,
			QuestionsCorrect:  progress.QuestionsCorrect,
			LearningStreak:    progress.LearningStreak,
		})
		analysis.QuestionsAnswered += progress.QuestionsAnswered
		analysis.QuestionsCorrect += progress.QuestionsCorrect
		proficiencySum += progress.Proficiency
	}

	analysis.TopicsStudied = len(analysis.Topics)
	if analysis.TopicsStudied > 0 {
		analysis.AverageProficiency = proficiencySum / float64(analysis.TopicsStudied)
	}
	if analysis.QuestionsAnswered > 0 {
		analysis.Accuracy = float64(analysis.QuestionsCorrect) / float64(analysis.QuestionsAnswered)
	}

	span.SetAttributes(attribute.Int("analysis.topic_count", analysis.TopicsStudied))
	return analysis, nil
}

// periodCutoff maps a period name to the earliest last_interaction that
// still counts. The zero time means no cutoff.
func periodCutoff(period string) (time.Time, error) {
	switch period {
	case PeriodWeek:
		return time.Now().AddDate(0, 0, -7), nil
	case PeriodMonth:
		return time.Now().AddDate(0, -1, 0), nil
	case PeriodAll, "":
		return time.Time{}, nil
	default:
		return time.Time{}, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "period must be week, month, or all", period)
	}
}

// GetRecommendations suggests review work for the user's weakest topics
func (s *AdaptiveServiceImpl) GetRecommendations(ctx context.Context, userID int, topicID *int) (result []*models.Recommendation, err error) {
	ctx, span := observability.TraceAdaptiveFunction(ctx, "get_recommendations",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var weakest []*models.UserProgress
	if topicID != nil {
		span.SetAttributes(observability.AttributeTopicID(*topicID))
		if _, err = s.topics.GetTopic(ctx, *topicID); err != nil {
			return nil, err
		}
		progress, progressErr := s.progress.GetProgress(ctx, userID, *topicID)
		if progressErr != nil {
			err = progressErr
			return nil, err
		}
		if progress == nil {
			progress = &models.UserProgress{UserID: userID, TopicID: *topicID, MasteryLevel: models.MasteryBeginner}
		}
		weakest = []*models.UserProgress{progress}
	} else {
		weakest, err = s.progress.GetWeakestTopics(ctx, userID, config.RecommendationTopicCount)
		if err != nil {
			return nil, err
		}
	}

	nextReview := time.Now().Add(config.ReviewInterval)
	recommendations := make([]*models.Recommendation, 0, len(weakest))
	for _, progress := range weakest {
		topic, topicErr := s.topics.GetTopic(ctx, progress.TopicID)
		if topicErr != nil {
			err = topicErr
			return nil, err
		}

		recommendations = append(recommendations, &models.Recommendation{
			TopicID:      topic.ID,
			TopicName:    topic.Name,
			Proficiency:  progress.Proficiency,
			Difficulty:   DifficultyForProficiency(progress.Proficiency),
			ResourceType: resourceTypeForProficiency(progress.Proficiency),
			Reason:       recommendationReason(topic.Name, progress),
			NextReviewAt: nextReview,
		})
	}

	span.SetAttributes(attribute.Int("recommendations.count", len(recommendations)))
	return recommendations, nil
}

// resourceTypeForProficiency picks the study resource kind. Weak topics get
// videos for grounding, middling ones articles, strong ones exercises.
func resourceTypeForProficiency(p float64) string {
	switch {
	case p < EasyDifficultyCeiling:
		return models.ResourceTypeVideo
	case p < MediumDifficultyCeiling:
		return models.ResourceTypeArticle
	default:
		return models.ResourceTypeExercise
	}
}

func recommendationReason(topicName string, progress *models.UserProgress) string {
	if progress.QuestionsAnswered == 0 {
		return fmt.Sprintf("You have not practiced %s yet", topicName)
	}
	return fmt.Sprintf("Your proficiency in %s is %.0f%%, below your other topics", topicName, progress.Proficiency*100)
}

func newNullInt64(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
