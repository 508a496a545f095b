package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"aprenda/internal/models"
	contextutils "aprenda/internal/utils"
)

// In-memory fakes for the store interfaces, shared across the service tests

type fakeProgressService struct {
	rows    map[string]*models.UserProgress
	applied []string
}

func newFakeProgressService() *fakeProgressService {
	return &fakeProgressService{rows: map[string]*models.UserProgress{}}
}

func progressKey(userID, topicID int) string {
	return fmt.Sprintf("%d:%d", userID, topicID)
}

func (f *fakeProgressService) setProficiency(userID, topicID int, proficiency float64) {
	f.rows[progressKey(userID, topicID)] = &models.UserProgress{
		UserID:       userID,
		TopicID:      topicID,
		Proficiency:  proficiency,
		MasteryLevel: MasteryForProficiency(proficiency),
	}
}

func (f *fakeProgressService) setProgress(userID, topicID int, proficiency float64, answered, correct int, lastInteraction time.Time) {
	f.rows[progressKey(userID, topicID)] = &models.UserProgress{
		UserID:            userID,
		TopicID:           topicID,
		Proficiency:       proficiency,
		MasteryLevel:      MasteryForProficiency(proficiency),
		QuestionsAnswered: answered,
		QuestionsCorrect:  correct,
		LastInteraction:   sql.NullTime{Time: lastInteraction, Valid: true},
	}
}

func (f *fakeProgressService) GetProgress(_ context.Context, userID, topicID int) (*models.UserProgress, error) {
	return f.rows[progressKey(userID, topicID)], nil
}

func (f *fakeProgressService) GetAllProgress(_ context.Context, userID int) ([]*models.UserProgress, error) {
	var result []*models.UserProgress
	for _, row := range f.rows {
		if row.UserID == userID {
			result = append(result, row)
		}
	}
	return result, nil
}

func (f *fakeProgressService) GetWeakestTopics(_ context.Context, userID int, limit int) ([]*models.UserProgress, error) {
	all, _ := f.GetAllProgress(context.Background(), userID)
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].Proficiency < all[i].Proficiency {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeProgressService) ApplyAnswer(_ context.Context, userID, topicID int, correct bool, timeTakenSeconds float64) (*models.UserProgress, error) {
	key := progressKey(userID, topicID)
	row := f.rows[key]
	if row == nil {
		row = &models.UserProgress{UserID: userID, TopicID: topicID}
		f.rows[key] = row
	}
	row.Proficiency = NextProficiency(row.Proficiency, correct, timeTakenSeconds)
	row.MasteryLevel = MasteryForProficiency(row.Proficiency)
	row.QuestionsAnswered++
	if correct {
		row.QuestionsCorrect++
		row.LearningStreak++
	} else {
		row.LearningStreak = 0
	}
	f.applied = append(f.applied, key)
	return row, nil
}

type fakeQuestionService struct {
	questions map[int]*models.Question
	byTopic   map[string][]*models.Question
	requested []models.DifficultyLevel
}

func newFakeQuestionService() *fakeQuestionService {
	return &fakeQuestionService{
		questions: map[int]*models.Question{},
		byTopic:   map[string][]*models.Question{},
	}
}

func (f *fakeQuestionService) addQuestion(q *models.Question) {
	f.questions[q.ID] = q
	key := fmt.Sprintf("%d:%s", q.TopicID, q.Difficulty)
	f.byTopic[key] = append(f.byTopic[key], q)
}

func (f *fakeQuestionService) GetQuestion(_ context.Context, questionID int) (*models.Question, error) {
	q, ok := f.questions[questionID]
	if !ok {
		return nil, contextutils.ErrQuestionNotFound
	}
	return q, nil
}

func (f *fakeQuestionService) GetQuestionsByTopic(_ context.Context, topicID int, difficulty models.DifficultyLevel, limit int) ([]*models.Question, error) {
	f.requested = append(f.requested, difficulty)
	questions := f.byTopic[fmt.Sprintf("%d:%s", topicID, difficulty)]
	if len(questions) > limit {
		questions = questions[:limit]
	}
	return questions, nil
}

func (f *fakeQuestionService) GetCorrectAnswer(_ context.Context, questionID int) (*models.Answer, error) {
	q, ok := f.questions[questionID]
	if !ok {
		return nil, nil
	}
	for i := range q.Answers {
		if q.Answers[i].IsCorrect {
			return &q.Answers[i], nil
		}
	}
	return nil, nil
}

type fakeTopicService struct {
	subjects map[int]*models.Subject
	topics   map[int]*models.Topic
	nextID   int
	created  []string
	resolved []string
}

func newFakeTopicService() *fakeTopicService {
	return &fakeTopicService{
		subjects: map[int]*models.Subject{},
		topics:   map[int]*models.Topic{},
		nextID:   1,
	}
}

func (f *fakeTopicService) addSubject(id int, name string) {
	f.subjects[id] = &models.Subject{ID: id, Name: name}
}

func (f *fakeTopicService) addTopic(id, subjectID int, name string) {
	f.topics[id] = &models.Topic{ID: id, SubjectID: subjectID, Name: name}
	if id >= f.nextID {
		f.nextID = id + 1
	}
}

func (f *fakeTopicService) GetSubject(_ context.Context, subjectID int) (*models.Subject, error) {
	s, ok := f.subjects[subjectID]
	if !ok {
		return nil, contextutils.ErrTopicNotFound
	}
	return s, nil
}

func (f *fakeTopicService) GetOrCreateSubject(_ context.Context, name, _ string) (*models.Subject, error) {
	for _, s := range f.subjects {
		if s.Name == name {
			return s, nil
		}
	}
	s := &models.Subject{ID: f.nextID, Name: name}
	f.nextID++
	f.subjects[s.ID] = s
	return s, nil
}

func (f *fakeTopicService) GetTopic(_ context.Context, topicID int) (*models.Topic, error) {
	t, ok := f.topics[topicID]
	if !ok {
		return nil, contextutils.ErrTopicNotFound
	}
	return t, nil
}

func (f *fakeTopicService) GetTopicsBySubject(_ context.Context, subjectID int) ([]*models.Topic, error) {
	var result []*models.Topic
	for _, t := range f.topics {
		if t.SubjectID == subjectID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (f *fakeTopicService) FindTopicByName(_ context.Context, subjectID int, name string) (*models.Topic, error) {
	for _, t := range f.topics {
		if t.SubjectID == subjectID && strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTopicService) CreateTopic(_ context.Context, subjectID int, name, _ string, _ map[string]interface{}) (*models.Topic, error) {
	t := &models.Topic{ID: f.nextID, SubjectID: subjectID, Name: name}
	f.nextID++
	f.topics[t.ID] = t
	f.created = append(f.created, name)
	return t, nil
}

func (f *fakeTopicService) ResolveTopic(ctx context.Context, subjectID int, name string) (*models.Topic, error) {
	f.resolved = append(f.resolved, name)
	t, err := f.FindTopicByName(ctx, subjectID, name)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}
	return f.CreateTopic(ctx, subjectID, name, "", nil)
}

type fakeAnswerEventService struct {
	events      []*models.AnswerEvent
	performance []*models.TopicPerformance
}

func (f *fakeAnswerEventService) RecordAnswer(_ context.Context, event *models.AnswerEvent) error {
	event.ID = len(f.events) + 1
	event.CreatedAt = time.Now()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAnswerEventService) CountAnswers(_ context.Context, userID int) (int, error) {
	count := 0
	for _, e := range f.events {
		if e.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAnswerEventService) GetTopicPerformance(_ context.Context, _ int) ([]*models.TopicPerformance, error) {
	return f.performance, nil
}

type fakeExplanationCacheRepository struct {
	entries map[string]*models.ExplanationCacheEntry
	saves   int
}

func newFakeExplanationCacheRepository() *fakeExplanationCacheRepository {
	return &fakeExplanationCacheRepository{entries: map[string]*models.ExplanationCacheEntry{}}
}

func cacheKey(questionID int, difficulty models.DifficultyLevel, personalized bool) string {
	return fmt.Sprintf("%d:%s:%t", questionID, difficulty, personalized)
}

func (f *fakeExplanationCacheRepository) GetCachedExplanation(_ context.Context, questionID int, difficulty models.DifficultyLevel, personalized bool) (*models.ExplanationCacheEntry, error) {
	return f.entries[cacheKey(questionID, difficulty, personalized)], nil
}

func (f *fakeExplanationCacheRepository) SaveExplanation(_ context.Context, entry *models.ExplanationCacheEntry) error {
	f.saves++
	f.entries[cacheKey(entry.QuestionID, entry.DifficultyLevel, entry.IsPersonalized)] = entry
	return nil
}

type fakeLLMInteractionService struct {
	interactions []*models.LLMInteraction
}

func (f *fakeLLMInteractionService) RecordInteraction(_ context.Context, interaction *models.LLMInteraction) error {
	interaction.ID = len(f.interactions) + 1
	f.interactions = append(f.interactions, interaction)
	return nil
}

func (f *fakeLLMInteractionService) MarkFailed(_ context.Context, interactionID int, reason string) error {
	for _, interaction := range f.interactions {
		if interaction.ID == interactionID {
			interaction.Status = models.InteractionStatusFailed
			interaction.ErrorMessage = sql.NullString{String: reason, Valid: true}
			return nil
		}
	}
	return contextutils.ErrRecordNotFound
}

func (f *fakeLLMInteractionService) GetRecentInteractions(_ context.Context, _, _ int) ([]*models.LLMInteraction, error) {
	return f.interactions, nil
}

type fakeInsightService struct {
	saved []*models.LearningInsight
}

func (f *fakeInsightService) SaveInsight(_ context.Context, insight *models.LearningInsight) error {
	insight.ID = len(f.saved) + 1
	f.saved = append(f.saved, insight)
	return nil
}

func (f *fakeInsightService) GetLatestInsight(_ context.Context, _ int) (*models.LearningInsight, error) {
	if len(f.saved) == 0 {
		return nil, nil
	}
	return f.saved[len(f.saved)-1], nil
}

type fakeStudyPlanRepository struct {
	plans  map[int]*models.StudyPlan
	nextID int
}

func newFakeStudyPlanRepository() *fakeStudyPlanRepository {
	return &fakeStudyPlanRepository{plans: map[int]*models.StudyPlan{}, nextID: 1}
}

func (f *fakeStudyPlanRepository) CreatePlanWithSessions(_ context.Context, plan *models.StudyPlan) error {
	plan.ID = f.nextID
	f.nextID++
	for i := range plan.Sessions {
		plan.Sessions[i].ID = f.nextID
		plan.Sessions[i].PlanID = plan.ID
		f.nextID++
	}
	f.plans[plan.ID] = plan
	return nil
}

func (f *fakeStudyPlanRepository) GetPlan(_ context.Context, planID int) (*models.StudyPlan, error) {
	plan, ok := f.plans[planID]
	if !ok {
		return nil, contextutils.ErrStudyPlanNotFound
	}
	return plan, nil
}

func (f *fakeStudyPlanRepository) GetPlansByUser(_ context.Context, userID int) ([]*models.StudyPlan, error) {
	var result []*models.StudyPlan
	for _, plan := range f.plans {
		if plan.UserID == userID {
			result = append(result, plan)
		}
	}
	return result, nil
}

func (f *fakeStudyPlanRepository) UpdatePlanStatus(_ context.Context, planID int, status models.PlanStatus) error {
	plan, ok := f.plans[planID]
	if !ok {
		return contextutils.ErrStudyPlanNotFound
	}
	plan.Status = status
	return nil
}

func (f *fakeStudyPlanRepository) GetSession(_ context.Context, sessionID int) (*models.StudySession, error) {
	for _, plan := range f.plans {
		for i := range plan.Sessions {
			if plan.Sessions[i].ID == sessionID {
				return &plan.Sessions[i], nil
			}
		}
	}
	return nil, contextutils.ErrStudySessionNotFound
}

func (f *fakeStudyPlanRepository) UpdateSessionStatus(_ context.Context, sessionID int, status models.SessionStatus) error {
	session, err := f.GetSession(context.Background(), sessionID)
	if err != nil {
		return err
	}
	session.Status = status
	return nil
}

func (f *fakeStudyPlanRepository) RescheduleSession(_ context.Context, sessionID int, newDate time.Time) error {
	session, err := f.GetSession(context.Background(), sessionID)
	if err != nil {
		return err
	}
	session.ScheduledDate = newDate
	session.Status = models.SessionStatusPending
	return nil
}
