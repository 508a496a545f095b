// Package models defines data structures used throughout the adaptive learning application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// DifficultyLevel represents a question difficulty bucket
type DifficultyLevel string

// Difficulty levels, derived from a learner's proficiency
const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// IsValid reports whether the difficulty level is one of the known buckets
func (d DifficultyLevel) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// MasteryLevel represents a learner's overall standing on a topic
type MasteryLevel string

// Mastery levels, derived from a learner's proficiency
const (
	MasteryBeginner     MasteryLevel = "beginner"
	MasteryIntermediate MasteryLevel = "intermediate"
	MasteryAdvanced     MasteryLevel = "advanced"
)

// QuestionType represents the format of a question
type QuestionType string

// Question types
const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeEssay          QuestionType = "essay"
)

// IsValid reports whether the question type is known
func (q QuestionType) IsValid() bool {
	switch q {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeEssay:
		return true
	}
	return false
}

// InteractionStatus represents the outcome of an LLM interaction
type InteractionStatus string

// LLM interaction statuses
const (
	InteractionStatusSuccess InteractionStatus = "success"
	InteractionStatusFailed  InteractionStatus = "failed"
	InteractionStatusSkipped InteractionStatus = "skipped"
)

// PlanStatus represents the lifecycle state of a study plan
type PlanStatus string

// Study plan statuses
const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusArchived  PlanStatus = "archived"
)

// SessionStatus represents the state of a scheduled study session
type SessionStatus string

// Study session statuses
const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusSkipped   SessionStatus = "skipped"
)

// Resource types suggested by the recommendation engine
const (
	ResourceTypeVideo    = "video"
	ResourceTypeArticle  = "article"
	ResourceTypeExercise = "exercise"
)

// User represents a learner in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Email        string         `json:"email" yaml:"email"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int        `json:"id"`
		Name       string     `json:"name"`
		Email      string     `json:"email"`
		LastActive *time.Time `json:"last_active"`
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
	}{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		LastActive: nullTimeToPointer(u.LastActive),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func nullInt64ToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// Subject represents a field of study (e.g. mathematics)
type Subject struct {
	ID          int            `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description sql.NullString `json:"description" yaml:"description"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for Subject to handle sql.NullString properly
func (s Subject) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int       `json:"id"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}{
		ID:          s.ID,
		Name:        s.Name,
		Description: nullStringToPointer(s.Description),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	})
}

// Topic represents a unit of study inside a subject (e.g. fractions)
type Topic struct {
	ID          int                    `json:"id" yaml:"id"`
	SubjectID   int                    `json:"subject_id" yaml:"subject_id"`
	Name        string                 `json:"name" yaml:"name"`
	Description sql.NullString         `json:"description" yaml:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for Topic to handle sql.NullString properly
func (t Topic) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int                    `json:"id"`
		SubjectID   int                    `json:"subject_id"`
		Name        string                 `json:"name"`
		Description *string                `json:"description"`
		Metadata    map[string]interface{} `json:"metadata,omitempty"`
		CreatedAt   time.Time              `json:"created_at"`
		UpdatedAt   time.Time              `json:"updated_at"`
	}{
		ID:          t.ID,
		SubjectID:   t.SubjectID,
		Name:        t.Name,
		Description: nullStringToPointer(t.Description),
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
}

// Question represents a practice question attached to a topic
type Question struct {
	ID          int             `json:"id" yaml:"id"`
	TopicID     int             `json:"topic_id" yaml:"topic_id"`
	Content     string          `json:"content" yaml:"content"`
	Type        QuestionType    `json:"type" yaml:"type"`
	Difficulty  DifficultyLevel `json:"difficulty" yaml:"difficulty"`
	Explanation sql.NullString  `json:"explanation" yaml:"explanation"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" yaml:"updated_at"`

	// Relationships
	Answers []Answer `json:"answers,omitempty" yaml:"answers,omitempty"`
}

// MarshalJSON customizes JSON marshaling for Question to handle sql.NullString properly
func (q Question) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID          int             `json:"id"`
		TopicID     int             `json:"topic_id"`
		Content     string          `json:"content"`
		Type        QuestionType    `json:"type"`
		Difficulty  DifficultyLevel `json:"difficulty"`
		Explanation *string         `json:"explanation"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
		Answers     []Answer        `json:"answers,omitempty"`
	}{
		ID:          q.ID,
		TopicID:     q.TopicID,
		Content:     q.Content,
		Type:        q.Type,
		Difficulty:  q.Difficulty,
		Explanation: nullStringToPointer(q.Explanation),
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
		Answers:     q.Answers,
	})
}

// Answer represents one answer option for a question
type Answer struct {
	ID         int       `json:"id" yaml:"id"`
	QuestionID int       `json:"question_id" yaml:"question_id"`
	Content    string    `json:"content" yaml:"content"`
	IsCorrect  bool      `json:"is_correct" yaml:"is_correct"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// UserProgress tracks a learner's proficiency on a single topic.
// Proficiency is always a fraction in [0, 1]; it is rendered as a
// percentage only at the presentation layer.
type UserProgress struct {
	ID                int          `json:"id" yaml:"id"`
	UserID            int          `json:"user_id" yaml:"user_id"`
	TopicID           int          `json:"topic_id" yaml:"topic_id"`
	Proficiency       float64      `json:"proficiency" yaml:"proficiency"`
	MasteryLevel      MasteryLevel `json:"mastery_level" yaml:"mastery_level"`
	QuestionsAnswered int          `json:"questions_answered" yaml:"questions_answered"`
	QuestionsCorrect  int          `json:"questions_correct" yaml:"questions_correct"`
	LearningStreak    int          `json:"learning_streak" yaml:"learning_streak"`
	FocusAreas        []string     `json:"focus_areas" yaml:"focus_areas"`
	LastInteraction   sql.NullTime `json:"last_interaction" yaml:"last_interaction"`
	CreatedAt         time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" yaml:"updated_at"`
}

// ProficiencyPercent returns the proficiency as a percentage for display
func (p *UserProgress) ProficiencyPercent() float64 {
	return p.Proficiency * 100
}

// MarshalJSON customizes JSON marshaling for UserProgress to handle sql.NullTime
// and expose the display percentage alongside the raw fraction
func (p UserProgress) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID                 int          `json:"id"`
		UserID             int          `json:"user_id"`
		TopicID            int          `json:"topic_id"`
		Proficiency        float64      `json:"proficiency"`
		ProficiencyPercent float64      `json:"proficiency_percent"`
		MasteryLevel       MasteryLevel `json:"mastery_level"`
		QuestionsAnswered  int          `json:"questions_answered"`
		QuestionsCorrect   int          `json:"questions_correct"`
		LearningStreak     int          `json:"learning_streak"`
		FocusAreas         []string     `json:"focus_areas"`
		LastInteraction    *time.Time   `json:"last_interaction"`
		CreatedAt          time.Time    `json:"created_at"`
		UpdatedAt          time.Time    `json:"updated_at"`
	}{
		ID:                 p.ID,
		UserID:             p.UserID,
		TopicID:            p.TopicID,
		Proficiency:        p.Proficiency,
		ProficiencyPercent: p.ProficiencyPercent(),
		MasteryLevel:       p.MasteryLevel,
		QuestionsAnswered:  p.QuestionsAnswered,
		QuestionsCorrect:   p.QuestionsCorrect,
		LearningStreak:     p.LearningStreak,
		FocusAreas:         p.FocusAreas,
		LastInteraction:    nullTimeToPointer(p.LastInteraction),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	})
}

// AnswerEvent records a single submitted answer with its timing
type AnswerEvent struct {
	ID               int           `json:"id" yaml:"id"`
	UserID           int           `json:"user_id" yaml:"user_id"`
	QuestionID       int           `json:"question_id" yaml:"question_id"`
	TopicID          int           `json:"topic_id" yaml:"topic_id"`
	AnswerID         sql.NullInt64 `json:"answer_id" yaml:"answer_id"`
	IsCorrect        bool          `json:"is_correct" yaml:"is_correct"`
	TimeTakenSeconds float64       `json:"time_taken_seconds" yaml:"time_taken_seconds"`
	CreatedAt        time.Time     `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for AnswerEvent to handle sql.NullInt64 properly
func (e AnswerEvent) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID               int       `json:"id"`
		UserID           int       `json:"user_id"`
		QuestionID       int       `json:"question_id"`
		TopicID          int       `json:"topic_id"`
		AnswerID         *int64    `json:"answer_id"`
		IsCorrect        bool      `json:"is_correct"`
		TimeTakenSeconds float64   `json:"time_taken_seconds"`
		CreatedAt        time.Time `json:"created_at"`
	}{
		ID:               e.ID,
		UserID:           e.UserID,
		QuestionID:       e.QuestionID,
		TopicID:          e.TopicID,
		AnswerID:         nullInt64ToPointer(e.AnswerID),
		IsCorrect:        e.IsCorrect,
		TimeTakenSeconds: e.TimeTakenSeconds,
		CreatedAt:        e.CreatedAt,
	})
}

// ExplanationCacheEntry is a durable cached explanation keyed by
// question, difficulty, and whether it was personalized
type ExplanationCacheEntry struct {
	ID              int             `json:"id" yaml:"id"`
	QuestionID      int             `json:"question_id" yaml:"question_id"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level" yaml:"difficulty_level"`
	IsPersonalized  bool            `json:"is_personalized" yaml:"is_personalized"`
	Explanation     string          `json:"explanation" yaml:"explanation"`
	ModelUsed       sql.NullString  `json:"model_used" yaml:"model_used"`
	TokensUsed      sql.NullInt64   `json:"tokens_used" yaml:"tokens_used"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for ExplanationCacheEntry to handle sql.Null types
func (e ExplanationCacheEntry) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int             `json:"id"`
		QuestionID      int             `json:"question_id"`
		DifficultyLevel DifficultyLevel `json:"difficulty_level"`
		IsPersonalized  bool            `json:"is_personalized"`
		Explanation     string          `json:"explanation"`
		ModelUsed       *string         `json:"model_used"`
		TokensUsed      *int64          `json:"tokens_used"`
		CreatedAt       time.Time       `json:"created_at"`
	}{
		ID:              e.ID,
		QuestionID:      e.QuestionID,
		DifficultyLevel: e.DifficultyLevel,
		IsPersonalized:  e.IsPersonalized,
		Explanation:     e.Explanation,
		ModelUsed:       nullStringToPointer(e.ModelUsed),
		TokensUsed:      nullInt64ToPointer(e.TokensUsed),
		CreatedAt:       e.CreatedAt,
	})
}

// LLMInteraction is an audit log row for every LLM call, including
// skipped and failed ones
type LLMInteraction struct {
	ID              int                    `json:"id" yaml:"id"`
	UserID          sql.NullInt64          `json:"user_id" yaml:"user_id"`
	InteractionType string                 `json:"interaction_type" yaml:"interaction_type"`
	Prompt          string                 `json:"prompt" yaml:"prompt"`
	Response        sql.NullString         `json:"response" yaml:"response"`
	ModelUsed       sql.NullString         `json:"model_used" yaml:"model_used"`
	TokensUsed      sql.NullInt64          `json:"tokens_used" yaml:"tokens_used"`
	Status          InteractionStatus      `json:"status" yaml:"status"`
	ErrorMessage    sql.NullString         `json:"error_message" yaml:"error_message"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for LLMInteraction to handle sql.Null types
func (i LLMInteraction) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int                    `json:"id"`
		UserID          *int64                 `json:"user_id"`
		InteractionType string                 `json:"interaction_type"`
		Prompt          string                 `json:"prompt"`
		Response        *string                `json:"response"`
		ModelUsed       *string                `json:"model_used"`
		TokensUsed      *int64                 `json:"tokens_used"`
		Status          InteractionStatus      `json:"status"`
		ErrorMessage    *string                `json:"error_message"`
		Metadata        map[string]interface{} `json:"metadata,omitempty"`
		CreatedAt       time.Time              `json:"created_at"`
	}{
		ID:              i.ID,
		UserID:          nullInt64ToPointer(i.UserID),
		InteractionType: i.InteractionType,
		Prompt:          i.Prompt,
		Response:        nullStringToPointer(i.Response),
		ModelUsed:       nullStringToPointer(i.ModelUsed),
		TokensUsed:      nullInt64ToPointer(i.TokensUsed),
		Status:          i.Status,
		ErrorMessage:    nullStringToPointer(i.ErrorMessage),
		Metadata:        i.Metadata,
		CreatedAt:       i.CreatedAt,
	})
}

// LearningInsight is a stored performance analysis produced by the LLM
type LearningInsight struct {
	ID              int            `json:"id" yaml:"id"`
	UserID          int            `json:"user_id" yaml:"user_id"`
	Strengths       []string       `json:"strengths" yaml:"strengths"`
	Weaknesses      []string       `json:"weaknesses" yaml:"weaknesses"`
	Patterns        []string       `json:"patterns" yaml:"patterns"`
	Recommendations []string       `json:"recommendations" yaml:"recommendations"`
	NextTopics      []string       `json:"next_topics" yaml:"next_topics"`
	ProgressSummary string         `json:"progress_summary" yaml:"progress_summary"`
	ModelUsed       sql.NullString `json:"model_used" yaml:"model_used"`
	CreatedAt       time.Time      `json:"created_at" yaml:"created_at"`
}

// MarshalJSON customizes JSON marshaling for LearningInsight to handle sql.NullString
func (l LearningInsight) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int       `json:"id"`
		UserID          int       `json:"user_id"`
		Strengths       []string  `json:"strengths"`
		Weaknesses      []string  `json:"weaknesses"`
		Patterns        []string  `json:"patterns"`
		Recommendations []string  `json:"recommendations"`
		NextTopics      []string  `json:"next_topics"`
		ProgressSummary string    `json:"progress_summary"`
		ModelUsed       *string   `json:"model_used"`
		CreatedAt       time.Time `json:"created_at"`
	}{
		ID:              l.ID,
		UserID:          l.UserID,
		Strengths:       l.Strengths,
		Weaknesses:      l.Weaknesses,
		Patterns:        l.Patterns,
		Recommendations: l.Recommendations,
		NextTopics:      l.NextTopics,
		ProgressSummary: l.ProgressSummary,
		ModelUsed:       nullStringToPointer(l.ModelUsed),
		CreatedAt:       l.CreatedAt,
	})
}

// Recommendation is a suggested next step for a learner on a weak topic.
// It is computed on demand and never persisted.
type Recommendation struct {
	TopicID      int             `json:"topic_id" yaml:"topic_id"`
	TopicName    string          `json:"topic_name" yaml:"topic_name"`
	Proficiency  float64         `json:"proficiency" yaml:"proficiency"`
	Difficulty   DifficultyLevel `json:"difficulty" yaml:"difficulty"`
	ResourceType string          `json:"resource_type" yaml:"resource_type"`
	Reason       string          `json:"reason" yaml:"reason"`
	NextReviewAt time.Time       `json:"next_review_at" yaml:"next_review_at"`
}

// StudyPlan is a personalized multi-week schedule for a subject
type StudyPlan struct {
	ID        int            `json:"id" yaml:"id"`
	UserID    int            `json:"user_id" yaml:"user_id"`
	SubjectID int            `json:"subject_id" yaml:"subject_id"`
	StartDate time.Time      `json:"start_date" yaml:"start_date"`
	EndDate   time.Time      `json:"end_date" yaml:"end_date"`
	Status    PlanStatus     `json:"status" yaml:"status"`
	Goals     sql.NullString `json:"goals" yaml:"goals"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`

	// Relationships
	Sessions []StudySession `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// MarshalJSON customizes JSON marshaling for StudyPlan to handle sql.NullString
func (p StudyPlan) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID        int            `json:"id"`
		UserID    int            `json:"user_id"`
		SubjectID int            `json:"subject_id"`
		StartDate time.Time      `json:"start_date"`
		EndDate   time.Time      `json:"end_date"`
		Status    PlanStatus     `json:"status"`
		Goals     *string        `json:"goals"`
		CreatedAt time.Time      `json:"created_at"`
		UpdatedAt time.Time      `json:"updated_at"`
		Sessions  []StudySession `json:"sessions,omitempty"`
	}{
		ID:        p.ID,
		UserID:    p.UserID,
		SubjectID: p.SubjectID,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Status:    p.Status,
		Goals:     nullStringToPointer(p.Goals),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Sessions:  p.Sessions,
	})
}

// StudySession is one scheduled block of study inside a plan
type StudySession struct {
	ID              int           `json:"id" yaml:"id"`
	PlanID          int           `json:"plan_id" yaml:"plan_id"`
	TopicID         sql.NullInt64 `json:"topic_id" yaml:"topic_id"`
	ScheduledDate   time.Time     `json:"scheduled_date" yaml:"scheduled_date"`
	DurationMinutes int           `json:"duration_minutes" yaml:"duration_minutes"`
	Resources       []string      `json:"resources" yaml:"resources"`
	Activities      []string      `json:"activities" yaml:"activities"`
	Status          SessionStatus `json:"status" yaml:"status"`
	CreatedAt       time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for StudySession to handle sql.NullInt64
func (s StudySession) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID              int           `json:"id"`
		PlanID          int           `json:"plan_id"`
		TopicID         *int64        `json:"topic_id"`
		ScheduledDate   time.Time     `json:"scheduled_date"`
		DurationMinutes int           `json:"duration_minutes"`
		Resources       []string      `json:"resources"`
		Activities      []string      `json:"activities"`
		Status          SessionStatus `json:"status"`
		CreatedAt       time.Time     `json:"created_at"`
		UpdatedAt       time.Time     `json:"updated_at"`
	}{
		ID:              s.ID,
		PlanID:          s.PlanID,
		TopicID:         nullInt64ToPointer(s.TopicID),
		ScheduledDate:   s.ScheduledDate,
		DurationMinutes: s.DurationMinutes,
		Resources:       s.Resources,
		Activities:      s.Activities,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	})
}

// TopicPerformance is an aggregate of a learner's answer events on one topic
type TopicPerformance struct {
	TopicID        int     `json:"topic_id" yaml:"topic_id"`
	TopicName      string  `json:"topic_name" yaml:"topic_name"`
	TotalAnswers   int     `json:"total_answers" yaml:"total_answers"`
	CorrectAnswers int     `json:"correct_answers" yaml:"correct_answers"`
	AvgTimeSeconds float64 `json:"avg_time_seconds" yaml:"avg_time_seconds"`
}

// AccuracyPercent returns the share of correct answers as a percentage
func (p *TopicPerformance) AccuracyPercent() float64 {
	if p.TotalAnswers == 0 {
		return 0
	}
	return float64(p.CorrectAnswers) / float64(p.TotalAnswers) * 100
}
