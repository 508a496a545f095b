package commands

import (
	"context"
	"database/sql"

	"aprenda/internal/models"
	"aprenda/internal/observability"
	"aprenda/internal/services"
	contextutils "aprenda/internal/utils"

	"github.com/spf13/cobra"
)

// seedQuestion is one sample question with its answer choices
type seedQuestion struct {
	content     string
	difficulty  models.DifficultyLevel
	explanation string
	answers     []string
	correct     int
}

// seedTopic groups sample questions under a topic name
type seedTopic struct {
	name        string
	description string
	questions   []seedQuestion
}

var seedData = map[string][]seedTopic{
	"Mathematics": {
		{
			name:        "Arithmetic",
			description: "Basic operations on whole numbers",
			questions: []seedQuestion{
				{
					content:     "What is 7 x 8?",
					difficulty:  models.DifficultyEasy,
					explanation: "7 groups of 8 make 56.",
					answers:     []string{"54", "56", "64", "48"},
					correct:     1,
				},
				{
					content:     "What is 144 / 12?",
					difficulty:  models.DifficultyMedium,
					explanation: "12 x 12 = 144, so 144 / 12 = 12.",
					answers:     []string{"10", "11", "12", "14"},
					correct:     2,
				},
			},
		},
		{
			name:        "Algebra",
			description: "Solving equations and working with variables",
			questions: []seedQuestion{
				{
					content:     "Solve for x: 2x + 3 = 11",
					difficulty:  models.DifficultyMedium,
					explanation: "Subtract 3 from both sides to get 2x = 8, then divide by 2.",
					answers:     []string{"3", "4", "5", "7"},
					correct:     1,
				},
				{
					content:     "If f(x) = x^2 - 2x, what is f(3)?",
					difficulty:  models.DifficultyHard,
					explanation: "f(3) = 9 - 6 = 3.",
					answers:     []string{"3", "6", "9", "15"},
					correct:     0,
				},
			},
		},
	},
	"Science": {
		{
			name:        "Biology",
			description: "Cells, organisms, and ecosystems",
			questions: []seedQuestion{
				{
					content:     "Which organelle produces most of a cell's energy?",
					difficulty:  models.DifficultyEasy,
					explanation: "Mitochondria carry out cellular respiration, which produces ATP.",
					answers:     []string{"Nucleus", "Ribosome", "Mitochondrion", "Golgi apparatus"},
					correct:     2,
				},
			},
		},
	},
}

// SeedCommands returns the content seeding commands
func SeedCommands(topicService services.TopicService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed sample subjects, topics, and questions",
		Long:  `Seed the database with a small set of sample subjects, topics, and multiple-choice questions for development.`,
		RunE:  runSeed(topicService, logger, db),
	}
}

// runSeed returns a function that inserts the sample content
func runSeed(topicService services.TopicService, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		var topicsCreated, questionsCreated int

		for subjectName, topics := range seedData {
			subject, err := topicService.GetOrCreateSubject(ctx, subjectName, "")
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to create subject %s", subjectName)
			}

			for _, st := range topics {
				topic, err := topicService.FindTopicByName(ctx, subject.ID, st.name)
				if err != nil {
					return contextutils.WrapErrorf(err, "failed to look up topic %s", st.name)
				}
				if topic == nil {
					topic, err = topicService.CreateTopic(ctx, subject.ID, st.name, st.description, map[string]interface{}{"source": "seed"})
					if err != nil {
						return contextutils.WrapErrorf(err, "failed to create topic %s", st.name)
					}
					topicsCreated++
				}

				for _, q := range st.questions {
					created, err := insertQuestion(ctx, db, topic.ID, q)
					if err != nil {
						return contextutils.WrapErrorf(err, "failed to seed question for topic %s", st.name)
					}
					if created {
						questionsCreated++
					}
				}
			}
		}

		logger.Info(ctx, "Seed completed", map[string]interface{}{
			"topics_created":    topicsCreated,
			"questions_created": questionsCreated,
		})
		return nil
	}
}

// insertQuestion inserts a question and its answers unless the question already exists
func insertQuestion(ctx context.Context, db *sql.DB, topicID int, q seedQuestion) (bool, error) {
	var existing int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM questions WHERE topic_id = $1 AND content = $2",
		topicID, q.content,
	).Scan(&existing)
	if err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	var questionID int
	err = db.QueryRowContext(ctx, `
		INSERT INTO questions (topic_id, content, question_type, difficulty, explanation)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, topicID, q.content, models.QuestionTypeMultipleChoice, q.difficulty, q.explanation).Scan(&questionID)
	if err != nil {
		return false, err
	}

	for i, answer := range q.answers {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO answers (question_id, content, is_correct)
			VALUES ($1, $2, $3)
		`, questionID, answer, i == q.correct); err != nil {
			return false, err
		}
	}

	return true, nil
}
