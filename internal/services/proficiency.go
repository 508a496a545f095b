// Package services contains the business logic for adaptive learning,
// explanations, insights, and study plans.
package services

import (
	"aprenda/internal/models"
)

// Proficiency adjustment constants. Proficiency is a fraction in [0, 1].
const (
	// ProficiencyGainCorrect is the base increase for a correct answer
	ProficiencyGainCorrect = 0.1
	// ProficiencyLossIncorrect is the base decrease for an incorrect answer
	ProficiencyLossIncorrect = 0.05
	// FastAnswerSeconds is the threshold under which a correct answer earns a bonus
	FastAnswerSeconds = 10.0
	// SlowAnswerSeconds is the threshold over which a correct answer is dampened
	SlowAnswerSeconds = 60.0
	// FastAnswerMultiplier scales the gain for quick correct answers
	FastAnswerMultiplier = 1.5
	// SlowAnswerMultiplier scales the gain for slow correct answers
	SlowAnswerMultiplier = 0.8
)

// Difficulty and mastery thresholds on the proficiency fraction
const (
	EasyDifficultyCeiling   = 0.4
	MediumDifficultyCeiling = 0.7
	BeginnerMasteryCeiling  = 0.3
	IntermediateMasteryCeil = 0.7
)

// NextProficiency returns the proficiency after one answer event.
// Correct answers gain 0.1, scaled up for fast answers and down for slow
// ones; incorrect answers lose a flat 0.05. The result is clamped to [0, 1].
func NextProficiency(current float64, correct bool, timeTakenSeconds float64) float64 {
	var delta float64
	if correct {
		delta = ProficiencyGainCorrect
		switch {
		case timeTakenSeconds < FastAnswerSeconds:
			delta *= FastAnswerMultiplier
		case timeTakenSeconds > SlowAnswerSeconds:
			delta *= SlowAnswerMultiplier
		}
	} else {
		delta = -ProficiencyLossIncorrect
	}

	return ClampProficiency(current + delta)
}

// ClampProficiency bounds a proficiency value to [0, 1]
func ClampProficiency(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// DifficultyForProficiency maps a proficiency fraction to a question
// difficulty bucket: below 0.4 easy, below 0.7 medium, otherwise hard.
func DifficultyForProficiency(p float64) models.DifficultyLevel {
	switch {
	case p < EasyDifficultyCeiling:
		return models.DifficultyEasy
	case p < MediumDifficultyCeiling:
		return models.DifficultyMedium
	default:
		return models.DifficultyHard
	}
}

// MasteryForProficiency maps a proficiency fraction to a mastery level:
// below 0.3 beginner, below 0.7 intermediate, otherwise advanced.
// The mastery thresholds are deliberately distinct from the difficulty ones.
func MasteryForProficiency(p float64) models.MasteryLevel {
	switch {
	case p < BeginnerMasteryCeiling:
		return models.MasteryBeginner
	case p < IntermediateMasteryCeil:
		return models.MasteryIntermediate
	default:
		return models.MasteryAdvanced
	}
}
