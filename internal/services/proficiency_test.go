package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"aprenda/internal/models"
)

func TestNextProficiency(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		correct   bool
		timeTaken float64
		expected  float64
	}{
		{
			name:      "correct answer at normal pace",
			current:   0.5,
			correct:   true,
			timeTaken: 30,
			expected:  0.6,
		},
		{
			name:      "fast correct answer gets bonus",
			current:   0.5,
			correct:   true,
			timeTaken: 5,
			expected:  0.65,
		},
		{
			name:      "slow correct answer is dampened",
			current:   0.5,
			correct:   true,
			timeTaken: 90,
			expected:  0.58,
		},
		{
			name:      "incorrect answer loses flat amount",
			current:   0.5,
			correct:   false,
			timeTaken: 30,
			expected:  0.45,
		},
		{
			name:      "incorrect answer ignores timing",
			current:   0.5,
			correct:   false,
			timeTaken: 3,
			expected:  0.45,
		},
		{
			name:      "clamped at upper bound",
			current:   0.95,
			correct:   true,
			timeTaken: 5,
			expected:  1.0,
		},
		{
			name:      "clamped at lower bound",
			current:   0.02,
			correct:   false,
			timeTaken: 30,
			expected:  0.0,
		},
		{
			name:      "exactly at fast threshold uses base gain",
			current:   0.5,
			correct:   true,
			timeTaken: 10,
			expected:  0.6,
		},
		{
			name:      "exactly at slow threshold uses base gain",
			current:   0.5,
			correct:   true,
			timeTaken: 60,
			expected:  0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NextProficiency(tt.current, tt.correct, tt.timeTaken)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestNextProficiency_FastBeatsSlow(t *testing.T) {
	fast := NextProficiency(0.5, true, 5)
	normal := NextProficiency(0.5, true, 30)
	slow := NextProficiency(0.5, true, 120)

	assert.Greater(t, fast, normal)
	assert.Greater(t, normal, slow)
	assert.Greater(t, slow, 0.5)
}

func TestDifficultyForProficiency(t *testing.T) {
	tests := []struct {
		name        string
		proficiency float64
		expected    models.DifficultyLevel
	}{
		{"zero proficiency", 0.0, models.DifficultyEasy},
		{"just below easy ceiling", 0.39, models.DifficultyEasy},
		{"at easy ceiling", 0.4, models.DifficultyMedium},
		{"just below medium ceiling", 0.69, models.DifficultyMedium},
		{"at medium ceiling", 0.7, models.DifficultyHard},
		{"full proficiency", 1.0, models.DifficultyHard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DifficultyForProficiency(tt.proficiency))
		})
	}
}

func TestMasteryForProficiency(t *testing.T) {
	tests := []struct {
		name        string
		proficiency float64
		expected    models.MasteryLevel
	}{
		{"zero proficiency", 0.0, models.MasteryBeginner},
		{"just below beginner ceiling", 0.29, models.MasteryBeginner},
		{"at beginner ceiling", 0.3, models.MasteryIntermediate},
		{"just below intermediate ceiling", 0.69, models.MasteryIntermediate},
		{"at intermediate ceiling", 0.7, models.MasteryAdvanced},
		{"full proficiency", 1.0, models.MasteryAdvanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MasteryForProficiency(tt.proficiency))
		})
	}
}

func TestClampProficiency(t *testing.T) {
	assert.Equal(t, 0.0, ClampProficiency(-0.3))
	assert.Equal(t, 1.0, ClampProficiency(1.2))
	assert.Equal(t, 0.55, ClampProficiency(0.55))
}
