package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	DefaultLLMTimeout     = 2 * time.Minute
	ServerShutdownTimeout = 30 * time.Second
	TaskShutdownTimeout   = 30 * time.Second
	TestTimeout           = 100 * time.Millisecond
	LLMTestTimeout        = 1 * time.Second

	// Database defaults
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
)

// DefaultCSP is the Content-Security-Policy header applied to all responses
const DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"

// Task dispatcher defaults
const (
	DefaultTaskWorkers   = 4
	DefaultTaskQueueSize = 64
)

// Adaptive learning constants
const (
	// DefaultQuestionCount is the number of questions returned when the caller
	// does not specify a count.
	DefaultQuestionCount = 10

	// RecommendationTopicCount is how many weakest topics produce recommendations.
	RecommendationTopicCount = 3

	// ReviewInterval is how far in the future a recommended review is scheduled.
	ReviewInterval = 24 * time.Hour
)

// LLM audit log defaults
const (
	DefaultInteractionLimit = 20
	MaxInteractionLimit     = 100
)
