// Package llm provides the gateway to large language model providers.
package llm

import (
	"context"

	"aprenda/internal/config"
	contextutils "aprenda/internal/utils"
)

// Usage reports token consumption for a single generation
type Usage struct {
	TotalTokens int `json:"total_tokens"`
}

// Result is the outcome of a generation request. A provider-side refusal or
// empty candidate surfaces as Success=false with Error set, not as a Go error;
// Go errors are reserved for transport and configuration failures.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Options holds per-request generation options
type Options struct {
	Locale contextutils.Locale
}

// Option configures a single generation request
type Option func(*Options)

// WithLocale asks the provider to respond in the given language
func WithLocale(locale contextutils.Locale) Option {
	return func(o *Options) {
		o.Locale = locale
	}
}

// Client is the interface implemented by all LLM providers
type Client interface {
	// Generate sends a prompt to the provider and returns the generated text
	Generate(ctx context.Context, prompt string, opts ...Option) (*Result, error)
	// ModelName returns the provider's configured model identifier
	ModelName() string
}

// NewClient constructs the provider named in the configuration
func NewClient(cfg *config.Config) (Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return NewGeminiClient(&cfg.LLM), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, contextutils.NewAppError(
			contextutils.ErrorCodeLLMConfigInvalid,
			contextutils.SeverityError,
			"unknown LLM provider",
			cfg.LLM.Provider,
		)
	}
}
