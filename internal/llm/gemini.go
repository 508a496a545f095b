package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"aprenda/internal/config"
	"aprenda/internal/observability"
	contextutils "aprenda/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// geminiRequest is the generateContent request payload
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

// geminiResponse is the generateContent response payload
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiClient calls the Google Gemini generateContent API
type GeminiClient struct {
	cfg        *config.LLMConfig
	httpClient *http.Client
}

// NewGeminiClient creates a Gemini client with an instrumented HTTP transport
func NewGeminiClient(cfg *config.LLMConfig) *GeminiClient {
	return &GeminiClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ModelName returns the configured model identifier
func (g *GeminiClient) ModelName() string {
	return g.cfg.Model
}

// Generate sends a prompt to Gemini and returns the generated text
func (g *GeminiClient) Generate(ctx context.Context, prompt string, opts ...Option) (result0 *Result, err error) {
	ctx, span := observability.TraceLLMFunction(ctx, "generate",
		observability.AttributeModel(g.cfg.Model),
		attribute.Int("llm.prompt_length", len(prompt)),
		attribute.String("llm.api_key", contextutils.MaskAPIKey(g.cfg.APIKey)),
	)
	defer observability.FinishSpan(span, &err)

	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if g.cfg.APIKey == "" {
		err = contextutils.ErrLLMConfigInvalid
		return nil, err
	}

	if options.Locale != "" && options.Locale != contextutils.LocaleEnglish {
		prompt = fmt.Sprintf("%s\n\nRespond in %s.", prompt, options.Locale.DisplayName())
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: prompt}},
			},
		},
	}
	if g.cfg.MaxOutputTokens > 0 {
		reqBody.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: g.cfg.MaxOutputTokens}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal gemini request")
	}

	endpoint := g.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", endpoint, g.cfg.Model, g.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create gemini request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		err = contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeLLMUnavailable,
			contextutils.SeverityError,
			"LLM provider unavailable",
			"gemini request failed",
			err,
		)
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read gemini response")
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeLLMResponseInvalid,
			contextutils.SeverityError,
			"LLM response invalid",
			"gemini response is not valid JSON",
			err,
		)
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		message := fmt.Sprintf("gemini returned status %d", resp.StatusCode)
		if parsed.Error != nil {
			message = parsed.Error.Message
		}
		return &Result{
			Success: false,
			Error:   message,
			Usage:   Usage{TotalTokens: parsed.UsageMetadata.TotalTokenCount},
		}, nil
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return &Result{
			Success: false,
			Error:   "gemini returned no candidates",
			Usage:   Usage{TotalTokens: parsed.UsageMetadata.TotalTokenCount},
		}, nil
	}

	content := parsed.Candidates[0].Content.Parts[0].Text
	span.SetAttributes(
		attribute.Int("llm.response_length", len(content)),
		attribute.Int("llm.tokens_used", parsed.UsageMetadata.TotalTokenCount),
	)

	return &Result{
		Success: true,
		Content: content,
		Usage:   Usage{TotalTokens: parsed.UsageMetadata.TotalTokenCount},
	}, nil
}
