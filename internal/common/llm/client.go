// Package llm talks to an OpenAI-compatible chat completion endpoint
// (OpenRouter by default).
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"nlu-memory-assistant/internal/common/config"
	apperrors "nlu-memory-assistant/internal/common/errors"
	commonhttp "nlu-memory-assistant/internal/common/http"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/metrics"
)

var (
	ErrLLMTimeout       = errors.New("LLM_TIMEOUT")
	ErrLLMRequestFailed = errors.New("LLM_REQUEST_FAILED")
	ErrLLMEmptyResponse = errors.New("LLM_EMPTY_RESPONSE")
)

func init() {
	apperrors.RegisterSentinel(ErrLLMTimeout, apperrors.ErrCodeLLMTimeout)
	apperrors.RegisterSentinel(ErrLLMRequestFailed, apperrors.ErrCodeLLMRequestFailed)
	apperrors.RegisterSentinel(ErrLLMEmptyResponse, apperrors.ErrCodeLLMEmptyResponse)
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one prior turn passed as context.
type Message struct {
	Role    string
	Content string
}

// GenerationConfig is chosen per call: classification and response
// generation use different models and temperatures.
type GenerationConfig struct {
	Purpose     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator produces text from a system prompt and prior messages.
type Generator interface {
	GenerateText(ctx context.Context, systemPrompt string, messages []Message, gen GenerationConfig) (string, error)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// ConfigFrom maps the loaded llm section.
func ConfigFrom(c config.LLMConfig) *Config {
	return &Config{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Timeout:    config.GetDuration(c.Timeout),
		MaxRetries: c.MaxRetries,
	}
}

// ClassificationConfig and ResponseConfig map the per-purpose sections.
func ClassificationConfig(c config.LLMConfig) GenerationConfig {
	return GenerationConfig{
		Purpose:     "classification",
		Model:       c.Classification.Model,
		Temperature: c.Classification.Temperature,
		MaxTokens:   c.Classification.MaxTokens,
	}
}

func ResponseConfig(c config.LLMConfig) GenerationConfig {
	return GenerationConfig{
		Purpose:     "response",
		Model:       c.Response.Model,
		Temperature: c.Response.Temperature,
		MaxTokens:   c.Response.MaxTokens,
	}
}

type Client struct {
	config *Config
	client *openai.Client
	logger logger.Logger
}

var _ Generator = (*Client)(nil)

func NewClient(cfg *Config, log logger.Logger) *Client {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(commonhttp.NewClient(0, log)),
		// Retries are handled by GenerateText.
		option.WithMaxRetries(0),
	)
	return &Client{
		config: cfg,
		client: &client,
		logger: log.With(map[string]interface{}{"component": "llm"}),
	}
}

func (c *Client) GenerateText(ctx context.Context, systemPrompt string, messages []Message, gen GenerationConfig) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, systemPrompt, messages, gen)

	result := "success"
	switch {
	case errors.Is(err, ErrLLMTimeout):
		result = "timeout"
	case errors.Is(err, ErrLLMEmptyResponse):
		result = "empty"
	case err != nil:
		result = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(gen.Purpose, result).Inc()
	metrics.LLMRequestDuration.WithLabelValues(gen.Purpose).Observe(time.Since(start).Seconds())

	return text, err
}

func (c *Client) generate(ctx context.Context, systemPrompt string, messages []Message, gen GenerationConfig) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(systemPrompt, messages),
		Model:    gen.Model,
	}
	if gen.Temperature > 0 {
		params.Temperature = openai.Float(gen.Temperature)
	}
	if gen.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(gen.MaxTokens))
	}

	var completion *openai.ChatCompletion
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrLLMTimeout
			}
		}

		completion, lastErr = c.client.Chat.Completions.New(ctx, params)
		if lastErr == nil {
			break
		}

		if ctx.Err() != nil {
			return "", ErrLLMTimeout
		}
		if !retryable(lastErr) {
			break
		}

		c.logger.Warn("LLM request failed, retrying", map[string]interface{}{
			"purpose": gen.Purpose,
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMRequestFailed, lastErr)
	}

	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrLLMEmptyResponse
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	c.logger.Debug("LLM request completed", map[string]interface{}{
		"purpose": gen.Purpose,
		"model":   gen.Model,
		"chars":   len(text),
	})
	return text, nil
}

func buildMessages(systemPrompt string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// retryable treats client errors other than 408 and 429 as permanent.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}
