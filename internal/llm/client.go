package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the chat-completion surface the pipeline stages depend on.
// Production uses OpenAI; tests substitute fakes.
type Client interface {
	// Complete sends one system+user exchange and returns the raw response
	// text. jsonMode asks the model for a JSON object where supported.
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Config holds chat model settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// DefaultConfig returns settings tuned for factual analysis work.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		Temperature: 0.3,
		MaxTokens:   2000,
		// Reasoning models can take minutes before the first token.
		Timeout:    180 * time.Second,
		MaxRetries: 3,
	}
}

// OpenAIClient implements Client against the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// NewOpenAIClient creates a chat client.
func NewOpenAIClient(config Config, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}
}

// isReasoningModel reports whether the configured model has the reasoning-API
// restrictions: no JSON response format, no system role, no temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "o1") ||
		strings.Contains(m, "o3") ||
		strings.Contains(m, "o4") ||
		strings.Contains(m, "gpt-5")
}

// Complete calls the chat API with bounded retries on rate limiting.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	request := c.buildRequest(system, user, jsonMode)

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := time.Second

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		apiCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		start := time.Now()
		resp, err = c.client.CreateChatCompletion(apiCtx, request)
		cancel()

		c.logger.Debug("chat completion call",
			"model", c.config.Model,
			"attempt", attempt+1,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil,
		)

		if err == nil {
			break
		}
		if !isRateLimit(err) || attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		delay += time.Duration(rand.Intn(500)) * time.Millisecond
		c.logger.Warn("rate limited, backing off",
			"attempt", attempt+1, "delay_ms", delay.Milliseconds())

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned from model %s", c.config.Model)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response from model %s (finish_reason: %s)",
			c.config.Model, resp.Choices[0].FinishReason)
	}
	return content, nil
}

func (c *OpenAIClient) buildRequest(system, user string, jsonMode bool) openai.ChatCompletionRequest {
	if isReasoningModel(c.config.Model) {
		// Reasoning models reject system messages and response_format, so
		// the system prompt folds into the user message.
		return openai.ChatCompletionRequest{
			Model:               c.config.Model,
			MaxCompletionTokens: c.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: system + "\n\n" + user},
			},
		}
	}

	request := openai.ChatCompletionRequest{
		Model:               c.config.Model,
		Temperature:         c.config.Temperature,
		MaxCompletionTokens: c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return request
}

func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "Too Many Requests") ||
		strings.Contains(msg, "Rate limit")
}
