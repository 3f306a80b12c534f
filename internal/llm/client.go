package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aarogya-bot/internal/metrics"
	"aarogya-bot/internal/session"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt frames every completion call.
const SystemPrompt = "You are AarogyaAI, an assistive health chatbot. " +
	"Provide general health education and symptom triage. " +
	"Never prescribe medication. Escalate to an RMP when red flags appear."

// UnavailableReply is returned when no API key is configured.
const UnavailableReply = "AI service unavailable."

const defaultTemperature = 0.6

// Client wraps the chat-completion API with a fixed system prompt,
// temperature and per-call timeout.
type Client struct {
	api     *openai.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	model   string
	timeout time.Duration
}

// Config holds completion client configuration.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New creates a completion client. A missing API key yields a degraded
// client whose Complete always returns UnavailableReply.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	c := &Client{
		logger:  logger.With("component", "llm"),
		metrics: metricRegistry,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
	if c.model == "" {
		c.model = openai.GPT4
	}
	if c.timeout <= 0 {
		c.timeout = 12 * time.Second
	}
	if cfg.APIKey == "" {
		c.logger.Warn("OPENAI_API_KEY not set, completion disabled")
		return c
	}
	c.api = openai.NewClient(cfg.APIKey)
	return c
}

// Configured reports whether an API key was provided.
func (c *Client) Configured() bool {
	return c.api != nil
}

// Complete sends the session window to the completion API under the
// configured timeout and returns the assistant's reply. A deadline
// overrun surfaces as context.DeadlineExceeded via errors.Is.
func (c *Client) Complete(ctx context.Context, msgs []session.Message) (string, error) {
	if c.api == nil {
		return UnavailableReply, nil
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	chat = append(chat, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	})
	for _, m := range msgs {
		chat = append(chat, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chat,
		Temperature: defaultTemperature,
	})
	duration := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		status = "error"
		if callCtx.Err() == context.DeadlineExceeded {
			status = "timeout"
		}
	}
	if c.metrics != nil {
		c.metrics.LLMRequests.WithLabelValues(status).Inc()
		c.metrics.LLMLatency.WithLabelValues(status).Observe(duration)
	}

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("completion timed out after %s: %w", c.timeout, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
