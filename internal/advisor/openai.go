package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// ChatClient sends a single prompt to a text-generation model.
type ChatClient interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= 500
		}).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OpenAIClient{http: client, logger: logger}
}

// Complete returns the first choice's content, trimmed.
func (c *OpenAIClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	var (
		result  chatResponse
		failure chatError
	)

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: 0,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		c.logger.Error("chat completion request failed", zap.String("model", model), zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if resp.IsError() {
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error("chat completion rejected",
			zap.String("model", model),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error_type", failure.Error.Type),
		)
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode(), msg)
	}

	if len(result.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion: empty content")
	}

	c.logger.Debug("chat completion succeeded",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
	)
	return text, nil
}
