// Package ai generates task descriptions with a chat-completion model.
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultModel    = "gpt-3.5-turbo"

	maxTokens   = 150
	temperature = 0.7

	systemPrompt = "You are a helpful assistant that generates concise, actionable task descriptions. " +
		"Generate a brief description (2-3 sentences) that explains what needs to be done for the given task title. " +
		"Focus on the action items and expected outcome."
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("ai service is not configured")
	// ErrInvalidResponse is returned when the model reply has no message.
	ErrInvalidResponse = errors.New("invalid response from ai service")
	// ErrEmptyContent is returned when the reply message carries no text.
	ErrEmptyContent = errors.New("ai service returned no content")
)

// ServiceError is a non-2xx reply from the model API.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ai service error (%d): %s", e.StatusCode, e.Message)
}

// Describer turns a task title into a short description.
type Describer interface {
	Describe(ctx context.Context, title string) (string, error)
}

// ChatConfig configures a ChatDescriber.
type ChatConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// ChatDescriber calls the chat-completions API directly.
type ChatDescriber struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

func NewChatDescriber(cfg ChatConfig) *ChatDescriber {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ChatDescriber{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether an API key is set.
func (c *ChatDescriber) Configured() bool {
	return c != nil && c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func buildRequest(model, title string) chatRequest {
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: `Generate a task description for: "` + title + `"`},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Describe asks the model for a description of title.
func (c *ChatDescriber) Describe(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.ErrTitleRequired
	}
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := sonic.Marshal(buildRequest(c.model, title))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr chatError
		msg := "Unknown error"
		if sonic.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		log.WithFields(log.Fields{"status": resp.StatusCode, "type": apiErr.Error.Type}).Warn("chat completion rejected")
		return "", &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out chatResponse
	if err := sonic.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil {
		return "", ErrInvalidResponse
	}
	content := out.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", ErrEmptyContent
	}
	return strings.TrimSpace(*content), nil
}
