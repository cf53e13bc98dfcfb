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

	"taskboard/domain"
)

// Wire messages of the description function.
const (
	MsgTitleRequired    = "Task title is required and must be a non-empty string"
	MsgNotConfigured    = "AI service is not configured"
	MsgInvalidResponse  = "Invalid response from AI service"
	MsgInternal         = "Internal server error while generating description"
	msgServiceErrPrefix = "AI service error: "
)

// User-facing notices shown when generation fails.
const (
	NoticeUnavailable = "AI description generation is currently unavailable"
	NoticeNeedTitle   = "Please enter a task title first"
	NoticeRetry       = "Failed to generate description. Please try again."
)

// DescribeRequest is the body accepted by the description function.
type DescribeRequest struct {
	Title string `json:"title"`
}

// DescribeResponse is the body returned by the description function.
type DescribeResponse struct {
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Outcome maps a Describe error to the function's status code and message.
func Outcome(err error) (int, string) {
	var svcErr *ServiceError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrTitleRequired):
		return http.StatusBadRequest, MsgTitleRequired
	case errors.Is(err, ErrNotConfigured):
		return http.StatusInternalServerError, MsgNotConfigured
	case errors.As(err, &svcErr):
		return http.StatusInternalServerError, msgServiceErrPrefix + svcErr.Message
	case errors.Is(err, ErrInvalidResponse):
		return http.StatusInternalServerError, MsgInvalidResponse
	}
	return http.StatusInternalServerError, MsgInternal
}

// FunctionError carries the error text reported by the function.
type FunctionError struct {
	Message string
}

func (e *FunctionError) Error() string { return e.Message }

// FunctionClient calls the deployed description function.
type FunctionClient struct {
	url    string
	client *http.Client
}

func NewFunctionClient(url string, timeout time.Duration) *FunctionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FunctionClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *FunctionClient) Describe(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.ErrTitleRequired
	}
	if c == nil || c.url == "" {
		return "", ErrNotConfigured
	}
	body, err := sonic.Marshal(DescribeRequest{Title: title})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	var out DescribeResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "Failed to generate description"
		}
		return "", &FunctionError{Message: msg}
	}
	if out.Description == "" {
		return "", &FunctionError{Message: "No description generated"}
	}
	return out.Description, nil
}

// Notice converts a Describe error from either describer into the message
// shown to the user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotConfigured) {
		return NoticeUnavailable
	}
	if errors.Is(err, domain.ErrTitleRequired) {
		return NoticeNeedTitle
	}
	var fnErr *FunctionError
	if errors.As(err, &fnErr) {
		switch {
		case strings.Contains(fnErr.Message, MsgNotConfigured):
			return NoticeUnavailable
		case strings.Contains(fnErr.Message, "Task title is required"):
			return NoticeNeedTitle
		}
	}
	return NoticeRetry
}
