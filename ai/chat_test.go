package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

func newChatServer(t *testing.T, h http.HandlerFunc) *ChatDescriber {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewChatDescriber(ChatConfig{APIKey: "sk-test", Endpoint: srv.URL})
}

func TestDescribeSendsPrompt(t *testing.T) {
	c := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-3.5-turbo" || req.MaxTokens != 150 || req.Temperature != 0.7 {
			t.Errorf("unexpected request parameters %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != systemPrompt {
			t.Errorf("unexpected system message %+v", req.Messages)
		}
		if req.Messages[1].Content != `Generate a task description for: "Plan "offsite""` {
			t.Errorf("unexpected user message %q", req.Messages[1].Content)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Book a venue.  "}}]}`))
	})

	got, err := c.Describe(context.Background(), `  Plan "offsite"  `)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got != "Book a venue." {
		t.Fatalf("expected trimmed content, got %q", got)
	}
}

func TestDescribeValidatesBeforeCalling(t *testing.T) {
	called := false
	c := newChatServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	if _, err := c.Describe(context.Background(), "  "); !errors.Is(err, domain.ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got %v", err)
	}
	unconfigured := NewChatDescriber(ChatConfig{})
	if _, err := unconfigured.Describe(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if called {
		t.Fatalf("model API must not be called")
	}
}

func TestDescribeErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		code    int
		message string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, 500, "AI service error: Incorrect API key"},
		{"api error without body", http.StatusBadGateway, `oops`, 500, "AI service error: Unknown error"},
		{"no choices", http.StatusOK, `{"choices":[]}`, 500, "Invalid response from AI service"},
		{"no message", http.StatusOK, `{"choices":[{}]}`, 500, "Invalid response from AI service"},
		{"garbage", http.StatusOK, `not json`, 500, "Internal server error while generating description"},
		{"null content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":null}}]}`, 500, "Internal server error while generating description"},
		{"missing content", http.StatusOK, `{"choices":[{"message":{"role":"assistant"}}]}`, 500, "Internal server error while generating description"},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, 500, "Internal server error while generating description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Describe(context.Background(), "title")
			if err == nil {
				t.Fatalf("expected error")
			}
			code, msg := Outcome(err)
			if code != tc.code || msg != tc.message {
				t.Fatalf("expected %d %q, got %d %q", tc.code, tc.message, code, msg)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	if code, msg := Outcome(domain.ErrTitleRequired); code != 400 || msg != MsgTitleRequired {
		t.Fatalf("unexpected outcome %d %q", code, msg)
	}
	if code, msg := Outcome(ErrNotConfigured); code != 500 || msg != MsgNotConfigured {
		t.Fatalf("unexpected outcome %d %q", code, msg)
	}
	if code, _ := Outcome(nil); code != 200 {
		t.Fatalf("unexpected outcome %d", code)
	}
}
