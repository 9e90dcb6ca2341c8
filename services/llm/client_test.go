package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func writeContent(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestCompleteSendsRequest(t *testing.T) {
	var got chatCompletionRequest
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("HTTP-Referer") != DefaultReferer {
			t.Errorf("unexpected referer %q", r.Header.Get("HTTP-Referer"))
		}
		if r.Header.Get("X-Title") != DefaultTitle {
			t.Errorf("unexpected title %q", r.Header.Get("X-Title"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		writeContent(t, w, "  краткое содержание  ")
	})

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	text, err := client.Complete(context.Background(), "venice/uncensored:free", "system", "user text")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "краткое содержание" {
		t.Errorf("unexpected content %q", text)
	}
	if got.Model != "venice/uncensored:free" {
		t.Errorf("unexpected model %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user text" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("expected a single user message, got %+v", req.Messages)
		}
		writeContent(t, w, "ok")
	})

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), "m", "", "text"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
}

func TestCompleteStatusError(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	})

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), "m", "", "text")

	var statusErr *StatusError
	if !stderrors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("unexpected status %d", statusErr.HTTPStatus())
	}
	if statusErr.RetryAfter != 7*time.Second {
		t.Errorf("unexpected retry-after %s", statusErr.RetryAfter)
	}
	if class := retry.NewClassifier(Rules()...).Classify(err); class != retry.ClassRateLimited {
		t.Errorf("expected rate limited class, got %s", class)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, "   ")
	})

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), "m", "", "text")
	if err == nil || !strings.Contains(err.Error(), "empty content") {
		t.Fatalf("expected empty content error, got %v", err)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","code":502}}`))
	})

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Complete(context.Background(), "m", "", "text")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	client := NewClient(Config{})
	err := client.Validate()
	if !errors.IsKind(err, errors.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	if _, err := client.Complete(context.Background(), "m", "", "text"); !errors.IsKind(err, errors.KindConfiguration) {
		t.Errorf("expected Complete to report configuration error, got %v", err)
	}

	if err := NewClient(Config{APIKey: "key"}).Validate(); err != nil {
		t.Errorf("expected configured client to validate, got %v", err)
	}
}

func TestRetryEngineKeepsModelFailuresRetryable(t *testing.T) {
	classifier := RetryEngine(retry.New(retry.DefaultConfig())).Classifier()

	tests := []struct {
		status int
		want   retry.Class
	}{
		{http.StatusNotFound, retry.ClassUnknown},
		{http.StatusGone, retry.ClassUnknown},
		{http.StatusInternalServerError, retry.ClassUnknown},
		{http.StatusServiceUnavailable, retry.ClassUnknown},
		{http.StatusTooManyRequests, retry.ClassRateLimited},
	}
	for _, tt := range tests {
		err := &StatusError{StatusCode: tt.status, Body: `{"error":{"message":"No endpoints found for model"}}`}
		class := classifier.Classify(err)
		if class != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, class)
		}
		if class.Terminal() {
			t.Errorf("status %d: expected a retryable class", tt.status)
		}
	}
}
