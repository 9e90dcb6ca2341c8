package mindmap

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/chunker"
	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
	"github.com/Denni-Wild/Subs-bot-sub000/selector"
	"github.com/Denni-Wild/Subs-bot-sub000/services/llm"
)

type fakeCompleter struct {
	mu       sync.Mutex
	models   []string
	respond  func(chunk string, call int) (string, error)
	validate error
}

func (f *fakeCompleter) Complete(_ context.Context, modelID, systemPrompt, userText string) (string, error) {
	f.mu.Lock()
	f.models = append(f.models, modelID)
	call := len(f.models)
	f.mu.Unlock()
	return f.respond(userText, call)
}

func (f *fakeCompleter) Validate() error { return f.validate }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(t *testing.T, completer Completer, chunkSize int) *Service {
	t.Helper()
	pool, err := selector.NewPool(selector.DefaultModels())
	if err != nil {
		t.Fatal(err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	engine := llm.RetryEngine(retry.New(retry.DefaultConfig(),
		retry.WithSleeper(noSleep),
		retry.WithJitter(func(time.Duration) time.Duration { return 0 }),
		retry.WithLogger(quiet),
	))
	return NewService(completer, pool, engine, Config{ChunkSize: chunkSize, ChunkPause: time.Second},
		WithLogger(quiet), WithSleeper(noSleep))
}

const sampleText = "YouTube субтитры используются для извлечения текста из видео. " +
	"Голосовые сообщения обрабатываются через Soniox API. " +
	"Статистика качества показывает эффективность методов."

func TestAnalyzeBuildsTopics(t *testing.T) {
	completer := &fakeCompleter{respond: func(chunk string, call int) (string, error) {
		switch {
		case strings.Contains(chunk, "YouTube"):
			return `["Субтитры YouTube", "Извлечение текста из видео"]`, nil
		case strings.Contains(chunk, "Голосовые"):
			return "```json\n[\"Голосовые сообщения\"]\n```", nil
		default:
			return `["Статистика качества", "субтитры youtube"]`, nil
		}
	}}
	svc := newTestService(t, completer, 70)

	m, err := svc.Analyze(context.Background(), sampleText)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	chunks := len(chunker.Split(sampleText, 70))
	if m.Stats.Chunks != chunks || m.Stats.ProcessedChunks != chunks {
		t.Errorf("expected %d/%d chunks, got %+v", chunks, chunks, m.Stats)
	}
	if m.MainTopic != "Видео контент" {
		t.Errorf("expected video topic to lead, got %q", m.MainTopic)
	}
	if m.IdeaCount() != 4 || m.Stats.Ideas != 4 {
		t.Errorf("expected 4 distinct ideas, got %d: %+v", m.IdeaCount(), m.Topics)
	}
	if len(m.Stats.Models) == 0 {
		t.Error("expected model names in stats")
	}
}

func TestAnalyzeRetriesMalformedAnswer(t *testing.T) {
	completer := &fakeCompleter{respond: func(_ string, call int) (string, error) {
		if call == 1 {
			return "Here are the ideas: idea one, idea two", nil
		}
		return `["idea one"]`, nil
	}}
	svc := newTestService(t, completer, 2000)

	m, err := svc.Analyze(context.Background(), "short text")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.IdeaCount() != 1 {
		t.Errorf("expected one idea, got %+v", m.Topics)
	}
	if len(completer.models) != 2 || completer.models[0] == completer.models[1] {
		t.Errorf("expected a second attempt on another model, got %v", completer.models)
	}
}

func TestAnalyzeMovesPastRetiredModel(t *testing.T) {
	completer := &fakeCompleter{respond: func(_ string, call int) (string, error) {
		if call == 1 {
			return "", &llm.StatusError{StatusCode: http.StatusNotFound, Body: "No endpoints found"}
		}
		return `["idea"]`, nil
	}}
	svc := newTestService(t, completer, 2000)

	if _, err := svc.Analyze(context.Background(), "short text"); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(completer.models) != 2 {
		t.Errorf("expected 2 attempts, got %v", completer.models)
	}
}

func TestAnalyzeSkipsFailedChunks(t *testing.T) {
	completer := &fakeCompleter{respond: func(chunk string, _ int) (string, error) {
		if strings.Contains(chunk, "Голосовые") {
			return "", stderrors.New("connection reset")
		}
		return `["idea"]`, nil
	}}
	svc := newTestService(t, completer, 70)

	m, err := svc.Analyze(context.Background(), sampleText)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if m.Stats.ProcessedChunks != m.Stats.Chunks-1 {
		t.Errorf("expected one skipped chunk, got %+v", m.Stats)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		completer *fakeCompleter
		kind      errors.Kind
	}{
		{
			name:      "empty",
			text:      "  \n ",
			completer: &fakeCompleter{respond: func(string, int) (string, error) { return "[]", nil }},
			kind:      errors.KindEmptyInput,
		},
		{
			name: "not configured",
			text: "text",
			completer: &fakeCompleter{
				validate: stderrors.New("missing key"),
				respond:  func(string, int) (string, error) { return "[]", nil },
			},
			kind: errors.KindConfiguration,
		},
		{
			name:      "every chunk fails",
			text:      sampleText,
			completer: &fakeCompleter{respond: func(string, int) (string, error) { return "", stderrors.New("boom") }},
			kind:      errors.KindOperationFailed,
		},
		{
			name: "quota",
			text: "text",
			completer: &fakeCompleter{respond: func(string, int) (string, error) {
				return "", &llm.StatusError{StatusCode: http.StatusTooManyRequests}
			}},
			kind: errors.KindQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.completer, 70)
			_, err := svc.Analyze(context.Background(), tt.text)
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestGenerateFormats(t *testing.T) {
	completer := &fakeCompleter{respond: func(string, int) (string, error) {
		return `["Субтитры (авто)"]`, nil
	}}
	svc := newTestService(t, completer, 2000)

	tests := []struct {
		format                  Format
		markdown, mermaid, html bool
	}{
		{FormatMarkdown, true, false, false},
		{FormatMermaid, false, true, false},
		{FormatHTML, false, false, true},
		{FormatAll, true, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			res, err := svc.Generate(context.Background(), "short text", tt.format)
			if err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			if (res.Markdown != "") != tt.markdown || (res.Mermaid != "") != tt.mermaid || (res.HTML != "") != tt.html {
				t.Errorf("unexpected renderings for %s: md=%t mermaid=%t html=%t",
					tt.format, res.Markdown != "", res.Mermaid != "", res.HTML != "")
			}
			if res.Map == nil || res.Map.MainTopic != "Видео контент" {
				t.Errorf("unexpected map %+v", res.Map)
			}
		})
	}
}

func TestParseIdeas(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{"plain", `["a", "b"]`, []string{"a", "b"}, false},
		{"fenced", "```json\n[\"a\"]\n```", []string{"a"}, false},
		{"blank items", `["  a  b ", "", "  "]`, []string{"a b"}, false},
		{"empty array", `[]`, []string{}, false},
		{"no array", "a, b, c", nil, true},
		{"not strings", `[1, 2]`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdeas(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIdeas(%q) error = %v", tt.content, err)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), "decode response") {
					t.Errorf("expected a decode error, got %v", err)
				}
				return
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ParseIdeas(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatAll, "HTML": FormatHTML, " mermaid ": FormatMermaid} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("png"); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
