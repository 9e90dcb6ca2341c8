package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func setTestDirs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("TEMP_DIR", filepath.Join(dir, "tmp"))
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	return dir
}

func TestLoadConfig(t *testing.T) {
	dir := setTestDirs(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("READ_TIMEOUT", "10s")
	t.Setenv("RATE_LIMIT_CALLER_INTERVAL", "30s")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("SUMMARY_CHUNK_SIZE", "1500")
	t.Setenv("TRANSCRIPT_FALLBACK_LANGUAGES", " en , de ,")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected 9090, got %s", cfg.ServerPort)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("expected 10s, got %s", cfg.ReadTimeout)
	}
	if cfg.RateLimit.CallerInterval != 30*time.Second || cfg.RateLimit.GlobalInterval != 2*time.Second {
		t.Errorf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Summary.ChunkSize != 1500 || cfg.Summary.ShortTextThreshold != 2000 {
		t.Errorf("unexpected summary config %+v", cfg.Summary)
	}
	if cfg.MindMap.ChunkSize != 2000 {
		t.Errorf("expected default mind map chunk size, got %d", cfg.MindMap.ChunkSize)
	}
	if !reflect.DeepEqual(cfg.Transcript.FallbackLanguages, []string{"en", "de"}) {
		t.Errorf("unexpected fallback languages %q", cfg.Transcript.FallbackLanguages)
	}
	if cfg.OpenRouter.APIKey != "sk-test" {
		t.Errorf("expected API key to be read")
	}
	if cfg.Database.Path != filepath.Join(dir, "data", "subs-bot.db") {
		t.Errorf("unexpected database path %s", cfg.Database.Path)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("expected log directory to be created: %v", err)
	}
}

func TestLoadWithoutAPIKeys(t *testing.T) {
	setTestDirs(t)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("SONIOX_API_KEY", "")

	if _, err := Load(); err != nil {
		t.Errorf("missing API keys must not fail loading: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errSub string
	}{
		{"zero attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}, "max attempts"},
		{"zero chunk", map[string]string{"SUMMARY_CHUNK_SIZE": "0"}, "chunk size"},
		{"zero mind map chunk", map[string]string{"MINDMAP_CHUNK_SIZE": "0"}, "mind map chunk size"},
		{"negative read timeout", map[string]string{"READ_TIMEOUT": "-1s"}, "read timeout"},
		{"max below base", map[string]string{"RETRY_BASE_DELAY": "10s", "RETRY_MAX_DELAY": "1s"}, "max delay"},
		{"storage without bucket", map[string]string{"STORAGE_ENABLED": "true"}, "SPACES_BUCKET"},
		{"no workers", map[string]string{"VOICE_WORKERS": "0"}, "voice workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestDirs(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}

func TestLoadModels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	content := `models:
  - name: DeepSeek V3
    id: deepseek/deepseek-chat-v3-0324:free
  - id: qwen/qwen3-14b:free
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadModels(path)
	if err != nil {
		t.Fatalf("LoadModels returned error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "DeepSeek V3" || got[1].Name != "qwen/qwen3-14b:free" {
		t.Errorf("unexpected models %+v", got)
	}

	bad := map[string]string{
		"empty.yaml": "models: []\n",
		"noid.yaml":  "models:\n  - name: x\n",
		"junk.yaml":  "models: [\n",
	}
	for name, body := range bad {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadModels(p); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadModels(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
