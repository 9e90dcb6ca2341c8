package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Debug        bool          `json:"debug"`

	// Application paths
	LogDir   string `json:"log_dir"`
	LogLevel string `json:"log_level"`
	TempDir  string `json:"temp_dir"`
	DataDir  string `json:"data_dir"`

	Middleware MiddlewareConfig `json:"middleware"`
	CORS       CORSConfig       `json:"cors"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Retry      RetryConfig      `json:"retry"`
	Database   DatabaseConfig   `json:"database"`
	OpenRouter OpenRouterConfig `json:"openrouter"`
	Summary    SummaryConfig    `json:"summary"`
	MindMap    MindMapConfig    `json:"mind_map"`
	Transcript TranscriptConfig `json:"transcript"`
	Voice      VoiceConfig      `json:"voice"`
	Storage    StorageConfig    `json:"storage"`

	// Application version
	Version string `json:"version"`

	// Request and shutdown timeouts
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger"`
	EnableTimeout   bool `json:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled        bool          `json:"enabled"`
	CallerInterval time.Duration `json:"caller_interval"`
	GlobalInterval time.Duration `json:"global_interval"`
	IdleTTL        time.Duration `json:"idle_ttl"`
	SweepInterval  time.Duration `json:"sweep_interval"`
}

type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	MaxJitter   time.Duration `json:"max_jitter"`
}

type DatabaseConfig struct {
	Enabled            bool          `json:"enabled"`
	Path               string        `json:"path"`
	MaxConnections     int           `json:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
}

type OpenRouterConfig struct {
	APIKey     string        `json:"-"`
	BaseURL    string        `json:"base_url"`
	Referer    string        `json:"referer"`
	Title      string        `json:"title"`
	Timeout    time.Duration `json:"timeout"`
	ModelsFile string        `json:"models_file"`
}

type SummaryConfig struct {
	ChunkSize           int           `json:"chunk_size"`
	ShortTextThreshold  int           `json:"short_text_threshold"`
	ChunkPause          time.Duration `json:"chunk_pause"`
	AggregationAttempts int           `json:"aggregation_attempts"`
	AggregationDelay    time.Duration `json:"aggregation_delay"`
}

type MindMapConfig struct {
	ChunkSize int `json:"chunk_size"`
}

type TranscriptConfig struct {
	DefaultLanguage   string   `json:"default_language"`
	FallbackLanguages []string `json:"fallback_languages"`
	// DisplayLimit is the longest text returned inline; longer results
	// become attachments.
	DisplayLimit   int    `json:"display_limit"`
	YouTubeBaseURL string `json:"youtube_base_url"`
}

type VoiceConfig struct {
	APIKey        string        `json:"-"`
	BaseURL       string        `json:"base_url"`
	Model         string        `json:"model"`
	PollInterval  time.Duration `json:"poll_interval"`
	MaxWait       time.Duration `json:"max_wait"`
	Workers       int           `json:"workers"`
	QueueSize     int           `json:"queue_size"`
	Convert       bool          `json:"convert"`
	FFmpegPath    string        `json:"ffmpeg_path"`
	MaxUploadSize int64         `json:"max_upload_size"`
}

type StorageConfig struct {
	Enabled   bool          `json:"enabled"`
	AccessKey string        `json:"-"`
	SecretKey string        `json:"-"`
	Region    string        `json:"region"`
	Endpoint  string        `json:"endpoint"`
	Bucket    string        `json:"bucket"`
	URLExpiry time.Duration `json:"url_expiry"`
}

func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   false, // Disabled for easier debugging
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

// Load reads configuration from environment variables. Missing API keys
// are not errors here; the services report them when used.
func Load() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 10*time.Minute),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		LogDir:   getEnv("LOG_DIR", "./logs"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		TempDir:  getEnv("TEMP_DIR", filepath.Join(os.TempDir(), "subs-bot")),
		DataDir:  dataDir,

		Version: getEnv("VERSION", "1.0.0"),

		// Summaries of long videos take several minutes.
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "OPTIONS"},
			),
			AllowedHeaders:   getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Caller-Key"}),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{"X-Request-ID", "Retry-After"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", true),
			CallerInterval: getEnvAsDuration("RATE_LIMIT_CALLER_INTERVAL", 15*time.Second),
			GlobalInterval: getEnvAsDuration("RATE_LIMIT_GLOBAL_INTERVAL", 2*time.Second),
			IdleTTL:        getEnvAsDuration("RATE_LIMIT_IDLE_TTL", time.Hour),
			SweepInterval:  getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 10*time.Minute),
		},

		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 2*time.Second),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
			MaxJitter:   getEnvAsDuration("RETRY_MAX_JITTER", time.Second),
		},

		Database: DatabaseConfig{
			Enabled:            getEnvAsBool("DB_ENABLED", true),
			Path:               getEnv("DB_PATH", filepath.Join(dataDir, "subs-bot.db")),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		OpenRouter: OpenRouterConfig{
			APIKey:     getEnv("OPENROUTER_API_KEY", ""),
			BaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Referer:    getEnv("OPENROUTER_REFERER", "https://openrouter.ai/"),
			Title:      getEnv("OPENROUTER_TITLE", "Telegram Subs-bot"),
			Timeout:    getEnvAsDuration("OPENROUTER_TIMEOUT", 120*time.Second),
			ModelsFile: getEnv("MODELS_FILE", ""),
		},

		Summary: SummaryConfig{
			ChunkSize:           getEnvAsInt("SUMMARY_CHUNK_SIZE", 1000),
			ShortTextThreshold:  getEnvAsInt("SUMMARY_SHORT_TEXT_THRESHOLD", 2000),
			ChunkPause:          getEnvAsDuration("SUMMARY_CHUNK_PAUSE", 2*time.Second),
			AggregationAttempts: getEnvAsInt("SUMMARY_AGGREGATION_ATTEMPTS", 3),
			AggregationDelay:    getEnvAsDuration("SUMMARY_AGGREGATION_DELAY", 5*time.Second),
		},

		MindMap: MindMapConfig{
			ChunkSize: getEnvAsInt("MINDMAP_CHUNK_SIZE", 2000),
		},

		Transcript: TranscriptConfig{
			DefaultLanguage:   getEnv("TRANSCRIPT_DEFAULT_LANGUAGE", "ru"),
			FallbackLanguages: getEnvAsStringSlice("TRANSCRIPT_FALLBACK_LANGUAGES", []string{"ru", "en"}),
			DisplayLimit:      getEnvAsInt("TRANSCRIPT_DISPLAY_LIMIT", 4000),
			YouTubeBaseURL:    getEnv("YOUTUBE_BASE_URL", "https://www.youtube.com"),
		},

		Voice: VoiceConfig{
			APIKey:        getEnv("SONIOX_API_KEY", ""),
			BaseURL:       getEnv("SONIOX_BASE_URL", "https://api.soniox.com"),
			Model:         getEnv("SONIOX_MODEL", "stt-async-preview"),
			PollInterval:  getEnvAsDuration("VOICE_POLL_INTERVAL", time.Second),
			MaxWait:       getEnvAsDuration("VOICE_MAX_WAIT", 300*time.Second),
			Workers:       getEnvAsInt("VOICE_WORKERS", 2),
			QueueSize:     getEnvAsInt("VOICE_QUEUE_SIZE", 20),
			Convert:       getEnvAsBool("VOICE_CONVERT", false),
			FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
			MaxUploadSize: getEnvAsInt64("VOICE_MAX_UPLOAD_SIZE", 25<<20),
		},

		Storage: StorageConfig{
			Enabled:   getEnvAsBool("STORAGE_ENABLED", false),
			AccessKey: getEnv("SPACES_KEY", ""),
			SecretKey: getEnv("SPACES_SECRET", ""),
			Region:    getEnv("SPACES_REGION", "us-east-1"),
			Endpoint:  getEnv("SPACES_ENDPOINT", ""),
			Bucket:    getEnv("SPACES_BUCKET", ""),
			URLExpiry: getEnvAsDuration("STORAGE_URL_EXPIRY", 24*time.Hour),
		},

		Middleware: defaultDevConfig(),
	}

	if os.Getenv("ENV") == "production" {
		cfg.Middleware = defaultProdConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}
	if err := validateTimeouts(c); err != nil {
		return err
	}
	if err := validateServices(c); err != nil {
		return err
	}
	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{c.TempDir, "temp directory"},
		{c.DataDir, "data directory"},
	}
	if c.Database.Enabled {
		paths = append(paths, struct {
			path string
			name string
		}{filepath.Dir(c.Database.Path), "database directory"})
	}

	for _, p := range paths {
		if p.path == "" {
			return fmt.Errorf("%s must be set", p.name)
		}
		if err := os.MkdirAll(p.path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}
	return nil
}

func validateTimeouts(c *Config) error {
	durations := []struct {
		value time.Duration
		name  string
	}{
		{c.ReadTimeout, "read timeout"},
		{c.WriteTimeout, "write timeout"},
		{c.RequestTimeout, "request timeout"},
		{c.OpenRouter.Timeout, "OpenRouter timeout"},
		{c.RateLimit.CallerInterval, "caller rate limit interval"},
		{c.RateLimit.GlobalInterval, "global rate limit interval"},
		{c.Retry.BaseDelay, "retry base delay"},
		{c.Voice.PollInterval, "voice poll interval"},
		{c.Voice.MaxWait, "voice max wait"},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max delay must not be shorter than the base delay")
	}
	if c.Summary.ChunkPause < 0 || c.Summary.AggregationDelay < 0 || c.Retry.MaxJitter < 0 {
		return fmt.Errorf("pauses and jitter must not be negative")
	}
	return nil
}

func validateServices(c *Config) error {
	switch {
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("retry max attempts must be at least 1")
	case c.Summary.ChunkSize < 1:
		return fmt.Errorf("summary chunk size must be positive")
	case c.Summary.ShortTextThreshold < 1:
		return fmt.Errorf("short text threshold must be positive")
	case c.Summary.AggregationAttempts < 1:
		return fmt.Errorf("aggregation attempts must be at least 1")
	case c.MindMap.ChunkSize < 1:
		return fmt.Errorf("mind map chunk size must be positive")
	case c.Transcript.DisplayLimit < 1:
		return fmt.Errorf("display limit must be positive")
	case c.Voice.Workers < 1 || c.Voice.QueueSize < 1:
		return fmt.Errorf("voice workers and queue size must be positive")
	case c.Storage.Enabled && c.Storage.Bucket == "":
		return fmt.Errorf("storage is enabled but SPACES_BUCKET is empty")
	}
	return nil
}

type modelsFile struct {
	Models []models.ModelDescriptor `yaml:"models"`
}

// LoadModels reads a model pool from a YAML file of the form
//
//	models:
//	  - name: DeepSeek V3
//	    id: deepseek/deepseek-chat-v3-0324:free
func LoadModels(path string) ([]models.ModelDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}

	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse models file %s: %w", path, err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("models file %s lists no models", path)
	}
	for i, m := range f.Models {
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("models file %s: entry %d has no id", path, i+1)
		}
		if strings.TrimSpace(m.Name) == "" {
			f.Models[i].Name = m.ID
		}
	}
	return f.Models, nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			return out
		}
	}
	return defaultValue
}
