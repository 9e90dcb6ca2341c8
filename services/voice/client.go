package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
)

const (
	DefaultBaseURL      = "https://api.soniox.com"
	DefaultModel        = "stt-async-preview"
	DefaultPollInterval = time.Second
	DefaultMaxWait      = 300 * time.Second
)

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	LanguageHints []string
	PollInterval  time.Duration
	MaxWait       time.Duration
	// Convert runs uploads through the converter first.
	Convert bool
}

// Converter rewrites an audio file into an upload-friendly format. The
// returned cleanup removes the converted file.
type Converter interface {
	Convert(ctx context.Context, src string) (string, func(), error)
}

// StatusError is a non-2xx answer from the speech-to-text API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("soniox: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Client transcribes audio files through the Soniox async API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	engine     *retry.Engine
	converter  Converter
	sleep      retry.Sleeper
	logger     *logrus.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithConverter(conv Converter) Option {
	return func(c *Client) {
		c.converter = conv
	}
}

// WithSleeper replaces the pause between status polls.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewClient(cfg Config, engine *retry.Engine, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if len(cfg.LanguageHints) == 0 {
		cfg.LanguageHints = []string{"ru", "en"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		engine: engine.With(retry.WithMessages(retry.Messages{
			Quota:    "Speech recognition request limit exceeded. Please wait a few minutes and try again.",
			NotFound: "The transcription was not found",
			Failed:   "Speech recognition failed",
		})),
		sleep:  sleepContext,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Validate() error {
	const op = "VoiceClient.Validate"
	if c.cfg.APIKey == "" {
		return errors.Configuration(op, nil, "Speech recognition is not configured: Soniox API key is missing")
	}
	return nil
}

// Transcribe uploads the file at path, waits for the transcription and
// returns its text.
func (c *Client) Transcribe(ctx context.Context, path string) (*models.VoiceTranscript, error) {
	const op = "VoiceClient.Transcribe"
	logger := c.logger.WithField("file", filepath.Base(path))

	if err := c.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.InvalidInput(op, err, "Audio file not found")
	}
	if info.Size() == 0 {
		return nil, errors.InvalidInput(op, nil, "Audio file is empty")
	}

	upload := path
	if c.cfg.Convert && c.converter != nil {
		converted, cleanup, err := c.converter.Convert(ctx, path)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to convert audio")
		}
		defer cleanup()
		upload = converted
	}

	fileID, _, err := retry.Do(ctx, c.engine, "VoiceClient.upload", func(ctx context.Context) (string, error) {
		return c.upload(ctx, upload)
	})
	if err != nil {
		return nil, err
	}
	defer c.cleanup(fileID, "files")
	logger = logger.WithField("file_id", fileID)

	transcriptionID, _, err := retry.Do(ctx, c.engine, "VoiceClient.start", func(ctx context.Context) (string, error) {
		return c.start(ctx, fileID)
	})
	if err != nil {
		return nil, err
	}
	defer c.cleanup(transcriptionID, "transcriptions")
	logger = logger.WithField("transcription_id", transcriptionID)
	logger.Info("Transcription started")

	status, err := c.wait(ctx, transcriptionID)
	if err != nil {
		logger.WithError(err).Warn("Transcription did not complete")
		return nil, err
	}

	result, _, err := retry.Do(ctx, c.engine, "VoiceClient.transcript", func(ctx context.Context) (*models.VoiceTranscript, error) {
		return c.transcript(ctx, transcriptionID)
	})
	if err != nil {
		return nil, err
	}
	result.AudioDuration = time.Duration(status.AudioDurationMs) * time.Millisecond
	if result.Language == "" {
		result.Language = status.Language
	}

	logger.WithFields(logrus.Fields{
		"length":     len(result.Text),
		"tokens":     result.Tokens,
		"confidence": result.Confidence,
	}).Info("Transcription completed")
	return result, nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("soniox: open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	field, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("soniox: create file field: %w", err)
	}
	if _, err := io.Copy(field, file); err != nil {
		return "", fmt.Errorf("soniox: copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("soniox: close multipart writer: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/files", writer.FormDataContentType(), body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("soniox: decode response: upload returned no file id")
	}
	return resp.ID, nil
}

type transcriptionRequest struct {
	FileID                       string   `json:"file_id"`
	Model                        string   `json:"model"`
	LanguageHints                []string `json:"language_hints"`
	EnableSpeakerDiarization     bool     `json:"enable_speaker_diarization"`
	EnableLanguageIdentification bool     `json:"enable_language_identification"`
}

func (c *Client) start(ctx context.Context, fileID string) (string, error) {
	payload, err := json.Marshal(transcriptionRequest{
		FileID:                       fileID,
		Model:                        c.cfg.Model,
		LanguageHints:                c.cfg.LanguageHints,
		EnableLanguageIdentification: true,
	})
	if err != nil {
		return "", fmt.Errorf("soniox: encode request: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/transcriptions", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("soniox: decode response: transcription returned no id")
	}
	return resp.ID, nil
}

type transcriptionStatus struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"error_message"`
	AudioDurationMs int64  `json:"audio_duration_ms"`
	Language        string `json:"language"`
}

// wait polls the transcription until it completes, fails, or MaxWait
// passes. Network errors while polling do not end the wait.
func (c *Client) wait(ctx context.Context, id string) (*transcriptionStatus, error) {
	const op = "VoiceClient.wait"
	deadline := time.Now().Add(c.cfg.MaxWait)

	for attempt := 0; ; attempt++ {
		var status transcriptionStatus
		err := c.do(ctx, http.MethodGet, "/v1/transcriptions/"+id, "", nil, &status)
		switch {
		case err == nil:
			switch status.Status {
			case "completed":
				return &status, nil
			case "error":
				msg := status.ErrorMessage
				if msg == "" {
					msg = "unknown error"
				}
				return nil, errors.OperationFailed(op, fmt.Errorf("soniox: %s", msg), "Speech recognition failed: "+msg)
			}
		case errors.IsKind(err, errors.KindConfiguration):
			return nil, err
		default:
			if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
				return nil, errors.ResourceNotFound(op, err, "The transcription was not found")
			}
			c.logger.WithError(err).WithField("attempt", attempt+1).Debug("Status poll failed")
		}

		if ctx.Err() != nil {
			return nil, errors.OperationFailed(op, ctx.Err(), "Speech recognition cancelled")
		}
		if !time.Now().Before(deadline) {
			return nil, errors.TransientIO(op, nil, fmt.Sprintf("Speech recognition did not finish within %s", c.cfg.MaxWait))
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, errors.OperationFailed(op, err, "Speech recognition cancelled")
		}
	}
}

type transcriptResponse struct {
	Text   string `json:"text"`
	Tokens []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Language   string  `json:"language"`
	} `json:"tokens"`
}

func (c *Client) transcript(ctx context.Context, id string) (*models.VoiceTranscript, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transcriptions/"+id+"/transcript", "", nil, &resp); err != nil {
		return nil, err
	}

	text := strings.Join(strings.Fields(resp.Text), " ")
	var sb strings.Builder
	var confidence float64
	language := ""
	for _, tok := range resp.Tokens {
		sb.WriteString(tok.Text)
		confidence += tok.Confidence
		if language == "" && tok.Language != "" {
			language = tok.Language
		}
	}
	if text == "" {
		text = strings.Join(strings.Fields(sb.String()), " ")
	}
	avg := 0.0
	if len(resp.Tokens) > 0 {
		avg = confidence / float64(len(resp.Tokens))
	}

	return &models.VoiceTranscript{
		TranscriptionID: id,
		Text:            text,
		Language:        language,
		Confidence:      avg,
		Tokens:          len(resp.Tokens),
	}, nil
}

// cleanup deletes a remote resource. Failures are only logged.
func (c *Client) cleanup(id, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.do(ctx, http.MethodDelete, "/v1/"+kind+"/"+id, "", nil, nil); err != nil {
		c.logger.WithError(err).WithField("id", id).Debug("Failed to delete remote " + kind)
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	const op = "VoiceClient.do"

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("soniox: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("soniox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("soniox: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Configuration(op, &StatusError{StatusCode: resp.StatusCode, Body: string(data)},
			"Speech recognition is not configured: Soniox rejected the API key")
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusRequestEntityTooLarge:
		return errors.InvalidInput(op, &StatusError{StatusCode: resp.StatusCode, Body: string(data)},
			"Speech recognition rejected the audio file")
	case resp.StatusCode >= http.StatusMultipleChoices:
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("soniox: decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
