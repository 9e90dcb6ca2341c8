package mindmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/chunker"
	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
	"github.com/Denni-Wild/Subs-bot-sub000/selector"
)

// Completer is the remote model host.
type Completer interface {
	Complete(ctx context.Context, modelID, systemPrompt, userText string) (string, error)
}

type Config struct {
	ChunkSize  int
	ChunkPause time.Duration
}

func DefaultConfig() Config {
	return Config{ChunkSize: 2000}
}

const ideasPrompt = `Проанализируй следующий текст и выдели основные идеи, концепции и темы.
Верни только список ключевых идей в формате JSON массива строк.

Формат ответа:
["идея 1", "идея 2", "идея 3"]`

type Service struct {
	completer Completer
	pool      *selector.Pool
	engine    *retry.Engine
	config    Config
	sleep     retry.Sleeper
	logger    *logrus.Logger
}

type Option func(*Service)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleeper replaces the pause between chunk calls.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func NewService(completer Completer, pool *selector.Pool, engine *retry.Engine, config Config, opts ...Option) *Service {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.ChunkPause < 0 {
		config.ChunkPause = 0
	}

	s := &Service{
		completer: completer,
		pool:      pool,
		engine:    engine,
		config:    config,
		sleep:     sleepContext,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds the mind map of text and renders it in format.
func (s *Service) Generate(ctx context.Context, text string, format Format) (*Result, error) {
	const op = "MindMapService.Generate"

	m, err := s.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	result, err := Render(m, format)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to render the mind map")
	}
	return result, nil
}

// Analyze extracts ideas chunk by chunk and groups them into topics. A
// chunk whose ideas cannot be extracted is skipped; the run fails only
// when no chunk yields a usable answer.
func (s *Service) Analyze(ctx context.Context, text string) (*models.MindMap, error) {
	const op = "MindMapService.Analyze"

	if strings.TrimSpace(text) == "" {
		return nil, errors.EmptyInput(op, "Text for the mind map is empty")
	}
	if err := s.checkConfigured(op); err != nil {
		return nil, err
	}

	chunks := chunker.Split(text, s.config.ChunkSize)
	if len(chunks) == 0 {
		return nil, errors.EmptyInput(op, "Text for the mind map is empty")
	}

	session := s.pool.NewSession()
	log := s.logger.WithFields(logrus.Fields{"op": op, "chunks": len(chunks)})
	log.Info("Starting mind map analysis")

	var (
		ideas     []string
		used      []string
		processed int
		lastErr   error
	)
	for i, chunk := range chunks {
		chunkIdeas, model, ok, err := s.extract(ctx, session, chunk)
		if ok {
			processed++
			ideas = append(ideas, chunkIdeas...)
			used = appendUnique(used, model)
		} else {
			lastErr = err
			log.WithError(err).WithField("chunk", i+1).Warn("Skipping chunk after failed idea extraction")
			if ctx.Err() != nil {
				return nil, errors.OperationFailed(op, ctx.Err(), "Mind map generation cancelled")
			}
		}

		if i < len(chunks)-1 && s.config.ChunkPause > 0 {
			if err := s.sleep(ctx, s.config.ChunkPause); err != nil {
				return nil, errors.OperationFailed(op, err, "Mind map generation cancelled")
			}
		}
	}

	if processed == 0 {
		if errors.IsKind(lastErr, errors.KindQuotaExceeded) {
			return nil, lastErr
		}
		return nil, errors.OperationFailed(op, lastErr, "Failed to extract ideas from the text")
	}

	m := BuildHierarchy(ideas)
	m.Stats = models.MindMapStats{
		Chunks:          len(chunks),
		ProcessedChunks: processed,
		Ideas:           m.IdeaCount(),
		Models:          used,
	}
	log.WithFields(logrus.Fields{
		"processed_chunks": processed,
		"ideas":            m.Stats.Ideas,
		"topics":           len(m.Topics),
	}).Info("Mind map built")
	return m, nil
}

// extract asks one model per attempt for the ideas of chunk. An answer
// that is not a JSON array of strings counts as a failed attempt.
func (s *Service) extract(ctx context.Context, session *selector.Session, chunk string) ([]string, string, bool, error) {
	type answer struct {
		ideas []string
		model string
	}
	a, ok, err := retry.Do(ctx, s.engine, "MindMapService.extract", func(ctx context.Context) (answer, error) {
		model := session.NextModel()
		content, err := s.completer.Complete(ctx, model.ID, ideasPrompt, chunk)
		if err != nil {
			return answer{}, err
		}
		ideas, err := ParseIdeas(content)
		if err != nil {
			return answer{}, err
		}
		return answer{ideas: ideas, model: model.Name}, nil
	})
	return a.ideas, a.model, ok, err
}

// ParseIdeas reads the JSON array of strings in a model answer. Text
// around the array, such as a code fence, is ignored.
func ParseIdeas(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("decode response: no JSON array in answer")
	}

	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	ideas := make([]string, 0, len(raw))
	for _, idea := range raw {
		if idea = strings.Join(strings.Fields(idea), " "); idea != "" {
			ideas = append(ideas, idea)
		}
	}
	return ideas, nil
}

func (s *Service) checkConfigured(op string) error {
	v, ok := s.completer.(interface{ Validate() error })
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, isApp := errors.As(err); isApp {
		return err
	}
	return errors.Configuration(op, err, "Mind maps are not configured")
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
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
