package summary

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/chunker"
	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
	"github.com/Denni-Wild/Subs-bot-sub000/selector"
)

type Service struct {
	completer   Completer
	pool        *selector.Pool
	engine      *retry.Engine
	config      Config
	recorder    RunRecorder
	sleep       retry.Sleeper
	sessionOpts []selector.SessionOption
	logger      *logrus.Logger
}

type Option func(*Service)

// WithRecorder reports every finished run to r.
func WithRecorder(r RunRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithSleeper replaces the pauses between chunk and aggregation calls.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

func WithSessionOptions(opts ...selector.SessionOption) Option {
	return func(s *Service) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(completer Completer, pool *selector.Pool, engine *retry.Engine, config Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.ShortTextThreshold <= 0 {
		config.ShortTextThreshold = defaults.ShortTextThreshold
	}
	if config.ChunkPause < 0 {
		config.ChunkPause = 0
	}
	if config.AggregationAttempts <= 0 {
		config.AggregationAttempts = defaults.AggregationAttempts
	}
	if config.AggregationDelay < 0 {
		config.AggregationDelay = 0
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

// run is the state of one pipeline execution.
type run struct {
	id      string
	session *selector.Session
	stats   models.SummaryStats
	log     *logrus.Entry
}

func (r *run) used(model models.ModelDescriptor) {
	r.stats.Model = model.Name
	for _, name := range r.stats.Models {
		if name == model.Name {
			return
		}
	}
	r.stats.Models = append(r.stats.Models, model.Name)
}

// Summarize condenses text through chunked summarization and a final
// aggregation pass. A failed aggregation degrades to the labeled chunk
// summaries instead of failing. Once the pipeline has started, a failure
// still returns a result in the failed state carrying the statistics
// collected so far.
func (s *Service) Summarize(ctx context.Context, text string, opts Options) (*models.SummaryResult, error) {
	const op = "SummaryService.Summarize"

	if strings.TrimSpace(text) == "" {
		return nil, errors.EmptyInput(op, "Text to summarize is empty")
	}
	if err := s.checkConfigured(op); err != nil {
		return nil, err
	}

	r := &run{
		id:      uuid.NewString(),
		session: s.pool.NewSession(s.sessionOpts...),
	}
	r.log = s.logger.WithFields(logrus.Fields{
		"run_id": r.id,
		"caller": opts.CallerKey,
		"source": opts.Source,
	})
	r.stats.RunID = r.id
	r.stats.OriginalLength = utf8.RuneCountInString(text)
	r.stats.SourceLanguage = DetectLanguage(text)

	result, err := s.summarize(ctx, r, text, opts)
	if err != nil {
		result = &models.SummaryResult{State: models.SummaryFailed, Stats: r.stats}
	} else if opts.TranslateToRussian && r.stats.SourceLanguage != LanguageRussian {
		if translated, ok := s.translate(ctx, r, result.Text, r.stats.SourceLanguage); ok {
			result.Text = translated
			result.Stats.Translated = true
		}
	}
	result.Stats.SummaryLength = utf8.RuneCountInString(result.Text)
	result.Stats.Model = r.stats.Model
	result.Stats.Models = r.stats.Models

	s.record(ctx, r, opts, result, err)
	return result, err
}

func (s *Service) summarize(ctx context.Context, r *run, text string, opts Options) (*models.SummaryResult, error) {
	const op = "SummaryService.Summarize"

	chunks := chunker.Split(text, s.config.ChunkSize)
	if len(chunks) == 0 {
		return nil, errors.EmptyInput(op, "Text to summarize is empty")
	}
	r.stats.Chunks = len(chunks)
	r.log.WithFields(logrus.Fields{
		"chunks":   len(chunks),
		"length":   r.stats.OriginalLength,
		"language": r.stats.SourceLanguage,
	}).Info("Starting summarization")

	if len(chunks) == 1 && r.stats.OriginalLength < s.config.ShortTextThreshold {
		summary, ok, err := s.completeWithRetry(ctx, r, shortTextPrompt, text)
		if !ok {
			return nil, err
		}
		r.stats.ProcessedChunks = 1
		return &models.SummaryResult{Text: summary, State: models.SummaryDone, Stats: r.stats}, nil
	}

	prompt := chunkPrompt
	if p := strings.TrimSpace(opts.Prompt); p != "" {
		prompt = p
	}

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, ok, err := s.completeWithRetry(ctx, r, prompt, chunk)
		if ok {
			summaries = append(summaries, summary)
		} else {
			r.log.WithError(err).WithField("chunk", i+1).Warn("Skipping chunk after failed summarization")
			if ctx.Err() != nil {
				return nil, errors.OperationFailed(op, ctx.Err(), "Summarization cancelled")
			}
		}

		if i < len(chunks)-1 && s.config.ChunkPause > 0 {
			if err := s.sleep(ctx, s.config.ChunkPause); err != nil {
				return nil, errors.OperationFailed(op, err, "Summarization cancelled")
			}
		}
	}
	r.stats.ProcessedChunks = len(summaries)

	if len(summaries) == 0 {
		return nil, errors.OperationFailed(op, nil, "Failed to summarize any part of the text")
	}

	combined := strings.Join(summaries, "\n\n")
	final, err := s.aggregate(ctx, r, combined)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"processed_chunks": r.stats.ProcessedChunks,
		}).Warn("Aggregation failed, returning partial summaries")
		r.stats.FallbackUsed = true
		return &models.SummaryResult{
			Text:  degradedLabel + "\n\n" + combined,
			State: models.SummaryDegraded,
			Stats: r.stats,
		}, nil
	}

	return &models.SummaryResult{Text: final, State: models.SummaryDone, Stats: r.stats}, nil
}

// completeWithRetry sends one prompt through the retry engine, picking a
// fresh model from the session on every attempt.
func (s *Service) completeWithRetry(ctx context.Context, r *run, systemPrompt, userText string) (string, bool, error) {
	return retry.Do(ctx, s.engine, "SummaryService.complete", func(ctx context.Context) (string, error) {
		model := r.session.NextModel()
		text, err := s.completer.Complete(ctx, model.ID, systemPrompt, userText)
		if err != nil {
			r.log.WithError(err).WithField("model", model.Name).Debug("Completion failed")
			return "", err
		}
		r.used(model)
		return text, nil
	})
}

// aggregate runs its own bounded loop with a delay that grows per attempt.
func (s *Service) aggregate(ctx context.Context, r *run, combined string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.AggregationAttempts; attempt++ {
		model := r.session.NextModel()
		text, err := s.completer.Complete(ctx, model.ID, aggregationPrompt, combined)
		if err == nil && strings.TrimSpace(text) != "" {
			r.used(model)
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("empty aggregation result from %s", model.ID)
		}
		lastErr = err

		r.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"model":   model.Name,
		}).Warn("Aggregation attempt failed")

		if attempt < s.config.AggregationAttempts && s.config.AggregationDelay > 0 {
			if err := s.sleep(ctx, s.config.AggregationDelay*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// Translate renders text in Russian. sourceLanguage selects the prompt.
func (s *Service) Translate(ctx context.Context, text, sourceLanguage string) (string, error) {
	const op = "SummaryService.Translate"

	if strings.TrimSpace(text) == "" {
		return "", errors.EmptyInput(op, "Text to translate is empty")
	}
	if err := s.checkConfigured(op); err != nil {
		return "", err
	}
	if sourceLanguage == "" {
		sourceLanguage = DetectLanguage(text)
	}

	r := &run{session: s.pool.NewSession(s.sessionOpts...)}
	r.log = s.logger.WithField("op", op)
	translated, _, err := s.completeWithRetry(ctx, r, translatorPrompt, translationRequest(text, sourceLanguage))
	if err != nil {
		return "", err
	}
	return translated, nil
}

func (s *Service) translate(ctx context.Context, r *run, text, sourceLanguage string) (string, bool) {
	translated, ok, err := s.completeWithRetry(ctx, r, translatorPrompt, translationRequest(text, sourceLanguage))
	if !ok {
		r.log.WithError(err).Warn("Translation failed, keeping original summary")
		return text, false
	}
	return translated, true
}

func translationRequest(text, sourceLanguage string) string {
	prompt := translateFromAnyOther
	if sourceLanguage == LanguageEnglish {
		prompt = translateFromEnglish
	}
	return prompt + "\n\n" + text
}

// checkConfigured asks the completer whether it can make calls at all.
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
	return errors.Configuration(op, err, "Summarization is not configured")
}

func (s *Service) record(ctx context.Context, r *run, opts Options, result *models.SummaryResult, runErr error) {
	fields := logrus.Fields{
		"chunks":           r.stats.Chunks,
		"processed_chunks": r.stats.ProcessedChunks,
		"models":           r.stats.Models,
	}
	switch {
	case runErr != nil:
		r.log.WithFields(fields).WithError(runErr).Error("Summarization failed")
	case result.Degraded():
		r.log.WithFields(fields).Warn("Summarization finished degraded")
	default:
		r.log.WithFields(fields).Info("Summarization finished")
	}

	if s.recorder == nil {
		return
	}

	summaryRun := models.NewSummaryRun(r.id, opts.CallerKey, opts.Source, result)
	if runErr != nil {
		summaryRun.Error = errors.MessageOf(runErr)
	}
	if err := s.recorder.SaveRun(ctx, summaryRun); err != nil {
		r.log.WithError(err).Warn("Failed to record summary run")
	}
}

// DetectLanguage guesses the language from the share of Cyrillic and
// Latin letters among non-space characters.
func DetectLanguage(text string) string {
	var total, cyrillic, latin int
	for _, r := range strings.ToLower(text) {
		if r == ' ' {
			continue
		}
		total++
		switch {
		case r >= 'а' && r <= 'я', r == 'ё':
			cyrillic++
		case r >= 'a' && r <= 'z':
			latin++
		}
	}
	if total == 0 {
		return LanguageOther
	}
	switch {
	case float64(cyrillic)/float64(total) > 0.3:
		return LanguageRussian
	case float64(latin)/float64(total) > 0.5:
		return LanguageEnglish
	default:
		return LanguageOther
	}
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
