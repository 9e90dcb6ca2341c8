package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/ratelimit"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
)

// Provider is the remote caption host.
type Provider interface {
	ListTracks(ctx context.Context, videoID string) ([]models.Track, error)
	FetchTrack(ctx context.Context, videoID, languageCode string) ([]models.TranscriptLine, error)
	FetchTrackByHandle(ctx context.Context, track models.Track) ([]models.TranscriptLine, error)
}

type Config struct {
	// FallbackLanguages are tried in order when none of the requested
	// languages has a track.
	FallbackLanguages []string
}

func DefaultConfig() Config {
	return Config{FallbackLanguages: []string{"ru", "en"}}
}

// Messages returns the user-facing texts for caption failures.
func Messages() retry.Messages {
	return retry.Messages{
		Quota:       "YouTube request limit exceeded. Please wait a few minutes and try again.",
		Disabled:    "Subtitles are disabled for this video",
		NotFound:    "No subtitles were found for this video",
		Unavailable: "The video is unavailable",
		Failed:      "Failed to fetch subtitles",
	}
}

type strategy struct {
	name  string
	fetch func(ctx context.Context, videoID string, track models.Track) ([]models.TranscriptLine, error)
}

type Service struct {
	provider   Provider
	limiter    *ratelimit.Limiter
	engine     *retry.Engine
	config     Config
	strategies []strategy
	logger     *logrus.Logger
}

// NewService wires the acquisition flow. limiter may be nil to skip the
// global gate.
func NewService(provider Provider, limiter *ratelimit.Limiter, engine *retry.Engine, config Config) *Service {
	if len(config.FallbackLanguages) == 0 {
		config.FallbackLanguages = DefaultConfig().FallbackLanguages
	}
	s := &Service{
		provider: provider,
		limiter:  limiter,
		engine:   engine.With(retry.WithMessages(Messages())),
		config:   config,
		logger:   logrus.StandardLogger(),
	}
	s.strategies = []strategy{
		{name: "direct", fetch: s.fetchDirect},
		{name: "handle", fetch: s.fetchByHandle},
		{name: "generated", fetch: s.fetchGenerated},
	}
	return s
}

// ListTracks lists the caption tracks of a video.
func (s *Service) ListTracks(ctx context.Context, videoID string) ([]models.Track, error) {
	const op = "TranscriptService.ListTracks"

	if strings.TrimSpace(videoID) == "" {
		return nil, errors.InvalidInput(op, nil, "Video ID is required")
	}

	tracks, _, err := retry.Do(ctx, s.engine, op, func(ctx context.Context) ([]models.Track, error) {
		if err := s.gate(ctx); err != nil {
			return nil, err
		}
		return s.provider.ListTracks(ctx, videoID)
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// Fetch acquires the transcript of videoID in the first available
// preferred language. The boolean is true on success.
func (s *Service) Fetch(ctx context.Context, videoID string, preferred []string) (*models.Transcript, bool, error) {
	const op = "TranscriptService.Fetch"
	logger := s.logger.WithFields(logrus.Fields{
		"video_id":  videoID,
		"preferred": preferred,
	})

	tracks, err := s.ListTracks(ctx, videoID)
	if err != nil {
		logger.WithError(err).Warn("Failed to list tracks")
		return nil, false, err
	}

	track, fallback := ResolveTrack(tracks, preferred, s.config.FallbackLanguages)
	if fallback {
		logger.WithField("language", track.LanguageCode).Info("Requested language not available, using fallback")
	}

	type fetched struct {
		strategy string
		lines    []models.TranscriptLine
	}

	result, ok, err := retry.Do(ctx, s.engine, op, func(ctx context.Context) (fetched, error) {
		var errs []error
		for _, st := range s.strategies {
			if err := s.gate(ctx); err != nil {
				return fetched{}, err
			}
			// Only an error moves on to the next strategy. Providers report
			// empty tracks as errors.
			lines, err := st.fetch(ctx, videoID, track)
			if err == nil {
				return fetched{strategy: st.name, lines: lines}, nil
			}
			logger.WithError(err).WithField("strategy", st.name).Debug("Strategy failed")
			errs = append(errs, err)
		}
		return fetched{}, s.strategiesFailed(errs)
	})
	if !ok {
		logger.WithError(err).Warn("Failed to fetch transcript")
		return nil, false, err
	}

	logger.WithFields(logrus.Fields{
		"language": track.LanguageCode,
		"strategy": result.strategy,
		"lines":    len(result.lines),
	}).Info("Transcript fetched")

	return &models.Transcript{
		VideoID:      videoID,
		LanguageCode: track.LanguageCode,
		LanguageName: track.LanguageName,
		Fallback:     fallback,
		Strategy:     result.strategy,
		Lines:        result.lines,
	}, true, nil
}

func (s *Service) gate(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.WaitGlobal(ctx)
}

func (s *Service) fetchDirect(ctx context.Context, videoID string, track models.Track) ([]models.TranscriptLine, error) {
	return s.provider.FetchTrack(ctx, videoID, track.LanguageCode)
}

func (s *Service) fetchByHandle(ctx context.Context, _ string, track models.Track) ([]models.TranscriptLine, error) {
	return s.provider.FetchTrackByHandle(ctx, track)
}

// fetchGenerated re-lists the tracks and fetches the auto-generated one, or
// the first track when none is generated.
func (s *Service) fetchGenerated(ctx context.Context, videoID string, _ models.Track) ([]models.TranscriptLine, error) {
	tracks, err := s.provider.ListTracks(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("No transcripts were found for this video (%s)", videoID)
	}
	pick := tracks[0]
	for _, t := range tracks {
		if t.Generated {
			pick = t
			break
		}
	}
	return s.provider.FetchTrackByHandle(ctx, pick)
}

// strategiesFailed picks the error that decides whether the attempt is
// retried: a rate limit wins over transient failures, which win over
// terminal ones.
func (s *Service) strategiesFailed(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("No transcripts were found: no strategy is configured")
	}
	classifier := s.engine.Classifier()
	best, bestRank := errs[0], rank(classifier.Classify(errs[0]))
	for _, err := range errs[1:] {
		if r := rank(classifier.Classify(err)); r > bestRank {
			best, bestRank = err, r
		}
	}
	return &strategyError{primary: best, all: errs}
}

func rank(class retry.Class) int {
	switch class {
	case retry.ClassRateLimited:
		return 3
	case retry.ClassTransientParse, retry.ClassUnknown:
		return 2
	default:
		return 1
	}
}

// strategyError carries every strategy failure; only the primary one is
// exposed to classification.
type strategyError struct {
	primary error
	all     []error
}

func (e *strategyError) Error() string { return e.primary.Error() }

func (e *strategyError) Unwrap() error { return e.primary }

// ResolveTrack picks the track for the first preferred language present,
// then the first fallback language, then the first track. Languages match
// on their base, so en-US selects an en track. Manual tracks win over
// generated ones of the same language. The boolean reports whether the
// choice is not one of the preferred languages.
func ResolveTrack(tracks []models.Track, preferred, fallback []string) (models.Track, bool) {
	if len(tracks) == 0 {
		return models.Track{}, true
	}
	if t, ok := findTrack(tracks, preferred); ok {
		return t, false
	}
	if t, ok := findTrack(tracks, fallback); ok {
		return t, true
	}
	return tracks[0], true
}

func findTrack(tracks []models.Track, languages []string) (models.Track, bool) {
	for _, lang := range languages {
		var generated *models.Track
		for i, t := range tracks {
			if !sameLanguage(t.LanguageCode, lang) {
				continue
			}
			if !t.Generated {
				return t, true
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return models.Track{}, false
}

func sameLanguage(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	return baseA == baseB
}
