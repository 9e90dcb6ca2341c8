package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/config"
	"github.com/Denni-Wild/Subs-bot-sub000/logger"
	"github.com/Denni-Wild/Subs-bot-sub000/ratelimit"
	"github.com/Denni-Wild/Subs-bot-sub000/repository/sqlite"
	"github.com/Denni-Wild/Subs-bot-sub000/retry"
	"github.com/Denni-Wild/Subs-bot-sub000/scripts"
	"github.com/Denni-Wild/Subs-bot-sub000/selector"
	"github.com/Denni-Wild/Subs-bot-sub000/services/llm"
	"github.com/Denni-Wild/Subs-bot-sub000/services/mindmap"
	"github.com/Denni-Wild/Subs-bot-sub000/services/summary"
	"github.com/Denni-Wild/Subs-bot-sub000/services/transcript"
	"github.com/Denni-Wild/Subs-bot-sub000/services/voice"
	"github.com/Denni-Wild/Subs-bot-sub000/storage"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer

	limiter     *ratelimit.Limiter
	pool        *selector.Pool
	transcripts *transcript.Service
	summaries   *summary.Service
	mindmaps    *mindmap.Service
	voice       *voice.Client

	db          *sqlite.DB
	runs        *sqlite.Repository
	attachments *storage.SpacesClient
}

type appOptions struct {
	// database opens the run log; summaries are recorded when it is set.
	database bool
	// attachments connects the object store when it is enabled.
	attachments bool
	// console sends logs to stderr so command output stays clean.
	console io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log, closer, err := logger.New(logger.Config{
		Dir:    cfg.LogDir,
		Level:  cfg.LogLevel,
		Debug:  cfg.Debug,
		Stdout: opts.console,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize logger")
	}
	logger.Install(log)

	a := &app{cfg: cfg, log: log, logCloser: closer}

	descriptors := selector.DefaultModels()
	if cfg.OpenRouter.ModelsFile != "" {
		if descriptors, err = config.LoadModels(cfg.OpenRouter.ModelsFile); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.pool, err = selector.NewPool(descriptors); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "build model pool")
	}

	a.limiter = ratelimit.New(ratelimit.Config{
		CallerInterval: cfg.RateLimit.CallerInterval,
		GlobalInterval: cfg.RateLimit.GlobalInterval,
		IdleTTL:        cfg.RateLimit.IdleTTL,
	})

	engine := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxJitter:   cfg.Retry.MaxJitter,
	}, retry.WithLogger(log))

	a.transcripts = transcript.NewService(
		transcript.NewYouTube(cfg.Transcript.YouTubeBaseURL),
		a.limiter,
		engine,
		transcript.Config{FallbackLanguages: cfg.Transcript.FallbackLanguages},
	)

	if opts.database && cfg.Database.Enabled {
		dbConfig := sqlite.DefaultDBConfig()
		dbConfig.MaxConnections = cfg.Database.MaxConnections
		dbConfig.MaxIdleConnections = cfg.Database.MaxIdleConnections
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime

		if a.db, err = sqlite.Open(ctx, cfg.Database.Path, dbConfig); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "open database")
		}
		a.runs = sqlite.NewRepository(a.db)
	}

	summaryOpts := []summary.Option{summary.WithLogger(log)}
	if a.runs != nil {
		summaryOpts = append(summaryOpts, summary.WithRecorder(a.runs))
	}
	completer := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenRouter.APIKey,
		BaseURL: cfg.OpenRouter.BaseURL,
		Referer: cfg.OpenRouter.Referer,
		Title:   cfg.OpenRouter.Title,
		Timeout: cfg.OpenRouter.Timeout,
	})
	completionEngine := llm.RetryEngine(engine)
	a.summaries = summary.NewService(completer, a.pool, completionEngine, summary.Config{
		ChunkSize:           cfg.Summary.ChunkSize,
		ShortTextThreshold:  cfg.Summary.ShortTextThreshold,
		ChunkPause:          cfg.Summary.ChunkPause,
		AggregationAttempts: cfg.Summary.AggregationAttempts,
		AggregationDelay:    cfg.Summary.AggregationDelay,
	}, summaryOpts...)
	a.mindmaps = mindmap.NewService(completer, a.pool, completionEngine, mindmap.Config{
		ChunkSize:  cfg.MindMap.ChunkSize,
		ChunkPause: cfg.Summary.ChunkPause,
	}, mindmap.WithLogger(log))

	var voiceOpts []voice.Option
	if cfg.Voice.Convert {
		runner, err := scripts.NewRunner(scripts.Config{
			FFmpegPath: cfg.Voice.FFmpegPath,
			TempDir:    cfg.TempDir,
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "initialize ffmpeg runner")
		}
		voiceOpts = append(voiceOpts, voice.WithConverter(runner))
	}
	a.voice = voice.NewClient(voice.Config{
		APIKey:       cfg.Voice.APIKey,
		BaseURL:      cfg.Voice.BaseURL,
		Model:        cfg.Voice.Model,
		PollInterval: cfg.Voice.PollInterval,
		MaxWait:      cfg.Voice.MaxWait,
	}, engine, voiceOpts...)

	if opts.attachments && cfg.Storage.Enabled {
		a.attachments, err = storage.NewSpacesClient(ctx, storage.SpacesConfig{
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			Bucket:    cfg.Storage.Bucket,
			URLExpiry: cfg.Storage.URLExpiry,
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "initialize attachment storage")
		}
	}

	log.WithFields(logrus.Fields{
		"models":      a.pool.Len(),
		"database":    a.db != nil,
		"attachments": a.attachments != nil,
		"convert":     cfg.Voice.Convert,
	}).Debug("Services initialized")

	return a, nil
}

// requireRuns fails when the run log is disabled.
func (a *app) requireRuns() error {
	if a.runs == nil {
		return fmt.Errorf("the run log is disabled (DB_ENABLED=false)")
	}
	return nil
}

func (a *app) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = err
		}
		a.db = nil
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.logCloser = nil
	}
	return firstErr
}
