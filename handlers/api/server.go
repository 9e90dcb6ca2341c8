// handlers/api/server.go
package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/config"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/ratelimit"
	"github.com/Denni-Wild/Subs-bot-sub000/repository"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

type Server struct {
	transcripts TranscriptService
	summarizer  Summarizer
	mindmaps    MindMapper
	attachments AttachmentStore
	voice       VoiceQueue
	runs        repository.RunRepository
	limiter     *ratelimit.Limiter
	validator   *validation.Validator
	config      *config.Config
	logger      *logrus.Logger
	server      *http.Server
	startTime   time.Time
}

type ServerOption func(*Server)

// NewServer creates a new API server with the provided services and options
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		validator: validation.NewValidator(cfg),
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithServices sets the transcript and summarization pipelines.
func WithServices(transcripts TranscriptService, summarizer Summarizer) ServerOption {
	return func(s *Server) {
		s.transcripts = transcripts
		s.summarizer = summarizer
	}
}

// WithMindMaps enables POST /api/v1/mindmap.
func WithMindMaps(mapper MindMapper) ServerOption {
	return func(s *Server) {
		s.mindmaps = mapper
	}
}

// WithAttachments enables delivery of long results as files.
func WithAttachments(store AttachmentStore) ServerOption {
	return func(s *Server) {
		s.attachments = store
	}
}

func WithVoiceQueue(queue VoiceQueue) ServerOption {
	return func(s *Server) {
		s.voice = queue
	}
}

func WithRepository(runs repository.RunRepository) ServerOption {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithLimiter enables per-caller throttling of POST routes.
func WithLimiter(limiter *ratelimit.Limiter) ServerOption {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithLogger sets a custom logger for the server
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.addV1Routes(mux)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.middleware(mux)
}

func (s *Server) addV1Routes(mux *http.ServeMux) {
	const v1Prefix = "/api/v1"

	mux.HandleFunc("GET "+v1Prefix+"/tracks", s.handleListTracks)
	mux.HandleFunc("POST "+v1Prefix+"/subtitles", s.handleSubtitles)

	mux.HandleFunc("POST "+v1Prefix+"/summary", s.handleSummary)
	mux.HandleFunc("POST "+v1Prefix+"/mindmap", s.handleMindMap)

	mux.HandleFunc("POST "+v1Prefix+"/voice", s.handleVoice)

	mux.HandleFunc("POST "+v1Prefix+"/feedback", s.handleFeedback)
	mux.HandleFunc("GET "+v1Prefix+"/stats/models", s.handleModelStats)
	mux.HandleFunc("GET "+v1Prefix+"/runs/{id}", s.handleGetRun)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	flags := s.config.Middleware
	var middlewares []func(http.Handler) http.Handler

	if flags.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if flags.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if flags.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if flags.EnableCORS {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if flags.EnableTimeout {
		middlewares = append(middlewares, middleware.Timeout(s.config.RequestTimeout))
	}
	if flags.EnableRateLimit && s.config.RateLimit.Enabled && s.limiter != nil {
		middlewares = append(middlewares, middleware.CallerRateLimit(s.limiter))
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
		"features": map[string]bool{
			"transcripts": s.transcripts != nil,
			"summary":     s.summarizer != nil,
			"mindmap":     s.mindmaps != nil,
			"voice":       s.voice != nil,
			"attachments": s.attachments != nil,
			"feedback":    s.runs != nil,
		},
	}
	if s.limiter != nil {
		status["tracked_callers"] = s.limiter.Len()
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
