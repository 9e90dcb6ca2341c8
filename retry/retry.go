package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 60 * time.Second
	DefaultMaxJitter   = time.Second
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// MaxJitter bounds the random delay added to rate-limited backoff.
	MaxJitter time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Messages are the user-facing texts of the errors the engine returns.
type Messages struct {
	Quota       string
	Disabled    string
	NotFound    string
	Unavailable string
	Failed      string
	Cancelled   string
}

func DefaultMessages() Messages {
	return Messages{
		Quota:       "Request limit exceeded. Please wait a few minutes and try again.",
		Disabled:    "The requested resource is disabled",
		NotFound:    "The requested resource was not found",
		Unavailable: "The requested resource is unavailable",
		Failed:      "Operation failed",
		Cancelled:   "Operation cancelled",
	}
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Jitter returns a random duration in [0, max).
type Jitter func(max time.Duration) time.Duration

type Engine struct {
	config     Config
	messages   Messages
	classifier *Classifier
	sleep      Sleeper
	jitter     Jitter
	log        logrus.FieldLogger
}

type Option func(*Engine)

func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		if s != nil {
			e.sleep = s
		}
	}
}

func WithJitter(j Jitter) Option {
	return func(e *Engine) {
		if j != nil {
			e.jitter = j
		}
	}
}

func WithClassifier(c *Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

func WithMessages(m Messages) Option {
	return func(e *Engine) {
		defaults := DefaultMessages()
		if m.Quota == "" {
			m.Quota = defaults.Quota
		}
		if m.Disabled == "" {
			m.Disabled = defaults.Disabled
		}
		if m.NotFound == "" {
			m.NotFound = defaults.NotFound
		}
		if m.Unavailable == "" {
			m.Unavailable = defaults.Unavailable
		}
		if m.Failed == "" {
			m.Failed = defaults.Failed
		}
		if m.Cancelled == "" {
			m.Cancelled = defaults.Cancelled
		}
		e.messages = m
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func New(cfg Config, opts ...Option) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}

	e := &Engine{
		config:     cfg,
		messages:   DefaultMessages(),
		classifier: NewClassifier(),
		sleep:      sleepContext,
		jitter:     randomJitter,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// With returns a copy of e with opts applied on top.
func (e *Engine) With(opts ...Option) *Engine {
	clone := *e
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

func (e *Engine) Config() Config { return e.config }

func (e *Engine) Classifier() *Classifier { return e.classifier }

// Do runs fn until it succeeds, fails terminally, or MaxAttempts calls have
// been made. The returned error is always an *errors.AppError.
func Do[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, false, errors.OperationFailed(op, err, e.messages.Cancelled)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.log.WithFields(logrus.Fields{
					"op":      op,
					"attempt": attempt + 1,
				}).Info("Operation succeeded after retry")
			}
			return result, true, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, false, errors.OperationFailed(op, err, e.messages.Cancelled)
		}

		// Errors already tagged with a non-retryable kind pass through.
		if appErr, ok := errors.As(err); ok && passThrough(appErr.Kind) {
			return zero, false, appErr
		}

		class := ClassUnknown
		if !isTimeout(err) {
			class = e.classifier.Classify(err)
		}

		fields := logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"max":     e.config.MaxAttempts,
			"class":   class,
			"error":   err.Error(),
		}

		if class.Terminal() {
			e.log.WithFields(fields).Warn("Operation failed permanently")
			return zero, false, e.terminal(op, class, err)
		}

		last := attempt == e.config.MaxAttempts-1
		if last {
			break
		}

		delay := e.delay(class, attempt)
		fields["delay"] = delay
		e.log.WithFields(fields).Warn("Operation failed, retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return zero, false, errors.OperationFailed(op, err, e.messages.Cancelled)
		}
	}

	class := ClassUnknown
	if !isTimeout(lastErr) {
		class = e.classifier.Classify(lastErr)
	}
	e.log.WithFields(logrus.Fields{
		"op":       op,
		"attempts": e.config.MaxAttempts,
		"class":    class,
		"error":    lastErr.Error(),
	}).Error("Operation failed after all attempts")

	if class == ClassRateLimited {
		return zero, false, errors.QuotaExceeded(op, lastErr, e.messages.Quota)
	}
	return zero, false, errors.OperationFailed(op, lastErr, e.messages.Failed+": "+lastErr.Error())
}

// delay returns the wait before the retry that follows attempt (0-based).
func (e *Engine) delay(class Class, attempt int) time.Duration {
	backoff := float64(e.config.BaseDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(e.config.MaxDelay) {
		backoff = float64(e.config.MaxDelay)
	}
	d := time.Duration(backoff)

	if class == ClassRateLimited && e.config.MaxJitter > 0 {
		d += e.jitter(e.config.MaxJitter)
	}
	if d > e.config.MaxDelay {
		d = e.config.MaxDelay
	}
	return d
}

func (e *Engine) terminal(op string, class Class, err error) *errors.AppError {
	switch class {
	case ClassResourceDisabled:
		return errors.ResourceDisabled(op, err, e.messages.Disabled)
	case ClassResourceNotFound:
		return errors.ResourceNotFound(op, err, e.messages.NotFound)
	default:
		return errors.ResourceUnavailable(op, err, e.messages.Unavailable)
	}
}

func passThrough(kind errors.Kind) bool {
	switch kind {
	case errors.KindConfiguration, errors.KindInvalidInput, errors.KindEmptyInput,
		errors.KindResourceDisabled, errors.KindResourceNotFound, errors.KindResourceUnavailable:
		return true
	}
	return false
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

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
