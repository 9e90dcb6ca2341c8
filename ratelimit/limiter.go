package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultCallerInterval = 15 * time.Second
	DefaultGlobalInterval = 2 * time.Second
	DefaultIdleTTL        = time.Hour
)

type Config struct {
	CallerInterval time.Duration
	GlobalInterval time.Duration
	// IdleTTL is how long a caller entry may stay unused before Sweep drops it.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		CallerInterval: DefaultCallerInterval,
		GlobalInterval: DefaultGlobalInterval,
		IdleTTL:        DefaultIdleTTL,
	}
}

type callerEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

// Limiter enforces a minimum interval between permitted calls, per caller
// key and across all callers. Denied calls leave the state untouched.
type Limiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	callers map[string]*callerEntry

	globalMu sync.Mutex
	global   *rate.Limiter
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Limiter {
	if cfg.CallerInterval <= 0 {
		cfg.CallerInterval = DefaultCallerInterval
	}
	if cfg.GlobalInterval <= 0 {
		cfg.GlobalInterval = DefaultGlobalInterval
	}
	if cfg.IdleTTL < cfg.CallerInterval {
		cfg.IdleTTL = cfg.CallerInterval
	}

	l := &Limiter{
		config:  cfg,
		now:     time.Now,
		callers: make(map[string]*callerEntry),
		global:  newIntervalLimiter(cfg.GlobalInterval),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// newIntervalLimiter returns a bucket holding a single token that refills
// once per interval.
func newIntervalLimiter(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Allow reports whether callerKey may proceed now. When it may not, the
// second value is the time left until it may.
func (l *Limiter) Allow(callerKey string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.callers[callerKey]
	if !ok {
		entry = &callerEntry{limiter: newIntervalLimiter(l.config.CallerInterval)}
		l.callers[callerKey] = entry
	}

	if entry.limiter.AllowN(now, 1) {
		entry.last = now
		return true, 0
	}
	return false, remaining(entry.limiter, now, l.config.CallerInterval)
}

// AllowGlobal is the shared counterpart of Allow. The check and the update
// happen in one critical section.
func (l *Limiter) AllowGlobal() (bool, time.Duration) {
	l.globalMu.Lock()
	defer l.globalMu.Unlock()

	now := l.now()
	if l.global.AllowN(now, 1) {
		return true, 0
	}
	return false, remaining(l.global, now, l.config.GlobalInterval)
}

// WaitGlobal blocks until AllowGlobal permits a call or ctx is done.
func (l *Limiter) WaitGlobal(ctx context.Context) error {
	for {
		ok, wait := l.AllowGlobal()
		if ok {
			return nil
		}
		logrus.WithField("wait", wait).Debug("Global rate limit reached, waiting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func remaining(lim *rate.Limiter, now time.Time, interval time.Duration) time.Duration {
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	wait := time.Duration(missing * float64(interval))
	if wait <= 0 {
		// Rounding can leave a fraction of a token without a whole nanosecond.
		wait = time.Nanosecond
	}
	return wait
}

// Sweep drops caller entries that have been idle longer than IdleTTL and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.callers {
		if entry.last.Before(cutoff) {
			delete(l.callers, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked caller keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					logrus.WithFields(logrus.Fields{
						"removed":   removed,
						"remaining": l.Len(),
					}).Debug("Swept idle rate limit entries")
				}
			}
		}
	}()
}
