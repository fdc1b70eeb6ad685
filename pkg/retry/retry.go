// Package retry runs remote calls under a deadline-based backoff policy.
//
// A call is attempted repeatedly while the elapsed time since the first
// attempt is within MaxDuration. Only failures classified as Generic by
// errclass are retried. Once the deadline has passed, exactly one final
// attempt is made and its outcome is returned as-is.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/nimbusfs/pkg/errclass"
)

const (
	// DefaultMaxDuration bounds the retry window of one call.
	DefaultMaxDuration = 180000 * time.Millisecond

	// DefaultMinDelay is the delay before the first retry.
	DefaultMinDelay = 50 * time.Millisecond

	// DefaultMaxDelay caps the delay between attempts.
	DefaultMaxDelay = 30000 * time.Millisecond
)

// Config configures an Executor.
type Config struct {
	// MaxDuration is the window during which retryable failures are
	// retried. Non-positive values fall back to DefaultMaxDuration.
	MaxDuration time.Duration

	// MinDelay and MaxDelay bound the backoff: delay(n) = min(MinDelay*2^n, MaxDelay).
	MinDelay time.Duration
	MaxDelay time.Duration

	// RateLimit paces attempts across all calls of the executor in
	// requests per second. Zero disables pacing.
	RateLimit float64
}

// DefaultConfig returns the standard retry policy.
func DefaultConfig() Config {
	return Config{
		MaxDuration: DefaultMaxDuration,
		MinDelay:    DefaultMinDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Executor applies the retry policy to remote calls. It is safe for
// concurrent use; each call keeps its own attempt counter and start time.
type Executor struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, err error, delay time.Duration)
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the wall clock used to measure the retry window.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleeper replaces the backoff sleep. The sleeper must return a non-nil
// error when ctx ends before d elapses.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(e *Executor) { e.onRetry = fn }
}

// New creates an Executor. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.MaxDuration <= 0 {
		if cfg.MaxDuration < 0 {
			e.logger.Warn("invalid retry duration, using default",
				zap.Duration("max_duration", cfg.MaxDuration),
				zap.Duration("default", DefaultMaxDuration))
		}
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	e.cfg = cfg
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Delay returns the backoff before retry number attempt (0-based):
// min(MinDelay * 2^attempt, MaxDelay). Large attempts saturate at MaxDelay.
func (e *Executor) Delay(attempt int) time.Duration {
	d := e.cfg.MinDelay
	for i := 0; i < attempt; i++ {
		// Doubling stops at the cap, so d never overflows.
		if d >= e.cfg.MaxDelay/2 {
			return e.cfg.MaxDelay
		}
		d *= 2
	}
	return min(d, e.cfg.MaxDelay)
}

// Do runs fn under the retry policy. op and path label the classified
// error and log lines.
//
// If ctx ends during a backoff sleep, Do stops without another attempt and
// returns the last failure joined with the context error.
func (e *Executor) Do(ctx context.Context, op, path string, fn func(context.Context) error) error {
	start := e.now()
	attempt := 0

	for e.now().Sub(start) <= e.cfg.MaxDuration {
		if err := e.wait(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		classified := errclass.Classify(op, path, err)
		if !errclass.Retryable(classified) {
			return classified
		}

		delay := e.Delay(attempt)
		e.logFailure(op, path, attempt, delay, classified)
		if e.onRetry != nil {
			e.onRetry(attempt, classified, delay)
		}
		attempt++

		if err := e.sleep(ctx, delay); err != nil {
			return errors.Join(classified, err)
		}
	}

	if err := e.wait(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errclass.Classify(op, path, err)
	}
	return nil
}

// Value runs fn under e's retry policy and returns its result.
func Value[T any](ctx context.Context, e *Executor, op, path string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, path, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (e *Executor) logFailure(op, path string, attempt int, delay time.Duration, err error) {
	if ce := e.logger.Check(zap.DebugLevel, "retryable failure"); ce != nil {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		}
		var cerr *errclass.Error
		if errors.As(err, &cerr) && cerr.StatusCode != 0 {
			fields = append(fields,
				zap.Int("status", cerr.StatusCode),
				zap.String("request_id", cerr.RequestID))
		}
		ce.Write(fields...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
