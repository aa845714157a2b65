// internal/limiter/limiter.go
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config sizes the process-wide gate.
type Config struct {
	// Spacing is the minimum interval between dispatched calls, enforced
	// globally regardless of which caller issues the request.
	Spacing time.Duration
	// MaxInflight caps simultaneously in-flight calls.
	MaxInflight int64
	// JobRetries is how many times a failed job is attempted before the
	// failure surfaces to the caller.
	JobRetries uint
	// JobRetryDelay is the fixed delay between job attempts.
	JobRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Spacing:       200 * time.Millisecond,
		MaxInflight:   8,
		JobRetries:    5,
		JobRetryDelay: 1 * time.Second,
	}
}

// Limiter is the single gate every outbound call to the quote aggregator,
// metadata service, and RPC layer passes through. It owns spacing, an
// in-flight ceiling, and per-job retry; fallback across endpoints is the
// dispatcher's job, composed around this one.
type Limiter struct {
	logger     *zap.Logger
	spacing    *rate.Limiter
	inflight   *semaphore.Weighted
	retries    uint
	retryDelay time.Duration
}

func New(logger *zap.Logger, cfg Config) *Limiter {
	if cfg.Spacing <= 0 {
		cfg.Spacing = DefaultConfig().Spacing
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = DefaultConfig().MaxInflight
	}
	if cfg.JobRetries == 0 {
		cfg.JobRetries = DefaultConfig().JobRetries
	}
	if cfg.JobRetryDelay <= 0 {
		cfg.JobRetryDelay = DefaultConfig().JobRetryDelay
	}
	return &Limiter{
		logger:     logger.Named("limiter"),
		spacing:    rate.NewLimiter(rate.Every(cfg.Spacing), 1),
		inflight:   semaphore.NewWeighted(cfg.MaxInflight),
		retries:    cfg.JobRetries,
		retryDelay: cfg.JobRetryDelay,
	}
}

// jobID identifies one gated call for observability and retry bookkeeping.
func jobID(callType, args string) string {
	return fmt.Sprintf("%s:%s:%d:%s",
		callType, args, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Do runs op through the gate. callType and args only feed the job id; they
// never influence scheduling. A job that keeps failing is retried with a
// fixed delay up to the configured count, then the last error is returned.
func Do[T any](
	ctx context.Context,
	l *Limiter,
	callType, args string,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	if err := l.inflight.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("acquire inflight slot: %w", err)
	}
	defer l.inflight.Release(1)

	id := jobID(callType, args)
	attempt := 0

	operation := func() (T, error) {
		attempt++
		if err := l.spacing.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		result, err := op(ctx)
		if err != nil {
			l.logger.Warn("gated job attempt failed",
				zap.String("job_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(l.retryDelay)),
		backoff.WithMaxTries(l.retries),
	)
	if err != nil {
		return zero, fmt.Errorf("job %s rejected after %d attempts: %w", id, attempt, err)
	}
	return result, nil
}

// LocalCap is a call-site-specific concurrency bound layered on top of the
// global gate, so one bulk fan-out cannot monopolize it.
type LocalCap struct {
	sem *semaphore.Weighted
}

func NewLocalCap(n int64) *LocalCap {
	return &LocalCap{sem: semaphore.NewWeighted(n)}
}

func (c *LocalCap) Acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

func (c *LocalCap) Release() {
	c.sem.Release(1)
}
