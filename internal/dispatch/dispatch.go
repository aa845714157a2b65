// internal/dispatch/dispatch.go
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRounds bounds how many full passes over the endpoint list are made.
	DefaultMaxRounds = 3
	// roundBackoffUnit is multiplied by the round number between failed rounds.
	roundBackoffUnit = 1000 * time.Millisecond
)

// Sleeper abstracts delay so tests can run the backoff schedule instantly.
type Sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatcher spreads calls across interchangeable upstream endpoints.
// The endpoint order is reshuffled once per round so traffic does not pin
// to the head of the configured list.
type Dispatcher struct {
	logger    *zap.Logger
	maxRounds int
	sleep     Sleeper

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Dispatcher)

// WithMaxRounds overrides the number of full fallback rounds.
func WithMaxRounds(rounds int) Option {
	return func(d *Dispatcher) { d.maxRounds = rounds }
}

// WithSleeper replaces the real backoff sleep, for tests.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithRandSource fixes the shuffle order, for tests.
func WithRandSource(src rand.Source) Option {
	return func(d *Dispatcher) { d.rng = rand.New(src) }
}

func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:    logger.Named("dispatch"),
		maxRounds: DefaultMaxRounds,
		sleep:     realSleep,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) shuffled(endpoints []string) []string {
	order := make([]string, len(endpoints))
	copy(order, endpoints)
	d.mu.Lock()
	d.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	d.mu.Unlock()
	return order
}

// ExecuteWithFallback runs op against each endpoint in a shuffled order and
// returns the first success. Failed endpoints are skipped without delay; a
// fully failed round waits roundBackoffUnit*round before the next one. When
// every round is exhausted the last observed failure is returned wrapped in
// ErrAllEndpointsFailed.
func ExecuteWithFallback[T any](
	ctx context.Context,
	d *Dispatcher,
	endpoints []string,
	op func(ctx context.Context, endpoint string) (T, error),
) (T, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, ErrNoEndpoints
	}

	var lastErr error
	for round := 1; round <= d.maxRounds; round++ {
		for _, endpoint := range d.shuffled(endpoints) {
			if err := ctx.Err(); err != nil {
				return zero, err
			}

			result, err := op(ctx, endpoint)
			if err == nil {
				return result, nil
			}
			lastErr = err
			d.logger.Warn("endpoint attempt failed",
				zap.String("endpoint", endpoint),
				zap.Int("round", round),
				zap.Error(err))
		}

		if round < d.maxRounds {
			delay := roundBackoffUnit * time.Duration(round)
			d.logger.Debug("round exhausted, backing off",
				zap.Int("round", round),
				zap.Duration("delay", delay))
			if err := d.sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
	}

	return zero, fmt.Errorf("%w after %d rounds: %w",
		ErrAllEndpointsFailed, d.maxRounds, lastErr)
}
