// internal/dispatch/connection.go
package dispatch

import (
	"context"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const probeTimeout = 5 * time.Second

// Prober checks that one RPC endpoint is alive. The default implementation
// fetches the latest blockhash, the cheapest call that exercises the full
// request path.
type Prober func(ctx context.Context, endpoint string) error

func defaultProbe(ctx context.Context, endpoint string) error {
	client := solanarpc.New(endpoint)
	_, err := client.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	return err
}

// ConnectionSelector picks a single healthy RPC endpoint out of a candidate
// list. Unlike ExecuteWithFallback it returns a live connection, not an
// operation result: callers hold the connection for a burst of related calls.
type ConnectionSelector struct {
	dispatcher *Dispatcher
	endpoints  []string
	probe      Prober
	logger     *zap.Logger
}

func NewConnectionSelector(d *Dispatcher, endpoints []string, logger *zap.Logger) *ConnectionSelector {
	return &ConnectionSelector{
		dispatcher: d,
		endpoints:  endpoints,
		probe:      defaultProbe,
		logger:     logger.Named("rpc-select"),
	}
}

// WithProber replaces the liveness probe, for tests.
func (s *ConnectionSelector) WithProber(p Prober) *ConnectionSelector {
	s.probe = p
	return s
}

// GetConnection shuffles the candidate list and probes each endpoint until
// one answers, returning a client for it. It fails only when every candidate
// is unreachable.
func (s *ConnectionSelector) GetConnection(ctx context.Context) (*solanarpc.Client, error) {
	endpoint, err := s.GetHealthyEndpoint(ctx)
	if err != nil {
		return nil, err
	}
	return solanarpc.New(endpoint), nil
}

// GetHealthyEndpoint returns the URL of the first candidate that passes the
// liveness probe, in shuffled order.
func (s *ConnectionSelector) GetHealthyEndpoint(ctx context.Context) (string, error) {
	if len(s.endpoints) == 0 {
		return "", ErrNoEndpoints
	}

	for _, endpoint := range s.dispatcher.shuffled(s.endpoints) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.probe(probeCtx, endpoint)
		cancel()

		if err == nil {
			s.logger.Debug("selected healthy RPC endpoint",
				zap.String("endpoint", endpoint))
			return endpoint, nil
		}
		s.logger.Warn("RPC liveness probe failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}

	return "", ErrNoHealthyEndpoint
}
