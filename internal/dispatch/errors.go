// internal/dispatch/errors.go
package dispatch

import "errors"

var (
	// ErrNoEndpoints means the caller supplied an empty endpoint list.
	ErrNoEndpoints = errors.New("no endpoints configured")
	// ErrAllEndpointsFailed means every endpoint failed in every round.
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	// ErrNoHealthyEndpoint means no RPC candidate answered the liveness probe.
	ErrNoHealthyEndpoint = errors.New("no healthy RPC endpoint available")
)
