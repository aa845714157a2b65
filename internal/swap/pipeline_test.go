// internal/swap/pipeline_test.go
package swap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quorlin/swapcord/internal/signer"
)

type fakeSigner struct {
	resp  *signer.Response
	err   error
	calls int
}

func (f *fakeSigner) SignAndSend(_ context.Context, _, _, _ string) (*signer.Response, error) {
	f.calls++
	return f.resp, f.err
}

func newTestPipeline(t *testing.T, s SignSender, check StatusChecker) (*Pipeline, *[]time.Duration) {
	t.Helper()
	var delays []time.Duration
	p := NewPipeline(s, nil, zaptest.NewLogger(t),
		WithStatusChecker(check),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}))
	return p, &delays
}

func TestExecuteSwap_ConfirmedSuccess(t *testing.T) {
	s := &fakeSigner{resp: &signer.Response{Signature: "sig123"}}
	p, _ := newTestPipeline(t, s,
		func(context.Context, string) (bool, error) { return true, nil })

	result := p.ExecuteSwap(context.Background(), "user", "wallet", "tx")

	assert.True(t, result.Success)
	assert.Equal(t, "sig123", result.Signature)
	assert.Equal(t, "Transaction confirmed", result.TransactionMessage)
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, s.calls)
}

func TestExecuteSwap_AcceptedReportsInFlight(t *testing.T) {
	s := &fakeSigner{resp: &signer.Response{Signature: "abc", Message: "pending", Uncertain: true}}
	var polls int
	p, _ := newTestPipeline(t, s,
		func(context.Context, string) (bool, error) { polls++; return false, nil })

	result := p.ExecuteSwap(context.Background(), "user", "wallet", "tx")

	assert.False(t, result.Success)
	assert.Equal(t, "abc", result.Signature)
	assert.Equal(t, "Transaction sent but not confirmed", result.TransactionMessage)
	assert.Empty(t, result.Error)
	assert.Zero(t, polls) // already in flight, nothing to poll
}

func TestExecuteSwap_SubmissionFailureMeansNeverSent(t *testing.T) {
	s := &fakeSigner{err: signer.ErrUserNotFound}
	p, _ := newTestPipeline(t, s,
		func(context.Context, string) (bool, error) { return true, nil })

	result := p.ExecuteSwap(context.Background(), "user", "wallet", "tx")

	assert.False(t, result.Success)
	assert.Empty(t, result.Signature)
	assert.Equal(t, "Transaction was not sent", result.TransactionMessage)
	assert.Contains(t, result.Error, "not found")
}

func TestExecuteSwap_ConfirmationExhaustionKeepsSignature(t *testing.T) {
	s := &fakeSigner{resp: &signer.Response{Signature: "realSig"}}
	p, _ := newTestPipeline(t, s,
		func(context.Context, string) (bool, error) { return false, nil })

	result := p.ExecuteSwap(context.Background(), "user", "wallet", "tx")

	assert.False(t, result.Success)
	assert.Equal(t, "realSig", result.Signature)
	assert.Equal(t, "Transaction sent but not confirmed", result.TransactionMessage)
}

func TestConfirmTransaction_ExactBudgetNeverThrows(t *testing.T) {
	var attempts int
	p, delays := newTestPipeline(t, &fakeSigner{},
		func(context.Context, string) (bool, error) {
			attempts++
			return false, errors.New("rpc flaking")
		})

	confirmed := p.ConfirmTransaction(context.Background(), "sig")

	assert.False(t, confirmed)
	assert.Equal(t, DefaultConfirmRetries, attempts)
	// retries are spaced confirmDelay apart, no trailing sleep
	require.Len(t, *delays, DefaultConfirmRetries-1)
	for _, d := range *delays {
		assert.Equal(t, DefaultConfirmDelay, d)
	}
}

func TestConfirmTransaction_SucceedsMidBudget(t *testing.T) {
	var attempts int
	p, delays := newTestPipeline(t, &fakeSigner{},
		func(context.Context, string) (bool, error) {
			attempts++
			return attempts == 3, nil
		})

	assert.True(t, p.ConfirmTransaction(context.Background(), "sig"))
	assert.Equal(t, 3, attempts)
	assert.Len(t, *delays, 2)
}

func TestConfirmTransaction_CancelledContextStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	p := NewPipeline(&fakeSigner{}, nil, zaptest.NewLogger(t),
		WithStatusChecker(func(context.Context, string) (bool, error) {
			attempts++
			cancel()
			return false, nil
		}),
		WithSleeper(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}))

	assert.False(t, p.ConfirmTransaction(ctx, "sig"))
	assert.Equal(t, 1, attempts)
}

func TestConfirmTransaction_CustomBudget(t *testing.T) {
	var attempts int
	p := NewPipeline(&fakeSigner{}, nil, zaptest.NewLogger(t),
		WithStatusChecker(func(context.Context, string) (bool, error) {
			attempts++
			return false, nil
		}),
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
		WithConfirmBudget(2, time.Millisecond))

	assert.False(t, p.ConfirmTransaction(context.Background(), "sig"))
	assert.Equal(t, 2, attempts)
}
