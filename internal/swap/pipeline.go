// internal/swap/pipeline.go
package swap

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/dispatch"
	"github.com/quorlin/swapcord/internal/signer"
)

const (
	// DefaultConfirmRetries and DefaultConfirmDelay bound the confirmation
	// poll. This budget is independent of the dispatcher's and limiter's.
	DefaultConfirmRetries = 5
	DefaultConfirmDelay   = 5 * time.Second
)

// Result is the outcome of one pipeline invocation. Signature may be set
// even when Success is false: "submitted but not confirmed" and "never sent"
// need different user guidance, since in the former funds may have moved.
type Result struct {
	Success            bool
	Signature          string
	TransactionMessage string
	Error              string
}

// SignSender is the signing-service boundary (see internal/signer).
type SignSender interface {
	SignAndSend(ctx context.Context, userID, walletPublicKey, serializedTx string) (*signer.Response, error)
}

// StatusChecker reports whether a signature has reached confirmed status.
// Transient RPC errors surface as (false, err) and count as a failed poll.
type StatusChecker func(ctx context.Context, signature string) (bool, error)

// Pipeline executes the sign -> submit -> confirm sequence. Retries happen
// inside individual steps; the pipeline as a whole is never re-run on failure
// (resubmitting the same transaction is not safe in general).
type Pipeline struct {
	signer         SignSender
	checkStatus    StatusChecker
	sleep          dispatch.Sleeper
	logger         *zap.Logger
	confirmRetries int
	confirmDelay   time.Duration
}

type Option func(*Pipeline)

// WithStatusChecker replaces the RPC confirmation check, for tests.
func WithStatusChecker(check StatusChecker) Option {
	return func(p *Pipeline) { p.checkStatus = check }
}

// WithSleeper replaces the inter-poll delay, for tests.
func WithSleeper(s dispatch.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithConfirmBudget overrides the poll count and spacing.
func WithConfirmBudget(retries int, delay time.Duration) Option {
	return func(p *Pipeline) {
		p.confirmRetries = retries
		p.confirmDelay = delay
	}
}

func NewPipeline(signSender SignSender, selector *dispatch.ConnectionSelector, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		signer:         signSender,
		checkStatus:    rpcStatusChecker(selector),
		sleep:          defaultSleep,
		logger:         logger.Named("pipeline"),
		confirmRetries: DefaultConfirmRetries,
		confirmDelay:   DefaultConfirmDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func rpcStatusChecker(selector *dispatch.ConnectionSelector) StatusChecker {
	return func(ctx context.Context, signature string) (bool, error) {
		sig, err := solana.SignatureFromBase58(signature)
		if err != nil {
			return false, err
		}
		client, err := selector.GetConnection(ctx)
		if err != nil {
			return false, err
		}
		statuses, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return false, err
		}
		if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
			return false, nil
		}
		status := statuses.Value[0]
		if status.Err != nil {
			return false, nil
		}
		return status.ConfirmationStatus == solanarpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized, nil
	}
}

// ExecuteSwap forwards the unsigned transaction to the signing service and
// polls the ledger for confirmation. See Result for how partial outcomes are
// reported.
func (p *Pipeline) ExecuteSwap(ctx context.Context, userID, walletPublicKey, serializedTx string) Result {
	log := p.logger.With(
		zap.String("user_id", userID),
		zap.String("wallet", walletPublicKey))

	resp, err := p.signer.SignAndSend(ctx, userID, walletPublicKey, serializedTx)
	if err != nil {
		log.Error("transaction submission failed", zap.Error(err))
		return Result{
			Success:            false,
			TransactionMessage: "Transaction was not sent",
			Error:              err.Error(),
		}
	}

	if resp.Uncertain {
		log.Warn("transaction in flight, confirmation unknown",
			zap.String("signature", resp.Signature))
		return Result{
			Success:            false,
			Signature:          resp.Signature,
			TransactionMessage: "Transaction sent but not confirmed",
		}
	}

	log.Info("transaction submitted", zap.String("signature", resp.Signature))

	if p.ConfirmTransaction(ctx, resp.Signature) {
		return Result{
			Success:            true,
			Signature:          resp.Signature,
			TransactionMessage: "Transaction confirmed",
		}
	}

	// the signature is real; the user can verify out-of-band
	return Result{
		Success:            false,
		Signature:          resp.Signature,
		TransactionMessage: "Transaction sent but not confirmed",
	}
}

// ConfirmTransaction polls for confirmation with a fixed-count, fixed-delay
// budget. It never returns an error: an unconfirmed or unverifiable
// signature reports false after exactly confirmRetries attempts.
func (p *Pipeline) ConfirmTransaction(ctx context.Context, signature string) bool {
	for attempt := 1; attempt <= p.confirmRetries; attempt++ {
		confirmed, err := p.checkStatus(ctx, signature)
		if err != nil {
			p.logger.Warn("confirmation poll failed",
				zap.String("signature", signature),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		if confirmed {
			p.logger.Info("transaction confirmed",
				zap.String("signature", signature),
				zap.Int("attempt", attempt))
			return true
		}
		if attempt < p.confirmRetries {
			if err := p.sleep(ctx, p.confirmDelay); err != nil {
				return false
			}
		}
	}

	p.logger.Warn("confirmation retries exhausted",
		zap.String("signature", signature),
		zap.Int("attempts", p.confirmRetries))
	return false
}
