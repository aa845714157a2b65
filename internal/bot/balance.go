// internal/bot/balance.go
package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/dispatch"
	"github.com/quorlin/swapcord/internal/limiter"
)

// BalanceSource answers balance questions for a wallet. The RPC-backed
// implementation goes through the endpoint dispatcher and the rate gate like
// every other upstream call.
type BalanceSource interface {
	// SOL returns the wallet's lamport balance.
	SOL(ctx context.Context, owner solana.PublicKey) (uint64, error)
	// Token returns the raw balance and decimals of the owner's associated
	// token account for mint.
	Token(ctx context.Context, owner, mint solana.PublicKey) (uint64, uint8, error)
}

type rpcBalances struct {
	disp      *dispatch.Dispatcher
	gate      *limiter.Limiter
	endpoints []string
	logger    *zap.Logger
}

func NewRPCBalances(d *dispatch.Dispatcher, gate *limiter.Limiter, endpoints []string, logger *zap.Logger) BalanceSource {
	return &rpcBalances{
		disp:      d,
		gate:      gate,
		endpoints: endpoints,
		logger:    logger.Named("balances"),
	}
}

func (b *rpcBalances) SOL(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	return dispatch.ExecuteWithFallback(ctx, b.disp, b.endpoints,
		func(ctx context.Context, endpoint string) (uint64, error) {
			return limiter.Do(ctx, b.gate, "getBalance", owner.String(),
				func(ctx context.Context) (uint64, error) {
					out, err := solanarpc.New(endpoint).GetBalance(ctx, owner, solanarpc.CommitmentConfirmed)
					if err != nil {
						return 0, fmt.Errorf("get balance: %w", err)
					}
					return out.Value, nil
				})
		})
}

type tokenBalance struct {
	amount   uint64
	decimals uint8
}

func (b *rpcBalances) Token(ctx context.Context, owner, mint solana.PublicKey) (uint64, uint8, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, 0, fmt.Errorf("derive token account: %w", err)
	}

	balance, err := dispatch.ExecuteWithFallback(ctx, b.disp, b.endpoints,
		func(ctx context.Context, endpoint string) (tokenBalance, error) {
			return limiter.Do(ctx, b.gate, "getTokenAccountBalance", ata.String(),
				func(ctx context.Context) (tokenBalance, error) {
					out, err := solanarpc.New(endpoint).GetTokenAccountBalance(ctx, ata, solanarpc.CommitmentConfirmed)
					if err != nil {
						return tokenBalance{}, fmt.Errorf("get token balance: %w", err)
					}
					if out.Value == nil {
						return tokenBalance{}, fmt.Errorf("empty token balance response")
					}
					amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
					if err != nil {
						return tokenBalance{}, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
					}
					return tokenBalance{amount: amount, decimals: out.Value.Decimals}, nil
				})
		})
	if err != nil {
		return 0, 0, err
	}
	return balance.amount, balance.decimals, nil
}
