// internal/bot/flows.go
package bot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/jupiter"
	"github.com/quorlin/swapcord/internal/limiter"
	"github.com/quorlin/swapcord/internal/session"
	"github.com/quorlin/swapcord/internal/settings"
	"github.com/quorlin/swapcord/internal/storage"
	"github.com/quorlin/swapcord/internal/storage/models"
	"github.com/quorlin/swapcord/internal/swap"
	"github.com/quorlin/swapcord/internal/transport"
)

const (
	lamportsPerSOL = 1_000_000_000

	// feeReserveLamports is kept back from the wallet on buys so the swap
	// never drains the SOL needed for fees and rent.
	feeReserveLamports = 10_000_000

	recordTimeout = 5 * time.Second
)

// quoteService is the aggregator surface the flows need. *jupiter.Client
// satisfies it.
type quoteService interface {
	GetTokenInfo(ctx context.Context, address string) (jupiter.TokenMetadata, error)
	GetQuote(ctx context.Context, inputMint, outputMint string, rawAmount uint64, cfg settings.Settings) (*jupiter.Quote, error)
	GetSwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string, cfg settings.Settings) (string, error)
	BuildPreview(ctx context.Context, rawAmount uint64, inputMint, outputMint string, cfg settings.Settings) (*jupiter.Preview, error)
}

// swapExecutor is the signing-and-confirmation surface. *swap.Pipeline
// satisfies it.
type swapExecutor interface {
	ExecuteSwap(ctx context.Context, userID, walletPublicKey, serializedTx string) swap.Result
}

// Deps bundles what both flows need. With AnnounceTrades set, every
// confirmed swap is broadcast through the flow's poster.
type Deps struct {
	Jupiter        quoteService
	Pipeline       swapExecutor
	Balances       BalanceSource
	Recorder       storage.Storage
	Cap            *limiter.LocalCap
	Logger         *zap.Logger
	AnnounceTrades bool
}

type baseFlow struct {
	deps   Deps
	cfg    settings.Settings
	userID string
	wallet solana.PublicKey
	mint   solana.PublicKey
	poster transport.Poster
	logger *zap.Logger
}

func newBaseFlow(deps Deps, cfg settings.Settings, userID string, wallet, mint solana.PublicKey, direction session.Direction, poster transport.Poster) baseFlow {
	return baseFlow{
		deps:   deps,
		cfg:    cfg,
		userID: userID,
		wallet: wallet,
		mint:   mint,
		poster: poster,
		logger: deps.Logger.Named("flow").With(
			zap.String("direction", string(direction)),
			zap.String("user_id", userID),
			zap.String("mint", mint.String())),
	}
}

func notSent(reason string, err error) swap.Result {
	result := swap.Result{TransactionMessage: reason}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// executeQuote runs the quote, build, sign-and-confirm sequence for an
// already-resolved raw amount, then records the trade.
func (f *baseFlow) executeQuote(ctx context.Context, direction string, inputMint, outputMint string, rawAmount uint64) swap.Result {
	quote, err := f.deps.Jupiter.GetQuote(ctx, inputMint, outputMint, rawAmount, f.cfg)
	if err != nil {
		f.logger.Error("quote failed", zap.Error(err))
		return notSent("Transaction was not sent", err)
	}

	serializedTx, err := f.deps.Jupiter.GetSwapTransaction(ctx, quote, f.wallet.String(), f.cfg)
	if err != nil {
		f.logger.Error("swap build failed", zap.Error(err))
		return notSent("Transaction was not sent", err)
	}

	result := f.deps.Pipeline.ExecuteSwap(ctx, f.userID, f.wallet.String(), serializedTx)
	f.record(ctx, direction, quote, result)
	return result
}

// record persists the trade and announces confirmed ones. Both are
// best-effort: a swap that executed must never be reported as failed
// because bookkeeping did not go through.
func (f *baseFlow) record(ctx context.Context, direction string, quote *jupiter.Quote, result swap.Result) {
	status := models.TradeFailed
	switch {
	case result.Success:
		status = models.TradeConfirmed
	case result.Signature != "":
		status = models.TradeUnsettled
	}

	inSymbol := f.symbol(ctx, quote.InputMint)
	outSymbol := f.symbol(ctx, quote.OutputMint)

	trade := &models.Trade{
		Signature:    result.Signature,
		UserID:       f.userID,
		Direction:    direction,
		InputMint:    quote.InputMint,
		OutputMint:   quote.OutputMint,
		InputSymbol:  inSymbol,
		OutputSymbol: outSymbol,
		AmountIn:     uint64(quote.InAmount),
		AmountOut:    uint64(quote.OutAmount),
		SlippageBps:  f.cfg.SlippageBps,
		Speed:        string(f.cfg.Speed),
		MevProtected: f.cfg.Mev == settings.MevSecure,
		Status:       status,
		ErrorMessage: result.Error,
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := f.deps.Recorder.SaveTrade(recCtx, trade); err != nil {
		f.logger.Warn("failed to record trade", zap.Error(err))
	}

	if result.Success && f.deps.AnnounceTrades && f.poster != nil {
		text := fmt.Sprintf("Swap executed: %s %s for %s.\nSignature: %s",
			direction, inSymbol, outSymbol, result.Signature)
		if err := f.poster.Announce(recCtx, text); err != nil {
			f.logger.Warn("failed to announce trade", zap.Error(err))
		}
	}
}

// symbol is a best-effort lookup; the metadata cache makes it free after the
// preview already fetched it.
func (f *baseFlow) symbol(ctx context.Context, mint string) string {
	info, err := f.deps.Jupiter.GetTokenInfo(ctx, mint)
	if err != nil || info.Symbol == "" {
		if len(mint) > 8 {
			return mint[:8]
		}
		return mint
	}
	return info.Symbol
}

func (f *baseFlow) acquireSlot(ctx context.Context) (release func(), err error) {
	if f.deps.Cap == nil {
		return func() {}, nil
	}
	if err := f.deps.Cap.Acquire(ctx); err != nil {
		return nil, err
	}
	return f.deps.Cap.Release, nil
}

// BuyFlow swaps SOL into the target token.
type BuyFlow struct {
	baseFlow
}

func NewBuyFlow(deps Deps, cfg settings.Settings, userID string, wallet, mint solana.PublicKey, poster transport.Poster) *BuyFlow {
	return &BuyFlow{baseFlow: newBaseFlow(deps, cfg, userID, wallet, mint, session.Buy, poster)}
}

func (f *BuyFlow) Direction() session.Direction { return session.Buy }

func (f *BuyFlow) Presets() []float64 { return f.cfg.EntryAmounts }

func (f *BuyFlow) ValidateCustom(value float64) error {
	if value <= 0 {
		return fmt.Errorf("Invalid amount: must be greater than zero.")
	}
	return nil
}

func (f *BuyFlow) Preview(ctx context.Context, value float64) (string, error) {
	preview, err := f.deps.Jupiter.BuildPreview(ctx, solToLamports(value),
		jupiter.WrappedSOLMint, f.mint.String(), f.cfg)
	if err != nil {
		return "", err
	}
	return preview.Text(), nil
}

func (f *BuyFlow) Execute(ctx context.Context, value float64) swap.Result {
	release, err := f.acquireSlot(ctx)
	if err != nil {
		return notSent("Transaction was not sent", err)
	}
	defer release()

	lamports := solToLamports(value)

	balance, err := f.deps.Balances.SOL(ctx, f.wallet)
	if err != nil {
		f.logger.Error("balance lookup failed", zap.Error(err))
		return notSent("Transaction was not sent", err)
	}
	if balance < lamports+feeReserveLamports {
		f.logger.Info("insufficient balance",
			zap.Uint64("balance", balance), zap.Uint64("needed", lamports+feeReserveLamports))
		return notSent("Insufficient SOL balance for this swap.", nil)
	}

	return f.executeQuote(ctx, string(session.Buy), jupiter.WrappedSOLMint, f.mint.String(), lamports)
}

// SellFlow swaps a percentage of the held token back into SOL.
type SellFlow struct {
	baseFlow
}

func NewSellFlow(deps Deps, cfg settings.Settings, userID string, wallet, mint solana.PublicKey, poster transport.Poster) *SellFlow {
	return &SellFlow{baseFlow: newBaseFlow(deps, cfg, userID, wallet, mint, session.Sell, poster)}
}

func (f *SellFlow) Direction() session.Direction { return session.Sell }

func (f *SellFlow) Presets() []float64 { return f.cfg.ExitPercentages }

func (f *SellFlow) ValidateCustom(value float64) error {
	if value <= 0 || value > 100 {
		return fmt.Errorf("Invalid percentage: must be between 0 and 100.")
	}
	return nil
}

func (f *SellFlow) Preview(ctx context.Context, value float64) (string, error) {
	rawAmount, err := f.sellAmount(ctx, value)
	if err != nil {
		return "", err
	}
	preview, err := f.deps.Jupiter.BuildPreview(ctx, rawAmount,
		f.mint.String(), jupiter.WrappedSOLMint, f.cfg)
	if err != nil {
		return "", err
	}
	return preview.Text(), nil
}

func (f *SellFlow) Execute(ctx context.Context, value float64) swap.Result {
	release, err := f.acquireSlot(ctx)
	if err != nil {
		return notSent("Transaction was not sent", err)
	}
	defer release()

	// resolve the percentage against a fresh balance: the preview's snapshot
	// may be stale by confirmation time
	rawAmount, err := f.sellAmount(ctx, value)
	if err != nil {
		f.logger.Error("sell amount resolution failed", zap.Error(err))
		return notSent("Transaction was not sent", err)
	}

	return f.executeQuote(ctx, string(session.Sell), f.mint.String(), jupiter.WrappedSOLMint, rawAmount)
}

func (f *SellFlow) sellAmount(ctx context.Context, percent float64) (uint64, error) {
	balance, _, err := f.deps.Balances.Token(ctx, f.wallet, f.mint)
	if err != nil {
		return 0, fmt.Errorf("token balance lookup: %w", err)
	}
	rawAmount := percentOf(balance, percent)
	if rawAmount == 0 {
		return 0, fmt.Errorf("no %s balance to sell", f.mint)
	}
	return rawAmount, nil
}

// solToLamports rounds to the nearest lamport: plain truncation loses one on
// amounts with no exact binary representation, like 0.29.
func solToLamports(sol float64) uint64 {
	return uint64(math.Round(sol * lamportsPerSOL))
}

func percentOf(balance uint64, percent float64) uint64 {
	if percent >= 100 {
		return balance
	}
	return uint64(float64(balance) * percent / 100)
}
