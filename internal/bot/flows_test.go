// internal/bot/flows_test.go
package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quorlin/swapcord/internal/jupiter"
	"github.com/quorlin/swapcord/internal/settings"
	"github.com/quorlin/swapcord/internal/storage/models"
	"github.com/quorlin/swapcord/internal/swap"
)

var (
	testWallet = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMint   = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

type quoteCall struct {
	inputMint  string
	outputMint string
	rawAmount  uint64
}

// fakeAggregator substitutes the Jupiter client.
type fakeAggregator struct {
	mu         sync.Mutex
	quoteErr   error
	swapTx     string
	quoteCalls []quoteCall
}

func (f *fakeAggregator) GetTokenInfo(_ context.Context, address string) (jupiter.TokenMetadata, error) {
	if address == jupiter.WrappedSOLMint {
		return jupiter.TokenMetadata{Address: address, Symbol: "SOL", Decimals: 9}, nil
	}
	return jupiter.TokenMetadata{Address: address, Symbol: "TOK", Decimals: 6}, nil
}

func (f *fakeAggregator) GetQuote(_ context.Context, inputMint, outputMint string, rawAmount uint64, _ settings.Settings) (*jupiter.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	f.quoteCalls = append(f.quoteCalls, quoteCall{inputMint, outputMint, rawAmount})
	return &jupiter.Quote{
		InputMint:  inputMint,
		OutputMint: outputMint,
		InAmount:   jupiter.FlexUint(rawAmount),
		OutAmount:  jupiter.FlexUint(rawAmount * 2),
	}, nil
}

func (f *fakeAggregator) GetSwapTransaction(context.Context, *jupiter.Quote, string, settings.Settings) (string, error) {
	if f.swapTx == "" {
		return "dHgtYnl0ZXM=", nil
	}
	return f.swapTx, nil
}

func (f *fakeAggregator) BuildPreview(ctx context.Context, rawAmount uint64, inputMint, outputMint string, cfg settings.Settings) (*jupiter.Preview, error) {
	quote, err := f.GetQuote(ctx, inputMint, outputMint, rawAmount, cfg)
	if err != nil {
		return nil, err
	}
	in, _ := f.GetTokenInfo(ctx, inputMint)
	out, _ := f.GetTokenInfo(ctx, outputMint)
	return &jupiter.Preview{
		Quote:       quote,
		InputToken:  in,
		OutputToken: out,
	}, nil
}

func (f *fakeAggregator) calls() []quoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]quoteCall(nil), f.quoteCalls...)
}

type fakeExecutor struct {
	mu     sync.Mutex
	result swap.Result
	txs    []string
}

func (f *fakeExecutor) ExecuteSwap(_ context.Context, _, _, serializedTx string) swap.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, serializedTx)
	return f.result
}

func (f *fakeExecutor) executions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs)
}

type fakeBalances struct {
	sol      uint64
	token    uint64
	decimals uint8
	solErr   error
	tokenErr error
}

func (f *fakeBalances) SOL(context.Context, solana.PublicKey) (uint64, error) {
	return f.sol, f.solErr
}

func (f *fakeBalances) Token(context.Context, solana.PublicKey, solana.PublicKey) (uint64, uint8, error) {
	return f.token, f.decimals, f.tokenErr
}

type memRecorder struct {
	mu     sync.Mutex
	trades []*models.Trade
}

func (m *memRecorder) SaveTrade(_ context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memRecorder) GetTrade(context.Context, string) (*models.Trade, error) { return nil, nil }

func (m *memRecorder) ListTrades(context.Context, string, int, int) ([]*models.Trade, error) {
	return nil, nil
}

func (m *memRecorder) RunMigrations() error { return nil }
func (m *memRecorder) Close() error         { return nil }

func (m *memRecorder) all() []*models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Trade(nil), m.trades...)
}

type flowFixture struct {
	agg      *fakeAggregator
	executor *fakeExecutor
	balances *fakeBalances
	recorder *memRecorder
	poster   *recordingPoster
	deps     Deps
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	fx := &flowFixture{
		agg:      &fakeAggregator{},
		executor: &fakeExecutor{result: swap.Result{Success: true, Signature: "sig123"}},
		balances: &fakeBalances{sol: 10 * lamportsPerSOL, token: 1_000_000, decimals: 6},
		recorder: &memRecorder{},
		poster:   &recordingPoster{},
	}
	fx.deps = Deps{
		Jupiter:  fx.agg,
		Pipeline: fx.executor,
		Balances: fx.balances,
		Recorder: fx.recorder,
		Logger:   zaptest.NewLogger(t),
	}
	return fx
}

func TestBuyFlowExecute(t *testing.T) {
	fx := newFlowFixture(t)
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	result := flow.Execute(context.Background(), 0.5)

	require.True(t, result.Success)
	assert.Equal(t, "sig123", result.Signature)

	calls := fx.agg.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, jupiter.WrappedSOLMint, calls[0].inputMint)
	assert.Equal(t, testMint.String(), calls[0].outputMint)
	assert.Equal(t, uint64(500_000_000), calls[0].rawAmount)

	trades := fx.recorder.all()
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeConfirmed, trades[0].Status)
	assert.Equal(t, "buy", trades[0].Direction)
	assert.Equal(t, "sig123", trades[0].Signature)
	assert.Equal(t, "SOL", trades[0].InputSymbol)
	assert.Equal(t, "TOK", trades[0].OutputSymbol)
}

func TestBuyFlowInsufficientBalance(t *testing.T) {
	fx := newFlowFixture(t)
	// covers the swap amount but not the fee reserve
	fx.balances.sol = 500_000_000
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	result := flow.Execute(context.Background(), 0.5)

	assert.False(t, result.Success)
	assert.Equal(t, "Insufficient SOL balance for this swap.", result.TransactionMessage)
	assert.Zero(t, fx.executor.executions())
	assert.Empty(t, fx.recorder.all())
}

func TestBuyFlowBalanceLookupFailure(t *testing.T) {
	fx := newFlowFixture(t)
	fx.balances.solErr = errors.New("rpc down")
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	result := flow.Execute(context.Background(), 0.5)

	assert.False(t, result.Success)
	assert.Equal(t, "Transaction was not sent", result.TransactionMessage)
	assert.Zero(t, fx.executor.executions())
}

func TestBuyFlowRecordsUnsettled(t *testing.T) {
	fx := newFlowFixture(t)
	fx.executor.result = swap.Result{
		Success:            false,
		Signature:          "sigPending",
		TransactionMessage: "Transaction sent but not confirmed",
	}
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	result := flow.Execute(context.Background(), 1)

	assert.False(t, result.Success)
	trades := fx.recorder.all()
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeUnsettled, trades[0].Status)
	assert.Equal(t, "sigPending", trades[0].Signature)
}

func TestBuyFlowAnnouncesConfirmed(t *testing.T) {
	fx := newFlowFixture(t)
	fx.deps.AnnounceTrades = true
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	flow.Execute(context.Background(), 0.1)

	announced := fx.poster.announcements()
	require.Len(t, announced, 1)
	assert.Contains(t, announced[0], "sig123")
	assert.Contains(t, announced[0], "SOL")
}

func TestBuyFlowAnnouncementsDisabled(t *testing.T) {
	fx := newFlowFixture(t)
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	flow.Execute(context.Background(), 0.1)

	assert.Empty(t, fx.poster.announcements())
}

func TestAnnouncementSkippedWhenUnconfirmed(t *testing.T) {
	fx := newFlowFixture(t)
	fx.deps.AnnounceTrades = true
	fx.executor.result = swap.Result{Signature: "sigPending"}
	flow := NewBuyFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	flow.Execute(context.Background(), 0.1)

	assert.Empty(t, fx.poster.announcements())
}

func TestBuyFlowValidateCustom(t *testing.T) {
	flow := NewBuyFlow(newFlowFixture(t).deps, settings.Default(), "u", testWallet, testMint, nil)
	assert.NoError(t, flow.ValidateCustom(0.25))
	assert.Error(t, flow.ValidateCustom(0))
	assert.Error(t, flow.ValidateCustom(-1))
}

func TestSellFlowExecuteUsesFreshBalance(t *testing.T) {
	fx := newFlowFixture(t)
	fx.balances.token = 1_000_000
	flow := NewSellFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	result := flow.Execute(context.Background(), 50)

	require.True(t, result.Success)
	calls := fx.agg.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testMint.String(), calls[0].inputMint)
	assert.Equal(t, jupiter.WrappedSOLMint, calls[0].outputMint)
	assert.Equal(t, uint64(500_000), calls[0].rawAmount)

	trades := fx.recorder.all()
	require.Len(t, trades, 1)
	assert.Equal(t, "sell", trades[0].Direction)
}

func TestSellFlowFullExit(t *testing.T) {
	fx := newFlowFixture(t)
	fx.balances.token = 999_999
	flow := NewSellFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	flow.Execute(context.Background(), 100)

	calls := fx.agg.calls()
	require.Len(t, calls, 1)
	// 100% sells the exact balance, no rounding residue
	assert.Equal(t, uint64(999_999), calls[0].rawAmount)
}

func TestSellFlowNoBalance(t *testing.T) {
	fx := newFlowFixture(t)
	fx.balances.token = 0
	flow := NewSellFlow(fx.deps, settings.Default(), "user-1", testWallet, testMint, fx.poster)

	_, err := flow.Preview(context.Background(), 50)
	require.Error(t, err)

	result := flow.Execute(context.Background(), 50)
	assert.False(t, result.Success)
	assert.Zero(t, fx.executor.executions())
}

func TestSellFlowValidateCustom(t *testing.T) {
	flow := NewSellFlow(newFlowFixture(t).deps, settings.Default(), "u", testWallet, testMint, nil)
	assert.NoError(t, flow.ValidateCustom(50))
	assert.NoError(t, flow.ValidateCustom(100))
	assert.Error(t, flow.ValidateCustom(0))
	assert.Error(t, flow.ValidateCustom(150))
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, uint64(250), percentOf(1000, 25))
	assert.Equal(t, uint64(1000), percentOf(1000, 100))
	assert.Equal(t, uint64(0), percentOf(0, 50))
}

func TestSolToLamports(t *testing.T) {
	assert.Equal(t, uint64(1_000_000_000), solToLamports(1))
	assert.Equal(t, uint64(100_000_000), solToLamports(0.1))
	assert.Equal(t, uint64(2_500_000_000), solToLamports(2.5))
	// 0.29 has no exact binary representation; truncation would drop a lamport
	assert.Equal(t, uint64(290_000_000), solToLamports(0.29))
	assert.Equal(t, uint64(70_000_000), solToLamports(0.07))
}
