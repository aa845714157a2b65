// internal/jupiter/client.go
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/dispatch"
	"github.com/quorlin/swapcord/internal/limiter"
	"github.com/quorlin/swapcord/internal/settings"
)

const (
	// smallAmountThreshold is the raw input amount below which the configured
	// slippage is doubled: tiny trades see proportionally larger price
	// movement between quote and execution.
	smallAmountThreshold = 5000
	smallAmountMultiplier = 2

	// Dynamic-slippage parameters sent to the aggregator.
	maxAutoSlippageBps       = 300
	autoSlippageCollisionUsd = 1000
)

// priorityProfile maps a speed tier onto the aggregator's priority-fee bid.
type priorityProfile struct {
	MaxLamports   uint64
	PriorityLevel string
	JitoTip       uint64
}

var priorityProfiles = map[settings.SpeedTier]priorityProfile{
	settings.SpeedMedium: {MaxLamports: 1_000_000, PriorityLevel: "medium", JitoTip: 100_000},
	settings.SpeedHigh:   {MaxLamports: 5_000_000, PriorityLevel: "high", JitoTip: 500_000},
	settings.SpeedTurbo:  {MaxLamports: 10_000_000, PriorityLevel: "veryHigh", JitoTip: 1_000_000},
}

// Config wires the client to the aggregator's mirrors.
type Config struct {
	// APIEndpoints are interchangeable quote/swap API base URLs.
	APIEndpoints []string
	// TokenAPIURL is the token-info endpoint base URL.
	TokenAPIURL string
	HTTPTimeout time.Duration
}

// Client fetches token metadata, price quotes, and unsigned swap transactions
// from the aggregator. Quote and swap calls fan across mirrors through the
// dispatcher; every individual request passes the shared limiter.
type Client struct {
	cfg    Config
	disp   *dispatch.Dispatcher
	gate   *limiter.Limiter
	http   *http.Client
	cache  *metadataCache
	logger *zap.Logger
}

func NewClient(d *dispatch.Dispatcher, gate *limiter.Limiter, cfg Config, logger *zap.Logger) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		disp:   d,
		gate:   gate,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		cache:  newMetadataCache(metadataTTL),
		logger: logger.Named("jupiter"),
	}
}

// GetTokenInfo returns metadata for a mint, consulting the TTL cache first.
// Wrapped SOL is answered from a hard-coded entry. Failures propagate:
// callers must treat missing token info as fatal for the swap.
func (c *Client) GetTokenInfo(ctx context.Context, address string) (TokenMetadata, error) {
	if address == WrappedSOLMint {
		return wrappedSOLMetadata, nil
	}
	if metadata, ok := c.cache.get(address); ok {
		return metadata, nil
	}

	metadata, err := limiter.Do(ctx, c.gate, "tokeninfo", address,
		func(ctx context.Context) (TokenMetadata, error) {
			return c.fetchTokenInfo(ctx, address)
		})
	if err != nil {
		return TokenMetadata{}, fmt.Errorf("token info for %s: %w", address, err)
	}

	c.cache.put(metadata)
	return metadata, nil
}

func (c *Client) fetchTokenInfo(ctx context.Context, address string) (TokenMetadata, error) {
	endpoint := fmt.Sprintf("%s/token/%s", c.cfg.TokenAPIURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TokenMetadata{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenMetadata{}, fmt.Errorf("token API status %d", resp.StatusCode)
	}

	var metadata TokenMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return TokenMetadata{}, fmt.Errorf("decode token info: %w", err)
	}
	if metadata.Address == "" {
		metadata.Address = address
	}
	return metadata, nil
}

// GetQuote asks the aggregator for the best route. No caching: prices are
// point-in-time and must be fetched fresh per intent.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, rawAmount uint64, cfg settings.Settings) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(rawAmount, 10))
	params.Set("onlyDirectRoutes", "false")

	switch cfg.SlippageMode {
	case settings.SlippageDynamic:
		params.Set("autoSlippage", "true")
		params.Set("maxAutoSlippageBps", strconv.Itoa(maxAutoSlippageBps))
		params.Set("autoSlippageCollisionUsdValue", strconv.Itoa(autoSlippageCollisionUsd))
	default:
		params.Set("slippageBps", strconv.FormatUint(cfg.SlippageBps, 10))
	}

	quote, err := dispatch.ExecuteWithFallback(ctx, c.disp, c.cfg.APIEndpoints,
		func(ctx context.Context, endpoint string) (*Quote, error) {
			return limiter.Do(ctx, c.gate, "quote", inputMint+"/"+outputMint,
				func(ctx context.Context) (*Quote, error) {
					return c.fetchQuote(ctx, endpoint, params)
				})
		})
	if err != nil {
		return nil, fmt.Errorf("quote %s -> %s: %w", inputMint, outputMint, err)
	}

	c.logger.Debug("quote received",
		zap.String("input_mint", inputMint),
		zap.String("output_mint", outputMint),
		zap.Uint64("in_amount", uint64(quote.InAmount)),
		zap.Uint64("out_amount", uint64(quote.OutAmount)),
		zap.Float64("price_impact_pct", float64(quote.PriceImpactPct)))
	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, endpoint string, params url.Values) (*Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"/v6/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	quote.Raw = body
	return &quote, nil
}

type dynamicSlippageParams struct {
	MaxBps int `json:"maxBps"`
}

type priorityLevelParams struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

type prioritizationFeeParams struct {
	PriorityLevelWithMaxLamports *priorityLevelParams `json:"priorityLevelWithMaxLamports,omitempty"`
	JitoTipLamports              uint64               `json:"jitoTipLamports,omitempty"`
}

type swapRequest struct {
	UserPublicKey             string                   `json:"userPublicKey"`
	WrapAndUnwrapSol          bool                     `json:"wrapAndUnwrapSol"`
	QuoteResponse             json.RawMessage          `json:"quoteResponse"`
	SlippageBps               uint64                   `json:"slippageBps,omitempty"`
	DynamicSlippage           *dynamicSlippageParams   `json:"dynamicSlippage,omitempty"`
	PrioritizationFeeLamports *prioritizationFeeParams `json:"prioritizationFeeLamports,omitempty"`
}

// buildSwapRequest assembles the swap-build payload. Slippage is doubled for
// inputs under smallAmountThreshold, both in fixed-bps and dynamic-cap form.
func buildSwapRequest(quote *Quote, userPublicKey string, cfg settings.Settings) swapRequest {
	multiplier := uint64(1)
	if uint64(quote.InAmount) < smallAmountThreshold {
		multiplier = smallAmountMultiplier
	}

	req := swapRequest{
		UserPublicKey:    userPublicKey,
		WrapAndUnwrapSol: cfg.WrapSOL,
		QuoteResponse:    quote.Raw,
	}

	switch cfg.SlippageMode {
	case settings.SlippageDynamic:
		req.DynamicSlippage = &dynamicSlippageParams{
			MaxBps: maxAutoSlippageBps * int(multiplier),
		}
	default:
		req.SlippageBps = cfg.SlippageBps * multiplier
	}

	profile := priorityProfiles[cfg.Speed]
	if cfg.Mev == settings.MevSecure {
		req.PrioritizationFeeLamports = &prioritizationFeeParams{
			JitoTipLamports: profile.JitoTip,
		}
	} else {
		req.PrioritizationFeeLamports = &prioritizationFeeParams{
			PriorityLevelWithMaxLamports: &priorityLevelParams{
				MaxLamports:   profile.MaxLamports,
				PriorityLevel: profile.PriorityLevel,
			},
		}
	}
	return req
}

// GetSwapTransaction asks the aggregator to build an unsigned, serialized
// transaction for the quote. The result is base64 as returned upstream; the
// signing service consumes it verbatim.
func (c *Client) GetSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string, cfg settings.Settings) (string, error) {
	payload, err := json.Marshal(buildSwapRequest(quote, userPublicKey, cfg))
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	tx, err := dispatch.ExecuteWithFallback(ctx, c.disp, c.cfg.APIEndpoints,
		func(ctx context.Context, endpoint string) (string, error) {
			return limiter.Do(ctx, c.gate, "swap", userPublicKey,
				func(ctx context.Context) (string, error) {
					return c.fetchSwapTransaction(ctx, endpoint, payload)
				})
		})
	if err != nil {
		return "", fmt.Errorf("build swap transaction: %w", err)
	}
	return tx, nil
}

func (c *Client) fetchSwapTransaction(ctx context.Context, endpoint string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap API status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var swapResp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &swapResp); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if swapResp.SwapTransaction == "" {
		return "", fmt.Errorf("swap API returned empty transaction")
	}
	return swapResp.SwapTransaction, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
