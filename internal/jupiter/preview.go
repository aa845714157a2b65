// internal/jupiter/preview.go
package jupiter

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quorlin/swapcord/internal/settings"
)

// Preview is the human-readable summary shown before confirmation. It is a
// pure formatting product of one quote and two metadata lookups.
type Preview struct {
	Quote        *Quote
	InputToken   TokenMetadata
	OutputToken  TokenMetadata
	InAmount     float64
	OutAmount    float64
	PriceImpact  float64 // fraction, 0.004 = 0.4%
	SlippageDesc string
	Speed        settings.SpeedTier
	Mev          settings.MevMode
	WrapSOL      bool
}

// BuildPreview fetches a fresh quote plus both tokens' metadata and composes
// the preview. The two metadata lookups run concurrently; either failure is
// fatal for the preview.
func (c *Client) BuildPreview(ctx context.Context, rawAmount uint64, inputMint, outputMint string, cfg settings.Settings) (*Preview, error) {
	var inputToken, outputToken TokenMetadata

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		inputToken, err = c.GetTokenInfo(groupCtx, inputMint)
		return err
	})
	group.Go(func() error {
		var err error
		outputToken, err = c.GetTokenInfo(groupCtx, outputMint)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	quote, err := c.GetQuote(ctx, inputMint, outputMint, rawAmount, cfg)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Quote:        quote,
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InAmount:     normalize(uint64(quote.InAmount), inputToken.Decimals),
		OutAmount:    normalize(uint64(quote.OutAmount), outputToken.Decimals),
		PriceImpact:  float64(quote.PriceImpactPct),
		SlippageDesc: describeSlippage(cfg),
		Speed:        cfg.Speed,
		Mev:          cfg.Mev,
		WrapSOL:      cfg.WrapSOL,
	}, nil
}

// Text renders the preview for the chat transport.
func (p *Preview) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Swap %s %s -> %s %s\n",
		formatAmount(p.InAmount), p.InputToken.Symbol,
		formatAmount(p.OutAmount), p.OutputToken.Symbol)
	fmt.Fprintf(&b, "Price Impact: %s%%\n", formatAmount(p.PriceImpact*100))
	fmt.Fprintf(&b, "Slippage: %s\n", p.SlippageDesc)
	fmt.Fprintf(&b, "Speed: %s | MEV: %s | Wrap SOL: %s",
		p.Speed, p.Mev, onOff(p.WrapSOL))
	return b.String()
}

func normalize(raw uint64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func describeSlippage(cfg settings.Settings) string {
	if cfg.SlippageMode == settings.SlippageDynamic {
		return fmt.Sprintf("dynamic (max %s%%)", formatAmount(maxAutoSlippageBps/100.0))
	}
	return fmt.Sprintf("%s%% (fixed)", formatAmount(float64(cfg.SlippageBps)/100))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
