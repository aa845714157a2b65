// internal/jupiter/types.go
package jupiter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// WrappedSOLMint is the mint address of the chain's native wrapped asset.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// metadataTTL bounds how long a cached token entry is served before refetch.
const metadataTTL = 24 * time.Hour

// FlexFloat decodes a JSON number that the aggregator sometimes quotes as a
// string (priceImpactPct arrives both ways across API versions).
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(value)
	return nil
}

// FlexUint decodes raw unit amounts the aggregator serializes as strings.
type FlexUint uint64

func (u *FlexUint) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*u = 0
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}
	*u = FlexUint(value)
	return nil
}

// Quote is a point-in-time price estimate. Raw keeps the aggregator's full
// response so it can be posted back verbatim when building the swap
// transaction. Quotes are never cached.
type Quote struct {
	InputMint      string    `json:"inputMint"`
	OutputMint     string    `json:"outputMint"`
	InAmount       FlexUint  `json:"inAmount"`
	OutAmount      FlexUint  `json:"outAmount"`
	OtherAmount    FlexUint  `json:"otherAmountThreshold"`
	SlippageBps    int       `json:"slippageBps"`
	PriceImpactPct FlexFloat `json:"priceImpactPct"`

	Raw json.RawMessage `json:"-"`
}

// TokenMetadata describes a token. Entries are immutable once cached: a
// token's decimals and symbol do not change on-chain.
type TokenMetadata struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logoURI"`
}

// wrappedSOLMetadata is served without a network round trip: wrapped SOL is
// one side of nearly every swap this bot makes.
var wrappedSOLMetadata = TokenMetadata{
	Address:  WrappedSOLMint,
	Symbol:   "SOL",
	Name:     "Wrapped SOL",
	Decimals: 9,
	LogoURI:  "https://raw.githubusercontent.com/solana-labs/token-list/main/assets/mainnet/So11111111111111111111111111111111111111112/logo.png",
}
