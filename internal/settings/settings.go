// internal/settings/settings.go
package settings

import "fmt"

// SlippageMode defines how slippage tolerance is derived for a swap.
type SlippageMode string

const (
	// SlippageFixed uses a caller-supplied tolerance in basis points.
	SlippageFixed SlippageMode = "fixed"
	// SlippageDynamic lets the aggregator compute slippage, capped by the client.
	SlippageDynamic SlippageMode = "dynamic"
)

// SpeedTier selects the priority-fee bid attached to a swap transaction.
type SpeedTier string

const (
	SpeedMedium SpeedTier = "medium"
	SpeedHigh   SpeedTier = "high"
	SpeedTurbo  SpeedTier = "turbo"
)

// MevMode selects MEV protection for transaction submission.
type MevMode string

const (
	MevOff    MevMode = "off"
	MevSecure MevMode = "secure"
)

// Settings is the per-user trading configuration consumed by the swap core.
// It is persisted and edited elsewhere; the core treats it as read-only.
type Settings struct {
	SlippageMode SlippageMode `json:"slippage_mode"`
	SlippageBps  uint64       `json:"slippage_bps"`
	Speed        SpeedTier    `json:"speed"`
	Mev          MevMode      `json:"mev"`
	WrapSOL      bool         `json:"wrap_sol"`

	// EntryAmounts are the preset buy amounts in SOL, ExitPercentages the preset
	// sell percentages. Both must be strictly increasing.
	EntryAmounts    []float64 `json:"entry_amounts"`
	ExitPercentages []float64 `json:"exit_percentages"`
}

// Default returns the settings applied when a user has never configured any.
func Default() Settings {
	return Settings{
		SlippageMode:    SlippageFixed,
		SlippageBps:     100,
		Speed:           SpeedMedium,
		Mev:             MevOff,
		WrapSOL:         true,
		EntryAmounts:    []float64{0.1, 0.5, 1, 2, 5},
		ExitPercentages: []float64{25, 50, 75, 100},
	}
}

// Validate rejects settings the editing surface should never have produced.
// The swap core calls this at its boundary rather than trusting the caller.
func (s Settings) Validate() error {
	switch s.SlippageMode {
	case SlippageFixed:
		if s.SlippageBps == 0 {
			return fmt.Errorf("fixed slippage requires slippage_bps > 0")
		}
	case SlippageDynamic:
	default:
		return fmt.Errorf("unknown slippage mode: %q", s.SlippageMode)
	}

	switch s.Speed {
	case SpeedMedium, SpeedHigh, SpeedTurbo:
	default:
		return fmt.Errorf("unknown speed tier: %q", s.Speed)
	}

	switch s.Mev {
	case MevOff, MevSecure:
	default:
		return fmt.Errorf("unknown mev mode: %q", s.Mev)
	}

	if err := strictlyIncreasing("entry_amounts", s.EntryAmounts); err != nil {
		return err
	}
	if err := strictlyIncreasing("exit_percentages", s.ExitPercentages); err != nil {
		return err
	}
	for _, p := range s.ExitPercentages {
		if p <= 0 || p > 100 {
			return fmt.Errorf("exit percentage out of range: %v", p)
		}
	}
	for _, a := range s.EntryAmounts {
		if a <= 0 {
			return fmt.Errorf("entry amount must be positive: %v", a)
		}
	}
	return nil
}

func strictlyIncreasing(name string, values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("%s cannot be empty", name)
	}
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return fmt.Errorf("%s must be strictly increasing, got %v after %v",
				name, values[i], values[i-1])
		}
	}
	return nil
}
