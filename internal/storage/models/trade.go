// internal/storage/models/trade.go
package models

// Trade is one executed (or attempted) swap. Amounts are raw base units of
// the respective mints, so a uint64 column holds them losslessly.
type Trade struct {
	BaseModel
	Signature    string `gorm:"index;type:varchar(88)"`
	UserID       string `gorm:"index;not null;type:varchar(64)"`
	Direction    string `gorm:"not null;type:varchar(4)"`
	InputMint    string `gorm:"not null;type:varchar(44)"`
	OutputMint   string `gorm:"not null;type:varchar(44)"`
	InputSymbol  string `gorm:"type:varchar(20)"`
	OutputSymbol string `gorm:"type:varchar(20)"`
	AmountIn     uint64 `gorm:"not null"`
	AmountOut    uint64
	SlippageBps  uint64 `gorm:"not null"`
	Speed        string `gorm:"type:varchar(10)"`
	MevProtected bool
	Status       string `gorm:"not null;type:varchar(20)"`
	ErrorMessage string `gorm:"type:text"`
}

// Trade statuses.
const (
	TradeConfirmed = "confirmed"
	TradeUnsettled = "unsettled"
	TradeFailed    = "failed"
)
