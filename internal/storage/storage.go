// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/quorlin/swapcord/internal/storage/models"
)

// Storage records executed swaps for later inspection.
type Storage interface {
	SaveTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, signature string) (*models.Trade, error)
	ListTrades(ctx context.Context, userID string, limit, offset int) ([]*models.Trade, error)

	RunMigrations() error
	Close() error
}

// Noop discards every trade. Used when no database is configured; recording
// is best-effort and must never block a swap.
type Noop struct{}

func (Noop) SaveTrade(context.Context, *models.Trade) error { return nil }

func (Noop) GetTrade(context.Context, string) (*models.Trade, error) { return nil, nil }

func (Noop) ListTrades(context.Context, string, int, int) ([]*models.Trade, error) {
	return nil, nil
}

func (Noop) RunMigrations() error { return nil }

func (Noop) Close() error { return nil }
