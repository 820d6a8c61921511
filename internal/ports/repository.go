package ports

import (
	"context"
	"time"

	"equityBot/internal/domain"
)

// PositionRepository defines the interface for storing and retrieving trading positions.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position.
	Update(ctx context.Context, pos *domain.Position) error
	// FindOpen retrieves all open positions.
	FindOpen(ctx context.Context) ([]*domain.Position, error)
	// FindOpenBySymbol retrieves the currently open position for a given symbol, if any.
	// Returns nil, nil if no open position is found.
	FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error)
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Position, error)
	// CountEntriesSince counts positions opened at or after since, grouped by symbol and strategy tag.
	CountEntriesSince(ctx context.Context, since time.Time) (map[domain.EntryKey]int, error)
}

// TradeRepository defines the interface for the exit-fill journal.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// SumRealizedSince sums realized PnL of fills at or after since.
	SumRealizedSince(ctx context.Context, since time.Time) (float64, error)
	// CountTodayBySymbol counts the number of fills on or after dayStart for a given symbol.
	CountTodayBySymbol(ctx context.Context, symbol string, dayStart time.Time) (int, error)
}
