package ports

import (
	"context"

	"equityBot/internal/domain"
)

// MarketDataProvider supplies OHLCV bar series.
type MarketDataProvider interface {
	// GetBars returns up to count of the most recent bars for symbol, oldest first.
	// Implementations return an error wrapping ErrDataUnavailable when the symbol or
	// timeframe is unknown, and ErrTransientIO for network failures.
	GetBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]*domain.Bar, error)
}

// OrderFlowProvider supplies order book and aggressor data.
type OrderFlowProvider interface {
	// GetOrderFlow returns the current snapshot. ok is false when the source has no
	// data for the symbol; that is not an error.
	GetOrderFlow(ctx context.Context, symbol string) (flow domain.OrderFlow, ok bool, err error)
}
