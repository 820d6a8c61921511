package ports

import (
	"context"

	"equityBot/internal/domain"
)

// Strategy defines the entry rule shared by live trading and the candidate simulation.
type Strategy interface {
	// Name identifies the strategy; it is used as the strategy tag for entry limits.
	Name() string

	// RequiredDataPoints returns the minimum number of bars needed for the strategy calculations.
	RequiredDataPoints() int

	// ShouldEnterTrade implements the logic to decide if a trade should be entered.
	ShouldEnterTrade(ctx context.Context, bars []*domain.Bar, currentPrice float64) bool
}
