package indicators

import (
	"context"
	"fmt"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
)

// Indicator represents a technical indicator that can be calculated from bar data
type Indicator interface {
	// Calculate computes the indicator value for the latest bar of the series
	Calculate(ctx context.Context, bars []*domain.Bar) (float64, error)

	// RequiredDataPoints returns the minimum number of bars needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of bars needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

// insufficient builds the error returned when a series is too short.
// It wraps ports.ErrDataUnavailable so callers can skip instead of reject.
func insufficient(name string, have, need int) error {
	return fmt.Errorf("not enough data (%d) to calculate %s, need %d: %w", have, name, need, ports.ErrDataUnavailable)
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s period must be positive, got %d", name, period)
	}
	return nil
}
