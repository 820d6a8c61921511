package indicators

import (
	"context"
	"math"

	"equityBot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints needs one extra bar for the previous close.
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the Average True Range value for the given bars
func (a *ATR) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	return WilderATR(bars, a.Config.Period)
}

// WilderATR seeds with the mean of the first period true ranges and applies Wilder smoothing.
func WilderATR(bars []*domain.Bar, period int) (float64, error) {
	if err := checkPeriod("ATR", period); err != nil {
		return 0, err
	}
	if len(bars) < period+1 {
		return 0, insufficient("ATR", len(bars), period+1)
	}

	trueRange := func(i int) float64 {
		if i == 0 {
			return bars[0].High - bars[0].Low
		}
		prevClose := bars[i-1].Close
		return math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)

	for i := period; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(i)) / float64(period)
	}
	return atr, nil
}

// ATRPercent is ATR divided by the last close.
func ATRPercent(bars []*domain.Bar, period int) (float64, error) {
	atr, err := WilderATR(bars, period)
	if err != nil {
		return 0, err
	}
	last := domain.Last(bars).Close
	if last <= 0 {
		return 0, insufficient("ATR%", 0, 1)
	}
	return atr / last, nil
}
