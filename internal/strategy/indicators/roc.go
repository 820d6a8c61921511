package indicators

import (
	"context"

	"equityBot/internal/domain"
)

// ROC is the rate of change of the close over Period bars, as a fraction.
type ROC struct {
	BaseIndicator
}

// NewROC creates a new rate-of-change indicator
func NewROC(config IndicatorConfig) *ROC {
	return &ROC{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (r *ROC) Name() string {
	return "ROC"
}

// RequiredDataPoints needs the reference bar in addition to the period.
func (r *ROC) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate returns close[last]/close[last-period] - 1.
func (r *ROC) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	return RateOfChange(domain.Closes(bars), r.Config.Period)
}

// RateOfChange returns values[last]/values[last-period] - 1.
func RateOfChange(values []float64, period int) (float64, error) {
	if err := checkPeriod("ROC", period); err != nil {
		return 0, err
	}
	if len(values) < period+1 {
		return 0, insufficient("ROC", len(values), period+1)
	}
	ref := values[len(values)-1-period]
	if ref <= 0 {
		return 0, insufficient("ROC", 0, 1)
	}
	return values[len(values)-1]/ref - 1, nil
}
