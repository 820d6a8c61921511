package indicators

import (
	"context"

	"equityBot/internal/domain"
)

// VolumeRatio compares the last bar's volume to the mean of the Period bars before it.
type VolumeRatio struct {
	BaseIndicator
}

// NewVolumeRatio creates a new volume ratio indicator
func NewVolumeRatio(config IndicatorConfig) *VolumeRatio {
	return &VolumeRatio{BaseIndicator: BaseIndicator{Config: config}}
}

// Name returns the name of the indicator
func (v *VolumeRatio) Name() string {
	return "VolumeRatio"
}

// RequiredDataPoints includes the bar being compared.
func (v *VolumeRatio) RequiredDataPoints() int {
	return v.Config.Period + 1
}

// Calculate returns volume[last] / mean(volume[last-period:last]).
func (v *VolumeRatio) Calculate(ctx context.Context, bars []*domain.Bar) (float64, error) {
	return RelativeVolume(bars, v.Config.Period)
}

// RelativeVolume returns the last volume over the average of the preceding period volumes.
// A zero baseline yields 1 so a quiet history is not mistaken for a spike.
func RelativeVolume(bars []*domain.Bar, period int) (float64, error) {
	if err := checkPeriod("VolumeRatio", period); err != nil {
		return 0, err
	}
	if len(bars) < period+1 {
		return 0, insufficient("VolumeRatio", len(bars), period+1)
	}
	last := len(bars) - 1
	total := 0.0
	for _, b := range bars[last-period : last] {
		total += b.Volume
	}
	avg := total / float64(period)
	if avg == 0 {
		return 1, nil
	}
	return bars[last].Volume / avg, nil
}

// AverageTurnover is the mean traded value (close x volume) over the last period bars.
func AverageTurnover(bars []*domain.Bar, period int) (float64, error) {
	if err := checkPeriod("Turnover", period); err != nil {
		return 0, err
	}
	if len(bars) < period {
		return 0, insufficient("Turnover", len(bars), period)
	}
	total := 0.0
	for _, b := range bars[len(bars)-period:] {
		total += b.Close * b.Volume
	}
	return total / float64(period), nil
}
