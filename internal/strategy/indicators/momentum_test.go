package indicators

import (
	"context"
	"testing"

	"equityBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateOfChange(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		period  int
		want    float64
		wantErr bool
	}{
		{name: "ten percent up", values: []float64{100, 105, 110}, period: 2, want: 0.10},
		{name: "down move", values: []float64{100, 90}, period: 1, want: -0.10},
		{name: "too short", values: []float64{100}, period: 1, wantErr: true},
		{name: "zero reference", values: []float64{0, 10}, period: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RateOfChange(tt.values, tt.period)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestROC_Indicator(t *testing.T) {
	roc := NewROC(IndicatorConfig{Period: 1})
	got, err := roc.Calculate(context.Background(), []*domain.Bar{{Close: 50}, {Close: 55}})
	require.NoError(t, err)
	assert.InDelta(t, 0.10, got, 1e-9)
	assert.Equal(t, 2, roc.RequiredDataPoints())
}

func TestRelativeVolume(t *testing.T) {
	bars := []*domain.Bar{{Volume: 100}, {Volume: 300}, {Volume: 400}}
	got, err := NewVolumeRatio(IndicatorConfig{Period: 2}).Calculate(context.Background(), bars)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)

	quiet := []*domain.Bar{{Volume: 0}, {Volume: 0}, {Volume: 50}}
	got, err = RelativeVolume(quiet, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestAverageTurnover(t *testing.T) {
	bars := []*domain.Bar{
		{Close: 10, Volume: 1000},
		{Close: 20, Volume: 500},
		{Close: 30, Volume: 100},
	}
	got, err := AverageTurnover(bars, 2)
	require.NoError(t, err)
	assert.InDelta(t, (10000.0+3000.0)/2, got, 1e-9)

	_, err = AverageTurnover(bars, 4)
	assert.Error(t, err)
}
