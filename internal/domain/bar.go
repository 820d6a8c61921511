package domain

import "time"

// Timeframe is a bar interval such as "5m", "1h" or "1d".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the length of one bar, or 0 if the timeframe is not recognised.
func (tf Timeframe) Duration() time.Duration {
	d, err := time.ParseDuration(string(tf))
	if err == nil {
		return d
	}
	// time.ParseDuration has no day or week unit
	switch tf {
	case Timeframe1d:
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	}
	return 0
}

// IsIntraday reports whether bars of this timeframe are shorter than a trading day.
func (tf Timeframe) IsIntraday() bool {
	d := tf.Duration()
	return d > 0 && d < 24*time.Hour
}

// Bar represents a single OHLCV sample.
type Bar struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	// TakerBuyVolume is the aggressor-buy part of Volume; zero when the source does not report it.
	TakerBuyVolume float64
	IsFinal        bool // Whether this bar is closed
}

// Closes extracts closing prices in order.
func Closes(bars []*Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar or nil for an empty series.
func Last(bars []*Bar) *Bar {
	if len(bars) == 0 {
		return nil
	}
	return bars[len(bars)-1]
}
