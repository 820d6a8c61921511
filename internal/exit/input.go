package exit

import (
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/strategy/indicators"
)

// Periods configures the indicators feeding the exit rules.
type Periods struct {
	ATR         int
	FastMA      int
	VolumeRatio int
	RSI         int
}

// BuildInput derives an Input from a bar series ending at the current bar.
// Indicators the series is too short for are reported as unavailable.
func BuildInput(bars []*domain.Bar, now time.Time, p Periods) Input {
	in := Input{Bar: domain.Last(bars), Now: now}
	if in.Bar == nil {
		return in
	}
	if atr, err := indicators.WilderATR(bars, p.ATR); err == nil {
		in.ATR, in.ATROK = atr, true
	}

	closes := domain.Closes(bars)
	fast, errMA := indicators.SMA(closes, p.FastMA)
	vol, errVol := indicators.RelativeVolume(bars, p.VolumeRatio)
	rsi, errRSI := indicators.WilderRSI(closes, p.RSI)
	if errMA == nil && errVol == nil && errRSI == nil {
		in.FastMA, in.VolumeRatio, in.RSI, in.TrendOK = fast, vol, rsi, true
	}
	return in
}
