package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"equityBot/internal/domain"
)

// TimeframeWeight is one term of the multi-timeframe consensus.
type TimeframeWeight struct {
	Timeframe domain.Timeframe
	Weight    float64
}

// Config holds every stage threshold. Percentages are fractions.
type Config struct {
	// L0
	EntryStart     domain.ClockTime
	EntryEnd       domain.ClockTime
	Location       *time.Location
	DailyLossLimit float64 // Daily realized loss as a fraction of equity that halts entries

	// L1
	RegimeFastSMA      int
	RegimeSlowSMA      int
	RegimeROCPeriod    int
	ATRPeriod          int
	MaxBenchmarkATRPct float64

	// L2
	RSLookback int
	TopPercent float64 // e.g. 0.3 keeps the top 30%

	// L3
	Consensus        []TimeframeWeight
	ConsensusFastEMA int
	ConsensusSlowEMA int
	RSIPeriod        int
	RSIOverbought    float64
	MinConsensus     float64

	// L4
	TurnoverPeriod int
	MinTurnover    float64
	MinFlowScore   float64

	// L5
	TierROCPeriod     int
	VolumePeriod      int
	StrongROC         float64
	ModerateROC       float64
	StrongVolumeRatio float64
	MaxATRPct         float64
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.EntryStart.Minutes() >= c.EntryEnd.Minutes() {
		add("entry window start %s must be before end %s", c.EntryStart, c.EntryEnd)
	}
	if c.DailyLossLimit <= 0 {
		add("daily loss limit must be positive")
	}
	periods := []struct {
		name  string
		value int
	}{
		{"regime fast SMA", c.RegimeFastSMA}, {"regime slow SMA", c.RegimeSlowSMA}, {"regime ROC", c.RegimeROCPeriod},
		{"ATR", c.ATRPeriod}, {"RS lookback", c.RSLookback}, {"consensus fast EMA", c.ConsensusFastEMA},
		{"consensus slow EMA", c.ConsensusSlowEMA}, {"RSI", c.RSIPeriod}, {"turnover", c.TurnoverPeriod},
		{"tier ROC", c.TierROCPeriod}, {"volume", c.VolumePeriod},
	}
	for _, p := range periods {
		if p.value <= 0 {
			add("%s period must be positive", p.name)
		}
	}
	if c.RegimeFastSMA >= c.RegimeSlowSMA {
		add("regime fast SMA must be shorter than slow SMA")
	}
	if c.ConsensusFastEMA >= c.ConsensusSlowEMA {
		add("consensus fast EMA must be shorter than slow EMA")
	}
	if c.TopPercent <= 0 || c.TopPercent > 1 {
		add("top percent must be in (0,1]")
	}
	if len(c.Consensus) == 0 {
		add("at least one consensus timeframe is required")
	}
	for _, tw := range c.Consensus {
		if tw.Weight <= 0 {
			add("consensus weight for %s must be positive", tw.Timeframe)
		}
	}
	if c.StrongROC < c.ModerateROC {
		add("strong ROC must not be below moderate ROC")
	}

	if len(problems) > 0 {
		return errors.New("invalid pipeline config: " + strings.Join(problems, "; "))
	}
	return nil
}
