// Package exit decides when and how much of an open position to liquidate.
// The machine is a pure function over the position and the current market input;
// it never performs I/O and never mutates the position.
package exit

import (
	"fmt"
	"math"
	"time"

	"equityBot/internal/domain"
)

const epsilon = 1e-9

// Rule identifies one exit rule. Rules are evaluated in declaration order.
type Rule int

const (
	RuleHardStop Rule = iota
	RulePartialTier
	RuleTrailingStop
	RuleTrendBreakdown
	RuleTimeExit
)

// Order is the fixed priority order of all rules.
var Order = [...]Rule{RuleHardStop, RulePartialTier, RuleTrailingStop, RuleTrendBreakdown, RuleTimeExit}

func (r Rule) String() string {
	switch r {
	case RuleHardStop:
		return "hard_stop"
	case RulePartialTier:
		return "partial_tier"
	case RuleTrailingStop:
		return "trailing_stop"
	case RuleTrendBreakdown:
		return "trend_breakdown"
	case RuleTimeExit:
		return "time_exit"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Tier is a partial take-profit level.
type Tier struct {
	Gain     float64 // Unrealized gain that triggers the tier, e.g. 0.04
	Fraction float64 // Fraction of the original quantity to sell, e.g. 0.4
}

// Config holds exit thresholds. Percentages are fractions (0.03 = 3%).
type Config struct {
	HardStopPct float64
	Tiers       []Tier

	TrailingActivation  float64 // High-water gain that arms the trailing stop
	TrailingATRMultiple float64 // Retrace from the high in ATRs
	TrailingPct         float64 // Retrace from the high when ATR is unavailable
	MinLockedGain       float64 // Trailing stop never sits below entry*(1+MinLockedGain)

	SmallGain     float64 // Trend breakdown applies below this gain
	LargeGain     float64 // ... or at/above this gain while tiers remain
	VolumeConfirm float64 // Minimum volume ratio confirming a breakdown
	BreakdownRSI  float64 // RSI must be below this, typically 50

	SessionCutoff   domain.ClockTime
	Location        *time.Location
	DisableTimeExit bool
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.HardStopPct <= 0 || c.HardStopPct >= 1 {
		return fmt.Errorf("hard stop pct must be in (0,1), got %f", c.HardStopPct)
	}
	total := 0.0
	for i, t := range c.Tiers {
		if t.Gain <= 0 || t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("exit tier %d invalid: gain %f fraction %f", i, t.Gain, t.Fraction)
		}
		if i > 0 && t.Gain <= c.Tiers[i-1].Gain {
			return fmt.Errorf("exit tiers must have ascending gains, tier %d (%f) <= tier %d (%f)", i, t.Gain, i-1, c.Tiers[i-1].Gain)
		}
		total += t.Fraction
	}
	if total > 1+epsilon {
		return fmt.Errorf("exit tier fractions sum to %f, must not exceed 1", total)
	}
	if c.TrailingActivation <= 0 {
		return fmt.Errorf("trailing activation must be positive, got %f", c.TrailingActivation)
	}
	if c.TrailingATRMultiple <= 0 && c.TrailingPct <= 0 {
		return fmt.Errorf("trailing stop needs an ATR multiple or a fallback pct")
	}
	if c.MinLockedGain < 0 || c.MinLockedGain >= c.TrailingActivation {
		return fmt.Errorf("min locked gain %f must be in [0, trailing activation %f)", c.MinLockedGain, c.TrailingActivation)
	}
	if c.LargeGain > 0 && c.LargeGain < c.SmallGain {
		return fmt.Errorf("large gain %f must not be below small gain %f", c.LargeGain, c.SmallGain)
	}
	return nil
}

// Input is the market view for one evaluation. Optional indicators carry an ok flag;
// a rule that needs a missing indicator does not fire.
type Input struct {
	Bar *domain.Bar
	Now time.Time

	ATR   float64
	ATROK bool

	FastMA      float64
	VolumeRatio float64
	RSI         float64
	TrendOK     bool // FastMA, VolumeRatio and RSI are all available
}

// Tracking is the exit state the caller must store back on the position.
type Tracking struct {
	HighestPrice  float64
	TrailingArmed bool
}

// Result is the outcome of one evaluation: at most one action, always the tracking update.
type Result struct {
	Action   *domain.ExitAction
	Tracking Tracking
}

// Machine evaluates exit rules for open positions.
type Machine struct {
	cfg Config
}

// New creates a Machine after validating cfg.
func New(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Machine{cfg: cfg}, nil
}

// Config returns a copy of the machine configuration.
func (m *Machine) Config() Config {
	c := m.cfg
	c.Tiers = append([]Tier(nil), m.cfg.Tiers...)
	return c
}

// WithoutTimeExit returns a machine sharing this configuration with the
// time-of-day rule disabled.
func (m *Machine) WithoutTimeExit() *Machine {
	c := m.Config()
	c.DisableTimeExit = true
	return &Machine{cfg: c}
}

type evaluation struct {
	pos   *domain.Position
	in    Input
	price float64
	gain  float64
	track Tracking
}

// Evaluate runs the rules in priority order and stops at the first one that fires.
func (m *Machine) Evaluate(pos *domain.Position, in Input) Result {
	if pos == nil {
		return Result{}
	}
	res := Result{Tracking: Tracking{HighestPrice: pos.HighestPrice, TrailingArmed: pos.TrailingArmed}}
	if !pos.IsOpen() || pos.RemainingQuantity <= 0 || in.Bar == nil || in.Bar.Close <= 0 {
		return res
	}

	ev := &evaluation{pos: pos, in: in, price: in.Bar.Close, gain: pos.Gain(in.Bar.Close)}
	high := math.Max(pos.HighestPrice, math.Max(in.Bar.High, in.Bar.Close))
	ev.track = Tracking{
		HighestPrice:  high,
		TrailingArmed: pos.TrailingArmed || pos.Gain(high) >= m.cfg.TrailingActivation-epsilon,
	}
	res.Tracking = ev.track

	for _, rule := range Order {
		if action := m.check(rule, ev); action != nil {
			res.Action = action
			return res
		}
	}
	return res
}

func (m *Machine) check(rule Rule, ev *evaluation) *domain.ExitAction {
	switch rule {
	case RuleHardStop:
		return m.hardStop(ev)
	case RulePartialTier:
		return m.partialTier(ev)
	case RuleTrailingStop:
		return m.trailingStop(ev)
	case RuleTrendBreakdown:
		return m.trendBreakdown(ev)
	case RuleTimeExit:
		return m.timeExit(ev)
	}
	return nil
}

func (m *Machine) closeAll(rule Rule, ev *evaluation, hint domain.ExecutionHint, reason domain.CloseReason, msg string) *domain.ExitAction {
	return &domain.ExitAction{
		Rule:      rule.String(),
		Quantity:  ev.pos.RemainingQuantity,
		Hint:      hint,
		Price:     ev.price,
		Reason:    reason,
		Message:   msg,
		TierIndex: -1,
		Final:     true,
	}
}

func (m *Machine) hardStop(ev *evaluation) *domain.ExitAction {
	if ev.gain > -m.cfg.HardStopPct+epsilon {
		return nil
	}
	return m.closeAll(RuleHardStop, ev, domain.HintMarket, domain.CloseReasonHardStop,
		fmt.Sprintf("hard stop: loss %.2f%% reached limit -%.2f%%", ev.gain*100, m.cfg.HardStopPct*100))
}

// partialTier fires the next unexecuted tier. Tiers execute strictly in order,
// so PartialStage is the index of the next candidate.
func (m *Machine) partialTier(ev *evaluation) *domain.ExitAction {
	idx := ev.pos.PartialStage
	if idx < 0 || idx >= len(m.cfg.Tiers) {
		return nil
	}
	tier := m.cfg.Tiers[idx]
	if ev.gain < tier.Gain-epsilon {
		return nil
	}

	qty := int64(math.Floor(tier.Fraction*float64(ev.pos.TotalQuantity) + epsilon))
	if qty < 1 {
		qty = 1
	}
	if qty > ev.pos.RemainingQuantity {
		qty = ev.pos.RemainingQuantity
	}
	return &domain.ExitAction{
		Rule:      RulePartialTier.String(),
		Quantity:  qty,
		Hint:      domain.HintLimit,
		Price:     ev.price,
		Reason:    domain.CloseReasonPartialTP,
		Message:   fmt.Sprintf("partial tier %d: gain %.2f%% >= %.2f%%, selling %d of %d", idx+1, ev.gain*100, tier.Gain*100, qty, ev.pos.TotalQuantity),
		TierIndex: idx,
		Final:     qty == ev.pos.RemainingQuantity,
	}
}

// TrailingStopPrice returns the stop level for a given high-water mark.
func (m *Machine) TrailingStopPrice(entry, high, atr float64, atrOK bool) float64 {
	var stop float64
	if atrOK && atr > 0 && m.cfg.TrailingATRMultiple > 0 {
		stop = high - m.cfg.TrailingATRMultiple*atr
	} else {
		stop = high * (1 - m.cfg.TrailingPct)
	}
	return math.Max(stop, entry*(1+m.cfg.MinLockedGain))
}

func (m *Machine) trailingStop(ev *evaluation) *domain.ExitAction {
	if !ev.track.TrailingArmed {
		return nil
	}
	stop := m.TrailingStopPrice(ev.pos.EntryPrice, ev.track.HighestPrice, ev.in.ATR, ev.in.ATROK)
	if ev.price > stop+epsilon {
		return nil
	}
	return m.closeAll(RuleTrailingStop, ev, domain.HintMarket, domain.CloseReasonTrailingStop,
		fmt.Sprintf("trailing stop: price %.4f <= stop %.4f (high %.4f)", ev.price, stop, ev.track.HighestPrice))
}

func (m *Machine) trendBreakdown(ev *evaluation) *domain.ExitAction {
	if !ev.in.TrendOK {
		return nil
	}
	tiersRemaining := ev.pos.PartialStage < len(m.cfg.Tiers)
	inWindow := ev.gain < m.cfg.SmallGain || (m.cfg.LargeGain > 0 && ev.gain >= m.cfg.LargeGain && tiersRemaining)
	if !inWindow {
		return nil
	}
	if ev.price >= ev.in.FastMA || ev.in.VolumeRatio < m.cfg.VolumeConfirm || ev.in.RSI >= m.cfg.BreakdownRSI {
		return nil
	}
	return m.closeAll(RuleTrendBreakdown, ev, domain.HintMarket, domain.CloseReasonTrendBreakdown,
		fmt.Sprintf("trend breakdown: price %.4f < fast MA %.4f, volume ratio %.2f, RSI %.1f", ev.price, ev.in.FastMA, ev.in.VolumeRatio, ev.in.RSI))
}

func (m *Machine) timeExit(ev *evaluation) *domain.ExitAction {
	if m.cfg.DisableTimeExit || ev.in.Now.IsZero() {
		return nil
	}
	local := ev.in.Now.In(m.cfg.Location)
	if domain.MinuteOfDay(local) < m.cfg.SessionCutoff.Minutes() {
		return nil
	}
	return m.closeAll(RuleTimeExit, ev, domain.HintMarket, domain.CloseReasonTimeExit,
		fmt.Sprintf("time exit: %s at or after cutoff %s", local.Format("15:04"), m.cfg.SessionCutoff))
}
