// Package validator pre-screens candidates by simulating the live entry and exit
// rules over recent history, falling back to a coarser timeframe when the primary
// sample is too small.
package validator

import (
	"context"
	"errors"
	"fmt"

	"equityBot/internal/domain"
	"equityBot/internal/exit"
	"equityBot/internal/ports"
	"equityBot/internal/retry"
	"equityBot/internal/strategy/backtesting"
)

// Fallback stages.
const (
	StagePrimary  = 0
	StageFallback = 1
	StageMinimal  = 2
)

// Confidence and entry ratio per fallback stage.
var stageGrades = [...]struct{ confidence, entryRatio float64 }{
	StagePrimary:  {1.0, 1.0},
	StageFallback: {0.7, 0.6},
	StageMinimal:  {0.3, 0.3},
}

// Criteria are the minimum simulation results a series must reach.
type Criteria struct {
	MinTrades         int
	MinWinRate        float64
	MinAvgReturn      float64
	MinProfitFactor   float64
	ProfitFactorCap   float64
	AllowMinimalEntry bool
}

// Series describes which bars to fetch for validation.
type Series struct {
	PrimaryTimeframe  domain.Timeframe
	PrimaryBars       int
	FallbackTimeframe domain.Timeframe // Empty disables the fallback
	FallbackBars      int
}

// Stats are the simulation results of one series.
type Stats struct {
	Timeframe    domain.Timeframe
	TradeCount   int
	WinRate      float64
	AvgReturn    float64
	ProfitFactor float64
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: %d trades, win %.1f%%, avg %.2f%%, pf %.2f",
		s.Timeframe, s.TradeCount, s.WinRate*100, s.AvgReturn*100, s.ProfitFactor)
}

// Result is the validation outcome for one symbol.
type Result struct {
	Symbol        string
	Allowed       bool
	Reason        string
	FallbackStage int
	Confidence    float64
	EntryRatio    float64
	Stats         Stats  // Stats of the series the decision relied on
	Primary       Stats  // Always populated
	Fallback      *Stats // Populated when the fallback was simulated
}

// Err returns nil for allowed results and an error wrapping ErrValidationFailed otherwise.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s: %s: %w", r.Symbol, r.Reason, ports.ErrValidationFailed)
}

// Validator runs candidate simulations.
type Validator struct {
	strategy ports.Strategy
	machine  *exit.Machine
	periods  exit.Periods
	criteria Criteria
	logger   ports.Logger
}

// New creates a Validator.
func New(strat ports.Strategy, machine *exit.Machine, periods exit.Periods, criteria Criteria, logger ports.Logger) (*Validator, error) {
	if strat == nil || machine == nil || logger == nil {
		return nil, errors.New("validator requires a strategy, an exit machine and a logger")
	}
	if criteria.MinTrades < 1 {
		return nil, fmt.Errorf("validator min trades must be at least 1, got %d", criteria.MinTrades)
	}
	return &Validator{strategy: strat, machine: machine, periods: periods, criteria: criteria, logger: logger}, nil
}

// Validate simulates primary and, when the primary sample is too small, fallback.
// An insufficient primary series returns an error wrapping ports.ErrDataUnavailable.
func (v *Validator) Validate(ctx context.Context, symbol string, primary, fallback []*domain.Bar) (*Result, error) {
	primaryStats, err := v.simulate(ctx, symbol, primary)
	if err != nil {
		return nil, err
	}
	res := &Result{Symbol: symbol, Primary: primaryStats}

	ok, why := v.passes(primaryStats)
	if ok {
		return v.grade(res, StagePrimary, primaryStats, "primary "+primaryStats.String()), nil
	}
	// Enough trades to judge, and they were not good enough.
	if primaryStats.TradeCount >= v.criteria.MinTrades {
		return v.grade(res, StageMinimal, primaryStats, "primary "+why), nil
	}

	reason := fmt.Sprintf("primary %s: %d trades < min %d", primaryStats.Timeframe, primaryStats.TradeCount, v.criteria.MinTrades)
	if len(fallback) == 0 {
		return v.grade(res, StageMinimal, primaryStats, reason+"; no fallback series"), nil
	}

	fallbackStats, err := v.simulate(ctx, symbol, fallback)
	if errors.Is(err, ports.ErrDataUnavailable) {
		return v.grade(res, StageMinimal, primaryStats, reason+"; fallback too short"), nil
	}
	if err != nil {
		return nil, err
	}
	res.Fallback = &fallbackStats

	if ok, why = v.passes(fallbackStats); ok {
		return v.grade(res, StageFallback, fallbackStats, reason+"; fallback "+fallbackStats.String()), nil
	}
	return v.grade(res, StageMinimal, fallbackStats, reason+"; fallback "+why), nil
}

// ValidateSymbol fetches the configured series through provider and validates them.
func (v *Validator) ValidateSymbol(ctx context.Context, provider ports.MarketDataProvider, policy retry.Policy, symbol string, series Series) (*Result, error) {
	op := "ValidateSymbol"
	primary, err := retry.Value(ctx, policy, op+" primary", func(ctx context.Context) ([]*domain.Bar, error) {
		return provider.GetBars(ctx, symbol, series.PrimaryTimeframe, series.PrimaryBars)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed for %s: %w", op, symbol, err)
	}

	var fallback []*domain.Bar
	if series.FallbackTimeframe != "" {
		fallback, err = retry.Value(ctx, policy, op+" fallback", func(ctx context.Context) ([]*domain.Bar, error) {
			return provider.GetBars(ctx, symbol, series.FallbackTimeframe, series.FallbackBars)
		})
		// A missing fallback degrades the outcome instead of failing the symbol.
		if err != nil && !errors.Is(err, ports.ErrDataUnavailable) {
			return nil, fmt.Errorf("%s failed for %s: %w", op, symbol, err)
		}
		if err != nil {
			v.logger.Debug(ctx, "Fallback series unavailable", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			fallback = nil
		}
	}
	return v.Validate(ctx, symbol, primary, fallback)
}

func (v *Validator) simulate(ctx context.Context, symbol string, bars []*domain.Bar) (Stats, error) {
	sim, err := backtesting.Simulate(ctx, v.strategy, v.machine, bars, backtesting.Config{
		Symbol:          symbol,
		ExitPeriods:     v.periods,
		ProfitFactorCap: v.criteria.ProfitFactorCap,
	})
	if err != nil {
		return Stats{}, err
	}
	m := sim.Metrics
	return Stats{
		Timeframe:    sim.Timeframe,
		TradeCount:   m.TotalTrades,
		WinRate:      m.WinRate,
		AvgReturn:    m.AverageReturn,
		ProfitFactor: m.ProfitFactor,
	}, nil
}

// passes checks stats against the criteria and explains the first failure.
func (v *Validator) passes(s Stats) (bool, string) {
	c := v.criteria
	switch {
	case s.TradeCount < c.MinTrades:
		return false, fmt.Sprintf("%s: %d trades < min %d", s.Timeframe, s.TradeCount, c.MinTrades)
	case s.WinRate < c.MinWinRate:
		return false, fmt.Sprintf("%s: win rate %.1f%% < min %.1f%%", s.Timeframe, s.WinRate*100, c.MinWinRate*100)
	case s.AvgReturn < c.MinAvgReturn:
		return false, fmt.Sprintf("%s: avg return %.2f%% < min %.2f%%", s.Timeframe, s.AvgReturn*100, c.MinAvgReturn*100)
	case s.ProfitFactor < c.MinProfitFactor:
		return false, fmt.Sprintf("%s: profit factor %.2f < min %.2f", s.Timeframe, s.ProfitFactor, c.MinProfitFactor)
	}
	return true, ""
}

func (v *Validator) grade(res *Result, stage int, stats Stats, reason string) *Result {
	res.FallbackStage = stage
	res.Stats = stats
	res.Reason = reason
	res.Allowed = stage < StageMinimal || v.criteria.AllowMinimalEntry
	if res.Allowed {
		res.Confidence = stageGrades[stage].confidence
		res.EntryRatio = stageGrades[stage].entryRatio
	}
	return res
}
