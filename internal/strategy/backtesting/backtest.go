package backtesting

import (
	"context"
	"fmt"
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/exit"
	"equityBot/internal/ports"
	"equityBot/internal/strategy/analytics"
)

// DefaultQuantity is the simulated share count per entry. Stats are per-trip
// returns, so the absolute size only matters for partial-tier rounding.
const DefaultQuantity = 100

// Config holds configuration for a simulation run
type Config struct {
	Symbol          string
	Timeframe       domain.Timeframe // Defaults to the timeframe of the first bar
	Quantity        int64
	InitialBalance  float64
	ExitPeriods     exit.Periods
	ProfitFactorCap float64
}

// Result holds the outcome of a simulation run
type Result struct {
	Timeframe domain.Timeframe
	Bars      int
	Positions []*domain.Position // Closed round trips in exit order
	Open      *domain.Position   // Position still open when the data ran out
	Fills     []*domain.Trade
	Metrics   *analytics.PerformanceMetrics
}

// Simulate walks bars oldest to newest, entering on the strategy's entry rule and
// exiting through machine exactly as the live loop would. At most one position is
// held at a time and a bar that closes a position never re-enters.
func Simulate(ctx context.Context, strat ports.Strategy, machine *exit.Machine, bars []*domain.Bar, cfg Config) (*Result, error) {
	required := strat.RequiredDataPoints()
	if len(bars) < required+1 {
		return nil, fmt.Errorf("simulation of %s needs %d bars, have %d: %w", cfg.Symbol, required+1, len(bars), ports.ErrDataUnavailable)
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = DefaultQuantity
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = bars[0].Timeframe
	}
	// Every daily bar is already past any intraday cutoff.
	if !cfg.Timeframe.IsIntraday() {
		machine = machine.WithoutTimeExit()
	}

	result := &Result{Timeframe: cfg.Timeframe, Bars: len(bars)}
	var pos *domain.Position

	for i := required - 1; i < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window := bars[:i+1]
		bar := bars[i]
		now := barTime(bar)

		if pos != nil {
			res := machine.Evaluate(pos, exit.BuildInput(window, now, cfg.ExitPeriods))
			pos.ApplyTracking(res.Tracking.HighestPrice, res.Tracking.TrailingArmed)
			if res.Action != nil {
				fill, err := applyFill(pos, res.Action, bar, now)
				if err != nil {
					return nil, err
				}
				result.Fills = append(result.Fills, fill)
				if !pos.IsOpen() {
					result.Positions = append(result.Positions, pos)
					pos = nil
				}
			}
			continue
		}

		if strat.ShouldEnterTrade(ctx, window, bar.Close) {
			opened, err := domain.NewPosition(cfg.Symbol, cfg.Quantity, bar.Close, now)
			if err != nil {
				return nil, err
			}
			opened.StrategyTag = strat.Name()
			pos = opened
		}
	}

	result.Open = pos
	result.Metrics = analytics.AnalyzePerformance(result.Positions, cfg.InitialBalance, cfg.ProfitFactorCap)
	return result, nil
}

func applyFill(pos *domain.Position, action *domain.ExitAction, bar *domain.Bar, at time.Time) (*domain.Trade, error) {
	price := bar.Close
	pnl, err := pos.ApplyExit(action.Quantity, price, action.Reason, at)
	if err != nil {
		return nil, fmt.Errorf("simulated exit failed: %w", err)
	}
	// Simulated orders always fill in full.
	if action.Reason == domain.CloseReasonPartialTP {
		pos.CompleteTier()
	}
	return &domain.Trade{
		Symbol:      pos.Symbol,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Quantity:    action.Quantity,
		PNL:         pnl,
		EntryTime:   pos.EntryTime,
		ExitTime:    at,
		CloseReason: action.Reason,
		Final:       !pos.IsOpen(),
	}, nil
}

func barTime(b *domain.Bar) time.Time {
	if !b.CloseTime.IsZero() {
		return b.CloseTime
	}
	return b.OpenTime
}
