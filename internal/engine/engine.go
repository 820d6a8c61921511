// Package engine exposes the decision surface used by the monitoring loop and tools:
// candidate evaluation, position sizing, exit checks and entry guards.
package engine

import (
	"context"
	"errors"
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/exit"
	"equityBot/internal/pipeline"
	"equityBot/internal/ports"
	"equityBot/internal/risk"
)

// Engine bundles the pure decision components. It holds no mutable trading state;
// callers pass risk.State explicitly.
type Engine struct {
	pipeline *pipeline.Pipeline
	sizer    *risk.Manager
	exits    *exit.Machine
	guards   *risk.TradeStateManager
	periods  exit.Periods
	logger   ports.Logger
}

// New wires the decision components together.
func New(p *pipeline.Pipeline, sizer *risk.Manager, exits *exit.Machine, guards *risk.TradeStateManager, periods exit.Periods, logger ports.Logger) (*Engine, error) {
	if p == nil || sizer == nil || exits == nil || guards == nil || logger == nil {
		return nil, errors.New("missing required dependencies for Engine")
	}
	return &Engine{
		pipeline: p,
		sizer:    sizer,
		exits:    exits,
		guards:   guards,
		periods:  periods,
		logger:   logger,
	}, nil
}

// EvaluateCandidate runs the filter pipeline. Rejections are logged with their reason;
// an error wrapping ports.ErrDataUnavailable means the candidate was skipped.
func (e *Engine) EvaluateCandidate(ctx context.Context, cand *domain.Candidate, env pipeline.Env) (*domain.SignalDecision, error) {
	decision, err := e.pipeline.Evaluate(ctx, cand, env)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"symbol":     decision.Symbol,
		"passed":     decision.Passed,
		"stage":      decision.Stage,
		"tier":       decision.Tier,
		"confidence": decision.Confidence,
	}
	if decision.Passed {
		e.logger.Info(ctx, "Candidate passed pipeline", fields)
	} else {
		fields["reason"] = decision.Reason
		e.logger.Debug(ctx, "Candidate rejected", fields)
	}
	return decision, nil
}

// SizePosition converts a decision into whole shares; zero comes with a reason.
func (e *Engine) SizePosition(decision *domain.SignalDecision, equity, price float64, st *risk.State) (int64, string) {
	return e.sizer.Size(decision, equity, price, st)
}

// CheckExit evaluates the exit rules for pos against the bar series ending now.
func (e *Engine) CheckExit(pos *domain.Position, bars []*domain.Bar, now time.Time) exit.Result {
	return e.exits.Evaluate(pos, exit.BuildInput(bars, now, e.periods))
}

// CanEnter applies the ban, cooldown and daily-limit guards.
func (e *Engine) CanEnter(st *risk.State, symbol, strategyTag string, now time.Time) (bool, string) {
	return e.guards.CanEnter(st, symbol, strategyTag, now)
}

// Confirm applies pending-entry confirmation.
func (e *Engine) Confirm(st *risk.State, symbol string, now time.Time) (bool, string) {
	return e.guards.Confirm(st, symbol, now)
}

// CanOpen checks the open-position cap.
func (e *Engine) CanOpen(openPositions int) (bool, string) {
	return e.sizer.CanOpen(openPositions)
}

// RecordEntry books an executed entry.
func (e *Engine) RecordEntry(st *risk.State, symbol, strategyTag string, now time.Time) {
	e.guards.RecordEntry(st, symbol, strategyTag, now)
}

// RecordOutcome books a completed round trip.
func (e *Engine) RecordOutcome(st *risk.State, symbol string, roundTripPNL float64, now time.Time) {
	e.guards.RecordOutcome(st, symbol, roundTripPNL, now)
}

// Location is the session time zone.
func (e *Engine) Location() *time.Location {
	return e.guards.Location()
}
