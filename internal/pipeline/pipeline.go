// Package pipeline runs the ordered entry filters L0 through L6 and grades the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
	"equityBot/internal/validator"
)

const epsilon = 1e-9

// Stage identifies one filter. Stages run in declaration order.
type Stage int

const (
	StageSystem Stage = iota
	StageRegime
	StageRelativeStrength
	StageConsensus
	StageLiquidity
	StageTier
	StageFinal
)

// Order is the fixed evaluation order of all stages.
var Order = [...]Stage{StageSystem, StageRegime, StageRelativeStrength, StageConsensus, StageLiquidity, StageTier, StageFinal}

func (s Stage) String() string {
	switch s {
	case StageSystem:
		return "L0_system"
	case StageRegime:
		return "L1_regime"
	case StageRelativeStrength:
		return "L2_relative_strength"
	case StageConsensus:
		return "L3_consensus"
	case StageLiquidity:
		return "L4_liquidity"
	case StageTier:
		return "L5_tier"
	case StageFinal:
		return "L6_final"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// CandidateValidator is the L6 collaborator.
type CandidateValidator interface {
	Validate(ctx context.Context, symbol string, primary, fallback []*domain.Bar) (*validator.Result, error)
}

// Env is the per-cycle environment shared by every candidate.
type Env struct {
	Now              time.Time
	Equity           float64
	DailyRealizedPNL float64
	Benchmark        []*domain.Bar // Benchmark series on the primary timeframe
	// UniverseExcessReturns holds the excess return of every symbol scanned this cycle,
	// including the candidate itself.
	UniverseExcessReturns []float64
}

// Pipeline evaluates candidates. It is safe for concurrent use; it holds no mutable state.
type Pipeline struct {
	cfg       Config
	validator CandidateValidator
}

// New creates a Pipeline after validating cfg.
func New(cfg Config, v CandidateValidator) (*Pipeline, error) {
	if v == nil {
		return nil, errors.New("pipeline requires a candidate validator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Pipeline{cfg: cfg, validator: v}, nil
}

// evaluation carries values produced by earlier stages to later ones.
type evaluation struct {
	cand *domain.Candidate
	env  *Env

	primary          []*domain.Bar
	regimeConfidence float64
	tier             int
	fallbackStage    int
}

// Evaluate runs every stage in order and stops at the first failure.
// Errors wrapping ports.ErrDataUnavailable mean the candidate should be skipped this cycle.
func (p *Pipeline) Evaluate(ctx context.Context, cand *domain.Candidate, env Env) (*domain.SignalDecision, error) {
	if cand == nil {
		return nil, fmt.Errorf("nil candidate: %w", ports.ErrDataUnavailable)
	}
	ev := &evaluation{
		cand:          cand,
		env:           &env,
		primary:       cand.Bars(cand.Primary),
		tier:          3,
		fallbackStage: validator.StageMinimal,
	}
	if len(ev.primary) == 0 {
		return nil, fmt.Errorf("%s has no %s bars: %w", cand.Symbol, cand.Primary, ports.ErrDataUnavailable)
	}

	decision := &domain.SignalDecision{
		Symbol:      cand.Symbol,
		StrategyTag: cand.StrategyTag,
		Price:       cand.LastPrice(),
		EvaluatedAt: env.Now,
	}

	passed := true
	for _, stage := range Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := p.evaluateStage(ctx, stage, ev)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", cand.Symbol, stage, err)
		}
		outcome.Stage = stage.String()
		decision.Outcomes = append(decision.Outcomes, outcome)
		if !outcome.Passed {
			passed = false
			decision.FailedStage = outcome.Stage
			decision.Reason = fmt.Sprintf("%s: %s", outcome.Stage, outcome.Reason)
			break
		}
	}

	decision.Passed = passed
	decision.Tier = ev.tier
	decision.FallbackStage = ev.fallbackStage
	decision.RegimeConfidence = ev.regimeConfidence
	decision.Stage, decision.StageMultiplier = StageFor(ev.fallbackStage, ev.regimeConfidence, ev.tier)
	decision.Confidence = aggregateConfidence(decision.Outcomes)
	return decision, nil
}

func (p *Pipeline) evaluateStage(ctx context.Context, stage Stage, ev *evaluation) (domain.FilterOutcome, error) {
	switch stage {
	case StageSystem:
		return p.system(ev)
	case StageRegime:
		return p.regime(ev)
	case StageRelativeStrength:
		return p.relativeStrength(ev)
	case StageConsensus:
		return p.consensus(ev)
	case StageLiquidity:
		return p.liquidity(ev)
	case StageTier:
		return p.tierStage(ev)
	case StageFinal:
		return p.final(ctx, ev)
	}
	return domain.FilterOutcome{}, fmt.Errorf("unknown pipeline stage %d", int(stage))
}

// StageFor maps fallback stage, regime confidence and tier to a signal stage and its
// size multiplier. Every input maps to one of the three stages.
func StageFor(fallbackStage int, regimeConfidence float64, tier int) (int, float64) {
	switch {
	case fallbackStage >= validator.StageMinimal:
		return 3, domain.MultiplierStage3
	case fallbackStage == validator.StageFallback:
		return 2, domain.MultiplierStage2
	case tier == 1 && regimeConfidence >= 0.8-epsilon:
		return 1, domain.MultiplierStage1
	case tier == 2 || (tier == 1 && regimeConfidence >= 0.6-epsilon):
		return 2, domain.MultiplierStage2
	default:
		return 3, domain.MultiplierStage3
	}
}

// aggregateConfidence is the mean confidence of L1 onwards, clamped to [0,1].
func aggregateConfidence(outcomes []domain.FilterOutcome) float64 {
	sum, n := 0.0, 0
	for _, o := range outcomes {
		if o.Stage == StageSystem.String() {
			continue
		}
		sum += o.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func pass(confidence float64, reason string, payload map[string]float64) (domain.FilterOutcome, error) {
	return domain.FilterOutcome{Passed: true, Confidence: clamp01(confidence), Reason: reason, Payload: payload}, nil
}

func reject(confidence float64, reason string, payload map[string]float64) (domain.FilterOutcome, error) {
	return domain.FilterOutcome{Passed: false, Confidence: clamp01(confidence), Reason: reason, Payload: payload}, nil
}
