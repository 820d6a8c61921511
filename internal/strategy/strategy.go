package strategy

import (
	"context"
	"fmt"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
	"equityBot/internal/strategy/indicators"
)

// DefaultName is the strategy tag used when Config.Name is empty.
const DefaultName = "trend_follow"

// Config holds parameters for the entry rule.
type Config struct {
	Name              string  // Strategy tag, used for per-strategy entry limits
	ShortTermMAPeriod int     // e.g., 20
	LongTermMAPeriod  int     // e.g., 50
	EMAPeriod         int     // e.g., 20
	RSIPeriod         int     // e.g., 14
	RSIOverbought     float64 // e.g., 70.0
}

// Strategy implements the trend-following entry rule. The same rule is used live
// and by the candidate simulation.
type Strategy struct {
	cfg    Config
	logger ports.Logger
}

// Compile-time check that Strategy satisfies the port.
var _ ports.Strategy = (*Strategy)(nil)

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.ShortTermMAPeriod <= 0 || cfg.LongTermMAPeriod <= 0 || cfg.EMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.ShortTermMAPeriod >= cfg.LongTermMAPeriod {
		return nil, fmt.Errorf("short term MA period must be less than long term MA period")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	return &Strategy{cfg: cfg, logger: logger}, nil
}

// Name returns the strategy tag.
func (s *Strategy) Name() string {
	return s.cfg.Name
}

// RequiredDataPoints returns the minimum number of bars needed for the strategy calculations.
// It's the max of all indicator periods + 1 (for RSI lookback).
func (s *Strategy) RequiredDataPoints() int {
	return max(s.cfg.LongTermMAPeriod, s.cfg.EMAPeriod, s.cfg.RSIPeriod) + 1
}

// ShouldEnterTrade reports whether price is above both SMAs and the EMA, the short SMA
// is above the long SMA, and RSI is below the overbought level.
func (s *Strategy) ShouldEnterTrade(ctx context.Context, bars []*domain.Bar, currentPrice float64) bool {
	requiredPoints := s.RequiredDataPoints()
	if len(bars) < requiredPoints {
		s.logger.Debug(ctx, "Not enough bar data for strategy evaluation",
			map[string]interface{}{"available": len(bars), "required": requiredPoints})
		return false
	}

	closes := domain.Closes(bars)
	shortTermMA, err := indicators.SMA(closes, s.cfg.ShortTermMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate short term MA")
		return false
	}
	longTermMA, err := indicators.SMA(closes, s.cfg.LongTermMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate long term MA")
		return false
	}
	ema, err := indicators.EMA(closes, s.cfg.EMAPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate EMA")
		return false
	}
	rsi, err := indicators.WilderRSI(closes, s.cfg.RSIPeriod)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to calculate RSI")
		return false
	}

	isTrendingUp := currentPrice > shortTermMA && currentPrice > longTermMA && shortTermMA > longTermMA
	isNotOverbought := rsi < s.cfg.RSIOverbought
	isAboveEMA := currentPrice > ema

	fields := map[string]interface{}{
		"currentPrice": currentPrice,
		"shortMA":      shortTermMA,
		"longMA":       longTermMA,
		"ema":          ema,
		"rsi":          rsi,
	}
	if isTrendingUp && isNotOverbought && isAboveEMA {
		s.logger.Debug(ctx, "Trade entry conditions met", fields)
		return true
	}

	fields["isTrendingUp"] = isTrendingUp
	fields["isNotOverbought"] = isNotOverbought
	fields["isAboveEMA"] = isAboveEMA
	s.logger.Debug(ctx, "Trade entry conditions not met", fields)
	return false
}
