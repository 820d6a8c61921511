package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"equityBot/internal/domain"
)

// Config holds configuration for position sizing and account-level limits.
// Percentages are fractions of equity unless noted.
type Config struct {
	RiskPerTrade      float64 // Equity risked per trade at the hard stop, e.g. 0.01
	HardStopPct       float64 // Distance to the hard stop as a fraction of price
	MaxPositionValue  float64 // Absolute cap on position value
	MaxEquityFraction float64 // Cap on position value as a fraction of equity
	WeeklyLossSoft    float64 // Weekly loss that halves new position sizes
	WeeklyLossHard    float64 // Weekly loss that blocks new entries
	MaxOpenPositions  int
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var problems []string
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		problems = append(problems, "risk per trade must be in (0,1)")
	}
	if c.HardStopPct <= 0 || c.HardStopPct >= 1 {
		problems = append(problems, "hard stop pct must be in (0,1)")
	}
	if c.MaxPositionValue <= 0 {
		problems = append(problems, "max position value must be positive")
	}
	if c.MaxEquityFraction <= 0 || c.MaxEquityFraction > 1 {
		problems = append(problems, "max equity fraction must be in (0,1]")
	}
	if c.WeeklyLossSoft <= 0 || c.WeeklyLossHard <= c.WeeklyLossSoft {
		problems = append(problems, "weekly loss thresholds must satisfy 0 < soft < hard")
	}
	if c.MaxOpenPositions <= 0 {
		problems = append(problems, "max open positions must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid risk config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Manager converts graded decisions into share quantities.
type Manager struct {
	config Config
}

// NewManager creates a new risk manager instance
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Manager{config: config}, nil
}

// WeeklyAdjustment returns 1.0, 0.5 past the soft weekly loss, or 0.0 past the hard one.
func (m *Manager) WeeklyAdjustment(st *State, equity float64) float64 {
	if equity <= 0 || st.WeeklyRealizedPNL >= 0 {
		return 1.0
	}
	loss := -st.WeeklyRealizedPNL / equity
	switch {
	case loss >= m.config.WeeklyLossHard:
		return 0.0
	case loss >= m.config.WeeklyLossSoft:
		return 0.5
	default:
		return 1.0
	}
}

// BaseQuantity is the fractional-risk share count before any multiplier, not floored.
func (m *Manager) BaseQuantity(equity, price float64) float64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	byRisk := equity * m.config.RiskPerTrade / (price * m.config.HardStopPct)
	byValue := m.config.MaxPositionValue / price
	byEquity := equity * m.config.MaxEquityFraction / price
	return math.Min(byRisk, math.Min(byValue, byEquity))
}

// Size returns the whole-share quantity for decision. A zero quantity comes with
// the reason the entry must not happen.
func (m *Manager) Size(decision *domain.SignalDecision, equity, price float64, st *State) (int64, string) {
	if decision == nil || !decision.Passed {
		return 0, "decision did not pass the pipeline"
	}
	if equity <= 0 {
		return 0, "account equity unknown or non-positive"
	}
	if price <= 0 {
		return 0, "no valid price"
	}

	weekly := m.WeeklyAdjustment(st, equity)
	if weekly == 0 {
		return 0, fmt.Sprintf("weekly loss %.2f%% past hard limit %.2f%%", -st.WeeklyRealizedPNL/equity*100, m.config.WeeklyLossHard*100)
	}

	raw := m.BaseQuantity(equity, price) * decision.StageMultiplier * decision.Confidence * weekly
	qty := int64(math.Floor(raw + 1e-9))
	if qty <= 0 {
		return 0, fmt.Sprintf("size %.2f shares rounds to zero (stage x%.1f, confidence %.2f, weekly x%.1f)",
			raw, decision.StageMultiplier, decision.Confidence, weekly)
	}
	return qty, ""
}

// CanOpen checks the open-position cap.
func (m *Manager) CanOpen(openPositions int) (bool, string) {
	if openPositions >= m.config.MaxOpenPositions {
		return false, fmt.Sprintf("%d open positions at maximum %d", openPositions, m.config.MaxOpenPositions)
	}
	return true, ""
}
