package risk

import (
	"errors"
	"fmt"
	"time"

	"equityBot/internal/domain"
)

// TradeStateConfig holds the guard-rail settings.
type TradeStateConfig struct {
	Cooldown               time.Duration  // Post-loss cooldown per symbol
	BanAfterLosses         int            // Consecutive losses that ban a symbol for the day
	DailyEntryLimits       map[string]int // strategy tag -> entries per symbol per day
	DefaultDailyEntryLimit int            // Used for tags not in DailyEntryLimits
	ConfirmWindow          time.Duration  // 0 disables pending-entry confirmation
	ConfirmDelay           time.Duration  // Minimum wait before a pending entry confirms
	Location               *time.Location
}

// TradeStateManager enforces bans, cooldowns, entry limits and entry confirmation.
type TradeStateManager struct {
	cfg TradeStateConfig
}

// NewTradeStateManager validates cfg and creates a manager.
func NewTradeStateManager(cfg TradeStateConfig) (*TradeStateManager, error) {
	if cfg.BanAfterLosses <= 0 {
		return nil, errors.New("ban after losses must be positive")
	}
	if cfg.DefaultDailyEntryLimit <= 0 {
		return nil, errors.New("default daily entry limit must be positive")
	}
	if cfg.Cooldown < 0 || cfg.ConfirmWindow < 0 || cfg.ConfirmDelay < 0 {
		return nil, errors.New("guard durations must not be negative")
	}
	if cfg.ConfirmWindow > 0 && cfg.ConfirmDelay >= cfg.ConfirmWindow {
		return nil, fmt.Errorf("confirm delay %s must be shorter than confirm window %s", cfg.ConfirmDelay, cfg.ConfirmWindow)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TradeStateManager{cfg: cfg}, nil
}

// Location is the trading-day time zone.
func (m *TradeStateManager) Location() *time.Location {
	return m.cfg.Location
}

// DailyEntryLimit returns the entry cap for a strategy tag.
func (m *TradeStateManager) DailyEntryLimit(tag string) int {
	if limit, ok := m.cfg.DailyEntryLimits[tag]; ok && limit > 0 {
		return limit
	}
	return m.cfg.DefaultDailyEntryLimit
}

// CanEnter checks, in order, the ban list, the cooldown window and the symbol's
// daily entry limit under the strategy.
func (m *TradeStateManager) CanEnter(st *State, symbol, strategyTag string, now time.Time) (bool, string) {
	st.Rollover(now, m.cfg.Location)

	if st.Banned[symbol] {
		return false, fmt.Sprintf("%s banned for the day after %d consecutive losses", symbol, st.ConsecutiveLosses[symbol])
	}
	if until, ok := st.CooldownUntil[symbol]; ok && now.Before(until) {
		return false, fmt.Sprintf("%s in cooldown until %s", symbol, until.In(m.cfg.Location).Format("15:04"))
	}
	key := domain.EntryKey{Symbol: symbol, Strategy: strategyTag}
	if limit := m.DailyEntryLimit(strategyTag); st.EntriesToday[key] >= limit {
		return false, fmt.Sprintf("%s reached %s daily entry limit %d", symbol, strategyTag, limit)
	}
	return true, ""
}

// Confirm implements pending-entry confirmation. The first passing decision registers
// a pending entry; a later one at least ConfirmDelay after it and within ConfirmWindow
// confirms it. Without a window every call confirms.
func (m *TradeStateManager) Confirm(st *State, symbol string, now time.Time) (bool, string) {
	if m.cfg.ConfirmWindow == 0 {
		return true, ""
	}
	registered, ok := st.Pending[symbol]
	if !ok || now.Sub(registered) > m.cfg.ConfirmWindow {
		st.Pending[symbol] = now
		return false, fmt.Sprintf("%s pending confirmation for %s", symbol, m.cfg.ConfirmDelay)
	}
	if waited := now.Sub(registered); waited < m.cfg.ConfirmDelay {
		return false, fmt.Sprintf("%s awaiting confirmation, %s of %s elapsed", symbol, waited.Round(time.Second), m.cfg.ConfirmDelay)
	}
	delete(st.Pending, symbol)
	return true, ""
}

// RecordEntry counts an executed entry against the symbol's daily limit.
func (m *TradeStateManager) RecordEntry(st *State, symbol, strategyTag string, now time.Time) {
	st.Rollover(now, m.cfg.Location)
	st.EntriesToday[domain.EntryKey{Symbol: symbol, Strategy: strategyTag}]++
	delete(st.Pending, symbol)
}

// RecordOutcome updates loss streaks once a round trip completes. A loss starts the
// cooldown and bans the symbol when the streak reaches the limit; a win resets the streak.
func (m *TradeStateManager) RecordOutcome(st *State, symbol string, roundTripPNL float64, now time.Time) {
	st.Rollover(now, m.cfg.Location)
	if roundTripPNL >= 0 {
		st.ConsecutiveLosses[symbol] = 0
		return
	}
	st.ConsecutiveLosses[symbol]++
	if m.cfg.Cooldown > 0 {
		st.CooldownUntil[symbol] = now.Add(m.cfg.Cooldown)
	}
	if st.ConsecutiveLosses[symbol] >= m.cfg.BanAfterLosses {
		st.Banned[symbol] = true
	}
}
