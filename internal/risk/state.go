package risk

import (
	"time"

	"equityBot/internal/domain"
)

// State is the process-wide trading-day state. It is owned by the monitoring loop
// and passed by pointer into every call that reads or mutates it.
type State struct {
	TradingDay time.Time // Midnight of the current trading day
	WeekStart  time.Time // Midnight of the current week's Monday

	DailyRealizedPNL  float64
	WeeklyRealizedPNL float64

	CooldownUntil     map[string]time.Time    // symbol -> end of post-loss cooldown
	ConsecutiveLosses map[string]int          // symbol -> losing round trips in a row
	Banned            map[string]bool         // symbols barred for the rest of the day
	EntriesToday      map[domain.EntryKey]int // (symbol, strategy tag) -> entries today
	Pending           map[string]time.Time    // symbol -> first passing decision awaiting confirmation
}

// NewState creates state for the trading day containing now.
func NewState(now time.Time, loc *time.Location) *State {
	s := &State{
		TradingDay: domain.DayStart(now, loc),
		WeekStart:  domain.WeekStart(now, loc),
	}
	s.resetDaily()
	return s
}

func (s *State) resetDaily() {
	s.DailyRealizedPNL = 0
	s.CooldownUntil = make(map[string]time.Time)
	s.ConsecutiveLosses = make(map[string]int)
	s.Banned = make(map[string]bool)
	s.EntriesToday = make(map[domain.EntryKey]int)
	s.Pending = make(map[string]time.Time)
}

// Rollover resets daily and weekly counters when now has crossed a boundary.
func (s *State) Rollover(now time.Time, loc *time.Location) (daily, weekly bool) {
	day := domain.DayStart(now, loc)
	if day.After(s.TradingDay) {
		s.TradingDay = day
		s.resetDaily()
		daily = true
	}
	week := domain.WeekStart(now, loc)
	if week.After(s.WeekStart) {
		s.WeekStart = week
		s.WeeklyRealizedPNL = 0
		weekly = true
	}
	return daily, weekly
}

// AddRealized books the PnL of one fill, partial or final.
func (s *State) AddRealized(pnl float64) {
	s.DailyRealizedPNL += pnl
	s.WeeklyRealizedPNL += pnl
}

// BannedSymbols lists today's banned symbols.
func (s *State) BannedSymbols() []string {
	out := make([]string, 0, len(s.Banned))
	for sym, banned := range s.Banned {
		if banned {
			out = append(out, sym)
		}
	}
	return out
}
