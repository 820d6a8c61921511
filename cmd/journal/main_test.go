package main

import (
	"testing"
	"time"

	"equityBot/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCalculateJournalStats(t *testing.T) {
	t0 := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)
	// Newest first, as the journal returns them.
	trades := []*domain.Trade{
		{PositionID: 2, PNL: -300, ExitTime: t0.Add(3 * time.Hour), CloseReason: domain.CloseReasonHardStop, Final: true},
		{PositionID: 1, PNL: 50, ExitTime: t0.Add(2 * time.Hour), CloseReason: domain.CloseReasonTrailingStop, Final: true},
		{PositionID: 1, PNL: 100, ExitTime: t0.Add(time.Hour), CloseReason: domain.CloseReasonPartialTP},
	}

	s := calculateJournalStats(trades, 10000, 10)

	assert.Equal(t, 3, s.Exits)
	assert.Equal(t, 2, s.RoundTrips)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 0.5, s.WinRate)
	assert.Equal(t, 150.0, s.AvgWin)
	assert.Equal(t, -300.0, s.AvgLoss)
	assert.Equal(t, -150.0, s.TotalPnL)
	assert.Equal(t, 0.5, s.ProfitFactor)
	assert.InDelta(t, 300.0/10150.0, s.MaxDrawdown, 1e-12)
	assert.Equal(t, "HARD_STOP=1 PARTIAL_TP=1 TRAILING_STOP=1", formatReasons(s.Reasons))
}

func TestCalculateJournalStats_OpenPositionIsNotATrip(t *testing.T) {
	trades := []*domain.Trade{{PositionID: 9, PNL: 40, CloseReason: domain.CloseReasonPartialTP}}
	s := calculateJournalStats(trades, 10000, 10)
	assert.Equal(t, 0, s.RoundTrips)
	assert.Equal(t, 0.0, s.WinRate)
	assert.Equal(t, 40.0, s.TotalPnL)
}
