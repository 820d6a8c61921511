package domain

import "time"

// Trade represents one exit fill against a position, partial or final.
type Trade struct {
	ID          int64 // Unique identifier for the trade (usually from DB)
	PositionID  int64
	Symbol      string
	EntryPrice  float64
	ExitPrice   float64
	Quantity    int64
	PNL         float64
	EntryTime   time.Time
	ExitTime    time.Time
	CloseReason CloseReason
	Final       bool // This fill closed the position
}

// ExitAction is the single action the exit state machine may emit per tick.
type ExitAction struct {
	Rule      string // Name of the rule that fired
	Quantity  int64  // Shares to sell
	Hint      ExecutionHint
	Price     float64 // Reference price for the hint
	Reason    CloseReason
	Message   string // Human-readable reason suitable for logging
	TierIndex int    // Partial tier index, -1 for other rules
	Final     bool   // Closes all remaining shares
}
