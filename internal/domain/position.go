package domain

import (
	"fmt"
	"time"
)

// Position represents a live long holding in whole shares.
type Position struct {
	ID          int64  // Unique identifier for the position (usually from DB)
	Symbol      string // Ticker, e.g. "AAPL"
	Name        string
	StrategyTag string

	EntryPrice        float64
	EntryTime         time.Time
	TotalQuantity     int64 // Shares bought at entry
	RemainingQuantity int64 // Shares still held

	// Exit tracking
	HighestPrice  float64 // Highest price seen since entry
	TrailingArmed bool    // Trailing stop activation reached at least once
	PartialStage  int     // Number of partial-exit tiers already executed

	RealizedPNL float64
	Stage       int // Signal stage (1-3) the entry was taken at

	Status      PositionStatus
	ExitTime    time.Time
	CloseReason CloseReason
}

// NewPosition opens a position from a filled entry order.
func NewPosition(symbol string, qty int64, price float64, at time.Time) (*Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("entry quantity must be positive, got %d", qty)
	}
	if price <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %f", price)
	}
	return &Position{
		Symbol:            symbol,
		EntryPrice:        price,
		EntryTime:         at,
		TotalQuantity:     qty,
		RemainingQuantity: qty,
		HighestPrice:      price,
		Status:            StatusOpen,
	}, nil
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Gain returns the unrealized return at price as a fraction of the entry price.
func (p *Position) Gain(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// UnrealizedPNL is the open profit on the remaining shares.
func (p *Position) UnrealizedPNL(price float64) float64 {
	return (price - p.EntryPrice) * float64(p.RemainingQuantity)
}

// ApplyTracking stores exit-tracking state computed by the exit state machine.
// The high-water mark and the armed flag never move backwards.
func (p *Position) ApplyTracking(highest float64, armed bool) {
	if highest > p.HighestPrice {
		p.HighestPrice = highest
	}
	if armed {
		p.TrailingArmed = true
	}
}

// ApplyExit records a fill of qty shares at price and returns the realized PnL of the fill.
// Remaining quantity only decreases and never goes below zero.
func (p *Position) ApplyExit(qty int64, price float64, reason CloseReason, at time.Time) (float64, error) {
	if !p.IsOpen() {
		return 0, fmt.Errorf("position %d (%s) is not open", p.ID, p.Symbol)
	}
	if qty <= 0 {
		return 0, fmt.Errorf("exit quantity must be positive, got %d", qty)
	}
	if qty > p.RemainingQuantity {
		return 0, fmt.Errorf("exit quantity %d exceeds remaining %d for %s", qty, p.RemainingQuantity, p.Symbol)
	}
	pnl := (price - p.EntryPrice) * float64(qty)
	p.RemainingQuantity -= qty
	p.RealizedPNL += pnl
	if p.RemainingQuantity == 0 {
		p.Status = StatusClosed
		p.ExitTime = at
		p.CloseReason = reason
	}
	return pnl, nil
}

// CompleteTier marks the next partial-exit tier as executed. Callers invoke it only
// once the tier's full quantity has filled.
func (p *Position) CompleteTier() {
	p.PartialStage++
}

// ReturnPct is the realized return over the whole entry notional.
func (p *Position) ReturnPct() float64 {
	notional := p.EntryPrice * float64(p.TotalQuantity)
	if notional == 0 {
		return 0
	}
	return p.RealizedPNL / notional
}
