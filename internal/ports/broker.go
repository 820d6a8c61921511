package ports

import (
	"context"

	"equityBot/internal/domain"
)

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	Accepted     bool
	OrderID      string
	ErrorMessage string
	AvgPrice     float64 // Average filled price, 0 if unknown
	FilledQty    int64
}

// Holding is a broker-side position.
type Holding struct {
	Symbol   string
	Quantity int64
	AvgPrice float64
}

// AccountState is a snapshot of the brokerage account.
type AccountState struct {
	Cash     float64
	Equity   float64
	Holdings []Holding
}

// HoldingQty returns the share count the broker reports for symbol.
func (a *AccountState) HoldingQty(symbol string) int64 {
	for _, h := range a.Holdings {
		if h.Symbol == symbol {
			return h.Quantity
		}
	}
	return 0
}

// BrokerClient defines the interface for interacting with a brokerage.
// This abstraction allows decoupling the core bot logic from specific broker implementations.
type BrokerClient interface {
	// PlaceOrder submits an order. priceHint is the limit price for limit orders and the
	// reference price for market orders.
	// A declined order returns a result with Accepted=false and an error wrapping ErrOrderRejected.
	PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, qty int64, hint domain.ExecutionHint, priceHint float64) (*OrderResult, error)

	// GetAccountState retrieves cash, equity and holdings.
	GetAccountState(ctx context.Context) (*AccountState, error)
}
