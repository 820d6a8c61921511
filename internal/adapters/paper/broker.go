// Package paper simulates a brokerage in memory for dry runs.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"equityBot/internal/domain"
	"equityBot/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config configures the simulated account.
type Config struct {
	InitialCash float64
	SlippageBps float64 // Applied against the trader on market orders
}

type holding struct {
	qty       int64
	cost      decimal.Decimal // Total cost basis of qty
	lastPrice decimal.Decimal
}

// Broker implements ports.BrokerClient. Fills happen immediately at the price hint,
// adjusted by slippage for market orders. Cash accounting uses decimals so repeated
// partial fills do not drift.
type Broker struct {
	mu       sync.Mutex
	cash     decimal.Decimal
	slippage decimal.Decimal
	holdings map[string]*holding
}

// New creates a paper broker.
func New(cfg Config) (*Broker, error) {
	if cfg.InitialCash <= 0 {
		return nil, errors.New("paper broker needs positive initial cash")
	}
	if cfg.SlippageBps < 0 {
		return nil, errors.New("slippage must not be negative")
	}
	return &Broker{
		cash:     decimal.NewFromFloat(cfg.InitialCash),
		slippage: decimal.NewFromFloat(cfg.SlippageBps).Div(decimal.NewFromInt(10000)),
		holdings: make(map[string]*holding),
	}, nil
}

func rejected(msg string, cause error) (*ports.OrderResult, error) {
	return &ports.OrderResult{Accepted: false, ErrorMessage: msg}, fmt.Errorf("%s: %w: %w", msg, ports.ErrOrderRejected, cause)
}

// PlaceOrder fills the order in full or rejects it.
func (b *Broker) PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, qty int64, hint domain.ExecutionHint, priceHint float64) (*ports.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	if qty <= 0 {
		return rejected(fmt.Sprintf("quantity must be positive, got %d", qty), ports.ErrInvalidRequest)
	}
	if priceHint <= 0 {
		return rejected("paper fills need a positive price hint", ports.ErrInvalidRequest)
	}

	price := decimal.NewFromFloat(priceHint)
	if hint == domain.HintMarket {
		adj := price.Mul(b.slippage)
		if side == domain.Buy {
			price = price.Add(adj)
		} else {
			price = price.Sub(adj)
		}
	}
	price = price.Round(4)
	notional := price.Mul(decimal.NewFromInt(qty))

	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.holdings[symbol]
	switch side {
	case domain.Buy:
		if notional.GreaterThan(b.cash) {
			return rejected(fmt.Sprintf("buy %d %s needs %s, cash %s", qty, symbol, notional.StringFixed(2), b.cash.StringFixed(2)), ports.ErrInsufficientFunds)
		}
		if h == nil {
			h = &holding{}
			b.holdings[symbol] = h
		}
		b.cash = b.cash.Sub(notional)
		h.qty += qty
		h.cost = h.cost.Add(notional)
		h.lastPrice = price
	case domain.Sell:
		if h == nil || h.qty < qty {
			held := int64(0)
			if h != nil {
				held = h.qty
			}
			return rejected(fmt.Sprintf("sell %d %s exceeds holding %d", qty, symbol, held), ports.ErrInvalidRequest)
		}
		avg := h.cost.Div(decimal.NewFromInt(h.qty))
		b.cash = b.cash.Add(notional)
		h.cost = h.cost.Sub(avg.Mul(decimal.NewFromInt(qty)))
		h.qty -= qty
		h.lastPrice = price
		if h.qty == 0 {
			delete(b.holdings, symbol)
		}
	default:
		return rejected(fmt.Sprintf("unknown order side %q", side), ports.ErrInvalidRequest)
	}

	avgPrice, _ := price.Float64()
	return &ports.OrderResult{
		Accepted:  true,
		OrderID:   uuid.New().String(),
		AvgPrice:  avgPrice,
		FilledQty: qty,
	}, nil
}

// Mark updates the valuation price of a holding.
func (b *Broker) Mark(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.holdings[symbol]; ok && price > 0 {
		h.lastPrice = decimal.NewFromFloat(price)
	}
}

// GetAccountState values holdings at their last fill or mark price.
func (b *Broker) GetAccountState(ctx context.Context) (*ports.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	state := &ports.AccountState{}
	for sym, h := range b.holdings {
		equity = equity.Add(h.lastPrice.Mul(decimal.NewFromInt(h.qty)))
		avg, _ := h.cost.Div(decimal.NewFromInt(h.qty)).Round(4).Float64()
		state.Holdings = append(state.Holdings, ports.Holding{Symbol: sym, Quantity: h.qty, AvgPrice: avg})
	}
	sort.Slice(state.Holdings, func(i, j int) bool { return state.Holdings[i].Symbol < state.Holdings[j].Symbol })
	state.Cash, _ = b.cash.Round(2).Float64()
	state.Equity, _ = equity.Round(2).Float64()
	return state, nil
}
