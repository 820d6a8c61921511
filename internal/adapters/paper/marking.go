package paper

import (
	"context"
	"sync"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
)

// MarkingFeed wraps a market data provider and marks the paper broker's holdings
// at the close of the newest bar it serves.
type MarkingFeed struct {
	ports.MarketDataProvider
	broker *Broker

	mu     sync.Mutex
	marked map[string]int64 // symbol -> newest bar open time (unix) already marked
}

// NewMarkingFeed wraps provider so every fetched series marks broker.
func NewMarkingFeed(provider ports.MarketDataProvider, broker *Broker) *MarkingFeed {
	return &MarkingFeed{MarketDataProvider: provider, broker: broker, marked: make(map[string]int64)}
}

// GetBars fetches bars and marks the symbol at the latest close.
func (f *MarkingFeed) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]*domain.Bar, error) {
	bars, err := f.MarketDataProvider.GetBars(ctx, symbol, tf, count)
	if err != nil || len(bars) == 0 {
		return bars, err
	}
	last := bars[len(bars)-1]
	ts := last.OpenTime.Unix()

	f.mu.Lock()
	stale := ts < f.marked[symbol]
	if !stale {
		f.marked[symbol] = ts
	}
	f.mu.Unlock()

	if !stale {
		f.broker.Mark(symbol, last.Close)
	}
	return bars, nil
}
