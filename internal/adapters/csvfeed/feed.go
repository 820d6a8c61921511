// Package csvfeed serves bar series from CSV files named <SYMBOL>_<timeframe>.csv.
package csvfeed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
	"equityBot/internal/utils"
)

// Feed implements ports.MarketDataProvider over a directory of CSV files.
// Files are loaded once and cached.
type Feed struct {
	dir string

	mu    sync.Mutex
	cache map[string][]*domain.Bar
}

// New creates a feed rooted at dir.
func New(dir string) (*Feed, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("csv feed directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv feed path %s is not a directory", dir)
	}
	return &Feed{dir: dir, cache: make(map[string][]*domain.Bar)}, nil
}

// Path returns the file backing symbol and timeframe.
func (f *Feed) Path(symbol string, tf domain.Timeframe) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
}

// GetBars returns up to count of the most recent bars, oldest first.
func (f *Feed) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]*domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	bars, err := f.load(symbol, tf)
	if err != nil {
		return nil, err
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]*domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (f *Feed) load(symbol string, tf domain.Timeframe) ([]*domain.Bar, error) {
	path := f.Path(symbol, tf)

	f.mu.Lock()
	defer f.mu.Unlock()
	if bars, ok := f.cache[path]; ok {
		return bars, nil
	}

	bars, err := utils.ReadBarsFromCSV(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no %s bars for %s: %w", tf, symbol, ports.ErrDataUnavailable)
		}
		return nil, fmt.Errorf("load %s: %w: %w", path, ports.ErrDataUnavailable, err)
	}
	for _, b := range bars {
		if b.Symbol == "" {
			b.Symbol = strings.ToUpper(symbol)
		}
		if b.Timeframe == "" {
			b.Timeframe = tf
		}
		if b.CloseTime.IsZero() {
			b.CloseTime = b.OpenTime.Add(tf.Duration())
		}
	}
	f.cache[path] = bars
	return bars, nil
}
