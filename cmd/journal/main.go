// Command journal summarizes the realized trade journal per symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"equityBot/config"
	"equityBot/internal/adapters/logger"
	"equityBot/internal/adapters/sqlite"
	"equityBot/internal/domain"
	"equityBot/internal/strategy/analytics"
)

// JournalStats holds statistics about the round trips of one symbol.
type JournalStats struct {
	Exits        int
	RoundTrips   int
	Wins         int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	TotalPnL     float64
	ProfitFactor float64
	MaxDrawdown  float64
	Reasons      map[domain.CloseReason]int
}

func main() {
	limit := flag.Int("limit", 1000, "maximum exit fills read per symbol")
	symbols := flag.String("symbols", "", "comma separated symbols (default: watchlist)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, closer, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open journal: %v", err)
	}
	defer repo.Close()

	var syms []string
	for _, s := range strings.Split(*symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			syms = append(syms, strings.ToUpper(s))
		}
	}
	if len(syms) == 0 {
		for _, item := range cfg.Watchlist {
			syms = append(syms, item.Symbol)
		}
	}
	sort.Strings(syms)

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tExits\tTrips\tWin%\tAvgWin\tAvgLoss\tPnL\tPF\tMaxDD%\tReasons\t")
	for _, symbol := range syms {
		trades, err := repo.FindBySymbol(ctx, symbol, *limit)
		if err != nil {
			log.Printf("Error reading trades for %s: %v", symbol, err)
			continue
		}
		if len(trades) == 0 {
			continue
		}
		s := calculateJournalStats(trades, cfg.Broker.PaperCash, cfg.Validation.ProfitFactorCap)
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n",
			symbol, s.Exits, s.RoundTrips, s.WinRate*100, s.AvgWin, s.AvgLoss,
			s.TotalPnL, s.ProfitFactor, s.MaxDrawdown*100, formatReasons(s.Reasons))
	}
	w.Flush()
}

// calculateJournalStats folds exit fills into round trips by position. Fills may
// arrive newest first; they are replayed in exit time order.
func calculateJournalStats(trades []*domain.Trade, startBalance, pfCap float64) JournalStats {
	s := JournalStats{Exits: len(trades), Reasons: make(map[domain.CloseReason]int)}
	sorted := append([]*domain.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ExitTime.Before(sorted[j].ExitTime) })

	trip := make(map[int64]float64)
	balance, peak := startBalance, startBalance
	var grossWin, grossLoss float64
	var losses int

	for _, t := range sorted {
		s.Reasons[t.CloseReason]++
		s.TotalPnL += t.PNL
		balance += t.PNL
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}

		trip[t.PositionID] += t.PNL
		if !t.Final {
			continue
		}
		pnl := trip[t.PositionID]
		delete(trip, t.PositionID)
		s.RoundTrips++
		if pnl >= 0 {
			s.Wins++
			grossWin += pnl
		} else {
			losses++
			grossLoss += -pnl
		}
	}

	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if losses > 0 {
		s.AvgLoss = -grossLoss / float64(losses)
	}
	s.ProfitFactor = analytics.ProfitFactor(grossWin, grossLoss, pfCap)
	return s
}

func formatReasons(reasons map[domain.CloseReason]int) string {
	keys := make([]string, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, reasons[domain.CloseReason(k)])
	}
	return strings.Join(parts, " ")
}
