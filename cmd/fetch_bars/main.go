// Command fetch_bars downloads bar history for the watchlist and benchmark into the
// CSV feed directory, one <SYMBOL>_<timeframe>.csv file per series.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"equityBot/config"
	"equityBot/internal/adapters/binanceclient"
	"equityBot/internal/adapters/logger"
	"equityBot/internal/domain"
	"equityBot/internal/retry"
	"equityBot/internal/utils"
)

func main() {
	days := flag.Int("days", 30, "days of history to fetch")
	symbols := flag.String("symbols", "", "comma separated symbols (default: watchlist and benchmark)")
	timeframes := flag.String("timeframes", "", "comma separated timeframes (default: primary, fallback and consensus)")
	out := flag.String("out", "", "output directory (default: data.csv_dir)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, closer, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Exchange Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.Broker.APIKey,
		SecretKey:  cfg.Broker.SecretKey,
		UseTestnet: cfg.Broker.UseTestnet,
		BaseURL:    cfg.Broker.BaseURL,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	svc := cfg.ServiceConfig()
	syms := splitFlag(*symbols)
	if len(syms) == 0 {
		for _, item := range svc.Watchlist {
			syms = append(syms, item.Symbol)
		}
		syms = append(syms, svc.Benchmark)
	}
	var tfs []domain.Timeframe
	for _, s := range splitFlag(*timeframes) {
		tfs = append(tfs, domain.Timeframe(s))
	}
	if len(tfs) == 0 {
		tfs = uniqueTimeframes(append([]domain.Timeframe{svc.Primary, svc.Fallback}, svc.Consensus...))
	}
	dir := *out
	if dir == "" {
		dir = cfg.Data.CSVDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -*days)
	policy := cfg.RetryPolicy()
	failed := 0

	for _, symbol := range syms {
		for _, tf := range tfs {
			bars, err := retry.Value(ctx, policy, "fetch_bars", func(ctx context.Context) ([]*domain.Bar, error) {
				return client.GetBarsRange(ctx, symbol, tf, start, end)
			})
			if err != nil {
				appLogger.Error(ctx, err, "Error fetching bars", map[string]interface{}{"symbol": symbol, "timeframe": string(tf)})
				failed++
				continue
			}
			filename := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf))
			if err := utils.WriteBarsToCSV(bars, filename); err != nil {
				appLogger.Error(ctx, err, "Error writing CSV", map[string]interface{}{"filename": filename})
				failed++
				continue
			}
			appLogger.Info(ctx, "Saved bars", map[string]interface{}{"filename": filename, "count": len(bars)})
		}
	}
	if failed > 0 {
		log.Fatalf("%d series failed", failed)
	}
}

func splitFlag(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func uniqueTimeframes(tfs []domain.Timeframe) []domain.Timeframe {
	seen := make(map[domain.Timeframe]bool)
	var out []domain.Timeframe
	for _, tf := range tfs {
		if tf == "" || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}
