// Command validate runs the candidate validation simulation over CSV history for
// every watchlist symbol and prints the outcome per symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"equityBot/config"
	"equityBot/internal/adapters/csvfeed"
	"equityBot/internal/adapters/logger"
	"equityBot/internal/exit"
	"equityBot/internal/strategy"
	"equityBot/internal/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	dir := flag.String("dir", "", "CSV directory (default: data.csv_dir)")
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
	ctx := context.Background()

	// 3. Load history and build the validator
	csvDir := *dir
	if csvDir == "" {
		csvDir = cfg.Data.CSVDir
	}
	feed, err := csvfeed.New(csvDir)
	if err != nil {
		log.Fatalf("FATAL: Failed to open CSV feed: %v", err)
	}

	strat, err := strategy.New(cfg.StrategyConfig(), appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create strategy: %v", err)
	}
	exitCfg, err := cfg.ExitConfig()
	if err != nil {
		log.Fatalf("FATAL: Invalid exit configuration: %v", err)
	}
	machine, err := exit.New(exitCfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to create exit machine: %v", err)
	}
	v, err := validator.New(strat, machine, cfg.ExitPeriods(), cfg.ValidatorCriteria(), appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create validator: %v", err)
	}

	// 4. Validate every symbol concurrently
	svc := cfg.ServiceConfig()
	results := make([]*validator.Result, len(svc.Watchlist))
	errs := make([]error, len(svc.Watchlist))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.Workers)
	for i, item := range svc.Watchlist {
		i, item := i, item
		g.Go(func() error {
			results[i], errs[i] = v.ValidateSymbol(gctx, feed, cfg.RetryPolicy(), item.Symbol, cfg.ValidatorSeries())
			return nil
		})
	}
	_ = g.Wait()

	// 5. Report
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := results[order[a]], results[order[b]]
		if ra == nil || rb == nil {
			return rb == nil && ra != nil
		}
		return ra.Confidence > rb.Confidence
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tALLOWED\tSTAGE\tCONF\tTRADES\tRATIO\tWIN%\tAVG%\tPF\tREASON")
	allowed := 0
	for _, i := range order {
		symbol := svc.Watchlist[i].Symbol
		if errs[i] != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t%v\n", symbol, errs[i])
			continue
		}
		r := results[i]
		if r.Allowed {
			allowed++
		}
		fmt.Fprintf(w, "%s\t%t\t%d\t%.2f\t%d\t%.2f\t%.1f\t%.2f\t%.2f\t%s\n",
			symbol, r.Allowed, r.FallbackStage, r.Confidence, r.Stats.TradeCount, r.EntryRatio,
			r.Stats.WinRate*100, r.Stats.AvgReturn*100, r.Stats.ProfitFactor, r.Reason)
	}
	w.Flush()
	fmt.Printf("\n%d of %d symbols allowed\n", allowed, len(svc.Watchlist))
}
