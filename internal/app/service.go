package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"equityBot/internal/domain"
	"equityBot/internal/engine"
	"equityBot/internal/pipeline"
	"equityBot/internal/ports"
	"equityBot/internal/retry"
	"equityBot/internal/risk"
)

// WatchItem is one symbol the loop scans for entries.
type WatchItem struct {
	Symbol      string
	Name        string
	StrategyTag string
}

// Config holds the loop's scheduling and data settings.
type Config struct {
	Watchlist []WatchItem
	Benchmark string

	Primary       domain.Timeframe
	PrimaryBars   int
	Fallback      domain.Timeframe // Empty disables the fallback series
	FallbackBars  int
	Consensus     []domain.Timeframe
	ConsensusBars int
	RSLookback    int

	ScanInterval  time.Duration
	CheckInterval time.Duration
	MinSleep      time.Duration
	MaxSleep      time.Duration
	Workers       int

	Retry        retry.Policy
	OrderTimeout time.Duration // Budget for exit orders that outlive a canceled loop
}

// Validate checks the loop configuration.
func (c Config) Validate() error {
	var problems []string
	if len(c.Watchlist) == 0 {
		problems = append(problems, "watchlist is empty")
	}
	if c.Benchmark == "" {
		problems = append(problems, "benchmark symbol is required")
	}
	if c.Primary.Duration() <= 0 {
		problems = append(problems, fmt.Sprintf("unknown primary timeframe %q", c.Primary))
	}
	if c.PrimaryBars <= 0 || c.RSLookback <= 0 {
		problems = append(problems, "primary bar count and RS lookback must be positive")
	}
	if c.ScanInterval <= 0 || c.CheckInterval <= 0 {
		problems = append(problems, "scan and check intervals must be positive")
	}
	if c.MinSleep <= 0 || c.MaxSleep < c.MinSleep {
		problems = append(problems, "sleep bounds must satisfy 0 < min <= max")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.OrderTimeout <= 0 {
		problems = append(problems, "order timeout must be positive")
	}
	if len(problems) > 0 {
		return errors.New("invalid service config: " + strings.Join(problems, "; "))
	}
	return nil
}

// TradingService orchestrates the trading bot's operations. All trading state is
// owned by the goroutine running Run; workers only fetch and evaluate.
type TradingService struct {
	cfg       Config
	logger    ports.Logger
	engine    *engine.Engine
	market    ports.MarketDataProvider
	flow      ports.OrderFlowProvider // Optional
	broker    ports.BrokerClient
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	metrics   ports.Metrics
	now       func() time.Time

	// Loop state
	state     *risk.State
	positions map[string]*domain.Position
	lastPrice map[string]float64
	equity    float64
	nextScan  time.Time
	nextCheck time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg Config,
	logger ports.Logger,
	eng *engine.Engine,
	market ports.MarketDataProvider,
	flow ports.OrderFlowProvider,
	broker ports.BrokerClient,
	posRepo ports.PositionRepository,
	tradeRepo ports.TradeRepository,
	metrics ports.Metrics,
) (*TradingService, error) {
	if logger == nil || eng == nil || market == nil || broker == nil || posRepo == nil || tradeRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &TradingService{
		cfg:       cfg,
		logger:    logger,
		engine:    eng,
		market:    market,
		flow:      flow,
		broker:    broker,
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		metrics:   metrics,
		now:       time.Now,
		positions: make(map[string]*domain.Position),
		lastPrice: make(map[string]float64),
	}, nil
}

// Run restores state and loops until ctx is canceled.
func (s *TradingService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"watchlist": len(s.cfg.Watchlist),
		"primary":   s.cfg.Primary,
		"workers":   s.cfg.Workers,
	})

	if err := s.restore(ctx); err != nil {
		return err
	}
	if err := s.reconcile(ctx); err != nil {
		s.logger.Error(ctx, err, "Startup reconciliation failed, continuing with journal state")
	}

	for {
		if ctx.Err() != nil {
			break
		}
		now := s.now()
		s.tick(ctx, now)

		sleep := s.nextSleep(s.now())
		s.logger.Debug(ctx, "Sleeping until next event", map[string]interface{}{"sleep": sleep.String()})
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	s.logger.Info(ctx, "Trading Service stopped.", map[string]interface{}{"openPositions": len(s.positions)})
	return nil
}

// restore reloads open positions and today's guard counters from the journal.
func (s *TradingService) restore(ctx context.Context) error {
	op := "restore"
	now := s.now()
	loc := s.engine.Location()
	st := risk.NewState(now, loc)

	open, err := s.posRepo.FindOpen(ctx)
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to load open positions")
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	for _, pos := range open {
		s.positions[pos.Symbol] = pos
	}

	daily, err := s.tradeRepo.SumRealizedSince(ctx, st.TradingDay)
	if err != nil {
		return fmt.Errorf("failed to sum daily realized PnL: %w", err)
	}
	weekly, err := s.tradeRepo.SumRealizedSince(ctx, st.WeekStart)
	if err != nil {
		return fmt.Errorf("failed to sum weekly realized PnL: %w", err)
	}
	entries, err := s.posRepo.CountEntriesSince(ctx, st.TradingDay)
	if err != nil {
		return fmt.Errorf("failed to count today's entries: %w", err)
	}
	st.DailyRealizedPNL = daily
	st.WeeklyRealizedPNL = weekly
	for key, n := range entries {
		st.EntriesToday[key] = n
	}

	s.state = st
	s.metrics.SetRealizedPNL(daily, weekly)
	s.metrics.SetOpenPositions(len(s.positions))
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{
		"openPositions": len(s.positions),
		"dailyPNL":      daily,
		"weeklyPNL":     weekly,
		"entriesToday":  entries,
	})
	return nil
}

// tick runs whichever of the exit check and the entry scan are due.
func (s *TradingService) tick(ctx context.Context, now time.Time) {
	if s.state == nil {
		s.state = risk.NewState(now, s.engine.Location())
	}
	if daily, weekly := s.state.Rollover(now, s.engine.Location()); daily || weekly {
		s.logger.Info(ctx, "Trading period rolled over", map[string]interface{}{
			"daily":      daily,
			"weekly":     weekly,
			"tradingDay": s.state.TradingDay.Format("2006-01-02"),
		})
	}

	if !now.Before(s.nextCheck) {
		s.checkExits(ctx, now)
		s.nextCheck = now.Add(s.cfg.CheckInterval)
	}
	if ctx.Err() != nil {
		return
	}
	if !now.Before(s.nextScan) {
		s.scan(ctx, now)
		s.nextScan = now.Add(s.cfg.ScanInterval)
	}

	s.metrics.SetRealizedPNL(s.state.DailyRealizedPNL, s.state.WeeklyRealizedPNL)
	s.metrics.SetOpenPositions(len(s.positions))
}

// nextSleep is the time until the next due event, clamped to the configured bounds.
func (s *TradingService) nextSleep(now time.Time) time.Duration {
	next := s.nextScan
	if len(s.positions) > 0 && s.nextCheck.Before(next) {
		next = s.nextCheck
	}
	d := next.Sub(now)
	if d < s.cfg.MinSleep {
		return s.cfg.MinSleep
	}
	if d > s.cfg.MaxSleep {
		return s.cfg.MaxSleep
	}
	return d
}

// --- Exits ---

func (s *TradingService) sortedPositions() []*domain.Position {
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *TradingService) checkExits(ctx context.Context, now time.Time) {
	for _, pos := range s.sortedPositions() {
		if ctx.Err() != nil {
			return
		}
		bars, err := retry.Value(ctx, s.cfg.Retry, "GetBars", func(ctx context.Context) ([]*domain.Bar, error) {
			return s.market.GetBars(ctx, pos.Symbol, s.cfg.Primary, s.cfg.PrimaryBars)
		})
		if err != nil {
			s.logger.Warn(ctx, "Skipping exit check, no bars", map[string]interface{}{"symbol": pos.Symbol, "error": err.Error()})
			s.metrics.IncSkip("exit_data")
			continue
		}
		if last := domain.Last(bars); last != nil {
			s.lastPrice[pos.Symbol] = last.Close
		}

		res := s.engine.CheckExit(pos, bars, now)
		high, armed := pos.HighestPrice, pos.TrailingArmed
		pos.ApplyTracking(res.Tracking.HighestPrice, res.Tracking.TrailingArmed)
		if res.Action == nil {
			if pos.HighestPrice != high || pos.TrailingArmed != armed {
				if err := s.persist(ctx, pos); err != nil {
					s.logger.Error(ctx, err, "Failed to persist exit tracking", map[string]interface{}{"positionID": pos.ID})
				}
			}
			continue
		}
		s.executeExit(ctx, pos, res.Action, now)
	}
}

// executeExit sells the action's shares. The order runs detached from ctx so a shutdown
// signal cannot abandon it half-way; a failed order leaves the position unchanged.
func (s *TradingService) executeExit(ctx context.Context, pos *domain.Position, action *domain.ExitAction, now time.Time) {
	op := "executeExit"
	fields := map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"rule":       action.Rule,
		"quantity":   action.Quantity,
		"hint":       action.Hint,
		"reason":     action.Message,
	}
	s.logger.Info(ctx, op+": Exit rule fired", fields)

	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OrderTimeout)
	defer cancel()
	result, err := retry.Value(orderCtx, s.cfg.Retry, "PlaceOrder", func(ctx context.Context) (*ports.OrderResult, error) {
		return s.broker.PlaceOrder(ctx, pos.Symbol, domain.Sell, action.Quantity, action.Hint, action.Price)
	})
	if err == nil && (result == nil || !result.Accepted) {
		err = fmt.Errorf("exit order for %s not accepted: %w", pos.Symbol, ports.ErrOrderRejected)
	}
	if err != nil {
		s.metrics.IncOrder(string(domain.Sell), false)
		s.logger.Error(orderCtx, err, op+": Exit order failed, position unchanged", fields)
		if rerr := s.reconcile(orderCtx); rerr != nil {
			s.logger.Error(orderCtx, rerr, op+": Reconciliation after failed exit failed")
		}
		return
	}
	s.metrics.IncOrder(string(domain.Sell), true)

	qty, price := fillOf(result, action.Quantity, action.Price)
	if qty > pos.RemainingQuantity {
		qty = pos.RemainingQuantity
	}
	fields["orderID"] = result.OrderID
	fields["filled"] = qty
	if qty == 0 {
		// Nothing executed; the broker's holdings decide what, if anything, changed.
		s.logger.Warn(orderCtx, op+": Exit order not filled, position unchanged", fields)
		if rerr := s.reconcile(orderCtx); rerr != nil {
			s.logger.Error(orderCtx, rerr, op+": Reconciliation after unfilled exit failed")
		}
		return
	}
	if qty < action.Quantity {
		s.logger.Warn(orderCtx, op+": Exit order partially filled", fields)
	}
	tierDone := action.Reason == domain.CloseReasonPartialTP && qty == action.Quantity
	s.bookExit(orderCtx, pos, qty, price, action.Reason, tierDone, now)
	s.metrics.IncExit(action.Rule)
}

// fillOf returns the executed quantity, capped at qty, and the fill price. An order
// that reports no executed shares did not fill.
func fillOf(result *ports.OrderResult, qty int64, price float64) (int64, float64) {
	filled := result.FilledQty
	if filled > qty {
		filled = qty
	}
	if filled < 0 {
		filled = 0
	}
	if result.AvgPrice > 0 {
		price = result.AvgPrice
	}
	return filled, price
}

// bookExit applies a fill to pos, journals it and updates the risk state. tierDone
// marks the next partial-exit tier as executed.
func (s *TradingService) bookExit(ctx context.Context, pos *domain.Position, qty int64, price float64, reason domain.CloseReason, tierDone bool, now time.Time) {
	op := "bookExit"
	pnl, err := pos.ApplyExit(qty, price, reason, now)
	if err != nil {
		s.logger.Error(ctx, err, op+": Could not apply fill", map[string]interface{}{"positionID": pos.ID, "quantity": qty})
		return
	}
	if tierDone {
		pos.CompleteTier()
	}

	if err := s.persist(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to update position", map[string]interface{}{"positionID": pos.ID})
	}

	trade := &domain.Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Quantity:    qty,
		PNL:         pnl,
		EntryTime:   pos.EntryTime,
		ExitTime:    now,
		CloseReason: reason,
		Final:       !pos.IsOpen(),
	}
	if _, err := s.tradeRepo.CreateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": Failed to journal trade", map[string]interface{}{"positionID": pos.ID})
	}

	s.state.AddRealized(pnl)
	fields := map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"quantity":   qty,
		"price":      price,
		"pnl":        pnl,
		"remaining":  pos.RemainingQuantity,
		"reason":     reason,
	}
	if pos.IsOpen() {
		s.logger.Info(ctx, op+": Partial exit filled", fields)
		return
	}

	delete(s.positions, pos.Symbol)
	s.engine.RecordOutcome(s.state, pos.Symbol, pos.RealizedPNL, now)
	fields["roundTripPNL"] = pos.RealizedPNL
	fields["consecutiveLosses"] = s.state.ConsecutiveLosses[pos.Symbol]
	fields["banned"] = s.state.Banned[pos.Symbol]
	s.logger.Info(ctx, op+": Position closed", fields)
}

// reconcile shrinks positions the broker reports smaller than the book.
// Broker holdings the book does not know are reported but not adopted.
func (s *TradingService) reconcile(ctx context.Context) error {
	op := "reconcile"
	acct, err := retry.Value(ctx, s.cfg.Retry, "GetAccountState", func(ctx context.Context) (*ports.AccountState, error) {
		return s.broker.GetAccountState(ctx)
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	s.equity = acct.Equity

	now := s.now()
	for _, pos := range s.sortedPositions() {
		held := acct.HoldingQty(pos.Symbol)
		if held >= pos.RemainingQuantity {
			continue
		}
		missing := pos.RemainingQuantity - held
		price := s.lastPrice[pos.Symbol]
		if price <= 0 {
			price = pos.EntryPrice
		}
		s.logger.Warn(ctx, op+": Broker holds fewer shares than the book", map[string]interface{}{
			"symbol": pos.Symbol,
			"book":   pos.RemainingQuantity,
			"broker": held,
		})
		s.bookExit(ctx, pos, missing, price, domain.CloseReasonReconciled, false, now)
	}
	for _, h := range acct.Holdings {
		if _, ok := s.positions[h.Symbol]; !ok && h.Quantity > 0 {
			s.logger.Warn(ctx, op+": Untracked broker holding", map[string]interface{}{"symbol": h.Symbol, "quantity": h.Quantity})
		}
	}
	return nil
}

// --- Entries ---

type fetched struct {
	item WatchItem
	cand *domain.Candidate
	err  error
}

type evaluated struct {
	decision *domain.SignalDecision
	err      error
}

func (s *TradingService) scan(ctx context.Context, now time.Time) {
	op := "scan"
	acct, err := retry.Value(ctx, s.cfg.Retry, "GetAccountState", func(ctx context.Context) (*ports.AccountState, error) {
		return s.broker.GetAccountState(ctx)
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to read account, skipping scan")
		return
	}
	s.equity = acct.Equity

	benchmark, err := retry.Value(ctx, s.cfg.Retry, "GetBars", func(ctx context.Context) ([]*domain.Bar, error) {
		return s.market.GetBars(ctx, s.cfg.Benchmark, s.cfg.Primary, s.cfg.PrimaryBars)
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to fetch benchmark, skipping scan", map[string]interface{}{"benchmark": s.cfg.Benchmark})
		return
	}

	var items []WatchItem
	for _, item := range s.cfg.Watchlist {
		if _, held := s.positions[item.Symbol]; !held {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return
	}

	candidates := s.fetchAll(ctx, items)
	if ctx.Err() != nil {
		return
	}

	universe := make([]float64, 0, len(candidates))
	var ready []*domain.Candidate
	for _, f := range candidates {
		if f.err != nil {
			s.logger.Warn(ctx, op+": Skipping candidate, data unavailable", map[string]interface{}{"symbol": f.item.Symbol, "error": f.err.Error()})
			s.metrics.IncSkip("data")
			continue
		}
		excess, err := pipeline.ExcessReturn(f.cand.Bars(s.cfg.Primary), benchmark, s.cfg.RSLookback)
		if err != nil {
			s.logger.Warn(ctx, op+": Skipping candidate, no excess return", map[string]interface{}{"symbol": f.item.Symbol, "error": err.Error()})
			s.metrics.IncSkip("data")
			continue
		}
		universe = append(universe, excess)
		ready = append(ready, f.cand)
	}

	env := pipeline.Env{
		Now:                   now,
		Equity:                s.equity,
		DailyRealizedPNL:      s.state.DailyRealizedPNL,
		Benchmark:             benchmark,
		UniverseExcessReturns: universe,
	}
	decisions := s.evaluateAll(ctx, ready, env)
	if ctx.Err() != nil {
		return
	}

	var passed []*domain.SignalDecision
	for i, r := range decisions {
		if r.err != nil {
			if !errors.Is(r.err, ports.ErrDataUnavailable) {
				s.logger.Error(ctx, r.err, op+": Candidate evaluation failed", map[string]interface{}{"symbol": ready[i].Symbol})
			}
			s.metrics.IncSkip("data")
			continue
		}
		d := r.decision
		if d.Passed {
			s.metrics.ObserveDecision(pipeline.StageFinal.String(), true)
			passed = append(passed, d)
		} else {
			s.metrics.ObserveDecision(d.FailedStage, false)
		}
	}

	sort.SliceStable(passed, func(i, j int) bool { return passed[i].Confidence > passed[j].Confidence })
	for _, d := range passed {
		if ctx.Err() != nil {
			return
		}
		s.tryEnter(ctx, d, now)
	}
}

// fetchAll loads every candidate's series on a bounded worker pool.
func (s *TradingService) fetchAll(ctx context.Context, items []WatchItem) []fetched {
	out := make([]fetched, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			cand, err := s.fetchCandidate(gctx, item)
			out[i] = fetched{item: item, cand: cand, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// evaluateAll runs the pipeline for every candidate on the worker pool.
func (s *TradingService) evaluateAll(ctx context.Context, cands []*domain.Candidate, env pipeline.Env) []evaluated {
	out := make([]evaluated, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, cand := range cands {
		i, cand := i, cand
		g.Go(func() error {
			d, err := s.engine.EvaluateCandidate(gctx, cand, env)
			out[i] = evaluated{decision: d, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *TradingService) fetchCandidate(ctx context.Context, item WatchItem) (*domain.Candidate, error) {
	get := func(tf domain.Timeframe, count int) ([]*domain.Bar, error) {
		return retry.Value(ctx, s.cfg.Retry, "GetBars", func(ctx context.Context) ([]*domain.Bar, error) {
			return s.market.GetBars(ctx, item.Symbol, tf, count)
		})
	}

	primary, err := get(s.cfg.Primary, s.cfg.PrimaryBars)
	if err != nil {
		return nil, err
	}
	cand := &domain.Candidate{
		Symbol:      item.Symbol,
		Name:        item.Name,
		StrategyTag: item.StrategyTag,
		Primary:     s.cfg.Primary,
		Fallback:    s.cfg.Fallback,
		Series:      map[domain.Timeframe][]*domain.Bar{s.cfg.Primary: primary},
	}

	if s.cfg.Fallback != "" && s.cfg.Fallback != s.cfg.Primary {
		if bars, err := get(s.cfg.Fallback, s.cfg.FallbackBars); err == nil {
			cand.Series[s.cfg.Fallback] = bars
		} else {
			s.logger.Debug(ctx, "Fallback series unavailable", map[string]interface{}{"symbol": item.Symbol, "error": err.Error()})
		}
	}
	for _, tf := range s.cfg.Consensus {
		if _, ok := cand.Series[tf]; ok {
			continue
		}
		if bars, err := get(tf, s.cfg.ConsensusBars); err == nil {
			cand.Series[tf] = bars
		} else {
			s.logger.Debug(ctx, "Consensus series unavailable", map[string]interface{}{"symbol": item.Symbol, "timeframe": tf, "error": err.Error()})
		}
	}

	if s.flow != nil {
		flow, ok, err := s.flow.GetOrderFlow(ctx, item.Symbol)
		if err != nil {
			s.logger.Debug(ctx, "Order flow unavailable", map[string]interface{}{"symbol": item.Symbol, "error": err.Error()})
		} else {
			cand.Flow, cand.FlowOK = flow, ok
		}
	}
	return cand, nil
}

// tryEnter runs the entry guards for a passed decision and places the buy.
func (s *TradingService) tryEnter(ctx context.Context, d *domain.SignalDecision, now time.Time) {
	op := "tryEnter"
	fields := map[string]interface{}{"symbol": d.Symbol, "strategy": d.StrategyTag, "stage": d.Stage, "confidence": d.Confidence}
	skip := func(kind, reason string) {
		fields["reason"] = reason
		s.logger.Info(ctx, op+": Entry skipped", fields)
		s.metrics.IncSkip(kind)
	}

	if _, held := s.positions[d.Symbol]; held {
		skip("held", "position already open")
		return
	}
	if ok, reason := s.engine.CanEnter(s.state, d.Symbol, d.StrategyTag, now); !ok {
		skip("guard", reason)
		return
	}
	if ok, reason := s.engine.CanOpen(len(s.positions)); !ok {
		skip("capacity", reason)
		return
	}
	if ok, reason := s.engine.Confirm(s.state, d.Symbol, now); !ok {
		skip("confirm", reason)
		return
	}
	qty, reason := s.engine.SizePosition(d, s.equity, d.Price, s.state)
	if qty <= 0 {
		skip("size", reason)
		return
	}

	fields["quantity"] = qty
	result, err := retry.Value(ctx, s.cfg.Retry, "PlaceOrder", func(ctx context.Context) (*ports.OrderResult, error) {
		return s.broker.PlaceOrder(ctx, d.Symbol, domain.Buy, qty, domain.HintMarket, d.Price)
	})
	if err == nil && (result == nil || !result.Accepted) {
		err = fmt.Errorf("entry order for %s not accepted: %w", d.Symbol, ports.ErrOrderRejected)
	}
	if err != nil {
		s.metrics.IncOrder(string(domain.Buy), false)
		s.logger.Error(ctx, err, op+": Entry order failed", fields)
		return
	}
	s.metrics.IncOrder(string(domain.Buy), true)

	filled, price := fillOf(result, qty, d.Price)
	if filled == 0 {
		fields["orderID"] = result.OrderID
		s.logger.Warn(ctx, op+": Entry order not filled, no position opened", fields)
		return
	}
	pos, err := domain.NewPosition(d.Symbol, filled, price, now)
	if err != nil {
		s.logger.Error(ctx, err, op+": Invalid fill", fields)
		return
	}
	pos.StrategyTag = d.StrategyTag
	pos.Stage = d.Stage
	for _, item := range s.cfg.Watchlist {
		if item.Symbol == d.Symbol {
			pos.Name = item.Name
		}
	}

	if err := s.persist(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to save new position, retrying on next update", fields)
	}

	s.positions[pos.Symbol] = pos
	s.lastPrice[pos.Symbol] = price
	s.engine.RecordEntry(s.state, pos.Symbol, pos.StrategyTag, now)
	fields["positionID"] = pos.ID
	fields["price"] = price
	fields["filled"] = filled
	fields["orderID"] = result.OrderID
	s.logger.Info(ctx, op+": Position opened", fields)
}

// persist writes pos to the journal. A position whose first save failed (ID 0) is
// created instead of updated.
func (s *TradingService) persist(ctx context.Context, pos *domain.Position) error {
	if pos.ID != 0 {
		return s.posRepo.Update(ctx, pos)
	}
	id, err := s.posRepo.Create(ctx, pos)
	if err != nil {
		pos.ID = 0
		return err
	}
	pos.ID = id
	if !pos.IsOpen() {
		// Create only writes the open-position columns.
		return s.posRepo.Update(ctx, pos)
	}
	return nil
}

// OpenPositions returns a snapshot of the book, sorted by symbol.
func (s *TradingService) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.sortedPositions() {
		out = append(out, *p)
	}
	return out
}
