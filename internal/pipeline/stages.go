package pipeline

import (
	"context"
	"fmt"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
	"equityBot/internal/strategy/indicators"
)

// system gates on the entry window and the daily loss limit.
func (p *Pipeline) system(ev *evaluation) (domain.FilterOutcome, error) {
	now := ev.env.Now.In(p.cfg.Location)
	if !domain.IsWeekday(now) {
		return reject(0, fmt.Sprintf("market closed on %s", now.Weekday()), nil)
	}
	minute := domain.MinuteOfDay(now)
	if minute < p.cfg.EntryStart.Minutes() || minute >= p.cfg.EntryEnd.Minutes() {
		return reject(0, fmt.Sprintf("%s outside entry window %s-%s", now.Format("15:04"), p.cfg.EntryStart, p.cfg.EntryEnd), nil)
	}
	if ev.env.Equity <= 0 {
		return reject(0, "account equity unknown or non-positive", nil)
	}
	dailyPct := ev.env.DailyRealizedPNL / ev.env.Equity
	payload := map[string]float64{"dailyPnlPct": dailyPct}
	if dailyPct <= -p.cfg.DailyLossLimit+epsilon {
		return reject(0, fmt.Sprintf("daily loss %.2f%% reached limit -%.2f%%", dailyPct*100, p.cfg.DailyLossLimit*100), payload)
	}
	return pass(1, "system ok", payload)
}

// regime classifies the benchmark trend and volatility.
func (p *Pipeline) regime(ev *evaluation) (domain.FilterOutcome, error) {
	bench := ev.env.Benchmark
	if len(bench) == 0 {
		return domain.FilterOutcome{}, fmt.Errorf("benchmark series missing: %w", ports.ErrDataUnavailable)
	}
	closes := domain.Closes(bench)
	last := closes[len(closes)-1]

	fast, err := indicators.SMA(closes, p.cfg.RegimeFastSMA)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	slow, err := indicators.SMA(closes, p.cfg.RegimeSlowSMA)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	roc, err := indicators.RateOfChange(closes, p.cfg.RegimeROCPeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	atrPct, err := indicators.ATRPercent(bench, p.cfg.ATRPeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}

	count := 0
	for _, bullish := range []bool{last > fast, fast > slow, last > slow, roc > 0} {
		if bullish {
			count++
		}
	}
	conf := 0.4 + 0.15*float64(count)
	ev.regimeConfidence = conf
	payload := map[string]float64{"bullishSignals": float64(count), "atrPct": atrPct, "roc": roc}

	if count <= 1 {
		return reject(conf, fmt.Sprintf("bear regime: %d of 4 trend signals", count), payload)
	}
	if atrPct > p.cfg.MaxBenchmarkATRPct {
		return reject(conf, fmt.Sprintf("volatile regime: benchmark ATR %.2f%% > %.2f%%", atrPct*100, p.cfg.MaxBenchmarkATRPct*100), payload)
	}
	return pass(conf, fmt.Sprintf("regime ok: %d of 4 trend signals", count), payload)
}

// relativeStrength ranks the candidate's excess return within the scan universe.
func (p *Pipeline) relativeStrength(ev *evaluation) (domain.FilterOutcome, error) {
	excess, err := ExcessReturn(ev.primary, ev.env.Benchmark, p.cfg.RSLookback)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	rank := PercentileRank(excess, ev.env.UniverseExcessReturns)
	payload := map[string]float64{"excessReturn": excess, "rank": rank}
	if rank < 1-p.cfg.TopPercent-epsilon {
		return reject(rank, fmt.Sprintf("relative strength rank %.2f below top %.0f%%", rank, p.cfg.TopPercent*100), payload)
	}
	return pass(rank, fmt.Sprintf("relative strength rank %.2f", rank), payload)
}

// ExcessReturn is the symbol's lookback return minus the benchmark's.
func ExcessReturn(bars, benchmark []*domain.Bar, lookback int) (float64, error) {
	own, err := indicators.RateOfChange(domain.Closes(bars), lookback)
	if err != nil {
		return 0, err
	}
	bench, err := indicators.RateOfChange(domain.Closes(benchmark), lookback)
	if err != nil {
		return 0, err
	}
	return own - bench, nil
}

// PercentileRank is the fraction of universe values at or below value. An empty
// universe ranks value against itself only.
func PercentileRank(value float64, universe []float64) float64 {
	if len(universe) == 0 {
		return 1
	}
	atOrBelow := 0
	for _, u := range universe {
		if u <= value+epsilon {
			atOrBelow++
		}
	}
	return float64(atOrBelow) / float64(len(universe))
}

// consensus scores trend agreement across timeframes.
func (p *Pipeline) consensus(ev *evaluation) (domain.FilterOutcome, error) {
	payload := map[string]float64{}
	var weighted, totalWeight float64
	for _, tw := range p.cfg.Consensus {
		bars := ev.cand.Bars(tw.Timeframe)
		score, err := p.timeframeScore(bars)
		if err != nil {
			// A missing timeframe drops out of the weighting.
			continue
		}
		payload["score_"+string(tw.Timeframe)] = score
		weighted += score * tw.Weight
		totalWeight += tw.Weight
	}
	if totalWeight == 0 {
		return domain.FilterOutcome{}, fmt.Errorf("no consensus timeframe has enough bars: %w", ports.ErrDataUnavailable)
	}

	score := weighted / totalWeight
	payload["consensus"] = score
	if score < p.cfg.MinConsensus-epsilon {
		return reject(score, fmt.Sprintf("timeframe consensus %.2f < %.2f", score, p.cfg.MinConsensus), payload)
	}
	return pass(score, fmt.Sprintf("timeframe consensus %.2f", score), payload)
}

func (p *Pipeline) timeframeScore(bars []*domain.Bar) (float64, error) {
	closes := domain.Closes(bars)
	fast, err := indicators.EMA(closes, p.cfg.ConsensusFastEMA)
	if err != nil {
		return 0, err
	}
	slow, err := indicators.EMA(closes, p.cfg.ConsensusSlowEMA)
	if err != nil {
		return 0, err
	}
	rsi, err := indicators.WilderRSI(closes, p.cfg.RSIPeriod)
	if err != nil {
		return 0, err
	}
	last := closes[len(closes)-1]
	points := 0
	if last > fast {
		points++
	}
	if fast > slow {
		points++
	}
	if rsi >= 50 && rsi < p.cfg.RSIOverbought {
		points++
	}
	return float64(points) / 3, nil
}

// liquidity requires minimum turnover and, when available, favourable order flow.
func (p *Pipeline) liquidity(ev *evaluation) (domain.FilterOutcome, error) {
	turnover, err := indicators.AverageTurnover(ev.primary, p.cfg.TurnoverPeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	payload := map[string]float64{"turnover": turnover}
	if turnover < p.cfg.MinTurnover {
		return reject(0, fmt.Sprintf("average turnover %.0f < min %.0f", turnover, p.cfg.MinTurnover), payload)
	}
	if !ev.cand.FlowOK {
		return pass(0.5, "order flow unavailable, neutral", payload)
	}

	score := FlowScore(ev.cand.Flow)
	payload["flowScore"] = score
	if score < p.cfg.MinFlowScore-epsilon {
		return reject(score, fmt.Sprintf("order flow score %.2f < %.2f", score, p.cfg.MinFlowScore), payload)
	}
	return pass(score, fmt.Sprintf("order flow score %.2f", score), payload)
}

// FlowScore averages the bid-depth share and the taker-buy share. A side with no
// data contributes a neutral 0.5.
func FlowScore(f domain.OrderFlow) float64 {
	depth := 0.5
	if f.BidDepth+f.AskDepth > 0 {
		depth = f.BidDepth / (f.BidDepth + f.AskDepth)
	}
	taker := 0.5
	if f.TotalVolume > 0 {
		taker = f.TakerBuyVolume / f.TotalVolume
	}
	return clamp01((depth + taker) / 2)
}

// tierConfidence by tier index.
var tierConfidence = [...]float64{1: 1.0, 2: 0.7, 3: 0.4}

// tierStage classifies momentum and volatility; it never rejects.
func (p *Pipeline) tierStage(ev *evaluation) (domain.FilterOutcome, error) {
	roc, err := indicators.RateOfChange(domain.Closes(ev.primary), p.cfg.TierROCPeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	volRatio, err := indicators.RelativeVolume(ev.primary, p.cfg.VolumePeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	atrPct, err := indicators.ATRPercent(ev.primary, p.cfg.ATRPeriod)
	if err != nil {
		return domain.FilterOutcome{}, err
	}

	tier := ClassifyTier(roc, volRatio, atrPct, p.cfg)
	ev.tier = tier
	payload := map[string]float64{"tier": float64(tier), "roc": roc, "volumeRatio": volRatio, "atrPct": atrPct}
	return pass(tierConfidence[tier], fmt.Sprintf("tier %d", tier), payload)
}

// ClassifyTier returns 1 for strong momentum on volume with contained volatility,
// 2 for moderate momentum and 3 otherwise.
func ClassifyTier(roc, volRatio, atrPct float64, cfg Config) int {
	switch {
	case roc >= cfg.StrongROC && volRatio >= cfg.StrongVolumeRatio && atrPct <= cfg.MaxATRPct:
		return 1
	case roc >= cfg.ModerateROC:
		return 2
	default:
		return 3
	}
}

// final delegates to the candidate validator.
func (p *Pipeline) final(ctx context.Context, ev *evaluation) (domain.FilterOutcome, error) {
	res, err := p.validator.Validate(ctx, ev.cand.Symbol, ev.primary, ev.cand.Bars(ev.cand.Fallback))
	if err != nil {
		return domain.FilterOutcome{}, err
	}
	ev.fallbackStage = res.FallbackStage
	payload := map[string]float64{
		"fallbackStage": float64(res.FallbackStage),
		"trades":        float64(res.Stats.TradeCount),
		"winRate":       res.Stats.WinRate,
		"avgReturn":     res.Stats.AvgReturn,
		"profitFactor":  res.Stats.ProfitFactor,
		"entryRatio":    res.EntryRatio,
	}
	if !res.Allowed {
		return reject(res.Confidence, "validation failed: "+res.Reason, payload)
	}
	return pass(res.Confidence, res.Reason, payload)
}
