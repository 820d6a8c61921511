package analytics

import (
	"math"
	"sort"
	"time"

	"equityBot/internal/domain"
)

// DefaultProfitFactorCap is reported as the profit factor when there are wins but no losses.
const DefaultProfitFactorCap = 99.0

// PerformanceMetrics summarises a set of closed round trips.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AverageReturn float64 // Mean per-trip return as a fraction of entry notional
	ProfitFactor  float64 // Gross profit / gross loss, capped
	GrossProfit   float64
	GrossLoss     float64 // Positive number
	TotalProfit   float64
	AverageWin    float64
	AverageLoss   float64 // Negative number
	MaxDrawdown   float64 // Fraction of peak balance

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	Expectancy           float64
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates metrics from closed positions. Open positions are ignored.
// profitFactorCap bounds the profit factor when there are no losing trips; zero selects the default.
func AnalyzePerformance(positions []*domain.Position, initialBalance, profitFactorCap float64) *PerformanceMetrics {
	if profitFactorCap <= 0 {
		profitFactorCap = DefaultProfitFactorCap
	}
	metrics := &PerformanceMetrics{EquityCurve: make([]EquityPoint, 0)}

	closed := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		if p != nil && !p.IsOpen() {
			closed = append(closed, p)
		}
	}
	if len(closed) == 0 {
		return metrics
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})

	balance := initialBalance
	peak := initialBalance
	var wins, losses, totalReturn float64
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, p := range closed {
		pnl := p.RealizedPNL
		metrics.TotalTrades++
		totalReturn += p.ReturnPct()
		totalDuration += p.ExitTime.Sub(p.EntryTime)

		if pnl > 0 {
			metrics.WinningTrades++
			metrics.GrossProfit += pnl
			wins += pnl
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			metrics.GrossLoss -= pnl
			losses += pnl
			consecutiveLosses++
			consecutiveWins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, consecutiveWins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, consecutiveLosses)

		balance += pnl
		metrics.TotalProfit += pnl
		peak = math.Max(peak, balance)
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - balance) / peak
		}
		metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, drawdown)
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{Time: p.ExitTime, Value: balance, Drawdown: drawdown})
	}

	n := float64(metrics.TotalTrades)
	metrics.WinRate = float64(metrics.WinningTrades) / n
	metrics.AverageReturn = totalReturn / n
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = wins / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = losses / float64(metrics.LosingTrades)
	}
	metrics.ProfitFactor = ProfitFactor(metrics.GrossProfit, metrics.GrossLoss, profitFactorCap)
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss

	return metrics
}

// ProfitFactor is grossProfit/grossLoss, bounded by limit. With no losses it is
// limit when there was any profit and 0 otherwise.
func ProfitFactor(grossProfit, grossLoss, limit float64) float64 {
	if grossLoss <= 0 {
		if grossProfit > 0 {
			return limit
		}
		return 0
	}
	return math.Min(grossProfit/grossLoss, limit)
}
