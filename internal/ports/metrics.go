package ports

// Metrics receives counters and gauges from the trading loop.
type Metrics interface {
	ObserveDecision(stage string, passed bool)
	IncSkip(reason string)
	IncOrder(side string, accepted bool)
	IncExit(rule string)
	SetRealizedPNL(daily, weekly float64)
	SetOpenPositions(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveDecision(string, bool)    {}
func (NopMetrics) IncSkip(string)                  {}
func (NopMetrics) IncOrder(string, bool)           {}
func (NopMetrics) IncExit(string)                  {}
func (NopMetrics) SetRealizedPNL(float64, float64) {}
func (NopMetrics) SetOpenPositions(int)            {}
