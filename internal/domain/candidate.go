package domain

// Candidate is a symbol under evaluation during one scan cycle.
type Candidate struct {
	Symbol      string
	Name        string
	StrategyTag string

	// Series holds bars per timeframe, oldest first.
	Series map[Timeframe][]*Bar

	Primary  Timeframe // Timeframe used for entry decisions and validation
	Fallback Timeframe // Coarser timeframe for the validation fallback, optional

	// Flow is only meaningful when FlowOK is true.
	Flow   OrderFlow
	FlowOK bool
}

// Bars returns the series for tf, or nil.
func (c *Candidate) Bars(tf Timeframe) []*Bar {
	if c == nil || c.Series == nil {
		return nil
	}
	return c.Series[tf]
}

// LastPrice is the close of the latest primary bar.
func (c *Candidate) LastPrice() float64 {
	if b := Last(c.Bars(c.Primary)); b != nil {
		return b.Close
	}
	return 0
}

// OrderFlow is a point-in-time order book and aggressor snapshot.
type OrderFlow struct {
	BidDepth       float64 // Resting bid size near the touch
	AskDepth       float64 // Resting ask size near the touch
	TakerBuyVolume float64
	TotalVolume    float64
}
