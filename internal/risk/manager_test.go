package risk

import (
	"testing"
	"time"

	"equityBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRiskConfig() Config {
	return Config{
		RiskPerTrade:      0.01,
		HardStopPct:       0.05,
		MaxPositionValue:  50000,
		MaxEquityFraction: 0.25,
		WeeklyLossSoft:    0.03,
		WeeklyLossHard:    0.06,
		MaxOpenPositions:  5,
	}
}

func passed(multiplier, confidence float64) *domain.SignalDecision {
	return &domain.SignalDecision{Symbol: "AAPL", Passed: true, StageMultiplier: multiplier, Confidence: confidence}
}

func newTestState() *State {
	return NewState(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), time.UTC)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testRiskConfig().Validate())

	cfg := testRiskConfig()
	cfg.WeeklyLossHard = cfg.WeeklyLossSoft
	cfg.MaxOpenPositions = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weekly loss thresholds")
	assert.Contains(t, err.Error(), "max open positions")

	_, err = NewManager(cfg)
	assert.Error(t, err)
}

func TestManager_Size(t *testing.T) {
	m, err := NewManager(testRiskConfig())
	require.NoError(t, err)

	tests := []struct {
		name       string
		decision   *domain.SignalDecision
		equity     float64
		price      float64
		weeklyPNL  float64
		wantQty    int64
		wantReason bool
	}{
		// byRisk = 100000*0.01/(100*0.05) = 200; byValue = 500; byEquity = 250
		{name: "full size", decision: passed(1.0, 1.0), equity: 100000, price: 100, wantQty: 200},
		{name: "stage two multiplier", decision: passed(0.6, 1.0), equity: 100000, price: 100, wantQty: 120},
		{name: "confidence scales", decision: passed(1.0, 0.5), equity: 100000, price: 100, wantQty: 100},
		{name: "value cap binds", decision: passed(1.0, 1.0), equity: 1000000, price: 500, wantQty: 100},
		{name: "floors fractional shares", decision: passed(0.3, 0.9), equity: 100000, price: 100, wantQty: 54},
		{name: "weekly soft halves", decision: passed(1.0, 1.0), equity: 100000, price: 100, weeklyPNL: -3500, wantQty: 100},
		{name: "weekly hard blocks", decision: passed(1.0, 1.0), equity: 100000, price: 100, weeklyPNL: -6000, wantReason: true},
		{name: "not passed", decision: &domain.SignalDecision{StageMultiplier: 1, Confidence: 1}, equity: 100000, price: 100, wantReason: true},
		{name: "nil decision", decision: nil, equity: 100000, price: 100, wantReason: true},
		{name: "zero equity", decision: passed(1.0, 1.0), equity: 0, price: 100, wantReason: true},
		{name: "rounds to zero", decision: passed(0.3, 0.3), equity: 1000, price: 400, wantReason: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestState()
			st.WeeklyRealizedPNL = tt.weeklyPNL

			qty, reason := m.Size(tt.decision, tt.equity, tt.price, st)
			if tt.wantReason {
				assert.Zero(t, qty)
				assert.NotEmpty(t, reason)
				return
			}
			assert.Equal(t, tt.wantQty, qty)
			assert.Empty(t, reason)
		})
	}
}

func TestManager_SizeEquityFractionCap(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxEquityFraction = 0.1
	m, err := NewManager(cfg)
	require.NoError(t, err)

	// byRisk = 200, byValue = 5000, byEquity = 100
	assert.InDelta(t, 100.0, m.BaseQuantity(10000, 10), 1e-9)
	qty, _ := m.Size(passed(1.0, 1.0), 10000, 10, newTestState())
	assert.Equal(t, int64(100), qty)
}

func TestManager_SizeNeverExceedsCaps(t *testing.T) {
	m, err := NewManager(testRiskConfig())
	require.NoError(t, err)
	st := newTestState()

	for _, equity := range []float64{5000, 25000, 100000, 2500000} {
		for _, price := range []float64{1.5, 17, 99.99, 420, 3100} {
			qty, _ := m.Size(passed(1.0, 1.0), equity, price, st)
			value := float64(qty) * price
			assert.LessOrEqual(t, value, 50000.0+1e-6, "equity %v price %v", equity, price)
			assert.LessOrEqual(t, value, equity*0.25+1e-6, "equity %v price %v", equity, price)
		}
	}
}

// Weekly loss past the hard threshold blocks every new entry until the week rolls over.
func TestManager_WeeklyHardLossBlocksEntries(t *testing.T) {
	m, err := NewManager(testRiskConfig())
	require.NoError(t, err)

	loc := time.UTC
	wed := time.Date(2024, 3, 6, 11, 0, 0, 0, loc)
	st := NewState(wed, loc)
	st.AddRealized(-4000)
	st.AddRealized(-2500)

	assert.Equal(t, 0.0, m.WeeklyAdjustment(st, 100000))
	for _, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		d := passed(1.0, 1.0)
		d.Symbol = sym
		qty, reason := m.Size(d, 100000, 50, st)
		assert.Zero(t, qty, sym)
		assert.Contains(t, reason, "weekly loss")
	}

	// Next day: daily PnL resets, weekly does not.
	daily, weekly := st.Rollover(wed.Add(24*time.Hour), loc)
	assert.True(t, daily)
	assert.False(t, weekly)
	assert.Zero(t, st.DailyRealizedPNL)
	qty, _ := m.Size(passed(1.0, 1.0), 100000, 50, st)
	assert.Zero(t, qty)

	// Next Monday: weekly resets and sizing resumes.
	_, weekly = st.Rollover(time.Date(2024, 3, 11, 9, 31, 0, 0, loc), loc)
	assert.True(t, weekly)
	qty, reason := m.Size(passed(1.0, 1.0), 100000, 50, st)
	assert.Equal(t, int64(400), qty, reason)
}

func TestManager_CanOpen(t *testing.T) {
	m, err := NewManager(testRiskConfig())
	require.NoError(t, err)

	ok, _ := m.CanOpen(4)
	assert.True(t, ok)
	ok, reason := m.CanOpen(5)
	assert.False(t, ok)
	assert.Contains(t, reason, "maximum 5")
}
