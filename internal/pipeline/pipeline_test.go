package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"equityBot/internal/domain"
	"equityBot/internal/ports"
	"equityBot/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

// monday1030 is inside the test entry window.
var monday1030 = time.Date(2025, 3, 3, 10, 30, 0, 0, newYork)

type stubValidator struct {
	result *validator.Result
	err    error
	calls  int
}

func (s *stubValidator) Validate(ctx context.Context, symbol string, primary, fallback []*domain.Bar) (*validator.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func allowed(stage int, confidence float64) *stubValidator {
	return &stubValidator{result: &validator.Result{Allowed: true, FallbackStage: stage, Confidence: confidence, Reason: "ok"}}
}

func testConfig() Config {
	return Config{
		EntryStart:         domain.MustClockTime("09:45"),
		EntryEnd:           domain.MustClockTime("15:00"),
		Location:           newYork,
		DailyLossLimit:     0.02,
		RegimeFastSMA:      10,
		RegimeSlowSMA:      30,
		RegimeROCPeriod:    10,
		ATRPeriod:          14,
		MaxBenchmarkATRPct: 0.03,
		RSLookback:         20,
		TopPercent:         0.3,
		Consensus: []TimeframeWeight{
			{Timeframe: domain.Timeframe5m, Weight: 0.6},
			{Timeframe: domain.Timeframe1h, Weight: 0.4},
		},
		ConsensusFastEMA:  5,
		ConsensusSlowEMA:  20,
		RSIPeriod:         14,
		RSIOverbought:     75,
		MinConsensus:      0.6,
		TurnoverPeriod:    20,
		MinTurnover:       1e6,
		MinFlowScore:      0.55,
		TierROCPeriod:     10,
		VolumePeriod:      20,
		StrongROC:         0.02,
		ModerateROC:       0.005,
		StrongVolumeRatio: 1.5,
		MaxATRPct:         0.03,
	}
}

// zigzag rises 1% and falls 0.5% alternately, ending on a rise, with a volume spike on the last bar.
func zigzag(tf domain.Timeframe, n int, up, down float64) []*domain.Bar {
	bars := make([]*domain.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i > 0 {
			if (n-1-i)%2 == 0 {
				price *= 1 + up
			} else {
				price *= 1 - down
			}
		}
		volume := 1e6
		if i == n-1 {
			volume = 2e6
		}
		bars[i] = &domain.Bar{
			Symbol: "TEST", Timeframe: tf,
			Open: price, High: price * 1.005, Low: price * 0.995, Close: price, Volume: volume,
		}
	}
	return bars
}

func falling(n int) []*domain.Bar {
	bars := make([]*domain.Bar, n)
	price := 100.0
	for i := range bars {
		price *= 0.995
		bars[i] = &domain.Bar{Open: price, High: price * 1.002, Low: price * 0.998, Close: price, Volume: 1e6}
	}
	return bars
}

func candidate() *domain.Candidate {
	return &domain.Candidate{
		Symbol:      "TEST",
		StrategyTag: "trend_follow",
		Series: map[domain.Timeframe][]*domain.Bar{
			domain.Timeframe5m: zigzag(domain.Timeframe5m, 60, 0.01, 0.005),
			domain.Timeframe1h: zigzag(domain.Timeframe1h, 60, 0.01, 0.005),
			domain.Timeframe1d: zigzag(domain.Timeframe1d, 60, 0.01, 0.005),
		},
		Primary:  domain.Timeframe5m,
		Fallback: domain.Timeframe1d,
	}
}

func env() Env {
	return Env{
		Now:                   monday1030,
		Equity:                100000,
		Benchmark:             zigzag(domain.Timeframe5m, 60, 0.01, 0.005),
		UniverseExcessReturns: []float64{-0.05, -0.02, 0},
	}
}

func newPipeline(t *testing.T, v CandidateValidator) *Pipeline {
	t.Helper()
	p, err := New(testConfig(), v)
	require.NoError(t, err)
	return p
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	cfg := testConfig()
	cfg.EntryStart = domain.MustClockTime("16:00")
	cfg.TopPercent = 0
	cfg.RegimeFastSMA = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry window")
	assert.Contains(t, err.Error(), "top percent")
	assert.Contains(t, err.Error(), "regime fast SMA period")
}

func TestEvaluate_FullPass(t *testing.T) {
	v := allowed(validator.StagePrimary, 1.0)
	p := newPipeline(t, v)

	d, err := p.Evaluate(context.Background(), candidate(), env())
	require.NoError(t, err)
	require.True(t, d.Passed, d.Reason)
	require.Len(t, d.Outcomes, len(Order))

	assert.Equal(t, 1, d.Tier)
	assert.InDelta(t, 1.0, d.RegimeConfidence, 1e-9)
	assert.Equal(t, 1, d.Stage)
	assert.Equal(t, domain.MultiplierStage1, d.StageMultiplier)
	assert.Empty(t, d.Reason)
	assert.Equal(t, 1, v.calls)

	sum := 0.0
	for _, o := range d.Outcomes[1:] {
		sum += o.Confidence
	}
	assert.InDelta(t, sum/6, d.Confidence, 1e-9)

	// Order flow was absent, so the liquidity stage is a neutral pass.
	liquidity := d.Outcomes[StageLiquidity]
	assert.Equal(t, StageLiquidity.String(), liquidity.Stage)
	assert.True(t, liquidity.Passed)
	assert.Equal(t, 0.5, liquidity.Confidence)
}

func TestEvaluate_FallbackStageDowngrades(t *testing.T) {
	v := allowed(validator.StageFallback, 0.7)
	v.result.EntryRatio = 0.2
	p := newPipeline(t, v)
	d, err := p.Evaluate(context.Background(), candidate(), env())
	require.NoError(t, err)
	require.True(t, d.Passed)
	assert.Equal(t, 2, d.Stage)
	assert.Equal(t, domain.MultiplierStage2, d.StageMultiplier)
	assert.Equal(t, 1, d.FallbackStage)
	assert.Equal(t, 0.2, d.Outcomes[StageFinal].Payload["entryRatio"])
}

func TestEvaluate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		mutateCand func(*domain.Candidate)
		mutateEnv  func(*Env)
		validator  *stubValidator
		wantStage  Stage
	}{
		{
			name:      "before entry window",
			mutateEnv: func(e *Env) { e.Now = time.Date(2025, 3, 3, 9, 30, 0, 0, newYork) },
			wantStage: StageSystem,
		},
		{
			name:      "at entry window end",
			mutateEnv: func(e *Env) { e.Now = time.Date(2025, 3, 3, 15, 0, 0, 0, newYork) },
			wantStage: StageSystem,
		},
		{
			name:      "weekend",
			mutateEnv: func(e *Env) { e.Now = time.Date(2025, 3, 1, 10, 30, 0, 0, newYork) },
			wantStage: StageSystem,
		},
		{
			name:      "daily loss limit",
			mutateEnv: func(e *Env) { e.DailyRealizedPNL = -2000 },
			wantStage: StageSystem,
		},
		{
			name:      "bear regime",
			mutateEnv: func(e *Env) { e.Benchmark = falling(60) },
			wantStage: StageRegime,
		},
		{
			name:      "weak relative strength",
			mutateEnv: func(e *Env) { e.UniverseExcessReturns = []float64{0, 0.01, 0.02, 0.03, 0.04} },
			wantStage: StageRelativeStrength,
		},
		{
			name:       "low turnover",
			mutateCand: func(c *domain.Candidate) { c.Series[domain.Timeframe5m] = scaleVolume(c.Series[domain.Timeframe5m], 1e-4) },
			wantStage:  StageLiquidity,
		},
		{
			name: "selling order flow",
			mutateCand: func(c *domain.Candidate) {
				c.Flow = domain.OrderFlow{BidDepth: 100, AskDepth: 300, TakerBuyVolume: 300, TotalVolume: 1000}
				c.FlowOK = true
			},
			wantStage: StageLiquidity,
		},
		{
			name:      "validator rejects",
			validator: &stubValidator{result: &validator.Result{Allowed: false, FallbackStage: validator.StageMinimal, Reason: "too few trades"}},
			wantStage: StageFinal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, e := candidate(), env()
			if tt.mutateCand != nil {
				tt.mutateCand(c)
			}
			if tt.mutateEnv != nil {
				tt.mutateEnv(&e)
			}
			v := tt.validator
			if v == nil {
				v = allowed(validator.StagePrimary, 1)
			}

			d, err := newPipeline(t, v).Evaluate(context.Background(), c, e)
			require.NoError(t, err)
			assert.False(t, d.Passed)
			assert.Equal(t, tt.wantStage.String(), d.FailedStage)
			assert.Contains(t, d.Reason, tt.wantStage.String())
			assert.Len(t, d.Outcomes, int(tt.wantStage)+1, "later stages must be skipped")
			assert.Contains(t, []float64{1.0, 0.6, 0.3}, d.StageMultiplier)
			if tt.wantStage != StageFinal {
				assert.Equal(t, 0, v.calls)
			}
		})
	}
}

func scaleVolume(bars []*domain.Bar, factor float64) []*domain.Bar {
	out := make([]*domain.Bar, len(bars))
	for i, b := range bars {
		c := *b
		c.Volume *= factor
		out[i] = &c
	}
	return out
}

func TestEvaluate_DataUnavailable(t *testing.T) {
	t.Run("missing benchmark", func(t *testing.T) {
		e := env()
		e.Benchmark = nil
		_, err := newPipeline(t, allowed(0, 1)).Evaluate(context.Background(), candidate(), e)
		assert.ErrorIs(t, err, ports.ErrDataUnavailable)
	})

	t.Run("short primary", func(t *testing.T) {
		c := candidate()
		c.Series[domain.Timeframe5m] = c.Series[domain.Timeframe5m][:5]
		_, err := newPipeline(t, allowed(0, 1)).Evaluate(context.Background(), c, env())
		assert.ErrorIs(t, err, ports.ErrDataUnavailable)
	})

	t.Run("validator data error", func(t *testing.T) {
		v := &stubValidator{err: fmt.Errorf("fetch: %w", ports.ErrDataUnavailable)}
		_, err := newPipeline(t, v).Evaluate(context.Background(), candidate(), env())
		assert.True(t, errors.Is(err, ports.ErrDataUnavailable))
	})
}

func TestEvaluate_ConsensusIgnoresMissingTimeframe(t *testing.T) {
	c := candidate()
	delete(c.Series, domain.Timeframe1h)
	d, err := newPipeline(t, allowed(0, 1)).Evaluate(context.Background(), c, env())
	require.NoError(t, err)
	assert.True(t, d.Passed, d.Reason)
	_, ok := d.Outcomes[StageConsensus].Payload["score_1h"]
	assert.False(t, ok)
}

func TestStageFor_IsTotal(t *testing.T) {
	valid := map[float64]int{1.0: 1, 0.6: 2, 0.3: 3}
	for _, fallback := range []int{-1, 0, 1, 2, 3} {
		for _, conf := range []float64{0, 0.59, 0.6, 0.79, 0.8, 1} {
			for _, tier := range []int{0, 1, 2, 3, 4} {
				stage, mult := StageFor(fallback, conf, tier)
				wantStage, ok := valid[mult]
				require.True(t, ok, "multiplier %v outside {1.0,0.6,0.3}", mult)
				assert.Equal(t, wantStage, stage)

				again, againMult := StageFor(fallback, conf, tier)
				assert.Equal(t, stage, again)
				assert.Equal(t, mult, againMult)
			}
		}
	}
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		name     string
		fallback int
		conf     float64
		tier     int
		want     float64
	}{
		{"minimal fallback forces stage 3", 2, 1.0, 1, 0.3},
		{"fallback forces stage 2", 1, 1.0, 1, 0.6},
		{"strong tier and regime", 0, 0.8, 1, 1.0},
		{"strong tier, moderate regime", 0, 0.7, 1, 0.6},
		{"tier 2", 0, 0.4, 2, 0.6},
		{"strong tier, weak regime", 0, 0.55, 1, 0.3},
		{"tier 3", 0, 1.0, 3, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mult := StageFor(tt.fallback, tt.conf, tt.tier)
			assert.Equal(t, tt.want, mult)
		})
	}
}

func TestClassifyTier(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name                  string
		roc, volRatio, atrPct float64
		want                  int
	}{
		{"strong", 0.03, 2.0, 0.01, 1},
		{"strong but volatile", 0.03, 2.0, 0.05, 2},
		{"strong but quiet volume", 0.03, 1.0, 0.01, 2},
		{"moderate", 0.01, 0.5, 0.01, 2},
		{"weak", 0.001, 3.0, 0.01, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTier(tt.roc, tt.volRatio, tt.atrPct, cfg))
		})
	}
}

func TestPercentileRankAndFlowScore(t *testing.T) {
	assert.Equal(t, 1.0, PercentileRank(0.5, nil))
	assert.InDelta(t, 0.5, PercentileRank(0.02, []float64{0.01, 0.02, 0.03, 0.04}), 1e-9)

	assert.Equal(t, 0.5, FlowScore(domain.OrderFlow{}))
	assert.InDelta(t, 0.7, FlowScore(domain.OrderFlow{BidDepth: 3, AskDepth: 1, TakerBuyVolume: 65, TotalVolume: 100}), 1e-9)
}
