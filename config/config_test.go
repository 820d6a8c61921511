package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityBot/internal/domain"
	"equityBot/internal/exit"
	"equityBot/internal/pipeline"
	"equityBot/internal/ports"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("WATCHLIST", "aapl:trend_follow:Apple,MSFT")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Broker.Paper)
	assert.Equal(t, "binance", cfg.Data.Source)
	assert.Equal(t, 30*time.Minute, cfg.Guards.Cooldown)
	assert.Equal(t, "America/New_York", cfg.Location().String())

	ec, err := cfg.ExitConfig()
	require.NoError(t, err)
	assert.Equal(t, []exit.Tier{{Gain: 0.04, Fraction: 0.4}, {Gain: 0.06, Fraction: 0.4}}, ec.Tiers)
	assert.Equal(t, domain.MustClockTime("15:50"), ec.SessionCutoff)

	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Len(t, pc.Consensus, 3)
	assert.Equal(t, 0.02, pc.DailyLossLimit)

	sc := cfg.ServiceConfig()
	require.Len(t, sc.Watchlist, 2)
	assert.Equal(t, "AAPL", sc.Watchlist[0].Symbol)
	assert.Equal(t, "Apple", sc.Watchlist[0].Name)
	assert.Equal(t, "trend_follow", sc.Watchlist[1].StrategyTag)
	assert.Equal(t, []domain.Timeframe{"5m", "15m", "1h"}, sc.Consensus)
	assert.NoError(t, sc.Validate())

	assert.Equal(t, 0.03, cfg.RiskConfig().HardStopPct)
	assert.Equal(t, 3, cfg.TradeStateConfig().DefaultDailyEntryLimit)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("WATCHLIST", "AAPL")
	t.Setenv("EXIT_TIERS", "0.03:0.5,0.05:0.25")
	t.Setenv("COOLDOWN_MINUTES", "45")
	t.Setenv("ENTRY_LIMITS", "trend_follow:1,breakout:2")
	t.Setenv("TIMEZONE", "Europe/London")
	t.Setenv("SCAN_INTERVAL", "90s")
	t.Setenv("PAPER_TRADING", "false")
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Broker.Paper)
	assert.Equal(t, 45*time.Minute, cfg.Guards.Cooldown)
	assert.Equal(t, 90*time.Second, cfg.Loop.ScanInterval)
	assert.Equal(t, "Europe/London", cfg.Location().String())

	ec, err := cfg.ExitConfig()
	require.NoError(t, err)
	assert.Equal(t, []exit.Tier{{Gain: 0.03, Fraction: 0.5}, {Gain: 0.05, Fraction: 0.25}}, ec.Tiers)

	ts := cfg.TradeStateConfig()
	assert.Equal(t, map[string]int{"trend_follow": 1, "breakout": 2}, ts.DailyEntryLimits)
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
data:
  benchmark: QQQ
  primary: 15m
watchlist:
  - symbol: NVDA
    name: Nvidia
    strategy: breakout
risk:
  max_open_positions: 2
loop:
  check_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_OPEN_POSITIONS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "QQQ", cfg.Data.Benchmark)
	assert.Equal(t, "15m", cfg.Data.Primary)
	assert.Equal(t, 30*time.Second, cfg.Loop.CheckInterval)
	assert.Equal(t, 3, cfg.Risk.MaxOpenPositions, "env wins over YAML")
	assert.Equal(t, 300, cfg.Data.PrimaryBars, "defaults survive the overlay")
	require.Len(t, cfg.Watchlist, 1)
	assert.Equal(t, "breakout", cfg.ServiceConfig().Watchlist[0].StrategyTag)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no watchlist", map[string]string{}},
		{"live without keys", map[string]string{"WATCHLIST": "AAPL", "PAPER_TRADING": "false"}},
		{"bad float", map[string]string{"WATCHLIST": "AAPL", "RISK_PER_TRADE": "abc"}},
		{"risk out of range", map[string]string{"WATCHLIST": "AAPL", "RISK_PER_TRADE": "1.5"}},
		{"weekly soft above hard", map[string]string{"WATCHLIST": "AAPL", "WEEKLY_LOSS_SOFT": "0.08"}},
		{"tiers over 100%", map[string]string{"WATCHLIST": "AAPL", "EXIT_TIERS": "0.04:0.6,0.06:0.6"}},
		{"malformed tiers", map[string]string{"WATCHLIST": "AAPL", "EXIT_TIERS": "0.04-0.4"}},
		{"unknown timezone", map[string]string{"WATCHLIST": "AAPL", "TIMEZONE": "Mars/Olympus"}},
		{"bad entry window", map[string]string{"WATCHLIST": "AAPL", "ENTRY_START": "16:00"}},
		{"unknown data source", map[string]string{"WATCHLIST": "AAPL", "DATA_SOURCE": "ftp"}},
		{"confirm delay not below window", map[string]string{"WATCHLIST": "AAPL", "CONFIRM_WINDOW": "5m", "CONFIRM_DELAY": "5m"}},
		{"min sleep above max", map[string]string{"WATCHLIST": "AAPL", "MIN_SLEEP": "2m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WATCHLIST", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigInvalid)
		})
	}
}

func TestParseWeights(t *testing.T) {
	got, err := ParseWeights(" 5m:0.6 , 1h:0.4 ")
	require.NoError(t, err)
	assert.Equal(t, []pipeline.TimeframeWeight{{Timeframe: "5m", Weight: 0.6}, {Timeframe: "1h", Weight: 0.4}}, got)

	_, err = ParseWeights("5m")
	assert.Error(t, err)
	_, err = ParseWeights("7x:1")
	assert.Error(t, err)
}

func TestParseEntryLimits(t *testing.T) {
	got, err := ParseEntryLimits("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseEntryLimits("trend:-1")
	assert.Error(t, err)
	_, err = ParseEntryLimits(":2")
	assert.Error(t, err)
}
