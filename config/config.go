package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	playvalidator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"equityBot/internal/adapters/logger"
	"equityBot/internal/app"
	"equityBot/internal/domain"
	"equityBot/internal/exit"
	"equityBot/internal/pipeline"
	"equityBot/internal/ports"
	"equityBot/internal/retry"
	"equityBot/internal/risk"
	"equityBot/internal/strategy"
	"equityBot/internal/validator"
)

// WatchItem is one watchlist entry as written in YAML.
type WatchItem struct {
	Symbol   string `yaml:"symbol" validate:"required"`
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`
}

// Config holds all application configuration. Defaults come from the struct tags,
// then the YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Broker struct {
		APIKey         string  `yaml:"api_key"`
		SecretKey      string  `yaml:"secret_key"`
		UseTestnet     bool    `yaml:"use_testnet" default:"true"`
		BaseURL        string  `yaml:"base_url"`
		QuoteAsset     string  `yaml:"quote_asset" default:"USDT"`
		PricePrecision int32   `yaml:"price_precision" default:"2" validate:"gte=0,lte=8"`
		DepthLimit     int     `yaml:"depth_limit" default:"20" validate:"oneof=5 10 20 50 100 500 1000"`
		Paper          bool    `yaml:"paper" default:"true"`
		PaperCash      float64 `yaml:"paper_cash" default:"100000" validate:"gt=0"`
		SlippageBps    float64 `yaml:"slippage_bps" default:"5" validate:"gte=0"`
	} `yaml:"broker"`

	Data struct {
		Source        string `yaml:"source" default:"binance" validate:"oneof=binance csv"`
		CSVDir        string `yaml:"csv_dir" default:"./data/bars"`
		Benchmark     string `yaml:"benchmark" default:"SPY" validate:"required"`
		Primary       string `yaml:"primary" default:"5m" validate:"required"`
		PrimaryBars   int    `yaml:"primary_bars" default:"300" validate:"gt=0,lte=1500"`
		Fallback      string `yaml:"fallback" default:"15m"`
		FallbackBars  int    `yaml:"fallback_bars" default:"300" validate:"gte=0,lte=1500"`
		Consensus     string `yaml:"consensus" default:"5m:0.5,15m:0.3,1h:0.2"`
		ConsensusBars int    `yaml:"consensus_bars" default:"120" validate:"gt=0,lte=1500"`
		OrderFlow     bool   `yaml:"order_flow" default:"true"`
	} `yaml:"data"`

	Watchlist []WatchItem `yaml:"watchlist" validate:"dive"`

	Session struct {
		Timezone   string `yaml:"timezone" default:"America/New_York" validate:"required"`
		EntryStart string `yaml:"entry_start" default:"09:45"`
		EntryEnd   string `yaml:"entry_end" default:"15:00"`
		Cutoff     string `yaml:"cutoff" default:"15:50"`
	} `yaml:"session"`

	Pipeline struct {
		RegimeFastSMA      int     `yaml:"regime_fast_sma" default:"20"`
		RegimeSlowSMA      int     `yaml:"regime_slow_sma" default:"50"`
		RegimeROCPeriod    int     `yaml:"regime_roc_period" default:"10"`
		ATRPeriod          int     `yaml:"atr_period" default:"14"`
		MaxBenchmarkATRPct float64 `yaml:"max_benchmark_atr_pct" default:"0.02"`
		RSLookback         int     `yaml:"rs_lookback" default:"20"`
		TopPercent         float64 `yaml:"top_percent" default:"0.3"`
		ConsensusFastEMA   int     `yaml:"consensus_fast_ema" default:"9"`
		ConsensusSlowEMA   int     `yaml:"consensus_slow_ema" default:"21"`
		RSIPeriod          int     `yaml:"rsi_period" default:"14"`
		RSIOverbought      float64 `yaml:"rsi_overbought" default:"75" validate:"gt=0,lte=100"`
		MinConsensus       float64 `yaml:"min_consensus" default:"0.6" validate:"gte=0,lte=1"`
		TurnoverPeriod     int     `yaml:"turnover_period" default:"20"`
		MinTurnover        float64 `yaml:"min_turnover" default:"5000000" validate:"gte=0"`
		MinFlowScore       float64 `yaml:"min_flow_score" default:"0.55" validate:"gte=0,lte=1"`
		TierROCPeriod      int     `yaml:"tier_roc_period" default:"10"`
		VolumePeriod       int     `yaml:"volume_period" default:"20"`
		StrongROC          float64 `yaml:"strong_roc" default:"0.02"`
		ModerateROC        float64 `yaml:"moderate_roc" default:"0.008"`
		StrongVolumeRatio  float64 `yaml:"strong_volume_ratio" default:"1.5" validate:"gt=0"`
		MaxATRPct          float64 `yaml:"max_atr_pct" default:"0.04" validate:"gt=0"`
	} `yaml:"pipeline"`

	Strategy struct {
		ShortMAPeriod int     `yaml:"short_ma_period" default:"20"`
		LongMAPeriod  int     `yaml:"long_ma_period" default:"50"`
		EMAPeriod     int     `yaml:"ema_period" default:"20"`
		RSIPeriod     int     `yaml:"rsi_period" default:"14"`
		RSIOverbought float64 `yaml:"rsi_overbought" default:"70" validate:"gt=0,lte=100"`
	} `yaml:"strategy"`

	Validation struct {
		MinTrades         int     `yaml:"min_trades" default:"10" validate:"gte=1"`
		MinWinRate        float64 `yaml:"min_win_rate" default:"0.45" validate:"gte=0,lte=1"`
		MinAvgReturn      float64 `yaml:"min_avg_return" default:"0.001"`
		MinProfitFactor   float64 `yaml:"min_profit_factor" default:"1.2" validate:"gte=0"`
		ProfitFactorCap   float64 `yaml:"profit_factor_cap" default:"10" validate:"gt=0"`
		AllowMinimalEntry bool    `yaml:"allow_minimal_entry"`
	} `yaml:"validation"`

	Risk struct {
		RiskPerTrade      float64 `yaml:"risk_per_trade" default:"0.01" validate:"gt=0,lt=1"`
		MaxPositionValue  float64 `yaml:"max_position_value" default:"25000" validate:"gt=0"`
		MaxEquityFraction float64 `yaml:"max_equity_fraction" default:"0.2" validate:"gt=0,lte=1"`
		MaxOpenPositions  int     `yaml:"max_open_positions" default:"5" validate:"gte=1"`
		DailyLossLimit    float64 `yaml:"daily_loss_limit" default:"0.02" validate:"gt=0,lt=1"`
		WeeklyLossSoft    float64 `yaml:"weekly_loss_soft" default:"0.03" validate:"gt=0,lt=1"`
		WeeklyLossHard    float64 `yaml:"weekly_loss_hard" default:"0.06" validate:"gt=0,lt=1"`
	} `yaml:"risk"`

	Exit struct {
		HardStopPct         float64 `yaml:"hard_stop_pct" default:"0.03" validate:"gt=0,lt=1"`
		Tiers               string  `yaml:"tiers" default:"0.04:0.4,0.06:0.4"`
		TrailingActivation  float64 `yaml:"trailing_activation" default:"0.08"`
		TrailingATRMultiple float64 `yaml:"trailing_atr_multiple" default:"2"`
		TrailingPct         float64 `yaml:"trailing_pct" default:"0.03"`
		MinLockedGain       float64 `yaml:"min_locked_gain" default:"0.02"`
		SmallGain           float64 `yaml:"small_gain" default:"0.01"`
		LargeGain           float64 `yaml:"large_gain" default:"0.10"`
		VolumeConfirm       float64 `yaml:"volume_confirm" default:"1.2"`
		BreakdownRSI        float64 `yaml:"breakdown_rsi" default:"50" validate:"gt=0,lte=100"`
		ATRPeriod           int     `yaml:"atr_period" default:"14" validate:"gt=0"`
		FastMAPeriod        int     `yaml:"fast_ma_period" default:"10" validate:"gt=0"`
		VolumePeriod        int     `yaml:"volume_period" default:"20" validate:"gt=0"`
		RSIPeriod           int     `yaml:"rsi_period" default:"14" validate:"gt=0"`
	} `yaml:"exit"`

	Guards struct {
		Cooldown        time.Duration `yaml:"cooldown" default:"30m" validate:"gte=0"`
		BanAfterLosses  int           `yaml:"ban_after_losses" default:"3" validate:"gte=1"`
		DailyEntryLimit int           `yaml:"daily_entry_limit" default:"3" validate:"gte=1"`
		EntryLimits     string        `yaml:"entry_limits"` // tag:limit,...
		ConfirmWindow   time.Duration `yaml:"confirm_window" validate:"gte=0"`
		ConfirmDelay    time.Duration `yaml:"confirm_delay" validate:"gte=0"`
	} `yaml:"guards"`

	Loop struct {
		ScanInterval  time.Duration `yaml:"scan_interval" default:"5m" validate:"gt=0"`
		CheckInterval time.Duration `yaml:"check_interval" default:"1m" validate:"gt=0"`
		MinSleep      time.Duration `yaml:"min_sleep" default:"5s" validate:"gt=0"`
		MaxSleep      time.Duration `yaml:"max_sleep" default:"1m" validate:"gt=0"`
		Workers       int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		OrderTimeout  time.Duration `yaml:"order_timeout" default:"30s" validate:"gt=0"`
	} `yaml:"loop"`

	Retry struct {
		Attempts       int           `yaml:"attempts" default:"3" validate:"gte=1"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"10s" validate:"gte=0"`
		MinBackoff     time.Duration `yaml:"min_backoff" default:"250ms" validate:"gt=0"`
		MaxBackoff     time.Duration `yaml:"max_backoff" default:"4s" validate:"gt=0"`
	} `yaml:"retry"`

	DBPath      string `yaml:"db_path" default:"./data/equity_bot.db" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr" default:":9090"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	// Parsed from the string options above by LoadConfig.
	location    *time.Location
	tiers       []exit.Tier
	consensus   []pipeline.TimeframeWeight
	entryLimits map[string]int
}

var validate = playvalidator.New()

// LoadConfig loads configuration from defaults, the optional CONFIG_FILE YAML file,
// the .env file and environment variables, in that order of precedence.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w: %w", ports.ErrConfigInvalid, err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w: %w", ports.ErrConfigInvalid, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w: %w", ports.ErrConfigInvalid, err)
		}
	}

	var errs []string
	applyEnv(cfg, &errs)
	errs = append(errs, cfg.validate()...)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s: %w", strings.Join(errs, "; "), ports.ErrConfigInvalid)
	}
	return cfg, nil
}

// validate runs the tag checks, parses the compound options and cross-checks
// each component's configuration.
func (c *Config) validate() []string {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs playvalidator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if !c.Broker.Paper && (c.Broker.APIKey == "" || c.Broker.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set when PAPER_TRADING is false")
	}
	if len(c.Watchlist) == 0 {
		errs = append(errs, "WATCHLIST must name at least one symbol")
	}
	if c.Loop.MinSleep > c.Loop.MaxSleep {
		errs = append(errs, "MIN_SLEEP must not exceed MAX_SLEEP")
	}
	if c.Retry.MinBackoff > c.Retry.MaxBackoff {
		errs = append(errs, "MIN_BACKOFF must not exceed MAX_BACKOFF")
	}
	if c.Risk.WeeklyLossSoft >= c.Risk.WeeklyLossHard {
		errs = append(errs, "WEEKLY_LOSS_SOFT must be below WEEKLY_LOSS_HARD")
	}
	for _, tf := range []string{c.Data.Primary, c.Data.Fallback} {
		if tf != "" && domain.Timeframe(tf).Duration() <= 0 {
			errs = append(errs, fmt.Sprintf("unknown timeframe %q", tf))
		}
	}
	if c.Data.Source == "csv" && c.Data.CSVDir == "" {
		errs = append(errs, "CSV_DIR must be set when DATA_SOURCE is csv")
	}

	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE %q: %v", c.Session.Timezone, err))
		loc = time.UTC
	}
	c.location = loc

	if c.tiers, err = ParseTiers(c.Exit.Tiers); err != nil {
		errs = append(errs, err.Error())
	}
	if c.consensus, err = ParseWeights(c.Data.Consensus); err != nil {
		errs = append(errs, err.Error())
	}
	if c.entryLimits, err = ParseEntryLimits(c.Guards.EntryLimits); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return errs
	}

	// Component invariants.
	if pc, err := c.PipelineConfig(); err != nil {
		errs = append(errs, err.Error())
	} else if err := pc.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if ec, err := c.ExitConfig(); err != nil {
		errs = append(errs, err.Error())
	} else if err := ec.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.RiskConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := risk.NewTradeStateManager(c.TradeStateConfig()); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.ServiceConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// Location is the session time zone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// PipelineConfig builds the filter pipeline configuration.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	start, err := domain.ParseClockTime(c.Session.EntryStart)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("invalid ENTRY_START: %w", err)
	}
	end, err := domain.ParseClockTime(c.Session.EntryEnd)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("invalid ENTRY_END: %w", err)
	}
	p := c.Pipeline
	return pipeline.Config{
		EntryStart:         start,
		EntryEnd:           end,
		Location:           c.Location(),
		DailyLossLimit:     c.Risk.DailyLossLimit,
		RegimeFastSMA:      p.RegimeFastSMA,
		RegimeSlowSMA:      p.RegimeSlowSMA,
		RegimeROCPeriod:    p.RegimeROCPeriod,
		ATRPeriod:          p.ATRPeriod,
		MaxBenchmarkATRPct: p.MaxBenchmarkATRPct,
		RSLookback:         p.RSLookback,
		TopPercent:         p.TopPercent,
		Consensus:          c.consensus,
		ConsensusFastEMA:   p.ConsensusFastEMA,
		ConsensusSlowEMA:   p.ConsensusSlowEMA,
		RSIPeriod:          p.RSIPeriod,
		RSIOverbought:      p.RSIOverbought,
		MinConsensus:       p.MinConsensus,
		TurnoverPeriod:     p.TurnoverPeriod,
		MinTurnover:        p.MinTurnover,
		MinFlowScore:       p.MinFlowScore,
		TierROCPeriod:      p.TierROCPeriod,
		VolumePeriod:       p.VolumePeriod,
		StrongROC:          p.StrongROC,
		ModerateROC:        p.ModerateROC,
		StrongVolumeRatio:  p.StrongVolumeRatio,
		MaxATRPct:          p.MaxATRPct,
	}, nil
}

// ExitConfig builds the exit state machine configuration.
func (c *Config) ExitConfig() (exit.Config, error) {
	cutoff, err := domain.ParseClockTime(c.Session.Cutoff)
	if err != nil {
		return exit.Config{}, fmt.Errorf("invalid SESSION_CUTOFF: %w", err)
	}
	e := c.Exit
	return exit.Config{
		HardStopPct:         e.HardStopPct,
		Tiers:               append([]exit.Tier(nil), c.tiers...),
		TrailingActivation:  e.TrailingActivation,
		TrailingATRMultiple: e.TrailingATRMultiple,
		TrailingPct:         e.TrailingPct,
		MinLockedGain:       e.MinLockedGain,
		SmallGain:           e.SmallGain,
		LargeGain:           e.LargeGain,
		VolumeConfirm:       e.VolumeConfirm,
		BreakdownRSI:        e.BreakdownRSI,
		SessionCutoff:       cutoff,
		Location:            c.Location(),
	}, nil
}

// ExitPeriods are the indicator periods the exit rules read.
func (c *Config) ExitPeriods() exit.Periods {
	return exit.Periods{
		ATR:         c.Exit.ATRPeriod,
		FastMA:      c.Exit.FastMAPeriod,
		VolumeRatio: c.Exit.VolumePeriod,
		RSI:         c.Exit.RSIPeriod,
	}
}

// RiskConfig builds the position sizer configuration.
func (c *Config) RiskConfig() risk.Config {
	return risk.Config{
		RiskPerTrade:      c.Risk.RiskPerTrade,
		HardStopPct:       c.Exit.HardStopPct,
		MaxPositionValue:  c.Risk.MaxPositionValue,
		MaxEquityFraction: c.Risk.MaxEquityFraction,
		WeeklyLossSoft:    c.Risk.WeeklyLossSoft,
		WeeklyLossHard:    c.Risk.WeeklyLossHard,
		MaxOpenPositions:  c.Risk.MaxOpenPositions,
	}
}

// TradeStateConfig builds the entry guard configuration.
func (c *Config) TradeStateConfig() risk.TradeStateConfig {
	limits := make(map[string]int, len(c.entryLimits))
	for tag, n := range c.entryLimits {
		limits[tag] = n
	}
	return risk.TradeStateConfig{
		Cooldown:               c.Guards.Cooldown,
		BanAfterLosses:         c.Guards.BanAfterLosses,
		DailyEntryLimits:       limits,
		DefaultDailyEntryLimit: c.Guards.DailyEntryLimit,
		ConfirmWindow:          c.Guards.ConfirmWindow,
		ConfirmDelay:           c.Guards.ConfirmDelay,
		Location:               c.Location(),
	}
}

// StrategyConfig builds the entry rule used by the candidate simulation.
func (c *Config) StrategyConfig() strategy.Config {
	return strategy.Config{
		ShortTermMAPeriod: c.Strategy.ShortMAPeriod,
		LongTermMAPeriod:  c.Strategy.LongMAPeriod,
		EMAPeriod:         c.Strategy.EMAPeriod,
		RSIPeriod:         c.Strategy.RSIPeriod,
		RSIOverbought:     c.Strategy.RSIOverbought,
	}
}

// ValidatorCriteria builds the candidate validation thresholds.
func (c *Config) ValidatorCriteria() validator.Criteria {
	v := c.Validation
	return validator.Criteria{
		MinTrades:         v.MinTrades,
		MinWinRate:        v.MinWinRate,
		MinAvgReturn:      v.MinAvgReturn,
		MinProfitFactor:   v.MinProfitFactor,
		ProfitFactorCap:   v.ProfitFactorCap,
		AllowMinimalEntry: v.AllowMinimalEntry,
	}
}

// ValidatorSeries describes the bars the validator CLI fetches per symbol.
func (c *Config) ValidatorSeries() validator.Series {
	return validator.Series{
		PrimaryTimeframe:  domain.Timeframe(c.Data.Primary),
		PrimaryBars:       c.Data.PrimaryBars,
		FallbackTimeframe: domain.Timeframe(c.Data.Fallback),
		FallbackBars:      c.Data.FallbackBars,
	}
}

// RetryPolicy builds the policy applied to every external call.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:       c.Retry.Attempts,
		AttemptTimeout: c.Retry.AttemptTimeout,
		MinBackoff:     c.Retry.MinBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
	}
}

// ServiceConfig builds the monitoring loop configuration.
func (c *Config) ServiceConfig() app.Config {
	items := make([]app.WatchItem, 0, len(c.Watchlist))
	for _, w := range c.Watchlist {
		tag := w.Strategy
		if tag == "" {
			tag = strategy.DefaultName
		}
		items = append(items, app.WatchItem{Symbol: w.Symbol, Name: w.Name, StrategyTag: tag})
	}
	consensus := make([]domain.Timeframe, 0, len(c.consensus))
	for _, tw := range c.consensus {
		consensus = append(consensus, tw.Timeframe)
	}
	return app.Config{
		Watchlist:     items,
		Benchmark:     c.Data.Benchmark,
		Primary:       domain.Timeframe(c.Data.Primary),
		PrimaryBars:   c.Data.PrimaryBars,
		Fallback:      domain.Timeframe(c.Data.Fallback),
		FallbackBars:  c.Data.FallbackBars,
		Consensus:     consensus,
		ConsensusBars: c.Data.ConsensusBars,
		RSLookback:    c.Pipeline.RSLookback,
		ScanInterval:  c.Loop.ScanInterval,
		CheckInterval: c.Loop.CheckInterval,
		MinSleep:      c.Loop.MinSleep,
		MaxSleep:      c.Loop.MaxSleep,
		Workers:       c.Loop.Workers,
		Retry:         c.RetryPolicy(),
		OrderTimeout:  c.Loop.OrderTimeout,
	}
}

// LoggerConfig builds the logger adapter configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}

// --- Compound option parsers ---

// ParseTiers parses "gain:fraction,..." such as "0.04:0.4,0.06:0.4".
func ParseTiers(s string) ([]exit.Tier, error) {
	var tiers []exit.Tier
	for _, part := range splitList(s) {
		gain, fraction, err := parsePair(part)
		if err != nil {
			return nil, fmt.Errorf("invalid EXIT_TIERS entry %q: %w", part, err)
		}
		tiers = append(tiers, exit.Tier{Gain: gain, Fraction: fraction})
	}
	return tiers, nil
}

// ParseWeights parses "timeframe:weight,..." such as "5m:0.5,1h:0.5".
func ParseWeights(s string) ([]pipeline.TimeframeWeight, error) {
	var out []pipeline.TimeframeWeight
	for _, part := range splitList(s) {
		tf, w, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid CONSENSUS entry %q: want timeframe:weight", part)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CONSENSUS weight in %q: %w", part, err)
		}
		timeframe := domain.Timeframe(strings.TrimSpace(tf))
		if timeframe.Duration() <= 0 {
			return nil, fmt.Errorf("invalid CONSENSUS timeframe %q", tf)
		}
		out = append(out, pipeline.TimeframeWeight{Timeframe: timeframe, Weight: weight})
	}
	return out, nil
}

// ParseEntryLimits parses "tag:limit,..." such as "trend_follow:2,breakout:1".
func ParseEntryLimits(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, part := range splitList(s) {
		tag, n, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(tag) == "" {
			return nil, fmt.Errorf("invalid ENTRY_LIMITS entry %q: want tag:limit", part)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid ENTRY_LIMITS limit in %q", part)
		}
		out[strings.TrimSpace(tag)] = limit
	}
	return out, nil
}

// ParseWatchlist parses "SYMBOL[:strategy[:name]],..." such as "AAPL:trend_follow:Apple,MSFT".
func ParseWatchlist(s string) []WatchItem {
	var out []WatchItem
	for _, part := range splitList(s) {
		fields := strings.SplitN(part, ":", 3)
		item := WatchItem{Symbol: strings.ToUpper(strings.TrimSpace(fields[0]))}
		if len(fields) > 1 {
			item.Strategy = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			item.Name = strings.TrimSpace(fields[2])
		}
		out = append(out, item)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePair(s string) (float64, float64, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errors.New("want a:b")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// --- Env Var Helpers ---

func applyEnv(cfg *Config, errs *[]string) {
	// Broker
	envString(&cfg.Broker.APIKey, "BINANCE_API_KEY")
	envString(&cfg.Broker.SecretKey, "BINANCE_API_SECRET")
	envBool(&cfg.Broker.UseTestnet, "IS_TESTNET", errs)
	envString(&cfg.Broker.BaseURL, "BINANCE_BASE_URL")
	envString(&cfg.Broker.QuoteAsset, "QUOTE_ASSET")
	envBool(&cfg.Broker.Paper, "PAPER_TRADING", errs)
	envFloat(&cfg.Broker.PaperCash, "PAPER_CASH", errs)
	envFloat(&cfg.Broker.SlippageBps, "SLIPPAGE_BPS", errs)

	// Data
	envString(&cfg.Data.Source, "DATA_SOURCE")
	envString(&cfg.Data.CSVDir, "CSV_DIR")
	envString(&cfg.Data.Benchmark, "BENCHMARK")
	envString(&cfg.Data.Primary, "PRIMARY_TIMEFRAME")
	envInt(&cfg.Data.PrimaryBars, "PRIMARY_BARS", errs)
	envString(&cfg.Data.Fallback, "FALLBACK_TIMEFRAME")
	envInt(&cfg.Data.FallbackBars, "FALLBACK_BARS", errs)
	envString(&cfg.Data.Consensus, "CONSENSUS")
	envBool(&cfg.Data.OrderFlow, "ORDER_FLOW", errs)
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Watchlist = ParseWatchlist(v)
	}

	// Session
	envString(&cfg.Session.Timezone, "TIMEZONE")
	envString(&cfg.Session.EntryStart, "ENTRY_START")
	envString(&cfg.Session.EntryEnd, "ENTRY_END")
	envString(&cfg.Session.Cutoff, "SESSION_CUTOFF")

	// Risk
	envFloat(&cfg.Risk.RiskPerTrade, "RISK_PER_TRADE", errs)
	envFloat(&cfg.Risk.MaxPositionValue, "MAX_POSITION_VALUE", errs)
	envFloat(&cfg.Risk.MaxEquityFraction, "MAX_EQUITY_FRACTION", errs)
	envInt(&cfg.Risk.MaxOpenPositions, "MAX_OPEN_POSITIONS", errs)
	envFloat(&cfg.Risk.DailyLossLimit, "DAILY_LOSS_LIMIT", errs)
	envFloat(&cfg.Risk.WeeklyLossSoft, "WEEKLY_LOSS_SOFT", errs)
	envFloat(&cfg.Risk.WeeklyLossHard, "WEEKLY_LOSS_HARD", errs)

	// Exit
	envFloat(&cfg.Exit.HardStopPct, "HARD_STOP_PCT", errs)
	envString(&cfg.Exit.Tiers, "EXIT_TIERS")
	envFloat(&cfg.Exit.TrailingActivation, "TRAILING_ACTIVATION", errs)
	envFloat(&cfg.Exit.TrailingATRMultiple, "TRAILING_ATR_MULTIPLE", errs)
	envFloat(&cfg.Exit.MinLockedGain, "MIN_LOCKED_GAIN", errs)

	// Guards
	if v := os.Getenv("COOLDOWN_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid integer value '%s' for key COOLDOWN_MINUTES", v))
		} else {
			cfg.Guards.Cooldown = time.Duration(n) * time.Minute
		}
	}
	envInt(&cfg.Guards.BanAfterLosses, "BAN_AFTER_LOSSES", errs)
	envInt(&cfg.Guards.DailyEntryLimit, "DAILY_ENTRY_LIMIT", errs)
	envString(&cfg.Guards.EntryLimits, "ENTRY_LIMITS")
	envDuration(&cfg.Guards.ConfirmWindow, "CONFIRM_WINDOW", errs)
	envDuration(&cfg.Guards.ConfirmDelay, "CONFIRM_DELAY", errs)

	// Validation
	envInt(&cfg.Validation.MinTrades, "MIN_TRADES", errs)
	envFloat(&cfg.Validation.MinWinRate, "MIN_WIN_RATE", errs)
	envFloat(&cfg.Validation.MinProfitFactor, "MIN_PROFIT_FACTOR", errs)
	envBool(&cfg.Validation.AllowMinimalEntry, "ALLOW_MINIMAL_ENTRY", errs)

	// Loop
	envDuration(&cfg.Loop.ScanInterval, "SCAN_INTERVAL", errs)
	envDuration(&cfg.Loop.CheckInterval, "CHECK_INTERVAL", errs)
	envDuration(&cfg.Loop.MinSleep, "MIN_SLEEP", errs)
	envDuration(&cfg.Loop.MaxSleep, "MAX_SLEEP", errs)
	envInt(&cfg.Loop.Workers, "WORKERS", errs)
	envInt(&cfg.Retry.Attempts, "RETRY_ATTEMPTS", errs)

	// Infrastructure
	envString(&cfg.DBPath, "DB_PATH")
	envString(&cfg.MetricsAddr, "METRICS_ADDR")
	envString(&cfg.Log.Level, "LOG_LEVEL")
	envString(&cfg.Log.Format, "LOG_FORMAT")
	envString(&cfg.Log.Output, "LOG_OUTPUT")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string, errs *[]string) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid integer value '%s' for key %s", valueStr, key))
		return
	}
	*dst = value
}

func envFloat(dst *float64, key string, errs *[]string) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid float value '%s' for key %s", valueStr, key))
		return
	}
	*dst = value
}

func envBool(dst *bool, key string, errs *[]string) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid boolean value '%s' for key %s", valueStr, key))
		return
	}
	*dst = value
}

func envDuration(dst *time.Duration, key string, errs *[]string) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid duration value '%s' for key %s", valueStr, key))
		return
	}
	*dst = value
}
