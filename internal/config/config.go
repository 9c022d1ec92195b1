// Package config defines the engine configuration and provides validation
// helpers. All numeric thresholds here are tuning, not architecture; the
// defaults mirror the values the engine was calibrated with.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYSCOUT_* environment
// variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Detectors DetectorConfig  `toml:"detectors"`
	Ranker    RankerConfig    `toml:"ranker"`
	Risk      RiskConfig      `toml:"risk"`
	Trading   TradingConfig   `toml:"trading"`
	Venues    VenueConfig     `toml:"venues"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig drives the orchestrator cycle.
type EngineConfig struct {
	ScanInterval     duration `toml:"scan_interval"`
	MarketFetchLimit int      `toml:"market_fetch_limit"`
	EventFetchLimit  int      `toml:"event_fetch_limit"`
	DetectorPoolSize int      `toml:"detector_pool_size"`
	SnapshotTTL      duration `toml:"snapshot_ttl"`
	FetchTimeout     duration `toml:"fetch_timeout"`
	DryRun           bool     `toml:"dry_run"`
}

// DetectorConfig enables and tunes the detector set. Enabled lists the
// detector names to run; a name absent from the registry is simply skipped.
type DetectorConfig struct {
	Enabled []string `toml:"enabled"`

	Arbitrage   ArbitrageDetectorConfig   `toml:"arbitrage"`
	TimeDecay   TimeDecayDetectorConfig   `toml:"time_decay"`
	Resolution  ResolutionDetectorConfig  `toml:"resolution"`
	Whale       WhaleDetectorConfig       `toml:"whale"`
	Momentum    MomentumDetectorConfig    `toml:"momentum"`
	Mispricing  MispricingDetectorConfig  `toml:"mispricing"`
	Correlation CorrelationDetectorConfig `toml:"correlation"`
}

// ArbitrageDetectorConfig tunes the three arbitrage checks.
type ArbitrageDetectorConfig struct {
	MinMultiOutcomeProfitPct float64 `toml:"min_multi_outcome_profit_pct"`
	MinOutcomes              int     `toml:"min_outcomes"`
	MinEventLiquidity        float64 `toml:"min_event_liquidity"`
	MinCrossPlatformSpread   float64 `toml:"min_cross_platform_spread"`
	MinYesNoMismatch         float64 `toml:"min_yes_no_mismatch"`
	FeePerLegPct             float64 `toml:"fee_per_leg_pct"`
}

// TimeDecayDetectorConfig tunes deadline and improbable-expiring checks.
type TimeDecayDetectorConfig struct {
	MaxDaysDeadline       float64 `toml:"max_days_deadline"`
	MinDailyTheta         float64 `toml:"min_daily_theta"`
	MaxYesPriceImprobable float64 `toml:"max_yes_price_improbable"`
}

// ResolutionDetectorConfig tunes the resolution-predictable checks.
type ResolutionDetectorConfig struct {
	PriceMargin float64 `toml:"price_margin"`
}

// WhaleDetectorConfig tunes whale-consensus and abnormal-volume checks.
type WhaleDetectorConfig struct {
	MinWhaleAmountUSD  float64 `toml:"min_whale_amount_usd"`
	ConsensusThreshold float64 `toml:"consensus_threshold"`
	MinVolumeRatio     float64 `toml:"min_volume_ratio"`
}

// MomentumDetectorConfig tunes short/long momentum and contrarian checks.
type MomentumDetectorConfig struct {
	MinMomentum1h       float64 `toml:"min_momentum_1h"`
	MinMomentum24h      float64 `toml:"min_momentum_24h"`
	ContrarianThreshold float64 `toml:"contrarian_threshold"`
}

// MispricingDetectorConfig tunes new-market and low-liquidity checks.
type MispricingDetectorConfig struct {
	NewMarketHours        float64 `toml:"new_market_hours"`
	LowLiquidityThreshold float64 `toml:"low_liquidity_threshold"`
	MinMispricing         float64 `toml:"min_mispricing"`
}

// CorrelationDetectorConfig tunes the divergence check.
type CorrelationDetectorConfig struct {
	MinDivergence float64 `toml:"min_divergence"`
}

// RankerConfig holds the aggregator thresholds of rank step 1.
type RankerConfig struct {
	MinConfidence float64 `toml:"min_confidence"`
	MinProfitPct  float64 `toml:"min_profit_pct"`
}

// RiskConfig holds quality filter bounds, Kelly parameters and drawdown
// limits. Loss limits are negative fractions (e.g. -0.15 is a 15% loss).
type RiskConfig struct {
	MinLiquidity        float64 `toml:"min_liquidity"`
	MinVolume24h        float64 `toml:"min_volume_24h"`
	MaxSpread           float64 `toml:"max_spread"`
	MaxDaysToResolution float64 `toml:"max_days_to_resolution"`
	MinPrice            float64 `toml:"min_price"`
	MaxPrice            float64 `toml:"max_price"`

	KellyFraction   float64 `toml:"kelly_fraction"`
	MinBetUSD       float64 `toml:"min_bet_usd"`
	MaxBetUSD       float64 `toml:"max_bet_usd"`
	MaxPortfolioPct float64 `toml:"max_portfolio_pct"`

	DailyLossLimit  float64 `toml:"daily_loss_limit"`
	WeeklyLossLimit float64 `toml:"weekly_loss_limit"`
	MaxDrawdown     float64 `toml:"max_drawdown"`
}

// TradingConfig parameterizes the single engine: position lifecycle targets
// and diversification caps. Take-profit targets and stop loss are fractions
// of invested capital.
type TradingConfig struct {
	StartingBalanceUSD float64 `toml:"starting_balance_usd"`

	TakeProfitLow    float64 `toml:"take_profit_low"`    // entry < 0.30
	TakeProfitMedium float64 `toml:"take_profit_medium"` // entry 0.30..0.60
	TakeProfitHigh   float64 `toml:"take_profit_high"`   // entry > 0.60

	TPDecayEnabled bool      `toml:"tp_decay_enabled"`
	TPDecayHours   []float64 `toml:"tp_decay_hours"`
	TPDecayTargets []float64 `toml:"tp_decay_targets"`

	StopLossEnabled bool    `toml:"stop_loss_enabled"`
	StopLossPct     float64 `toml:"stop_loss_pct"` // negative fraction

	MaxHoldHours float64 `toml:"max_hold_hours"`

	MaxOpenPositions    int     `toml:"max_open_positions"`
	MaxPositionsPerMarket int   `toml:"max_positions_per_market"`
	MaxDailyExposureUSD float64 `toml:"max_daily_exposure_usd"`
	MinHoursForMomentum float64 `toml:"min_hours_for_momentum"`

	AlertMinRankScore float64 `toml:"alert_min_rank_score"`
}

// VenueSource points at one venue's snapshot directory. An external fetcher
// owns the venue HTTP traffic and keeps the directory current.
type VenueSource struct {
	Name string `toml:"name"`
	Dir  string `toml:"dir"`
}

// VenueConfig lists the snapshot sources. Home is the venue positions are
// opened on; cross sources only feed cross-platform detection.
type VenueConfig struct {
	Home  VenueSource   `toml:"home"`
	Cross []VenueSource `toml:"cross"`
}

// PostgresConfig holds connection parameters for the state store.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds object-storage parameters for the snapshot archiver. An
// empty bucket disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the read-only status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds alert channel credentials and the rate limit window.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	MinInterval       duration `toml:"min_interval"`
}

// duration wraps time.Duration for TOML text decoding ("90s", "3m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration the TOML file is merged over.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			ScanInterval:     duration{180 * time.Second},
			MarketFetchLimit: 200,
			EventFetchLimit:  50,
			DetectorPoolSize: 4,
			SnapshotTTL:      duration{5 * time.Minute},
			FetchTimeout:     duration{30 * time.Second},
			DryRun:           true,
		},
		Detectors: DetectorConfig{
			Enabled: []string{
				"arbitrage", "time_decay", "resolution", "whale",
				"momentum", "mispricing", "correlation",
			},
			Arbitrage: ArbitrageDetectorConfig{
				MinMultiOutcomeProfitPct: 2.0,
				MinOutcomes:              3,
				MinEventLiquidity:        1000,
				MinCrossPlatformSpread:   0.03,
				MinYesNoMismatch:         0.02,
				FeePerLegPct:             2.0,
			},
			TimeDecay: TimeDecayDetectorConfig{
				MaxDaysDeadline:       14,
				MinDailyTheta:         0.015,
				MaxYesPriceImprobable: 0.15,
			},
			Resolution: ResolutionDetectorConfig{
				PriceMargin: 0.03,
			},
			Whale: WhaleDetectorConfig{
				MinWhaleAmountUSD:  5000,
				ConsensusThreshold: 0.70,
				MinVolumeRatio:     5.0,
			},
			Momentum: MomentumDetectorConfig{
				MinMomentum1h:       0.05,
				MinMomentum24h:      0.15,
				ContrarianThreshold: -0.10,
			},
			Mispricing: MispricingDetectorConfig{
				NewMarketHours:        24,
				LowLiquidityThreshold: 10000,
				MinMispricing:         0.10,
			},
			Correlation: CorrelationDetectorConfig{
				MinDivergence: 0.10,
			},
		},
		Ranker: RankerConfig{
			MinConfidence: 55,
			MinProfitPct:  2.0,
		},
		Risk: RiskConfig{
			MinLiquidity:        0,
			MinVolume24h:        0,
			MaxSpread:           0.50,
			MaxDaysToResolution: 30,
			MinPrice:            0.02,
			MaxPrice:            0.95,
			KellyFraction:       0.15,
			MinBetUSD:           0.50,
			MaxBetUSD:           3.0,
			MaxPortfolioPct:     0.05,
			DailyLossLimit:      -0.15,
			WeeklyLossLimit:     -0.25,
			MaxDrawdown:         -0.35,
		},
		Trading: TradingConfig{
			StartingBalanceUSD:    100,
			TakeProfitLow:         0.40,
			TakeProfitMedium:      0.20,
			TakeProfitHigh:        0.10,
			TPDecayEnabled:        true,
			TPDecayHours:          []float64{6, 12, 24, 48},
			TPDecayTargets:        []float64{0.15, 0.10, 0.06, 0.03},
			StopLossEnabled:       true,
			StopLossPct:           -0.25,
			MaxHoldHours:          72,
			MaxOpenPositions:      20,
			MaxPositionsPerMarket: 2,
			MaxDailyExposureUSD:   200,
			MinHoursForMomentum:   24,
			AlertMinRankScore:     80,
		},
		Venues: VenueConfig{
			Home: VenueSource{Name: "polymarket"},
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			MinInterval: duration{5 * time.Minute},
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal inconsistencies. Any error
// here aborts startup; nothing downstream revalidates.
func (c *Config) Validate() error {
	if c.Engine.ScanInterval.Duration <= 0 {
		return fmt.Errorf("config: engine.scan_interval must be positive")
	}
	if c.Engine.DetectorPoolSize <= 0 {
		return fmt.Errorf("config: engine.detector_pool_size must be positive")
	}
	if c.Ranker.MinConfidence < 0 || c.Ranker.MinConfidence > 100 {
		return fmt.Errorf("config: ranker.min_confidence must be in [0,100]")
	}
	if c.Risk.MinPrice < 0 || c.Risk.MaxPrice > 1 || c.Risk.MinPrice >= c.Risk.MaxPrice {
		return fmt.Errorf("config: risk price bounds must satisfy 0 <= min < max <= 1")
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("config: risk.kelly_fraction must be in (0,1]")
	}
	if c.Risk.MinBetUSD <= 0 || c.Risk.MaxBetUSD < c.Risk.MinBetUSD {
		return fmt.Errorf("config: risk bet bounds must satisfy 0 < min <= max")
	}
	if c.Risk.MaxPortfolioPct <= 0 || c.Risk.MaxPortfolioPct > 1 {
		return fmt.Errorf("config: risk.max_portfolio_pct must be in (0,1]")
	}
	for _, limit := range [...]float64{c.Risk.DailyLossLimit, c.Risk.WeeklyLossLimit, c.Risk.MaxDrawdown} {
		if limit >= 0 {
			return fmt.Errorf("config: risk loss limits must be negative fractions")
		}
	}
	if len(c.Trading.TPDecayHours) != len(c.Trading.TPDecayTargets) {
		return fmt.Errorf("config: trading tp_decay_hours and tp_decay_targets must have equal length")
	}
	for i := 1; i < len(c.Trading.TPDecayHours); i++ {
		if c.Trading.TPDecayHours[i] <= c.Trading.TPDecayHours[i-1] {
			return fmt.Errorf("config: trading.tp_decay_hours must be strictly increasing")
		}
		if c.Trading.TPDecayTargets[i] > c.Trading.TPDecayTargets[i-1] {
			return fmt.Errorf("config: trading.tp_decay_targets must be non-increasing")
		}
	}
	if c.Trading.StopLossEnabled && c.Trading.StopLossPct >= 0 {
		return fmt.Errorf("config: trading.stop_loss_pct must be negative when enabled")
	}
	if c.Trading.StartingBalanceUSD <= 0 {
		return fmt.Errorf("config: trading.starting_balance_usd must be positive")
	}
	if c.Venues.Home.Name == "" || c.Venues.Home.Dir == "" {
		return fmt.Errorf("config: venues.home name and dir are required")
	}
	for _, v := range c.Venues.Cross {
		if v.Name == "" || v.Dir == "" {
			return fmt.Errorf("config: every venues.cross entry needs a name and dir")
		}
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port must be a valid port")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("config: notify telegram token and chat id must be set together")
	}
	return nil
}
