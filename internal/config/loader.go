package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYSCOUT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYSCOUT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.ScanInterval, "POLYSCOUT_ENGINE_SCAN_INTERVAL")
	setInt(&cfg.Engine.MarketFetchLimit, "POLYSCOUT_ENGINE_MARKET_FETCH_LIMIT")
	setInt(&cfg.Engine.DetectorPoolSize, "POLYSCOUT_ENGINE_DETECTOR_POOL_SIZE")
	setBool(&cfg.Engine.DryRun, "POLYSCOUT_ENGINE_DRY_RUN")

	// ── Ranker ──
	setFloat64(&cfg.Ranker.MinConfidence, "POLYSCOUT_RANKER_MIN_CONFIDENCE")
	setFloat64(&cfg.Ranker.MinProfitPct, "POLYSCOUT_RANKER_MIN_PROFIT_PCT")

	// ── Risk ──
	setFloat64(&cfg.Risk.KellyFraction, "POLYSCOUT_RISK_KELLY_FRACTION")
	setFloat64(&cfg.Risk.MinBetUSD, "POLYSCOUT_RISK_MIN_BET_USD")
	setFloat64(&cfg.Risk.MaxBetUSD, "POLYSCOUT_RISK_MAX_BET_USD")
	setFloat64(&cfg.Risk.MaxPortfolioPct, "POLYSCOUT_RISK_MAX_PORTFOLIO_PCT")
	setFloat64(&cfg.Risk.DailyLossLimit, "POLYSCOUT_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.WeeklyLossLimit, "POLYSCOUT_RISK_WEEKLY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.MaxDrawdown, "POLYSCOUT_RISK_MAX_DRAWDOWN")

	// ── Trading ──
	setFloat64(&cfg.Trading.StartingBalanceUSD, "POLYSCOUT_TRADING_STARTING_BALANCE_USD")
	setBool(&cfg.Trading.StopLossEnabled, "POLYSCOUT_TRADING_STOP_LOSS_ENABLED")
	setFloat64(&cfg.Trading.StopLossPct, "POLYSCOUT_TRADING_STOP_LOSS_PCT")
	setInt(&cfg.Trading.MaxOpenPositions, "POLYSCOUT_TRADING_MAX_OPEN_POSITIONS")

	// ── Venues ──
	setStr(&cfg.Venues.Home.Name, "POLYSCOUT_VENUES_HOME_NAME")
	setStr(&cfg.Venues.Home.Dir, "POLYSCOUT_VENUES_HOME_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYSCOUT_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYSCOUT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYSCOUT_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYSCOUT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSCOUT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSCOUT_REDIS_DB")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYSCOUT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSCOUT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSCOUT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYSCOUT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSCOUT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYSCOUT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYSCOUT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYSCOUT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYSCOUT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSCOUT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSCOUT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSCOUT_NOTIFY_DISCORD_WEBHOOK_URL")
	setDuration(&cfg.Notify.MinInterval, "POLYSCOUT_NOTIFY_MIN_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYSCOUT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
