// Package config defines all configuration for the trading assistant.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// MARTIN_* environment variable overrides. Persistent overrides from the
// settings table are applied on top via WithSettings; effective values
// resolve settings > env > file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Trading         TradingConfig         `mapstructure:"trading"`
	DayNight        DayNightConfig        `mapstructure:"day_night"`
	Execution       ExecutionConfig       `mapstructure:"execution"`
	RollingQuantile RollingQuantileConfig `mapstructure:"rolling_quantile"`
	Loop            LoopConfig            `mapstructure:"loop"`
	API             APIConfig             `mapstructure:"api"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Telegram        TelegramConfig        `mapstructure:"telegram"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

// TradingConfig fixes the tracked assets and the entry gate.
//
//   - PriceCap: maximum acceptable outcome-token price for entry.
//   - ConfirmDelaySeconds: confirm_ts = signal_ts + this delay.
//   - CapMinTicks: consecutive ticks at or below the cap required to pass.
//   - WindowSeconds: duration of one market window (3600 for hourly).
//   - StakeUSD: flat stake per trade.
type TradingConfig struct {
	Assets              []string `mapstructure:"assets"`
	PriceCap            float64  `mapstructure:"price_cap"`
	ConfirmDelaySeconds int64    `mapstructure:"confirm_delay_seconds"`
	CapMinTicks         int      `mapstructure:"cap_min_ticks"`
	WindowSeconds       int64    `mapstructure:"window_seconds"`
	StakeUSD            float64  `mapstructure:"stake_usd"`
}

// DayNightConfig controls the DAY/NIGHT split and the quality policy.
// Day hours are half-open [day_start_hour, day_end_hour) in Timezone; when
// day_start_hour >= day_end_hour the day session wraps over midnight.
type DayNightConfig struct {
	Timezone               string  `mapstructure:"timezone"`
	DayStartHour           int     `mapstructure:"day_start_hour"`
	DayEndHour             int     `mapstructure:"day_end_hour"`
	BaseDayMinQuality      float64 `mapstructure:"base_day_min_quality"`
	BaseNightMinQuality    float64 `mapstructure:"base_night_min_quality"`
	SwitchStreakAt         int     `mapstructure:"switch_streak_at"`
	StartStrictAfterNWins  int     `mapstructure:"start_strict_after_n_wins"`
	StrictQualityIncrement float64 `mapstructure:"strict_quality_increment"`
	NightMaxWinStreak      int     `mapstructure:"night_max_win_streak"`
	NightAutotradeEnabled  bool    `mapstructure:"night_autotrade_enabled"`
	NightSessionMode       string  `mapstructure:"night_session_mode"`
	MaxResponseSeconds     int64   `mapstructure:"max_response_seconds"`
}

// ExecutionConfig selects paper or live order placement.
// Live credentials come from env only: ETH_PRIVATE_KEY, POLY_API_KEY,
// POLY_API_SECRET, POLY_PASSPHRASE.
type ExecutionConfig struct {
	Mode                 string `mapstructure:"mode"`
	FillPollSeconds      int64  `mapstructure:"fill_poll_seconds"`
	SettleTimeoutSeconds int64  `mapstructure:"settle_timeout_seconds"`
	EthPrivateKey        string `mapstructure:"-"`
	APIKey               string `mapstructure:"-"`
	APISecret            string `mapstructure:"-"`
	Passphrase           string `mapstructure:"-"`
}

// RollingQuantileConfig tunes the optional quantile-based STRICT thresholds.
type RollingQuantileConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	RollingDays        int     `mapstructure:"rolling_days"`
	MaxSamples         int     `mapstructure:"max_samples"`
	MinSamples         int     `mapstructure:"min_samples"`
	StrictFallbackMult float64 `mapstructure:"strict_fallback_mult"`
	StrictDayQ         string  `mapstructure:"strict_day_q"`
	StrictNightQ       string  `mapstructure:"strict_night_q"`
}

// LoopConfig sets the two loop periods and the snapshot shape.
type LoopConfig struct {
	TickSeconds              int64 `mapstructure:"tick_seconds"`
	SnapshotSeconds          int64 `mapstructure:"snapshot_seconds"`
	WarmupSeconds            int64 `mapstructure:"warmup_seconds"`
	SnapshotFreshnessSeconds int64 `mapstructure:"snapshot_freshness_seconds"`
}

// APIConfig holds the external HTTP/WS endpoints.
type APIConfig struct {
	GammaBaseURL   string `mapstructure:"gamma_base_url"`
	CLOBBaseURL    string `mapstructure:"clob_base_url"`
	BinanceBaseURL string `mapstructure:"binance_base_url"`
	BinanceWSURL   string `mapstructure:"binance_ws_url"`
}

// DatabaseConfig points the ledger at SQLite (file path) or PostgreSQL
// (postgres:// DSN).
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TelegramConfig enables the notifier and command surface when the
// TELEGRAM_BOT_TOKEN env var is set.
type TelegramConfig struct {
	Token    string  `mapstructure:"-"`
	ChatID   int64   `mapstructure:"chat_id"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TickPeriod returns the orchestrator cycle period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Loop.TickSeconds) * time.Second
}

// SnapshotPeriod returns the snapshot worker period.
func (c *Config) SnapshotPeriod() time.Duration {
	return time.Duration(c.Loop.SnapshotSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.assets", []string{"BTC", "ETH"})
	v.SetDefault("trading.price_cap", 0.55)
	v.SetDefault("trading.confirm_delay_seconds", 120)
	v.SetDefault("trading.cap_min_ticks", 3)
	v.SetDefault("trading.window_seconds", 3600)
	v.SetDefault("trading.stake_usd", 10)

	v.SetDefault("day_night.timezone", "UTC")
	v.SetDefault("day_night.day_start_hour", 8)
	v.SetDefault("day_night.day_end_hour", 22)
	v.SetDefault("day_night.base_day_min_quality", 35)
	v.SetDefault("day_night.base_night_min_quality", 45)
	v.SetDefault("day_night.switch_streak_at", 3)
	v.SetDefault("day_night.start_strict_after_n_wins", 3)
	v.SetDefault("day_night.strict_quality_increment", 5)
	v.SetDefault("day_night.night_max_win_streak", 5)
	v.SetDefault("day_night.night_autotrade_enabled", true)
	v.SetDefault("day_night.night_session_mode", "SOFT")
	v.SetDefault("day_night.max_response_seconds", 300)

	v.SetDefault("execution.mode", "paper")
	v.SetDefault("execution.fill_poll_seconds", 30)
	v.SetDefault("execution.settle_timeout_seconds", 21600)

	v.SetDefault("rolling_quantile.enabled", false)
	v.SetDefault("rolling_quantile.rolling_days", 30)
	v.SetDefault("rolling_quantile.max_samples", 500)
	v.SetDefault("rolling_quantile.min_samples", 20)
	v.SetDefault("rolling_quantile.strict_fallback_mult", 1.2)
	v.SetDefault("rolling_quantile.strict_day_q", "p90")
	v.SetDefault("rolling_quantile.strict_night_q", "p95")

	v.SetDefault("loop.tick_seconds", 60)
	v.SetDefault("loop.snapshot_seconds", 30)
	v.SetDefault("loop.warmup_seconds", 7200)
	v.SetDefault("loop.snapshot_freshness_seconds", 120)

	v.SetDefault("api.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.binance_base_url", "https://api.binance.com")
	v.SetDefault("api.binance_ws_url", "wss://stream.binance.com:9443/ws")

	v.SetDefault("database.dsn", "data/martin.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads config from a YAML file with MARTIN_* env overrides.
// A missing file is fine; defaults and env cover everything.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("MARTIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Execution.EthPrivateKey = os.Getenv("ETH_PRIVATE_KEY")
	cfg.Execution.APIKey = os.Getenv("POLY_API_KEY")
	cfg.Execution.APISecret = os.Getenv("POLY_API_SECRET")
	cfg.Execution.Passphrase = os.Getenv("POLY_PASSPHRASE")
	cfg.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")

	return &cfg, nil
}

// WithSettings returns a copy of the config with persistent settings rows
// applied on top. Keys use the same dotted paths as the YAML file; unknown
// keys and unparseable values are reported, not applied.
func (c *Config) WithSettings(rows map[string]string) (*Config, []error) {
	out := *c
	var errs []error

	for key, raw := range rows {
		if err := out.applySetting(key, raw); err != nil {
			errs = append(errs, fmt.Errorf("setting %s=%q: %w", key, raw, err))
		}
	}
	return &out, errs
}

func (c *Config) applySetting(key, raw string) error {
	switch key {
	case "trading.price_cap":
		return parseFloat(raw, &c.Trading.PriceCap)
	case "trading.confirm_delay_seconds":
		return parseInt64(raw, &c.Trading.ConfirmDelaySeconds)
	case "trading.cap_min_ticks":
		return parseInt(raw, &c.Trading.CapMinTicks)
	case "trading.stake_usd":
		return parseFloat(raw, &c.Trading.StakeUSD)
	case "day_night.day_start_hour":
		return parseInt(raw, &c.DayNight.DayStartHour)
	case "day_night.day_end_hour":
		return parseInt(raw, &c.DayNight.DayEndHour)
	case "day_night.base_day_min_quality":
		return parseFloat(raw, &c.DayNight.BaseDayMinQuality)
	case "day_night.base_night_min_quality":
		return parseFloat(raw, &c.DayNight.BaseNightMinQuality)
	case "day_night.switch_streak_at":
		return parseInt(raw, &c.DayNight.SwitchStreakAt)
	case "day_night.start_strict_after_n_wins":
		return parseInt(raw, &c.DayNight.StartStrictAfterNWins)
	case "day_night.strict_quality_increment":
		return parseFloat(raw, &c.DayNight.StrictQualityIncrement)
	case "day_night.night_max_win_streak":
		return parseInt(raw, &c.DayNight.NightMaxWinStreak)
	case "day_night.night_autotrade_enabled":
		return parseBool(raw, &c.DayNight.NightAutotradeEnabled)
	case "day_night.night_session_mode":
		mode := strings.ToUpper(raw)
		if mode != "OFF" && mode != "SOFT" && mode != "HARD" {
			return fmt.Errorf("must be OFF, SOFT or HARD")
		}
		c.DayNight.NightSessionMode = mode
		return nil
	case "day_night.max_response_seconds":
		return parseInt64(raw, &c.DayNight.MaxResponseSeconds)
	case "execution.mode":
		mode := strings.ToLower(raw)
		if mode != "paper" && mode != "live" {
			return fmt.Errorf("must be paper or live")
		}
		c.Execution.Mode = mode
		return nil
	case "rolling_quantile.enabled":
		return parseBool(raw, &c.RollingQuantile.Enabled)
	default:
		return fmt.Errorf("unknown setting")
	}
}

func parseFloat(raw string, dst *float64) error {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseInt(raw string, dst *int) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseInt64(raw string, dst *int64) error {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseBool(raw string, dst *bool) error {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// Validate checks all required fields and value ranges. Called once at
// startup; failure is fatal for the process.
func (c *Config) Validate() error {
	if len(c.Trading.Assets) == 0 {
		return fmt.Errorf("trading.assets must not be empty")
	}
	if c.Trading.PriceCap <= 0 || c.Trading.PriceCap >= 1 {
		return fmt.Errorf("trading.price_cap must be in (0, 1)")
	}
	if c.Trading.ConfirmDelaySeconds < 0 {
		return fmt.Errorf("trading.confirm_delay_seconds must be >= 0")
	}
	if c.Trading.CapMinTicks < 1 {
		return fmt.Errorf("trading.cap_min_ticks must be >= 1")
	}
	if c.Trading.WindowSeconds <= 0 {
		return fmt.Errorf("trading.window_seconds must be > 0")
	}
	if c.Trading.StakeUSD <= 0 {
		return fmt.Errorf("trading.stake_usd must be > 0")
	}
	if c.DayNight.DayStartHour < 0 || c.DayNight.DayStartHour > 23 {
		return fmt.Errorf("day_night.day_start_hour must be in [0, 23]")
	}
	if c.DayNight.DayEndHour < 0 || c.DayNight.DayEndHour > 23 {
		return fmt.Errorf("day_night.day_end_hour must be in [0, 23]")
	}
	switch c.DayNight.NightSessionMode {
	case "OFF", "SOFT", "HARD":
	default:
		return fmt.Errorf("day_night.night_session_mode must be one of: OFF, SOFT, HARD")
	}
	if c.DayNight.MaxResponseSeconds <= 0 {
		return fmt.Errorf("day_night.max_response_seconds must be > 0")
	}
	switch c.Execution.Mode {
	case "paper":
	case "live":
		if c.Execution.EthPrivateKey == "" {
			return fmt.Errorf("execution.mode=live requires ETH_PRIVATE_KEY")
		}
	default:
		return fmt.Errorf("execution.mode must be paper or live")
	}
	if c.Loop.TickSeconds <= 0 || c.Loop.SnapshotSeconds <= 0 {
		return fmt.Errorf("loop periods must be > 0")
	}
	if c.Loop.WarmupSeconds <= 0 {
		return fmt.Errorf("loop.warmup_seconds must be > 0")
	}
	if _, err := loadLocation(c.DayNight.Timezone); err != nil {
		return fmt.Errorf("day_night.timezone: %w", err)
	}
	if c.RollingQuantile.Enabled {
		if c.RollingQuantile.MinSamples < 1 {
			return fmt.Errorf("rolling_quantile.min_samples must be >= 1")
		}
		if !validQuantile(c.RollingQuantile.StrictDayQ) || !validQuantile(c.RollingQuantile.StrictNightQ) {
			return fmt.Errorf("rolling_quantile quantiles must be one of: p90, p95, p97, p99")
		}
	}
	return nil
}

func validQuantile(q string) bool {
	switch q {
	case "p90", "p95", "p97", "p99":
		return true
	}
	return false
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Location returns the configured local zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := loadLocation(c.DayNight.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
