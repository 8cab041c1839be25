package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"optionwatch/internal/logging"
	"optionwatch/internal/scheduler"
)

// ErrInvalidConfig marks configuration that cannot start the service.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	NSE       NSEConfig       `mapstructure:"nse"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN keeps
// snapshots in memory.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ClosedInterval  time.Duration `mapstructure:"closed_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig describes what is polled and when.
type MarketConfig struct {
	Symbols           []string `mapstructure:"symbols"`
	Timezone          string   `mapstructure:"timezone"`
	Open              string   `mapstructure:"open"`
	Close             string   `mapstructure:"close"`
	Weekdays          []string `mapstructure:"weekdays"`
	BypassHours       bool     `mapstructure:"bypass_hours"`
	NearestExpiryOnly bool     `mapstructure:"nearest_expiry_only"`
}

// NSEConfig captures option-chain provider connectivity.
type NSEConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	ThresholdPct   float64        `mapstructure:"threshold_pct"`
	SendTimeout    time.Duration  `mapstructure:"send_timeout"`
	SignalsEnabled bool           `mapstructure:"signals_enabled"`
	Slack          SlackConfig    `mapstructure:"slack"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// SlackConfig holds the incoming webhook target.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// TelegramConfig holds bot delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// CacheConfig selects the floor cache backend: "memory", "redis" or "none".
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("OPTIONWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "optionwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.max_backups", 5)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.write_timeout", "10s")

	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.closed_interval", "60s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x4f505457))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("market.symbols", []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "NIFTYNXT50"})
	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.open", "09:16")
	v.SetDefault("market.close", "15:30")
	v.SetDefault("market.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault("market.bypass_hours", false)
	v.SetDefault("market.nearest_expiry_only", false)

	v.SetDefault("nse.base_url", "https://www.nseindia.com")
	v.SetDefault("nse.request_timeout", "10s")
	v.SetDefault("nse.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("nse.rate_per_second", 1.0)
	v.SetDefault("nse.burst", 2)
	v.SetDefault("nse.breaker_failures", 5)
	v.SetDefault("nse.breaker_cooldown", "1m")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.threshold_pct", 100.0)
	v.SetDefault("alerting.send_timeout", "10s")
	v.SetDefault("alerting.signals_enabled", false)
	v.SetDefault("alerting.slack.webhook_url", "")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "36h")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9102")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Alerting.ThresholdPct < 0 {
		return invalid("alerting.threshold_pct cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return invalid("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.ClosedInterval < 0 {
		return invalid("scheduler.closed_interval cannot be negative")
	}
	if len(c.Symbols()) == 0 {
		return invalid("market.symbols must list at least one symbol")
	}
	if _, err := c.Location(); err != nil {
		return invalid("market.timezone: %v", err)
	}
	if _, err := c.MarketHours(); err != nil {
		return invalid("market window: %v", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return invalid("export.max_data_points must be greater than zero")
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "", "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return invalid("cache.redis_addr is required for the redis backend")
		}
	default:
		return invalid("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return invalid("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return invalid("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Symbols returns the configured symbols upper-cased and de-duplicated.
func (c *Config) Symbols() []string {
	seen := make(map[string]struct{}, len(c.Market.Symbols))
	out := make([]string, 0, len(c.Market.Symbols))
	for _, s := range c.Market.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Location resolves the market timezone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Market.Timezone
	if name == "" {
		name = "Asia/Kolkata"
	}
	return time.LoadLocation(name)
}

// MarketHours builds the polling window.
func (c *Config) MarketHours() (scheduler.MarketHours, error) {
	loc, err := c.Location()
	if err != nil {
		return scheduler.MarketHours{}, err
	}
	open, err := scheduler.ParseClock(c.Market.Open)
	if err != nil {
		return scheduler.MarketHours{}, err
	}
	closing, err := scheduler.ParseClock(c.Market.Close)
	if err != nil {
		return scheduler.MarketHours{}, err
	}
	if closing.Hour*60+closing.Minute < open.Hour*60+open.Minute {
		return scheduler.MarketHours{}, fmt.Errorf("close %s is before open %s", closing, open)
	}
	weekdays, err := scheduler.ParseWeekdays(c.Market.Weekdays)
	if err != nil {
		return scheduler.MarketHours{}, err
	}
	return scheduler.MarketHours{Location: loc, Open: open, Close: closing, Weekdays: weekdays}, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
