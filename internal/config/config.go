package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"memecoin-radar/internal/logging"
)

// ErrMissingCredentials is returned when Telegram credentials required for a run are absent.
var ErrMissingCredentials = errors.New("telegram credentials missing")

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Extract     ExtractConfig     `mapstructure:"extract"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig holds MTProto user-session credentials.
type TelegramConfig struct {
	APIID         int    `mapstructure:"api_id"`
	APIHash       string `mapstructure:"api_hash"`
	SessionString string `mapstructure:"session_string"`
	SessionFile   string `mapstructure:"session_file"`
	Phone         string `mapstructure:"phone"`
	Password      string `mapstructure:"password"`
}

// IngestConfig 描述监听的频道与批处理窗口。
type IngestConfig struct {
	Channels     []string      `mapstructure:"channels"`
	Batch        bool          `mapstructure:"batch"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Lookback     time.Duration `mapstructure:"lookback"`
}

// ExtractConfig carries the fallback values written when an optional field is absent.
type ExtractConfig struct {
	NamePlaceholder string `mapstructure:"name_placeholder"`
	NameMaxRunes    int    `mapstructure:"name_max_runes"`
	MarketCapNA     string `mapstructure:"market_cap_na"`
	DefaultMentions string `mapstructure:"default_mentions"`
	TimeNA          string `mapstructure:"time_na"`
}

// StoreConfig locates the JSON token document.
type StoreConfig struct {
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
	LockKey    int64  `mapstructure:"lock_key"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplicationName string        `mapstructure:"application_name"`
}

// SchedulerConfig governs the in-process batch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunAtStart      bool          `mapstructure:"run_at_start"`
}

// AlertingConfig defines new-token notification routing.
type AlertingConfig struct {
	Enabled   bool      `mapstructure:"enabled"`
	WithQuote bool      `mapstructure:"with_quote"`
	Telegram  BotConfig `mapstructure:"telegram"`
}

// BotConfig 描述 Telegram Bot 推送参数。
type BotConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DexScreenerConfig captures the quote API connectivity.
type DexScreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Ingest.Channels = normalizeChannels(cfg.Ingest.Channels)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the variable names used by existing deployments (CI secrets, .env files).
func bindLegacyEnv(v *viper.Viper) error {
	bindings := [][]string{
		{"telegram.api_id", "RADAR_TELEGRAM_API_ID", "API_ID"},
		{"telegram.api_hash", "RADAR_TELEGRAM_API_HASH", "API_HASH"},
		{"telegram.session_string", "RADAR_TELEGRAM_SESSION_STRING", "SESSION_STRING"},
		{"ingest.batch", "RADAR_INGEST_BATCH", "GITHUB_ACTIONS"},
		{"ingest.channels", "RADAR_INGEST_CHANNELS", "CHANNELS"},
		{"store.path", "RADAR_STORE_PATH", "OUTPUT_FILE"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("bind env %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "memecoin-radar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telegram.session_file", "radar.session.json")

	v.SetDefault("ingest.channels", []string{"MomentumTrackerCN2"})
	v.SetDefault("ingest.batch", false)
	v.SetDefault("ingest.history_limit", 50)
	v.SetDefault("ingest.lookback", "30m")

	v.SetDefault("extract.name_placeholder", "Unknown")
	v.SetDefault("extract.name_max_runes", 15)
	v.SetDefault("extract.market_cap_na", "N/A")
	v.SetDefault("extract.default_mentions", "1")
	v.SetDefault("extract.time_na", "暂无")

	v.SetDefault("store.path", "meme_data.json")
	v.SetDefault("store.max_entries", 100)
	v.SetDefault("store.lock_key", int64(0x6d656d65))

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.application_name", "memecoin-radar")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_at_start", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.with_quote", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.request_timeout", "10s")

	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must be configured")
	}
	if c.Store.MaxEntries <= 0 {
		return fmt.Errorf("store.max_entries must be greater than zero")
	}
	if c.Ingest.HistoryLimit <= 0 {
		return fmt.Errorf("ingest.history_limit must be greater than zero")
	}
	if c.Ingest.Lookback <= 0 {
		return fmt.Errorf("ingest.lookback must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Extract.NameMaxRunes <= 0 {
		return fmt.Errorf("extract.name_max_runes must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// RequireTelegram checks the credentials an ingestion run needs before any connection is made.
// Automated batch runs cannot log in interactively, so they also need a session string.
func (c *Config) RequireTelegram(batch bool) error {
	if len(c.Ingest.Channels) == 0 {
		return fmt.Errorf("ingest.channels must list at least one channel")
	}
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("%w: telegram.api_id and telegram.api_hash are required", ErrMissingCredentials)
	}
	if batch && strings.TrimSpace(c.Telegram.SessionString) == "" {
		return fmt.Errorf("%w: telegram.session_string is required in batch mode", ErrMissingCredentials)
	}
	return nil
}

func normalizeChannels(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, ch := range in {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}
