package config

// Bot configuration loaded with viper
// Precedence (lowest first): defaults, config.yaml, .env / environment, command line flags

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Berachain BerachainConfig `mapstructure:"berachain"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	App       AppConfig       `mapstructure:"app"`
}

type DiscordConfig struct {
	Token    string `mapstructure:"token"`
	RoleName string `mapstructure:"role_name"` // role whose color follows the trend
	// DevGuildID registers slash commands on one guild only (instant updates while developing)
	DevGuildID string `mapstructure:"dev_guild_id"`
}

type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APITier        string        `mapstructure:"api_tier"` // "demo" or "pro"
	VsCurrency     string        `mapstructure:"vs_currency"`
	RequestsPerMin int           `mapstructure:"requests_per_min"`
	Burst          int           `mapstructure:"burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	// MaxRetryAfter is the longest 429 Retry-After waited out; longer ones serve cached prices
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after"`
}

// BerachainConfig is used by the on-chain PRG price source; empty RPCURL disables it
type BerachainConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	GoldiswapAddress   string `mapstructure:"goldiswap_address"`
	GoldilockedAddress string `mapstructure:"goldilocked_address"`
	TreasuryAddress    string `mapstructure:"treasury_address"`
}

// TelegramConfig enables the optional alert mirror
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TrackerConfig struct {
	TickInterval          time.Duration `mapstructure:"tick_interval"`
	DefaultUpdateInterval int           `mapstructure:"default_update_interval"` // seconds
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	MaxTokens             int           `mapstructure:"max_tokens"`
	MaxConcurrentGuilds   int           `mapstructure:"max_concurrent_guilds"`
	HistorySize           int           `mapstructure:"history_size"`
	StatusToken           string        `mapstructure:"status_token"` // pin the presence text to one token
}

type AlertsConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	SummaryCron  string        `mapstructure:"summary_cron"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "file" or "buntdb"
	Path   string `mapstructure:"path"`
}

type TokensConfig struct {
	Default []string          `mapstructure:"default"` // tokens added by /start when a guild tracks nothing yet
	Symbols map[string]string `mapstructure:"symbols"` // pricing id -> display symbol
	Aliases map[string]string `mapstructure:"aliases"` // user input -> pricing id
}

type AppConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	LogDir      string `mapstructure:"log_dir"`
	Debug       bool   `mapstructure:"debug"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

const (
	MinUpdateInterval = 60
	MaxUpdateInterval = 24 * 3600
)

// LoadConfig reads configuration. flags may be nil (tests, tools).
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	// .env only populates the process environment; real env vars win
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("etc")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	}

	v.SetEnvPrefix("TICKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setupEnvAliases(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// TOKENS_DEFAULT=bitcoin,ethereum arrives as one string
	if raw := v.Get("tokens.default"); raw != nil {
		if s, ok := raw.(string); ok {
			cfg.Tokens.Default = splitList(s)
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupEnvAliases(v *viper.Viper) {
	// short names used by existing deployments' .env files
	v.BindEnv("discord.token", "DISCORD_TOKEN")
	v.BindEnv("discord.dev_guild_id", "DISCORD_DEV_GUILD_ID")
	v.BindEnv("app.debug", "DEBUG")

	v.BindEnv("coingecko.api_key", "COINGECKO_API_KEY")
	v.BindEnv("coingecko.api_tier", "COINGECKO_API_TIER")
	v.BindEnv("berachain.rpc_url", "BERACHAIN_RPC_URL")

	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	v.BindEnv("tokens.default", "TRACKED_TOKENS")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.role_name", "Price Ticker")
	v.SetDefault("discord.dev_guild_id", "")

	v.SetDefault("coingecko.base_url", "")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.api_tier", "demo")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.requests_per_min", 10) // public tier allows roughly 10-30/min
	v.SetDefault("coingecko.burst", 3)
	v.SetDefault("coingecko.request_timeout", "15s")
	v.SetDefault("coingecko.max_retries", 3)
	v.SetDefault("coingecko.max_retry_after", "2m")

	v.SetDefault("berachain.rpc_url", "")
	v.SetDefault("berachain.goldiswap_address", "0xb7E448E5677D212B8C8Da7D6312E8Afc49800466")
	v.SetDefault("berachain.goldilocked_address", "0xbf2E152f460090aCE91A456e3deE5ACf703f27aD")
	v.SetDefault("berachain.treasury_address", "0x895614c89beC7D11454312f740854d08CbF57A78")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("tracker.tick_interval", "15s")
	v.SetDefault("tracker.default_update_interval", 300)
	v.SetDefault("tracker.cache_ttl", "60s")
	v.SetDefault("tracker.max_tokens", 2) // two "SYM: $0.0000+" parts already fill 32 chars
	v.SetDefault("tracker.max_concurrent_guilds", 4)
	v.SetDefault("tracker.history_size", 288) // 24h at the default 5 minute interval
	v.SetDefault("tracker.status_token", "")

	v.SetDefault("alerts.threshold_pct", 10.0)
	v.SetDefault("alerts.cooldown", "1h")
	v.SetDefault("alerts.summary_cron", "0 10 * * *")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "")

	v.SetDefault("tokens.default", []string{})

	v.SetDefault("app.data_dir", "data")
	v.SetDefault("app.log_dir", "logs")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.metrics_addr", ":9090")
}

// RegisterFlags adds the overridable keys to a cobra/pflag flag set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("discord.token", "", "Discord bot token (env: DISCORD_TOKEN)")
	fs.String("coingecko.api_key", "", "CoinGecko API key (env: COINGECKO_API_KEY)")
	fs.String("berachain.rpc_url", "", "Berachain JSON-RPC endpoint for PRG (env: BERACHAIN_RPC_URL)")
	fs.String("storage.driver", "file", "Guild config storage: file or buntdb (env: TICKER_STORAGE_DRIVER)")
	fs.String("app.data_dir", "data", "Data directory (env: TICKER_APP_DATA_DIR)")
	fs.String("app.metrics_addr", ":9090", "Metrics/health listen address, empty disables (env: TICKER_APP_METRICS_ADDR)")
	fs.Bool("app.debug", false, "Verbose console logging (env: DEBUG)")
}

func validateConfig(cfg *Config) error {
	if cfg.Tracker.DefaultUpdateInterval < MinUpdateInterval || cfg.Tracker.DefaultUpdateInterval > MaxUpdateInterval {
		return fmt.Errorf("tracker.default_update_interval must be between %d and %d seconds, got %d",
			MinUpdateInterval, MaxUpdateInterval, cfg.Tracker.DefaultUpdateInterval)
	}
	if cfg.Tracker.TickInterval <= 0 {
		return fmt.Errorf("tracker.tick_interval must be positive")
	}
	if cfg.Tracker.MaxTokens < 1 {
		return fmt.Errorf("tracker.max_tokens must be at least 1")
	}
	if cfg.CoinGecko.RequestsPerMin < 1 {
		return fmt.Errorf("coingecko.requests_per_min must be at least 1")
	}
	switch cfg.Storage.Driver {
	case "file", "buntdb":
	default:
		return fmt.Errorf("storage.driver must be file or buntdb, got %q", cfg.Storage.Driver)
	}
	switch cfg.CoinGecko.APITier {
	case "demo", "pro":
	default:
		return fmt.Errorf("coingecko.api_tier must be demo or pro, got %q", cfg.CoinGecko.APITier)
	}
	return nil
}

// ValidateForBot checks what only the long-running bot needs.
func (c *Config) ValidateForBot() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required: set DISCORD_TOKEN or discord.token")
	}
	return nil
}

// StoragePath resolves the guild store location inside the data dir.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	name := "tracked_guilds.json"
	if c.Storage.Driver == "buntdb" {
		name = "tracked_guilds.db"
	}
	return strings.TrimRight(c.App.DataDir, "/") + "/" + name
}
