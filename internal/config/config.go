package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Download   DownloadConfig   `mapstructure:"download"`
	Storage    StorageConfig    `mapstructure:"storage"`
	State      StateConfig      `mapstructure:"state"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string `mapstructure:"token"`
	OwnerID       int64  `mapstructure:"owner_id"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
}

// AgentConfig describes the external downloader bot the relay talks to.
// The agent session is a separate bot account; ChatID is the private chat
// where the scripted conversation takes place.
type AgentConfig struct {
	Token         string `mapstructure:"token"`
	ChatID        int64  `mapstructure:"chat_id"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
}

type DownloadConfig struct {
	DailyLimit   int           `mapstructure:"daily_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
	MediaTimeout time.Duration `mapstructure:"media_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	MinFileSize  int64         `mapstructure:"min_file_size"`
	TempDir      string        `mapstructure:"temp_dir"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type StateConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Set environment variable overrides
	viper.BindEnv("bot.token", "BOT_TOKEN")
	viper.BindEnv("bot.owner_id", "OWNER_ID")
	viper.BindEnv("agent.token", "AGENT_BOT_TOKEN")
	viper.BindEnv("agent.chat_id", "AGENT_CHAT_ID")
	viper.BindEnv("state.redis.addr", "REDIS_ADDR")
	viper.BindEnv("state.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("state.redis.db", "REDIS_DB")
	viper.BindEnv("storage.sqlite.path", "SQLITE_PATH")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in the reference timings of the downloader conversation.
func applyDefaults(cfg *Config) {
	if cfg.Download.DailyLimit == 0 {
		cfg.Download.DailyLimit = 5
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = 2 * time.Minute
	}
	if cfg.Download.ReplyTimeout == 0 {
		cfg.Download.ReplyTimeout = 10 * time.Second
	}
	if cfg.Download.MediaTimeout == 0 {
		cfg.Download.MediaTimeout = 30 * time.Second
	}
	if cfg.Download.MaxAttempts == 0 {
		cfg.Download.MaxAttempts = 3
	}
	if cfg.Download.MinFileSize == 0 {
		cfg.Download.MinFileSize = 1024
	}
	if cfg.Download.TempDir == "" {
		cfg.Download.TempDir = "temp"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "fullsong.db"
	}
	if cfg.Bot.UpdateTimeout == 0 {
		cfg.Bot.UpdateTimeout = 60
	}
	if cfg.Agent.UpdateTimeout == 0 {
		cfg.Agent.UpdateTimeout = 30
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "en"
	}
	if len(cfg.I18n.Languages) == 0 {
		cfg.I18n.Languages = []string{"en", "tr"}
	}
	if cfg.I18n.Directory == "" {
		cfg.I18n.Directory = "configs/i18n"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Agent.Token == "" {
		return fmt.Errorf("agent bot token is required")
	}
	if cfg.Agent.ChatID == 0 {
		return fmt.Errorf("agent chat id is required")
	}
	if cfg.Download.DailyLimit < 0 {
		return fmt.Errorf("daily limit must not be negative")
	}
	return nil
}
