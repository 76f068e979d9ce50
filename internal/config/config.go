package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// DualRolePair is a configured pair of tokens serving the same economic role.
type DualRolePair struct {
	Members []string `yaml:"members"`
	Default string   `yaml:"default"`
}

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider          string        `yaml:"provider"` // coingecko | mock
		BaseURL           string        `yaml:"base_url"`
		APIKey            string        `yaml:"api_key"`
		VsCurrency        string        `yaml:"vs_currency"`
		UniverseSize      int           `yaml:"universe_size"`
		HistoryDays       int           `yaml:"history_days"`
		RequestsPerMinute int           `yaml:"requests_per_minute"`
		CacheTTL          time.Duration `yaml:"cache_ttl"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"data_source"`
	Schedule struct {
		IngestCron    string `yaml:"ingest_cron"`
		CalculateCron string `yaml:"calculate_cron"`
		RetentionCron string `yaml:"retention_cron"`
	} `yaml:"schedule"`
	Engine struct {
		Workers int `yaml:"workers"`
	} `yaml:"engine"`
	Eligibility struct {
		DualRolePairs []DualRolePair `yaml:"dual_role_pairs"`
	} `yaml:"eligibility"`
	Database struct {
		Driver      string `yaml:"driver"` // memory | sqlite | postgres
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Retention struct {
		Days int `yaml:"days"`
	} `yaml:"retention"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads .env, then the YAML file at path, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env file")
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.DataSource.Provider, "DATA_PROVIDER")
	setString(&c.DataSource.BaseURL, "COINGECKO_BASE_URL")
	setString(&c.DataSource.APIKey, "COINGECKO_API_KEY")
	setInt(&c.DataSource.UniverseSize, "UNIVERSE_SIZE")
	setInt(&c.DataSource.HistoryDays, "HISTORY_DAYS")
	setInt(&c.DataSource.RequestsPerMinute, "REQUESTS_PER_MINUTE")
	setString(&c.Schedule.IngestCron, "CRON_INGEST")
	setString(&c.Schedule.CalculateCron, "CRON_CALCULATE")
	setString(&c.Schedule.RetentionCron, "CRON_RETENTION")
	setInt(&c.Engine.Workers, "ENGINE_WORKERS")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Database.PostgresDSN, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")
	setInt(&c.Retention.Days, "RETENTION_DAYS")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Proxy, "HTTPS_PROXY")
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DataSource.CacheTTL = d
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "coingecko"
	}
	if c.DataSource.VsCurrency == "" {
		c.DataSource.VsCurrency = "usd"
	}
	if c.DataSource.UniverseSize == 0 {
		c.DataSource.UniverseSize = 200
	}
	if c.DataSource.HistoryDays == 0 {
		c.DataSource.HistoryDays = 365
	}
	if c.DataSource.RequestsPerMinute == 0 {
		c.DataSource.RequestsPerMinute = 25
	}
	if c.DataSource.CacheTTL == 0 {
		c.DataSource.CacheTTL = 30 * time.Minute
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 30 * time.Second
	}
	if c.Schedule.IngestCron == "" {
		c.Schedule.IngestCron = "0 15 0 * * *"
	}
	if c.Schedule.CalculateCron == "" {
		c.Schedule.CalculateCron = "0 0 1 * * *"
	}
	if c.Schedule.RetentionCron == "" {
		c.Schedule.RetentionCron = "0 30 2 * * 0"
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4
	}
	if len(c.Eligibility.DualRolePairs) == 0 {
		c.Eligibility.DualRolePairs = []DualRolePair{{Members: []string{"PAXG", "XAUT"}, Default: "PAXG"}}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/band_sentinel.db"
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = 730
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.DataSource.Provider {
	case "coingecko", "mock":
	default:
		return fmt.Errorf("data_source.provider must be coingecko or mock, got %q", c.DataSource.Provider)
	}
	if c.DataSource.UniverseSize <= 0 {
		return fmt.Errorf("data_source.universe_size must be positive")
	}
	// 22 weekly closes need at least 22 weeks of daily history.
	if c.DataSource.HistoryDays < 22*7 {
		return fmt.Errorf("data_source.history_days must be at least %d", 22*7)
	}
	if c.DataSource.RequestsPerMinute < 0 {
		return fmt.Errorf("data_source.requests_per_minute must not be negative")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.ingest_cron":    c.Schedule.IngestCron,
		"schedule.calculate_cron": c.Schedule.CalculateCron,
		"schedule.retention_cron": c.Schedule.RetentionCron,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for sqlite")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory, sqlite or postgres, got %q", c.Database.Driver)
	}

	for i, p := range c.Eligibility.DualRolePairs {
		if len(p.Members) != 2 {
			return fmt.Errorf("eligibility.dual_role_pairs[%d] must have exactly two members", i)
		}
	}

	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// SetupLogging configures the global logrus logger from LogLevel.
func (c *Config) SetupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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
