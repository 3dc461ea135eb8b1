package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Quotes     QuotesConfig     `envconfig:"QUOTES"`
	AI         AIConfig         `envconfig:"AI"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Insights   InsightsConfig   `envconfig:"INSIGHTS"`
	Snapshots  SnapshotsConfig  `envconfig:"SNAPSHOTS"`
	Alerts     AlertsConfig     `envconfig:"ALERTS"`
	Health     HealthConfig     `envconfig:"HEALTH"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// DatabaseConfig represents PostgreSQL connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"cryptofolio"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// ClickHouseConfig represents the snapshot store connection parameters
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"true"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"cryptofolio"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// RedisConfig represents quote cache connection parameters
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// QuotesConfig represents quote source parameters
type QuotesConfig struct {
	RefreshInterval time.Duration `envconfig:"QUOTES_REFRESH_INTERVAL" default:"5m"`
	CacheTTL        time.Duration `envconfig:"QUOTES_CACHE_TTL" default:"5m"`
	RequestTimeout  time.Duration `envconfig:"QUOTES_REQUEST_TIMEOUT" default:"10s"`
}

// AIConfig represents the narrative insight generator parameters
type AIConfig struct {
	APIKey  string        `envconfig:"AI_API_KEY" required:"false"`
	Enabled bool          `envconfig:"AI_ENABLED" default:"false"`
	Model   string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
	Locale  string        `envconfig:"AI_LOCALE" default:"en"`
}

// TelegramConfig represents alert notification parameters
type TelegramConfig struct {
	Enabled         bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken        string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID          int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnInsights bool   `envconfig:"TELEGRAM_ALERT_ON_INSIGHTS" default:"true"`
}

// InsightsConfig represents detector thresholds and the regeneration cadence
type InsightsConfig struct {
	ConcentrationThreshold      float64       `envconfig:"INSIGHTS_CONCENTRATION_THRESHOLD" default:"0.30"`
	ConcentrationTarget         float64       `envconfig:"INSIGHTS_CONCENTRATION_TARGET" default:"0.25"`
	RebalanceDeviationThreshold float64       `envconfig:"INSIGHTS_REBALANCE_DEVIATION" default:"0.15"`
	SevereDropThreshold         float64       `envconfig:"INSIGHTS_SEVERE_DROP" default:"-10"`
	OutperformMargin            float64       `envconfig:"INSIGHTS_OUTPERFORM_MARGIN" default:"5"`
	BenchmarkAssetID            string        `envconfig:"INSIGHTS_BENCHMARK_ASSET" default:"bitcoin"`
	BenchmarkFallbackChange     float64       `envconfig:"INSIGHTS_BENCHMARK_FALLBACK" default:"2.4"`
	MinTemporalTransactions     int           `envconfig:"INSIGHTS_MIN_TEMPORAL_TRANSACTIONS" default:"5"`
	RegenerateInterval          time.Duration `envconfig:"INSIGHTS_REGENERATE_INTERVAL" default:"1h"`
}

// SnapshotsConfig represents price snapshot recording parameters
type SnapshotsConfig struct {
	Interval time.Duration `envconfig:"SNAPSHOTS_INTERVAL" default:"1h"`
}

// AlertsConfig represents price alert evaluation parameters
type AlertsConfig struct {
	Interval time.Duration `envconfig:"ALERTS_INTERVAL" default:"1m"`
}

// HealthConfig represents health probe server parameters
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8080"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Insights.ConcentrationThreshold <= 0 || c.Insights.ConcentrationThreshold >= 1 {
		return fmt.Errorf("concentration threshold must be between 0 and 1")
	}
	if c.Insights.ConcentrationTarget <= 0 || c.Insights.ConcentrationTarget >= c.Insights.ConcentrationThreshold {
		return fmt.Errorf("concentration target must be positive and below the threshold")
	}
	if c.Insights.RebalanceDeviationThreshold <= 0 {
		return fmt.Errorf("rebalance deviation threshold must be positive")
	}
	if c.Insights.BenchmarkAssetID == "" {
		return fmt.Errorf("benchmark asset id is required")
	}

	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("AI narrative generator enabled but AI_API_KEY is not set")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram enabled but bot token is not set")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram enabled but chat_id is not set")
		}
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
