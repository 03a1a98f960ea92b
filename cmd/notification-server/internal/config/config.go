// Package config provides configuration management for the notification server.
// It loads settings from environment variables (and an optional .env file)
// with sensible defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/coregx/booknotify"
	"github.com/coregx/booknotify/adapters/kafka"
	"github.com/coregx/booknotify/adapters/relica"
	"github.com/coregx/booknotify/retry"
)

// Config holds all configuration for the notification server.
type Config struct {
	Server    ServerConfig
	Kafka     KafkaConfig
	Retry     RetryConfig
	Processor ProcessorConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8081"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// KafkaConfig holds broker and topic configuration.
type KafkaConfig struct {
	Brokers  []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	GroupID  string   `env:"KAFKA_GROUP_ID" envDefault:"notification-service-group"`
	ClientID string   `env:"KAFKA_CLIENT_ID" envDefault:"notification-service"`
	Version  string   `env:"KAFKA_VERSION" envDefault:"2.8.0"`
	Topic    string   `env:"KAFKA_TOPIC" envDefault:"book-notifications"`
}

// RetryConfig holds the retry stage schedule.
type RetryConfig struct {
	MaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"4"`
	InitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"2s"`
	Multiplier   float64       `env:"RETRY_MULTIPLIER" envDefault:"2.0"`
	MaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10s"`
}

// ProcessorConfig controls the notification processor.
type ProcessorConfig struct {
	// FailureMode is never, always or first-n. Anything but never is for
	// exercising the retry stages and the dead-letter topic.
	FailureMode  string        `env:"PROCESSOR_FAILURE_MODE" envDefault:"never"`
	FailureLimit int           `env:"PROCESSOR_FAILURE_LIMIT" envDefault:"0"`
	SendLatency  time.Duration `env:"PROCESSOR_SEND_LATENCY" envDefault:"0s"`
}

// DatabaseConfig holds database connection configuration. The database
// backs the wishlist (unless Redis does) and, when enabled, dead-letter
// persistence.
type DatabaseConfig struct {
	Driver             string `env:"DB_DRIVER" envDefault:"mysql"` // mysql, postgres, sqlite3
	Host               string `env:"DB_HOST" envDefault:"localhost"`
	Port               int    `env:"DB_PORT" envDefault:"3306"`
	User               string `env:"DB_USER" envDefault:"booknotify"`
	Password           string `env:"DB_PASSWORD"`
	Database           string `env:"DB_NAME" envDefault:"library"`
	Prefix             string `env:"DB_PREFIX" envDefault:"booknotify_"`
	PersistDeadLetters bool   `env:"DLT_PERSIST_ENABLED" envDefault:"false"`
	AutoMigrate        bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

// RedisConfig enables the Redis wishlist when URL is set.
type RedisConfig struct {
	URL            string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load loads configuration from a .env file, if present, and the environment.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func tablePrefix(value any) error {
	prefix, _ := value.(string)
	return relica.ValidateTablePrefix(prefix)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validation.ValidateStruct(&c.Kafka,
		validation.Field(&c.Kafka.Brokers, validation.Required),
		validation.Field(&c.Kafka.GroupID, validation.Required),
		validation.Field(&c.Kafka.Topic, validation.Required),
	); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if _, err := booknotify.ParseFailureMode(c.Processor.FailureMode); err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	if c.WishlistFromDatabase() || c.Database.PersistDeadLetters {
		if err := validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
			validation.Field(&c.Database.Database, validation.Required),
			validation.Field(&c.Database.Prefix, validation.By(tablePrefix)),
		); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Policy returns the retry policy described by the configuration.
func (c *Config) Policy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.Retry.MaxAttempts
	policy.InitialDelay = c.Retry.InitialDelay
	policy.Multiplier = c.Retry.Multiplier
	policy.MaxDelay = c.Retry.MaxDelay
	return policy
}

// KafkaAdapterConfig returns the Kafka adapter configuration.
func (c *Config) KafkaAdapterConfig() kafka.Config {
	return kafka.Config{
		Brokers:  c.Kafka.Brokers,
		GroupID:  c.Kafka.GroupID,
		ClientID: c.Kafka.ClientID,
		Version:  c.Kafka.Version,
	}
}

// WishlistFromDatabase reports whether the wishlist is read from the
// database. Redis takes precedence when configured.
func (c *Config) WishlistFromDatabase() bool {
	return c.Redis.URL == ""
}

// NeedsDatabase reports whether a database connection must be opened.
func (c *Config) NeedsDatabase() bool {
	return c.WishlistFromDatabase() || c.Database.PersistDeadLetters
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}
