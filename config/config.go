package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Transfer  TransferConfig  `mapstructure:"transfer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the ledger store implementation.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig controls admission in front of the account and transaction routes.
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Backend        string        `mapstructure:"backend"` // memory, redis
	Refill         string        `mapstructure:"refill"`  // interval, greedy (memory backend)
	Capacity       int           `mapstructure:"capacity"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
	Paths          []string      `mapstructure:"paths"`
	// KeySource identifies callers: ip, or header (X-API-Key, trusted only
	// behind an authenticating gateway).
	KeySource string `mapstructure:"key_source"`
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type TransferConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	PendingTimeout  time.Duration `mapstructure:"pending_timeout"`
}

type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	SweepSchedule    string `mapstructure:"sweep_schedule"`
	RecoverySchedule string `mapstructure:"recovery_schedule"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Async        bool          `mapstructure:"async"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Workers int  `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: BLG_ (Banking LedGer).
// Nested keys use underscore: BLG_DATABASE_HOST, BLG_RATE_LIMIT_CAPACITY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "banking_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.migrations_path", "migrations/postgres")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.refill", "interval")
	v.SetDefault("rate_limit.capacity", 100)
	v.SetDefault("rate_limit.refill_interval", "1m")
	v.SetDefault("rate_limit.paths", []string{"/api/accounts/**", "/api/transactions/**"})
	v.SetDefault("rate_limit.key_source", "ip")
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"Origin", "Content-Type", "Idempotency-Key", "X-Request-ID", "X-API-Key"})
	v.SetDefault("cors.expose_headers", []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", "12h")
	v.SetDefault("transfer.max_retries", 3)
	v.SetDefault("transfer.retry_backoff", "20ms")
	v.SetDefault("transfer.finalize_timeout", "5s")
	v.SetDefault("transfer.idempotency_ttl", "24h")
	v.SetDefault("transfer.pending_timeout", "5m")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep_schedule", "@every 1m")
	v.SetDefault("scheduler.recovery_schedule", "@every 5m")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ledger.transfers")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.workers", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// BLG_RATE_LIMIT_CAPACITY -> rate_limit.capacity
	v.SetEnvPrefix("BLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file is fine, env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be postgres or memory", c.Storage.Driver)
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("rate_limit.backend redis requires redis.enabled")
			}
		default:
			return fmt.Errorf("invalid rate_limit.backend %q: must be memory or redis", c.RateLimit.Backend)
		}
		switch c.RateLimit.Refill {
		case "interval", "greedy":
		default:
			return fmt.Errorf("invalid rate_limit.refill %q: must be interval or greedy", c.RateLimit.Refill)
		}
		if c.RateLimit.Capacity <= 0 {
			return fmt.Errorf("rate_limit.capacity must be positive")
		}
		if c.RateLimit.RefillInterval <= 0 {
			return fmt.Errorf("rate_limit.refill_interval must be positive")
		}
	}
	switch c.RateLimit.KeySource {
	case "ip", "header":
	default:
		return fmt.Errorf("invalid rate_limit.key_source %q: must be ip or header", c.RateLimit.KeySource)
	}

	if c.CORS.Enabled {
		if err := c.CORS.validate(); err != nil {
			return err
		}
	}

	if c.Transfer.MaxRetries < 1 {
		return fmt.Errorf("transfer.max_retries must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty when kafka is enabled")
	}
	return nil
}

func (c CORSConfig) validate() error {
	if len(c.AllowOrigins) == 0 {
		return fmt.Errorf("cors.allow_origins must not be empty when cors is enabled")
	}
	for _, origin := range c.AllowOrigins {
		if origin == "*" {
			if len(c.AllowOrigins) > 1 {
				return fmt.Errorf("cors.allow_origins: \"*\" cannot be combined with other origins")
			}
			if c.AllowCredentials {
				return fmt.Errorf("cors.allow_credentials cannot be used with a wildcard origin")
			}
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid cors origin %q: must start with http:// or https://", origin)
		}
	}
	return nil
}
