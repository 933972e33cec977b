package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Boost    BoostConfig    `mapstructure:"boost"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notifier NotifierConfig `mapstructure:"notifier"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// StripeConfig holds payment gateway settings
type StripeConfig struct {
	Gateway       string `mapstructure:"gateway"` // stripe, mock
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// BoostConfig holds boost queue scheduling and pricing settings
type BoostConfig struct {
	Duration            time.Duration `mapstructure:"duration"`
	Price               float64       `mapstructure:"price"`
	Currency            string        `mapstructure:"currency"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
	ReconcileOnStartup  bool          `mapstructure:"reconcile_on_startup"`
	ReconcileWorkers    int           `mapstructure:"reconcile_workers"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	MaxConflictRetries  int           `mapstructure:"max_conflict_retries"`
	RefundTiers         []RefundTier  `mapstructure:"refund_tiers"`
	DistributedLocking  bool          `mapstructure:"distributed_locking"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
	RefundRetryInterval time.Duration `mapstructure:"refund_retry_interval"`
}

// RefundTier is one row of the refund policy: usage strictly below Below refunds Percent.
type RefundTier struct {
	Below   float64 `mapstructure:"below"`
	Percent int     `mapstructure:"percent"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

// NotifierConfig selects the notification backend
type NotifierConfig struct {
	Backend string `mapstructure:"backend"` // kafka, asynq, noop
	Topic   string `mapstructure:"topic"`
	Queue   string `mapstructure:"queue"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables still apply
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "business-boost")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "business_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "business-boost")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "business-backend")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "business-boost")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Payment gateway defaults
	v.SetDefault("PAYMENT_GATEWAY", "mock")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")

	// Boost defaults
	v.SetDefault("BOOST_DURATION", "24h")
	v.SetDefault("BOOST_PRICE", 29.99)
	v.SetDefault("BOOST_CURRENCY", "usd")
	v.SetDefault("BOOST_RECONCILE_INTERVAL", "1m")
	v.SetDefault("BOOST_RECONCILE_ON_STARTUP", true)
	v.SetDefault("BOOST_RECONCILE_WORKERS", 4)
	v.SetDefault("BOOST_LOCK_TTL", "10s")
	v.SetDefault("BOOST_MAX_CONFLICT_RETRIES", 3)
	v.SetDefault("BOOST_REFUND_TIERS", "0.5:50,0.75:25")
	v.SetDefault("BOOST_DISTRIBUTED_LOCKING", false)
	v.SetDefault("BOOST_IDEMPOTENCY_TTL", "24h")
	v.SetDefault("BOOST_REFUND_RETRY_INTERVAL", "5m")

	// Storage / notifier defaults
	v.SetDefault("STORAGE_DRIVER", "postgres")
	v.SetDefault("NOTIFIER_BACKEND", "noop")
	v.SetDefault("NOTIFIER_TOPIC", "boost.notifications")
	v.SetDefault("NOTIFIER_QUEUE", "notifications")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Payment gateway
	cfg.Stripe.Gateway = v.GetString("PAYMENT_GATEWAY")
	cfg.Stripe.SecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = v.GetString("STRIPE_WEBHOOK_SECRET")

	// Boost
	cfg.Boost.Duration = v.GetDuration("BOOST_DURATION")
	cfg.Boost.Price = v.GetFloat64("BOOST_PRICE")
	cfg.Boost.Currency = v.GetString("BOOST_CURRENCY")
	cfg.Boost.ReconcileInterval = v.GetDuration("BOOST_RECONCILE_INTERVAL")
	cfg.Boost.ReconcileOnStartup = v.GetBool("BOOST_RECONCILE_ON_STARTUP")
	cfg.Boost.ReconcileWorkers = v.GetInt("BOOST_RECONCILE_WORKERS")
	cfg.Boost.LockTTL = v.GetDuration("BOOST_LOCK_TTL")
	cfg.Boost.MaxConflictRetries = v.GetInt("BOOST_MAX_CONFLICT_RETRIES")
	cfg.Boost.DistributedLocking = v.GetBool("BOOST_DISTRIBUTED_LOCKING")
	cfg.Boost.IdempotencyTTL = v.GetDuration("BOOST_IDEMPOTENCY_TTL")
	cfg.Boost.RefundRetryInterval = v.GetDuration("BOOST_REFUND_RETRY_INTERVAL")

	tiers, err := ParseRefundTiers(v.GetString("BOOST_REFUND_TIERS"))
	if err != nil {
		return fmt.Errorf("BOOST_REFUND_TIERS: %w", err)
	}
	cfg.Boost.RefundTiers = tiers

	// Storage / notifier
	cfg.Storage.Driver = v.GetString("STORAGE_DRIVER")
	cfg.Notifier.Backend = v.GetString("NOTIFIER_BACKEND")
	cfg.Notifier.Topic = v.GetString("NOTIFIER_TOPIC")
	cfg.Notifier.Queue = v.GetString("NOTIFIER_QUEUE")

	return nil
}

// ParseRefundTiers parses "0.5:50,0.75:25" into refund tiers.
// Thresholds must be strictly increasing and within (0, 1].
func ParseRefundTiers(raw string) ([]RefundTier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	tiers := make([]RefundTier, 0, len(parts))
	prev := 0.0
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid tier %q, expected below:percent", part)
		}
		below, err := strconv.ParseFloat(strings.TrimSpace(kv[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tier threshold %q: %w", kv[0], err)
		}
		percent, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid tier percent %q: %w", kv[1], err)
		}
		if below <= prev || below > 1 {
			return nil, fmt.Errorf("tier threshold %v out of order or range", below)
		}
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("tier percent %d out of range", percent)
		}
		tiers = append(tiers, RefundTier{Below: below, Percent: percent})
		prev = below
	}
	return tiers, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.App.Environment == "production" && c.JWT.Secret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	if c.Boost.Duration <= 0 {
		return fmt.Errorf("boost duration must be positive")
	}

	if c.Boost.Price <= 0 {
		return fmt.Errorf("boost price must be positive")
	}

	if c.Boost.ReconcileInterval <= 0 {
		return fmt.Errorf("boost reconcile interval must be positive")
	}

	switch c.Stripe.Gateway {
	case "mock":
	case "stripe":
		if c.Stripe.SecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY=stripe")
		}
	default:
		return fmt.Errorf("unknown payment gateway: %s", c.Stripe.Gateway)
	}

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	switch c.Notifier.Backend {
	case "kafka", "asynq", "noop":
	default:
		return fmt.Errorf("unknown notifier backend: %s", c.Notifier.Backend)
	}

	return nil
}

// ValidateDatabase validates database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
