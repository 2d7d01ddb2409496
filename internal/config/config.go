package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Supported store drivers and rate-limit backends.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	RateLimitBackendStore = "store"
	RateLimitBackendRedis = "redis"
)

// Config aggregates runtime configuration for the service.
//
// Section tags set the variable prefix; leaf fields derive their names with
// split_words (APP_REQUEST_TIMEOUT_SECONDS, SQLITE_PATH, ...). Leaves carry no
// envconfig tag because envconfig falls back to a tag's bare name, which would
// read unrelated variables such as PATH or HOST.
type Config struct {
	App          AppConfig          `yaml:"app"          envconfig:"APP"`
	Store        StoreConfig        `yaml:"store"        envconfig:"STORE"`
	Postgres     PostgresConfig     `yaml:"postgres"     envconfig:"POSTGRES"`
	SQLite       SQLiteConfig       `yaml:"sqlite"       envconfig:"SQLITE"`
	Redis        RedisConfig        `yaml:"redis"        envconfig:"REDIS"`
	Logger       LoggerConfig       `yaml:"logger"       envconfig:"LOG"`
	Auth         AuthConfig         `yaml:"auth"         envconfig:"AUTH"`
	RateLimit    RateLimitConfig    `yaml:"rateLimit"    envconfig:"RATE_LIMIT"`
	Tickets      TicketsConfig      `yaml:"tickets"      envconfig:"TICKETS"`
	Notification NotificationConfig `yaml:"notification" envconfig:"NOTIFY"`
	Tracing      TracingConfig      `yaml:"tracing"      envconfig:"TRACING"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"                  split_words:"true"`
	Env                   string `yaml:"env"                   split_words:"true"`
	Host                  string `yaml:"host"                  split_words:"true"`
	Port                  string `yaml:"port"                  split_words:"true"`
	Version               string `yaml:"version"               split_words:"true"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds" split_words:"true"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver           string        `yaml:"driver"           split_words:"true"`
	OperationTimeout time.Duration `yaml:"operationTimeout" split_words:"true"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN                string `yaml:"dsn"                split_words:"true"`
	MaxConns           int32  `yaml:"maxConns"           split_words:"true"`
	MinConns           int32  `yaml:"minConns"           split_words:"true"`
	RunMigrations      bool   `yaml:"runMigrations"      split_words:"true"`
	ConnMaxIdleSeconds int32  `yaml:"connMaxIdleSeconds" split_words:"true"`
	ConnMaxLifeSeconds int32  `yaml:"connMaxLifeSeconds" split_words:"true"`
}

// SQLiteConfig configures the embedded store. An empty Path keeps the database in memory.
type SQLiteConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"     split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DB       int    `yaml:"db"       split_words:"true"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level" split_words:"true"`
}

// AuthConfig defines how the command router authenticates platform adapters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwtSecret"             split_words:"true"`
	AccessTokenTTLMinutes int    `yaml:"accessTokenTTLMinutes" split_words:"true"`
}

// RateLimitPolicy is a limit per fixed window.
type RateLimitPolicy struct {
	Limit  uint32        `yaml:"limit"  split_words:"true"`
	Window time.Duration `yaml:"window" split_words:"true"`
}

// RateLimitConfig holds per-action policies.
type RateLimitConfig struct {
	Backend      string          `yaml:"backend"      split_words:"true"`
	Command      RateLimitPolicy `yaml:"command"      envconfig:"COMMAND"`
	TicketCreate RateLimitPolicy `yaml:"ticketCreate" envconfig:"TICKET_CREATE"`
	Button       RateLimitPolicy `yaml:"button"       envconfig:"BUTTON"`
}

// TicketsConfig holds workflow limits and community fallbacks.
type TicketsConfig struct {
	MaxOpenPerUser           int    `yaml:"maxOpenPerUser"           split_words:"true"`
	DefaultCategory          string `yaml:"defaultCategory"          split_words:"true"`
	DefaultOnboardingChannel string `yaml:"defaultOnboardingChannel" split_words:"true"`
}

// NotificationConfig controls event delivery.
type NotificationConfig struct {
	QueueSize     int    `yaml:"queueSize"     split_words:"true"`
	ChannelPrefix string `yaml:"channelPrefix" split_words:"true"`
	PublishRedis  bool   `yaml:"publishRedis"  split_words:"true"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"      split_words:"true"`
	Exporter     string  `yaml:"exporter"     split_words:"true"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" split_words:"true"`
	SamplerRatio float64 `yaml:"samplerRatio" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticketflow",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Store: StoreConfig{
			Driver:           StoreDriverPostgres,
			OperationTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxConns:           10,
			MinConns:           2,
			RunMigrations:      true,
			ConnMaxIdleSeconds: 30,
			ConnMaxLifeSeconds: 300,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
		},
		RateLimit: RateLimitConfig{
			Backend:      RateLimitBackendStore,
			Command:      RateLimitPolicy{Limit: 5, Window: 60 * time.Second},
			TicketCreate: RateLimitPolicy{Limit: 3, Window: 300 * time.Second},
			Button:       RateLimitPolicy{Limit: 30, Window: 60 * time.Second},
		},
		Tickets: TicketsConfig{
			MaxOpenPerUser: 2,
		},
		Notification: NotificationConfig{
			QueueSize:     256,
			ChannelPrefix: "ticketflow:events",
		},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			SamplerRatio: 1,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file, a .env file and the environment,
// in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q (must be %q or %q)", c.Store.Driver, StoreDriverPostgres, StoreDriverSQLite)
	}
	switch c.RateLimit.Backend {
	case RateLimitBackendStore, RateLimitBackendRedis:
	default:
		return fmt.Errorf("invalid RATE_LIMIT_BACKEND %q (must be %q or %q)", c.RateLimit.Backend, RateLimitBackendStore, RateLimitBackendRedis)
	}
	for name, p := range map[string]RateLimitPolicy{
		"command":       c.RateLimit.Command,
		"ticket_create": c.RateLimit.TicketCreate,
		"button":        c.RateLimit.Button,
	} {
		if p.Limit == 0 || p.Window <= 0 {
			return fmt.Errorf("invalid %s rate limit: limit and window must be positive", name)
		}
	}
	if c.Tickets.MaxOpenPerUser < 1 {
		return fmt.Errorf("invalid TICKETS_MAX_OPEN_PER_USER %d", c.Tickets.MaxOpenPerUser)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
