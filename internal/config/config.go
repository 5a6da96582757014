package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/matthewtrundle/PremierATX-sub004/pkg/config"
	"github.com/matthewtrundle/PremierATX-sub004/pkg/database"
)

// Config holds all configuration for the catalog service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CATALOG_HTTP_PORT" envDefault:"8080"`

	// Upstream sync endpoint serving /sync/products
	SyncBaseURL string `env:"SYNC_BASE_URL" envDefault:"http://localhost:8090"`

	// Postgres
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Redis snapshot tier; disabled when RedisEnabled is false
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"catalog-service"`

	// Cache tuning
	CollectionTTL     time.Duration `env:"COLLECTION_CACHE_TTL" envDefault:"5m"`
	SnapshotFreshFor  time.Duration `env:"SNAPSHOT_FRESH_FOR" envDefault:"15m"`
	IndexRefreshEvery time.Duration `env:"INDEX_REFRESH_INTERVAL" envDefault:"30m"`
	MetricsTrimEvery  time.Duration `env:"METRICS_TRIM_INTERVAL" envDefault:"5m"`
	ResultCacheSize   int           `env:"SEARCH_RESULT_CACHE_SIZE" envDefault:"1000"`

	// Collections warmed at startup
	PreloadHandles []string `env:"PRELOAD_COLLECTIONS" envDefault:"" envSeparator:","`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingSample   float64 `env:"TRACING_SAMPLE_RATE" envDefault:"0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	cfg.PreloadHandles = compactHandles(cfg.PreloadHandles)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// compactHandles trims whitespace and drops empty entries left over from
// splitting an unset or trailing-comma list.
func compactHandles(handles []string) []string {
	out := handles[:0]
	for _, h := range handles {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SyncBaseURL == "" {
		return fmt.Errorf("sync base URL is required")
	}
	if c.CollectionTTL <= 0 {
		return fmt.Errorf("collection cache TTL must be positive, got %s", c.CollectionTTL)
	}
	if c.IndexRefreshEvery <= 0 {
		return fmt.Errorf("index refresh interval must be positive, got %s", c.IndexRefreshEvery)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	return nil
}

// Postgres returns the pool configuration for the snapshot database.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	return pg
}

// Redis returns the snapshot tier connection configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
