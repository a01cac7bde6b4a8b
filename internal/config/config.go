package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend selects where positions and rebalance settings are read from
const (
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

// Config holds all application configuration
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Backend  string `env:"BACKEND" envDefault:"postgres"`
	Server   ServerConfig
	Database DatabaseConfig
	REST     RESTConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Rent     RentConfig
	Jobs     JobsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `env:"SERVER_PORT" envDefault:"8080"`
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"5432"`
	User         string `env:"DB_USER" envDefault:"postgres"`
	Password     string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName       string `env:"DB_NAME" envDefault:"positions"`
	SSLMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	MigrationDir string `env:"DB_MIGRATION_DIR" envDefault:"db/migrations"`
}

// RESTConfig holds settings for the hosted query/update API
type RESTConfig struct {
	URL     string        `env:"REST_URL"`
	APIKey  string        `env:"REST_API_KEY"`
	Schema  string        `env:"REST_SCHEMA" envDefault:"hf"`
	Timeout time.Duration `env:"REST_TIMEOUT" envDefault:"10s"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers        []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	PositionsTopic string   `env:"KAFKA_POSITIONS_TOPIC" envDefault:"positions-snapshots"`
	RebalanceTopic string   `env:"KAFKA_REBALANCE_TOPIC" envDefault:"rebalance-settings"`
	GroupID        string   `env:"KAFKA_GROUP_ID" envDefault:"positions-dashboard"`
	Enabled        bool     `env:"KAFKA_ENABLED" envDefault:"false"`
}

// RedisConfig holds the shared trade-open-date cache configuration
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TRADE_OPEN_TTL" envDefault:"168h"`
	Enabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
}

// RentConfig tunes the rent calculator
type RentConfig struct {
	PrefetchBatchSize int `env:"RENT_PREFETCH_BATCH_SIZE" envDefault:"10"`
}

// JobsConfig holds background job intervals
type JobsConfig struct {
	PrefetchInterval time.Duration `env:"JOB_PREFETCH_INTERVAL" envDefault:"15m"`
	PrefetchLookback time.Duration `env:"JOB_PREFETCH_LOOKBACK" envDefault:"24h"`
}

// Load reads configuration from environment variables, after loading an optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Backend {
	case BackendPostgres:
	case BackendREST:
		if cfg.REST.URL == "" {
			return nil, fmt.Errorf("REST_URL is required when BACKEND=%s", BackendREST)
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Rent.PrefetchBatchSize <= 0 {
		return nil, fmt.Errorf("RENT_PREFETCH_BATCH_SIZE must be positive, got %d", cfg.Rent.PrefetchBatchSize)
	}

	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}
