// Package config loads the daemon and bulk loader configuration from YAML
// with SP_* environment overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

type Config struct {
	Server   ServerConfig          `yaml:"server"`
	Indexer  IndexerConfig         `yaml:"indexer"`
	Search   SearchConfig          `yaml:"search"`
	Schema   []schema.FieldMapping `yaml:"schema"`
	Postgres PostgresConfig        `yaml:"postgres"`
	Kafka    KafkaConfig           `yaml:"kafka"`
	Redis    RedisConfig           `yaml:"redis"`
	Logging  LoggingConfig         `yaml:"logging"`
	Metrics  MetricsConfig         `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// WriteRateLimit caps mutating requests per client per RateWindow. Zero
	// disables the limit.
	WriteRateLimit int           `yaml:"writeRateLimit"`
	RateWindow     time.Duration `yaml:"rateWindow"`
}

// IndexerConfig locates the index and controls when pending documents are
// committed.
type IndexerConfig struct {
	DataDir        string                 `yaml:"dataDir"`
	Analyzer       string                 `yaml:"analyzer"`
	Compression    string                 `yaml:"compression"`
	CommitInterval time.Duration          `yaml:"commitInterval"`
	MaxPendingDocs int                    `yaml:"maxPendingDocs"`
	Retry          resilience.RetryConfig `yaml:"retry"`
}

type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxLimit     int           `yaml:"maxLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PostgresConfig is the source the bulk loader reads documents from.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	Table           string        `yaml:"table"`
	IDColumn        string        `yaml:"idColumn"`
	BatchSize       int           `yaml:"batchSize"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexCommitted string `yaml:"indexCommitted"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// Breaker guards cache calls so an unreachable Redis stops adding
	// latency to searches.
	Breaker resilience.BreakerConfig `yaml:"breaker"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads the YAML file at path, when given, over the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxLimit %d is below search.defaultLimit %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Indexer.MaxPendingDocs < 0 {
		return fmt.Errorf("indexer.maxPendingDocs must not be negative")
	}
	if c.Server.WriteRateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rateWindow must be positive when writeRateLimit is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	if len(c.Schema) > 0 {
		if _, err := schema.New(c.Schema); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateWindow:      time.Minute,
		},
		Indexer: IndexerConfig{
			DataDir:        "./data/index",
			Analyzer:       "standard",
			Compression:    "zstd",
			CommitInterval: 5 * time.Second,
			MaxPendingDocs: 10000,
			Retry: resilience.RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2,
			},
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     1000,
			Timeout:      2 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "embedsearch",
			User:            "embedsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			Table:           "documents",
			IDColumn:        "id",
			BatchSize:       500,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "embedsearch-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexCommitted: "index.committed",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* variables over the file settings.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setInt("SP_SERVER_WRITE_RATE_LIMIT", &cfg.Server.WriteRateLimit)
	setString("SP_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setString("SP_INDEXER_ANALYZER", &cfg.Indexer.Analyzer)
	setString("SP_INDEXER_COMPRESSION", &cfg.Indexer.Compression)
	setDuration("SP_INDEXER_COMMIT_INTERVAL", &cfg.Indexer.CommitInterval)
	setInt("SP_INDEXER_MAX_PENDING_DOCS", &cfg.Indexer.MaxPendingDocs)
	setInt("SP_SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	setInt("SP_SEARCH_MAX_LIMIT", &cfg.Search.MaxLimit)
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setString("SP_POSTGRES_TABLE", &cfg.Postgres.Table)
	setBool("SP_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("SP_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("SP_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("SP_METRICS_PORT", &cfg.Metrics.Port)
}
