// Package config loads application configuration from YAML files with
// environment-variable overrides. Every subsystem (HTTP server, PostgreSQL,
// Kafka, Redis, indexer, search, relevance feedback) has a typed section.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the number of
// requests each client may make per RateWindow; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters. The judgment store
// is disabled when Enabled is false.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	FromOldest    bool        `yaml:"fromOldest"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
	Reformulations  string `yaml:"reformulations"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the index engine: where segments live, when the
// memory index is flushed, and which fields keep per-document term vectors.
type IndexerConfig struct {
	DataDir          string        `yaml:"dataDir"`
	SegmentMaxSize   int64         `yaml:"segmentMaxSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	TermVectorFields []string      `yaml:"termVectorFields"`
	SecondaryIDField string        `yaml:"secondaryIdField"`
	RPCPort          int           `yaml:"rpcPort"`
}

// SearchConfig controls first-pass query execution. IndexAddr selects a
// remote indexer; when empty the searcher opens the index in-process.
type SearchConfig struct {
	Field        string        `yaml:"field"`
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	Timeout      time.Duration `yaml:"timeout"`
	IndexAddr    string        `yaml:"indexAddr"`
	RPCTimeout   time.Duration `yaml:"rpcTimeout"`
}

// FeedbackConfig holds the relevance feedback options and the free
// parameters of each estimator.
type FeedbackConfig struct {
	Model                string  `yaml:"model"`
	Field                string  `yaml:"field"`
	FbTerms              int     `yaml:"fbTerms"`
	FbDocs               int     `yaml:"fbDocs"`
	OriginalQueryWeight  float64 `yaml:"originalQueryWeight"`
	OutputQuery          bool    `yaml:"outputQuery"`
	RemoveStopwords      bool    `yaml:"removeStopwords"`
	PruneDocTerms        bool    `yaml:"pruneDocTerms"`
	PruneModel           bool    `yaml:"pruneModel"`
	Normalize            bool    `yaml:"normalize"`
	ShortText            bool    `yaml:"shortText"`
	TieBreak             string  `yaml:"tieBreak"`
	RestrictToCandidates bool    `yaml:"restrictToCandidates"`
	Workers              int     `yaml:"workers"`

	LogLogistic LogLogisticConfig `yaml:"logLogistic"`
	Rocchio     RocchioConfig     `yaml:"rocchio"`
	Distill     DistillConfig     `yaml:"distill"`
}

// LogLogisticConfig holds the DFR smoothing parameter.
type LogLogisticConfig struct {
	C float64 `yaml:"c"`
}

// RocchioConfig holds the query, relevant and non-relevant weights.
type RocchioConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Gamma float64 `yaml:"gamma"`
}

// DistillConfig holds the EM mixture weights and iteration count.
type DistillConfig struct {
	NonRelevantWeight float64 `yaml:"nonRelevantWeight"`
	CollectionWeight  float64 `yaml:"collectionWeight"`
	Iterations        int     `yaml:"iterations"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
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

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateWindow:      time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "relevancefeedback",
			User:            "relevancefeedback",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "relevancefeedback-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				CacheInvalidate: "cache-invalidate",
				Reformulations:  "query-reformulations",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:          "data/index",
			SegmentMaxSize:   64 << 20,
			FlushInterval:    30 * time.Second,
			TermVectorFields: []string{"contents"},
			RPCPort:          9100,
		},
		Search: SearchConfig{
			Field:        "contents",
			MaxResults:   1000,
			DefaultLimit: 10,
			Timeout:      10 * time.Second,
			RPCTimeout:   2 * time.Second,
		},
		Feedback: FeedbackConfig{
			Model:               "rm3",
			Field:               "contents",
			FbTerms:             10,
			FbDocs:              10,
			OriginalQueryWeight: 0.5,
			RemoveStopwords:     true,
			TieBreak:            "docid",
			Workers:             4,
			LogLogistic:         LogLogisticConfig{C: 0.2},
			Rocchio:             RocchioConfig{Alpha: 1.0, Beta: 0.85, Gamma: 0.0},
			Distill: DistillConfig{
				NonRelevantWeight: 0.2,
				CollectionWeight:  0.1,
				Iterations:        100,
			},
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

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	f := c.Feedback
	if f.FbTerms <= 0 {
		errs = append(errs, fmt.Errorf("feedback.fbTerms must be positive, got %d", f.FbTerms))
	}
	if f.FbDocs <= 0 {
		errs = append(errs, fmt.Errorf("feedback.fbDocs must be positive, got %d", f.FbDocs))
	}
	if f.OriginalQueryWeight < 0 || f.OriginalQueryWeight > 1 {
		errs = append(errs, fmt.Errorf("feedback.originalQueryWeight must be in [0,1], got %g", f.OriginalQueryWeight))
	}
	if f.Field == "" {
		errs = append(errs, errors.New("feedback.field is required"))
	}
	switch f.TieBreak {
	case "", "arbitrary", "docid", "secondary":
	default:
		errs = append(errs, fmt.Errorf("feedback.tieBreak %q is not one of arbitrary, docid, secondary", f.TieBreak))
	}
	if d := f.Distill; d.NonRelevantWeight < 0 || d.CollectionWeight < 0 || d.NonRelevantWeight+d.CollectionWeight >= 1 {
		errs = append(errs, fmt.Errorf("feedback.distill mixture weights %g/%g leave no relevance mass", d.NonRelevantWeight, d.CollectionWeight))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateWindow <= 0) {
		errs = append(errs, fmt.Errorf("server rate limit invalid: %d per %v", c.Server.RateLimit, c.Server.RateWindow))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search limits invalid: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxResults))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setFloat := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setInt("SP_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)

	setBool("SP_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	setBool("SP_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	setBool("SP_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)

	setString("SP_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setInt("SP_INDEXER_RPC_PORT", &cfg.Indexer.RPCPort)
	setString("SP_SEARCH_INDEX_ADDR", &cfg.Search.IndexAddr)

	setString("SP_FEEDBACK_MODEL", &cfg.Feedback.Model)
	setString("SP_FEEDBACK_FIELD", &cfg.Feedback.Field)
	setInt("SP_FEEDBACK_FB_TERMS", &cfg.Feedback.FbTerms)
	setInt("SP_FEEDBACK_FB_DOCS", &cfg.Feedback.FbDocs)
	setFloat("SP_FEEDBACK_ORIGINAL_QUERY_WEIGHT", &cfg.Feedback.OriginalQueryWeight)
	setBool("SP_FEEDBACK_OUTPUT_QUERY", &cfg.Feedback.OutputQuery)
	setBool("SP_FEEDBACK_REMOVE_STOPWORDS", &cfg.Feedback.RemoveStopwords)
	setBool("SP_FEEDBACK_SHORT_TEXT", &cfg.Feedback.ShortText)
	setString("SP_FEEDBACK_TIE_BREAK", &cfg.Feedback.TieBreak)

	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)

	setBool("SP_TRACING_ENABLED", &cfg.Tracing.Enabled)
	setFloat("SP_TRACING_SAMPLE_RATE", &cfg.Tracing.SampleRate)
	setBool("SP_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("SP_METRICS_PORT", &cfg.Metrics.Port)
}
