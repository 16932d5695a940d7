package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
)

// Config holds all configuration for ekaya-bucketer.
// Values come from config.yaml with environment variable overrides.
// Secrets (database password, redis password, AI keys) are env-only.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""`
	Version  string `yaml:"-"`

	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Storage        StorageConfig        `yaml:"storage"`
	AI             AIConfig             `yaml:"ai"`
	Classification ClassificationConfig `yaml:"classification"`
}

// DatabaseConfig selects and configures the metadata store.
// Type "postgres" uses the PG* fields; "sqlite" uses SQLitePath.
type DatabaseConfig struct {
	Type           string `yaml:"type" env:"DB_TYPE" env-default:"postgres"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"bucketer.db"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_bucketer"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig configures the job queue and the progress channel.
type RedisConfig struct {
	Host            string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password        string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB              int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	QueueKey        string `yaml:"queue_key" env:"REDIS_QUEUE_KEY" env-default:"bucketer:classification"`
	ProgressChannel string `yaml:"progress_channel" env:"REDIS_PROGRESS_CHANNEL" env-default:"bucketer:progress"`
	// Disabled runs jobs on the in-process work queue instead of Redis.
	Disabled bool `yaml:"disabled" env:"REDIS_DISABLED" env-default:"false"`
}

// StorageConfig selects where uploaded workbooks are kept.
type StorageConfig struct {
	Backend   string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"local"`
	LocalDir  string `yaml:"local_dir" env:"STORAGE_LOCAL_DIR" env-default:"uploads"`
	GCSBucket string `yaml:"gcs_bucket" env:"STORAGE_GCS_BUCKET" env-default:""`
	GCSPrefix string `yaml:"gcs_prefix" env:"STORAGE_GCS_PREFIX" env-default:"workbooks"`
}

// AIConfig holds provider credentials and model names.
type AIConfig struct {
	DefaultProvider string `yaml:"default_provider" env:"AI_DEFAULT_PROVIDER" env-default:"openai"`

	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `yaml:"-" env:"GEMINI_API_KEY"`

	OpenAIModel    string `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"gpt-4o"`
	OpenAIEndpoint string `yaml:"openai_endpoint" env:"OPENAI_ENDPOINT" env-default:"https://api.openai.com/v1"`
	ClaudeModel    string `yaml:"claude_model" env:"CLAUDE_MODEL" env-default:"claude-3-5-sonnet-20240620"`
	ClaudeMaxToken int    `yaml:"claude_max_tokens" env:"CLAUDE_MAX_TOKENS" env-default:"4000"`
	GeminiModel    string `yaml:"gemini_model" env:"GEMINI_MODEL" env-default:"gemini-1.5-flash"`
}

// ClassificationConfig tunes the bucketing pipeline.
type ClassificationConfig struct {
	BatchSize         int           `yaml:"batch_size" env:"CLASSIFY_BATCH_SIZE" env-default:"50"`
	MaxAttempts       int           `yaml:"max_attempts" env:"CLASSIFY_MAX_ATTEMPTS" env-default:"3"`
	RetryDelay        time.Duration `yaml:"retry_delay" env:"CLASSIFY_RETRY_DELAY" env-default:"2s"`
	ProgressStride    int           `yaml:"progress_stride" env:"CLASSIFY_PROGRESS_STRIDE" env-default:"5000"`
	UniqueValueLimit  int           `yaml:"unique_value_limit" env:"CLASSIFY_UNIQUE_VALUE_LIMIT" env-default:"200000"`
	SampleRows        int           `yaml:"sample_rows" env:"CLASSIFY_SAMPLE_ROWS" env-default:"1000"`
	SampleTop         int           `yaml:"sample_top" env:"CLASSIFY_SAMPLE_TOP" env-default:"25"`
	ProposalSamples   int           `yaml:"proposal_samples" env:"CLASSIFY_PROPOSAL_SAMPLES" env-default:"500"`
	BucketRowsLimit   int           `yaml:"bucket_rows_limit" env:"CLASSIFY_BUCKET_ROWS_LIMIT" env-default:"50"`
	WorkerConcurrency int           `yaml:"worker_concurrency" env:"CLASSIFY_WORKER_CONCURRENCY" env-default:"2"`
}

// Load reads config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path. A missing file falls back to
// environment variables and defaults only.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks enumerated fields and numeric ranges.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.type must be postgres or sqlite, got %q", c.Database.Type)
	}

	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or gcs, got %q", c.Storage.Backend)
	}

	if _, ok := models.ParseAIProvider(c.AI.DefaultProvider); !ok {
		return fmt.Errorf("ai.default_provider %q is not supported", c.AI.DefaultProvider)
	}

	cl := c.Classification
	if cl.BatchSize <= 0 {
		return fmt.Errorf("classification.batch_size must be positive")
	}
	if cl.MaxAttempts <= 0 {
		return fmt.Errorf("classification.max_attempts must be positive")
	}
	if cl.RetryDelay < 0 {
		return fmt.Errorf("classification.retry_delay must not be negative")
	}
	if cl.ProgressStride <= 0 {
		return fmt.Errorf("classification.progress_stride must be positive")
	}
	if cl.WorkerConcurrency <= 0 {
		return fmt.Errorf("classification.worker_concurrency must be positive")
	}
	return nil
}

// DefaultAIProvider returns the parsed default AI provider.
func (c *AIConfig) DefaultAIProvider() models.AIProvider {
	p, _ := models.ParseAIProvider(c.DefaultProvider)
	return p
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the host:port of the Redis server.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
}
