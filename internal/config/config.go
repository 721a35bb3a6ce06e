// Package config loads application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DARASA_* plus OPENAI_API_KEY and DATABASE_URL)
//  2. Config file (~/.darasa/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sensitive values (API key, database password) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the embedding API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimensions indicates the embedding dimension count is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBatchSize indicates a batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidRetrieval indicates the retrieval limit or threshold is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameters")
)

// Config stores application configuration.
type Config struct {
	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never log
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Embedding provider configuration
	OpenAIAPIKey  string `mapstructure:"openai_api_key"` // SENSITIVE: never log
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	EmbedderModel string `mapstructure:"embedder_model"`
	Dimensions    int    `mapstructure:"dimensions"`

	// Ingestion configuration
	ChunkSize       int `mapstructure:"chunk_size"`
	ChunkOverlap    int `mapstructure:"chunk_overlap"`
	EmbedBatchSize  int `mapstructure:"embed_batch_size"`
	InsertBatchSize int `mapstructure:"insert_batch_size"`
	BatchDelayMS    int `mapstructure:"batch_delay_ms"`

	// Retrieval configuration
	RetrievalLimit     int     `mapstructure:"retrieval_limit"`
	RetrievalThreshold float64 `mapstructure:"retrieval_threshold"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(home, ".darasa"))
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* keys.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "darasa")
	v.SetDefault("postgres_password", "darasa_dev_password")
	v.SetDefault("postgres_db_name", "darasa")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Embedding defaults
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("dimensions", 1536)

	// Ingestion defaults
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("embed_batch_size", 50)
	v.SetDefault("insert_batch_size", 100)
	v.SetDefault("batch_delay_ms", 1500)

	// Retrieval defaults
	v.SetDefault("retrieval_limit", 6)
	v.SetDefault("retrieval_threshold", 0.25)
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("openai_base_url", "OPENAI_BASE_URL")

	mustBind("postgres_host", "DARASA_POSTGRES_HOST")
	mustBind("postgres_port", "DARASA_POSTGRES_PORT")
	mustBind("postgres_user", "DARASA_POSTGRES_USER")
	mustBind("postgres_password", "DARASA_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "DARASA_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "DARASA_POSTGRES_SSL_MODE")

	mustBind("embedder_model", "DARASA_EMBEDDER_MODEL")
	mustBind("dimensions", "DARASA_DIMENSIONS")

	mustBind("chunk_size", "DARASA_CHUNK_SIZE")
	mustBind("chunk_overlap", "DARASA_CHUNK_OVERLAP")
	mustBind("embed_batch_size", "DARASA_EMBED_BATCH_SIZE")
	mustBind("insert_batch_size", "DARASA_INSERT_BATCH_SIZE")
	mustBind("batch_delay_ms", "DARASA_BATCH_DELAY_MS")

	mustBind("retrieval_limit", "DARASA_RETRIEVAL_LIMIT")
	mustBind("retrieval_threshold", "DARASA_RETRIEVAL_THRESHOLD")
}
