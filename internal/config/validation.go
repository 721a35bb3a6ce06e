package config

import (
	"fmt"
	"slices"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.Dimensions < 1 || c.Dimensions > 3072 {
		return fmt.Errorf("%w: must be between 1 and 3072, got %d", ErrInvalidDimensions, c.Dimensions)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed_batch_size must be positive, got %d", ErrInvalidBatchSize, c.EmbedBatchSize)
	}
	if c.InsertBatchSize < 1 {
		return fmt.Errorf("%w: insert_batch_size must be positive, got %d", ErrInvalidBatchSize, c.InsertBatchSize)
	}
	if c.BatchDelayMS < 0 {
		return fmt.Errorf("%w: batch_delay_ms cannot be negative, got %d", ErrInvalidBatchSize, c.BatchDelayMS)
	}

	if c.RetrievalLimit < 1 {
		return fmt.Errorf("%w: retrieval_limit must be positive, got %d", ErrInvalidRetrieval, c.RetrievalLimit)
	}
	if c.RetrievalThreshold < 0 || c.RetrievalThreshold >= 1 {
		return fmt.Errorf("%w: retrieval_threshold must be in [0, 1), got %v", ErrInvalidRetrieval, c.RetrievalThreshold)
	}
	return nil
}

// BatchDelay returns the configured pause between embedding batches.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}
