package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and fails fast with a sentinel
// error that callers can match with errors.Is.
//
// Note: an empty GeminiAPIKey is valid. Without credentials the pipeline runs
// degraded: chunks are stored without vectors, retrieval is text-only, and
// estimation uses the deterministic fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GenerationModel) == "" {
		return fmt.Errorf("%w: generation_model must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidModelName)
	}

	if c.EmbedTimeoutMS < 100 || c.EmbedTimeoutMS > 120000 {
		return fmt.Errorf("%w: embed_timeout_ms must be between 100 and 120000, got %d", ErrInvalidTimeout, c.EmbedTimeoutMS)
	}
	if c.GenerateTimeoutMS < 100 || c.GenerateTimeoutMS > 300000 {
		return fmt.Errorf("%w: generate_timeout_ms must be between 100 and 300000, got %d", ErrInvalidTimeout, c.GenerateTimeoutMS)
	}

	if c.ChunkTargetTokens < 50 || c.ChunkTargetTokens > 4000 {
		return fmt.Errorf("%w: chunk_target_tokens must be between 50 and 4000, got %d", ErrInvalidChunking, c.ChunkTargetTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkTargetTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens must be in [0, chunk_target_tokens), got %d", ErrInvalidChunking, c.ChunkOverlapTokens)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q is not a valid sslmode", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
