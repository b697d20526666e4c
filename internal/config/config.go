// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.plateiq/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Providers: Gemini generation/embedding models and per-call timeouts
//   - Storage: PostgreSQL connection (see storage.go)
//   - Chunking: target chunk size and overlap for ingestion
//
// The Gemini API key is read from the GEMINI_API_KEY environment variable and
// may legitimately be absent: the pipeline degrades to text-only retrieval and
// the deterministic fallback estimate without it.
//
// Security: the PostgreSQL password is masked in MarshalJSON/String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunking indicates chunking parameters are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTimeout indicates a provider timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid provider timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultGenerationModel is the default Gemini generation model.
	DefaultGenerationModel = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema uses 768.
	DefaultEmbedderModel = "gemini-embedding-001"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON().
type Config struct {
	// Provider configuration
	GenerationModel string `mapstructure:"generation_model" json:"generation_model"`
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// Per-call provider timeouts, milliseconds
	EmbedTimeoutMS    int `mapstructure:"embed_timeout_ms" json:"embed_timeout_ms"`
	GenerateTimeoutMS int `mapstructure:"generate_timeout_ms" json:"generate_timeout_ms"`

	// Chunking defaults (token-equivalents, estimated from character count)
	ChunkTargetTokens  int `mapstructure:"chunk_target_tokens" json:"chunk_target_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".plateiq")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("generation_model", DefaultGenerationModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("embed_timeout_ms", 10000)
	v.SetDefault("generate_timeout_ms", 30000)

	v.SetDefault("chunk_target_tokens", 500)
	v.SetDefault("chunk_overlap_tokens", 50)

	// PostgreSQL defaults match docker-compose.yml
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "plateiq")
	v.SetDefault("postgres_password", "plateiq_dev_password")
	v.SetDefault("postgres_db_name", "plateiq")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("generation_model", "PLATEIQ_GENERATION_MODEL")
	mustBind("embedder_model", "PLATEIQ_EMBEDDER_MODEL")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// Masked fields: PostgresPassword, GeminiAPIKey.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
