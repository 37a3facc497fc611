// Package core holds application configuration and shared startup
// utilities: environment parsing, the data directory layout, and the
// default generation inputs.
package core

import (
	"fmt"
	"path/filepath"
	"time"
)

// Provider identifiers accepted by IMAGESTUDIO_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Defaults used when the environment does not override them.
const (
	// DefaultDescription seeds the prompt when the user supplies none.
	DefaultDescription = "A majestic lion in a futuristic city"

	// DefaultNegativePrompt is the baseline negative prompt applied when the
	// selected style carries no negative template of its own.
	DefaultNegativePrompt = "deformed, disfigured, bad anatomy, wrong anatomy, extra limbs, missing limbs, " +
		"floating limbs, mutated hands and fingers, disconnected limbs, mutation, mutated, ugly, disgusting, " +
		"blurry, amputation, watermark, text, signature, logo, low quality, worst quality, jpeg artifacts"

	// DefaultDatabaseFile is the SQLite file name inside the data directory.
	DefaultDatabaseFile = "studio.db"

	// DefaultLogFile is the log file name inside the data directory.
	DefaultLogFile = "imagestudio.log"
)

// Config holds all configuration values, populated from the environment.
type Config struct {
	// Provider selects the remote backend: "gemini" or "openai".
	Provider string

	// API keys. Only the key for the selected provider is required.
	GeminiAPIKey string
	OpenAIAPIKey string

	// DataDir is where the database and logs live.
	DataDir string

	// DatabasePath is the SQLite file location.
	DatabasePath string

	// LogFilePath is the rotating log file location.
	LogFilePath string

	// DevMode enables debug-level colored console logging.
	DevMode bool

	// Batch engine pacing. Zero values take the engine defaults.
	MaxAttempts    int
	InitialBackoff time.Duration
	ItemCooldown   time.Duration
}

// LoadConfig builds the configuration from environment variables. Call
// godotenv.Load first so a local .env file participates.
//
// Environment variables:
//
//	IMAGESTUDIO_PROVIDER       "gemini" (default) or "openai"
//	GEMINI_API_KEY             Gemini API key
//	OPENAI_API_KEY             OpenAI API key
//	IMAGESTUDIO_DATA_DIR       data directory override
//	IMAGESTUDIO_DEV            development mode flag
//	IMAGESTUDIO_MAX_ATTEMPTS   per-item attempt budget
//	IMAGESTUDIO_BACKOFF_MS     initial retry backoff in milliseconds
//	IMAGESTUDIO_COOLDOWN_MS    inter-item cooldown in milliseconds
func LoadConfig() (*Config, error) {
	dataDir := GetEnvOrDefault("IMAGESTUDIO_DATA_DIR", "")
	if dataDir == "" {
		var err error
		dataDir, err = EnsureDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	cfg := &Config{
		Provider:       GetEnvOrDefault("IMAGESTUDIO_PROVIDER", ProviderGemini),
		GeminiAPIKey:   GetEnvOrDefault("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   GetEnvOrDefault("OPENAI_API_KEY", ""),
		DataDir:        dataDir,
		DatabasePath:   GetEnvOrDefault("IMAGESTUDIO_DB_PATH", filepath.Join(dataDir, DefaultDatabaseFile)),
		LogFilePath:    GetEnvOrDefault("IMAGESTUDIO_LOG_PATH", filepath.Join(dataDir, DefaultLogFile)),
		DevMode:        ParseBoolEnv("IMAGESTUDIO_DEV", false),
		MaxAttempts:    ParseIntEnv("IMAGESTUDIO_MAX_ATTEMPTS", 0),
		InitialBackoff: ParseDurationMSEnv("IMAGESTUDIO_BACKOFF_MS", 0),
		ItemCooldown:   ParseDurationMSEnv("IMAGESTUDIO_COOLDOWN_MS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider selection and the matching API key.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when IMAGESTUDIO_PROVIDER=%s", ProviderGemini)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when IMAGESTUDIO_PROVIDER=%s", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("unknown provider %q: must be %q or %q", c.Provider, ProviderGemini, ProviderOpenAI)
	}
	return nil
}
