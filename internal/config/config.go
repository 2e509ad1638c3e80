// Package config loads engine configuration from the environment and the
// optional policy file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider identifies an LLM / embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embedding
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Extraction / summarization model
	LLMProvider Provider
	LLMModel    string

	// Provider credentials / endpoints
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	BedrockModelID  string

	// Default owner scope applied when a tool call omits one.
	DefaultOwnerKind string
	DefaultOwnerID   string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// PolicyFile points at the YAML scoring/consolidation knobs.
	// Empty means built-in defaults.
	PolicyFile string
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "recall"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "memory"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		EmbedProvider:  Provider(getEnv("RECALL_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("RECALL_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("RECALL_EMBED_DIMENSION", 384),

		LLMProvider: Provider(getEnv("RECALL_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:    getEnv("RECALL_LLM_MODEL", "llama3.2"),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		BedrockModelID:  getEnv("RECALL_BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),

		DefaultOwnerKind: getEnv("RECALL_OWNER_KIND", "conversation"),
		DefaultOwnerID:   os.Getenv("RECALL_OWNER_ID"),

		LogFile:  getEnv("RECALL_LOG_FILE", "/tmp/recall.log"),
		LogLevel: parseLogLevel(getEnv("RECALL_LOG_LEVEL", "INFO")),

		PolicyFile: os.Getenv("RECALL_POLICY_FILE"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
