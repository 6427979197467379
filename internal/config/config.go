// Package config centralises all environment configuration for the assistant server.
// It should be imported only by `cmd/*` (and test code). Handler and service layers
// receive an already‑built Config instance via dependency‑injection.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by ASSISTANT_PROVIDER.
const (
	ProviderResponses = "responses"
	ProviderChat      = "chat"
	ProviderVertex    = "vertex"
)

// Deadline bounds for ASSISTANT_DEADLINE_MS.
const (
	MinDeadline     = 8 * time.Second
	MaxDeadline     = 55 * time.Second
	DefaultDeadline = 55 * time.Second
)

// Config holds every runtime option the server needs.
// Keep it flat: primitive types, no embedded structs.
type Config struct {
	// Network
	Port        string
	StaticDir   string
	CORSOrigins string

	// External services
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	VectorStoreID    string
	VectorStoreName  string
	Provider         string
	Model            string
	VertexModel      string
	ProjectID        string
	Location         string
	CredentialsFile  string
	MaxOutputTokens  int // 0 means "derive from the model name"
	AssistantTimeout time.Duration

	// Server tuning
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Observability
	LogLevel    string
	TraceStdout bool
}

// Load parses the environment (and an optional .env file) into Config.
// Credentials are not required here: the assistant endpoint reports what is
// missing on each request, see Missing.
func Load() Config {
	// godotenv.Load() is a no‑op if .env doesn't exist.
	_ = godotenv.Load()

	return Config{
		Port:             getEnv("PORT", "8080"),
		StaticDir:        getEnv("STATIC_DIR", "./public"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		VectorStoreID:    os.Getenv("OPENAI_VECTOR_STORE_ID"),
		VectorStoreName:  os.Getenv("OPENAI_VECTOR_STORE_NAME"),
		Provider:         strings.ToLower(getEnv("ASSISTANT_PROVIDER", ProviderResponses)),
		Model:            getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		VertexModel:      getEnv("VERTEX_MODEL", "gemini-2.0-flash-lite-001"),
		ProjectID:        os.Getenv("GCP_PROJECT_ID"),
		Location:         getEnv("GCP_LOCATION", "us-central1"),
		CredentialsFile:  os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		MaxOutputTokens:  getInt("ASSISTANT_MAX_OUTPUT_TOKENS", 0),
		AssistantTimeout: ClampDeadline(getMillis("ASSISTANT_DEADLINE_MS", DefaultDeadline)),
		ReadTimeout:      getDuration("READ_TIMEOUT_SEC", 10),
		WriteTimeout:     getDuration("WRITE_TIMEOUT_SEC", 65),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TraceStdout:      getBool("TRACE_STDOUT", false),
	}
}

// ClampDeadline keeps d inside [MinDeadline, MaxDeadline].
func ClampDeadline(d time.Duration) time.Duration {
	return min(max(d, MinDeadline), MaxDeadline)
}

// Missing returns the names of the variables the assistant pipeline needs but
// that are not set, in the order they should be reported.
func (c Config) Missing() []string {
	var missing []string
	// Retrieval always goes through the hosted vector store, whatever the provider.
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.VectorStoreID == "" {
		missing = append(missing, "OPENAI_VECTOR_STORE_ID")
	}
	if c.Provider == ProviderVertex && c.ProjectID == "" {
		missing = append(missing, "GCP_PROJECT_ID")
	}
	return missing
}

// GenerationModel is the model name handed to the active provider.
func (c Config) GenerationModel() string {
	if c.Provider == ProviderVertex {
		return c.VertexModel
	}
	return c.Model
}

// getEnv returns env[key] if set, otherwise defaultVal.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getDuration reads an integer (seconds) from env, falling back to defaultSec.
func getDuration(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			return time.Duration(sec) * time.Second
		}
		log.Printf("invalid %s=%q; using default %ds", key, v, defaultSec)
	}
	return time.Duration(defaultSec) * time.Second
}

// getMillis reads an integer number of milliseconds from env.
func getMillis(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		log.Printf("invalid %s=%q; using default %s", key, v, defaultVal)
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("invalid %s=%q; using default %d", key, v, defaultVal)
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid %s=%q; using default %t", key, v, defaultVal)
	}
	return defaultVal
}
