package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lifedash-backend/models"
)

// StoreType selects the document database backend
type StoreType string

const (
	StoreTypePostgres StoreType = "postgres"
	StoreTypeSQLite   StoreType = "sqlite"
)

// Config holds the server configuration
type Config struct {
	Port         string
	LogMode      string
	GeminiAPIKey string
	GeminiModel  string
	StoreType    StoreType
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	CORSOrigins  []string

	FlowMaxAttempts    int
	FlowInitialBackoff time.Duration
	ChatHistoryLimit   int
}

// Error reports missing or placeholder credentials. It blocks every feature
// but never terminates the process.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// ErrInvalidStoreType is returned for an unknown STORE_TYPE
var ErrInvalidStoreType = errors.New("unknown store type")

// Load reads the configuration from the environment
func Load() Config {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}

	return Config{
		Port:               getenv("PORT", "8080"),
		LogMode:            getenv("LOG_MODE", "dev"),
		GeminiAPIKey:       strings.TrimSpace(apiKey),
		GeminiModel:        getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		StoreType:          StoreType(strings.ToLower(getenv("STORE_TYPE", string(StoreTypePostgres)))),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:         strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisURL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		CORSOrigins:        splitList(getenv("CORS_ORIGINS", "http://localhost:3000,http://localhost:9002")),
		FlowMaxAttempts:    getenvInt("FLOW_MAX_ATTEMPTS", 3),
		FlowInitialBackoff: time.Duration(getenvInt("FLOW_INITIAL_BACKOFF_MS", 1000)) * time.Millisecond,
		ChatHistoryLimit:   getenvInt("CHAT_HISTORY_LIMIT", models.DefaultChatHistoryLimit),
	}
}

// Validate checks that both external credentials are present and real.
// It returns a *Error listing every problem found.
func (c Config) Validate() error {
	var problems []string

	if isPlaceholder(c.GeminiAPIKey) {
		problems = append(problems, "GEMINI_API_KEY is not set; add your Gemini API key to the environment or .env file")
	}

	switch c.StoreType {
	case StoreTypePostgres:
		if isPlaceholder(c.DatabaseURL) {
			problems = append(problems, "DATABASE_URL is not set; the document database cannot be reached")
		}
	case StoreTypeSQLite:
		if isPlaceholder(c.SQLitePath) {
			problems = append(problems, "SQLITE_PATH is not set; the document database cannot be opened")
		}
	default:
		problems = append(problems, fmt.Sprintf("%v: %q", ErrInvalidStoreType, c.StoreType))
	}

	if c.ChatHistoryLimit <= 0 {
		problems = append(problems, "CHAT_HISTORY_LIMIT must be positive")
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// DocumentStoreID returns the identifier of the configured document database
func (c Config) DocumentStoreID() string {
	if c.StoreType == StoreTypeSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

var placeholders = []string{"your_api_key", "your-api-key", "changeme", "change-me", "todo", "xxx"}

func isPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		return true
	}
	lower := strings.ToLower(v)
	for _, p := range placeholders {
		if lower == p {
			return true
		}
	}
	return false
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
