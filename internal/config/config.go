package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all configuration for the chat client.
type Config struct {
	Env string

	// Listen port for the stub backend.
	Port string

	// Ordered candidate API bases. The start call is attempted against each
	// in turn; later entries cover reverse-proxy path variants.
	BaseURLs []string

	// WebSocket endpoint base (ws:// or wss://) and the alternate routing
	// prefix tried once when the primary path fails to open.
	WSBase           string
	WSFallbackPrefix string

	// Identity store backend selection.
	Store     string
	StorePath string
	RedisURL  string

	// Minimum interval between accepted outbound sends.
	SendInterval time.Duration

	// Page URL rewritten with resume parameters for shareable links.
	PageURL string

	// Display name sent with the start request.
	VisitorName string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		WSBase:           getEnv("CHAT_WS_BASE", "ws://localhost:8080"),
		WSFallbackPrefix: getEnv("CHAT_WS_FALLBACK_PREFIX", "/backend"),
		Store:            getEnv("CHAT_STORE", StoreFile),
		StorePath:        os.Getenv("CHAT_STORE_PATH"),
		RedisURL:         os.Getenv("REDIS_URL"),
		SendInterval:     getMillis("CHAT_SEND_INTERVAL_MS", 500),
		PageURL:          os.Getenv("CHAT_PAGE_URL"),
		VisitorName:      os.Getenv("VISITOR_NAME"),
	}

	// Comma-separated list, order is significant.
	bases := getEnv("CHAT_BASE_URLS", "http://localhost:8080")
	for _, entry := range strings.Split(bases, ",") {
		entry = strings.TrimRight(strings.TrimSpace(entry), "/")
		if entry != "" {
			cfg.BaseURLs = append(cfg.BaseURLs, entry)
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getMillis(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return time.Duration(defaultValue) * time.Millisecond
}
