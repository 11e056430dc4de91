// Package config loads server configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the server needs to start
type Config struct {
	Addr string

	// StorageDriver selects the backend: sqlite, postgres or bolt
	StorageDriver string
	// StorageDSN is the sqlite path, postgres URL or bolt file path
	StorageDSN string

	// AuthSecret enables connection token checks when non-empty
	AuthSecret string

	// RedisURL enables the pub/sub poke fanout when non-empty
	RedisURL string

	LoopInterval time.Duration
	StepTimeout  time.Duration

	// RateLimit is requests per RateWindow per client IP, 0 disables
	RateLimit  int
	RateWindow time.Duration

	LogLevel string
}

// Load reads the configuration, applying development defaults
func Load() Config {
	return Config{
		Addr:          getenv("ROOMSYNC_ADDR", ":8080"),
		StorageDriver: getenv("ROOMSYNC_STORAGE_DRIVER", "sqlite"),
		StorageDSN:    getenv("ROOMSYNC_STORAGE_DSN", "./roomsync.db"),
		AuthSecret:    getenv("ROOMSYNC_AUTH_SECRET", ""),
		RedisURL:      getenv("ROOMSYNC_REDIS_URL", ""),
		LoopInterval:  time.Duration(getenvInt("ROOMSYNC_LOOP_INTERVAL_MS", 50)) * time.Millisecond,
		StepTimeout:   time.Duration(getenvInt("ROOMSYNC_STEP_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimit:     getenvInt("ROOMSYNC_RATE_LIMIT", 0),
		RateWindow:    time.Duration(getenvInt("ROOMSYNC_RATE_WINDOW_SECONDS", 60)) * time.Second,
		LogLevel:      getenv("ROOMSYNC_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
