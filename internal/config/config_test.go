package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "./roomsync.db", cfg.StorageDSN)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 50*time.Millisecond, cfg.LoopInterval)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.Equal(t, 0, cfg.RateLimit)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ROOMSYNC_ADDR", ":9999")
	t.Setenv("ROOMSYNC_STORAGE_DRIVER", "postgres")
	t.Setenv("ROOMSYNC_STORAGE_DSN", "postgres://localhost/roomsync")
	t.Setenv("ROOMSYNC_LOOP_INTERVAL_MS", "200")
	t.Setenv("ROOMSYNC_RATE_LIMIT", "100")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/roomsync", cfg.StorageDSN)
	assert.Equal(t, 200*time.Millisecond, cfg.LoopInterval)
	assert.Equal(t, 100, cfg.RateLimit)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("ROOMSYNC_LOOP_INTERVAL_MS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 50*time.Millisecond, cfg.LoopInterval)
}
