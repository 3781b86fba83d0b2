package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "./data/spaces", cfg.StoragePath)
	assert.Equal(t, 3, cfg.FreeSpaceLimit)
	assert.Equal(t, 5*time.Minute, cfg.NamingCooldown)
	assert.Equal(t, 800*time.Millisecond, cfg.NamingMinLatency)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.DefaultModel)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FREE_SPACE_LIMIT", "5")
	t.Setenv("NAMING_COOLDOWN", "90s")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 5, cfg.FreeSpaceLimit)
	assert.Equal(t, 90*time.Second, cfg.NamingCooldown)
	assert.True(t, cfg.TracingEnabled)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FREE_SPACE_LIMIT", "lots")
	t.Setenv("NAMING_COOLDOWN", "soon")

	cfg := Load()
	assert.Equal(t, 3, cfg.FreeSpaceLimit)
	assert.Equal(t, 5*time.Minute, cfg.NamingCooldown)
}
