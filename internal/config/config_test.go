package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "./timeline.db", cfg.DatabasePath)
	assert.Equal(t, "json", cfg.TimelineFmt)
	assert.Equal(t, 2*time.Second, cfg.WindowPollInterval)
	assert.Equal(t, 3*time.Second, cfg.SelectionMinGap)
	assert.Equal(t, 500*time.Millisecond, cfg.ScreenshotMinInterval)
	assert.Equal(t, 1000, cfg.RetainEvents)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WINDOW_POLL_MS", "250")
	t.Setenv("TIMELINE_FORMAT", "csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 250*time.Millisecond, cfg.WindowPollInterval)
	assert.Equal(t, "csv", cfg.TimelineFmt)
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}
