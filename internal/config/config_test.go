package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "GENERATOR_TIMEOUT", "CANVAS_WIDTH", "HISTORY_LIMIT", "AUTO_ADVANCE_MS", "LOG_FORMAT", "SESSIONS_PER_PLAYER", "SESSION_IDLE_TTL"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, "5175", c.Port)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, 90*time.Second, c.GeneratorTimeout)
	assert.Equal(t, 600, c.CanvasWidth)
	assert.Equal(t, 50, c.HistoryLimit)
	assert.Equal(t, 8, c.SessionsPerPlayer)
	assert.Equal(t, 2*time.Hour, c.SessionIdleTTL)
	assert.Equal(t, 2*time.Second, c.AutoAdvance)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_FORMAT", "Console")
	t.Setenv("GENERATOR_TIMEOUT", "2m")
	t.Setenv("CANVAS_WIDTH", "800")
	t.Setenv("HISTORY_LIMIT", "20")
	t.Setenv("AUTO_ADVANCE_MS", "500")
	t.Setenv("SESSIONS_PER_PLAYER", "3")
	t.Setenv("SESSION_IDLE_TTL", "15m")
	c := Load()
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "console", c.LogFormat)
	assert.Equal(t, 2*time.Minute, c.GeneratorTimeout)
	assert.Equal(t, 800, c.CanvasWidth)
	assert.Equal(t, 20, c.HistoryLimit)
	assert.Equal(t, 500*time.Millisecond, c.AutoAdvance)
	assert.Equal(t, 3, c.SessionsPerPlayer)
	assert.Equal(t, 15*time.Minute, c.SessionIdleTTL)
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("GENERATOR_TIMEOUT", "soon")
	t.Setenv("CANVAS_HEIGHT", "-4")
	t.Setenv("HISTORY_LIMIT", "lots")
	t.Setenv("PLAYER_TOKEN_DAYS", "0")
	c := Load()
	assert.Equal(t, 90*time.Second, c.GeneratorTimeout)
	assert.Equal(t, 600, c.CanvasHeight)
	assert.Equal(t, 50, c.HistoryLimit, "history is always bounded")
	assert.Equal(t, 14, c.PlayerTokenDays)
}

func TestHistoryLimitZeroIsRejected(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "0")
	assert.Equal(t, 50, Load().HistoryLimit)
}

func TestLogSettings(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "CONSOLE")
	level, format := LogSettings()
	assert.Equal(t, "debug", level)
	assert.Equal(t, "console", format)
}
