package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func restoreLogging(t *testing.T) {
	t.Helper()
	logger, level := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})
}

func TestBootstrapLogsConfigWarningsInConfiguredFormat(t *testing.T) {
	restoreLogging(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("HISTORY_LIMIT", "lots")

	var buf bytes.Buffer
	cfg := bootstrap(&buf)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Contains(t, buf.String(), "invalid integer, using default")
	assert.NotContains(t, buf.String(), `"level":"warn"`, "console format applied before config is read")
}

func TestBootstrapHonoursLevelForConfigWarnings(t *testing.T) {
	restoreLogging(t)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("HISTORY_LIMIT", "lots")

	var buf bytes.Buffer
	bootstrap(&buf)
	assert.Empty(t, buf.String())
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}
