package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "GATEWAY_URL", "POLL_INTERVAL", "POLL_DEDUPLICATE",
		"POLL_FAILURE_THRESHOLD", "MAX_PAGE_SIZE", "LOG_LEVEL", "REDIS_DB",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultGatewayURL, cfg.GatewayURL)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.True(t, cfg.PollDeduplicate)
	assert.Equal(t, DefaultPollFailureThreshold, cfg.PollFailureThreshold)
	assert.Equal(t, DefaultMaxPageSize, cfg.MaxPageSize)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Zero(t, cfg.RedisDB)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "http://gw:9000/")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("POLL_DEDUPLICATE", "false")
	t.Setenv("MAX_PAGE_SIZE", "50")
	t.Setenv("LONG_POLL_TIMEOUT", "40")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_DB", "3")

	cfg := Load()
	assert.Equal(t, "http://gw:9000", cfg.GatewayURL)
	assert.Equal(t, 750*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.PollDeduplicate)
	assert.Equal(t, 50, cfg.MaxPageSize)
	assert.Equal(t, 40*time.Second, cfg.LongPollTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("POLL_DEDUPLICATE", "maybe")
	t.Setenv("MAX_PAGE_SIZE", "-4")

	cfg := Load()
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.True(t, cfg.PollDeduplicate)
	assert.Equal(t, DefaultMaxPageSize, cfg.MaxPageSize)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestNewLogger_ConsoleOnlyByDefault(t *testing.T) {
	t.Setenv("LOG_FILE", "")
	assert.Empty(t, Load().LogFile)

	var console bytes.Buffer
	logger, cleanup := NewLogger(&console, "", slog.LevelInfo, "api")
	logger.Debug("hidden")
	logger.Info("chat created", "chat_id", "a_b")
	require.NoError(t, cleanup())

	assert.Contains(t, console.String(), "chat created")
	assert.Contains(t, console.String(), "component=api")
	assert.NotContains(t, console.String(), "hidden")
}

func TestNewLogger_FileGetsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatcall.log")
	var console bytes.Buffer
	logger, cleanup := NewLogger(&console, path, slog.LevelInfo, "gateway")
	logger.Info("record stored", "collection", "messages")
	require.NoError(t, cleanup())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"record stored"`)
	assert.Contains(t, string(raw), `"component":"gateway"`)
	assert.Contains(t, console.String(), "record stored")
}

func TestNewLogger_UnopenableFileFallsBack(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "missing", "dir", "chatcall.log")
	logger, cleanup := NewLogger(&console, path, slog.LevelInfo, "")
	logger.Info("still logging")
	require.NoError(t, cleanup())

	assert.Contains(t, console.String(), "log file unavailable")
	assert.Contains(t, console.String(), "still logging")
}
