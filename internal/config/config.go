package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the environment leaves a setting empty or invalid.
const (
	DefaultHTTPAddr             = ":8080"
	DefaultGatewayAddr          = ":8090"
	DefaultGatewayURL           = "http://localhost:8090"
	DefaultServiceSubject       = "chatcall-api"
	DefaultPollInterval         = 3 * time.Second
	DefaultPollFailureThreshold = 5
	DefaultMaxPageSize          = 100
	DefaultRequestTimeout       = 10 * time.Second
	DefaultLongPollTimeout      = 25 * time.Second
	DefaultTokenTTL             = 15 * time.Minute
)

// Config holds all configuration values.
type Config struct {
	// HTTP listeners
	HTTPAddr    string
	GatewayAddr string

	// Persistence gateway client
	GatewayURL     string
	JWTSecret      string
	ServiceSubject string
	TokenTTL       time.Duration

	// Gateway backend
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Polling notifier
	PollInterval         time.Duration
	PollDeduplicate      bool
	PollFailureThreshold int

	// API limits
	MaxPageSize     int
	RequestTimeout  time.Duration
	LongPollTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return Config{
		HTTPAddr:    getEnv("HTTP_ADDR", DefaultHTTPAddr),
		GatewayAddr: getEnv("GATEWAY_ADDR", DefaultGatewayAddr),

		GatewayURL:     strings.TrimRight(getEnv("GATEWAY_URL", DefaultGatewayURL), "/"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ServiceSubject: getEnv("SERVICE_SUBJECT", DefaultServiceSubject),
		TokenTTL:       getDuration("TOKEN_TTL", DefaultTokenTTL),

		DatabaseDSN:   getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=chatcall port=5432 sslmode=disable"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		PollInterval:         getDuration("POLL_INTERVAL", DefaultPollInterval),
		PollDeduplicate:      getBool("POLL_DEDUPLICATE", true),
		PollFailureThreshold: getInt("POLL_FAILURE_THRESHOLD", DefaultPollFailureThreshold),

		MaxPageSize:     getInt("MAX_PAGE_SIZE", DefaultMaxPageSize),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		LongPollTimeout: getDuration("LONG_POLL_TIMEOUT", DefaultLongPollTimeout),

		LogFile:  getEnv("LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", raw)
		return defaultVal
	}
	return v
}

func getBool(key string, defaultVal bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("ignoring invalid boolean setting", "key", key, "value", raw)
		return defaultVal
	}
	return v
}

// getDuration accepts Go durations ("1500ms") and bare integers as seconds.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration setting", "key", key, "value", raw)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
