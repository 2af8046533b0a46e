// internal/config/config.go
//
// Typed process configuration read from the environment.
// main.go loads .env first (godotenv), so values from the file and the real
// environment look the same here.
//
// Unparseable numbers and durations fall back to their defaults with a
// warning instead of failing startup.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string
	DBPath    string

	GeneratorURL     string
	GeneratorTimeout time.Duration

	ClientOrigin    string
	JWTSecret       string
	PlayerTokenDays int

	CanvasWidth  int
	CanvasHeight int
	HistoryLimit int

	SessionsPerPlayer int
	SessionIdleTTL    time.Duration

	AutoAdvance time.Duration
	LessonsFile string
}

// LogSettings returns LOG_LEVEL and LOG_FORMAT. It never logs, so main can
// configure the logger before Load reports invalid values.
func LogSettings() (level, format string) {
	return getEnv("LOG_LEVEL", "info"), strings.ToLower(getEnv("LOG_FORMAT", "json"))
}

// Load reads the configuration from the environment.
func Load() Config {
	level, format := LogSettings()
	return Config{
		Port:      getEnv("PORT", "5175"),
		LogLevel:  level,
		LogFormat: format,
		DBPath:    getEnv("DB_PATH", "./data/storytopia.db"),

		GeneratorURL:     getEnv("GENERATOR_URL", "http://localhost:8080"),
		GeneratorTimeout: getDuration("GENERATOR_TIMEOUT", 90*time.Second),

		ClientOrigin:    getEnv("CLIENT_ORIGIN", "http://localhost:3000"),
		JWTSecret:       getEnv("JWT_SECRET", "dev_secret_change_me"),
		PlayerTokenDays: getInt("PLAYER_TOKEN_DAYS", 14, 1),

		CanvasWidth:  getInt("CANVAS_WIDTH", 600, 1),
		CanvasHeight: getInt("CANVAS_HEIGHT", 600, 1),
		HistoryLimit: getInt("HISTORY_LIMIT", 50, 1),

		SessionsPerPlayer: getInt("SESSIONS_PER_PLAYER", 8, 1),
		SessionIdleTTL:    getDuration("SESSION_IDLE_TTL", 2*time.Hour),

		AutoAdvance: time.Duration(getInt("AUTO_ADVANCE_MS", 2000, 1)) * time.Millisecond,
		LessonsFile: os.Getenv("LESSONS_FILE"),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def, floor int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < floor {
		log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		log.Warn().Str("key", k).Str("value", v).Dur("default", def).Msg("invalid duration, using default")
		return def
	}
	return d
}
