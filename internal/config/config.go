package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogLevel    slog.Level
	CORSOrigins []string

	DatabaseDriver string
	DatabaseURL    string
	ModelPath      string
	EventsFile     string

	// dataset generated in memory by the API server on boot
	ServeDays      int
	ServeUsers     int
	ServeCampaigns int
	Seed           int64

	SinkURL       string
	SinkSecret    string
	HTTPTimeout   time.Duration
	ExportBackoff time.Duration
	ExportRetries int
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	return Config{
		Port:           envOr("PORT", "8080"),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
		CORSOrigins:    splitList(envOr("CORS_ORIGINS", "*")),
		DatabaseDriver: envOr("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    envOr("DATABASE_URL", "instance/marketing.db"),
		ModelPath:      envOr("MODEL_PATH", "models/ltv.json"),
		EventsFile:     os.Getenv("EVENTS_FILE"),
		ServeDays:      intOr("SERVE_DAYS", 90),
		ServeUsers:     intOr("SERVE_USERS", 50000),
		ServeCampaigns: intOr("SERVE_CAMPAIGNS", 15),
		Seed:           int64(intOr("SEED", 42)),
		SinkURL:        os.Getenv("SINK_URL"),
		SinkSecret:     os.Getenv("SINK_SECRET"),
		HTTPTimeout:    to,
		ExportBackoff:  time.Duration(intOr("EXPORT_BACKOFF_MS", 200)) * time.Millisecond,
		ExportRetries:  intOr("EXPORT_RETRIES", 3),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func intOr(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
