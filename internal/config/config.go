package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects the environment-driven settings for the engine. A .env
// file is honored via godotenv autoload in the server entrypoint.
type Config struct {
	Port        int
	PostgresURL string // when empty, SqlitePath is used instead
	SqlitePath  string
	LogLevel    string
	// StatusJobInterval is how often the scheduler scans for project
	// windows crossing their start or end.
	StatusJobInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              8080,
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		SqlitePath:        "data/launchpool.db",
		LogLevel:          "info",
		StatusJobInterval: time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Port = parsed
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SqlitePath = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if interval := os.Getenv("STATUS_JOB_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid STATUS_JOB_INTERVAL %q: %w", interval, err)
		}
		cfg.StatusJobInterval = parsed
	}
	return cfg, nil
}
