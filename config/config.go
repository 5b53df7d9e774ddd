// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every setting the CLI and HTTP server read.
type Config struct {
	DBPath     string     // LIBRARY_DB_PATH
	HTTPAddr   string     // LIBRARY_HTTP_ADDR
	LogLevel   slog.Level // LIBRARY_LOG_LEVEL
	BcryptCost int        // LIBRARY_BCRYPT_COST
	AMQPURL    string     // LIBRARY_AMQP_URL, empty disables event publishing
	AMQPQueue  string     // LIBRARY_AMQP_QUEUE
}

// Load reads .env if present, then the environment. Variables already set
// in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment alone.
func FromEnv() (Config, error) {
	cfg := Config{
		DBPath:    getenv("LIBRARY_DB_PATH", "library.db"),
		HTTPAddr:  getenv("LIBRARY_HTTP_ADDR", ":8080"),
		AMQPURL:   os.Getenv("LIBRARY_AMQP_URL"),
		AMQPQueue: getenv("LIBRARY_AMQP_QUEUE", "ledger.events"),
	}

	level, err := parseLevel(getenv("LIBRARY_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	cost, err := strconv.Atoi(getenv("LIBRARY_BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost)))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("LIBRARY_BCRYPT_COST must be an integer in [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	cfg.BcryptCost = cost
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LIBRARY_LOG_LEVEL: %w", err)
	}
	return l, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
