// Package config loads process-wide settings from the environment,
// optionally seeded from a .env file. All values have defaults suitable
// for a development setup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the auth server configuration.
type Config struct {
	// Database
	DatabaseIP       string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string

	// Networking
	ServerIP string
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		DatabaseIP:       "127.0.0.1",
		DatabasePort:     5432,
		DatabaseUser:     "auth",
		DatabasePassword: "auth",
		DatabaseName:     "auth_test",
		ServerIP:         "127.0.0.1",
	}
}

// Load reads a .env file if present and overlays environment variables
// on top of the defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not loaded", "err", err)
	}

	cfg := Default()
	cfg.DatabaseIP = getEnv("DATABASE_IP", cfg.DatabaseIP)
	cfg.DatabasePort = getEnvInt("DATABASE_PORT", cfg.DatabasePort)
	cfg.DatabaseUser = getEnv("DATABASE_USER", cfg.DatabaseUser)
	cfg.DatabasePassword = getEnv("DATABASE_PASSWORD", cfg.DatabasePassword)
	cfg.DatabaseName = getEnv("DATABASE_NAME", cfg.DatabaseName)
	cfg.ServerIP = getEnv("SERVER_IP", cfg.ServerIP)
	return cfg
}

// DSN returns the PostgreSQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseIP, c.DatabasePort, c.DatabaseName,
	)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-integer environment value", "key", key, "value", v)
		return fallback
	}
	return n
}
