// Package config loads service configuration from flat environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port int
	// APIKey guards the /api/v1 routes; empty disables auth.
	APIKey string
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type DatabaseConfig struct {
	// URL is the Postgres connection string. Empty runs the service
	// without persistence.
	URL string
}

type SolverConfig struct {
	Gamma         float64
	Epsilon       float64
	MaxIterations int
	Workers       int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Solver    SolverConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
	LogLevel  string
}

// Load reads the .env file named by BELLMAN_ENV (default .env) plus its
// .secret sidecar, then builds the config from environment variables.
// Missing files are not errors; everything has a default except the
// database URL, which stays empty when unset.
func Load() *Config {
	envFile := os.Getenv("BELLMAN_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return &Config{
		Server: ServerConfig{
			Port:   getEnvInt("SERVER_PORT", 8080),
			APIKey: os.Getenv("API_KEY"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Solver: SolverConfig{
			Gamma:         getEnvFloat("SOLVER_GAMMA", 0.9),
			Epsilon:       getEnvFloat("SOLVER_EPSILON", 0.1),
			MaxIterations: getEnvInt("SOLVER_MAX_ITERATIONS", 1000),
			Workers:       getEnvInt("SOLVER_WORKERS", 0),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Retention: RetentionConfig{
			MaxAge:   getEnvDuration("RETENTION_MAX_AGE", 30*24*time.Hour),
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
