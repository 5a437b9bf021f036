package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Runtime  RuntimeConfig
	Daemon   DaemonConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RuntimeConfig struct {
	// Host is the Docker daemon endpoint. Empty means DOCKER_HOST / the
	// client library default.
	Host string
	// RequestTimeout bounds non-blocking runtime calls (probe, create,
	// start, delete). Wait-for-exit is deliberately unbounded.
	RequestTimeout time.Duration
}

type DaemonConfig struct {
	// JitterMin/JitterMax bound the randomized delay each reconciler sleeps
	// before its first probe, so process start does not hammer the runtime
	// and the store with every job at once.
	JitterMin time.Duration
	JitterMax time.Duration
	// RunRetention is how long finished Run rows are kept before the
	// maintenance pruner deletes them.
	RunRetention time.Duration
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "jobshepherd"),
			Password: getEnv("DB_PASSWORD", "jobshepherd"),
			DBName:   getEnv("DB_NAME", "jobshepherd"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Runtime: RuntimeConfig{
			Host:           getEnv("DOCKER_HOST", ""),
			RequestTimeout: time.Duration(getEnvAsInt("RUNTIME_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Daemon: DaemonConfig{
			JitterMin:    time.Duration(getEnvAsInt("STARTUP_JITTER_MIN_SECONDS", 1)) * time.Second,
			JitterMax:    time.Duration(getEnvAsInt("STARTUP_JITTER_MAX_SECONDS", 10)) * time.Second,
			RunRetention: time.Duration(getEnvAsInt("RUN_RETENTION_DAYS", 90)) * 24 * time.Hour,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
