package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

const (
	envDemoEngine       = "FADEN_DEMO_ENGINE"
	envBadgerPath       = "FADEN_BADGER_PATH"
	envBadgerConfigFile = "FADEN_BADGER_CONFIG"
	envSQLiteDSN        = "FADEN_SQLITE_DSN"
	envMetricsAddr      = "FADEN_METRICS_ADDR"

	defaultDemoEngine = "memory"
	defaultSQLiteDSN  = ":memory:"
)

// LoadEnv seeds the process environment from a .env file when one exists.
// Variables already set in the environment win over the file.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, proceeding with environment variables")
	}
}

// DemoEngine returns the storage engine the demo should run on:
// "memory", "badger" or "sqlite".
func DemoEngine() string {
	return getOrDefault(envDemoEngine, defaultDemoEngine)
}

// BadgerPath returns the directory for a persistent badger database.
// Empty means in-memory.
func BadgerPath() string {
	return os.Getenv(envBadgerPath)
}

// BadgerConfigFile returns the path of a yaml badger configuration file.
// Empty means no file; BadgerPath or in-memory applies.
func BadgerConfigFile() string {
	return os.Getenv(envBadgerConfigFile)
}

// SQLiteDSN returns the SQLite data source name for the sqlite engine.
func SQLiteDSN() string {
	return getOrDefault(envSQLiteDSN, defaultSQLiteDSN)
}

// MetricsAddr returns the listen address for the Prometheus metrics endpoint.
// Empty disables the endpoint.
func MetricsAddr() string {
	return os.Getenv(envMetricsAddr)
}

func getOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
