package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	baseURLVar       = "BASE_URL"
	logLevelVar      = "LOG_LEVEL"
	storeDriverVar   = "STORE_DRIVER"
	databaseDSNVar   = "DATABASE_DSN"
	stateStoreVar    = "STATE_STORE"
	redisAddrVar     = "REDIS_ADDR"
	providersFileVar = "PROVIDERS_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Integrations")
}

// GetBaseURL returns the public base URL of this service (e.g., "https://integrations.example.com").
// OAuth redirect URIs registered with every provider are built from it.
func (EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetStoreDriver selects the document store: "sqlite" or "memory".
func (EnvVars) GetStoreDriver() string {
	return GetEnv(storeDriverVar, "sqlite")
}

func (EnvVars) GetDatabaseDSN() string {
	return GetEnv(databaseDSNVar, "file:integrations.db?_pragma=busy_timeout(5000)")
}

// GetStateStoreDriver selects where OAuth states live: "docstore" or "redis".
func (EnvVars) GetStateStoreDriver() string {
	return GetEnv(stateStoreVar, "docstore")
}

func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt reads an integer variable, falling back on absence or parse failure.
func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvDuration reads a time.ParseDuration value ("30m", "1h").
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
