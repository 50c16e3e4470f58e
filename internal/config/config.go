package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort string
	LogFile    string

	// OpenTelemetry settings
	TelemetryEnabled bool
	OTLPEndpoint     string
	ServiceName      string
	Environment      string

	// Storage settings
	StorageDriver string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string

	// Circuit breaker around the storage backend
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	// Authentication settings
	JWTSecret string
	TokenTTL  time.Duration
}

// Load reads configuration from the environment, after merging a .env file
// in the working directory if one exists. Variables already set win over
// the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LogFile:       getEnv("LOG_FILE", ""),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:   getEnv("OTEL_SERVICE_NAME", "task-assignment"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		SQLitePath:    getEnv("SQLITE_PATH", "tasks.db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DB_NAME", "task_assignment"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
	}

	var errs []error
	cfg.TelemetryEnabled, errs = parse(errs, "TELEMETRY_ENABLED", "true", strconv.ParseBool)
	cfg.TokenTTL, errs = parse(errs, "TOKEN_TTL", "24h", time.ParseDuration)
	cfg.BreakerTimeout, errs = parse(errs, "BREAKER_TIMEOUT", "30s", time.ParseDuration)
	cfg.BreakerMaxFailures, errs = parse(errs, "BREAKER_MAX_FAILURES", "5", parseUint32)

	switch cfg.StorageDriver {
	case DriverMemory, DriverSQLite, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER: unknown driver %q", cfg.StorageDriver))
	}
	if cfg.JWTSecret == "" {
		if cfg.Environment == "production" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parse[T any](errs []error, key, defaultValue string, fn func(string) (T, error)) (T, []error) {
	v, err := fn(getEnv(key, defaultValue))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return v, errs
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
