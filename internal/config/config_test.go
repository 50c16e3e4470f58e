package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != "8080" || cfg.StorageDriver != DriverMemory || !cfg.TelemetryEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != 24*time.Hour || cfg.BreakerTimeout != 30*time.Second || cfg.BreakerMaxFailures != 5 {
		t.Fatalf("unexpected parsed defaults: %+v", cfg)
	}
	if cfg.JWTSecret == "" {
		t.Fatalf("development must fall back to a secret")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/var/lib/tasks.db")
	t.Setenv("TELEMETRY_ENABLED", "false")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("BREAKER_MAX_FAILURES", "2")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != "9090" || cfg.StorageDriver != DriverSQLite || cfg.SQLitePath != "/var/lib/tasks.db" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.TelemetryEnabled || cfg.TokenTTL != 90*time.Minute || cfg.BreakerMaxFailures != 2 || cfg.JWTSecret != "s3cret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("TOKEN_TTL", "soon")
	t.Setenv("BREAKER_MAX_FAILURES", "-1")
	t.Setenv("ENVIRONMENT", "production")

	_, err := fromEnv()
	if err == nil {
		t.Fatalf("expected an error")
	}
	for _, want := range []string{"STORAGE_DRIVER", "TOKEN_TTL", "BREAKER_MAX_FAILURES", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_PORT=7070\nMONGO_DB_NAME=fromfile\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	testChdir(t, dir)
	t.Setenv("MONGO_DB_NAME", "fromenv")
	// Ensure the file value is the one picked up for an unset variable.
	t.Setenv("SERVER_PORT", "")
	os.Unsetenv("SERVER_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != "7070" {
		t.Fatalf("expected port from .env, got %s", cfg.ServerPort)
	}
	if cfg.MongoDatabase != "fromenv" {
		t.Fatalf("environment must win over .env, got %s", cfg.MongoDatabase)
	}
}
