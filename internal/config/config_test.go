// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  addr: "0.0.0.0:9090"
  read_timeout: "15s"
  write_timeout: "2m"
  shutdown_timeout: "5s"

database:
  path: "./test.db"

storage:
  dir: "./test-packages"

auth:
  jwt_secret: "super-secret"

limits:
  max_upload_bytes: 1048576
  requests_per_sec: 10
  burst: 20

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9090" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "0.0.0.0:9090")
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
	if cfg.Server.WriteTimeout != 2*time.Minute {
		t.Errorf("Server.WriteTimeout = %v, want %v", cfg.Server.WriteTimeout, 2*time.Minute)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Storage.Dir != "./test-packages" {
		t.Errorf("Storage.Dir = %q, want %q", cfg.Storage.Dir, "./test-packages")
	}
	if cfg.Auth.JWTSecret != "super-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "super-secret")
	}
	if cfg.Limits.MaxUploadBytes != 1048576 {
		t.Errorf("Limits.MaxUploadBytes = %d, want 1048576", cfg.Limits.MaxUploadBytes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  offline_mode: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want default 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Limits.MaxUploadBytes != 50<<20 {
		t.Errorf("Limits.MaxUploadBytes = %d, want default 50 MiB", cfg.Limits.MaxUploadBytes)
	}
	if !cfg.Auth.OfflineMode {
		t.Error("Auth.OfflineMode = false, want true")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CARP_TEST_SECRET", "from-environment")

	configPath := writeConfig(t, `
auth:
  jwt_secret: "${CARP_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-environment" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-environment")
	}
}

func TestLoad_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	configPath := writeConfig(t, `
auth:
  jwt_secret: "${CARP_DEFINITELY_UNSET_VAR}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for empty secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  read_timeout: "not-a-duration"
auth:
  offline_mode: true
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "read_timeout") {
		t.Errorf("error = %v, want mention of read_timeout", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_SecretAndOfflineConflict(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.OfflineMode = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for secret combined with offline mode")
	}
}

func TestValidate_MissingAuth(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither secret nor offline mode is set")
	}
}
