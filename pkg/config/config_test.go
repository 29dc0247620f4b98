package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "data/output.csv" {
		t.Errorf("Store.Path = %q, want data/output.csv", cfg.Store.Path)
	}
	if cfg.OCR.Workers != 1 || cfg.OCR.MaxAttempts != 1 {
		t.Errorf("OCR workers/attempts = %d/%d, want 1/1", cfg.OCR.Workers, cfg.OCR.MaxAttempts)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled || cfg.Postgres.Enabled {
		t.Error("external collaborators must be disabled by default")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
server:
  port: 9001
ocr:
  extensions: ["PNG", "jpg"]
  timeout: 5s
  workers: 0
store:
  path: /tmp/snapshot.csv
`
	if err := os.WriteFile(path, []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ITS_SERVER_PORT", "9100")
	t.Setenv("ITS_REDIS_ENABLED", "true")
	t.Setenv("ITS_INGEST_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true from env")
	}
	if got := cfg.Ingest.TrustedProxies; len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "127.0.0.1" {
		t.Errorf("Ingest.TrustedProxies = %v, want env override", got)
	}
	if cfg.OCR.Timeout != 5*time.Second {
		t.Errorf("OCR.Timeout = %v, want 5s", cfg.OCR.Timeout)
	}
	want := []string{".png", ".jpg"}
	if len(cfg.OCR.Extensions) != len(want) {
		t.Fatalf("Extensions = %v, want %v", cfg.OCR.Extensions, want)
	}
	for i := range want {
		if cfg.OCR.Extensions[i] != want[i] {
			t.Errorf("Extensions[%d] = %q, want %q", i, cfg.OCR.Extensions[i], want[i])
		}
	}
	if cfg.OCR.Workers != 1 {
		t.Errorf("Workers = %d, want clamped to 1", cfg.OCR.Workers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsEmptyStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
