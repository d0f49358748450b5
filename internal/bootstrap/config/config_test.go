package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsYAMLAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
database:
  driver: sqlite
  dsn: /tmp/rpki.sqlite
ingest:
  atomic: true
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "/tmp/rpki.sqlite" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if !cfg.Ingest.Atomic {
		t.Fatalf("ingest.atomic = false, want true")
	}
	if cfg.Ingest.MergePublicationPointAssociations {
		t.Fatalf("merge associations should default to false")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http.addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Notify.Subject != "RPKI Issue Notification" {
		t.Fatalf("notify.subject = %q", cfg.Notify.Subject)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RPKIMON_DATABASE_DSN", "file:env.sqlite")
	t.Setenv("RPKIMON_LOG_LEVEL", "debug")

	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "file:env.sqlite" {
		t.Fatalf("dsn = %q, want env override", cfg.Database.DSN)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q, want debug", cfg.Log.Level)
	}
}
