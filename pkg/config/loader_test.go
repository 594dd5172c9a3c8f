package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeMergesUserOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aggregator.yaml")
	os.Setenv("TEST_AGG_DSN", "postgres://localhost/aggregator_test")
	t.Cleanup(func() { os.Unsetenv("TEST_AGG_DSN") })

	content := []byte(`
database:
  dsn: ${TEST_AGG_DSN}
queue:
  worker_count: 8
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Initialize(context.Background(), path)
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/aggregator_test" {
		t.Errorf("expected expanded DSN, got %q", cfg.Database.DSN)
	}
	if cfg.Queue.WorkerCount != 8 {
		t.Errorf("expected worker_count override to apply, got %d", cfg.Queue.WorkerCount)
	}
	if cfg.Queue.ClaimBatchSize != Default().Queue.ClaimBatchSize {
		t.Errorf("expected unset fields to retain defaults")
	}
}

func TestInitializeMissingFile(t *testing.T) {
	if _, err := Initialize(context.Background(), "/nonexistent/aggregator.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
