package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://localhost/aggregator"
	if err := NewValidator(cfg).ValidateAll(); err != nil {
		t.Fatalf("expected default config to validate, got: %v", err)
	}
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	cfg := Default()
	if err := NewValidator(cfg).ValidateAll(); err == nil {
		t.Fatal("expected error for missing database DSN")
	}
}

func TestValidateRejectsBadStaleRequeue(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://localhost/aggregator"
	cfg.Queue.StaleRequeueAfter = cfg.Queue.JobWallClockTimeout
	if err := NewValidator(cfg).ValidateAll(); err == nil {
		t.Fatal("expected error when stale_requeue_s does not exceed job timeout")
	}
}

func TestValidateRejectsBadDuplicateThresholds(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://localhost/aggregator"
	cfg.Duplicate.ThresholdHigh = 50
	cfg.Duplicate.ThresholdMedium = 70
	if err := NewValidator(cfg).ValidateAll(); err == nil {
		t.Fatal("expected error when threshold ordering is violated")
	}
}
