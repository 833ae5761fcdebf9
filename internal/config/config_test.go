package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIVENESS_THRESHOLD", "")
	t.Setenv("HISTORY_LIMIT", "")
	t.Setenv("DATABASE_DRIVER", "")

	cfg := Load()
	if cfg.LivenessThreshold != time.Minute || cfg.LivenessSweepInterval != time.Minute {
		t.Fatalf("expected 60s liveness defaults, got %v/%v", cfg.LivenessThreshold, cfg.LivenessSweepInterval)
	}
	if cfg.HistoryLimit != 100 {
		t.Fatalf("expected history limit 100, got %d", cfg.HistoryLimit)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.DatabaseDriver)
	}
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	t.Setenv("LIVENESS_THRESHOLD", "90s")
	t.Setenv("LIVENESS_SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("HISTORY_LIMIT", "-4")
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.LivenessThreshold != 90*time.Second {
		t.Fatalf("expected 90s threshold, got %v", cfg.LivenessThreshold)
	}
	if cfg.LivenessSweepInterval != time.Minute {
		t.Fatalf("expected fallback sweep interval, got %v", cfg.LivenessSweepInterval)
	}
	if cfg.HistoryLimit != 100 {
		t.Fatalf("expected history limit to fall back to 100, got %d", cfg.HistoryLimit)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("expected lower-cased driver, got %q", cfg.DatabaseDriver)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
}
