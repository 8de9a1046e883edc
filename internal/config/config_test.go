package config

import (
	"math"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTP.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.HTTP.Port)
	}
	if cfg.Chunking.TargetSize != 1000 {
		t.Errorf("expected default chunk target size 1000, got %d", cfg.Chunking.TargetSize)
	}
	if math.Abs(cfg.Retrieval.SemanticWeight+cfg.Retrieval.SparseWeight+cfg.Retrieval.GraphWeight-1.0) > 1e-9 {
		t.Errorf("expected retrieval weights to sum to 1.0")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_PARALLEL_AGENTS", "8")
	t.Setenv("SESSION_IDLE_TTL", "1m")

	cfg := Load()
	if cfg.HTTP.Port != "9090" {
		t.Errorf("expected overridden port 9090, got %s", cfg.HTTP.Port)
	}
	if cfg.Concurrency.MaxParallelAgents != 8 {
		t.Errorf("expected overridden max parallel agents 8, got %d", cfg.Concurrency.MaxParallelAgents)
	}
	if cfg.Session.IdleTTL != time.Minute {
		t.Errorf("expected overridden idle ttl 1m, got %v", cfg.Session.IdleTTL)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MAX_PARALLEL_AGENTS", "not-a-number")
	cfg := Load()
	if cfg.Concurrency.MaxParallelAgents != 4 {
		t.Errorf("expected fallback to default 4 on invalid int, got %d", cfg.Concurrency.MaxParallelAgents)
	}
}
