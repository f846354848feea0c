package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.FbDocs != 10 || cfg.Feedback.FbTerms != 10 {
		t.Errorf("unexpected feedback defaults %+v", cfg.Feedback)
	}
	if cfg.Feedback.Distill.Iterations != 100 {
		t.Errorf("distill iterations = %d, want 100", cfg.Feedback.Distill.Iterations)
	}
	if cfg.Feedback.Rocchio.Beta != 0.85 {
		t.Errorf("rocchio beta = %g, want 0.85", cfg.Feedback.Rocchio.Beta)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := `
feedback:
  model: loglogistic
  fbDocs: 5
  logLogistic:
    c: 0.5
redis:
  cacheTTL: 2m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SP_FEEDBACK_FB_TERMS", "25")
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.Model != "loglogistic" || cfg.Feedback.FbDocs != 5 {
		t.Errorf("file values not applied: %+v", cfg.Feedback)
	}
	if cfg.Feedback.LogLogistic.C != 0.5 {
		t.Errorf("c = %g, want 0.5", cfg.Feedback.LogLogistic.C)
	}
	if cfg.Feedback.FbTerms != 25 {
		t.Errorf("env override not applied, fbTerms = %d", cfg.Feedback.FbTerms)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Redis.CacheTTL != 2*time.Minute {
		t.Errorf("ttl = %v", cfg.Redis.CacheTTL)
	}
	if cfg.Feedback.OriginalQueryWeight != 0.5 {
		t.Errorf("default lost after partial file: %g", cfg.Feedback.OriginalQueryWeight)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"fbDocs", func(c *Config) { c.Feedback.FbDocs = 0 }, "fbDocs"},
		{"weight", func(c *Config) { c.Feedback.OriginalQueryWeight = 1.5 }, "originalQueryWeight"},
		{"tie break", func(c *Config) { c.Feedback.TieBreak = "random" }, "tieBreak"},
		{"mixture", func(c *Config) { c.Feedback.Distill.NonRelevantWeight = 0.95 }, "mixture"},
		{"limits", func(c *Config) { c.Search.MaxResults = 1 }, "search limits"},
		{"rate", func(c *Config) { c.Server.RateLimit, c.Server.RateWindow = 10, 0 }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
