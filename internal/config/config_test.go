package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"MATCH_METRIC", "MATCH_THRESHOLD", "MATCH_EPSILON", "MATCH_CANDIDATE_SOURCE",
		"FACE_EMBEDDING_DIM", "ATTENDANCE_TIMEZONE", "WEB_PORT", "WEB_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Match.Metric != "cosine" {
		t.Errorf("expected cosine metric, got %q", cfg.Match.Metric)
	}
	if cfg.Match.Threshold != 0.6 {
		t.Errorf("expected default cosine threshold 0.6, got %v", cfg.Match.Threshold)
	}
	if cfg.Match.Epsilon != 0.05 {
		t.Errorf("expected default epsilon 0.05, got %v", cfg.Match.Epsilon)
	}
	if cfg.Match.CandidateSrc != "scan" {
		t.Errorf("expected scan candidate source, got %q", cfg.Match.CandidateSrc)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Attendance.Location != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Attendance.Location)
	}
	if cfg.Web.Port != 8085 {
		t.Errorf("expected port 8085, got %d", cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 0 {
		t.Errorf("expected no allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_EuclideanUsesItsOwnDefaults(t *testing.T) {
	t.Setenv("MATCH_METRIC", "Euclidean")
	t.Setenv("MATCH_THRESHOLD", "")
	t.Setenv("MATCH_EPSILON", "")

	cfg := Load()

	if cfg.Match.Metric != "euclidean" {
		t.Errorf("expected euclidean, got %q", cfg.Match.Metric)
	}
	if cfg.Match.Threshold != 1.0 {
		t.Errorf("expected euclidean threshold 1.0, got %v", cfg.Match.Threshold)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.72")
	t.Setenv("MATCH_EPSILON", "0.1")
	t.Setenv("MATCH_CANDIDATE_SOURCE", "HNSW")
	t.Setenv("HNSW_REFRESH_INTERVAL", "30s")
	t.Setenv("ATTENDANCE_TIMEZONE", "Asia/Kolkata")
	t.Setenv("WEB_ALLOWED_ORIGINS", "http://a.example, ,http://b.example")

	cfg := Load()

	if cfg.Match.Threshold != 0.72 || cfg.Match.Epsilon != 0.1 {
		t.Errorf("unexpected policy %v/%v", cfg.Match.Threshold, cfg.Match.Epsilon)
	}
	if cfg.Match.CandidateSrc != "hnsw" {
		t.Errorf("expected hnsw, got %q", cfg.Match.CandidateSrc)
	}
	if cfg.HNSW.RefreshInterval != 30*time.Second {
		t.Errorf("expected 30s refresh, got %v", cfg.HNSW.RefreshInterval)
	}
	if cfg.Attendance.Location.String() != "Asia/Kolkata" {
		t.Errorf("expected Asia/Kolkata, got %v", cfg.Attendance.Location)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}

func TestEnvInt_InvalidFallsBack(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"", 25},
		{"abc", 25},
		{"-3", 25},
		{"0", 25},
		{"40", 40},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_ENV_INT", tt.value)
			if got := envInt("TEST_ENV_INT", 25); got != tt.expected {
				t.Errorf("envInt(%q) = %d, want %d", tt.value, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown metric", func(c *Config) { c.Match.Metric = "manhattan" }, true},
		{"unknown source", func(c *Config) { c.Match.CandidateSrc = "redis" }, true},
		{"cosine threshold above one", func(c *Config) { c.Match.Threshold = 1.5 }, true},
		{"bad timezone", func(c *Config) { c.Attendance.Timezone = "Mars/Olympus" }, true},
		{"negative epsilon", func(c *Config) { c.Match.Epsilon = -0.01 }, true},
		{"zero epsilon", func(c *Config) { c.Match.Epsilon = 0 }, false},
		{"negative euclidean threshold", func(c *Config) {
			c.Match.Metric = "euclidean"
			c.Match.Threshold = -0.5
		}, true},
		{"negative cosine threshold", func(c *Config) { c.Match.Threshold = -0.5 }, false},
		{"pgvector top-1", func(c *Config) {
			c.Match.CandidateSrc = "pgvector"
			c.Match.CandidateLimit = 1
		}, true},
		{"hnsw top-0", func(c *Config) {
			c.Match.CandidateSrc = "hnsw"
			c.Match.CandidateLimit = 0
		}, true},
		{"pgvector top-2", func(c *Config) {
			c.Match.CandidateSrc = "pgvector"
			c.Match.CandidateLimit = 2
		}, false},
		{"scan ignores limit", func(c *Config) { c.Match.CandidateLimit = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Match: MatchConfig{Metric: "cosine", Threshold: 0.6, Epsilon: 0.05, CandidateSrc: "scan"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmbeddedPolicies(t *testing.T) {
	cfg := Load()
	if p := cfg.Policies.ForMetric("euclidean"); p.Threshold != 1.0 || p.Epsilon != 0.05 {
		t.Errorf("unexpected euclidean policy %+v", p)
	}
	if p := cfg.Policies.ForMetric("unknown"); p.Threshold != 0 {
		t.Errorf("expected zero policy for unknown metric, got %+v", p)
	}
}
