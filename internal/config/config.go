package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database   DatabaseConfig
	Legacy     LegacyConfig
	Embedding  EmbeddingConfig
	Match      MatchConfig
	HNSW       HNSWConfig
	Attendance AttendanceConfig
	Log        LogConfig
	Web        WebConfig
	Policies   PoliciesConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// LegacyConfig points at the old MariaDB/MySQL roster used by `roster import`.
type LegacyConfig struct {
	DatabaseURL string // e.g. attendance:secret@tcp(localhost:3306)/attendance
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 512
}

type MatchConfig struct {
	Metric         string  // cosine or euclidean
	Threshold      float64 // acceptance threshold, direction follows Metric
	Epsilon        float64 // minimum gap between best and runner-up
	CandidateSrc   string  // scan, pgvector or hnsw
	CandidateLimit int     // top-k for index-backed sources
}

type HNSWConfig struct {
	IndexPath       string        // optional; if empty the index is rebuilt on startup
	RefreshInterval time.Duration // how often the index is rebuilt from the store
}

type AttendanceConfig struct {
	Timezone string
	Location *time.Location
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// PoliciesConfig is the embedded per-metric default policy.
type PoliciesConfig struct {
	Metrics map[string]MetricPolicy `yaml:"metrics"`
}

type MetricPolicy struct {
	Threshold float64 `yaml:"threshold"`
	Epsilon   float64 `yaml:"epsilon"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() *Config {
	var policies PoliciesConfig
	if err := yaml.Unmarshal(policyYAML, &policies); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}

	metric := strings.ToLower(envString("MATCH_METRIC", "cosine"))
	defaults := policies.ForMetric(metric)

	tz := envString("ATTENDANCE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Legacy: LegacyConfig{
			DatabaseURL: os.Getenv("LEGACY_DATABASE_URL"),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim: envInt("FACE_EMBEDDING_DIM", 512),
		},
		Match: MatchConfig{
			Metric:         metric,
			Threshold:      envFloat("MATCH_THRESHOLD", defaults.Threshold),
			Epsilon:        envFloat("MATCH_EPSILON", defaults.Epsilon),
			CandidateSrc:   strings.ToLower(envString("MATCH_CANDIDATE_SOURCE", "scan")),
			CandidateLimit: envInt("MATCH_CANDIDATE_LIMIT", 10),
		},
		HNSW: HNSWConfig{
			IndexPath:       os.Getenv("HNSW_INDEX_PATH"),
			RefreshInterval: envDuration("HNSW_REFRESH_INTERVAL", 5*time.Minute),
		},
		Attendance: AttendanceConfig{
			Timezone: tz,
			Location: loc,
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8085),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", nil),
		},
		Policies: policies,
	}
}

// ForMetric returns the default policy of a metric, zero if unknown.
func (p PoliciesConfig) ForMetric(metric string) MetricPolicy {
	return p.Metrics[metric]
}

// Validate reports configuration that would make the service misbehave.
func (c *Config) Validate() error {
	switch c.Match.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("MATCH_METRIC must be cosine or euclidean, got %q", c.Match.Metric)
	}
	switch c.Match.CandidateSrc {
	case "scan", "pgvector", "hnsw":
	default:
		return fmt.Errorf("MATCH_CANDIDATE_SOURCE must be scan, pgvector or hnsw, got %q", c.Match.CandidateSrc)
	}
	if c.Match.Metric == "cosine" && c.Match.Threshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD %.3f is above the maximum cosine similarity", c.Match.Threshold)
	}
	if c.Match.Metric == "euclidean" && c.Match.Threshold < 0 {
		return fmt.Errorf("MATCH_THRESHOLD %.3f is below the minimum euclidean distance", c.Match.Threshold)
	}
	if c.Match.Epsilon < 0 {
		return fmt.Errorf("MATCH_EPSILON must not be negative, got %.3f", c.Match.Epsilon)
	}
	if c.Match.CandidateSrc != "scan" && c.Match.CandidateLimit < 2 {
		return fmt.Errorf("MATCH_CANDIDATE_LIMIT must be at least 2 for the %s source, got %d",
			c.Match.CandidateSrc, c.Match.CandidateLimit)
	}
	if tz := c.Attendance.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err)
		}
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
