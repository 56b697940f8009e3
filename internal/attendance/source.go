package attendance

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/route-attendance/internal/config"
	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/facematch"
)

// Candidate source names accepted by MATCH_CANDIDATE_SOURCE.
const (
	SourceScan     = "scan"
	SourcePgvector = "pgvector"
	SourceHNSW     = "hnsw"
)

// NewMatcher builds a matcher with the candidate source named in cfg. index is
// only required for the hnsw source; pgvector requires a store that
// implements database.NearestFinder.
func NewMatcher(
	cfg config.MatchConfig, dim int, store database.TemplateStore, index *database.HNSWIndex,
) (*facematch.Matcher, error) {
	metric, err := facematch.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	var source facematch.CandidateSource
	switch cfg.CandidateSrc {
	case SourceScan, "":
		source = facematch.StoreSource{Store: store}
	case SourcePgvector:
		finder, ok := store.(database.NearestFinder)
		if !ok {
			return nil, errors.New("template store does not support nearest queries")
		}
		source = facematch.NearestSource{Finder: finder, Metric: metric, K: cfg.CandidateLimit}
	case SourceHNSW:
		if index == nil {
			return nil, errors.New("hnsw candidate source requires an index")
		}
		source = index
	default:
		return nil, fmt.Errorf("unknown candidate source %q", cfg.CandidateSrc)
	}

	policy := facematch.Policy{Threshold: cfg.Threshold, Epsilon: cfg.Epsilon, Dim: dim}
	return facematch.NewMatcher(source, facematch.NewScorer(metric), policy), nil
}

// IndexDistance returns the HNSW distance matching a metric name.
func IndexDistance(metric string) string {
	if metric == string(facematch.MetricEuclidean) {
		return database.DistanceEuclidean
	}
	return database.DistanceCosine
}
