package facematch

import (
	"context"
	"iter"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// StoreSource scans every active template of the route.
type StoreSource struct {
	Store database.TemplateReader
}

// Gather implements CandidateSource.
func (s StoreSource) Gather(ctx context.Context, routeID string, _ []float32) iter.Seq2[database.Template, error] {
	return s.Store.Candidates(ctx, routeID)
}

// NearestSource asks the store for the k nearest templates (pgvector). A K
// below 2 falls back to database.DefaultCandidateLimit, since a single
// candidate can never be ambiguous.
type NearestSource struct {
	Finder database.NearestFinder
	Metric Metric
	K      int
}

// Gather implements CandidateSource.
func (s NearestSource) Gather(ctx context.Context, routeID string, probe []float32) iter.Seq2[database.Template, error] {
	k := s.K
	if k < 2 {
		k = database.DefaultCandidateLimit
	}
	return func(yield func(database.Template, error) bool) {
		templates, err := s.Finder.Nearest(ctx, routeID, probe, k, s.Metric == MetricEuclidean)
		if err != nil {
			yield(database.Template{}, err)
			return
		}
		for _, t := range templates {
			if !yield(t, nil) {
				return
			}
		}
	}
}
