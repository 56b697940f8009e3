package facematch

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// sliceSource serves a fixed candidate list, optionally failing after n items.
type sliceSource struct {
	templates []database.Template
	failAfter int
	err       error
	gathers   int
}

func (s *sliceSource) Gather(_ context.Context, routeID string, _ []float32) iter.Seq2[database.Template, error] {
	s.gathers++
	return func(yield func(database.Template, error) bool) {
		for i, t := range s.templates {
			if s.err != nil && i == s.failAfter {
				yield(database.Template{}, s.err)
				return
			}
			if t.RouteID != routeID {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
		if s.err != nil && s.failAfter >= len(s.templates) {
			yield(database.Template{}, s.err)
		}
	}
}

func tmpl(id, route string, vec ...float32) database.Template {
	return database.Template{IdentityID: id, Name: "Student " + id, RouteID: route, Embedding: vec}
}

func cosineMatcher(src CandidateSource) *Matcher {
	return NewMatcher(src, NewScorer(MetricCosine), Policy{Threshold: 0.6, Epsilon: 0.05, Dim: 4})
}

func probe(route string, vec ...float32) Probe {
	return Probe{RouteID: route, Embedding: vec, SubmittedAt: time.Date(2024, 1, 10, 7, 30, 0, 0, time.UTC)}
}

func TestMatcher_RouteScenario(t *testing.T) {
	src := &sliceSource{templates: []database.Template{
		tmpl("A", "R1", 1, 0, 0, 0),
		tmpl("B", "R1", 0, 1, 0, 0),
		tmpl("C", "R2", 0, 0, 1, 0),
	}}
	m := cosineMatcher(src)

	tests := []struct {
		name     string
		probe    []float32
		outcome  Outcome
		identity string
		score    float64
	}{
		{"probe equals A", []float32{1, 0, 0, 0}, OutcomeMatched, "A", 1.0},
		{"equal mix of A and B", []float32{1, 1, 0, 0}, OutcomeAmbiguous, "", math.Sqrt2 / 2},
		{"orthogonal to both", []float32{0, 0, 0, 1}, OutcomeNoMatch, "", 0},
		{"only in other route", []float32{0, 0, 1, 0}, OutcomeNoMatch, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Match(context.Background(), probe("R1", tt.probe...))
			if err != nil {
				t.Fatalf("Match() error: %v", err)
			}
			if d.Outcome != tt.outcome {
				t.Errorf("outcome = %s, want %s", d.Outcome, tt.outcome)
			}
			if d.IdentityID != tt.identity {
				t.Errorf("identity = %q, want %q", d.IdentityID, tt.identity)
			}
			if math.Abs(d.Score-tt.score) > 1e-6 {
				t.Errorf("score = %v, want %v", d.Score, tt.score)
			}
			if d.Candidates != 2 {
				t.Errorf("candidates = %d, want 2", d.Candidates)
			}
			if string(d.Audit.Outcome) != string(tt.outcome) {
				t.Errorf("audit outcome = %s, want %s", d.Audit.Outcome, tt.outcome)
			}
			if d.Audit.RouteID != "R1" || d.Audit.ProbeDim != 4 {
				t.Errorf("unexpected audit entry: %+v", d.Audit)
			}
		})
	}
}

func TestMatcher_EmptyPoolIsNoCandidates(t *testing.T) {
	for _, metric := range []Metric{MetricCosine, MetricEuclidean} {
		m := NewMatcher(&sliceSource{}, NewScorer(metric), Policy{Threshold: 0.6, Epsilon: 0.05})
		d, err := m.Match(context.Background(), probe("R1", 1, 0, 0, 0))
		if err != nil {
			t.Fatalf("%s: Match() error: %v", metric, err)
		}
		if d.Outcome != OutcomeNoCandidates {
			t.Errorf("%s: outcome = %s, want %s", metric, d.Outcome, OutcomeNoCandidates)
		}
		if d.Audit.Outcome != database.AuditNoCandidates {
			t.Errorf("%s: audit outcome = %s", metric, d.Audit.Outcome)
		}
		if d.Audit.IdentityID != nil || d.Audit.Score != nil {
			t.Errorf("%s: audit entry should carry no candidate: %+v", metric, d.Audit)
		}
	}
}

func TestMatcher_NearTieIsAmbiguousEvenAboveThreshold(t *testing.T) {
	src := &sliceSource{templates: []database.Template{
		tmpl("A", "R1", 1, 0, 0, 0),
		tmpl("C", "R1", 0.99, 0.1410674, 0, 0),
	}}
	d, err := cosineMatcher(src).Match(context.Background(), probe("R1", 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeAmbiguous {
		t.Fatalf("outcome = %s, want ambiguous", d.Outcome)
	}
	if d.IdentityID != "" {
		t.Errorf("ambiguous decision must not name an identity, got %q", d.IdentityID)
	}
	if d.Audit.RunnerUpScore == nil {
		t.Error("expected runner-up score in audit entry")
	}
}

func TestMatcher_ExactTieIsAmbiguousWithZeroEpsilon(t *testing.T) {
	src := &sliceSource{templates: []database.Template{
		tmpl("A", "R1", 1, 0, 0, 0),
		tmpl("A2", "R1", 1, 0, 0, 0),
	}}
	m := NewMatcher(src, NewScorer(MetricCosine), Policy{Threshold: 0.6})
	d, err := m.Match(context.Background(), probe("R1", 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeAmbiguous {
		t.Errorf("outcome = %s, want ambiguous", d.Outcome)
	}
}

func TestMatcher_Euclidean(t *testing.T) {
	src := &sliceSource{templates: []database.Template{
		tmpl("A", "R1", 1, 0, 0, 0),
		tmpl("B", "R1", 0, 1, 0, 0),
	}}
	m := NewMatcher(src, NewScorer(MetricEuclidean), Policy{Threshold: 0.5, Epsilon: 0.05, Dim: 4})

	d, err := m.Match(context.Background(), probe("R1", 0.9, 0.1, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeMatched || d.IdentityID != "A" {
		t.Errorf("got %s/%q, want matched/A", d.Outcome, d.IdentityID)
	}

	d, err = m.Match(context.Background(), probe("R1", 0.5, 0.5, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeAmbiguous {
		t.Errorf("midpoint equidistant from A and B should be ambiguous, got %s", d.Outcome)
	}

	d, err = m.Match(context.Background(), probe("R1", 0.3, 0, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeNoMatch {
		t.Errorf("distance 0.7 to A should not clear 0.5, got %s", d.Outcome)
	}
}

func TestMatcher_NearTieBelowThresholdIsAmbiguous(t *testing.T) {
	src := &sliceSource{templates: []database.Template{
		tmpl("A", "R1", 1, 0, 0, 0),
		tmpl("B", "R1", 0, 1, 0, 0),
	}}
	m := NewMatcher(src, NewScorer(MetricCosine), Policy{Threshold: 0.8, Epsilon: 0.05, Dim: 4})

	d, err := m.Match(context.Background(), probe("R1", 1, 1, 0, 0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeAmbiguous {
		t.Fatalf("outcome = %s, want ambiguous", d.Outcome)
	}
	if math.Abs(d.Score-math.Sqrt2/2) > 1e-6 {
		t.Errorf("score = %v, want %v", d.Score, math.Sqrt2/2)
	}
	if d.Audit.Outcome != database.AuditAmbiguous {
		t.Errorf("audit outcome = %s, want ambiguous", d.Audit.Outcome)
	}

	// No shared direction with either template is a plain miss, not a tie.
	d, err = m.Match(context.Background(), probe("R1", 0, 0, 0, 1))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if d.Outcome != OutcomeNoMatch {
		t.Errorf("orthogonal probe: outcome = %s, want no_match", d.Outcome)
	}
}

func TestMatcher_ValidationErrors(t *testing.T) {
	src := &sliceSource{templates: []database.Template{tmpl("A", "R1", 1, 0, 0, 0)}}
	m := cosineMatcher(src)

	tests := []struct {
		name  string
		probe Probe
	}{
		{"missing route", probe("", 1, 0, 0, 0)},
		{"empty vector", probe("R1")},
		{"wrong dimension", probe("R1", 1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Match(context.Background(), tt.probe)
			if !database.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if d.Audit.Outcome != database.AuditError {
				t.Errorf("audit outcome = %s, want error", d.Audit.Outcome)
			}
		})
	}
	if src.gathers != 0 {
		t.Errorf("invalid probes must not reach the candidate source, gathers = %d", src.gathers)
	}
}

func TestMatcher_DimensionMismatchIsFatal(t *testing.T) {
	src := &sliceSource{templates: []database.Template{tmpl("A", "R1", 1, 0, 0)}}
	m := NewMatcher(src, NewScorer(MetricCosine), Policy{Threshold: 0.6, Epsilon: 0.05})

	d, err := m.Match(context.Background(), probe("R1", 1, 0, 0, 0))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if d.Audit.Outcome != database.AuditError {
		t.Errorf("audit outcome = %s, want error", d.Audit.Outcome)
	}
}

func TestMatcher_SourceErrorPropagates(t *testing.T) {
	src := &sliceSource{
		templates: []database.Template{tmpl("A", "R1", 1, 0, 0, 0)},
		failAfter: 1,
		err:       database.ErrStorageUnavailable,
	}
	d, err := cosineMatcher(src).Match(context.Background(), probe("R1", 1, 0, 0, 0))
	if !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if d.Outcome != "" {
		t.Errorf("failed match must not carry an outcome, got %s", d.Outcome)
	}
	if d.Audit.Outcome != database.AuditError || d.Audit.CandidateCount != 1 {
		t.Errorf("unexpected audit entry: %+v", d.Audit)
	}
}

func TestMatcher_AuditTimestampFromProbe(t *testing.T) {
	src := &sliceSource{templates: []database.Template{tmpl("A", "R1", 1, 0, 0, 0)}}
	p := probe("R1", 1, 0, 0, 0)
	d, err := cosineMatcher(src).Match(context.Background(), p)
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if !d.Audit.Timestamp.Equal(p.SubmittedAt) {
		t.Errorf("audit timestamp = %v, want %v", d.Audit.Timestamp, p.SubmittedAt)
	}
}
