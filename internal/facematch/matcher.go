package facematch

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// Outcome is the decision of a single match attempt.
type Outcome string

const (
	OutcomeMatched      Outcome = "matched"
	OutcomeNoMatch      Outcome = "no_match"
	OutcomeAmbiguous    Outcome = "ambiguous"
	OutcomeNoCandidates Outcome = "no_candidates"
)

// Probe is one biometric submission. It is never persisted.
type Probe struct {
	RouteID     string
	Embedding   []float32
	SubmittedAt time.Time
}

// Policy holds the acceptance rules. Threshold direction follows the metric.
type Policy struct {
	Threshold float64
	Epsilon   float64
	Dim       int // expected probe dimension, 0 disables the check
}

// CandidateSource supplies the templates a probe is compared against.
// A full scan ignores the probe; index-backed sources use it to narrow the pool.
type CandidateSource interface {
	Gather(ctx context.Context, routeID string, probe []float32) iter.Seq2[database.Template, error]
}

// Decision is the full result of a match attempt. Audit always holds the
// single entry describing this attempt.
type Decision struct {
	Outcome    Outcome
	IdentityID string
	Name       string
	Score      float64
	Candidates int
	Audit      database.AuditEntry
}

// Matcher decides whether a probe belongs to exactly one enrolled identity.
// It never writes to storage.
type Matcher struct {
	source CandidateSource
	scorer Scorer
	policy Policy
}

// NewMatcher creates a matcher over a candidate source.
func NewMatcher(source CandidateSource, scorer Scorer, policy Policy) *Matcher {
	return &Matcher{source: source, scorer: scorer, policy: policy}
}

// Scorer returns the matcher's scorer.
func (m *Matcher) Scorer() Scorer {
	return m.scorer
}

// Policy returns the matcher's policy.
func (m *Matcher) Policy() Policy {
	return m.policy
}

// Match gathers candidates for the probe's route and decides.
func (m *Matcher) Match(ctx context.Context, probe Probe) (Decision, error) {
	if err := m.validate(probe); err != nil {
		return errorDecision(probe, 0, err), err
	}
	return m.Decide(probe, m.source.Gather(ctx, probe.RouteID, probe.Embedding))
}

func (m *Matcher) validate(probe Probe) error {
	if probe.RouteID == "" {
		return &database.ValidationError{Field: "route", Message: "is required"}
	}
	if len(probe.Embedding) == 0 {
		return &database.ValidationError{Field: "embedding", Message: "is required"}
	}
	if m.policy.Dim > 0 {
		return database.ValidateEmbedding(probe.Embedding, m.policy.Dim)
	}
	return nil
}

// scored is a candidate with its score.
type scored struct {
	tmpl  database.Template
	score float64
}

// Decide applies the matching policy to a candidate sequence. It has no side
// effects beyond consuming the sequence.
func (m *Matcher) Decide(probe Probe, candidates iter.Seq2[database.Template, error]) (Decision, error) {
	var best, runnerUp *scored
	count := 0

	for tmpl, err := range candidates {
		if err != nil {
			return errorDecision(probe, count, err), fmt.Errorf("gather candidates: %w", err)
		}
		score, err := m.scorer.Score(probe.Embedding, tmpl.Embedding)
		if err != nil {
			err = fmt.Errorf("score identity %s: %w", tmpl.IdentityID, err)
			return errorDecision(probe, count, err), err
		}
		count++

		current := &scored{tmpl: tmpl, score: score}
		switch {
		case best == nil || m.scorer.Better(score, best.score):
			runnerUp = best
			best = current
		case runnerUp == nil || m.scorer.Better(score, runnerUp.score):
			runnerUp = current
		}
	}

	d := Decision{Candidates: count}
	entry := newAuditEntry(probe, count)

	if best == nil {
		d.Outcome = OutcomeNoCandidates
		entry.Outcome = database.AuditNoCandidates
		entry.Diagnostic = "no active identities enrolled in route"
		d.Audit = entry
		return d, nil
	}

	entry.IdentityID = &best.tmpl.IdentityID
	entry.Score = &best.score
	if runnerUp != nil {
		entry.RunnerUpScore = &runnerUp.score
	}
	d.Score = best.score

	// The tie-break runs before the threshold: two contenders within epsilon
	// are ambiguous whether or not the best one would clear it.
	switch {
	case runnerUp != nil && m.scorer.Resembles(best.score) && m.ambiguous(best.score, runnerUp.score):
		d.Outcome = OutcomeAmbiguous
		entry.Outcome = database.AuditAmbiguous
		entry.Diagnostic = fmt.Sprintf("best %s score %.4f and %s score %.4f are within epsilon %.4f",
			best.tmpl.IdentityID, best.score, runnerUp.tmpl.IdentityID, runnerUp.score, m.policy.Epsilon)
	case !m.scorer.Clears(best.score, m.policy.Threshold):
		d.Outcome = OutcomeNoMatch
		entry.Outcome = database.AuditNoMatch
		entry.Diagnostic = fmt.Sprintf("best %s score %.4f does not clear threshold %.4f",
			best.tmpl.IdentityID, best.score, m.policy.Threshold)
	default:
		d.Outcome = OutcomeMatched
		d.IdentityID = best.tmpl.IdentityID
		d.Name = best.tmpl.Name
		entry.Outcome = database.AuditMatched
		entry.Diagnostic = fmt.Sprintf("matched %s with score %.4f among %d candidates",
			best.tmpl.IdentityID, best.score, count)
	}

	d.Audit = entry
	return d, nil
}

// ambiguous reports whether the runner-up is too close to the best score.
// Exact ties are always ambiguous.
func (m *Matcher) ambiguous(best, runnerUp float64) bool {
	gap := m.scorer.Gap(best, runnerUp)
	return gap == 0 || gap < m.policy.Epsilon
}

func newAuditEntry(probe Probe, count int) database.AuditEntry {
	ts := probe.SubmittedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return database.AuditEntry{
		RouteID:        probe.RouteID,
		Timestamp:      ts,
		CandidateCount: count,
		ProbeDim:       len(probe.Embedding),
	}
}

func errorDecision(probe Probe, count int, err error) Decision {
	entry := newAuditEntry(probe, count)
	entry.Outcome = database.AuditError
	entry.Diagnostic = err.Error()
	return Decision{Candidates: count, Audit: entry}
}
