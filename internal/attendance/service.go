package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/facematch"
	"github.com/kozaktomas/route-attendance/internal/metrics"
)

// ErrNoExtractor is returned for image submissions when no extraction server is configured.
var ErrNoExtractor = errors.New("image extraction is not configured")

// Extractor turns a photograph into a feature vector.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]float32, error)
}

// ResultOutcome is the outcome reported to clients.
type ResultOutcome string

const (
	ResultMatched       ResultOutcome = "matched"
	ResultNoMatch       ResultOutcome = "no_match"
	ResultAmbiguous     ResultOutcome = "ambiguous"
	ResultNoCandidates  ResultOutcome = "no_candidates"
	ResultAlreadyMarked ResultOutcome = "already_marked"
)

// Result is the answer to an attendance submission. Identity, score and
// record timestamp are only set when a record exists for the identity.
type Result struct {
	Outcome         ResultOutcome `json:"outcome"`
	IdentityID      string        `json:"identity,omitempty"`
	Name            string        `json:"name,omitempty"`
	Score           *float64      `json:"score,omitempty"`
	RecordTimestamp *time.Time    `json:"record_timestamp,omitempty"`
}

// Deps are the collaborators of a Service. Index, Extractor, Logger and
// Metrics are optional.
type Deps struct {
	Routes     database.RouteStore
	Templates  database.TemplateStore
	Attendance database.AttendanceStore
	Audit      database.AuditLog
	Matcher    *facematch.Matcher
	Index      *database.HNSWIndex
	Extractor  Extractor
	Location   *time.Location
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
}

// Service runs the attendance flow: match a probe, mark the day, audit the attempt.
type Service struct {
	routes    database.RouteStore
	templates database.TemplateStore
	ledger    *Ledger
	audit     database.AuditLog
	matcher   *facematch.Matcher
	index     *database.HNSWIndex
	extractor Extractor
	location  *time.Location
	logger    *zap.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// NewService creates a service.
func NewService(deps Deps) *Service {
	s := &Service{
		routes:    deps.Routes,
		templates: deps.Templates,
		ledger:    NewLedger(deps.Attendance, deps.Templates),
		audit:     deps.Audit,
		matcher:   deps.Matcher,
		index:     deps.Index,
		extractor: deps.Extractor,
		location:  deps.Location,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Ledger returns the attendance ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Today returns the current calendar day in the attendance timezone.
func (s *Service) Today() database.Date {
	return database.DateOf(s.now(), s.location)
}

// Attend matches a probe vector against the route and marks the matched
// identity present for the day of submittedAt. A zero submittedAt means now.
func (s *Service) Attend(ctx context.Context, routeID string, probe []float32, submittedAt time.Time) (Result, error) {
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}

	start := time.Now()
	decision, err := s.matcher.Match(ctx, facematch.Probe{
		RouteID:     routeID,
		Embedding:   probe,
		SubmittedAt: submittedAt,
	})
	outcome := string(decision.Audit.Outcome)
	s.metrics.ObserveMatch(outcome, decision.Candidates, time.Since(start))

	entry := decision.Audit
	defer func() { s.appendAudit(ctx, &entry) }()

	if err != nil {
		s.logger.Warn("match failed",
			zap.String("route", routeID),
			zap.Int("candidates", decision.Candidates),
			zap.Error(err),
		)
		return Result{}, err
	}

	if decision.Outcome != facematch.OutcomeMatched {
		s.logger.Info("probe not matched",
			zap.String("route", routeID),
			zap.String("outcome", outcome),
			zap.Int("candidates", decision.Candidates),
		)
		return Result{Outcome: ResultOutcome(decision.Outcome)}, nil
	}

	date := database.DateOf(submittedAt, s.location)
	mark, err := s.ledger.Mark(ctx, decision.IdentityID, routeID, date, decision.Score)
	if err != nil {
		s.metrics.ObserveMark("error")
		entry.Diagnostic += "; attendance not recorded: " + err.Error()
		s.logger.Error("attendance mark failed",
			zap.String("route", routeID),
			zap.String("identity", decision.IdentityID),
			zap.String("date", date.String()),
			zap.Error(err),
		)
		return Result{}, err
	}
	s.metrics.ObserveMark(string(mark.Status))

	result := Result{
		Outcome:         ResultMatched,
		IdentityID:      decision.IdentityID,
		Name:            decision.Name,
		Score:           &mark.Record.Score,
		RecordTimestamp: &mark.Record.CreatedAt,
	}
	if mark.Status == MarkAlreadyMarked {
		result.Outcome = ResultAlreadyMarked
		entry.Diagnostic += fmt.Sprintf("; already marked at %s", mark.Record.CreatedAt.Format(time.RFC3339))
	}

	s.logger.Info("attendance recorded",
		zap.String("route", routeID),
		zap.String("identity", decision.IdentityID),
		zap.String("date", date.String()),
		zap.String("status", string(mark.Status)),
		zap.Float64("score", decision.Score),
	)
	return result, nil
}

// AttendImage extracts a probe from a photograph and runs Attend. Rejected
// images are returned as extraction errors and never reach the matcher.
func (s *Service) AttendImage(ctx context.Context, routeID string, image []byte, submittedAt time.Time) (Result, error) {
	probe, err := s.extract(ctx, image)
	if err != nil {
		return Result{}, err
	}
	return s.Attend(ctx, routeID, probe, submittedAt)
}

// appendAudit writes the entry. Failures never change the decided outcome.
func (s *Service) appendAudit(ctx context.Context, entry *database.AuditEntry) {
	if err := s.audit.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.AuditFailed()
		s.logger.Warn("audit entry not written",
			zap.String("route", entry.RouteID),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err),
		)
	}
}

func (s *Service) extract(ctx context.Context, image []byte) ([]float32, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}
	if len(image) == 0 {
		return nil, &database.ValidationError{Field: "image", Message: "is required"}
	}
	vec, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extract face: %w", err)
	}
	return vec, nil
}

// CreateRoute creates a route. A non-empty secret is stored as a bcrypt hash.
func (s *Service) CreateRoute(ctx context.Context, id, name, secret string) (*database.Route, error) {
	route := database.Route{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.now(),
	}
	if route.ID == "" {
		return nil, &database.ValidationError{Field: "id", Message: "is required"}
	}
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash route secret: %w", err)
		}
		route.SecretHash = string(hash)
	}
	if err := s.routes.CreateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("create route: %w", err)
	}
	s.logger.Info("route created", zap.String("route", route.ID), zap.Bool("secret", route.HasSecret()))
	return &route, nil
}

// ListRoutes returns all routes.
func (s *Service) ListRoutes(ctx context.Context) ([]database.Route, error) {
	return s.routes.ListRoutes(ctx)
}

// EnrollRequest enrolls an identity from either a vector or an image.
type EnrollRequest struct {
	RouteID    string
	IdentityID string
	Name       string
	Secret     string
	Embedding  []float32
	Image      []byte
}

// Enroll checks the route secret, resolves the vector and stores the identity.
// Re-enrolling an identity replaces its vector and reactivates it.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*database.Identity, error) {
	route, err := s.routes.GetRoute(ctx, req.RouteID)
	if err != nil {
		return nil, fmt.Errorf("get route: %w", err)
	}
	if err := CheckRouteSecret(route, req.Secret); err != nil {
		return nil, err
	}

	embedding := req.Embedding
	if len(req.Image) > 0 {
		if embedding, err = s.extract(ctx, req.Image); err != nil {
			return nil, err
		}
	}

	identity := database.Identity{
		ID:         strings.TrimSpace(req.IdentityID),
		Name:       strings.TrimSpace(req.Name),
		RouteID:    route.ID,
		Active:     true,
		Embedding:  embedding,
		EnrolledAt: s.now(),
	}
	if err := s.enroll(ctx, identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// enroll stores the identity and adds it to the index.
func (s *Service) enroll(ctx context.Context, identity database.Identity) error {
	if err := s.templates.Enroll(ctx, identity); err != nil {
		return fmt.Errorf("enroll identity: %w", err)
	}

	if s.index != nil {
		s.index.Add(database.Template{
			IdentityID: identity.ID,
			Name:       identity.Name,
			RouteID:    identity.RouteID,
			Embedding:  identity.Embedding,
			EnrolledAt: identity.EnrolledAt,
		})
		s.metrics.SetIndexSize(s.index.Count())
	}

	s.logger.Info("identity enrolled",
		zap.String("route", identity.RouteID),
		zap.String("identity", identity.ID),
		zap.Int("dim", len(identity.Embedding)),
	)
	return nil
}

// CheckRouteSecret compares secret against the route's hash. Routes without a
// secret accept any value.
func CheckRouteSecret(route *database.Route, secret string) error {
	if !route.HasSecret() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(route.SecretHash), []byte(secret)); err != nil {
		return fmt.Errorf("route %s: %w", route.ID, database.ErrRouteSecret)
	}
	return nil
}

// Deactivate excludes an identity from matching. Its records are kept.
func (s *Service) Deactivate(ctx context.Context, identityID string) error {
	if err := s.templates.Deactivate(ctx, identityID); err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	if s.index != nil {
		s.index.Remove(identityID)
		s.metrics.SetIndexSize(s.index.Count())
	}
	s.logger.Info("identity deactivated", zap.String("identity", identityID))
	return nil
}

// Identity returns an enrolled identity.
func (s *Service) Identity(ctx context.Context, identityID string) (*database.Identity, error) {
	return s.templates.Get(ctx, identityID)
}

// FindIdentities searches identities by name, ignoring case and diacritics.
func (s *Service) FindIdentities(ctx context.Context, name string) ([]database.Identity, error) {
	return s.templates.FindByName(ctx, name)
}

// History returns the newest attendance records of an identity.
func (s *Service) History(ctx context.Context, identityID string, limit int) ([]database.AttendanceRecord, error) {
	return s.ledger.History(ctx, identityID, limit)
}

// Status returns the record of an identity for date, nil when absent.
func (s *Service) Status(ctx context.Context, identityID string, date database.Date) (*database.AttendanceRecord, error) {
	if _, err := s.templates.Get(ctx, identityID); err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return s.ledger.Status(ctx, identityID, date)
}

// Day returns the attendance summary of a route.
func (s *Service) Day(ctx context.Context, routeID string, date database.Date) (DaySummary, error) {
	if _, err := s.routes.GetRoute(ctx, routeID); err != nil {
		return DaySummary{}, fmt.Errorf("get route: %w", err)
	}
	return s.ledger.Day(ctx, routeID, date)
}

// AuditLog returns the newest audit entries of a route.
func (s *Service) AuditLog(ctx context.Context, routeID string, limit int) ([]database.AuditEntry, error) {
	entries, err := s.audit.ListAudit(ctx, routeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}
