package attendance

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/database/mariadb"
)

// RosterSource is a legacy student roster.
type RosterSource interface {
	BusNumbers(ctx context.Context) ([]int, error)
	Students(ctx context.Context) iter.Seq2[mariadb.LegacyStudent, error]
}

// ImportOptions controls a roster import.
type ImportOptions struct {
	DryRun     bool                          // validate only, write nothing
	OnProgress func(s mariadb.LegacyStudent) // called once per student, optional
}

// SkippedStudent is a roster row that was not enrolled.
type SkippedStudent struct {
	UniversityID string
	Reason       string
}

// ImportReport summarizes a roster import.
type ImportReport struct {
	RoutesCreated []string
	Enrolled      int
	Skipped       []SkippedStudent
}

// ImportRoster creates a route per bus and enrolls every student with a
// usable face encoding. Invalid rows are skipped and reported. Route secrets
// are not checked since the import is an administrative action.
func (s *Service) ImportRoster(ctx context.Context, src RosterSource, opts ImportOptions) (ImportReport, error) {
	var report ImportReport

	buses, err := src.BusNumbers(ctx)
	if err != nil {
		return report, fmt.Errorf("list buses: %w", err)
	}
	for _, bus := range buses {
		routeID := mariadb.RouteIDForBus(bus)
		_, err := s.routes.GetRoute(ctx, routeID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, database.ErrNotFound):
			return report, fmt.Errorf("get route %s: %w", routeID, err)
		}
		if !opts.DryRun {
			if _, err := s.CreateRoute(ctx, routeID, fmt.Sprintf("Bus %d", bus), ""); err != nil {
				return report, err
			}
		}
		report.RoutesCreated = append(report.RoutesCreated, routeID)
	}

	dim := s.templates.Dim()
	for student, err := range src.Students(ctx) {
		if err != nil {
			return report, fmt.Errorf("read roster: %w", err)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(student)
		}

		if student.DecodeErr != nil {
			report.Skipped = append(report.Skipped, SkippedStudent{student.UniversityID, student.DecodeErr.Error()})
			continue
		}

		identity := database.Identity{
			ID:         student.UniversityID,
			Name:       student.Name,
			RouteID:    student.RouteID(),
			Active:     true,
			Embedding:  student.Embedding,
			EnrolledAt: s.now(),
		}
		if err := database.ValidateIdentity(&identity, dim); err != nil {
			report.Skipped = append(report.Skipped, SkippedStudent{student.UniversityID, err.Error()})
			continue
		}
		if opts.DryRun {
			report.Enrolled++
			continue
		}
		if err := s.enroll(ctx, identity); err != nil {
			if database.IsValidation(err) {
				report.Skipped = append(report.Skipped, SkippedStudent{student.UniversityID, err.Error()})
				continue
			}
			return report, err
		}
		report.Enrolled++
	}

	s.logger.Info("roster imported",
		zap.Int("routes_created", len(report.RoutesCreated)),
		zap.Int("enrolled", report.Enrolled),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("dry_run", opts.DryRun),
	)
	return report, nil
}
