package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/config"
	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/database/postgres"
	"github.com/kozaktomas/route-attendance/internal/fingerprint"
	"github.com/kozaktomas/route-attendance/internal/logging"
	"github.com/kozaktomas/route-attendance/internal/metrics"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Recorder
	pool      *postgres.Pool
	templates *postgres.TemplateRepository
	index     *database.HNSWIndex
	refresher *attendance.IndexRefresher
	service   *attendance.Service
}

// newApp loads the configuration, connects to PostgreSQL and builds the
// attendance service. With the hnsw candidate source the index is loaded or
// built before returning.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	m := metrics.New()

	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		pool:      pool,
		templates: postgres.NewTemplateRepository(pool, cfg.Embedding.Dim),
	}

	if cfg.Match.CandidateSrc == attendance.SourceHNSW {
		a.index = database.NewHNSWIndex(attendance.IndexDistance(cfg.Match.Metric), cfg.Match.CandidateLimit)
		a.refresher = attendance.NewIndexRefresher(
			a.index, a.templates, cfg.HNSW.IndexPath, cfg.HNSW.RefreshInterval, logger, m,
		)
		if err := a.refresher.Init(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	matcher, err := attendance.NewMatcher(cfg.Match, cfg.Embedding.Dim, a.templates, a.index)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}

	var extractor attendance.Extractor
	if cfg.Embedding.URL != "" {
		extractor = fingerprint.NewExtractor(cfg.Embedding.URL, cfg.Embedding.Dim)
	}

	a.service = attendance.NewService(attendance.Deps{
		Routes:     postgres.NewRouteRepository(pool),
		Templates:  a.templates,
		Attendance: postgres.NewAttendanceRepository(pool),
		Audit:      postgres.NewAuditRepository(pool),
		Matcher:    matcher,
		Index:      a.index,
		Extractor:  extractor,
		Location:   cfg.Attendance.Location,
		Logger:     logger,
		Metrics:    m,
	})

	logger.Debug("service ready",
		zap.String("metric", cfg.Match.Metric),
		zap.String("candidate_source", cfg.Match.CandidateSrc),
		zap.Float64("threshold", cfg.Match.Threshold),
		zap.Float64("epsilon", cfg.Match.Epsilon),
		zap.String("timezone", cfg.Attendance.Timezone),
	)
	return a, nil
}

// Close saves the HNSW index and releases the database pool.
func (a *app) Close() {
	if a.refresher != nil {
		if err := a.refresher.Save(); err != nil {
			a.logger.Warn("failed to save hnsw index", zap.Error(err))
		}
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("failed to close database pool", zap.Error(err))
	}
	_ = a.logger.Sync()
}
