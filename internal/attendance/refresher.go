package attendance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/metrics"
)

// IndexRefresher keeps the HNSW index in step with the template store.
type IndexRefresher struct {
	index    *database.HNSWIndex
	store    database.TemplateStore
	path     string
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// NewIndexRefresher creates a refresher. An empty path keeps the index in memory only.
func NewIndexRefresher(
	index *database.HNSWIndex, store database.TemplateStore, path string, interval time.Duration,
	logger *zap.Logger, m *metrics.Recorder,
) *IndexRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexRefresher{index: index, store: store, path: path, interval: interval, logger: logger, metrics: m}
}

// Init loads the saved index when one exists, otherwise builds it from the store.
func (r *IndexRefresher) Init(ctx context.Context) error {
	if r.path != "" {
		err := r.index.Load(r.path)
		if err == nil {
			r.metrics.SetIndexSize(r.index.Count())
			r.logger.Info("hnsw index loaded",
				zap.String("path", r.path),
				zap.Int("templates", r.index.Count()),
				zap.Time("built_at", r.index.BuiltAt()),
			)
			return nil
		}
		r.logger.Info("hnsw index not loaded, rebuilding", zap.String("path", r.path), zap.Error(err))
	}
	return r.Refresh(ctx)
}

// Refresh rebuilds the index from the store and saves it when a path is set.
func (r *IndexRefresher) Refresh(ctx context.Context) error {
	start := time.Now()
	if err := r.index.Rebuild(ctx, r.store); err != nil {
		return fmt.Errorf("rebuild hnsw index: %w", err)
	}
	r.metrics.SetIndexSize(r.index.Count())
	r.logger.Info("hnsw index rebuilt",
		zap.Int("templates", r.index.Count()),
		zap.Int("routes", r.index.RouteCount()),
		zap.Duration("took", time.Since(start)),
	)
	return r.Save()
}

// Save writes the index to its path. It is a no-op without a path.
func (r *IndexRefresher) Save() error {
	if r.path == "" {
		return nil
	}
	if err := r.index.Save(r.path); err != nil {
		return fmt.Errorf("save hnsw index: %w", err)
	}
	return nil
}

// Run refreshes the index every interval until ctx is done. Failed refreshes
// keep serving the previous index.
func (r *IndexRefresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("hnsw index refresh failed", zap.Error(err))
			}
		}
	}
}
