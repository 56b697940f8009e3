package database

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	TemplateCount int       `json:"template_count"`
	RouteCount    int       `json:"route_count"`
	Distance      string    `json:"distance"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

const (
	hnswMetaFile      = "index.meta"
	hnswTemplatesFile = "templates.gob"
	hnswGraphExt      = ".hnsw"
)

// routeGraph is the graph of one route together with the templates it holds.
type routeGraph struct {
	graph     *hnsw.Graph[string]
	templates map[string]Template
	dim       int
}

// HNSWIndex keeps one HNSW graph per route, keyed by identity id. It is an
// accelerator over the template store: it may lag behind enrollments until
// the next Build, and it implements the matcher's candidate source contract.
type HNSWIndex struct {
	routes   map[string]*routeGraph
	distance string
	limit    int
	builtAt  time.Time
	mu       sync.RWMutex
}

// NewHNSWIndex creates an empty index. distance is DistanceCosine or
// DistanceEuclidean; limit is the number of candidates Gather yields.
func NewHNSWIndex(distance string, limit int) *HNSWIndex {
	if distance != DistanceEuclidean {
		distance = DistanceCosine
	}
	if limit < 2 {
		limit = DefaultCandidateLimit
	}
	return &HNSWIndex{
		routes:   make(map[string]*routeGraph),
		distance: distance,
		limit:    limit,
	}
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	if h.distance == DistanceEuclidean {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	return g
}

// Build replaces the whole index with the given templates.
func (h *HNSWIndex) Build(templates []Template) {
	routes := make(map[string]*routeGraph)
	for _, t := range templates {
		if len(t.Embedding) == 0 {
			continue
		}
		rg, ok := routes[t.RouteID]
		if !ok {
			rg = &routeGraph{graph: h.newGraph(), templates: make(map[string]Template), dim: len(t.Embedding)}
			routes[t.RouteID] = rg
		}
		if len(t.Embedding) != rg.dim {
			continue
		}
		rg.graph.Add(hnsw.MakeNode(t.IdentityID, t.Embedding))
		rg.templates[t.IdentityID] = t
	}

	h.mu.Lock()
	h.routes = routes
	h.builtAt = time.Now()
	h.mu.Unlock()
}

// Rebuild reloads all active templates from the store.
func (h *HNSWIndex) Rebuild(ctx context.Context, store TemplateStore) error {
	templates, err := store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active templates: %w", err)
	}
	h.Build(templates)
	return nil
}

// Add inserts or replaces a single template.
func (h *HNSWIndex) Add(t Template) {
	if len(t.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(t.IdentityID)

	rg, ok := h.routes[t.RouteID]
	if !ok {
		rg = &routeGraph{graph: h.newGraph(), templates: make(map[string]Template), dim: len(t.Embedding)}
		h.routes[t.RouteID] = rg
	}
	if len(t.Embedding) != rg.dim {
		return
	}
	rg.graph.Add(hnsw.MakeNode(t.IdentityID, t.Embedding))
	rg.templates[t.IdentityID] = t
}

// Remove drops an identity from whichever route holds it.
func (h *HNSWIndex) Remove(identityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(identityID)
}

func (h *HNSWIndex) removeLocked(identityID string) {
	for routeID, rg := range h.routes {
		if _, ok := rg.templates[identityID]; !ok {
			continue
		}
		delete(rg.templates, identityID)
		if len(rg.templates) == 0 {
			delete(h.routes, routeID)
			continue
		}
		rg.graph.Delete(identityID)
	}
}

// Gather yields up to limit nearest templates of the route. A probe whose
// dimension differs from the route's templates gets the whole route so that
// the scorer reports the mismatch.
func (h *HNSWIndex) Gather(ctx context.Context, routeID string, probe []float32) iter.Seq2[Template, error] {
	return func(yield func(Template, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Template{}, err)
			return
		}

		h.mu.RLock()
		var found []Template
		if rg, ok := h.routes[routeID]; ok {
			if len(probe) != rg.dim {
				found = make([]Template, 0, len(rg.templates))
				for _, t := range rg.templates {
					found = append(found, t)
				}
			} else {
				for _, n := range rg.graph.Search(probe, h.limit) {
					if t, ok := rg.templates[n.Key]; ok {
						found = append(found, t)
					}
				}
			}
		}
		h.mu.RUnlock()

		for _, t := range found {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Count returns the number of indexed templates.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, rg := range h.routes {
		n += len(rg.templates)
	}
	return n
}

// RouteCount returns the number of routes with at least one template.
func (h *HNSWIndex) RouteCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.routes)
}

// BuiltAt returns the time of the last full build.
func (h *HNSWIndex) BuiltAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.builtAt
}

// Distance returns the distance name of the index.
func (h *HNSWIndex) Distance() string {
	return h.distance
}

func graphFile(dir, routeID string) string {
	return filepath.Join(dir, hex.EncodeToString([]byte(routeID))+hnswGraphExt)
}

// Save persists the index into dir: one graph file per route, the templates
// and a metadata file for staleness detection.
func (h *HNSWIndex) Save(dir string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating HNSW index directory: %w", err)
	}

	var templates []Template
	for routeID, rg := range h.routes {
		if err := exportGraph(graphFile(dir, routeID), rg.graph); err != nil {
			return err
		}
		for _, t := range rg.templates {
			templates = append(templates, t)
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(templates); err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hnswTemplatesFile), buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write templates file: %w", err)
	}

	meta := HNSWIndexMetadata{
		TemplateCount: len(templates),
		RouteCount:    len(h.routes),
		Distance:      h.distance,
		BuildTime:     h.builtAt,
		Version:       hnswMetadataVersion,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hnswMetaFile), metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

func exportGraph(path string, g *hnsw.Graph[string]) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := g.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return f.Close()
}

// LoadHNSWMetadata loads the metadata file of a saved index.
func LoadHNSWMetadata(dir string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(filepath.Join(dir, hnswMetaFile)) //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load replaces the index with one saved in dir. The saved distance must
// match the index distance.
func (h *HNSWIndex) Load(dir string) error {
	meta, err := LoadHNSWMetadata(dir)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion {
		return fmt.Errorf("unsupported HNSW index version %d", meta.Version)
	}
	if meta.Distance != h.distance {
		return fmt.Errorf("saved index uses %s distance, want %s", meta.Distance, h.distance)
	}

	data, err := os.ReadFile(filepath.Join(dir, hnswTemplatesFile)) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read templates file: %w", err)
	}
	var templates []Template
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&templates); err != nil {
		return fmt.Errorf("failed to decode templates: %w", err)
	}

	routes := make(map[string]*routeGraph)
	for _, t := range templates {
		rg, ok := routes[t.RouteID]
		if !ok {
			saved, err := hnsw.LoadSavedGraph[string](graphFile(dir, t.RouteID))
			if err != nil {
				return fmt.Errorf("failed to load HNSW graph for route %s: %w", t.RouteID, err)
			}
			rg = &routeGraph{graph: saved.Graph, templates: make(map[string]Template), dim: len(t.Embedding)}
			routes[t.RouteID] = rg
		}
		rg.templates[t.IdentityID] = t
	}

	h.mu.Lock()
	h.routes = routes
	h.builtAt = meta.BuildTime
	h.mu.Unlock()
	return nil
}
