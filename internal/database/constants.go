package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100
)

// DefaultCandidateLimit is the top-k used by index-backed candidate sources
// when none is configured. It must be at least 2 for tie detection.
const DefaultCandidateLimit = 10

// Distance names accepted by NewHNSWIndex.
const (
	DistanceCosine    = "cosine"
	DistanceEuclidean = "euclidean"
)
