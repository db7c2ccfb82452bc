package index

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Hit is a single semantic search result.
type Hit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// SemanticIndex is the vector search backend for chunk embeddings. Callers
// must branch on Available: an unavailable index degrades retrieval to the
// entity and graph passes rather than failing the query.
type SemanticIndex interface {
	Upsert(ctx context.Context, chunkID string, vec []float32) error
	Remove(ctx context.Context, chunkIDs []string) error
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)
	Available() bool
}

// MemoryIndex is a brute-force cosine similarity SemanticIndex. Suitable for
// small projects and tests; larger projects use the pgvector backend.
//
// A MemoryIndex should be created using NewMemoryIndex. It is safe for
// concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

// Upsert stores (or replaces) the embedding for a chunk.
func (m *MemoryIndex) Upsert(_ context.Context, chunkID string, vec []float32) error {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[chunkID] = stored
	return nil
}

// Remove drops the embeddings of the given chunks. Unknown ids are ignored.
func (m *MemoryIndex) Remove(_ context.Context, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		delete(m.vectors, id)
	}
	return nil
}

// Search returns the k stored chunks most similar to vec by cosine
// similarity, best first. Ties break on chunk id.
func (m *MemoryIndex) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.vectors))
	for id, stored := range m.vectors {
		hits = append(hits, Hit{ChunkID: id, Score: cosine(vec, stored)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Available reports whether the index can serve searches. The in-memory
// index always can.
func (m *MemoryIndex) Available() bool {
	return true
}

// All returns a copy of every stored vector keyed by chunk id.
func (m *MemoryIndex) All() map[string][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vectors := make(map[string][]float32, len(m.vectors))
	for id, vec := range m.vectors {
		stored := make([]float32, len(vec))
		copy(stored, vec)
		vectors[id] = stored
	}
	return vectors
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
