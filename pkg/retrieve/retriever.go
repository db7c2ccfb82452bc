// Package retrieve implements hybrid retrieval over the chunk, entity and
// vector indexes: an exact entity pass, a graph expansion pass and a
// semantic pass run concurrently and their scores fuse additively.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helix-research/litgraph/pkg/ai"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/graph"
	"github.com/helix-research/litgraph/pkg/index"
	"github.com/helix-research/litgraph/pkg/logger"
)

const (
	// PassEntity names the exact entity-match pass.
	PassEntity = "entity"
	// PassGraph names the graph-expansion pass.
	PassGraph = "graph"
	// PassSemantic names the vector-similarity pass.
	PassSemantic = "semantic"

	// DefaultTopK bounds the fused result set.
	DefaultTopK = 10

	defaultSemanticTimeout = 5 * time.Second
	defaultSemanticK       = 20
	defaultMaxHops         = 1

	// hopDiscount is the per-hop attenuation applied to graph-expansion
	// scores.
	hopDiscount = 0.5

	summaryNeighbors = 5
)

// Retriever runs hybrid retrieval against a project's indexes.
//
// A Retriever should be created using NewRetriever.
type Retriever struct {
	chunks   *index.ChunkStore
	entities *index.EntityIndex
	graph    *graph.Aggregator
	semantic index.SemanticIndex
	aiClient ai.Client

	semanticTimeout time.Duration
	semanticK       int
	maxHops         int
}

// NewRetrieverParams defines the configuration for creating a Retriever.
// Semantic and AIClient may be nil; retrieval then degrades to the entity
// and graph passes.
type NewRetrieverParams struct {
	Chunks   *index.ChunkStore
	Entities *index.EntityIndex
	Graph    *graph.Aggregator
	Semantic index.SemanticIndex
	AIClient ai.Client

	SemanticTimeout time.Duration
	SemanticK       int
	MaxHops         int
}

// NewRetriever creates a Retriever with the provided parameters.
func NewRetriever(params NewRetrieverParams) (*Retriever, error) {
	if params.Chunks == nil || params.Entities == nil || params.Graph == nil {
		return nil, errors.New("chunk store, entity index and graph aggregator are required")
	}

	timeout := params.SemanticTimeout
	if timeout <= 0 {
		timeout = defaultSemanticTimeout
	}
	semanticK := params.SemanticK
	if semanticK <= 0 {
		semanticK = defaultSemanticK
	}
	maxHops := params.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	return &Retriever{
		chunks:   params.Chunks,
		entities: params.Entities,
		graph:    params.Graph,
		semantic: params.Semantic,
		aiClient: params.AIClient,

		semanticTimeout: timeout,
		semanticK:       semanticK,
		maxHops:         maxHops,
	}, nil
}

// Retrieve runs the three passes concurrently and fuses their scores. seeds
// are entity names extracted from the query by the caller; topK bounds the
// returned chunks (DefaultTopK when zero). When includeGraph is set the
// result also carries the seed neighborhoods and a textual graph summary.
//
// The semantic pass is bounded by its own timeout: on expiry or when the
// vector index or embedding backend is unavailable the result is returned
// with Degraded set instead of an error. No seeds and no usable semantic
// pass yields an empty, non-degenerate context with a nil error.
func (r *Retriever) Retrieve(
	ctx context.Context,
	query string,
	seeds []string,
	topK int,
	includeGraph bool,
) (*common.RetrievalContext, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var (
		mu       sync.Mutex
		scores   = make(map[string]float64)
		passes   = make(map[string][]string)
		degraded bool
	)
	record := func(pass string, chunkScores map[string]float64) {
		mu.Lock()
		defer mu.Unlock()
		for id, score := range chunkScores {
			scores[id] += score
			passes[id] = append(passes[id], pass)
		}
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		record(PassEntity, r.entityPass(seeds))
		return nil
	})
	eg.Go(func() error {
		record(PassGraph, r.graphPass(seeds))
		return nil
	})
	eg.Go(func() error {
		chunkScores, ok := r.semanticPass(ectx, query)
		if !ok {
			mu.Lock()
			degraded = true
			mu.Unlock()
			return nil
		}
		record(PassSemantic, chunkScores)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rc := &common.RetrievalContext{
		Chunks:   r.fuse(scores, passes, topK),
		Degraded: degraded,
	}
	if includeGraph {
		rc.Relationships, rc.GraphSummary = r.graphContext(seeds)
	}
	return rc, nil
}

// entityPass scores chunks by the number of seed entities tagged on them.
func (r *Retriever) entityPass(seeds []string) map[string]float64 {
	chunkScores := make(map[string]float64)
	for _, seed := range seeds {
		for _, id := range r.entities.Lookup(seed) {
			chunkScores[id]++
		}
	}
	return chunkScores
}

// graphPass expands each seed through its merged-graph neighborhood and
// scores the neighbors' chunks, attenuated per hop and damped by edge weight
// so a single heavy edge cannot dominate.
func (r *Retriever) graphPass(seeds []string) map[string]float64 {
	chunkScores := make(map[string]float64)

	type frontierEntry struct {
		entity string
		factor float64
	}
	visited := make(map[string]bool)
	frontier := make([]frontierEntry, 0, len(seeds))
	for _, seed := range seeds {
		surface := r.entities.Surface(seed)
		visited[surface] = true
		frontier = append(frontier, frontierEntry{entity: surface, factor: 1})
	}

	for hop := 1; hop <= r.maxHops; hop++ {
		var next []frontierEntry
		for _, entry := range frontier {
			for _, edge := range r.graph.Neighbors(entry.entity) {
				neighbor := edge.Target
				if neighbor == entry.entity {
					neighbor = edge.Source
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				score := entry.factor * hopDiscount * (edge.Weight / (edge.Weight + 1))
				for _, id := range r.entities.Lookup(neighbor) {
					chunkScores[id] += score
				}
				next = append(next, frontierEntry{entity: neighbor, factor: entry.factor * hopDiscount})
			}
		}
		frontier = next
	}
	return chunkScores
}

// semanticPass embeds the query and searches the vector index within the
// pass timeout. The second return value is false when the pass could not
// contribute and the result must be flagged degraded.
func (r *Retriever) semanticPass(ctx context.Context, query string) (map[string]float64, bool) {
	if r.semantic == nil || !r.semantic.Available() {
		return nil, false
	}
	if r.aiClient == nil || !r.aiClient.Available() {
		return nil, false
	}
	if strings.TrimSpace(query) == "" {
		return nil, false
	}

	pCtx, cancel := context.WithTimeout(ctx, r.semanticTimeout)
	defer cancel()

	vec, err := r.aiClient.GenerateEmbedding(pCtx, []byte(query))
	if err != nil {
		logger.Warn("[Retrieve] Semantic pass degraded at embedding", "err", err)
		return nil, false
	}
	hits, err := r.semantic.Search(pCtx, vec, r.semanticK)
	if err != nil {
		logger.Warn("[Retrieve] Semantic pass degraded at search", "err", err)
		return nil, false
	}

	chunkScores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		chunkScores[hit.ChunkID] = hit.Score
	}
	return chunkScores, true
}

// fuse resolves scored chunk ids against the store, orders them by fused
// score (shorter text, then chunk id, on ties) and truncates to topK.
func (r *Retriever) fuse(scores map[string]float64, passes map[string][]string, topK int) []common.ScoredChunk {
	scored := make([]common.ScoredChunk, 0, len(scores))
	for id, score := range scores {
		ch, ok := r.chunks.Get(id)
		if !ok {
			// Stale index entry; the chunk's document was removed mid-query.
			continue
		}
		sc := common.ScoredChunk{Chunk: ch, Score: score, Passes: passes[id]}
		sort.Strings(sc.Passes)
		if doc, ok := r.chunks.Document(ch.DocumentID); ok {
			sc.DocumentName = doc.Name
		}
		scored = append(scored, sc)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if len(scored[i].Chunk.Text) != len(scored[j].Chunk.Text) {
			return len(scored[i].Chunk.Text) < len(scored[j].Chunk.Text)
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// graphContext collects the seeds' incident edges and renders a one-line
// summary per seed, strongest neighbors first.
func (r *Retriever) graphContext(seeds []string) ([]common.Edge, string) {
	var (
		edges   []common.Edge
		seen    = make(map[string]bool)
		summary []string
	)
	for _, seed := range seeds {
		surface := r.entities.Surface(seed)
		neighbors := r.graph.Neighbors(surface)
		if len(neighbors) == 0 {
			continue
		}

		var parts []string
		for i, edge := range neighbors {
			key := pairDescriptor(edge)
			if !seen[key] {
				seen[key] = true
				edges = append(edges, edge)
			}
			if i < summaryNeighbors {
				neighbor := edge.Target
				if neighbor == surface {
					neighbor = edge.Source
				}
				parts = append(parts, fmt.Sprintf("%s (%s, strength: %g)", neighbor, edge.Type, edge.Weight))
			}
		}
		summary = append(summary, fmt.Sprintf("%s is connected to: %s", surface, strings.Join(parts, ", ")))
	}
	return edges, strings.Join(summary, "\n")
}

func pairDescriptor(edge common.Edge) string {
	source, target := edge.CanonicalPair()
	return source + "\x1f" + target
}
