// Package engine is the facade over chunking, graph aggregation, indexing,
// retrieval and assembly. It owns per-project state and exposes the
// operations the server and worker call.
package engine

import (
	"sync"

	"github.com/helix-research/litgraph/pkg/ai"
	"github.com/helix-research/litgraph/pkg/assemble"
	"github.com/helix-research/litgraph/pkg/chunk"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/graph"
	"github.com/helix-research/litgraph/pkg/index"
	"github.com/helix-research/litgraph/pkg/retrieve"
)

const defaultParallelism = 4

// SemanticFactory builds the vector index backend for a project. The
// default factory returns the in-memory index; deployments with pgvector
// inject their own.
type SemanticFactory func(projectID string) index.SemanticIndex

// Engine coordinates all per-project state. It is safe for concurrent use;
// projects are isolated from each other.
//
// An Engine should be created using NewEngine.
type Engine struct {
	mu       sync.RWMutex
	projects map[string]*projectState

	aiClient    ai.Client
	chunker     *chunk.Chunker
	assembler   *assemble.Assembler
	semantic    SemanticFactory
	parallelism int
	evidenceCap int
}

// projectState is the complete mutable state of one project. Its lock
// serializes export/import against ingestion and inclusion changes.
type projectState struct {
	mu sync.RWMutex

	chunks   *index.ChunkStore
	entities *index.EntityIndex
	graph    *graph.Aggregator
	semantic index.SemanticIndex

	// docGraphs keeps every ingested document graph, included or not, so
	// an excluded document can be re-included without re-ingestion.
	docGraphs map[string]common.DocumentGraph
	vectors   map[string]map[string][]float32
	included  map[string]bool
}

// NewEngineParams defines the configuration for creating an Engine. All
// fields are optional: a zero-value params yields an engine with default
// chunking, in-memory vector indexes and no AI backend.
type NewEngineParams struct {
	AIClient        ai.Client
	SemanticFactory SemanticFactory

	ChunkSize    int
	ChunkOverlap int
	TokenBudget  int
	EvidenceCap  int

	// Parallelism bounds concurrent document ingestion in IngestBatch.
	Parallelism int
}

// NewEngine creates an Engine with the provided parameters.
func NewEngine(params NewEngineParams) (*Engine, error) {
	assembler, err := assemble.NewAssembler(assemble.NewAssemblerParams{
		TokenBudget: params.TokenBudget,
	})
	if err != nil {
		return nil, err
	}

	semantic := params.SemanticFactory
	if semantic == nil {
		semantic = func(string) index.SemanticIndex { return index.NewMemoryIndex() }
	}
	parallelism := params.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	return &Engine{
		projects: make(map[string]*projectState),

		aiClient: params.AIClient,
		chunker: chunk.NewChunker(chunk.NewChunkerParams{
			Size:    params.ChunkSize,
			Overlap: params.ChunkOverlap,
		}),
		assembler:   assembler,
		semantic:    semantic,
		parallelism: parallelism,
		evidenceCap: params.EvidenceCap,
	}, nil
}

// project returns the state for projectID, creating it on first use.
func (e *Engine) project(projectID string) *projectState {
	e.mu.RLock()
	state, ok := e.projects[projectID]
	e.mu.RUnlock()
	if ok {
		return state
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.projects[projectID]; ok {
		return state
	}
	state = &projectState{
		chunks:    index.NewChunkStore(),
		entities:  index.NewEntityIndex(),
		graph:     graph.NewAggregator(graph.NewAggregatorParams{EvidenceCap: e.evidenceCap}),
		semantic:  e.semantic(projectID),
		docGraphs: make(map[string]common.DocumentGraph),
		vectors:   make(map[string]map[string][]float32),
		included:  make(map[string]bool),
	}
	e.projects[projectID] = state
	return state
}

// retriever builds a retriever over a project's current indexes.
func (e *Engine) retriever(state *projectState) (*retrieve.Retriever, error) {
	return retrieve.NewRetriever(retrieve.NewRetrieverParams{
		Chunks:   state.chunks,
		Entities: state.entities,
		Graph:    state.graph,
		Semantic: state.semantic,
		AIClient: e.aiClient,
	})
}

// Graph returns the project's merged graph snapshot with metrics.
func (e *Engine) Graph(projectID string) (*common.MergedGraph, error) {
	state := e.project(projectID)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.graph.Snapshot()
}

// Documents returns the project's document records with their inclusion
// state, sorted by id.
func (e *Engine) Documents(projectID string) []DocumentStatus {
	state := e.project(projectID)
	state.mu.RLock()
	defer state.mu.RUnlock()

	docs := state.chunks.Documents()
	statuses := make([]DocumentStatus, 0, len(docs))
	for _, doc := range docs {
		statuses = append(statuses, DocumentStatus{
			Document: doc,
			Included: state.included[doc.ID],
			Chunks:   len(state.chunks.ForDocument(doc.ID)),
		})
	}
	return statuses
}

// DocumentStatus pairs a document record with its inclusion state.
type DocumentStatus struct {
	Document common.Document `json:"document"`
	Included bool            `json:"included"`
	Chunks   int             `json:"chunks"`
}
