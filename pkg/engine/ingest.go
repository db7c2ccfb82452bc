package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/helix-research/litgraph/pkg/chunk"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/logger"
)

// IngestParams describes one document to ingest. Text is the extracted
// plain text; PageBoundaries holds the cumulative end offset of each page;
// Mentions are the entity mentions produced by the upstream NER step.
// Relationships may carry explicit extracted edges; when empty, edges are
// derived from entity co-occurrence on chunks.
type IngestParams struct {
	DocumentID     string                 `json:"document_id"`
	Name           string                 `json:"name"`
	Text           string                 `json:"text"`
	PageBoundaries []int                  `json:"page_boundaries,omitempty"`
	Mentions       []common.EntityMention `json:"mentions,omitempty"`
	Relationships  []common.Edge          `json:"relationships,omitempty"`
}

// Ingest chunks, indexes and graphs one document. The operation is
// idempotent: re-ingesting a document id supersedes its previous chunks,
// index entries and graph contribution wholesale.
//
// Embeddings are generated when an AI backend is available; their absence
// is tolerated and only narrows retrieval to the entity and graph passes.
func (e *Engine) Ingest(ctx context.Context, projectID string, params IngestParams) error {
	if params.DocumentID == "" {
		return fmt.Errorf("ingest: empty document id")
	}

	chunks := e.chunker.Chunk(params.Text, params.DocumentID, params.PageBoundaries, params.Mentions)

	dg := e.buildDocumentGraph(params, chunks)

	// Embed outside the state lock; this is the slow part.
	vectors := e.embedChunks(ctx, projectID, chunks)

	state := e.project(projectID)
	state.mu.Lock()
	defer state.mu.Unlock()

	// Validate the graph before touching any state so a consistency
	// violation leaves the project exactly as it was.
	if err := state.graph.Include(dg); err != nil {
		return fmt.Errorf("ingest %s: %w", params.DocumentID, err)
	}

	oldIDs := chunkIDs(state.chunks.ForDocument(params.DocumentID))
	state.chunks.Put(common.Document{
		ID:        params.DocumentID,
		ProjectID: projectID,
		Name:      params.Name,
	}, chunks)
	state.entities.Put(params.DocumentID, chunks)
	state.docGraphs[params.DocumentID] = dg
	state.included[params.DocumentID] = true

	if err := state.semantic.Remove(ctx, oldIDs); err != nil {
		logger.Warn("[Engine] Failed to drop stale vectors", "project", projectID, "doc", params.DocumentID, "err", err)
	}
	state.vectors[params.DocumentID] = vectors
	for id, vec := range vectors {
		if err := state.semantic.Upsert(ctx, id, vec); err != nil {
			logger.Warn("[Engine] Failed to store vector", "project", projectID, "chunk", id, "err", err)
		}
	}

	logger.Info("[Engine] Ingested document",
		"project", projectID, "doc", params.DocumentID, "chunks", len(chunks),
		"nodes", len(dg.Nodes), "edges", len(dg.Edges), "embedded", len(vectors))
	return nil
}

// IngestBatch ingests documents in parallel, bounded by the engine's
// parallelism. Failures are per-document: one bad document never aborts the
// rest, and the returned map holds an entry for each failed document id.
func (e *Engine) IngestBatch(ctx context.Context, projectID string, docs []IngestParams) map[string]error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(e.parallelism)
	for _, params := range docs {
		eg.Go(func() error {
			if err := e.Ingest(ectx, projectID, params); err != nil {
				logger.Error("[Engine] Document ingestion failed",
					"project", projectID, "doc", params.DocumentID, "err", err)
				mu.Lock()
				failed[params.DocumentID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes ctx cancellation.
	_ = eg.Wait()

	if len(failed) == 0 {
		return nil
	}
	return failed
}

// SetDocumentInclusion toggles whether a document contributes to the merged
// graph and to retrieval. Exclusion keeps the document's data so it can be
// re-included without re-ingestion.
func (e *Engine) SetDocumentInclusion(ctx context.Context, projectID string, docID string, included bool) error {
	state := e.project(projectID)
	state.mu.Lock()
	defer state.mu.Unlock()

	dg, ok := state.docGraphs[docID]
	if !ok {
		return fmt.Errorf("unknown document %s", docID)
	}
	if state.included[docID] == included {
		return nil
	}

	chunks := state.chunks.ForDocument(docID)
	if included {
		if err := state.graph.Include(dg); err != nil {
			return err
		}
		state.entities.Put(docID, chunks)
		for id, vec := range state.vectors[docID] {
			if err := state.semantic.Upsert(ctx, id, vec); err != nil {
				logger.Warn("[Engine] Failed to restore vector", "project", projectID, "chunk", id, "err", err)
			}
		}
	} else {
		state.graph.Exclude(docID)
		state.entities.Remove(docID)
		if err := state.semantic.Remove(ctx, chunkIDs(chunks)); err != nil {
			logger.Warn("[Engine] Failed to drop vectors on exclusion", "project", projectID, "doc", docID, "err", err)
		}
	}
	state.included[docID] = included

	logger.Info("[Engine] Document inclusion changed", "project", projectID, "doc", docID, "included", included)
	return nil
}

// RemoveDocument deletes a document and every trace of it: chunks, index
// entries, vectors and graph contribution.
func (e *Engine) RemoveDocument(ctx context.Context, projectID string, docID string) error {
	state := e.project(projectID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, ok := state.docGraphs[docID]; !ok {
		return fmt.Errorf("unknown document %s", docID)
	}

	ids := chunkIDs(state.chunks.ForDocument(docID))
	state.graph.Exclude(docID)
	state.entities.Remove(docID)
	state.chunks.Remove(docID)
	delete(state.docGraphs, docID)
	delete(state.vectors, docID)
	delete(state.included, docID)
	if err := state.semantic.Remove(ctx, ids); err != nil {
		logger.Warn("[Engine] Failed to drop vectors on delete", "project", projectID, "doc", docID, "err", err)
	}

	logger.Info("[Engine] Removed document", "project", projectID, "doc", docID)
	return nil
}

// buildDocumentGraph derives the document graph from explicit relationships
// when provided, falling back to chunk co-occurrence.
func (e *Engine) buildDocumentGraph(params IngestParams, chunks []common.Chunk) common.DocumentGraph {
	if len(params.Relationships) == 0 {
		return chunk.CoOccurrence(params.DocumentID, chunks, params.Mentions)
	}

	dg := chunk.CoOccurrence(params.DocumentID, chunks, params.Mentions)
	dg.Edges = params.Relationships
	return dg
}

// embedChunks generates an embedding per chunk when an AI backend is
// available. Failures degrade to fewer vectors, never to a failed ingest.
func (e *Engine) embedChunks(ctx context.Context, projectID string, chunks []common.Chunk) map[string][]float32 {
	if e.aiClient == nil || !e.aiClient.Available() {
		return nil
	}

	vectors := make(map[string][]float32, len(chunks))
	for _, ch := range chunks {
		vec, err := e.aiClient.GenerateEmbedding(ctx, []byte(ch.Text))
		if err != nil {
			logger.Warn("[Engine] Embedding failed, chunk stays unembedded",
				"project", projectID, "chunk", ch.ID, "err", err)
			continue
		}
		vectors[ch.ID] = vec
	}
	return vectors
}

func chunkIDs(chunks []common.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		ids = append(ids, ch.ID)
	}
	return ids
}
