package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/graph"
	"github.com/helix-research/litgraph/pkg/logger"
	"github.com/helix-research/litgraph/pkg/store"
)

// Export serializes the project's complete state into a versioned blob.
// The project lock is held exclusively, so no ingestion or inclusion change
// can interleave with the snapshot.
func (e *Engine) Export(_ context.Context, projectID string) ([]byte, error) {
	state := e.project(projectID)
	state.mu.Lock()
	defer state.mu.Unlock()

	snapshot := &store.Snapshot{
		ProjectID: projectID,
		Documents: state.chunks.Documents(),
		Chunks:    make(map[string][]common.Chunk),
		Vectors:   make(map[string][]float32),
	}
	for _, doc := range snapshot.Documents {
		snapshot.Chunks[doc.ID] = state.chunks.ForDocument(doc.ID)
		if state.included[doc.ID] {
			snapshot.Included = append(snapshot.Included, doc.ID)
		}
		for id, vec := range state.vectors[doc.ID] {
			snapshot.Vectors[id] = vec
		}
	}
	sort.Strings(snapshot.Included)

	graphIDs := make([]string, 0, len(state.docGraphs))
	for id := range state.docGraphs {
		graphIDs = append(graphIDs, id)
	}
	sort.Strings(graphIDs)
	for _, id := range graphIDs {
		snapshot.Graphs = append(snapshot.Graphs, state.docGraphs[id])
	}

	blob, err := store.Encode(snapshot)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", projectID, err)
	}
	logger.Info("[Engine] Exported project",
		"project", projectID, "documents", len(snapshot.Documents), "bytes", len(blob))
	return blob, nil
}

// Import applies an export blob to the project. A schema mismatch rejects
// the blob wholesale and leaves the project untouched. Replace mode resets
// the project first; merge mode lays the snapshot's documents over the
// current state with per-document supersede semantics.
func (e *Engine) Import(ctx context.Context, projectID string, blob []byte, mode store.ImportMode) error {
	snapshot, err := store.Decode(blob)
	if err != nil {
		return fmt.Errorf("import %s: %w", projectID, err)
	}

	state := e.project(projectID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if mode == store.ImportReplace {
		if err := e.resetLocked(ctx, projectID, state); err != nil {
			return err
		}
	}

	included := make(map[string]bool, len(snapshot.Included))
	for _, id := range snapshot.Included {
		included[id] = true
	}
	graphs := make(map[string]common.DocumentGraph, len(snapshot.Graphs))
	for _, dg := range snapshot.Graphs {
		graphs[dg.DocumentID] = dg
	}

	// Validate every included graph before applying anything, so a bad
	// blob cannot leave the project half-imported.
	probe := graph.NewAggregator(graph.NewAggregatorParams{EvidenceCap: e.evidenceCap})
	for _, dg := range snapshot.Graphs {
		if !included[dg.DocumentID] {
			continue
		}
		if err := probe.Include(dg); err != nil {
			return fmt.Errorf("import %s: document %s: %w", projectID, dg.DocumentID, err)
		}
	}

	for _, doc := range snapshot.Documents {
		chunks := snapshot.Chunks[doc.ID]
		dg := graphs[doc.ID]

		// Superseding an existing document: drop its current traces first.
		if _, exists := state.docGraphs[doc.ID]; exists {
			state.graph.Exclude(doc.ID)
			state.entities.Remove(doc.ID)
			if err := state.semantic.Remove(ctx, chunkIDs(state.chunks.ForDocument(doc.ID))); err != nil {
				logger.Warn("[Engine] Failed to drop vectors during import", "project", projectID, "doc", doc.ID, "err", err)
			}
		}

		doc.ProjectID = projectID
		state.chunks.Put(doc, chunks)
		state.docGraphs[doc.ID] = dg
		state.included[doc.ID] = included[doc.ID]

		vectors := make(map[string][]float32)
		for _, ch := range chunks {
			if vec, ok := snapshot.Vectors[ch.ID]; ok {
				vectors[ch.ID] = vec
			}
		}
		state.vectors[doc.ID] = vectors

		if included[doc.ID] {
			if err := state.graph.Include(dg); err != nil {
				return fmt.Errorf("import %s: document %s: %w", projectID, doc.ID, err)
			}
			state.entities.Put(doc.ID, chunks)
			for id, vec := range vectors {
				if err := state.semantic.Upsert(ctx, id, vec); err != nil {
					logger.Warn("[Engine] Failed to store vector during import", "project", projectID, "chunk", id, "err", err)
				}
			}
		}
	}

	logger.Info("[Engine] Imported project",
		"project", projectID, "documents", len(snapshot.Documents), "mode", mode)
	return nil
}

// resetLocked clears all project state. Caller holds the write lock.
func (e *Engine) resetLocked(ctx context.Context, projectID string, state *projectState) error {
	var allIDs []string
	for _, doc := range state.chunks.Documents() {
		allIDs = append(allIDs, chunkIDs(state.chunks.ForDocument(doc.ID))...)
		state.graph.Exclude(doc.ID)
		state.entities.Remove(doc.ID)
		state.chunks.Remove(doc.ID)
	}
	state.docGraphs = make(map[string]common.DocumentGraph)
	state.vectors = make(map[string]map[string][]float32)
	state.included = make(map[string]bool)
	if err := state.semantic.Remove(ctx, allIDs); err != nil {
		logger.Warn("[Engine] Failed to clear vectors on reset", "project", projectID, "err", err)
	}
	return nil
}
