package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/logger"
)

// ErrConsistency reports an internal graph invariant violation, such as a
// negative or NaN edge weight after folding. The operation that detected it
// is aborted and prior state is left intact.
var ErrConsistency = errors.New("graph consistency violation")

// DefaultEvidenceCap is the maximum number of evidence snippets kept per
// merged edge.
const DefaultEvidenceCap = 20

// Aggregator maintains the per-document graphs of a project and derives the
// project-level merged graph from them. The merged graph is always a
// from-scratch fold over the currently included documents, so including and
// later excluding a document leaves no residual contribution.
//
// An Aggregator should be created using NewAggregator. It is safe for
// concurrent use.
type Aggregator struct {
	mu          sync.RWMutex
	docs        map[string]common.DocumentGraph
	evidenceCap int

	snapshot    *common.MergedGraph
	snapshotKey uint64
}

// NewAggregatorParams defines the configuration for creating an Aggregator.
// EvidenceCap bounds the evidence snippets kept per merged edge; zero falls
// back to DefaultEvidenceCap.
type NewAggregatorParams struct {
	EvidenceCap int
}

// NewAggregator creates an Aggregator with the provided parameters.
func NewAggregator(params NewAggregatorParams) *Aggregator {
	cap := params.EvidenceCap
	if cap <= 0 {
		cap = DefaultEvidenceCap
	}
	return &Aggregator{
		docs:        make(map[string]common.DocumentGraph),
		evidenceCap: cap,
	}
}

// Include registers (or replaces) the document graph for dg.DocumentID and
// marks the document as included. The merged snapshot is invalidated and
// rebuilt lazily on the next Snapshot call.
//
// Graphs with negative or non-finite edge weights are rejected with
// ErrConsistency and leave the aggregator unchanged.
func (a *Aggregator) Include(dg common.DocumentGraph) error {
	if dg.DocumentID == "" {
		return fmt.Errorf("include: empty document id")
	}
	for _, edge := range dg.Edges {
		if err := checkWeight(edge); err != nil {
			logger.Error("[Graph] Rejecting document graph",
				"doc", dg.DocumentID, "source", edge.Source, "target", edge.Target, "error", err)
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[dg.DocumentID] = dg
	a.snapshot = nil
	return nil
}

// Exclude removes the document's graph contribution. Excluding an unknown
// document is a no-op.
func (a *Aggregator) Exclude(docID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.docs[docID]; !ok {
		return
	}
	delete(a.docs, docID)
	a.snapshot = nil
}

// Included returns the sorted ids of the currently included documents.
func (a *Aggregator) Included() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.includedLocked()
}

func (a *Aggregator) includedLocked() []string {
	ids := make([]string, 0, len(a.docs))
	for id := range a.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the merged graph over the currently included documents,
// with metrics attached. The result is cached keyed by the included document
// set and recomputed only when that set (or a member graph) changes.
//
// Callers must not mutate the returned graph.
func (a *Aggregator) Snapshot() (*common.MergedGraph, error) {
	a.mu.RLock()
	key := includedSetKey(a.includedLocked())
	if a.snapshot != nil && a.snapshotKey == key {
		snapshot := a.snapshot
		a.mu.RUnlock()
		return snapshot, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	key = includedSetKey(a.includedLocked())
	if a.snapshot != nil && a.snapshotKey == key {
		return a.snapshot, nil
	}

	merged, err := fold(a.docs, a.evidenceCap)
	if err != nil {
		return nil, err
	}
	merged.Metrics = computeMetrics(merged)

	a.snapshot = merged
	a.snapshotKey = key
	logger.Debug("[Graph] Rebuilt merged snapshot",
		"documents", len(a.docs), "nodes", len(merged.Nodes), "edges", len(merged.Edges))
	return merged, nil
}

// Neighbors returns the merged edges incident to entity, sorted by weight
// descending with the neighbor id as tie-break.
func (a *Aggregator) Neighbors(entity string) []common.Edge {
	snapshot, err := a.Snapshot()
	if err != nil {
		logger.Error("[Graph] Neighbor lookup failed", "entity", entity, "error", err)
		return nil
	}

	var edges []common.Edge
	for _, edge := range snapshot.Edges {
		if edge.Source == entity || edge.Target == entity {
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return otherEnd(edges[i], entity) < otherEnd(edges[j], entity)
	})
	return edges
}

func otherEnd(edge common.Edge, entity string) string {
	if edge.Source == entity {
		return edge.Target
	}
	return edge.Source
}

func checkWeight(edge common.Edge) error {
	if edge.Weight < 0 || math.IsNaN(edge.Weight) || math.IsInf(edge.Weight, 0) {
		return fmt.Errorf("%w: edge %s-%s has weight %v",
			ErrConsistency, edge.Source, edge.Target, edge.Weight)
	}
	return nil
}
