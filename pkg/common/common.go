package common

// Document identifies an ingested source document. Identity is immutable:
// re-ingesting the same document id supersedes its chunks and graph
// contribution but never mutates prior records in place.
type Document struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Chunk is a bounded, entity-tagged excerpt of a document's text. Chunks are
// the unit of retrieval: they carry the page they came from and the names of
// every entity whose mention falls inside their span.
//
// Chunks are created once during ingestion and never mutated. HardSplit marks
// chunks produced by force-splitting a single sentence that exceeded the
// window size.
type Chunk struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Page       int      `json:"page"`
	Entities   []string `json:"entities"`
	Sequence   int      `json:"sequence"`
	HardSplit  bool     `json:"hard_split,omitempty"`
}

// EntityMention links an entity surface form to a character span in the
// document text. Mentions are produced by the external NER collaborator and
// consumed while building the entity index; they are not stored.
type EntityMention struct {
	Entity string `json:"entity"`
	Type   string `json:"type"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Node is an entity occurrence record inside a single document's graph.
type Node struct {
	Entity string `json:"entity"`
	Type   string `json:"type"`
	Count  int    `json:"count"`
}

// Edge is an undirected relationship between two entities. Edges are stored
// under a canonical (min, max) key so the same pair is never accounted twice.
// Evidence holds the sentences the relationship was observed in.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Weight   float64  `json:"weight"`
	Type     string   `json:"type"`
	Evidence []string `json:"evidence"`
}

// CanonicalPair returns the edge endpoints in canonical order.
func (e Edge) CanonicalPair() (string, string) {
	if e.Source <= e.Target {
		return e.Source, e.Target
	}
	return e.Target, e.Source
}

// DocumentGraph is the entity/relationship graph extracted from a single
// document. It is the unit of aggregation: the project-level merged graph is
// a fold over the document graphs of all currently-included documents.
type DocumentGraph struct {
	DocumentID string `json:"document_id"`
	Nodes      []Node `json:"nodes"`
	Edges      []Edge `json:"edges"`
}

// MergedGraph is the project-level graph derived by folding per-document
// graphs. Nodes and Edges are keyed by entity id and canonical pair key.
// Metrics are derived and cache-only; they are recomputed whenever the
// included-document set changes.
type MergedGraph struct {
	Nodes   map[string]Node `json:"nodes"`
	Edges   map[string]Edge `json:"edges"`
	Metrics *GraphMetrics   `json:"metrics,omitempty"`
}

// GraphMetrics holds metrics derived from a merged graph snapshot.
type GraphMetrics struct {
	Degree      map[string]int     `json:"degree"`
	Betweenness map[string]float64 `json:"betweenness"`
	Eigenvector map[string]float64 `json:"eigenvector"`
	Communities map[string]int     `json:"communities"`
	Density     float64            `json:"density"`
	AvgDegree   float64            `json:"avg_degree"`
}

// ScoredChunk is a chunk with its combined retrieval score and the names of
// the passes that found it.
type ScoredChunk struct {
	Chunk        Chunk    `json:"chunk"`
	Score        float64  `json:"score"`
	DocumentName string   `json:"document_name,omitempty"`
	Passes       []string `json:"passes,omitempty"`
}

// RetrievalContext is the transient result of a hybrid retrieval. It is
// constructed per query and discarded after the caller consumes it. Degraded
// is set when the semantic pass timed out or the semantic index was
// unavailable and the result therefore covers entity+graph passes only.
type RetrievalContext struct {
	Chunks        []ScoredChunk `json:"chunks"`
	Relationships []Edge        `json:"relationships"`
	GraphSummary  string        `json:"graph_summary,omitempty"`
	Degraded      bool          `json:"degraded,omitempty"`
}

// Empty reports whether the retrieval produced no usable context.
func (rc *RetrievalContext) Empty() bool {
	return rc == nil || (len(rc.Chunks) == 0 && len(rc.Relationships) == 0 && rc.GraphSummary == "")
}
