package retrieve

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/helix-research/litgraph/pkg/ai"
	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/graph"
	"github.com/helix-research/litgraph/pkg/index"
)

// fakeAI is an ai.Client test double with a pluggable embedding function.
type fakeAI struct {
	embed func(ctx context.Context, input []byte) ([]float32, error)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return f.embed(ctx, input)
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (f *fakeAI) GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeAI) Available() bool { return f != nil }

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fixture struct {
	chunks   *index.ChunkStore
	entities *index.EntityIndex
	graph    *graph.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		chunks:   index.NewChunkStore(),
		entities: index.NewEntityIndex(),
		graph:    graph.NewAggregator(graph.NewAggregatorParams{}),
	}
}

func (f *fixture) ingest(t *testing.T, doc common.Document, chunks []common.Chunk, dg common.DocumentGraph) {
	t.Helper()
	f.chunks.Put(doc, chunks)
	f.entities.Put(doc.ID, chunks)
	if dg.DocumentID != "" {
		if err := f.graph.Include(dg); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) retriever(t *testing.T, semantic index.SemanticIndex, client ai.Client, timeout time.Duration) *Retriever {
	t.Helper()
	r, err := NewRetriever(NewRetrieverParams{
		Chunks:          f.chunks,
		Entities:        f.entities,
		Graph:           f.graph,
		Semantic:        semantic,
		AIClient:        client,
		SemanticTimeout: timeout,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRetrieveBothSeedsOutrankSingle(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1", Name: "paper.pdf"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 and BRCA1 interact.", Entities: []string{"BRCA1", "TP53"}},
		{ID: "doc1_chunk_1", DocumentID: "doc1", Text: "TP53 alone here.", Entities: []string{"TP53"}},
		{ID: "doc1_chunk_2", DocumentID: "doc1", Text: "Nothing tagged.", Entities: nil},
	}, common.DocumentGraph{})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "TP53 BRCA1 interaction", []string{"TP53", "BRCA1"}, 10, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(rc.Chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(rc.Chunks))
	}
	if rc.Chunks[0].Chunk.ID != "doc1_chunk_0" {
		t.Errorf("top chunk = %s, want the both-seeds chunk", rc.Chunks[0].Chunk.ID)
	}
	if rc.Chunks[0].Score != 2 || rc.Chunks[1].Score != 1 {
		t.Errorf("scores = %v, %v; want 2, 1", rc.Chunks[0].Score, rc.Chunks[1].Score)
	}
	if rc.Chunks[0].DocumentName != "paper.pdf" {
		t.Errorf("document name = %q", rc.Chunks[0].DocumentName)
	}
}

func TestRetrieveGraphExpansion(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 here.", Entities: []string{"TP53"}},
		{ID: "doc1_chunk_1", DocumentID: "doc1", Text: "apoptosis only.", Entities: []string{"apoptosis"}},
	}, common.DocumentGraph{
		DocumentID: "doc1",
		Nodes: []common.Node{
			{Entity: "TP53", Count: 1},
			{Entity: "apoptosis", Count: 1},
		},
		Edges: []common.Edge{
			{Source: "TP53", Target: "apoptosis", Weight: 3, Type: "CO_OCCURRENCE"},
		},
	})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "role of TP53", []string{"TP53"}, 10, false)
	if err != nil {
		t.Fatal(err)
	}

	var expanded *common.ScoredChunk
	for i := range rc.Chunks {
		if rc.Chunks[i].Chunk.ID == "doc1_chunk_1" {
			expanded = &rc.Chunks[i]
		}
	}
	if expanded == nil {
		t.Fatal("neighbor's chunk not retrieved by graph expansion")
	}
	// One hop: 0.5 * w/(w+1) with w=3.
	want := 0.5 * 3.0 / 4.0
	if math.Abs(expanded.Score-want) > 1e-9 {
		t.Errorf("expansion score = %v, want %v", expanded.Score, want)
	}
	if len(expanded.Passes) != 1 || expanded.Passes[0] != PassGraph {
		t.Errorf("passes = %v", expanded.Passes)
	}
}

func TestRetrieveMonotonicity(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 text.", Entities: []string{"TP53"}},
	}, common.DocumentGraph{})

	r := f.retriever(t, nil, nil, 0)
	before, err := r.Retrieve(context.Background(), "TP53", []string{"TP53"}, 100, false)
	if err != nil {
		t.Fatal(err)
	}

	f.ingest(t, common.Document{ID: "doc2"}, []common.Chunk{
		{ID: "doc2_chunk_0", DocumentID: "doc2", Text: "More TP53 text.", Entities: []string{"TP53"}},
	}, common.DocumentGraph{})

	after, err := r.Retrieve(context.Background(), "TP53", []string{"TP53"}, 100, false)
	if err != nil {
		t.Fatal(err)
	}

	// Adding a document must never lower the score of an existing chunk.
	afterScores := make(map[string]float64)
	for _, sc := range after.Chunks {
		afterScores[sc.Chunk.ID] = sc.Score
	}
	for _, sc := range before.Chunks {
		got, ok := afterScores[sc.Chunk.ID]
		if !ok {
			t.Errorf("chunk %s vanished after adding a document", sc.Chunk.ID)
			continue
		}
		if got < sc.Score {
			t.Errorf("chunk %s score dropped from %v to %v", sc.Chunk.ID, sc.Score, got)
		}
	}
}

func TestRetrieveTieBreaks(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_1", DocumentID: "doc1", Text: "TP53 and friends, a longer chunk.", Entities: []string{"TP53"}},
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 and friends, a longer chunk!", Entities: []string{"TP53"}},
		{ID: "doc1_chunk_2", DocumentID: "doc1", Text: "TP53 short.", Entities: []string{"TP53"}},
	}, common.DocumentGraph{})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "TP53", []string{"TP53"}, 10, false)
	if err != nil {
		t.Fatal(err)
	}

	// All score 1: shortest text first, chunk id orders equal-length texts.
	wantOrder := []string{"doc1_chunk_2", "doc1_chunk_0", "doc1_chunk_1"}
	for i, want := range wantOrder {
		if rc.Chunks[i].Chunk.ID != want {
			t.Errorf("position %d = %s, want %s", i, rc.Chunks[i].Chunk.ID, want)
		}
	}
}

func TestRetrieveSemanticFusion(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 induces apoptosis.", Entities: []string{"TP53"}},
		{ID: "doc1_chunk_1", DocumentID: "doc1", Text: "Unrelated metabolic pathway.", Entities: nil},
	}, common.DocumentGraph{})

	semantic := index.NewMemoryIndex()
	ctx := context.Background()
	if err := semantic.Upsert(ctx, "doc1_chunk_0", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := semantic.Upsert(ctx, "doc1_chunk_1", []float32{0.6, 0.8}); err != nil {
		t.Fatal(err)
	}
	client := &fakeAI{embed: func(context.Context, []byte) ([]float32, error) {
		return []float32{1, 0}, nil
	}}

	rc, err := f.retriever(t, semantic, client, 0).Retrieve(ctx, "apoptosis induction", []string{"TP53"}, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Degraded {
		t.Error("unexpected degraded flag")
	}

	if rc.Chunks[0].Chunk.ID != "doc1_chunk_0" {
		t.Fatalf("top chunk = %s", rc.Chunks[0].Chunk.ID)
	}
	// Entity pass (1) + semantic pass (cosine 1) fused additively.
	if math.Abs(rc.Chunks[0].Score-2) > 1e-6 {
		t.Errorf("fused score = %v, want 2", rc.Chunks[0].Score)
	}
	if got := rc.Chunks[0].Passes; len(got) != 2 || got[0] != PassEntity || got[1] != PassSemantic {
		t.Errorf("passes = %v", got)
	}
}

func TestRetrieveSemanticTimeoutDegrades(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 text.", Entities: []string{"TP53"}},
	}, common.DocumentGraph{})

	semantic := index.NewMemoryIndex()
	blocking := &fakeAI{embed: func(ctx context.Context, _ []byte) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	start := time.Now()
	rc, err := f.retriever(t, semantic, blocking, 50*time.Millisecond).
		Retrieve(context.Background(), "TP53", []string{"TP53"}, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("retrieval blocked for %v despite pass timeout", elapsed)
	}

	if !rc.Degraded {
		t.Error("degraded flag not set after semantic timeout")
	}
	if len(rc.Chunks) != 1 || rc.Chunks[0].Chunk.ID != "doc1_chunk_0" {
		t.Errorf("entity pass results lost: %+v", rc.Chunks)
	}
}

func TestRetrieveNoSeedsNoSemantic(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53 text.", Entities: []string{"TP53"}},
	}, common.DocumentGraph{})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "anything", nil, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if !rc.Empty() {
		t.Errorf("expected empty context, got %+v", rc)
	}
}

func TestRetrieveGraphContext(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "TP53.", Entities: []string{"TP53", "MDM2", "apoptosis"}},
	}, common.DocumentGraph{
		DocumentID: "doc1",
		Nodes: []common.Node{
			{Entity: "TP53", Count: 1}, {Entity: "MDM2", Count: 1}, {Entity: "apoptosis", Count: 1},
		},
		Edges: []common.Edge{
			{Source: "TP53", Target: "MDM2", Weight: 4, Type: "CO_OCCURRENCE"},
			{Source: "TP53", Target: "apoptosis", Weight: 2, Type: "CO_OCCURRENCE"},
		},
	})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "TP53", []string{"tp53"}, 10, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(rc.Relationships) != 2 {
		t.Errorf("got %d relationships, want 2", len(rc.Relationships))
	}
	if !strings.Contains(rc.GraphSummary, "TP53 is connected to:") {
		t.Errorf("summary missing header: %q", rc.GraphSummary)
	}
	// Strongest neighbor listed first.
	if !strings.Contains(rc.GraphSummary, "MDM2 (CO_OCCURRENCE, strength: 4), apoptosis (CO_OCCURRENCE, strength: 2)") {
		t.Errorf("summary order wrong: %q", rc.GraphSummary)
	}
}

func TestRetrieveTopKTruncation(t *testing.T) {
	f := newFixture(t)
	var chunks []common.Chunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, common.Chunk{
			ID:         fmt.Sprintf("doc1_chunk_%d", i),
			DocumentID: "doc1",
			Text:       "TP53 text.",
			Entities:   []string{"TP53"},
			Sequence:   i,
		})
	}
	f.ingest(t, common.Document{ID: "doc1"}, chunks, common.DocumentGraph{})

	rc, err := f.retriever(t, nil, nil, 0).Retrieve(context.Background(), "TP53", []string{"TP53"}, 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rc.Chunks) != 5 {
		t.Errorf("got %d chunks, want 5", len(rc.Chunks))
	}
}
