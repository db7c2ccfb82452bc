package index

import (
	"reflect"
	"testing"

	"github.com/helix-research/litgraph/pkg/common"
)

func TestChunkStorePutSupersedes(t *testing.T) {
	s := NewChunkStore()
	doc := common.Document{ID: "doc1", ProjectID: "p1", Name: "paper.pdf"}

	s.Put(doc, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "old zero", Sequence: 0},
		{ID: "doc1_chunk_1", DocumentID: "doc1", Text: "old one", Sequence: 1},
	})
	s.Put(doc, []common.Chunk{
		{ID: "doc1_chunk_0", DocumentID: "doc1", Text: "new zero", Sequence: 0},
	})

	if _, ok := s.Get("doc1_chunk_1"); ok {
		t.Error("superseded chunk still retrievable")
	}
	ch, ok := s.Get("doc1_chunk_0")
	if !ok || ch.Text != "new zero" {
		t.Errorf("Get = %+v, ok=%v", ch, ok)
	}
	if got := s.ForDocument("doc1"); len(got) != 1 {
		t.Errorf("ForDocument returned %d chunks, want 1", len(got))
	}
}

func TestChunkStoreRemove(t *testing.T) {
	s := NewChunkStore()
	s.Put(common.Document{ID: "doc1"}, []common.Chunk{{ID: "doc1_chunk_0", DocumentID: "doc1"}})
	s.Put(common.Document{ID: "doc2"}, []common.Chunk{{ID: "doc2_chunk_0", DocumentID: "doc2"}})

	s.Remove("doc1")
	if _, ok := s.Get("doc1_chunk_0"); ok {
		t.Error("removed document's chunk still present")
	}
	if _, ok := s.Document("doc1"); ok {
		t.Error("removed document record still present")
	}
	if _, ok := s.Get("doc2_chunk_0"); !ok {
		t.Error("unrelated document's chunk lost")
	}

	// Removing an unknown document is a no-op.
	s.Remove("doc-missing")
}

func TestChunkStoreDocuments(t *testing.T) {
	s := NewChunkStore()
	s.Put(common.Document{ID: "b"}, nil)
	s.Put(common.Document{ID: "a"}, nil)
	got := s.Documents()
	want := []common.Document{{ID: "a"}, {ID: "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Documents() = %v, want %v", got, want)
	}
}

func TestChunkStoreForDocumentOrder(t *testing.T) {
	s := NewChunkStore()
	s.Put(common.Document{ID: "doc1"}, []common.Chunk{
		{ID: "doc1_chunk_2", DocumentID: "doc1", Sequence: 2},
		{ID: "doc1_chunk_0", DocumentID: "doc1", Sequence: 0},
		{ID: "doc1_chunk_1", DocumentID: "doc1", Sequence: 1},
	})
	got := s.ForDocument("doc1")
	for i, ch := range got {
		if ch.Sequence != i {
			t.Errorf("position %d holds sequence %d", i, ch.Sequence)
		}
	}
}
