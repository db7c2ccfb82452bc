package index

import (
	"reflect"
	"testing"

	"github.com/helix-research/litgraph/pkg/common"
)

func TestEntityIndexLookupCaseInsensitive(t *testing.T) {
	idx := NewEntityIndex()
	idx.Put("doc1", []common.Chunk{
		{ID: "doc1_chunk_0", Entities: []string{"TP53", "apoptosis"}},
		{ID: "doc1_chunk_1", Entities: []string{"TP53"}},
	})

	want := []string{"doc1_chunk_0", "doc1_chunk_1"}
	for _, query := range []string{"TP53", "tp53", "Tp53", "  tp53 "} {
		if got := idx.Lookup(query); !reflect.DeepEqual(got, want) {
			t.Errorf("Lookup(%q) = %v, want %v", query, got, want)
		}
	}
	if got := idx.Lookup("BRCA1"); got != nil {
		t.Errorf("Lookup of unknown entity = %v", got)
	}
}

func TestEntityIndexPutReplaces(t *testing.T) {
	idx := NewEntityIndex()
	idx.Put("doc1", []common.Chunk{{ID: "doc1_chunk_0", Entities: []string{"TP53"}}})
	idx.Put("doc1", []common.Chunk{{ID: "doc1_chunk_0", Entities: []string{"BRCA1"}}})

	if got := idx.Lookup("TP53"); got != nil {
		t.Errorf("stale entry after re-put: %v", got)
	}
	if got := idx.Lookup("BRCA1"); !reflect.DeepEqual(got, []string{"doc1_chunk_0"}) {
		t.Errorf("Lookup(BRCA1) = %v", got)
	}
}

func TestEntityIndexRemove(t *testing.T) {
	idx := NewEntityIndex()
	idx.Put("doc1", []common.Chunk{{ID: "doc1_chunk_0", Entities: []string{"TP53"}}})
	idx.Put("doc2", []common.Chunk{{ID: "doc2_chunk_0", Entities: []string{"TP53", "BRCA1"}}})

	idx.Remove("doc1")
	if got := idx.Lookup("TP53"); !reflect.DeepEqual(got, []string{"doc2_chunk_0"}) {
		t.Errorf("Lookup(TP53) after remove = %v", got)
	}

	idx.Remove("doc2")
	if got := idx.Entities(); len(got) != 0 {
		t.Errorf("entities after removing all docs: %v", got)
	}
}

func TestEntityIndexSurface(t *testing.T) {
	idx := NewEntityIndex()
	idx.Put("doc1", []common.Chunk{{ID: "doc1_chunk_0", Entities: []string{"Tumor Suppressor p53"}}})

	if got := idx.Surface("tumor suppressor P53"); got != "Tumor Suppressor p53" {
		t.Errorf("Surface() = %q", got)
	}
	if got := idx.Surface("unknown"); got != "unknown" {
		t.Errorf("Surface(unknown) = %q", got)
	}
}

func TestNormalizeEntity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TP53", "tp53"},
		{"  Tumor   Suppressor  ", "tumor suppressor"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeEntity(tt.in); got != tt.want {
			t.Errorf("NormalizeEntity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
