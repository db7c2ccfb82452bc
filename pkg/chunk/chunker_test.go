package chunk

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/helix-research/litgraph/pkg/common"
)

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(NewChunkerParams{})
	if c.size != DefaultSize {
		t.Errorf("size = %d, want %d", c.size, DefaultSize)
	}
	if c.overlap != DefaultOverlap {
		t.Errorf("overlap = %d, want %d", c.overlap, DefaultOverlap)
	}

	c = NewChunker(NewChunkerParams{Size: 100, Overlap: 200})
	if c.overlap != 50 {
		t.Errorf("clamped overlap = %d, want 50", c.overlap)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(NewChunkerParams{})
	if got := c.Chunk("", "doc1", nil, nil); got != nil {
		t.Errorf("empty text produced %d chunks", len(got))
	}
	if got := c.Chunk("   \n\n  ", "doc1", nil, nil); got != nil {
		t.Errorf("whitespace text produced %d chunks", len(got))
	}
}

func TestChunkSingleWindow(t *testing.T) {
	c := NewChunker(NewChunkerParams{})
	text := "TP53 regulates apoptosis. BRCA1 repairs DNA damage."
	got := c.Chunk(text, "doc1", nil, nil)

	want := []common.Chunk{
		{
			ID:         "doc1_chunk_0",
			DocumentID: "doc1",
			Text:       "TP53 regulates apoptosis. BRCA1 repairs DNA damage.",
			Page:       1,
			Sequence:   0,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Chunk() = %+v, want %+v", got, want)
	}
}

func TestChunkDeterministicIDs(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 40, Overlap: 10})
	text := "First sentence here. Second sentence here. Third sentence here. Fourth one."
	first := c.Chunk(text, "doc1", nil, nil)
	second := c.Chunk(text, "doc1", nil, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated chunking of identical input diverged")
	}
	for i, ch := range first {
		want := fmt.Sprintf("doc1_chunk_%d", i)
		if ch.ID != want {
			t.Errorf("chunk %d id = %q, want %q", i, ch.ID, want)
		}
		if ch.Sequence != i {
			t.Errorf("chunk %d sequence = %d", i, ch.Sequence)
		}
	}
}

func TestChunkSentenceAlignmentAndOverlap(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 60, Overlap: 25})
	text := "Alpha sentence number one. Beta sentence number two. Gamma sentence number three."
	got := c.Chunk(text, "doc1", nil, nil)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	// No chunk may end mid-sentence: each chunk text must end with terminal
	// punctuation since every input sentence does.
	for i, ch := range got {
		if !strings.HasSuffix(ch.Text, ".") {
			t.Errorf("chunk %d not sentence-aligned: %q", i, ch.Text)
		}
		if ch.HardSplit {
			t.Errorf("chunk %d unexpectedly hard-split", i)
		}
	}
	// Consecutive chunks share the overlap sentence.
	if !strings.Contains(got[1].Text, "Beta sentence number two.") {
		t.Errorf("second chunk missing overlap sentence: %q", got[1].Text)
	}
}

func TestChunkHardSplit(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 30, Overlap: 5})
	long := strings.Repeat("abcdefghij", 10) // 100 chars, no terminator
	got := c.Chunk(long, "doc1", nil, nil)

	if len(got) != 4 {
		t.Fatalf("expected 4 hard-split chunks, got %d", len(got))
	}
	for i, ch := range got {
		if !ch.HardSplit {
			t.Errorf("chunk %d not flagged as hard split", i)
		}
		if len(ch.Text) > 30 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(ch.Text))
		}
	}
	if joined := strings.Join([]string{got[0].Text, got[1].Text, got[2].Text, got[3].Text}, ""); joined != long {
		t.Error("hard-split chunks do not reassemble the original text")
	}
}

func TestChunkHardSplitRuneBoundary(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 10, Overlap: 2})
	long := strings.Repeat("αβγδ", 8) // 2-byte runes, 64 bytes
	got := c.Chunk(long, "doc1", nil, nil)
	for i, ch := range got {
		if strings.ContainsRune(ch.Text, '�') {
			t.Errorf("chunk %d split mid-rune: %q", i, ch.Text)
		}
	}
}

func TestChunkEntityTagging(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 40, Overlap: 12})
	text := "TP53 regulates apoptosis strongly. BRCA1 repairs DNA damage quickly."
	mentions := []common.EntityMention{
		{Entity: "TP53", Type: "GENE", Start: 0, End: 4},
		{Entity: "apoptosis", Type: "PROCESS", Start: 15, End: 24},
		{Entity: "BRCA1", Type: "GENE", Start: 35, End: 40},
	}
	got := c.Chunk(text, "doc1", nil, mentions)

	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if want := []string{"TP53", "apoptosis"}; !reflect.DeepEqual(got[0].Entities, want) {
		t.Errorf("chunk 0 entities = %v, want %v", got[0].Entities, want)
	}
	if want := []string{"BRCA1"}; !reflect.DeepEqual(got[1].Entities, want) {
		t.Errorf("chunk 1 entities = %v, want %v", got[1].Entities, want)
	}
}

func TestChunkEntitySpansBothChunks(t *testing.T) {
	// An entity mention inside the overlap region tags both chunks.
	c := NewChunker(NewChunkerParams{Size: 60, Overlap: 30})
	text := "Alpha sentence number one here. TP53 appears right here now. Gamma sentence number three."
	start := strings.Index(text, "TP53")
	mentions := []common.EntityMention{
		{Entity: "TP53", Type: "GENE", Start: start, End: start + 4},
	}
	got := c.Chunk(text, "doc1", nil, mentions)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	tagged := 0
	for _, ch := range got {
		for _, e := range ch.Entities {
			if e == "TP53" {
				tagged++
			}
		}
	}
	if tagged < 2 {
		t.Errorf("overlap mention tagged %d chunks, want at least 2", tagged)
	}
}

func TestChunkInvalidMentionsDropped(t *testing.T) {
	c := NewChunker(NewChunkerParams{})
	text := "TP53 regulates apoptosis."
	mentions := []common.EntityMention{
		{Entity: "TP53", Type: "GENE", Start: 0, End: 4},
		{Entity: "ghost", Type: "GENE", Start: 500, End: 510},
		{Entity: "inverted", Type: "GENE", Start: 10, End: 5},
	}
	got := c.Chunk(text, "doc1", nil, mentions)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if want := []string{"TP53"}; !reflect.DeepEqual(got[0].Entities, want) {
		t.Errorf("entities = %v, want %v", got[0].Entities, want)
	}
}

func TestChunkPageMapping(t *testing.T) {
	c := NewChunker(NewChunkerParams{Size: 40, Overlap: 10})
	text := "Page one sentence lives here. Page two sentence lives here instead."
	// First page ends after the first sentence.
	pageEnds := []int{30, len(text)}
	got := c.Chunk(text, "doc1", pageEnds, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].Page != 1 {
		t.Errorf("chunk 0 page = %d, want 1", got[0].Page)
	}
	if got[1].Page != 2 {
		t.Errorf("chunk 1 page = %d, want 2", got[1].Page)
	}
}

func TestPageFor(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		pageEnds []int
		want     int
	}{
		{name: "no boundaries", offset: 120, pageEnds: nil, want: 1},
		{name: "first page", offset: 0, pageEnds: []int{100, 200}, want: 1},
		{name: "second page", offset: 150, pageEnds: []int{100, 200}, want: 2},
		{name: "exactly on boundary", offset: 100, pageEnds: []int{100, 200}, want: 2},
		{name: "beyond last boundary", offset: 999, pageEnds: []int{100, 200}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageFor(tt.offset, tt.pageEnds); got != tt.want {
				t.Errorf("pageFor(%d, %v) = %d, want %d", tt.offset, tt.pageEnds, got, tt.want)
			}
		})
	}
}
