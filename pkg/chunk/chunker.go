package chunk

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/helix-research/litgraph/pkg/common"
	"github.com/helix-research/litgraph/pkg/logger"
)

const (
	// DefaultSize is the target chunk size in characters.
	DefaultSize = 500
	// DefaultOverlap is the overlap carried between consecutive chunks.
	DefaultOverlap = 100
)

// Chunker splits document text into overlapping, sentence-aligned chunks and
// tags each chunk with the entities whose mentions fall inside it.
//
// A Chunker should be created using NewChunker.
type Chunker struct {
	size    int
	overlap int
}

// NewChunkerParams defines the configuration for creating a Chunker.
// Size is the target chunk size in characters, Overlap the number of
// trailing characters carried into the next chunk.
type NewChunkerParams struct {
	Size    int
	Overlap int
}

// NewChunker creates a Chunker with the provided parameters. Zero values
// fall back to the defaults; an overlap at or above the chunk size is
// clamped to half the size.
func NewChunker(params NewChunkerParams) *Chunker {
	size := params.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := params.Overlap
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into sentence-respecting windows and tags each window
// with every mention whose offset span overlaps it. pageEnds holds the
// cumulative end offset of each page as supplied by the PDF extractor; an
// empty slice maps everything to page 1.
//
// Empty or whitespace-only input yields zero chunks. Mentions with offsets
// outside the text bounds are dropped with a warning.
func (c *Chunker) Chunk(text string, docID string, pageEnds []int, mentions []common.EntityMention) []common.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	mentions = validMentions(text, docID, mentions)
	spans := sentenceSpans(text)

	var chunks []common.Chunk
	var window []span
	windowLen := 0

	flush := func(hardSplit bool) {
		if len(window) == 0 {
			return
		}
		start := window[0].Start
		end := window[len(window)-1].End
		chunks = append(chunks, common.Chunk{
			ID:         chunkID(docID, len(chunks)),
			DocumentID: docID,
			Text:       strings.Join(strings.Fields(text[start:end]), " "),
			Page:       pageFor(start, pageEnds),
			Entities:   tagEntities(mentions, start, end),
			Sequence:   len(chunks),
			HardSplit:  hardSplit,
		})
	}

	for _, sp := range spans {
		length := sp.End - sp.Start

		if length > c.size {
			// A single sentence exceeding the window: flush what we have and
			// hard-split the sentence itself.
			flush(false)
			window = nil
			windowLen = 0
			for _, part := range hardSplit(text, sp, c.size) {
				window = []span{part}
				flush(true)
			}
			window = nil
			continue
		}

		if windowLen+length > c.size && len(window) > 0 {
			flush(false)
			window = overlapTail(window, c.overlap)
			windowLen = 0
			for _, sp := range window {
				windowLen += sp.End - sp.Start
			}
			// The carried tail must still leave room for the incoming
			// sentence, otherwise the window would immediately overflow
			// and re-emit the same sentences.
			for len(window) > 0 && windowLen+length > c.size {
				windowLen -= window[0].End - window[0].Start
				window = window[1:]
			}
		}

		window = append(window, sp)
		windowLen += length
	}
	flush(false)

	return chunks
}

func chunkID(docID string, sequence int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, sequence)
}

// overlapTail returns the trailing sentences of the previous window whose
// combined length first reaches the configured overlap.
func overlapTail(window []span, overlap int) []span {
	if overlap <= 0 {
		return nil
	}
	total := 0
	i := len(window)
	for i > 0 {
		total += window[i-1].End - window[i-1].Start
		i--
		if total >= overlap {
			break
		}
	}
	tail := make([]span, len(window)-i)
	copy(tail, window[i:])
	return tail
}

// hardSplit cuts an oversized sentence span into size-bounded parts on rune
// boundaries.
func hardSplit(text string, sp span, size int) []span {
	var parts []span
	start := sp.Start
	for start < sp.End {
		end := start + size
		if end >= sp.End {
			end = sp.End
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + size
			}
		}
		parts = append(parts, span{Start: start, End: end})
		start = end
	}
	return parts
}

// pageFor maps a character offset to its 1-based page number using the
// cumulative page end offsets supplied by the extractor.
func pageFor(offset int, pageEnds []int) int {
	if len(pageEnds) == 0 {
		return 1
	}
	for i, end := range pageEnds {
		if offset < end {
			return i + 1
		}
	}
	return len(pageEnds)
}

func validMentions(text string, docID string, mentions []common.EntityMention) []common.EntityMention {
	valid := mentions[:0:0]
	for _, m := range mentions {
		if m.Entity == "" || m.Start < 0 || m.End > len(text) || m.End <= m.Start {
			logger.Warn("[Chunk] Dropping mention with invalid offsets",
				"doc", docID, "entity", m.Entity, "start", m.Start, "end", m.End)
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// tagEntities returns the sorted, deduplicated names of all entities whose
// mention span overlaps [start, end). An entity may tag several overlapping
// chunks.
func tagEntities(mentions []common.EntityMention, start, end int) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, m := range mentions {
		if m.Start < end && m.End > start && !seen[m.Entity] {
			seen[m.Entity] = true
			entities = append(entities, m.Entity)
		}
	}
	sort.Strings(entities)
	return entities
}
