// Package assemble turns a retrieval context into the structured prompt
// handed to the generator. It orders and budgets the evidence; it never
// calls the model itself.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/helix-research/litgraph/pkg/common"
)

const (
	// DefaultTokenBudget bounds the rendered excerpt block.
	DefaultTokenBudget = 4000

	defaultEncoding = "o200k_base"
)

// StructuredPrompt is the serializable output of assembly. Citations lists
// the chunk ids that made it into the prompt, in rendered order, so callers
// can resolve [[chunk_id]] markers in the generated text back to sources.
type StructuredPrompt struct {
	System    string   `json:"system"`
	User      string   `json:"user"`
	Citations []string `json:"citations"`
}

// Assembler builds structured prompts from retrieval contexts.
//
// An Assembler should be created using NewAssembler.
type Assembler struct {
	tokenBudget int
	encoder     *tiktoken.Tiktoken
}

// NewAssemblerParams defines the configuration for creating an Assembler.
// TokenBudget bounds the excerpt block (DefaultTokenBudget when zero);
// Encoding names the tiktoken encoding used for counting.
type NewAssemblerParams struct {
	TokenBudget int
	Encoding    string
}

// NewAssembler creates an Assembler with the provided parameters.
func NewAssembler(params NewAssemblerParams) (*Assembler, error) {
	budget := params.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	encoding := params.Encoding
	if encoding == "" {
		encoding = defaultEncoding
	}
	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return &Assembler{tokenBudget: budget, encoder: encoder}, nil
}

// Assemble renders the retrieval context for the given task. Excerpts are
// ordered by score descending and trimmed to the token budget; entity
// relationships and the graph summary follow the excerpts. An empty context
// produces a prompt that says so rather than an error.
func (a *Assembler) Assemble(rc *common.RetrievalContext, query string, task Task) (*StructuredPrompt, error) {
	strat, ok := strategies[task]
	if !ok {
		return nil, fmt.Errorf("unknown task %v", task)
	}

	var b strings.Builder
	var citations []string

	if rc.Empty() {
		b.WriteString("No supporting excerpts were found in the indexed corpus.\n")
	} else {
		citations = a.renderExcerpts(&b, rc.Chunks)
		renderRelationships(&b, rc.Relationships)
		if rc.GraphSummary != "" {
			b.WriteString("\nGraph context:\n")
			b.WriteString(rc.GraphSummary)
			b.WriteString("\n")
		}
	}
	if rc != nil && rc.Degraded {
		b.WriteString("\nNote: semantic search was unavailable for this query; the context covers entity and graph matches only.\n")
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(strat.instruction)

	return &StructuredPrompt{
		System:    strat.system,
		User:      b.String(),
		Citations: citations,
	}, nil
}

// renderExcerpts writes score-ordered excerpt blocks until the token budget
// is exhausted and returns the chunk ids it rendered.
func (a *Assembler) renderExcerpts(b *strings.Builder, chunks []common.ScoredChunk) []string {
	ordered := make([]common.ScoredChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var citations []string
	remaining := a.tokenBudget
	for i, sc := range ordered {
		if remaining <= 0 {
			break
		}

		name := sc.DocumentName
		if name == "" {
			name = sc.Chunk.DocumentID
		}
		header := fmt.Sprintf("[Excerpt %d from %s, Page %d] (id: %s)\n", i+1, name, sc.Chunk.Page, sc.Chunk.ID)

		text := sc.Chunk.Text
		tokens := a.encoder.Encode(text, nil, nil)
		if len(tokens) > remaining {
			text = a.encoder.Decode(tokens[:remaining]) + "…"
			remaining = 0
		} else {
			remaining -= len(tokens)
		}

		b.WriteString(header)
		b.WriteString(text)
		b.WriteString("\n\n")
		citations = append(citations, sc.Chunk.ID)
	}
	return citations
}

// renderRelationships writes the entity relationships as weight-ordered
// triples.
func renderRelationships(b *strings.Builder, relationships []common.Edge) {
	if len(relationships) == 0 {
		return
	}
	ordered := make([]common.Edge, len(relationships))
	copy(ordered, relationships)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight > ordered[j].Weight
		}
		si, ti := ordered[i].CanonicalPair()
		sj, tj := ordered[j].CanonicalPair()
		if si != sj {
			return si < sj
		}
		return ti < tj
	})

	b.WriteString("Known relationships:\n")
	for _, edge := range ordered {
		fmt.Fprintf(b, "(%s, %s, %s) strength %g\n", edge.Source, edge.Type, edge.Target, edge.Weight)
	}
}
