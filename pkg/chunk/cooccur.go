package chunk

import (
	"sort"

	"github.com/helix-research/litgraph/internal/util"
	"github.com/helix-research/litgraph/pkg/common"
)

const (
	// RelationCoOccurrence is the type of edges derived from entities
	// tagged on the same chunk.
	RelationCoOccurrence = "CO_OCCURRENCE"

	// evidencePerPair bounds the snippets kept per entity pair during
	// extraction. The project-level cap is applied later when graphs are
	// merged.
	evidencePerPair = 3

	evidenceSnippetRunes = 200
)

// CoOccurrence derives a document graph from chunk entity tags: one node per
// tagged entity (counting the chunks it appears in, typed from mentions) and
// one undirected edge per entity pair tagged on the same chunk, weighted by
// the number of co-occurrences. Used when the caller supplies no explicit
// relationships.
func CoOccurrence(docID string, chunks []common.Chunk, mentions []common.EntityMention) common.DocumentGraph {
	types := make(map[string]string)
	for _, m := range mentions {
		if _, ok := types[m.Entity]; !ok {
			types[m.Entity] = m.Type
		}
	}

	nodeCount := make(map[string]int)
	type pairState struct {
		weight   float64
		evidence []string
	}
	pairs := make(map[[2]string]*pairState)

	for _, ch := range chunks {
		for _, entity := range ch.Entities {
			nodeCount[entity]++
		}
		for i := 0; i < len(ch.Entities); i++ {
			for j := i + 1; j < len(ch.Entities); j++ {
				a, b := ch.Entities[i], ch.Entities[j]
				if a > b {
					a, b = b, a
				}
				key := [2]string{a, b}
				state := pairs[key]
				if state == nil {
					state = &pairState{}
					pairs[key] = state
				}
				state.weight++
				if len(state.evidence) < evidencePerPair {
					state.evidence = append(state.evidence, util.TruncateRunes(ch.Text, evidenceSnippetRunes))
				}
			}
		}
	}

	dg := common.DocumentGraph{DocumentID: docID}

	entities := make([]string, 0, len(nodeCount))
	for entity := range nodeCount {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		dg.Nodes = append(dg.Nodes, common.Node{
			Entity: entity,
			Type:   types[entity],
			Count:  nodeCount[entity],
		})
	}

	keys := make([][2]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, key := range keys {
		state := pairs[key]
		dg.Edges = append(dg.Edges, common.Edge{
			Source:   key[0],
			Target:   key[1],
			Weight:   state.weight,
			Type:     RelationCoOccurrence,
			Evidence: state.evidence,
		})
	}

	return dg
}
