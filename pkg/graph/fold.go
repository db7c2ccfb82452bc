package graph

import (
	"hash/fnv"
	"sort"

	"github.com/helix-research/litgraph/pkg/common"
)

// pairKey returns the canonical map key for an undirected entity pair.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x1f" + b
}

// includedSetKey hashes the sorted included-document ids. Used to detect
// whether a cached snapshot still matches the included set.
func includedSetKey(ids []string) uint64 {
	h := fnv.New64a()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// edgeContribution is one document's share of a merged edge, kept so that
// evidence truncation can prefer the strongest contributors.
type edgeContribution struct {
	docID    string
	weight   float64
	evidence []string
}

// fold merges the given document graphs into a single project graph.
// Node counts and edge weights are summed across documents; evidence is
// concatenated up to evidenceCap snippets, taken from the highest-weight
// contributing documents first.
//
// The fold is order-independent: documents are visited in sorted id order
// and every derived value is a commutative sum or a deterministic selection.
func fold(docs map[string]common.DocumentGraph, evidenceCap int) (*common.MergedGraph, error) {
	merged := &common.MergedGraph{
		Nodes: make(map[string]common.Node),
		Edges: make(map[string]common.Edge),
	}
	contributions := make(map[string][]edgeContribution)

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		dg := docs[id]

		for _, node := range dg.Nodes {
			existing, ok := merged.Nodes[node.Entity]
			if !ok {
				merged.Nodes[node.Entity] = node
				continue
			}
			existing.Count += node.Count
			if existing.Type == "" {
				existing.Type = node.Type
			}
			merged.Nodes[node.Entity] = existing
		}

		for _, edge := range dg.Edges {
			source, target := edge.CanonicalPair()
			key := pairKey(source, target)

			existing, ok := merged.Edges[key]
			if !ok {
				existing = common.Edge{Source: source, Target: target, Type: edge.Type}
			}
			existing.Weight += edge.Weight
			if existing.Type == "" {
				existing.Type = edge.Type
			}
			if err := checkWeight(existing); err != nil {
				return nil, err
			}
			merged.Edges[key] = existing

			contributions[key] = append(contributions[key], edgeContribution{
				docID:    dg.DocumentID,
				weight:   edge.Weight,
				evidence: edge.Evidence,
			})
		}
	}

	for key, edge := range merged.Edges {
		edge.Evidence = capEvidence(contributions[key], evidenceCap)
		merged.Edges[key] = edge
	}

	return merged, nil
}

// capEvidence flattens per-document evidence into at most cap snippets,
// taking documents in descending contribution weight (document id breaks
// ties) and preserving each document's own snippet order.
func capEvidence(contribs []edgeContribution, cap int) []string {
	sort.SliceStable(contribs, func(i, j int) bool {
		if contribs[i].weight != contribs[j].weight {
			return contribs[i].weight > contribs[j].weight
		}
		return contribs[i].docID < contribs[j].docID
	})

	var evidence []string
	for _, contrib := range contribs {
		for _, snippet := range contrib.evidence {
			if len(evidence) >= cap {
				return evidence
			}
			evidence = append(evidence, snippet)
		}
	}
	return evidence
}
