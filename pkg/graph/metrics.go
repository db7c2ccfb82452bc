package graph

import (
	"math"
	"sort"

	"github.com/helix-research/litgraph/pkg/common"
)

const (
	eigenvectorIterations = 100
	eigenvectorTolerance  = 1e-6
)

// adjacency is an index-based view of a merged graph used by the metric
// algorithms. Node indices follow sorted entity id order so every metric is
// deterministic for a given graph.
type adjacency struct {
	entities  []string
	index     map[string]int
	neighbors [][]int
	weights   [][]float64
	degree    []int
	strength  []float64
	edgeCount int
}

func buildAdjacency(g *common.MergedGraph) *adjacency {
	entities := make([]string, 0, len(g.Nodes))
	for entity := range g.Nodes {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	adj := &adjacency{
		entities:  entities,
		index:     make(map[string]int, len(entities)),
		neighbors: make([][]int, len(entities)),
		weights:   make([][]float64, len(entities)),
		degree:    make([]int, len(entities)),
		strength:  make([]float64, len(entities)),
	}
	for i, entity := range entities {
		adj.index[entity] = i
	}

	keys := make([]string, 0, len(g.Edges))
	for key := range g.Edges {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		edge := g.Edges[key]
		s, okS := adj.index[edge.Source]
		t, okT := adj.index[edge.Target]
		if !okS || !okT || s == t {
			continue
		}
		adj.neighbors[s] = append(adj.neighbors[s], t)
		adj.neighbors[t] = append(adj.neighbors[t], s)
		adj.weights[s] = append(adj.weights[s], edge.Weight)
		adj.weights[t] = append(adj.weights[t], edge.Weight)
		adj.degree[s]++
		adj.degree[t]++
		adj.strength[s] += edge.Weight
		adj.strength[t] += edge.Weight
		adj.edgeCount++
	}
	return adj
}

// computeMetrics derives the full metric set for a merged graph snapshot.
func computeMetrics(g *common.MergedGraph) *common.GraphMetrics {
	adj := buildAdjacency(g)
	n := len(adj.entities)

	metrics := &common.GraphMetrics{
		Degree:      make(map[string]int, n),
		Betweenness: betweenness(adj),
		Eigenvector: eigenvector(adj),
		Communities: communities(adj),
	}
	for i, entity := range adj.entities {
		metrics.Degree[entity] = adj.degree[i]
	}
	if n > 1 {
		metrics.Density = 2 * float64(adj.edgeCount) / float64(n*(n-1))
	}
	if n > 0 {
		metrics.AvgDegree = 2 * float64(adj.edgeCount) / float64(n)
	}
	return metrics
}

// betweenness computes normalized betweenness centrality with Brandes'
// accumulation over unweighted shortest paths.
func betweenness(adj *adjacency) map[string]float64 {
	n := len(adj.entities)
	scores := make([]float64, n)

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	queue := make([]int, 0, n)
	stack := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		sigma[s] = 1
		dist[s] = 0
		queue = append(queue[:0], s)
		stack = stack[:0]

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj.neighbors[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
	}

	result := make(map[string]float64, n)
	// Each undirected pair is counted from both endpoints; halve, then
	// normalize to [0, 1] when the graph is large enough for it.
	scale := 0.5
	if n > 2 {
		scale = 1 / float64((n-1)*(n-2))
	}
	for i, entity := range adj.entities {
		result[entity] = scores[i] * scale
	}
	return result
}

// eigenvector computes weighted eigenvector centrality by power iteration,
// normalized to unit L2 norm.
func eigenvector(adj *adjacency) map[string]float64 {
	n := len(adj.entities)
	result := make(map[string]float64, n)
	if n == 0 {
		return result
	}

	vec := make([]float64, n)
	next := make([]float64, n)
	for i := range vec {
		vec[i] = 1 / math.Sqrt(float64(n))
	}

	for iter := 0; iter < eigenvectorIterations; iter++ {
		for i := range next {
			next[i] = 0
		}
		for v := range adj.neighbors {
			for i, w := range adj.neighbors[v] {
				next[w] += vec[v] * adj.weights[v][i]
			}
		}

		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			// No edges: centrality is undefined, report zeros.
			for i := range vec {
				vec[i] = 0
			}
			break
		}

		diff := 0.0
		for i := range next {
			next[i] /= norm
			diff += math.Abs(next[i] - vec[i])
		}
		vec, next = next, vec
		if diff < eigenvectorTolerance {
			break
		}
	}

	for i, entity := range adj.entities {
		result[entity] = vec[i]
	}
	return result
}

// communities assigns each node a community id via greedy modularity
// optimization (local moving on the weighted graph). Nodes are visited in
// sorted entity order and ties go to the community containing the lowest
// entity id, so the assignment is deterministic. Community ids are numbered
// by the smallest entity id of their members.
func communities(adj *adjacency) map[string]int {
	n := len(adj.entities)
	result := make(map[string]int, n)
	if n == 0 {
		return result
	}

	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	totalWeight := 0.0
	for _, s := range adj.strength {
		totalWeight += s
	}
	totalWeight /= 2

	if totalWeight > 0 {
		communityStrength := make([]float64, n)
		copy(communityStrength, adj.strength)

		for pass := 0; pass < 32; pass++ {
			moved := false
			for v := 0; v < n; v++ {
				// Weight from v into each adjacent community.
				linkWeight := make(map[int]float64)
				for i, w := range adj.neighbors[v] {
					linkWeight[community[w]] += adj.weights[v][i]
				}

				current := community[v]
				communityStrength[current] -= adj.strength[v]

				best := current
				bestGain := linkWeight[current] - communityStrength[current]*adj.strength[v]/(2*totalWeight)
				candidates := make([]int, 0, len(linkWeight))
				for c := range linkWeight {
					candidates = append(candidates, c)
				}
				sort.Ints(candidates)
				for _, c := range candidates {
					gain := linkWeight[c] - communityStrength[c]*adj.strength[v]/(2*totalWeight)
					if gain > bestGain+1e-12 {
						bestGain = gain
						best = c
					}
				}

				communityStrength[best] += adj.strength[v]
				if best != current {
					community[v] = best
					moved = true
				}
			}
			if !moved {
				break
			}
		}
	}

	// Renumber communities in order of their smallest member index, which is
	// the lowest entity id since entities are sorted.
	renumber := make(map[int]int)
	nextID := 0
	for v := 0; v < n; v++ {
		if _, ok := renumber[community[v]]; !ok {
			renumber[community[v]] = nextID
			nextID++
		}
	}
	for i, entity := range adj.entities {
		result[entity] = renumber[community[i]]
	}
	return result
}
