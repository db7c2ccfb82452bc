package graph

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/helix-research/litgraph/pkg/common"
)

func docGraph(docID string, edges ...common.Edge) common.DocumentGraph {
	seen := make(map[string]bool)
	dg := common.DocumentGraph{DocumentID: docID, Edges: edges}
	for _, e := range edges {
		for _, entity := range []string{e.Source, e.Target} {
			if !seen[entity] {
				seen[entity] = true
				dg.Nodes = append(dg.Nodes, common.Node{Entity: entity, Type: "GENE", Count: 1})
			}
		}
	}
	return dg
}

func TestAggregatorWeightSum(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})

	// doc1 contributes TP53-apoptosis with weight 2, doc2 with weight 3.
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2, Type: "CO_OCCURRENCE"})); err != nil {
		t.Fatal(err)
	}
	if err := a.Include(docGraph("doc2",
		common.Edge{Source: "apoptosis", Target: "TP53", Weight: 3, Type: "CO_OCCURRENCE"})); err != nil {
		t.Fatal(err)
	}

	merged, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	edge, ok := merged.Edges[pairKey("TP53", "apoptosis")]
	if !ok {
		t.Fatal("merged edge missing")
	}
	if edge.Weight != 5 {
		t.Errorf("merged weight = %v, want 5", edge.Weight)
	}
	if edge.Source != "TP53" || edge.Target != "apoptosis" {
		t.Errorf("edge not canonical: %s-%s", edge.Source, edge.Target)
	}

	// Excluding doc1 leaves only doc2's contribution.
	a.Exclude("doc1")
	merged, err = a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	edge = merged.Edges[pairKey("TP53", "apoptosis")]
	if edge.Weight != 3 {
		t.Errorf("weight after exclusion = %v, want 3", edge.Weight)
	}
}

func TestAggregatorFoldOrderIndependent(t *testing.T) {
	graphs := []common.DocumentGraph{
		docGraph("doc1",
			common.Edge{Source: "TP53", Target: "MDM2", Weight: 1},
			common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2}),
		docGraph("doc2",
			common.Edge{Source: "MDM2", Target: "TP53", Weight: 4}),
		docGraph("doc3",
			common.Edge{Source: "BRCA1", Target: "TP53", Weight: 1}),
	}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}}
	var snapshots []*common.MergedGraph
	for _, order := range orders {
		a := NewAggregator(NewAggregatorParams{})
		for _, i := range order {
			if err := a.Include(graphs[i]); err != nil {
				t.Fatal(err)
			}
		}
		merged, err := a.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		snapshots = append(snapshots, merged)
	}

	for i := 1; i < len(snapshots); i++ {
		if !reflect.DeepEqual(snapshots[0].Edges, snapshots[i].Edges) {
			t.Errorf("fold order %v produced different edges", orders[i])
		}
		if !reflect.DeepEqual(snapshots[0].Nodes, snapshots[i].Nodes) {
			t.Errorf("fold order %v produced different nodes", orders[i])
		}
	}
}

func TestAggregatorExcludeLeavesNoResidue(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2})); err != nil {
		t.Fatal(err)
	}
	if err := a.Include(docGraph("doc2",
		common.Edge{Source: "EGFR", Target: "erlotinib", Weight: 1})); err != nil {
		t.Fatal(err)
	}

	a.Exclude("doc1")
	merged, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := merged.Edges[pairKey("TP53", "apoptosis")]; ok {
		t.Error("excluded document's edge still present")
	}
	if _, ok := merged.Nodes["TP53"]; ok {
		t.Error("excluded document's node still present")
	}

	// A fresh aggregator fed only doc2 must produce the same graph.
	fresh := NewAggregator(NewAggregatorParams{})
	if err := fresh.Include(docGraph("doc2",
		common.Edge{Source: "EGFR", Target: "erlotinib", Weight: 1})); err != nil {
		t.Fatal(err)
	}
	want, err := fresh.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(merged.Edges, want.Edges) || !reflect.DeepEqual(merged.Nodes, want.Nodes) {
		t.Error("exclusion left residual state compared to fresh fold")
	}
}

func TestAggregatorReIncludeReplaces(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2})); err != nil {
		t.Fatal(err)
	}
	// Re-ingesting the same document replaces, never accumulates.
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2})); err != nil {
		t.Fatal(err)
	}
	merged, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := merged.Edges[pairKey("TP53", "apoptosis")].Weight; got != 2 {
		t.Errorf("weight after re-include = %v, want 2", got)
	}
}

func TestAggregatorEvidenceCapPrefersHeaviest(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{EvidenceCap: 4})

	light := docGraph("doc-light", common.Edge{
		Source: "TP53", Target: "apoptosis", Weight: 1,
		Evidence: []string{"light-1", "light-2", "light-3"},
	})
	heavy := docGraph("doc-heavy", common.Edge{
		Source: "TP53", Target: "apoptosis", Weight: 10,
		Evidence: []string{"heavy-1", "heavy-2", "heavy-3"},
	})
	if err := a.Include(light); err != nil {
		t.Fatal(err)
	}
	if err := a.Include(heavy); err != nil {
		t.Fatal(err)
	}

	merged, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	got := merged.Edges[pairKey("TP53", "apoptosis")].Evidence
	want := []string{"heavy-1", "heavy-2", "heavy-3", "light-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("evidence = %v, want %v", got, want)
	}
}

func TestAggregatorRejectsInvalidWeights(t *testing.T) {
	tests := []struct {
		name   string
		weight float64
	}{
		{name: "negative", weight: -1},
		{name: "nan", weight: math.NaN()},
		{name: "inf", weight: math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator(NewAggregatorParams{})
			err := a.Include(docGraph("doc1",
				common.Edge{Source: "A", Target: "B", Weight: tt.weight}))
			if !errors.Is(err, ErrConsistency) {
				t.Errorf("Include() error = %v, want ErrConsistency", err)
			}
			if got := a.Included(); len(got) != 0 {
				t.Errorf("rejected graph was still included: %v", got)
			}
		})
	}
}

func TestAggregatorNeighbors(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "TP53", Target: "MDM2", Weight: 4},
		common.Edge{Source: "TP53", Target: "apoptosis", Weight: 2},
		common.Edge{Source: "TP53", Target: "BRCA1", Weight: 2},
		common.Edge{Source: "EGFR", Target: "erlotinib", Weight: 9})); err != nil {
		t.Fatal(err)
	}

	got := a.Neighbors("TP53")
	if len(got) != 3 {
		t.Fatalf("got %d neighbor edges, want 3", len(got))
	}
	// Weight descending, then neighbor id for equal weights.
	if otherEnd(got[0], "TP53") != "MDM2" {
		t.Errorf("first neighbor = %s, want MDM2", otherEnd(got[0], "TP53"))
	}
	if otherEnd(got[1], "TP53") != "BRCA1" || otherEnd(got[2], "TP53") != "apoptosis" {
		t.Errorf("tie order = %s, %s; want BRCA1, apoptosis",
			otherEnd(got[1], "TP53"), otherEnd(got[2], "TP53"))
	}

	if got := a.Neighbors("unknown-entity"); len(got) != 0 {
		t.Errorf("unknown entity returned %d edges", len(got))
	}
}

func TestAggregatorSnapshotCaching(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})
	if err := a.Include(docGraph("doc1",
		common.Edge{Source: "A", Target: "B", Weight: 1})); err != nil {
		t.Fatal(err)
	}

	first, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("unchanged included set rebuilt the snapshot")
	}

	if err := a.Include(docGraph("doc2",
		common.Edge{Source: "B", Target: "C", Weight: 1})); err != nil {
		t.Fatal(err)
	}
	third, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("snapshot not invalidated after Include")
	}
}

func TestAggregatorWeightConservation(t *testing.T) {
	a := NewAggregator(NewAggregatorParams{})
	perDocTotal := 0.0
	for d := 0; d < 5; d++ {
		edges := []common.Edge{
			{Source: "A", Target: "B", Weight: float64(d + 1)},
			{Source: "B", Target: "C", Weight: 2},
		}
		for _, e := range edges {
			perDocTotal += e.Weight
		}
		if err := a.Include(docGraph(fmt.Sprintf("doc%d", d), edges...)); err != nil {
			t.Fatal(err)
		}
	}

	merged, err := a.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	mergedTotal := 0.0
	for _, e := range merged.Edges {
		mergedTotal += e.Weight
	}
	if mergedTotal != perDocTotal {
		t.Errorf("merged weight total = %v, want %v", mergedTotal, perDocTotal)
	}
}
