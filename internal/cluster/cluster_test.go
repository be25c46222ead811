package cluster

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"calmd/internal/model"
)

// seededVectors mimics seed=42 by using a fixed-seed generator rather than
// the forbidden global math/rand top-level functions.
func seededVectors(seed int64, n, dim int, center []float64, spread float64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32(center[d] + spread*(r.Float64()-0.5))
		}
		out[i] = v
	}
	return out
}

func TestRunFindsCohesiveCluster(t *testing.T) {
	const dim = 128
	center := make([]float64, dim)
	for d := range center {
		center[d] = 1.0
	}
	vectors := seededVectors(42, 30, dim, center, 0.05)

	points := make([]Point, len(vectors))
	for i, v := range vectors {
		points[i] = Point{ID: idFor(i), Vector: v, ConfidenceTier: model.TierGold}
	}

	result, err := Run("ghap_full", points, Params{MinClusterSize: 3, MinSamples: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	found := false
	for _, c := range result.Clusters {
		if c.Size >= 3 {
			found = true
		}
		if len(c.Centroid) != dim {
			t.Fatalf("centroid dim=%d, want %d", len(c.Centroid), dim)
		}
	}
	if !found {
		t.Fatalf("expected at least one cluster of size>=3 among 30 similar vectors, got %+v", result.Clusters)
	}
}

func TestRunRejectsTooSmallGroupsAsNoise(t *testing.T) {
	points := []Point{
		{ID: "a", Vector: []float32{1, 0, 0, 0}, ConfidenceTier: model.TierGold},
		{ID: "b", Vector: []float32{0, 1, 0, 0}, ConfidenceTier: model.TierGold},
		{ID: "c", Vector: []float32{0, 0, 1, 0}, ConfidenceTier: model.TierGold},
		{ID: "d", Vector: []float32{0, 0, 0, 1}, ConfidenceTier: model.TierGold},
	}

	result, err := Run("ghap_full", points, Params{MinClusterSize: 5, MinSamples: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Clusters) != 0 {
		t.Fatalf("expected 0 clusters with min_cluster_size=5 on 4 points, got %d", len(result.Clusters))
	}
	if result.NoiseCount != 4 {
		t.Fatalf("NoiseCount=%d, want 4", result.NoiseCount)
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	_, err := Run("ghap_full", nil, DefaultParams())
	if err == nil {
		t.Fatal("expected insufficient_data error for empty input")
	}
}

func TestCentroidIsWeightedMean(t *testing.T) {
	points := []Point{
		{ID: "a", Vector: []float32{1, 0}, ConfidenceTier: model.TierGold},   // weight 1.0
		{ID: "b", Vector: []float32{1, 0.01}, ConfidenceTier: model.TierGold},
		{ID: "c", Vector: []float32{1, -0.01}, ConfidenceTier: model.TierBronze}, // weight 0.5
	}
	result, err := Run("ghap_full", points, Params{MinClusterSize: 3, MinSamples: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("expected exactly 1 cluster, got %d", len(result.Clusters))
	}
	c := result.Clusters[0]
	if math.Abs(c.Centroid[0]-1.0) > 1e-6 {
		t.Fatalf("centroid[0]=%v, want ~1.0", c.Centroid[0])
	}

	wantMembers := []string{"a", "b", "c"}
	gotMembers := append([]string(nil), c.MemberIDs...)
	sort.Strings(gotMembers)
	if diff := cmp.Diff(wantMembers, gotMembers); diff != "" {
		t.Fatalf("member_ids mismatch (-want +got):\n%s", diff)
	}
}

func idFor(i int) string {
	return "pt_" + string(rune('a'+i%26)) + string(rune('0'+(i/26)%10))
}
