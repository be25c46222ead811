// Package cluster implements the Clusterer: density-based clustering of
// weighted vectors along one of the four GHAP axes (or any other named
// collection), producing weighted centroids for the Value Store and Searcher
// to consume.
package cluster

import (
	"math"
	"sort"
	"strconv"

	"calmd/internal/calmerr"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// Defaults calibrated empirically to cluster moderately sized cohesive
// cohorts; more conservative values of 5/3 are a documented prior and must
// not be silently reintroduced as the default.
const (
	DefaultMinClusterSize = 3
	DefaultMinSamples     = 2

	// scrollCap bounds how many points a single clustering run will
	// consider; runs that hit the cap log a warning rather than silently
	// truncating.
	scrollCap = 10000

	noiseLabel = -1
)

// Params configures a clustering run.
type Params struct {
	MinClusterSize int
	MinSamples     int
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{MinClusterSize: DefaultMinClusterSize, MinSamples: DefaultMinSamples}
}

// Point is one input to the clustering algorithm.
type Point struct {
	ID             string
	Vector         []float32
	ConfidenceTier model.ConfidenceTier
}

// Cluster is a transient, rebuilt-on-demand grouping of member points.
type Cluster struct {
	Label     int
	ID        string // "{axis}_{label}"
	Centroid  []float64
	MemberIDs []string
	Size      int
	AvgWeight float64
}

// Result is the outcome of one clustering run.
type Result struct {
	Clusters   []*Cluster
	Labels     map[string]int // point id -> label (-1 = noise)
	NoiseCount int
}

// Run clusters points with a k-nearest-neighbor density rule (cosine
// metric): each point is linked to its min_samples most similar points,
// linked groups are merged, and groups smaller than min_cluster_size are
// labeled noise. There is no similarity cutoff and no excess-of-mass
// selection: every linked group of at least min_cluster_size points becomes
// a cluster. Centroids are the avg_weight-weighted
// mean of member vectors (tier weights from model.TierWeight), not
// re-normalized.
func Run(axis string, points []Point, params Params) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryCluster, "Run")
	defer timer.Stop()

	if params.MinClusterSize <= 0 {
		params.MinClusterSize = DefaultMinClusterSize
	}
	if params.MinSamples <= 0 {
		params.MinSamples = DefaultMinSamples
	}

	if len(points) == 0 {
		return nil, calmerr.New(calmerr.KindInsufficientData, "clustering requested with no points on axis %q", axis)
	}

	if len(points) > scrollCap {
		logging.ClusterWarn("axis %q has %d points, exceeding the %d-point scroll cap; clustering only the first %d",
			axis, len(points), scrollCap, scrollCap)
		points = points[:scrollCap]
	}

	n := len(points)
	neighbors := make([][]int, n)
	for i := range points {
		sims := make([]struct {
			idx int
			sim float64
		}, 0, n-1)
		for j := range points {
			if i == j {
				continue
			}
			sim, err := cosineSimilarity64(points[i].Vector, points[j].Vector)
			if err != nil {
				continue
			}
			sims = append(sims, struct {
				idx int
				sim float64
			}{j, sim})
		}
		sort.Slice(sims, func(a, b int) bool { return sims[a].sim > sims[b].sim })

		k := params.MinSamples
		if k > len(sims) {
			k = len(sims)
		}
		for _, s := range sims[:k] {
			neighbors[i] = append(neighbors[i], s.idx)
		}
	}

	// Core points are those with a full list of min_samples neighbors (the
	// list has no distance limit). Each core is unioned with every core in
	// its own neighbor list, whether or not the link is mutual, using a
	// simple union-find in place of HDBSCAN's mutual-reachability tree.
	isCore := make([]bool, n)
	for i := range points {
		if len(neighbors[i]) >= params.MinSamples {
			isCore[i] = true
		}
	}

	uf := newUnionFind(n)
	for i := range points {
		if !isCore[i] {
			continue
		}
		for _, j := range neighbors[i] {
			if isCore[j] {
				uf.union(i, j)
			}
		}
	}
	// Attach non-core points to a neighboring core's component (border points).
	for i := range points {
		if isCore[i] {
			continue
		}
		for _, j := range neighbors[i] {
			if isCore[j] {
				uf.union(i, j)
				break
			}
		}
	}

	groups := make(map[int][]int)
	for i := range points {
		groups[uf.find(i)] = append(groups[uf.find(i)], i)
	}

	// Assign ascending labels in order of union-find root index, for
	// deterministic label order.
	var roots []int
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	labels := make(map[string]int, n)
	var clusters []*Cluster
	label := 0
	noiseCount := 0

	for _, root := range roots {
		members := groups[root]
		if len(members) < params.MinClusterSize {
			for _, idx := range members {
				labels[points[idx].ID] = noiseLabel
			}
			noiseCount += len(members)
			continue
		}

		c := &Cluster{Label: label, ID: clusterID(axis, label)}
		dims := len(points[members[0]].Vector)
		centroid := make([]float64, dims)
		var totalWeight float64
		for _, idx := range members {
			w := model.TierWeight(points[idx].ConfidenceTier)
			for d := 0; d < dims && d < len(points[idx].Vector); d++ {
				centroid[d] += w * float64(points[idx].Vector[d])
			}
			totalWeight += w
			c.MemberIDs = append(c.MemberIDs, points[idx].ID)
			labels[points[idx].ID] = label
		}
		if totalWeight > 0 {
			for d := range centroid {
				centroid[d] /= totalWeight
			}
		}
		c.Centroid = centroid
		c.Size = len(members)
		c.AvgWeight = totalWeight / float64(len(members))
		clusters = append(clusters, c)
		label++
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Label < clusters[j].Label })

	logging.Cluster("axis=%q clustered %d points into %d clusters (%d noise)", axis, n, len(clusters), noiseCount)
	return &Result{Clusters: clusters, Labels: labels, NoiseCount: noiseCount}, nil
}

func clusterID(axis string, label int) string {
	return axis + "_" + strconv.Itoa(label)
}

func cosineSimilarity64(a, b []float32) (float64, error) {
	var dot, na, nb float64
	if len(a) != len(b) {
		return 0, errMismatch
	}
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

var errMismatch = calmerr.New(calmerr.KindInternal, "vector dimension mismatch")

// LoadPoints scrolls an entire vector collection into clustering Points,
// reading the confidence_tier out of each point's payload.
func LoadPoints(vs *store.VectorStore, collection string) ([]Point, error) {
	var points []Point
	err := vs.Scroll(collection, func(p store.Point) error {
		tier, _ := p.Payload["confidence_tier"].(string)
		points = append(points, Point{ID: p.ID, Vector: p.Embedding, ConfidenceTier: model.ConfidenceTier(tier)})
		return nil
	})
	return points, err
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
