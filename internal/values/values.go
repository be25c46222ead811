// Package values implements the Value Store: curated short-text lessons
// admitted only when they sit close to an existing cluster centroid.
package values

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/cluster"
	"calmd/internal/embedding"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// SimilarityThreshold is the minimum cosine similarity to a cluster centroid
// a candidate value's embedding must reach to be admitted.
const SimilarityThreshold = 0.7

// Store is the Value Store component.
type Store struct {
	meta   *store.MetadataStore
	vec    *store.VectorStore
	engine embedding.EmbeddingEngine
}

// New builds a Store over the shared stores and embedding engine.
func New(meta *store.MetadataStore, vec *store.VectorStore, engine embedding.EmbeddingEngine) *Store {
	return &Store{meta: meta, vec: vec, engine: engine}
}

// ValidationResult mirrors the spec's {valid, similarity?} shape: Similarity
// is only meaningful when HasSimilarity is true, so JSON encoders can omit
// the field entirely rather than serializing a null.
type ValidationResult struct {
	Valid         bool    `json:"valid"`
	Similarity    float64 `json:"similarity,omitempty"`
	HasSimilarity bool    `json:"-"`
}

// Validate embeds text and compares it against the centroid of cluster_id.
// similarity is omitted (not zero, omitted) when the centroid cannot be
// computed, e.g. the axis has too few points to form that cluster anymore.
func (s *Store) Validate(ctx context.Context, text, clusterID string) (ValidationResult, error) {
	if s.engine == nil {
		return ValidationResult{}, calmerr.New(calmerr.KindInternal, "no embedding engine configured")
	}

	centroid, axis, err := s.centroidFor(clusterID)
	if err != nil {
		return ValidationResult{}, err
	}
	if centroid == nil {
		logging.ValuesWarn("centroid unavailable for cluster_id=%q; validation returns valid=false with no similarity", clusterID)
		return ValidationResult{Valid: false}, nil
	}

	vec, err := embedding.EmbedForTask(ctx, s.engine, text, map[string]interface{}{"axis": axis}, false)
	if err != nil {
		return ValidationResult{}, calmerr.Wrap(calmerr.KindInternal, err, "failed to embed candidate text")
	}

	sim, err := embedding.CosineSimilarity(vec, centroid)
	if err != nil {
		return ValidationResult{}, calmerr.Wrap(calmerr.KindInternal, err, "failed to score candidate against centroid")
	}

	return ValidationResult{Valid: sim >= SimilarityThreshold, Similarity: sim, HasSimilarity: true}, nil
}

// Store admits text only if Validate would report it valid, then persists it
// to the metadata store and upserts it into the "values" vector collection.
func (s *Store) Store(ctx context.Context, text, clusterID string, axis model.Axis) (*model.Value, error) {
	result, err := s.Validate(ctx, text, clusterID)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, calmerr.New(calmerr.KindValidation,
			"candidate text is not similar enough to cluster %q to be admitted as a value", clusterID)
	}

	v := &model.Value{
		ID:        "value_" + uuid.NewString(),
		Text:      text,
		Axis:      axis,
		ClusterID: clusterID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.meta.InsertValue(v); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist value")
	}

	vec, err := embedding.EmbedForTask(ctx, s.engine, text, map[string]interface{}{"kind": "values"}, false)
	if err == nil {
		payload := map[string]interface{}{
			"text":       text,
			"axis":       string(axis),
			"cluster_id": clusterID,
			"created_at": v.CreatedAt.Format(time.RFC3339),
		}
		if err := s.vec.Upsert("values", store.Point{ID: v.ID, Embedding: vec, Payload: payload, CreatedAt: v.CreatedAt}); err != nil {
			logging.ValuesWarn("value %s persisted to metadata but vector upsert failed: %v", v.ID, err)
		}
	} else {
		logging.ValuesWarn("value %s persisted to metadata but embedding failed: %v", v.ID, err)
	}

	logging.Values("stored value %s cluster_id=%s axis=%s similarity=%.4f", v.ID, clusterID, axis, result.Similarity)
	return v, nil
}

// List returns all values in descending created_at, optionally scoped by axis.
func (s *Store) List(axis string) ([]*model.Value, error) {
	values, err := s.meta.ListValues(axis)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list values")
	}
	return values, nil
}

// centroidFor parses a "{axis}_{label}" cluster id, re-clusters that axis's
// vector collection (clusters are transient by design; nothing persists
// cluster membership across calls), and returns the matching centroid plus
// the parsed axis, or a nil centroid if the cluster no longer exists at the
// current point distribution.
func (s *Store) centroidFor(clusterID string) ([]float32, string, error) {
	axis, label, err := parseClusterID(clusterID)
	if err != nil {
		return nil, "", err
	}

	points, err := cluster.LoadPoints(s.vec, "ghap_"+axis)
	if err != nil {
		return nil, "", calmerr.Wrap(calmerr.KindInternal, err, "failed to load points for axis %q", axis)
	}
	if len(points) == 0 {
		return nil, axis, nil
	}

	result, err := cluster.Run(axis, points, cluster.DefaultParams())
	if err != nil {
		logging.ValuesWarn("clustering axis %q failed while resolving centroid for %s: %v", axis, clusterID, err)
		return nil, axis, nil
	}

	for _, c := range result.Clusters {
		if c.Label == label {
			out := make([]float32, len(c.Centroid))
			for i, v := range c.Centroid {
				out[i] = float32(v)
			}
			return out, axis, nil
		}
	}
	return nil, axis, nil
}

// NearestCluster embeds text and returns the closest cluster on axis along
// with the cosine similarity to its centroid. It returns ("", 0, nil) when
// the axis has no points to cluster yet, rather than an error -- an empty
// axis is a cold-start state, not a failure.
func (s *Store) NearestCluster(ctx context.Context, axis model.Axis, text string) (clusterID string, similarity float64, err error) {
	points, err := cluster.LoadPoints(s.vec, "ghap_"+string(axis))
	if err != nil {
		return "", 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to load points for axis %q", axis)
	}
	if len(points) == 0 {
		return "", 0, nil
	}

	result, err := cluster.Run(string(axis), points, cluster.DefaultParams())
	if err != nil {
		logging.ValuesWarn("clustering axis %q failed while scoring a candidate: %v", axis, err)
		return "", 0, nil
	}

	vec, err := embedding.EmbedForTask(ctx, s.engine, text, map[string]interface{}{"axis": string(axis)}, false)
	if err != nil {
		return "", 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to embed candidate text")
	}

	best := -1.0
	bestLabel := 0
	for _, c := range result.Clusters {
		centroid := make([]float32, len(c.Centroid))
		for i, v := range c.Centroid {
			centroid[i] = float32(v)
		}
		sim, err := embedding.CosineSimilarity(vec, centroid)
		if err != nil {
			continue
		}
		if sim > best {
			best = sim
			bestLabel = c.Label
		}
	}
	if best < 0 {
		return "", 0, nil
	}
	return string(axis) + "_" + strconv.Itoa(bestLabel), best, nil
}

func parseClusterID(clusterID string) (axis string, label int, err error) {
	idx := strings.LastIndex(clusterID, "_")
	if idx < 0 || idx == len(clusterID)-1 {
		return "", 0, calmerr.New(calmerr.KindValidation, "cluster_id %q is not of the form {axis}_{label}", clusterID)
	}
	axis = clusterID[:idx]
	label, convErr := strconv.Atoi(clusterID[idx+1:])
	if convErr != nil {
		return "", 0, calmerr.New(calmerr.KindValidation, "cluster_id %q has a non-integer label", clusterID)
	}
	return axis, label, nil
}
