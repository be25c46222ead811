// Package search implements the Searcher: axis-scoped nearest-neighbor
// lookups over GHAP experiences plus equivalent searches over memories,
// code units, values, and commits, always returning plain serializable data.
package search

import (
	"context"
	"fmt"
	"strings"

	"calmd/internal/calmerr"
	"calmd/internal/embedding"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

const (
	// DefaultLimit is used when a caller omits limit entirely.
	DefaultLimit = 10
	minLimit     = 1
	maxLimit     = 50
)

// Searcher is the Searcher component.
type Searcher struct {
	vec    *store.VectorStore
	engine embedding.EmbeddingEngine
}

// New builds a Searcher over the shared vector store and embedding engine.
func New(vec *store.VectorStore, engine embedding.EmbeddingEngine) *Searcher {
	return &Searcher{vec: vec, engine: engine}
}

// Hit is a plain-data search result: no nested language-specific object
// graphs, just the fields callers need to render or reason about a match.
type Hit struct {
	ID         string                 `json:"id"`
	Similarity float64                `json:"similarity"`
	Payload    map[string]interface{} `json:"payload"`
}

// queryMetadata tags a query with the collection it searches so task-type-
// aware embedding backends pick the matching retrieval task type (code
// queries embed differently from memory/value queries; GHAP axis queries
// stay in the axes' semantic-similarity space).
func queryMetadata(collection string) map[string]interface{} {
	if axis, ok := strings.CutPrefix(collection, "ghap_"); ok {
		return map[string]interface{}{"axis": axis}
	}
	return map[string]interface{}{"kind": collection}
}

func clampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// SearchExperiences searches one GHAP axis collection. The domain filter
// only applies when axis is "full"; other axes intentionally ignore it,
// since strategy/surprise/root_cause text is not itself domain-scoped.
func (s *Searcher) SearchExperiences(ctx context.Context, queryText string, axis model.Axis, domain string, outcome string, limit int) ([]Hit, error) {
	valid := false
	for _, a := range model.ValidAxes {
		if a == axis {
			valid = true
		}
	}
	if !valid {
		return nil, calmerr.New(calmerr.KindValidation, "axis %q is not one of: full, strategy, surprise, root_cause", axis)
	}

	var filters []store.Filter
	if axis == model.AxisFull && domain != "" {
		filters = append(filters, store.Filter{Key: "domain", Eq: domain})
	}
	if outcome != "" {
		filters = append(filters, store.Filter{Key: "status", Eq: outcome})
	}

	return s.searchCollection(ctx, "ghap_"+string(axis), queryText, filters, limit)
}

// SearchMemories, SearchCode, SearchValues, SearchCommits are the equivalent
// per-kind searches named directly in the tool catalog.
func (s *Searcher) SearchMemories(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	return s.searchCollection(ctx, "memories", queryText, nil, limit)
}

func (s *Searcher) SearchCode(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	return s.searchCollection(ctx, "code", queryText, nil, limit)
}

func (s *Searcher) SearchValues(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	return s.searchCollection(ctx, "values", queryText, nil, limit)
}

func (s *Searcher) SearchCommits(ctx context.Context, queryText string, limit int) ([]Hit, error) {
	return s.searchCollection(ctx, "commits", queryText, nil, limit)
}

func (s *Searcher) searchCollection(ctx context.Context, collection, queryText string, filters []store.Filter, limit int) ([]Hit, error) {
	limit = clampLimit(limit)

	if s.engine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}
	query, err := embedding.EmbedForTask(ctx, s.engine, queryText, queryMetadata(collection), true)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to embed query text")
	}

	results, err := s.vec.Search(collection, query, limit, filters)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "search over %q failed", collection)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		payload := r.Point.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		hits[i] = Hit{ID: r.Point.ID, Similarity: r.Similarity, Payload: payload}
	}

	logging.Search("collection=%q query_len=%d limit=%d hits=%d", collection, len(queryText), limit, len(hits))
	return hits, nil
}
