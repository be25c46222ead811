package search

import (
	"context"
	"path/filepath"
	"testing"

	"calmd/internal/embedding"
	"calmd/internal/model"
	"calmd/internal/store"
)

func newTestSearcher(t *testing.T) (*Searcher, *store.VectorStore, *embedding.MockEngine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	meta, err := store.NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	vec := store.NewVectorStore(meta.DB())
	engine := embedding.NewMockEngine(32)
	return New(vec, engine), vec, engine
}

func TestSearchExperiencesRejectsUnknownAxis(t *testing.T) {
	s, _, _ := newTestSearcher(t)
	_, err := s.SearchExperiences(context.Background(), "q", model.Axis("bogus"), "", "", 5)
	if err == nil {
		t.Fatal("expected validation error for unknown axis")
	}
}

func TestSearchExperiencesDomainFilterOnlyAppliesToFullAxis(t *testing.T) {
	s, vec, engine := newTestSearcher(t)
	ctx := context.Background()

	vecA, _ := engine.Embed(ctx, "timeout while waiting on lock")
	vecB, _ := engine.Embed(ctx, "timeout while waiting on lock")
	_ = vec.Upsert("ghap_full", store.Point{ID: "e1", Embedding: vecA, Payload: map[string]interface{}{"domain": "debugging"}})
	_ = vec.Upsert("ghap_full", store.Point{ID: "e2", Embedding: vecB, Payload: map[string]interface{}{"domain": "testing"}})

	hits, err := s.SearchExperiences(ctx, "timeout while waiting on lock", model.AxisFull, "debugging", "", 10)
	if err != nil {
		t.Fatalf("SearchExperiences: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "e1" {
		t.Fatalf("domain-filtered full-axis search=%+v, want only e1", hits)
	}

	_ = vec.Upsert("ghap_strategy", store.Point{ID: "s1", Embedding: vecA, Payload: map[string]interface{}{"domain": "debugging"}})
	_ = vec.Upsert("ghap_strategy", store.Point{ID: "s2", Embedding: vecB, Payload: map[string]interface{}{"domain": "testing"}})
	hits, err = s.SearchExperiences(ctx, "timeout while waiting on lock", model.AxisStrategy, "debugging", "", 10)
	if err != nil {
		t.Fatalf("SearchExperiences(strategy): %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("domain filter leaked into non-full axis: got %d hits, want 2", len(hits))
	}
}

func TestLimitClampedToRange(t *testing.T) {
	if got := clampLimit(0); got != DefaultLimit {
		t.Fatalf("clampLimit(0)=%d, want %d", got, DefaultLimit)
	}
	if got := clampLimit(500); got != maxLimit {
		t.Fatalf("clampLimit(500)=%d, want %d", got, maxLimit)
	}
	if got := clampLimit(-3); got != minLimit {
		t.Fatalf("clampLimit(-3)=%d, want %d", got, minLimit)
	}
}

func TestSearchMemoriesAndValuesAreEquivalentPaths(t *testing.T) {
	s, vec, engine := newTestSearcher(t)
	ctx := context.Background()

	vecM, _ := engine.Embed(ctx, "the user prefers terse commit messages")
	_ = vec.Upsert("memories", store.Point{ID: "m1", Embedding: vecM, Payload: map[string]interface{}{"category": "preference"}})

	hits, err := s.SearchMemories(ctx, "the user prefers terse commit messages", 5)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m1" {
		t.Fatalf("SearchMemories=%+v, want m1", hits)
	}
}
