package store

import (
	"context"
	"path/filepath"
	"testing"

	"calmd/internal/embedding"
)

func newTestVectorStore(t *testing.T) (*VectorStore, *embedding.MockEngine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	ms, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { ms.Close() })
	return NewVectorStore(ms.DB()), embedding.NewMockEngine(64)
}

func TestVectorStoreColdStart(t *testing.T) {
	vs, _ := newTestVectorStore(t)

	n, err := vs.Count("ghap_full")
	if err != nil {
		t.Fatalf("Count on nonexistent collection errored: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count=%d, want 0", n)
	}

	results, err := vs.Search("ghap_full", make([]float32, 64), 10, nil)
	if err != nil {
		t.Fatalf("Search on nonexistent collection errored: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search returned %d results, want 0", len(results))
	}
}

func TestUpsertAndSearchFindsMostSimilar(t *testing.T) {
	vs, engine := newTestVectorStore(t)
	ctx := context.Background()

	texts := map[string]string{
		"p1": "the retry loop kept hitting a stale lock",
		"p2": "database connection pool exhausted under load",
		"p3": "the retry loop kept hitting a stale lock",
	}
	for id, text := range texts {
		vec, err := engine.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if err := vs.Upsert("ghap_full", Point{ID: id, Embedding: vec, Payload: map[string]interface{}{"text": text}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	queryVec, err := engine.Embed(ctx, texts["p1"])
	if err != nil {
		t.Fatalf("Embed query: %v", err)
	}

	results, err := vs.Search("ghap_full", queryVec, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if results[0].Point.ID != "p1" && results[0].Point.ID != "p3" {
		t.Fatalf("top result=%s, want p1 or p3 (identical text)", results[0].Point.ID)
	}
	if results[0].Similarity < 0.99 {
		t.Fatalf("identical text should be near-exact match, got similarity=%.4f", results[0].Similarity)
	}
}

func TestSearchFilterEquality(t *testing.T) {
	vs, engine := newTestVectorStore(t)
	ctx := context.Background()

	vecA, _ := engine.Embed(ctx, "a")
	vecB, _ := engine.Embed(ctx, "b")
	_ = vs.Upsert("values", Point{ID: "v1", Embedding: vecA, Payload: map[string]interface{}{"axis": "strategy"}})
	_ = vs.Upsert("values", Point{ID: "v2", Embedding: vecB, Payload: map[string]interface{}{"axis": "surprise"}})

	results, err := vs.Search("values", vecA, 10, []Filter{{Key: "axis", Eq: "strategy"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Point.ID != "v1" {
		t.Fatalf("filtered search=%+v, want only v1", results)
	}
}

func TestSearchFilterRange(t *testing.T) {
	vs, engine := newTestVectorStore(t)
	ctx := context.Background()

	for i, score := range []float64{0.2, 0.5, 0.9} {
		vec, _ := engine.Embed(ctx, "x")
		id := []string{"low", "mid", "high"}[i]
		_ = vs.Upsert("memories", Point{ID: id, Embedding: vec, Payload: map[string]interface{}{"importance": score}})
	}

	results, err := vs.Search("memories", make([]float32, 64), 10, []Filter{{Key: "importance", Gte: 0.5, Lte: 0.9}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("range filter returned %d results, want 2", len(results))
	}
}

func TestScrollExhaustsAllPoints(t *testing.T) {
	vs, engine := newTestVectorStore(t)
	ctx := context.Background()

	const total = scrollBatchSize + 50
	for i := 0; i < total; i++ {
		vec, _ := engine.Embed(ctx, string(rune(i)))
		_ = vs.Upsert("code", Point{ID: idOf(i), Embedding: vec})
	}

	seen := 0
	err := vs.Scroll("code", func(p Point) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if seen != total {
		t.Fatalf("Scroll visited %d points, want %d", seen, total)
	}
}

func idOf(i int) string {
	return "pt_" + string(rune('a'+(i%26))) + string(rune('0'+(i/26)%10)) + string(rune('0'+(i/260)%10))
}
