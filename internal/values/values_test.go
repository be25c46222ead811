package values

import (
	"context"
	"path/filepath"
	"testing"

	"calmd/internal/embedding"
	"calmd/internal/model"
	"calmd/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.VectorStore, *embedding.MockEngine) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	meta, err := store.NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	vec := store.NewVectorStore(meta.DB())
	engine := embedding.NewMockEngine(32)
	return New(meta, vec, engine), vec, engine
}

func seedCluster(t *testing.T, vec *store.VectorStore, engine *embedding.MockEngine, axis string) {
	t.Helper()
	ctx := context.Background()
	texts := []string{
		"the retry loop kept hitting a stale lock",
		"the retry loop kept hitting a stale lock",
		"the retry loop kept hitting a stale lock",
	}
	for i, text := range texts {
		v, err := engine.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		id := "ghap_" + string(rune('a'+i))
		if err := vec.Upsert("ghap_"+axis, store.Point{ID: id, Embedding: v, Payload: map[string]interface{}{"confidence_tier": "gold"}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
}

func TestValidateUnknownClusterReturnsInvalidNoSimilarity(t *testing.T) {
	s, _, _ := newTestStore(t)
	result, err := s.Validate(context.Background(), "some lesson text", "full_0")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid when centroid unavailable")
	}
	if result.HasSimilarity {
		t.Fatal("expected HasSimilarity=false when centroid unavailable")
	}
}

func TestValidateRejectsMalformedClusterID(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Validate(context.Background(), "text", "not-a-cluster-id")
	if err == nil {
		t.Fatal("expected validation error for malformed cluster_id")
	}
}

func TestStoreAdmitsSimilarTextAndRejectsDissimilar(t *testing.T) {
	s, vec, engine := newTestStore(t)
	seedCluster(t, vec, engine, "full")

	v, err := s.Store(context.Background(), "the retry loop kept hitting a stale lock", "full_0", model.AxisFull)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if v.ClusterID != "full_0" {
		t.Fatalf("ClusterID=%s, want full_0", v.ClusterID)
	}

	_, err = s.Store(context.Background(), "completely unrelated text about pizza toppings", "full_0", model.AxisFull)
	if err == nil {
		t.Fatal("expected rejection of dissimilar candidate text")
	}

	list, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d values, want 1 (rejected candidate must not persist)", len(list))
	}
}
