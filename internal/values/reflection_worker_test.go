package values

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"calmd/internal/embedding"
	"calmd/internal/store"
)

// TestMain verifies the reflection worker's ticker goroutine never survives
// a Stop call, the same leak-detection discipline the teacher applies to
// its own background-worker tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReflectionWorkerStopLeavesNoGoroutine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calmd.db")
	meta, err := store.NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	defer meta.Close()

	vec := store.NewVectorStore(meta.DB())
	engine := embedding.NewMockEngine(32)
	s := New(meta, vec, engine)

	w := NewReflectionWorker(s, meta, time.Millisecond)
	w.Start(context.Background())
	time.Sleep(5 * time.Millisecond) // let at least one tick fire
	w.Stop()
}
