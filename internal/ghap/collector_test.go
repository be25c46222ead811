package ghap

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"calmd/internal/calmerr"
	"calmd/internal/embedding"
	"calmd/internal/model"
	"calmd/internal/store"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	meta, err := store.NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	vec := store.NewVectorStore(meta.DB())
	engine := embedding.NewMockEngine(32)
	return New(meta, vec, engine)
}

func TestStartValidatesEnums(t *testing.T) {
	c := newTestCollector(t)
	_, err := c.Start("not-a-real-domain", "systematic-elimination", "goal", "hyp", "action", "prediction")
	if err == nil {
		t.Fatal("expected validation error for bad domain")
	}
	if calmerr.KindOf(err) != calmerr.KindValidation {
		t.Fatalf("KindOf=%v, want validation_error", calmerr.KindOf(err))
	}
	msg := err.Error()
	for _, d := range model.ValidDomains {
		if !strings.Contains(msg, string(d)) {
			t.Fatalf("error message %q does not enumerate valid domain %q", msg, d)
		}
	}
}

func TestStartRejectsEmptyFields(t *testing.T) {
	c := newTestCollector(t)
	_, err := c.Start("debugging", "systematic-elimination", "", "hyp", "action", "prediction")
	if err == nil || calmerr.KindOf(err) != calmerr.KindValidation {
		t.Fatalf("expected validation_error for empty goal, got %v", err)
	}
}

func TestSingleActiveInvariantViaStart(t *testing.T) {
	c := newTestCollector(t)
	id, err := c.Start("debugging", "systematic-elimination", "goal", "hyp", "action", "prediction")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = c.Start("testing", "trial-and-error", "goal2", "hyp2", "action2", "prediction2")
	if err == nil {
		t.Fatal("expected active_ghap_exists error on second start")
	}
	if calmerr.KindOf(err) != calmerr.KindActiveGHAPExists {
		t.Fatalf("KindOf=%v, want active_ghap_exists", calmerr.KindOf(err))
	}
	if !strings.Contains(err.Error(), id) {
		t.Fatalf("error message %q does not include active id %q", err.Error(), id)
	}
}

func TestUpdateIncrementsIterationCount(t *testing.T) {
	c := newTestCollector(t)
	if _, err := c.Start("debugging", "systematic-elimination", "goal", "hyp", "action", "prediction"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	n, err := c.Update(UpdateFields{Hypothesis: "revised hypothesis"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 2 {
		t.Fatalf("iteration_count=%d, want 2", n)
	}

	active, err := c.GetActive()
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.Hypothesis != "revised hypothesis" {
		t.Fatalf("hypothesis not updated: %+v", active)
	}
}

func TestResolveRequiresRootCauseOnFalsified(t *testing.T) {
	c := newTestCollector(t)
	if _, err := c.Start("debugging", "systematic-elimination", "goal", "hyp", "action", "prediction"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := c.Resolve(context.Background(), ResolveFields{Status: "falsified", OutcomeResult: "did not fix it"})
	if err == nil || calmerr.KindOf(err) != calmerr.KindValidation {
		t.Fatalf("expected validation_error when root_cause missing on falsified, got %v", err)
	}
}

func TestResolveHappyPathFreesActiveSlot(t *testing.T) {
	c := newTestCollector(t)
	id, err := c.Start("debugging", "systematic-elimination", "goal", "hyp", "action", "prediction")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resolvedID, err := c.Resolve(context.Background(), ResolveFields{
		Status:        "confirmed",
		OutcomeResult: "fix verified in CI",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolvedID != id {
		t.Fatalf("Resolve returned %s, want %s", resolvedID, id)
	}

	active, err := c.GetActive()
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active != nil {
		t.Fatal("expected no active entry after resolution")
	}

	if _, err := c.Start("testing", "trial-and-error", "goal2", "hyp2", "action2", "prediction2"); err != nil {
		t.Fatalf("expected new Start to succeed after resolution: %v", err)
	}
}

func TestResolveWithNoActiveEntry(t *testing.T) {
	c := newTestCollector(t)
	_, err := c.Resolve(context.Background(), ResolveFields{Status: "confirmed"})
	if err == nil || calmerr.KindOf(err) != calmerr.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}
