package store

import (
	"path/filepath"
	"testing"
	"time"

	"calmd/internal/model"
)

func newTestMetadataStore(t *testing.T) *MetadataStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	s, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGHAP(id, status string) *model.GHAPEntry {
	return &model.GHAPEntry{
		ID:         id,
		Domain:     model.DomainDebugging,
		Strategy:   model.StrategySystematicElimination,
		Goal:       "fix flaky test",
		Hypothesis: "the teardown races with the next setup",
		Action:     "add explicit wait for drain",
		Prediction: "flake rate drops to zero",
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestInsertAndGetGHAP(t *testing.T) {
	s := newTestMetadataStore(t)
	e := sampleGHAP("ghap_1", "active")
	if err := s.InsertGHAP(e); err != nil {
		t.Fatalf("InsertGHAP: %v", err)
	}

	got, err := s.GetGHAP("ghap_1")
	if err != nil {
		t.Fatalf("GetGHAP: %v", err)
	}
	if got == nil || got.Goal != e.Goal {
		t.Fatalf("GetGHAP returned %+v, want matching goal", got)
	}
}

func TestSingleActiveInvariant(t *testing.T) {
	s := newTestMetadataStore(t)
	if err := s.InsertGHAP(sampleGHAP("ghap_1", "active")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := s.InsertGHAP(sampleGHAP("ghap_2", "active")); err == nil {
		t.Fatal("expected second active insert to fail the single-active invariant")
	}
}

func TestActiveGHAPNilWhenNoneActive(t *testing.T) {
	s := newTestMetadataStore(t)
	active, err := s.ActiveGHAP()
	if err != nil {
		t.Fatalf("ActiveGHAP: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active entry, got %+v", active)
	}
}

func TestUpdateGHAPResolvesEntry(t *testing.T) {
	s := newTestMetadataStore(t)
	e := sampleGHAP("ghap_1", "active")
	if err := s.InsertGHAP(e); err != nil {
		t.Fatalf("InsertGHAP: %v", err)
	}

	now := time.Now().UTC()
	e.Status = string(model.OutcomeConfirmed)
	e.ResolvedAt = &now
	e.ConfidenceTier = model.TierGold
	if err := s.UpdateGHAP(e); err != nil {
		t.Fatalf("UpdateGHAP: %v", err)
	}

	got, err := s.GetGHAP("ghap_1")
	if err != nil {
		t.Fatalf("GetGHAP: %v", err)
	}
	if got.Status != string(model.OutcomeConfirmed) || got.ResolvedAt == nil {
		t.Fatalf("update did not persist: %+v", got)
	}

	active, err := s.ActiveGHAP()
	if err != nil {
		t.Fatalf("ActiveGHAP: %v", err)
	}
	if active != nil {
		t.Fatal("resolved entry should no longer be active, freeing the slot")
	}

	if err := s.InsertGHAP(sampleGHAP("ghap_2", "active")); err != nil {
		t.Fatalf("expected new active insert to succeed after prior resolved: %v", err)
	}
}

func TestCounterIncrementIsAtomicAndMonotonic(t *testing.T) {
	s := newTestMetadataStore(t)
	for i := 0; i < 5; i++ {
		v, err := s.IncrementCounter("tool_calls", 1)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if v != int64(i+1) {
			t.Fatalf("IncrementCounter returned %d, want %d", v, i+1)
		}
	}

	got, err := s.GetCounter("tool_calls")
	if err != nil || got != 5 {
		t.Fatalf("GetCounter=%d err=%v, want 5", got, err)
	}

	if err := s.ResetCounter("tool_calls"); err != nil {
		t.Fatalf("ResetCounter: %v", err)
	}
	got, _ = s.GetCounter("tool_calls")
	if got != 0 {
		t.Fatalf("GetCounter after reset=%d, want 0", got)
	}
}

func TestReviewQuorum(t *testing.T) {
	s := newTestMetadataStore(t)
	task := &model.Task{ID: "task_1", Title: "t", TaskType: model.TaskTypeFeature, Phase: "SPEC",
		ProjectPath: "/repo", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := s.InsertTask(task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	for i := 0; i < 2; i++ {
		r := &model.Review{ID: "r" + string(rune('0'+i)), TaskID: "task_1", ReviewType: model.ReviewTypeCode,
			Result: model.ReviewApproved, CreatedAt: time.Now().UTC()}
		if err := s.InsertReview(r); err != nil {
			t.Fatalf("InsertReview: %v", err)
		}
	}

	reviews, err := s.ListReviews("task_1", string(model.ReviewTypeCode))
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("ListReviews returned %d, want 2", len(reviews))
	}
}

func TestMergeLockAcquireRelease(t *testing.T) {
	s := newTestMetadataStore(t)
	n, err := s.AcquireMergeLock("task_1")
	if err != nil || n != 1 {
		t.Fatalf("AcquireMergeLock=%d err=%v, want 1", n, err)
	}
	n, err = s.AcquireMergeLock("task_1")
	if err != nil || n != 2 {
		t.Fatalf("AcquireMergeLock(second)=%d err=%v, want 2", n, err)
	}
	n, err = s.ReleaseMergeLock("task_1")
	if err != nil || n != 1 {
		t.Fatalf("ReleaseMergeLock=%d err=%v, want 1", n, err)
	}
	n, err = s.ReleaseMergeLock("task_1")
	if err != nil || n != 0 {
		t.Fatalf("ReleaseMergeLock(second)=%d err=%v, want 0", n, err)
	}
	n, err = s.ReleaseMergeLock("task_1")
	if err != nil || n != 0 {
		t.Fatalf("ReleaseMergeLock(floor)=%d err=%v, want 0", n, err)
	}
}

func TestPendingHandoffSelection(t *testing.T) {
	s := newTestMetadataStore(t)
	h := &model.SessionHandoff{ID: "h1", HandoffContent: "resume task_1 at IMPLEMENT phase",
		NeedsContinuation: true, CreatedAt: time.Now().UTC()}
	if err := s.InsertHandoff(h); err != nil {
		t.Fatalf("InsertHandoff: %v", err)
	}

	pending, err := s.PendingHandoff()
	if err != nil {
		t.Fatalf("PendingHandoff: %v", err)
	}
	if pending == nil || pending.ID != "h1" {
		t.Fatalf("PendingHandoff=%+v, want h1", pending)
	}

	if err := s.MarkHandoffResumed("h1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkHandoffResumed: %v", err)
	}
	pending, err = s.PendingHandoff()
	if err != nil {
		t.Fatalf("PendingHandoff after resume: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected no pending handoff after resume, got %+v", pending)
	}
}
