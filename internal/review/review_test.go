package review

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"calmd/internal/model"
	"calmd/internal/store"
)

// setupTestRepo creates a minimal git repo so CheckGate's currentCommit
// (git rev-parse HEAD) has something to read.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runOrFatal(t, dir, "init")
	runOrFatal(t, dir, "config", "user.name", "Test User")
	runOrFatal(t, dir, "config", "user.email", "test@example.com")
	runOrFatal(t, dir, "commit", "--allow-empty", "-m", "initial commit")
	return dir
}

func runOrFatal(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v (%s)", args, err, string(out))
	}
}

func newTestEvaluator(t *testing.T) (*Evaluator, *store.MetadataStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calmd.db")
	meta, err := store.NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	return New(meta, setupTestRepo(t)), meta
}

func seedTask(t *testing.T, meta *store.MetadataStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	task := &model.Task{
		ID: id, Title: "test task", TaskType: model.TaskTypeFeature, Phase: "SPEC",
		ProjectPath: t.TempDir(), CreatedAt: now, UpdatedAt: now,
	}
	if err := meta.InsertTask(task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
}

func TestRecordReviewRejectsUnknownType(t *testing.T) {
	e, meta := newTestEvaluator(t)
	seedTask(t, meta, "task-1")

	_, err := e.RecordReview("task-1", model.ReviewType("bogus"), model.ReviewApproved, "worker-a", "")
	if err == nil {
		t.Fatal("expected error for unknown review_type")
	}
}

func TestCheckReviewsQuorumByDistinctWorker(t *testing.T) {
	e, meta := newTestEvaluator(t)
	seedTask(t, meta, "task-1")

	passed, count, err := e.CheckReviews("task-1", model.ReviewTypeCode)
	if err != nil {
		t.Fatalf("CheckReviews: %v", err)
	}
	if passed || count != 0 {
		t.Fatalf("expected (false, 0) with no reviews, got (%v, %d)", passed, count)
	}

	if _, err := e.RecordReview("task-1", model.ReviewTypeCode, model.ReviewApproved, "worker-a", ""); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	passed, count, err = e.CheckReviews("task-1", model.ReviewTypeCode)
	if err != nil {
		t.Fatalf("CheckReviews: %v", err)
	}
	if passed || count != 1 {
		t.Fatalf("expected (false, 1) after one approval, got (%v, %d)", passed, count)
	}

	if _, err := e.RecordReview("task-1", model.ReviewTypeCode, model.ReviewApproved, "worker-b", ""); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	passed, count, err = e.CheckReviews("task-1", model.ReviewTypeCode)
	if err != nil {
		t.Fatalf("CheckReviews: %v", err)
	}
	if !passed || count != 2 {
		t.Fatalf("expected (true, 2) after two distinct approvals, got (%v, %d)", passed, count)
	}
}

func TestChangesRequestedClearsPriorApprovals(t *testing.T) {
	e, meta := newTestEvaluator(t)
	seedTask(t, meta, "task-1")

	if _, err := e.RecordReview("task-1", model.ReviewTypeCode, model.ReviewApproved, "worker-a", ""); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if _, err := e.RecordReview("task-1", model.ReviewTypeCode, model.ReviewApproved, "worker-b", ""); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	passed, count, err := e.CheckReviews("task-1", model.ReviewTypeCode)
	if err != nil || !passed || count != 2 {
		t.Fatalf("expected quorum met before rejection, got passed=%v count=%d err=%v", passed, count, err)
	}

	if _, err := e.RecordReview("task-1", model.ReviewTypeCode, model.ReviewChangesRequested, "worker-c", "needs work"); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}

	passed, count, err = e.CheckReviews("task-1", model.ReviewTypeCode)
	if err != nil {
		t.Fatalf("CheckReviews: %v", err)
	}
	if passed || count != 0 {
		t.Fatalf("expected (false, 0) after changes_requested cleared prior approvals, got (%v, %d)", passed, count)
	}

	reviews, err := e.ListReviews("task-1", string(model.ReviewTypeCode))
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Result != model.ReviewChangesRequested {
		t.Fatalf("expected only the changes_requested review to remain, got %+v", reviews)
	}
}

func TestCheckGateAggregatesPassFail(t *testing.T) {
	e, meta := newTestEvaluator(t)
	seedTask(t, meta, "task-1")

	reqs := []Requirement{
		{Description: "always passes", Automated: true, Check: func(string) CheckRecord {
			return CheckRecord{Name: "always passes", Passed: true}
		}},
		{Description: "always fails", Automated: true, Check: func(string) CheckRecord {
			return CheckRecord{Name: "always fails", Passed: false, Message: "boom"}
		}},
	}

	result, err := e.CheckGate("DESIGN->IMPLEMENT", reqs)
	if err != nil {
		t.Fatalf("CheckGate: %v", err)
	}
	if result.Passed {
		t.Fatal("expected aggregate Passed=false when one check fails")
	}
	if len(result.Checks) != 2 {
		t.Fatalf("expected 2 check records, got %d", len(result.Checks))
	}
	if result.Checks[1].Message != "boom" {
		t.Fatalf("expected failing check's message to be preserved, got %q", result.Checks[1].Message)
	}
}

func TestSweepWorkersPromotesStaleActive(t *testing.T) {
	e, meta := newTestEvaluator(t)
	seedTask(t, meta, "task-1")

	stale := &model.Worker{
		ID: "worker-stale", TaskID: "task-1", Role: "coder",
		Status: model.WorkerActive, StartedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := &model.Worker{
		ID: "worker-fresh", TaskID: "task-1", Role: "coder",
		Status: model.WorkerActive, StartedAt: time.Now().UTC(),
	}
	if err := meta.InsertWorker(stale); err != nil {
		t.Fatalf("InsertWorker: %v", err)
	}
	if err := meta.InsertWorker(fresh); err != nil {
		t.Fatalf("InsertWorker: %v", err)
	}

	n, err := e.SweepWorkers(time.Hour)
	if err != nil {
		t.Fatalf("SweepWorkers: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 worker promoted, got %d", n)
	}

	workers, err := meta.ListWorkers("task-1")
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	byID := map[string]*model.Worker{}
	for _, w := range workers {
		byID[w.ID] = w
	}
	if byID["worker-stale"].Status != model.WorkerSessionEnded {
		t.Fatalf("expected stale worker session_ended, got %s", byID["worker-stale"].Status)
	}
	if byID["worker-fresh"].Status != model.WorkerActive {
		t.Fatalf("expected fresh worker to remain active, got %s", byID["worker-fresh"].Status)
	}
}
