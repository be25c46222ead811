// Package review implements the Review & Gate Evaluator: records reviews,
// checks quorum, and runs the ordered requirement list that gates a phase
// transition.
package review

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/gitlock"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// quorumSize is the number of distinct approved reviews of one type required
// before a task may advance past the gate guarding that review type.
const quorumSize = 2

// Evaluator is the Review & Gate Evaluator component.
type Evaluator struct {
	meta    *store.MetadataStore
	workDir string // repo root check commands run from
}

// New builds an Evaluator over the shared metadata store.
func New(meta *store.MetadataStore, workDir string) *Evaluator {
	return &Evaluator{meta: meta, workDir: workDir}
}

// RecordReview persists one review. A changes_requested result first clears
// every prior review of that type for the task in its own committed
// transaction, then inserts the new review; the two steps are not atomic, so
// if the insert fails the prior reviews stay cleared without the rejection.
func (e *Evaluator) RecordReview(taskID string, reviewType model.ReviewType, result model.ReviewResult, workerID, notes string) (*model.Review, error) {
	valid := false
	for _, rt := range model.ValidReviewTypes {
		if rt == reviewType {
			valid = true
		}
	}
	if !valid {
		return nil, calmerr.New(calmerr.KindValidation, "review_type %q is not one of: spec, proposal, code, bugfix", reviewType)
	}

	r := &model.Review{
		ID: "review_" + uuid.NewString(), TaskID: taskID, ReviewType: reviewType,
		Result: result, WorkerID: workerID, Notes: notes, CreatedAt: time.Now().UTC(),
	}

	if result == model.ReviewChangesRequested {
		tx, err := e.meta.BeginTx()
		if err != nil {
			return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to begin review-clear transaction")
		}
		if err := e.meta.ClearReviewsOfType(tx, taskID, string(reviewType)); err != nil {
			tx.Rollback()
			return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to clear prior reviews of type %s for task %s", reviewType, taskID)
		}
		if err := tx.Commit(); err != nil {
			return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to commit review-clear transaction")
		}
	}

	if err := e.meta.InsertReview(r); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist review")
	}

	logging.Review("recorded %s review for task %s type %s", result, taskID, reviewType)
	return r, nil
}

// ListReviews returns every review for a task, optionally filtered by type.
func (e *Evaluator) ListReviews(taskID, reviewType string) ([]*model.Review, error) {
	reviews, err := e.meta.ListReviews(taskID, reviewType)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list reviews")
	}
	return reviews, nil
}

// CheckReviews reports whether the quorum of distinct approved reviewers has
// been met for (taskID, reviewType).
func (e *Evaluator) CheckReviews(taskID string, reviewType model.ReviewType) (passed bool, count int, err error) {
	reviews, err := e.meta.ListReviews(taskID, string(reviewType))
	if err != nil {
		return false, 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to list reviews")
	}

	distinctApprovers := make(map[string]bool)
	for _, r := range reviews {
		if r.Result == model.ReviewApproved {
			key := r.WorkerID
			if key == "" {
				key = r.ID // no worker_id recorded: count each approval distinctly
			}
			distinctApprovers[key] = true
		}
	}
	return len(distinctApprovers) >= quorumSize, len(distinctApprovers), nil
}

// Requirement is one ordered item in a gate's checklist.
type Requirement struct {
	Description string
	Automated   bool
	Check       func(workDir string) CheckRecord
}

// CheckRecord is the result of running one gate requirement.
type CheckRecord struct {
	Name            string  `json:"name"`
	Passed          bool    `json:"passed"`
	Message         string  `json:"message,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// GateResult is the full outcome of a check_gate call.
type GateResult struct {
	CommitSHA string        `json:"commit_sha"`
	Checks    []CheckRecord `json:"checks"`
	Passed    bool          `json:"passed"`
}

// CheckGate runs every requirement for transition in order, returning the
// current commit identity alongside a per-check record and an aggregate
// pass/fail. A failed automated check is surfaced to the dispatcher caller
// for exit-code-1 translation at the process boundary.
func (e *Evaluator) CheckGate(transition string, requirements []Requirement) (*GateResult, error) {
	sha, err := currentCommit(e.workDir)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to read current commit")
	}

	result := &GateResult{CommitSHA: sha, Passed: true}
	for _, req := range requirements {
		record := req.Check(e.workDir)
		if record.Name == "" {
			record.Name = req.Description
		}
		if !record.Passed {
			result.Passed = false
		}
		result.Checks = append(result.Checks, record)
	}

	logging.Review("gate %s evaluated: passed=%v checks=%d", transition, result.Passed, len(result.Checks))
	return result, nil
}

// SweepWorkers promotes active workers whose started_at predates horizon to
// session_ended, so a crashed or abandoned shard doesn't block quorum
// checks forever (spec.md section 3's Worker entity, section 5 addition).
func (e *Evaluator) SweepWorkers(horizon time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-horizon)
	stale, err := e.meta.ListStaleWorkers(cutoff)
	if err != nil {
		return 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to list stale workers")
	}

	for _, w := range stale {
		if err := e.meta.UpdateWorkerStatus(w.ID, model.WorkerSessionEnded, "session_ended by sweep"); err != nil {
			return 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to mark worker %s session_ended", w.ID)
		}
	}

	if len(stale) > 0 {
		logging.Review("worker sweep promoted %d active worker(s) to session_ended", len(stale))
	}
	return len(stale), nil
}

// currentCommit shells out to git under the same bounded, repository-path-
// keyed budget worktree operations use (spec.md section 5), since a gate
// check commonly runs concurrently with a worktree merge against the same
// repo.
func currentCommit(dir string) (string, error) {
	release := gitlock.Acquire(dir)
	defer release()

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD commit: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// RunShellCheck builds a Requirement.Check that runs an arbitrary shell
// command and reports pass/fail from its exit code, truncating long output
// the same way the gate's upstream git tooling does. The command shares the
// same per-repo-path concurrency budget as the rest of the gate and the
// worktree manager, since shellchecks (e.g. "go test ./...", "git diff
// --check") commonly touch the same working tree.
func RunShellCheck(name, command string) func(workDir string) CheckRecord {
	return func(workDir string) CheckRecord {
		start := time.Now()
		parts := strings.Fields(command)
		if len(parts) == 0 {
			return CheckRecord{Name: name, Passed: false, Message: "empty check command"}
		}

		release := gitlock.Acquire(workDir)
		cmd := exec.Command(parts[0], parts[1:]...)
		cmd.Dir = workDir
		out, err := cmd.CombinedOutput()
		release()
		duration := time.Since(start)

		msg := strings.TrimSpace(string(out))
		if len(msg) > 2000 {
			msg = msg[:2000] + "\n... [truncated]"
		}

		return CheckRecord{
			Name:            name,
			Passed:          err == nil,
			Message:         msg,
			DurationSeconds: duration.Seconds(),
		}
	}
}
