package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

func (d *Dispatcher) registerReviewTools() {
	d.register("record_review", d.handleRecordReview)
	d.register("list_reviews", d.handleListReviews)
	d.register("check_reviews", d.handleCheckReviews)
	d.register("check_gate", d.handleCheckGate)
	d.register("start_worker", d.handleStartWorker)
	d.register("update_worker_status", d.handleUpdateWorkerStatus)
	d.register("list_workers", d.handleListWorkers)
	d.register("sweep_workers", d.handleSweepWorkers)
	d.register("backup_store", d.handleBackupStore)
	d.register("restore_store", d.handleRestoreStore)
}

func (d *Dispatcher) handleRecordReview(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	reviewType, err := requireString(args, "review_type")
	if err != nil {
		return nil, err
	}
	result, err := requireString(args, "result")
	if err != nil {
		return nil, err
	}
	review, err := d.Review.RecordReview(taskID, model.ReviewType(reviewType), model.ReviewResult(result),
		argString(args, "worker_id"), argString(args, "notes"))
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (d *Dispatcher) handleListReviews(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	reviews, err := d.Review.ListReviews(taskID, argString(args, "review_type"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"reviews": reviews, "count": len(reviews)}, nil
}

func (d *Dispatcher) handleCheckReviews(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	reviewType, err := requireString(args, "review_type")
	if err != nil {
		return nil, err
	}
	passed, count, err := d.Review.CheckReviews(taskID, model.ReviewType(reviewType))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"passed": passed, "approver_count": count}, nil
}

// handleCheckGate runs the named gate's checklist. The gate key must already
// be registered on the Dispatcher (wired at startup from config), since
// Requirement.Check carries a function value that cannot cross the tool
// boundary as plain data.
func (d *Dispatcher) handleCheckGate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	transition, err := requireString(args, "transition")
	if err != nil {
		return nil, err
	}
	reqs, ok := d.Gate[transition]
	if !ok {
		return nil, calmerr.New(calmerr.KindNotFound, "no gate configured for transition %q", transition)
	}
	result, err := d.Review.CheckGate(transition, reqs)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) handleStartWorker(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	role, err := requireString(args, "role")
	if err != nil {
		return nil, err
	}
	w := &model.Worker{
		ID:        "worker_" + uuid.NewString(),
		TaskID:    taskID,
		Role:      role,
		Status:    model.WorkerActive,
		StartedAt: time.Now().UTC(),
	}
	if err := d.Meta.InsertWorker(w); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist worker")
	}
	return w, nil
}

func (d *Dispatcher) handleUpdateWorkerStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	status, err := requireString(args, "status")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.UpdateWorkerStatus(id, model.WorkerStatus(status), argString(args, "reason")); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to update worker %s", id)
	}
	return map[string]interface{}{"ok": true, "id": id}, nil
}

func (d *Dispatcher) handleListWorkers(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	workers, err := d.Meta.ListWorkers(taskID)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list workers for task %s", taskID)
	}
	return map[string]interface{}{"workers": workers, "count": len(workers)}, nil
}

func (d *Dispatcher) handleSweepWorkers(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	horizonMinutes := argInt(args, "horizon_minutes", 60)
	n, err := d.Review.SweepWorkers(time.Duration(horizonMinutes) * time.Minute)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"swept": n}, nil
}

func (d *Dispatcher) handleBackupStore(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	destPath, err := requireString(args, "dest_path")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.Backup(destPath); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "backup failed")
	}
	return map[string]interface{}{"ok": true, "dest_path": destPath}, nil
}

func (d *Dispatcher) handleRestoreStore(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	srcPath, err := requireString(args, "src_path")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.Restore(srcPath); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "restore failed")
	}
	return map[string]interface{}{"ok": true, "src_path": srcPath}, nil
}
