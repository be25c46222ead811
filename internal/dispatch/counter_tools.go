package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

func (d *Dispatcher) registerCounterTools() {
	d.register("get_counter", d.handleGetCounter)
	d.register("increment_counter", d.handleIncrementCounter)
	d.register("reset_counter", d.handleResetCounter)
	d.register("acquire_merge_lock", d.handleAcquireMergeLock)
	d.register("release_merge_lock", d.handleReleaseMergeLock)
	d.register("store_handoff", d.handleStoreHandoff)
	d.register("get_pending_handoff", d.handleGetPendingHandoff)
	d.register("mark_handoff_resumed", d.handleMarkHandoffResumed)
	// The legacy tool-count tools (increment_tool_count, reset_tool_count)
	// are deliberately absent: the per-session tool_count file is owned by
	// the hook binaries through internal/counter, never by RPC.
}

func (d *Dispatcher) handleGetCounter(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	n, err := d.Meta.GetCounter(name)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to read counter %s", name)
	}
	return map[string]interface{}{"name": name, "value": n}, nil
}

func (d *Dispatcher) handleIncrementCounter(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	delta := int64(argInt(args, "delta", 1))
	n, err := d.Meta.IncrementCounter(name, delta)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to increment counter %s", name)
	}
	return map[string]interface{}{"name": name, "value": n}, nil
}

func (d *Dispatcher) handleResetCounter(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.ResetCounter(name); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to reset counter %s", name)
	}
	return map[string]interface{}{"name": name, "value": int64(0)}, nil
}

func (d *Dispatcher) handleAcquireMergeLock(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	holders, err := d.Meta.AcquireMergeLock(taskID)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to acquire merge lock for %s", taskID)
	}
	return map[string]interface{}{"task_id": taskID, "holders": holders}, nil
}

func (d *Dispatcher) handleReleaseMergeLock(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	holders, err := d.Meta.ReleaseMergeLock(taskID)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to release merge lock for %s", taskID)
	}
	return map[string]interface{}{"task_id": taskID, "holders": holders}, nil
}

func (d *Dispatcher) handleStoreHandoff(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	content, err := requireString(args, "handoff_content")
	if err != nil {
		return nil, err
	}
	h := &model.SessionHandoff{
		ID:                "handoff_" + uuid.NewString(),
		HandoffContent:    content,
		NeedsContinuation: argBool(args, "needs_continuation", true),
		CreatedAt:         time.Now().UTC(),
	}
	if err := d.Meta.InsertHandoff(h); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist session handoff")
	}
	return h, nil
}

func (d *Dispatcher) handleGetPendingHandoff(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	h, err := d.Meta.PendingHandoff()
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load pending handoff")
	}
	return map[string]interface{}{"handoff": h}, nil
}

func (d *Dispatcher) handleMarkHandoffResumed(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.MarkHandoffResumed(id, time.Now().UTC()); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to mark handoff %s resumed", id)
	}
	return map[string]interface{}{"ok": true, "id": id}, nil
}

