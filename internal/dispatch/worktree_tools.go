package dispatch

import (
	"context"

	"calmd/internal/worktree"
)

func (d *Dispatcher) registerWorktreeTools() {
	d.register("create_worktree", d.handleCreateWorktree)
	d.register("merge_worktree", d.handleMergeWorktree)
	d.register("remove_worktree", d.handleRemoveWorktree)
	d.register("check_worktree_conflicts", d.handleCheckWorktreeConflicts)
	d.register("list_worktrees", d.handleListWorktrees)
	d.register("worktree_health", d.handleWorktreeHealth)
	d.register("auto_commit_on_handoff", d.handleAutoCommitOnHandoff)
}

func (d *Dispatcher) handleCreateWorktree(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	opts := worktree.CreateOptions{
		Force:         argBool(args, "force", false),
		CheckOverlaps: argBool(args, "check_overlaps", true),
		TouchedPaths:  argStringSlice(args, "touched_paths"),
	}
	path, warnings, err := d.Worktree.Create(taskID, opts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"path": path, "overlap_warnings": warnings}, nil
}

func (d *Dispatcher) handleMergeWorktree(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	result, err := d.Worktree.Merge(taskID, argBool(args, "skip_sync", false), argBool(args, "force", false))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) handleRemoveWorktree(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	warned, err := d.Worktree.Remove(taskID, argString(args, "cwd"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "cwd_warning": warned}, nil
}

func (d *Dispatcher) handleCheckWorktreeConflicts(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskID, err := requireString(args, "task_id")
	if err != nil {
		return nil, err
	}
	conflicts, err := d.Worktree.CheckConflicts(taskID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"conflicts": conflicts, "has_conflicts": len(conflicts) > 0}, nil
}

func (d *Dispatcher) handleListWorktrees(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entries, err := d.Worktree.List()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"worktrees": entries, "count": len(entries)}, nil
}

func (d *Dispatcher) handleWorktreeHealth(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	report, err := d.Worktree.Health(argBool(args, "fix", false), argBool(args, "dry_run", false))
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (d *Dispatcher) handleAutoCommitOnHandoff(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	result, err := d.Worktree.AutoCommitOnHandoff()
	if err != nil {
		return nil, err
	}
	return result, nil
}
