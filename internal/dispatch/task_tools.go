package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/model"
	"calmd/internal/task"
)

func (d *Dispatcher) registerTaskTools() {
	d.register("create_task", d.handleCreateTask)
	d.register("get_task", d.handleGetTask)
	d.register("list_tasks", d.handleListTasks)
	d.register("transition_task", d.handleTransitionTask)
	d.register("next_phases", d.handleNextPhases)
}

func (d *Dispatcher) handleCreateTask(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title, err := requireString(args, "title")
	if err != nil {
		return nil, err
	}
	taskType, err := requireString(args, "task_type")
	if err != nil {
		return nil, err
	}
	projectPath, err := requireString(args, "project_path")
	if err != nil {
		return nil, err
	}

	phase, err := task.InitialPhase(model.TaskType(taskType))
	if err != nil {
		return nil, err
	}

	// Callers may supply their own opaque id (e.g. "SPEC-001"); one is
	// generated otherwise.
	id := argString(args, "id")
	if id == "" {
		id = "task_" + uuid.NewString()
	}

	now := time.Now().UTC()
	t := &model.Task{
		ID:          id,
		Title:       title,
		TaskType:    model.TaskType(taskType),
		Phase:       phase,
		SpecID:      argString(args, "spec_id"),
		Specialist:  argString(args, "specialist"),
		Notes:       argString(args, "notes"),
		BlockedBy:   argStringSlice(args, "blocked_by"),
		ProjectPath: projectPath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Meta.InsertTask(t); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist task")
	}
	return t, nil
}

func (d *Dispatcher) handleGetTask(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	t, err := d.Meta.GetTask(id)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load task %s", id)
	}
	if t == nil {
		return nil, calmerr.New(calmerr.KindNotFound, "task %s not found", id)
	}
	return t, nil
}

func (d *Dispatcher) handleListTasks(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	tasks, err := d.Meta.ListTasks(argString(args, "phase"))
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list tasks")
	}
	return map[string]interface{}{"tasks": tasks, "count": len(tasks)}, nil
}

func (d *Dispatcher) handleTransitionTask(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	toPhase, err := requireString(args, "to_phase")
	if err != nil {
		return nil, err
	}

	t, err := d.Meta.GetTask(id)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load task %s", id)
	}
	if t == nil {
		return nil, calmerr.New(calmerr.KindNotFound, "task %s not found", id)
	}

	if err := task.ValidateTransition(t.TaskType, t.Phase, toPhase); err != nil {
		return nil, err
	}

	if key := gateKeyFor(t.Phase, toPhase); key != "" {
		if reqs, ok := d.Gate[key]; ok {
			gate, err := d.Review.CheckGate(key, reqs)
			if err != nil {
				return nil, err
			}
			if !gate.Passed {
				return nil, calmerr.New(calmerr.KindValidation,
					"gate requirements unmet for %s -> %s: %+v", t.Phase, toPhase, gate.Checks)
			}
		}
	}

	t.Phase = toPhase
	t.UpdatedAt = time.Now().UTC()
	if err := d.Meta.UpdateTask(t); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to update task %s", id)
	}
	return t, nil
}

func (d *Dispatcher) handleNextPhases(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	taskType, err := requireString(args, "task_type")
	if err != nil {
		return nil, err
	}
	phase, err := requireString(args, "phase")
	if err != nil {
		return nil, err
	}
	phases, err := task.NextPhases(model.TaskType(taskType), phase)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"next_phases": phases}, nil
}

func gateKeyFor(from, to string) string {
	return from + "-" + to
}
