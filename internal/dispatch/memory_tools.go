package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

func (d *Dispatcher) registerMemoryTools() {
	d.register("create_memory", d.handleCreateMemory)
	d.register("get_memory", d.handleGetMemory)
	d.register("update_memory", d.handleUpdateMemory)
	d.register("delete_memory", d.handleDeleteMemory)
	d.register("list_memories", d.handleListMemories)
}

func (d *Dispatcher) handleCreateMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}
	category, err := requireString(args, "category")
	if err != nil {
		return nil, err
	}
	importance := argFloat(args, "importance", 0.5)
	if importance < 0 || importance > 1 {
		return nil, calmerr.New(calmerr.KindValidation, "importance must be within [0,1], got %v", importance)
	}

	m := &model.Memory{
		ID:         "memory_" + uuid.NewString(),
		Content:    content,
		Category:   category,
		Importance: importance,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.Meta.InsertMemory(m); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to persist memory")
	}
	return m, nil
}

func (d *Dispatcher) handleGetMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	m, err := d.Meta.GetMemory(id)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load memory %s", id)
	}
	if m == nil {
		return nil, calmerr.New(calmerr.KindNotFound, "memory %s not found", id)
	}
	return m, nil
}

func (d *Dispatcher) handleUpdateMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	m, err := d.Meta.GetMemory(id)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load memory %s", id)
	}
	if m == nil {
		return nil, calmerr.New(calmerr.KindNotFound, "memory %s not found", id)
	}

	if v := argString(args, "content"); v != "" {
		m.Content = v
	}
	if v := argString(args, "category"); v != "" {
		m.Category = v
	}
	if _, ok := args["importance"]; ok {
		m.Importance = argFloat(args, "importance", m.Importance)
	}

	if err := d.Meta.UpdateMemory(m); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to update memory %s", id)
	}
	return m, nil
}

func (d *Dispatcher) handleDeleteMemory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	if err := d.Meta.DeleteMemory(id); err != nil {
		return nil, calmerr.Wrap(calmerr.KindNotFound, err, "failed to delete memory %s", id)
	}
	return map[string]interface{}{"ok": true, "id": id}, nil
}

func (d *Dispatcher) handleListMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	memories, err := d.Meta.ListMemories(argString(args, "category"), argInt(args, "limit", 0))
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list memories")
	}
	return map[string]interface{}{"memories": memories, "count": len(memories)}, nil
}
