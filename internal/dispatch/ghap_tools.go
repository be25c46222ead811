package dispatch

import (
	"context"

	"calmd/internal/ghap"
	"calmd/internal/model"
)

func (d *Dispatcher) registerGHAPTools() {
	d.register("start_ghap", d.handleStartGHAP)
	d.register("update_ghap", d.handleUpdateGHAP)
	d.register("resolve_ghap", d.handleResolveGHAP)
	d.register("get_active_ghap", d.handleGetActiveGHAP)
	d.register("list_ghap_entries", d.handleListGHAPEntries)
}

func (d *Dispatcher) handleStartGHAP(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	domain, err := requireString(args, "domain")
	if err != nil {
		return nil, err
	}
	strategy, err := requireString(args, "strategy")
	if err != nil {
		return nil, err
	}
	goal, err := requireString(args, "goal")
	if err != nil {
		return nil, err
	}
	hypothesis, err := requireString(args, "hypothesis")
	if err != nil {
		return nil, err
	}
	action, err := requireString(args, "action")
	if err != nil {
		return nil, err
	}
	prediction, err := requireString(args, "prediction")
	if err != nil {
		return nil, err
	}

	id, err := d.Collector.Start(domain, strategy, goal, hypothesis, action, prediction)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "id": id}, nil
}

func (d *Dispatcher) handleUpdateGHAP(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	n, err := d.Collector.Update(ghap.UpdateFields{
		Hypothesis: argString(args, "hypothesis"),
		Prediction: argString(args, "prediction"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "iteration_count": n}, nil
}

func (d *Dispatcher) handleResolveGHAP(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	status, err := requireString(args, "status")
	if err != nil {
		return nil, err
	}
	result, err := requireString(args, "result")
	if err != nil {
		return nil, err
	}

	fields := ghap.ResolveFields{
		Status:        status,
		OutcomeResult: result,
		Surprise:      argString(args, "surprise"),
	}

	if rc := argObject(args, "root_cause"); rc != nil {
		fields.RootCause = &model.RootCause{
			Category:    model.RootCauseCategory(argString(rc, "category")),
			Description: argString(rc, "description"),
		}
	}
	if lesson := argObject(args, "lesson"); lesson != nil {
		fields.Lesson = &model.Lesson{
			WhatWorked: argString(lesson, "what_worked"),
			Takeaway:   argString(lesson, "takeaway"),
		}
	}

	id, err := d.Collector.Resolve(ctx, fields)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ok": true, "id": id}, nil
}

func (d *Dispatcher) handleGetActiveGHAP(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	active, err := d.Collector.GetActive()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"active": active}, nil
}

func (d *Dispatcher) handleListGHAPEntries(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	entries, err := d.Collector.ListEntries(argString(args, "domain"), argInt(args, "limit", 0))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"entries": entries, "count": len(entries)}, nil
}
