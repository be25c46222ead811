package dispatch

import (
	"context"

	"calmd/internal/model"
)

func (d *Dispatcher) registerValueTools() {
	d.register("validate_value", d.handleValidateValue)
	d.register("store_value", d.handleStoreValue)
	d.register("list_values", d.handleListValues)
}

func (d *Dispatcher) handleValidateValue(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	text, err := requireString(args, "text")
	if err != nil {
		return nil, err
	}
	clusterID, err := requireString(args, "cluster_id")
	if err != nil {
		return nil, err
	}

	result, err := d.Values.Validate(ctx, text, clusterID)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{"valid": result.Valid, "cluster_id": clusterID}
	if result.HasSimilarity {
		out["similarity"] = result.Similarity
	}
	return out, nil
}

func (d *Dispatcher) handleStoreValue(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	text, err := requireString(args, "text")
	if err != nil {
		return nil, err
	}
	clusterID, err := requireString(args, "cluster_id")
	if err != nil {
		return nil, err
	}
	axis, err := requireString(args, "axis")
	if err != nil {
		return nil, err
	}

	v, err := d.Values.Store(ctx, text, clusterID, model.Axis(axis))
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Dispatcher) handleListValues(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	vals, err := d.Values.List(argString(args, "axis"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"values": vals, "count": len(vals)}, nil
}
