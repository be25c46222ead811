package dispatch

import (
	"context"
	"encoding/json"

	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/search"
)

func (d *Dispatcher) registerSearchTools() {
	d.register("search_experiences", d.handleSearchExperiences)
	d.register("search_memories", d.handleSearchMemories)
	d.register("search_code", d.handleSearchCode)
	d.register("search_values", d.handleSearchValues)
	d.register("search_commits", d.handleSearchCommits)
}

// handleSearchExperiences joins axis-scoped kNN hits back against the
// Metadata Store so results carry every GHAP field spelled out in spec.md
// section 3, not just the thin id/domain/status/confidence_tier payload the axis
// vector collections themselves carry.
func (d *Dispatcher) handleSearchExperiences(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}
	axis, err := requireString(args, "axis")
	if err != nil {
		return nil, err
	}

	hits, err := d.Searcher.SearchExperiences(ctx, queryText, model.Axis(axis),
		argString(args, "domain"), argString(args, "outcome"), argInt(args, "limit", search.DefaultLimit))
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		entry, err := d.Meta.GetGHAP(h.ID)
		if err != nil {
			logging.DispatchWarn("search_experiences: failed to load ghap entry %s: %v", h.ID, err)
			continue
		}
		if entry == nil {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		m["score"] = h.Similarity
		results = append(results, m)
	}

	return map[string]interface{}{"results": results, "count": len(results)}, nil
}

func (d *Dispatcher) handleSearchMemories(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}
	hits, err := d.Searcher.SearchMemories(ctx, queryText, argInt(args, "limit", search.DefaultLimit))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": hits, "count": len(hits)}, nil
}

func (d *Dispatcher) handleSearchCode(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}
	hits, err := d.Searcher.SearchCode(ctx, queryText, argInt(args, "limit", search.DefaultLimit))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": hits, "count": len(hits)}, nil
}

func (d *Dispatcher) handleSearchValues(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}
	hits, err := d.Searcher.SearchValues(ctx, queryText, argInt(args, "limit", search.DefaultLimit))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": hits, "count": len(hits)}, nil
}

func (d *Dispatcher) handleSearchCommits(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}
	hits, err := d.Searcher.SearchCommits(ctx, queryText, argInt(args, "limit", search.DefaultLimit))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"results": hits, "count": len(hits)}, nil
}
