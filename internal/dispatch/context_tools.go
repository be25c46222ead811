package dispatch

import (
	"context"
	"fmt"

	"calmd/internal/calmerr"
	ctxassembler "calmd/internal/context"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/search"
)

func (d *Dispatcher) registerContextTools() {
	d.register("assemble_context", d.handleAssembleContext)
}

// handleAssembleContext gathers Items per requested kind from the Searcher
// (and, for experiences, a GHAP join so the rendered line carries the goal
// and outcome rather than a bare id) before handing everything to the
// stateless Assembler (spec.md section 4.G).
func (d *Dispatcher) handleAssembleContext(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	queryText, err := requireString(args, "query_text")
	if err != nil {
		return nil, err
	}

	kindNames := argStringSlice(args, "kinds")
	var kinds []ctxassembler.Kind
	for _, k := range kindNames {
		kinds = append(kinds, ctxassembler.Kind(k))
	}

	perKindCap := argInt(args, "per_kind_cap", search.DefaultLimit)

	req := ctxassembler.Request{
		QueryText:   queryText,
		Kinds:       kinds,
		TokenBudget: argInt(args, "token_budget", 0),
		PerKindCap:  perKindCap,
		Items:       make(map[ctxassembler.Kind][]ctxassembler.Item),
	}

	requested := kinds
	if len(requested) == 0 {
		requested = ctxassembler.ValidKinds
	}

	for _, k := range requested {
		items, err := d.gatherItems(ctx, k, queryText, perKindCap)
		if err != nil {
			logging.ContextWarn("assemble_context: failed to gather kind %q: %v", k, err)
			continue
		}
		req.Items[k] = items
	}

	result, err := d.Assembler.Assemble(req)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) gatherItems(ctx context.Context, kind ctxassembler.Kind, queryText string, limit int) ([]ctxassembler.Item, error) {
	switch kind {
	case ctxassembler.KindExperiences:
		return d.gatherExperienceItems(ctx, queryText, limit)
	case ctxassembler.KindMemories:
		hits, err := d.Searcher.SearchMemories(ctx, queryText, limit)
		if err != nil {
			return nil, err
		}
		return hitsToItems(hits, "content"), nil
	case ctxassembler.KindCode:
		hits, err := d.Searcher.SearchCode(ctx, queryText, limit)
		if err != nil {
			return nil, err
		}
		return hitsToItems(hits, "content"), nil
	case ctxassembler.KindValues:
		hits, err := d.Searcher.SearchValues(ctx, queryText, limit)
		if err != nil {
			return nil, err
		}
		return hitsToItems(hits, "text"), nil
	case ctxassembler.KindCommits:
		hits, err := d.Searcher.SearchCommits(ctx, queryText, limit)
		if err != nil {
			return nil, err
		}
		return hitsToItems(hits, "message", "content"), nil
	default:
		return nil, calmerr.New(calmerr.KindValidation, "unknown context kind %q", kind)
	}
}

func (d *Dispatcher) gatherExperienceItems(ctx context.Context, queryText string, limit int) ([]ctxassembler.Item, error) {
	hits, err := d.Searcher.SearchExperiences(ctx, queryText, model.AxisFull, "", "", limit)
	if err != nil {
		return nil, err
	}
	items := make([]ctxassembler.Item, 0, len(hits))
	for _, h := range hits {
		entry, err := d.Meta.GetGHAP(h.ID)
		if err != nil || entry == nil {
			continue
		}
		line := fmt.Sprintf("[%s] goal: %s | hypothesis: %s | status: %s", entry.Domain, entry.Goal, entry.Hypothesis, entry.Status)
		items = append(items, ctxassembler.Item{Source: h.ID, Content: line})
	}
	return items, nil
}

// hitsToItems renders a Hit's payload into a single line of text, trying
// each key in order and falling back to the id if nothing matches.
func hitsToItems(hits []search.Hit, keys ...string) []ctxassembler.Item {
	items := make([]ctxassembler.Item, 0, len(hits))
	for _, h := range hits {
		text := ""
		for _, k := range keys {
			if s, ok := h.Payload[k].(string); ok && s != "" {
				text = s
				break
			}
		}
		if text == "" {
			text = h.ID
		}
		items = append(items, ctxassembler.Item{Source: h.ID, Content: text})
	}
	return items
}
