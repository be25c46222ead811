// Package dispatch implements the Tool Dispatcher: a name-keyed registry of
// handlers, each returning a uniform response envelope, shared between the
// local RPC endpoint (cmd/calmd's HTTP server) and the Hook Contract
// (internal/hooks). No handler is ever allowed to panic or propagate a raw
// exception across this boundary -- Call recovers and translates every
// failure into the error envelope (spec.md section 4.M, section 7).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"calmd/internal/calmerr"
	ctxassembler "calmd/internal/context"
	"calmd/internal/ghap"
	"calmd/internal/logging"
	"calmd/internal/review"
	"calmd/internal/search"
	"calmd/internal/store"
	"calmd/internal/values"
	"calmd/internal/worktree"
)

// Handler is a registered tool implementation. It receives the decoded
// arguments object and returns either a primitive string, a plain
// JSON-serializable object (map or struct), or an error.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Dispatcher owns the tool registry and every component handlers call into.
type Dispatcher struct {
	Name    string
	Version string

	Meta      *store.MetadataStore
	Vec       *store.VectorStore
	Collector *ghap.Collector
	Searcher  *search.Searcher
	Values    *values.Store
	Assembler *ctxassembler.Assembler
	Worktree  *worktree.Manager
	Review    *review.Evaluator
	Gate      map[string][]review.Requirement // keyed by "FROM-TO" transition name

	handlers map[string]Handler
}

// New builds a Dispatcher and registers the full tool catalog.
func New(name, version string) *Dispatcher {
	d := &Dispatcher{Name: name, Version: version, handlers: make(map[string]Handler)}
	d.registerAll()
	return d
}

func (d *Dispatcher) register(name string, h Handler) {
	d.handlers[name] = h
}

func (d *Dispatcher) registerAll() {
	d.register("ping", d.handlePing)

	d.registerGHAPTools()
	d.registerSearchTools()
	d.registerValueTools()
	d.registerMemoryTools()
	d.registerJournalTools()
	d.registerContextTools()
	d.registerTaskTools()
	d.registerWorktreeTools()
	d.registerReviewTools()
	d.registerCounterTools()
}

// Names returns the registered tool catalog, for introspection and tests.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) handlePing(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return healthPayload(d.Name, d.Version), nil
}

// healthPayload is shared by the ping tool and the /health HTTP endpoint.
func healthPayload(name, version string) map[string]interface{} {
	return map[string]interface{}{
		"status":  "healthy",
		"server":  name,
		"version": version,
	}
}

// Call dispatches one tool invocation and returns the response envelope.
// It never panics: a handler panic is recovered and translated to an
// internal_error envelope, matching the "exceptions never cross the
// boundary" rule (spec.md section 7).
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]interface{}) (envelope map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logging.DispatchError("tool %s panicked: %v", name, r)
			envelope = errorEnvelope(calmerr.KindInternal, fmt.Sprintf("internal error handling %s", name))
		}
	}()

	handler, ok := d.handlers[name]
	if !ok {
		return errorEnvelope(calmerr.KindUnknownTool, fmt.Sprintf("unknown tool: %s", name))
	}

	select {
	case <-ctx.Done():
		return errorEnvelope(calmerr.KindTimeout, "deadline exceeded before dispatch")
	default:
	}

	result, err := handler(ctx, args)
	if err != nil {
		kind := calmerr.KindOf(err)
		logging.DispatchWarn("tool %s failed kind=%s: %v", name, kind, err)
		return errorEnvelope(kind, err.Error())
	}

	return successEnvelope(result)
}

func errorEnvelope(kind calmerr.Kind, message string) map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    string(kind),
			"message": message,
		},
	}
}

// successEnvelope renders a handler's return value. A bare string becomes
// {"result": "<string>"}; anything else is round-tripped through JSON so the
// envelope is always plain data -- never a language-specific object graph
// crossing the dispatcher boundary (spec.md section 4.F, section 9).
func successEnvelope(v interface{}) map[string]interface{} {
	if s, ok := v.(string); ok {
		return map[string]interface{}{"result": s}
	}
	if v == nil {
		return map[string]interface{}{}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errorEnvelope(calmerr.KindInternal, fmt.Sprintf("failed to serialize result: %v", err))
	}

	var plain map[string]interface{}
	if err := json.Unmarshal(data, &plain); err != nil {
		// The handler returned something that doesn't marshal to an object
		// (e.g. a bare slice); wrap it so the envelope is still a JSON object.
		var anyVal interface{}
		_ = json.Unmarshal(data, &anyVal)
		return map[string]interface{}{"result": anyVal}
	}
	return plain
}
