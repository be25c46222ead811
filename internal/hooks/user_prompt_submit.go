package hooks

import (
	"context"

	"calmd/internal/config"
	"calmd/internal/dispatch"
	"calmd/internal/logging"
)

// UserPromptSubmit assembles a markdown context pack scoped to the incoming
// prompt, capped at cfg.Hooks.ContextCharCap chars (spec.md section 4.N).
// The prompt itself is truncated to cfg.Hooks.PromptCharCap before it is
// used as the query text, in case the host forwards an unbounded paste.
func UserPromptSubmit(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config, prompt string) HookOutput {
	prompt = truncate(prompt, cfg.Hooks.PromptCharCap)
	if prompt == "" {
		return empty()
	}

	envelope := d.Call(ctx, "assemble_context", map[string]interface{}{
		"query_text": prompt,
	})
	if _, isErr := envelope["error"]; isErr {
		logging.HookWarn("user_prompt_submit: assemble_context failed: %v", envelope["error"])
		return empty()
	}

	markdown, _ := envelope["markdown"].(string)
	markdown = truncate(markdown, cfg.Hooks.ContextCharCap)
	if markdown == "" {
		return empty()
	}
	return wrap("UserPromptSubmit", markdown)
}
