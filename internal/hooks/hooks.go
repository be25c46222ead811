// Package hooks implements the Hook Contract (spec.md section 4.N): the
// fixed JSON schemas calmd's cmd/calm-hook-* binaries emit on stdout for
// SessionStart, UserPromptSubmit, PreToolUse, and PostToolUse. Every
// exported function here fails silently -- it logs the failure and returns
// an empty HookOutput rather than an error, since a hook must never block
// the host's tool execution (spec.md section 7).
package hooks

import "encoding/json"

// HookOutput is the one wire shape every hook binary prints. The legacy
// {"type": ..., "content": ...} shape is never emitted.
type HookOutput struct {
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// HookSpecificOutput carries the event name and the markdown or plain-text
// context the host should inject.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// empty is the output for "nothing to say" -- encodes to "{}".
func empty() HookOutput { return HookOutput{} }

func wrap(eventName, additionalContext string) HookOutput {
	return HookOutput{HookSpecificOutput: &HookSpecificOutput{
		HookEventName:     eventName,
		AdditionalContext: additionalContext,
	}}
}

// Render marshals a HookOutput to the JSON a hook binary writes to stdout.
// It never fails: a marshal error (which cannot happen for this type) falls
// back to the empty object literal.
func Render(out HookOutput) []byte {
	data, err := json.Marshal(out)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
