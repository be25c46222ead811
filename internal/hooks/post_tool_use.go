package hooks

import (
	"strings"

	"calmd/internal/config"
)

// failureMarkers are substrings that suggest a test run reported a failure.
// PostToolUse's full resolution-proposal behavior is out of scope (spec.md
// section 4.N); this surfaces a nudge toward logging the failure as a GHAP
// surprise rather than attempting to diagnose it.
var failureMarkers = []string{"FAIL", "Error:", "panic:", "AssertionError", "Traceback (most recent call last)"}

// PostToolUse inspects a tool's result text for a test-failure signature and,
// if found, nudges the caller to capture it as a GHAP surprise rather than
// letting it pass unrecorded.
func PostToolUse(cfg *config.Config, toolName, resultText string) HookOutput {
	if resultText == "" {
		return empty()
	}
	for _, marker := range failureMarkers {
		if strings.Contains(resultText, marker) {
			return wrap("PostToolUse", truncate(
				"This tool result looks like a failed run. If this contradicts an active hypothesis's "+
					"prediction, resolve the GHAP entry with a surprise rather than silently retrying.",
				cfg.Hooks.CheckinCharCap))
		}
	}
	return empty()
}
