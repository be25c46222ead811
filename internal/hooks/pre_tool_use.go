package hooks

import (
	"context"
	"fmt"

	"calmd/internal/config"
	"calmd/internal/counter"
	"calmd/internal/dispatch"
	"calmd/internal/logging"
)

// PreToolUse increments the per-session tool-invocation counter and, once it
// reaches cfg.Hooks.CheckInFrequency while a GHAP entry is active, returns a
// capped plain-text check-in reminder and resets the counter (spec.md section
// 4.N: PreToolUse emits plain text, not the hookSpecificOutput wrapper).
// "" means stay silent. toolName and toolInput are accepted for contract
// completeness but do not currently change the reminder's content.
func PreToolUse(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config, sessionID, toolName string, toolInput map[string]interface{}) string {
	path := cfg.ToolCountFile()
	n, err := counter.Increment(path, sessionID)
	if err != nil {
		logging.HookWarn("pre_tool_use: failed to increment tool counter: %v", err)
		return ""
	}
	if n < cfg.Hooks.CheckInFrequency {
		return ""
	}

	envelope := d.Call(ctx, "get_active_ghap", nil)
	if _, isErr := envelope["error"]; isErr {
		return ""
	}
	active, _ := envelope["active"].(map[string]interface{})
	if active == nil {
		return ""
	}

	if err := counter.Reset(path, sessionID); err != nil {
		logging.HookWarn("pre_tool_use: failed to reset tool counter after check-in: %v", err)
	}

	goal, _ := active["goal"].(string)
	reminder := fmt.Sprintf("GHAP Check-in: %d tool calls since the last one. Active goal: %s. "+
		"Consider whether the current hypothesis still holds, or whether it's time to resolve this entry.", n, goal)
	return truncate(reminder, cfg.Hooks.CheckinCharCap)
}
