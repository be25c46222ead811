package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"calmd/internal/config"
	"calmd/internal/dispatch"
	"calmd/internal/logging"
)

// SessionStart assembles the additionalContext a new session opens with: the
// skill catalog under {home}/skills/ (folded in from the original system's
// skill_loader hook) and, when one is pending, the last session's handoff
// note so work resumes instead of restarting cold.
func SessionStart(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config) HookOutput {
	var sections []string

	if skills := renderSkillCatalog(cfg); skills != "" {
		sections = append(sections, skills)
	}

	if handoff := renderPendingHandoff(ctx, d); handoff != "" {
		sections = append(sections, handoff)
	}

	if len(sections) == 0 {
		return empty()
	}
	return wrap("SessionStart", strings.Join(sections, "\n\n"))
}

func renderSkillCatalog(cfg *config.Config) string {
	dir := filepath.Join(cfg.Home, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.HookWarn("session_start: failed to read skills dir %s: %v", dir, err)
		}
		return ""
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	if len(names) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available skills\n")
	for _, n := range names {
		sb.WriteString(fmt.Sprintf("- %s\n", n))
	}
	return sb.String()
}

func renderPendingHandoff(ctx context.Context, d *dispatch.Dispatcher) string {
	envelope := d.Call(ctx, "get_pending_handoff", nil)
	if _, isErr := envelope["error"]; isErr {
		return ""
	}
	handoff, ok := envelope["handoff"].(map[string]interface{})
	if !ok || handoff == nil {
		return ""
	}
	content, _ := handoff["handoff_content"].(string)
	if content == "" {
		return ""
	}
	return "## Resuming from prior session\n" + content
}
