// Command calm-hook-pre-tool-use is the PreToolUse entry point of the Hook
// Contract: it reads {"tool_name": "...", "tool_input": {...}} on stdin,
// bumps the per-session tool counter, and emits a capped plain-text check-in
// reminder once the configured frequency is reached with a GHAP entry active
// -- otherwise it emits nothing at all. Always exits 0 (spec.md section 4.N).
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"calmd/internal/config"
	"calmd/internal/daemonrt"
	"calmd/internal/hooks"
)

type preToolUseInput struct {
	SessionID string                 `json:"session_id"`
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
}

func main() {
	reminder := ""
	func() {
		defer func() { recover() }()
		reminder = run()
	}()
	if reminder != "" {
		os.Stdout.WriteString(reminder)
	}
}

func run() string {
	data, _ := io.ReadAll(os.Stdin)
	var in preToolUseInput
	if err := json.Unmarshal(data, &in); err != nil {
		return ""
	}

	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		return ""
	}
	if err := cfg.EnsureDirs(); err != nil {
		return ""
	}

	sessionID := resolveSessionID(cfg, in.SessionID)

	d, cleanup, err := daemonrt.Build(cfg)
	if err != nil {
		return ""
	}
	defer cleanup()

	return hooks.PreToolUse(context.Background(), d, cfg, sessionID, in.ToolName, in.ToolInput)
}

// resolveSessionID persists an incoming session id so later hook calls in
// the same session (which may not repeat it) can still scope the counter
// correctly, falling back to whatever was last persisted.
func resolveSessionID(cfg *config.Config, provided string) string {
	if provided != "" {
		_ = os.WriteFile(cfg.SessionIDFile(), []byte(provided), 0644)
		return provided
	}
	data, err := os.ReadFile(cfg.SessionIDFile())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func configPathFromEnv() string {
	if v := os.Getenv("CALMD_CONFIG"); v != "" {
		return v
	}
	defaults := config.DefaultConfig()
	return defaults.Home + "/config.yaml"
}
