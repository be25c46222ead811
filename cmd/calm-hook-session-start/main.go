// Command calm-hook-session-start is the SessionStart entry point of the
// Hook Contract: it reads an optional JSON object on stdin, assembles the
// skill catalog and any pending handoff note, and writes the fixed
// hookSpecificOutput shape to stdout. It always exits 0 (spec.md section 4.N).
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"calmd/internal/config"
	"calmd/internal/daemonrt"
	"calmd/internal/hooks"
)

type sessionStartInput struct {
	SessionID string `json:"session_id"`
}

func main() {
	out := hooks.HookOutput{}
	func() {
		defer func() { recover() }()
		out = run()
	}()
	os.Stdout.Write(hooks.Render(out))
}

func run() hooks.HookOutput {
	data, _ := io.ReadAll(os.Stdin)
	var in sessionStartInput
	_ = json.Unmarshal(data, &in)

	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		return hooks.HookOutput{}
	}
	if err := cfg.EnsureDirs(); err != nil {
		return hooks.HookOutput{}
	}
	if in.SessionID != "" {
		_ = os.WriteFile(cfg.SessionIDFile(), []byte(in.SessionID), 0644)
	}

	d, cleanup, err := daemonrt.Build(cfg)
	if err != nil {
		return hooks.HookOutput{}
	}
	defer cleanup()

	return hooks.SessionStart(context.Background(), d, cfg)
}

func configPathFromEnv() string {
	if v := os.Getenv("CALMD_CONFIG"); v != "" {
		return v
	}
	defaults := config.DefaultConfig()
	return defaults.Home + "/config.yaml"
}
