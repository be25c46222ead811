// Command calm-hook-user-prompt-submit is the UserPromptSubmit entry point
// of the Hook Contract: it reads {"prompt": "<text>"} on stdin and writes a
// markdown context pack scoped to that prompt. Always exits 0 (spec.md
// section 4.N).
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

type promptInput struct {
	Prompt    string `json:"prompt"`
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
	var in promptInput
	if err := json.Unmarshal(data, &in); err != nil {
		return hooks.HookOutput{}
	}

	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		return hooks.HookOutput{}
	}

	d, cleanup, err := daemonrt.Build(cfg)
	if err != nil {
		return hooks.HookOutput{}
	}
	defer cleanup()

	return hooks.UserPromptSubmit(context.Background(), d, cfg, in.Prompt)
}

func configPathFromEnv() string {
	if v := os.Getenv("CALMD_CONFIG"); v != "" {
		return v
	}
	defaults := config.DefaultConfig()
	return defaults.Home + "/config.yaml"
}
