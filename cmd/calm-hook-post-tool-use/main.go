// Command calm-hook-post-tool-use is the PostToolUse entry point of the
// Hook Contract: it reads {"tool_name": "...", "tool_response": ...} on
// stdin and nudges toward recording a GHAP surprise when the result looks
// like a failed run. Always exits 0 (spec.md section 4.N).
package main

import (
	"encoding/json"
	"io"
	"os"

	"calmd/internal/config"
	"calmd/internal/hooks"
)

type postToolUseInput struct {
	ToolName     string      `json:"tool_name"`
	ToolResponse interface{} `json:"tool_response"`
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
	var in postToolUseInput
	if err := json.Unmarshal(data, &in); err != nil {
		return hooks.HookOutput{}
	}

	cfg, err := config.Load(configPathFromEnv())
	if err != nil {
		cfg = config.DefaultConfig()
	}

	return hooks.PostToolUse(cfg, in.ToolName, responseText(in.ToolResponse))
}

// responseText renders tool_response as text for the failure-marker scan,
// whether the host sent a bare string or a structured result object.
func responseText(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func configPathFromEnv() string {
	if v := os.Getenv("CALMD_CONFIG"); v != "" {
		return v
	}
	defaults := config.DefaultConfig()
	return defaults.Home + "/config.yaml"
}
