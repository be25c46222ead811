// Package config loads and validates calmd's daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"calmd/internal/logging"
)

// Config holds all calmd configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Home is the base directory for persisted state (metadata.db, pid/log
	// files, journal/, workflows/, roles/, sessions/, skills/). Conventionally
	// a dot-directory in the user's home, per spec.md section 6.
	Home string `yaml:"home"`

	Server     ServerConfig     `yaml:"server"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Values     ValuesConfig     `yaml:"values"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Worktree   WorktreeConfig   `yaml:"worktree"`
	Gate       GateConfig       `yaml:"gate"`
	Logging    LoggingConfig    `yaml:"logging"`
	CoreLimits CoreLimits       `yaml:"core_limits" json:"core_limits"`
}

// ServerConfig configures the dispatcher RPC HTTP surface (spec.md section 6).
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	CallTimeout    string `yaml:"call_timeout"`    // floating-point seconds, e.g. "30.5s"
	ShutdownWaitMs int    `yaml:"shutdown_wait_ms"` // how long the daemon lets its HTTP server drain on shutdown
}

// EmbeddingConfig configures the pluggable embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama", "genai", or "mock"
	Dimensions     int    `yaml:"dimensions"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	TaskType       string `yaml:"task_type"`
}

// ClusterConfig configures the density-based clusterer (spec.md 4.E, section 9).
type ClusterConfig struct {
	MinClusterSize int `yaml:"min_cluster_size"`
	MinSamples     int `yaml:"min_samples"`
}

// ValuesConfig configures the Value Store's admission gate (spec.md 4.G).
type ValuesConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// HooksConfig configures the Hook Contract (spec.md 4.N).
type HooksConfig struct {
	CheckInFrequency   int `yaml:"check_in_frequency"`
	PromptCharCap      int `yaml:"prompt_char_cap"`
	ContextCharCap     int `yaml:"context_char_cap"`
	CheckinCharCap     int `yaml:"checkin_char_cap"`
}

// WorktreeConfig configures the Worktree Manager's post-merge dependency sync
// (spec.md 4.J) and staleness horizon.
type WorktreeConfig struct {
	SyncCommands      []string `yaml:"sync_commands"` // tried in order: lockfile sync, requirements file, editable install
	StaleAfterDays    int      `yaml:"stale_after_days"`
}

// GateConfig maps a transition name ("FROM-TO") to its ordered requirement list.
type GateConfig struct {
	Requirements map[string][]GateRequirement `yaml:"requirements"`
}

// GateRequirement is one check in a gate (spec.md 4.K).
type GateRequirement struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Automated   bool   `yaml:"automated"`
	Command     string `yaml:"command,omitempty"` // shell command for automated checks; empty means manual
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		Name:    "calmd",
		Version: "0.1.0",
		Home:    filepath.Join(home, ".calm"),

		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			CallTimeout:    "30s",
			ShutdownWaitMs: 5000,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Dimensions:     768,
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Cluster: ClusterConfig{
			MinClusterSize: 3,
			MinSamples:     2,
		},

		Values: ValuesConfig{
			SimilarityThreshold: 0.7,
		},

		Hooks: HooksConfig{
			CheckInFrequency: 10,
			PromptCharCap:    50000,
			ContextCharCap:   1200,
			CheckinCharCap:   800,
		},

		Worktree: WorktreeConfig{
			SyncCommands:   []string{"uv sync --frozen", "pip install -r requirements.txt", "pip install -e ."},
			StaleAfterDays: 14,
		},

		Gate: GateConfig{Requirements: map[string][]GateRequirement{}},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			File:      "calmd.log",
			DebugMode: false,
		},

		CoreLimits: CoreLimits{
			MaxConcurrentGitOps:   2,
			MaxScrollPoints:       10000,
			MaxBatchEmbedSize:     32,
			WorkerStaleHorizonMin: 180,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("Loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("Failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded: embedding_provider=%s home=%s", cfg.Embedding.Provider, cfg.Home)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides, same precedence
// idiom as the teacher: explicit env vars win over file/defaults.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CALMD_HOME"); v != "" {
		c.Home = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.Embedding.Provider == "" || c.Embedding.Provider == "ollama" {
			c.Embedding.Provider = "genai"
		}
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("OLLAMA_EMBEDDING_MODEL"); v != "" {
		c.Embedding.OllamaModel = v
	}
	if v := os.Getenv("CALMD_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			c.Server.Port = port
		}
	}
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}

// CallTimeoutDuration returns the dispatcher call timeout as a duration.
// Parsed with time.ParseDuration so sub-second floats (e.g. "0.5s") survive
// intact -- never truncate this to an int, see spec.md section 5.
func (c *Config) CallTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.CallTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PIDFile returns the path to the daemon's PID file (spec.md section 6).
func (c *Config) PIDFile() string { return filepath.Join(c.Home, "server.pid") }

// LogFile returns the path to the daemon's log file (spec.md section 6).
func (c *Config) LogFile() string { return filepath.Join(c.Home, "server.log") }

// MetadataDBPath returns the path to the relational metadata store.
func (c *Config) MetadataDBPath() string { return filepath.Join(c.Home, "metadata.db") }

// ToolCountFile returns the path to the per-session tool-invocation counter file.
func (c *Config) ToolCountFile() string { return filepath.Join(c.Home, "tool_count") }

// SessionIDFile returns the path to the current session id file.
func (c *Config) SessionIDFile() string { return filepath.Join(c.Home, "session_id") }

// EnsureDirs creates the persisted-state directory layout from spec.md section 6.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Home,
		filepath.Join(c.Home, "journal"),
		filepath.Join(c.Home, "journal", "archive"),
		filepath.Join(c.Home, "workflows"),
		filepath.Join(c.Home, "roles"),
		filepath.Join(c.Home, "sessions"),
		filepath.Join(c.Home, "skills"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}
