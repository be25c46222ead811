package config

import "fmt"

// CoreLimits enforces system-wide resource constraints on the daemon.
type CoreLimits struct {
	MaxConcurrentGitOps   int `yaml:"max_concurrent_git_ops" json:"max_concurrent_git_ops"`     // worktree git subprocess concurrency, keyed by repo path
	MaxScrollPoints       int `yaml:"max_scroll_points" json:"max_scroll_points"`               // vector store scroll cap (spec.md 4.E: 10000)
	MaxBatchEmbedSize     int `yaml:"max_batch_embed_size" json:"max_batch_embed_size"`         // embed_batch chunk size
	WorkerStaleHorizonMin int `yaml:"worker_stale_horizon_min" json:"worker_stale_horizon_min"` // SweepWorkers horizon
}

// ValidateCoreLimits checks that core limits are within acceptable ranges.
func (c *Config) ValidateCoreLimits() error {
	if c.CoreLimits.MaxConcurrentGitOps < 1 {
		return fmt.Errorf("max_concurrent_git_ops must be >= 1")
	}
	if c.CoreLimits.MaxScrollPoints < 100 {
		return fmt.Errorf("max_scroll_points must be >= 100")
	}
	if c.CoreLimits.MaxBatchEmbedSize < 1 {
		return fmt.Errorf("max_batch_embed_size must be >= 1")
	}
	return nil
}

// EnforceCoreLimits returns enforcement parameters as a flat map, so callers
// that only need a couple of values don't need to import the config package's
// full struct graph.
func (c *Config) EnforceCoreLimits() map[string]int {
	return map[string]int{
		"max_concurrent_git_ops":   c.CoreLimits.MaxConcurrentGitOps,
		"max_scroll_points":        c.CoreLimits.MaxScrollPoints,
		"max_batch_embed_size":     c.CoreLimits.MaxBatchEmbedSize,
		"worker_stale_horizon_min": c.CoreLimits.WorkerStaleHorizonMin,
	}
}
