// Package gitlock bounds how many git subprocesses may run concurrently
// against a given repository path, so worktree and gate-check operations
// never race on the same .git/index (spec.md section 5: "git operations
// ... run under a bounded concurrency budget keyed by repository path").
package gitlock

import "sync"

// defaultLimit matches config.DefaultConfig's CoreLimits.MaxConcurrentGitOps,
// used until the daemon calls SetLimit with the configured value.
const defaultLimit = 2

var shared = NewRegistry(defaultLimit)

// SetLimit resizes the process-wide shared registry used by Acquire. Call
// once at startup, before any git subprocess runs, from the configured
// CoreLimits.MaxConcurrentGitOps.
func SetLimit(n int) {
	if n > 0 {
		shared = NewRegistry(n)
	}
}

// Acquire blocks until a slot is free for repoPath on the process-wide
// shared registry, shared by every package that shells out to git against
// that path (worktree, review).
func Acquire(repoPath string) func() {
	return shared.Acquire(repoPath)
}

// Registry hands out bounded, repository-path-keyed slots, the same
// semaphore-over-a-buffered-channel shape the pack uses for API call
// concurrency (core.APIScheduler's slots chan struct{}).
type Registry struct {
	mu    sync.Mutex
	limit int
	slots map[string]chan struct{}
}

// NewRegistry builds a Registry allowing up to limit concurrent git
// subprocesses per repository path. limit < 1 is treated as 1.
func NewRegistry(limit int) *Registry {
	if limit < 1 {
		limit = 1
	}
	return &Registry{limit: limit, slots: make(map[string]chan struct{})}
}

// Acquire blocks until a slot is free for repoPath and returns a release
// func the caller must invoke (typically via defer) once its git subprocess
// has exited.
func (r *Registry) Acquire(repoPath string) func() {
	r.mu.Lock()
	ch, ok := r.slots[repoPath]
	if !ok {
		ch = make(chan struct{}, r.limit)
		r.slots[repoPath] = ch
	}
	r.mu.Unlock()

	ch <- struct{}{}
	return func() { <-ch }
}
