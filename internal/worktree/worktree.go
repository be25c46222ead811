// Package worktree implements the Worktree Manager: creates, merges, and
// removes git linked worktrees bound to tasks, with overlap and conflict
// detection across concurrently active worktrees.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"calmd/internal/calmerr"
	"calmd/internal/gitlock"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// Manager is the Worktree Manager component, scoped to one main repository.
type Manager struct {
	meta     *store.MetadataStore
	mainRepo string
}

// New builds a Manager rooted at mainRepo (the repository the worktrees
// branch off of and merge back into).
func New(meta *store.MetadataStore, mainRepo string) *Manager {
	return &Manager{meta: meta, mainRepo: mainRepo}
}

func (m *Manager) worktreePath(taskID string) string {
	return filepath.Join(m.mainRepo, ".worktrees", taskID)
}

// DetectMainRepo resolves the main repository root for dir by parsing
// `git worktree list --porcelain` and taking the first entry, which git
// guarantees is the main working tree. A daemon started from inside a linked
// worktree therefore still binds its Manager to the main tree. Falls back to
// dir when git is unavailable or dir is not a repository.
func DetectMainRepo(dir string) string {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return dir
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "worktree "))
		}
	}
	return dir
}

// runGit serializes git subprocesses against repoPath through the shared
// bounded registry (spec.md section 5), then runs git with dir as its
// working directory. repoPath is the main repository root even when dir is
// a linked worktree, since worktrees share one .git/index and refs store.
func runGit(repoPath, dir string, args ...string) (string, error) {
	release := gitlock.Acquire(repoPath)
	defer release()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return trimmed, fmt.Errorf("git %s: %w (%s)", strings.Join(args, " "), err, trimmed)
	}
	return trimmed, nil
}

// CreateOptions configures worktree creation.
type CreateOptions struct {
	Force         bool // proceed despite overlaps; they are still returned as warnings
	CheckOverlaps bool // require overlaps to be explicitly acknowledged absent Force
	TouchedPaths  []string
}

// OverlapWarning describes a detected overlap with another active worktree.
type OverlapWarning struct {
	OtherTaskID string   `json:"other_task_id"`
	Paths       []string `json:"paths"`
}

// Create creates a branch and linked worktree for taskID. The task must
// already exist in the metadata store.
func (m *Manager) Create(taskID string, opts CreateOptions) (string, []OverlapWarning, error) {
	task, err := m.meta.GetTask(taskID)
	if err != nil {
		return "", nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to look up task %s", taskID)
	}
	if task == nil {
		return "", nil, calmerr.New(calmerr.KindNotFound, "task %s does not exist", taskID)
	}

	var warnings []OverlapWarning
	if len(opts.TouchedPaths) > 0 {
		warnings, err = m.detectOverlaps(taskID, opts.TouchedPaths)
		if err != nil {
			return "", nil, err
		}
		if len(warnings) > 0 && !opts.Force && opts.CheckOverlaps {
			return "", warnings, calmerr.New(calmerr.KindValidation,
				"task %s overlaps with %d other active worktree(s); pass force to proceed anyway", taskID, len(warnings))
		}
	}

	path := m.worktreePath(taskID)
	if _, err := os.Stat(path); err == nil {
		return "", warnings, calmerr.New(calmerr.KindValidation, "worktree for %s already exists at %s", taskID, path)
	}

	if _, err := runGit(m.mainRepo, m.mainRepo, "worktree", "add", "-b", taskID, path); err != nil {
		return "", warnings, calmerr.Wrap(calmerr.KindInternal, err, "failed to create worktree for %s", taskID)
	}

	task.WorktreePath = path
	task.UpdatedAt = time.Now().UTC()
	if err := m.meta.UpdateTask(task); err != nil {
		return "", warnings, calmerr.Wrap(calmerr.KindInternal, err, "worktree created but failed to record worktree_path on task %s", taskID)
	}

	logging.Worktree("created worktree for task %s at %s (overlaps=%d)", taskID, path, len(warnings))
	return path, warnings, nil
}

// detectOverlaps scans every other task's worktree for uncommitted edits
// touching the same paths this task is known to touch.
func (m *Manager) detectOverlaps(taskID string, touchedPaths []string) ([]OverlapWarning, error) {
	tasks, err := m.meta.ListTasks("")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list tasks for overlap scan")
	}

	var warnings []OverlapWarning
	for _, t := range tasks {
		if t.ID == taskID || t.WorktreePath == "" {
			continue
		}
		status, err := runGit(m.mainRepo, t.WorktreePath, "status", "--porcelain")
		if err != nil {
			continue // worktree may have been removed out of band; not this scan's concern
		}

		var overlapping []string
		for _, line := range strings.Split(status, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			changedPath := strings.TrimSpace(line[min(3, len(line)):])
			for _, touched := range touchedPaths {
				if changedPath == touched || strings.HasPrefix(changedPath, touched+"/") {
					overlapping = append(overlapping, changedPath)
				}
			}
		}
		if len(overlapping) > 0 {
			warnings = append(warnings, OverlapWarning{OtherTaskID: t.ID, Paths: overlapping})
		}
	}
	return warnings, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MergeResult is returned from Merge.
type MergeResult struct {
	CommitSHA string `json:"commit_sha"`
	Synced    bool   `json:"synced"`
}

// Merge asserts no merge_lock is held (unless force), fast-forwards or
// merges taskID's branch into the main branch, and synchronizes project
// dependencies unless skipSync is set.
func (m *Manager) Merge(taskID string, skipSync, force bool) (*MergeResult, error) {
	if !force {
		holders, err := m.meta.MergeLockHolders(taskID)
		if err != nil {
			return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to check merge lock for %s", taskID)
		}
		if holders > 0 {
			return nil, calmerr.New(calmerr.KindValidation, "merge_lock is held for task %s; pass force to override", taskID)
		}
	}

	mainBranch, err := runGit(m.mainRepo, m.mainRepo, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to determine current branch of main repo")
	}

	if _, err := runGit(m.mainRepo, m.mainRepo, "merge", "--no-edit", taskID); err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to merge branch %s into %s", taskID, mainBranch)
	}

	sha, err := runGit(m.mainRepo, m.mainRepo, "rev-parse", "HEAD")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "merge succeeded but failed to read resulting commit")
	}

	result := &MergeResult{CommitSHA: sha}
	if !skipSync {
		if err := m.syncDependencies(); err != nil {
			logging.WorktreeWarn("merge of %s committed as %s but dependency sync failed: %v", taskID, sha, err)
		} else {
			result.Synced = true
		}
	}

	logging.Worktree("merged task %s as %s synced=%v", taskID, sha, result.Synced)
	return result, nil
}

// syncDependencies prefers a lockfile-based sync, then a requirements file,
// then falls back to an editable install, matching whichever dependency
// manifest is actually present in the main repo.
func (m *Manager) syncDependencies() error {
	candidates := []struct {
		file string
		cmd  []string
	}{
		{"go.sum", []string{"go", "mod", "download"}},
		{"uv.lock", []string{"uv", "sync"}},
		{"poetry.lock", []string{"poetry", "install"}},
		{"requirements.txt", []string{"pip", "install", "-r", "requirements.txt"}},
		{"setup.py", []string{"pip", "install", "-e", "."}},
	}

	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(m.mainRepo, c.file)); err != nil {
			continue
		}
		release := gitlock.Acquire(m.mainRepo)
		cmd := exec.Command(c.cmd[0], c.cmd[1:]...)
		cmd.Dir = m.mainRepo
		out, err := cmd.CombinedOutput()
		release()
		if err != nil {
			return fmt.Errorf("%s: %w (%s)", strings.Join(c.cmd, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
	return fmt.Errorf("no recognized dependency manifest found in %s", m.mainRepo)
}

// Remove deletes taskID's worktree without merging. If cwd sits inside the
// removed tree, the caller is warned (but the removal still proceeds; a
// short-lived hook process cannot meaningfully chdir its caller).
func (m *Manager) Remove(taskID string, cwd string) (warned bool, err error) {
	path := m.worktreePath(taskID)
	if cwd != "" && (cwd == path || strings.HasPrefix(cwd, path+string(filepath.Separator))) {
		warned = true
		logging.WorktreeWarn("removing worktree %s while caller's cwd %s is inside it", path, cwd)
	}

	if _, gitErr := runGit(m.mainRepo, m.mainRepo, "worktree", "remove", "--force", path); gitErr != nil {
		return warned, calmerr.Wrap(calmerr.KindInternal, gitErr, "failed to remove worktree for %s", taskID)
	}
	logging.Worktree("removed worktree for task %s", taskID)
	return warned, nil
}

// CheckConflicts performs a dry-run merge of taskID's branch and returns the
// conflicting paths without mutating any state.
func (m *Manager) CheckConflicts(taskID string) ([]string, error) {
	mergeBase, err := runGit(m.mainRepo, m.mainRepo, "merge-base", "HEAD", taskID)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to compute merge-base for %s", taskID)
	}

	out, err := runGit(m.mainRepo, m.mainRepo, "merge-tree", mergeBase, "HEAD", taskID)
	if err != nil {
		// merge-tree itself does not fail on conflicts; a non-zero exit here
		// is a real error (bad refs, detached worktree, etc).
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "merge-tree failed for %s", taskID)
	}

	// Each file block names its path on indented base/our/their lines; a
	// conflict marker inside the block marks that path as conflicting.
	var conflicts []string
	current := ""
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); strings.HasPrefix(line, "  ") && len(fields) >= 4 &&
			(fields[0] == "base" || fields[0] == "our" || fields[0] == "their") {
			current = strings.Join(fields[3:], " ")
			continue
		}
		if strings.Contains(line, "<<<<<<<") && current != "" &&
			(len(conflicts) == 0 || conflicts[len(conflicts)-1] != current) {
			conflicts = append(conflicts, current)
		}
	}
	return conflicts, nil
}

// Entry is one worktree's listing row.
type Entry struct {
	TaskID   string `json:"task_id"`
	Path     string `json:"path"`
	Branch   string `json:"branch"`
	Phase    string `json:"phase,omitempty"`
	TaskType string `json:"task_type,omitempty"`
}

// List enumerates every task-bound worktree known to the metadata store.
func (m *Manager) List() ([]Entry, error) {
	tasks, err := m.meta.ListTasks("")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list tasks")
	}

	var out []Entry
	for _, t := range tasks {
		if t.WorktreePath == "" {
			continue
		}
		out = append(out, Entry{
			TaskID:   t.ID,
			Path:     t.WorktreePath,
			Branch:   t.ID,
			Phase:    t.Phase,
			TaskType: string(t.TaskType),
		})
	}
	return out, nil
}

// HealthLevel is the severity of one health-audit finding.
type HealthLevel string

const (
	HealthOK      HealthLevel = "OK"
	HealthWarning HealthLevel = "WARNING"
	HealthError   HealthLevel = "ERROR"
)

// HealthFinding is one row of a health report.
type HealthFinding struct {
	TaskID  string      `json:"task_id"`
	Level   HealthLevel `json:"level"`
	Message string      `json:"message"`
	Fixed   bool        `json:"fixed"`
}

// HealthReport summarizes a full audit pass.
type HealthReport struct {
	Findings []HealthFinding `json:"findings"`
	Summary  string          `json:"summary"`
}

const staleHorizon = 14 * 24 * time.Hour

// Health audits every known worktree for orphaned state (no task),
// DONE-phase tasks that still have a worktree, uncommitted changes, and
// staleness (no recent commits). With fix=true it removes orphaned and
// merged-done worktrees; dryRun=true reports what fix would do without
// doing it.
func (m *Manager) Health(fix, dryRun bool) (*HealthReport, error) {
	tasks, err := m.meta.ListTasks("")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list tasks")
	}

	byPath := make(map[string]*model.Task)
	for _, t := range tasks {
		if t.WorktreePath != "" {
			byPath[t.WorktreePath] = t
		}
	}

	entries, err := os.ReadDir(filepath.Join(m.mainRepo, ".worktrees"))
	if err != nil && !os.IsNotExist(err) {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to scan worktrees directory")
	}

	report := &HealthReport{}
	errCount, warnCount := 0, 0

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(m.mainRepo, ".worktrees", e.Name())
		task, known := byPath[path]

		if !known {
			finding := HealthFinding{TaskID: e.Name(), Level: HealthError, Message: "worktree has no owning task"}
			if fix && !dryRun {
				if _, err := runGit(m.mainRepo, m.mainRepo, "worktree", "remove", "--force", path); err == nil {
					finding.Fixed = true
				}
			}
			report.Findings = append(report.Findings, finding)
			errCount++
			continue
		}

		if task.Phase == "DONE" {
			finding := HealthFinding{TaskID: task.ID, Level: HealthWarning, Message: "task is DONE but worktree is still present"}
			if fix && !dryRun {
				if _, err := runGit(m.mainRepo, m.mainRepo, "worktree", "remove", "--force", path); err == nil {
					finding.Fixed = true
				}
			}
			report.Findings = append(report.Findings, finding)
			warnCount++
			continue
		}

		status, statusErr := runGit(m.mainRepo, path, "status", "--porcelain")
		if statusErr == nil && status != "" {
			report.Findings = append(report.Findings, HealthFinding{TaskID: task.ID, Level: HealthWarning, Message: "uncommitted changes present"})
			warnCount++
		}

		lastCommit, logErr := runGit(m.mainRepo, path, "log", "-1", "--format=%ct")
		if logErr == nil {
			if isStale(lastCommit) {
				report.Findings = append(report.Findings, HealthFinding{TaskID: task.ID, Level: HealthWarning, Message: "no commits within the staleness horizon"})
				warnCount++
			}
		}
	}

	report.Summary = fmt.Sprintf("%d finding(s): %d error, %d warning", len(report.Findings), errCount, warnCount)
	logging.Worktree("health audit: %s", report.Summary)
	return report, nil
}

func isStale(unixSecondsStr string) bool {
	var sec int64
	if _, err := fmt.Sscanf(unixSecondsStr, "%d", &sec); err != nil {
		return false
	}
	return time.Since(time.Unix(sec, 0)) > staleHorizon
}

// AutoCommitResult reports what auto_commit_on_handoff did.
type AutoCommitResult struct {
	Committed []string `json:"committed"` // task ids with a new WIP commit
	Unstaged  []string `json:"unstaged"`  // task ids with unstaged changes left untouched
}

// AutoCommitOnHandoff commits staged changes in every active worktree as a
// WIP commit, so a session boundary never silently drops work in progress.
func (m *Manager) AutoCommitOnHandoff() (*AutoCommitResult, error) {
	tasks, err := m.meta.ListTasks("")
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list tasks")
	}

	result := &AutoCommitResult{}
	for _, t := range tasks {
		if t.WorktreePath == "" {
			continue
		}
		staged, err := runGit(m.mainRepo, t.WorktreePath, "diff", "--cached", "--name-only")
		if err != nil {
			continue
		}
		if staged != "" {
			if _, err := runGit(m.mainRepo, t.WorktreePath, "commit", "-m", "WIP: Auto-commit at session end"); err == nil {
				result.Committed = append(result.Committed, t.ID)
			}
		}

		unstaged, err := runGit(m.mainRepo, t.WorktreePath, "diff", "--name-only")
		if err == nil && unstaged != "" {
			result.Unstaged = append(result.Unstaged, t.ID)
		}
	}

	logging.Worktree("auto-commit on handoff: committed=%d unstaged=%d", len(result.Committed), len(result.Unstaged))
	return result, nil
}
