package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetLoggingState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	home = ""
	configLoaded = false
	config = loggingConfig{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true.
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `
logging:
  level: debug
  debug_mode: true
  categories:
    daemon: true
    collector: true
    vector: true
    embedding: true
    cluster: true
    search: true
    values: true
    context: true
    task: true
    worktree: true
    review: true
    counter: true
    dispatch: true
    hook: true
    store: true
`
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryDaemon,
		CategoryCollector,
		CategoryVector,
		CategoryEmbedding,
		CategoryCluster,
		CategorySearch,
		CategoryValues,
		CategoryContext,
		CategoryTask,
		CategoryWorktree,
		CategoryReview,
		CategoryCounter,
		CategoryDispatch,
		CategoryHook,
		CategoryStore,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Daemon("Convenience daemon log")
	Collector("Convenience collector log")
	Vector("Convenience vector log")
	Embedding("Convenience embedding log")
	Cluster("Convenience cluster log")
	Search("Convenience search log")
	Values("Convenience values log")
	Context("Convenience context log")
	Task("Convenience task log")
	Worktree("Convenience worktree log")
	Review("Convenience review log")
	Counter("Convenience counter log")
	Dispatch("Convenience dispatch log")
	Hook("Convenience hook log")
	Store("Convenience store log")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	t.Logf("Created %d log files in %s", len(entries), logsPath)

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false.
func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `
logging:
  level: debug
  debug_mode: false
  categories:
    daemon: true
    cluster: true
`
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	categories := []Category{CategoryDaemon, CategoryCluster, CategoryCollector}
	for _, cat := range categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	Daemon("This should NOT be logged")
	Cluster("This should NOT be logged")

	logger := Get(CategoryDaemon)
	logger.Info("This should NOT be logged")
	logger.Debug("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	_, err = os.Stat(logsPath)
	if err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	} else if !os.IsNotExist(err) {
		t.Fatalf("unexpected stat error: %v", err)
	}
}

// TestCategoryToggle tests individual category enable/disable.
func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := `
logging:
  level: debug
  debug_mode: true
  categories:
    daemon: true
    cluster: true
    worktree: false
    collector: false
`
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryDaemon) {
		t.Error("daemon should be enabled")
	}
	if !IsCategoryEnabled(CategoryCluster) {
		t.Error("cluster should be enabled")
	}
	if IsCategoryEnabled(CategoryWorktree) {
		t.Error("worktree should be DISABLED")
	}
	if IsCategoryEnabled(CategoryCollector) {
		t.Error("collector should be DISABLED")
	}
	if !IsCategoryEnabled(CategoryValues) {
		t.Error("values (not in config) should default to enabled")
	}

	Daemon("This SHOULD be logged")
	Cluster("This SHOULD be logged")
	Worktree("This should NOT be logged")
	Collector("This should NOT be logged")
	Values("This SHOULD be logged (default enabled)")

	CloseAll()

	logsPath := filepath.Join(tempDir, "logs")
	entries, _ := os.ReadDir(logsPath)

	var hasDaemonLog, hasClusterLog, hasWorktreeLog, hasCollectorLog bool
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "daemon") {
			hasDaemonLog = true
		}
		if strings.Contains(name, "cluster") {
			hasClusterLog = true
		}
		if strings.Contains(name, "worktree") {
			hasWorktreeLog = true
		}
		if strings.Contains(name, "collector") {
			hasCollectorLog = true
		}
	}

	if !hasDaemonLog {
		t.Error("Expected daemon log file")
	}
	if !hasClusterLog {
		t.Error("Expected cluster log file")
	}
	if hasWorktreeLog {
		t.Error("Should NOT have worktree log file (disabled)")
	}
	if hasCollectorLog {
		t.Error("Should NOT have collector log file (disabled)")
	}
}

// TestTimerLogging tests the timing helper.
func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	configContent := "logging:\n  level: debug\n  debug_mode: true\n"
	os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)

	resetLoggingState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	timer := StartTimer(CategoryCluster, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	CloseAll()
}
