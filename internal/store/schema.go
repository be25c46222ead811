package store

import (
	"database/sql"

	"calmd/internal/logging"
)

// schemaStatements creates every table the Metadata Store owns. Mirrors the
// teacher's pattern of a flat slice of CREATE TABLE/INDEX statements executed
// in sequence at open time, rather than a migration framework.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ghap_entries (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		strategy TEXT NOT NULL,
		goal TEXT NOT NULL,
		hypothesis TEXT NOT NULL,
		action TEXT NOT NULL,
		prediction TEXT NOT NULL,
		iteration_count INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'active',
		outcome_result TEXT,
		surprise TEXT,
		root_cause_category TEXT,
		root_cause_description TEXT,
		lesson_what_worked TEXT,
		lesson_takeaway TEXT,
		confidence_tier TEXT,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);`,
	`CREATE INDEX IF NOT EXISTS idx_ghap_status ON ghap_entries(status);`,
	`CREATE INDEX IF NOT EXISTS idx_ghap_domain ON ghap_entries(domain);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ghap_single_active ON ghap_entries(status) WHERE status = 'active';`,

	`CREATE TABLE IF NOT EXISTS values_store (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		axis TEXT NOT NULL,
		cluster_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_values_axis ON values_store(axis);`,
	`CREATE INDEX IF NOT EXISTS idx_values_cluster ON values_store(cluster_id);`,

	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		category TEXT NOT NULL,
		importance REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		task_type TEXT NOT NULL,
		phase TEXT NOT NULL,
		spec_id TEXT,
		specialist TEXT,
		notes TEXT,
		blocked_by TEXT,
		worktree_path TEXT,
		project_path TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_phase ON tasks(phase);`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		review_type TEXT NOT NULL,
		result TEXT NOT NULL,
		worker_id TEXT,
		notes TEXT,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_task ON reviews(task_id, review_type);`,

	`CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		role TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		reason TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_workers_task ON workers(task_id);`,
	`CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);`,

	`CREATE TABLE IF NOT EXISTS session_handoffs (
		id TEXT PRIMARY KEY,
		handoff_content TEXT NOT NULL,
		needs_continuation BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		resumed_at DATETIME
	);`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_pending ON session_handoffs(needs_continuation, resumed_at);`,

	`CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		reflected BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_journal_reflected ON journal_entries(reflected);`,

	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);`,

	`CREATE TABLE IF NOT EXISTS vector_collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS vector_points (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		embedding TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY(collection, id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_vector_points_collection ON vector_points(collection);`,

	`CREATE TABLE IF NOT EXISTS merge_locks (
		task_id TEXT PRIMARY KEY,
		holders INTEGER NOT NULL DEFAULT 0
	);`,
}

// runSchema executes every statement in schemaStatements in sequence.
func runSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			logging.StoreError("schema statement failed: %v (%s)", err, stmt)
			return err
		}
	}
	return nil
}
