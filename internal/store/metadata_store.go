// Package store implements the Metadata Store and Vector Store components:
// a SQLite-backed relational store for GHAP entries, tasks, reviews, workers,
// counters, memories, values, session handoffs and journal entries, plus a
// named-collection vector store with an optional sqlite-vec ANN backend.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"calmd/internal/calmerr"
	"calmd/internal/logging"
	"calmd/internal/model"
)

// MetadataStore is the relational half of the Metadata Store component. It
// owns a single SQLite connection the way LocalStore does: one writer, WAL
// mode, and a RWMutex guarding every access so concurrent daemon requests
// serialize cleanly against SQLite's single-writer model.
type MetadataStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewMetadataStore opens (creating if absent) the SQLite database at path
// and ensures its schema exists.
func NewMetadataStore(path string) (*MetadataStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewMetadataStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("failed to set foreign_keys=ON: %v", err)
	}

	s := &MetadataStore{db: db, dbPath: path}
	if err := runSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("MetadataStore ready at %s", path)
	return s, nil
}

// Close releases the underlying database connection.
func (s *MetadataStore) Close() error {
	logging.Store("Closing MetadataStore at %s", s.dbPath)
	return s.db.Close()
}

// DB exposes the underlying connection for components (counters, workers)
// that need to share a transaction with it.
func (s *MetadataStore) DB() *sql.DB { return s.db }

// =============================================================================
// GHAP ENTRIES
// =============================================================================

// ActiveGHAP returns the single active entry, or nil if none exists.
func (s *MetadataStore) ActiveGHAP() (*model.GHAPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanGHAPRow(s.db.QueryRow(ghapSelectCols + ` FROM ghap_entries WHERE status = 'active' LIMIT 1`))
}

// GetGHAP fetches an entry by id.
func (s *MetadataStore) GetGHAP(id string) (*model.GHAPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanGHAPRow(s.db.QueryRow(ghapSelectCols+` FROM ghap_entries WHERE id = ?`, id))
}

// InsertGHAP inserts a brand-new entry. The single-active invariant is
// enforced by the partial unique index idx_ghap_single_active: a second
// concurrent insert of an active entry collides at the database layer and
// surfaces as a typed active_ghap_exists error; any other insert failure is
// returned untranslated.
func (s *MetadataStore) InsertGHAP(e *model.GHAPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rcCat, rcDesc, lw, lt string
	if e.RootCause != nil {
		rcCat, rcDesc = string(e.RootCause.Category), e.RootCause.Description
	}
	if e.Lesson != nil {
		lw, lt = e.Lesson.WhatWorked, e.Lesson.Takeaway
	}

	_, err := s.db.Exec(`INSERT INTO ghap_entries
		(id, domain, strategy, goal, hypothesis, action, prediction, iteration_count,
		 status, outcome_result, surprise, root_cause_category, root_cause_description,
		 lesson_what_worked, lesson_takeaway, confidence_tier, created_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, string(e.Domain), string(e.Strategy), e.Goal, e.Hypothesis, e.Action, e.Prediction,
		e.IterationCount, e.Status, e.OutcomeResult, e.Surprise, rcCat, rcDesc, lw, lt,
		string(e.ConfidenceTier), e.CreatedAt, e.ResolvedAt)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return calmerr.Wrap(calmerr.KindActiveGHAPExists, err, "another ghap entry is already active")
		}
		return err
	}
	return nil
}

// UpdateGHAP replaces the stored row for e.ID with e's current field values.
func (s *MetadataStore) UpdateGHAP(e *model.GHAPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rcCat, rcDesc, lw, lt string
	if e.RootCause != nil {
		rcCat, rcDesc = string(e.RootCause.Category), e.RootCause.Description
	}
	if e.Lesson != nil {
		lw, lt = e.Lesson.WhatWorked, e.Lesson.Takeaway
	}

	res, err := s.db.Exec(`UPDATE ghap_entries SET
		domain=?, strategy=?, goal=?, hypothesis=?, action=?, prediction=?, iteration_count=?,
		status=?, outcome_result=?, surprise=?, root_cause_category=?, root_cause_description=?,
		lesson_what_worked=?, lesson_takeaway=?, confidence_tier=?, resolved_at=?
		WHERE id=?`,
		string(e.Domain), string(e.Strategy), e.Goal, e.Hypothesis, e.Action, e.Prediction,
		e.IterationCount, e.Status, e.OutcomeResult, e.Surprise, rcCat, rcDesc, lw, lt,
		string(e.ConfidenceTier), e.ResolvedAt, e.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ghap entry not found: %s", e.ID)
	}
	return nil
}

// ListGHAP returns entries, optionally filtered by domain and/or status.
func (s *MetadataStore) ListGHAP(domain, status string, limit int) ([]*model.GHAPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := ghapSelectCols + ` FROM ghap_entries WHERE 1=1`
	var args []interface{}
	if domain != "" {
		q += ` AND domain = ?`
		args = append(args, domain)
	}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GHAPEntry
	for rows.Next() {
		e, err := s.scanGHAP(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const ghapSelectCols = `SELECT id, domain, strategy, goal, hypothesis, action, prediction,
	iteration_count, status, outcome_result, surprise, root_cause_category, root_cause_description,
	lesson_what_worked, lesson_takeaway, confidence_tier, created_at, resolved_at`

type scannable interface {
	Scan(dest ...interface{}) error
}

func (s *MetadataStore) scanGHAPRow(row *sql.Row) (*model.GHAPEntry, error) {
	e, err := s.scanGHAP(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *MetadataStore) scanGHAP(row scannable) (*model.GHAPEntry, error) {
	var e model.GHAPEntry
	var domain, strategy, rcCat, rcDesc, lw, lt, tier sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(&e.ID, &domain, &strategy, &e.Goal, &e.Hypothesis, &e.Action, &e.Prediction,
		&e.IterationCount, &e.Status, &e.OutcomeResult, &e.Surprise, &rcCat, &rcDesc,
		&lw, &lt, &tier, &e.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	e.Domain = model.Domain(domain.String)
	e.Strategy = model.Strategy(strategy.String)
	e.ConfidenceTier = model.ConfidenceTier(tier.String)
	if rcCat.Valid && rcCat.String != "" {
		e.RootCause = &model.RootCause{Category: model.RootCauseCategory(rcCat.String), Description: rcDesc.String}
	}
	if lw.Valid && lw.String != "" {
		e.Lesson = &model.Lesson{WhatWorked: lw.String, Takeaway: lt.String}
	}
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.Time
	}
	return &e, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// =============================================================================
// VALUES
// =============================================================================

func (s *MetadataStore) InsertValue(v *model.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO values_store (id, text, axis, cluster_id, created_at) VALUES (?,?,?,?,?)`,
		v.ID, v.Text, string(v.Axis), v.ClusterID, v.CreatedAt)
	return err
}

func (s *MetadataStore) ListValues(axis string) ([]*model.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, text, axis, cluster_id, created_at FROM values_store`
	var args []interface{}
	if axis != "" {
		q += ` WHERE axis = ?`
		args = append(args, axis)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Value
	for rows.Next() {
		var v model.Value
		var axisStr string
		if err := rows.Scan(&v.ID, &v.Text, &axisStr, &v.ClusterID, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Axis = model.Axis(axisStr)
		out = append(out, &v)
	}
	return out, rows.Err()
}

// =============================================================================
// MEMORIES
// =============================================================================

func (s *MetadataStore) InsertMemory(m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO memories (id, content, category, importance, created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Content, m.Category, m.Importance, m.CreatedAt)
	return err
}

func (s *MetadataStore) ListMemories(category string, limit int) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, content, category, importance, created_at FROM memories`
	var args []interface{}
	if category != "" {
		q += ` WHERE category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY importance DESC, created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		var m model.Memory
		if err := rows.Scan(&m.ID, &m.Content, &m.Category, &m.Importance, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetMemory fetches a single memory by id, or (nil, nil) if absent.
func (s *MetadataStore) GetMemory(id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, content, category, importance, created_at FROM memories WHERE id=?`, id)
	var m model.Memory
	if err := row.Scan(&m.ID, &m.Content, &m.Category, &m.Importance, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// UpdateMemory overwrites a memory's mutable fields in place.
func (s *MetadataStore) UpdateMemory(m *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE memories SET content=?, category=?, importance=? WHERE id=?`,
		m.Content, m.Category, m.Importance, m.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory not found: %s", m.ID)
	}
	return nil
}

// DeleteMemory removes a memory by id.
func (s *MetadataStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM memories WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

// =============================================================================
// TASKS
// =============================================================================

func (s *MetadataStore) InsertTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocked, _ := json.Marshal(t.BlockedBy)
	_, err := s.db.Exec(`INSERT INTO tasks
		(id, title, task_type, phase, spec_id, specialist, notes, blocked_by, worktree_path, project_path, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, string(t.TaskType), t.Phase, t.SpecID, t.Specialist, t.Notes, string(blocked),
		t.WorktreePath, t.ProjectPath, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *MetadataStore) UpdateTask(t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocked, _ := json.Marshal(t.BlockedBy)
	res, err := s.db.Exec(`UPDATE tasks SET title=?, phase=?, specialist=?, notes=?, blocked_by=?,
		worktree_path=?, updated_at=? WHERE id=?`,
		t.Title, t.Phase, t.Specialist, t.Notes, string(blocked), t.WorktreePath, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

func (s *MetadataStore) GetTask(id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTaskRow(s.db.QueryRow(taskSelectCols+` FROM tasks WHERE id = ?`, id))
}

func (s *MetadataStore) ListTasks(phase string) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := taskSelectCols + ` FROM tasks`
	var args []interface{}
	if phase != "" {
		q += ` WHERE phase = ?`
		args = append(args, phase)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskSelectCols = `SELECT id, title, task_type, phase, spec_id, specialist, notes, blocked_by,
	worktree_path, project_path, created_at, updated_at`

func (s *MetadataStore) scanTaskRow(row *sql.Row) (*model.Task, error) {
	t, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *MetadataStore) scanTask(row scannable) (*model.Task, error) {
	var t model.Task
	var taskType, blocked string
	var specID, specialist, notes, worktreePath sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &taskType, &t.Phase, &specID, &specialist, &notes, &blocked,
		&worktreePath, &t.ProjectPath, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.TaskType = model.TaskType(taskType)
	t.SpecID, t.Specialist, t.Notes, t.WorktreePath = specID.String, specialist.String, notes.String, worktreePath.String
	if blocked != "" {
		_ = json.Unmarshal([]byte(blocked), &t.BlockedBy)
	}
	return &t, nil
}

// =============================================================================
// REVIEWS
// =============================================================================

func (s *MetadataStore) InsertReview(r *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO reviews (id, task_id, review_type, result, worker_id, notes, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		r.ID, r.TaskID, string(r.ReviewType), string(r.Result), r.WorkerID, r.Notes, r.CreatedAt)
	return err
}

// ClearReviewsOfType deletes all prior reviews of a given type for a task,
// used when a changes_requested review arrives and resets quorum progress.
// Runs within the caller's tx; InsertReview does not take a tx, so the new
// review is inserted outside it.
func (s *MetadataStore) ClearReviewsOfType(tx *sql.Tx, taskID string, reviewType string) error {
	_, err := tx.Exec(`DELETE FROM reviews WHERE task_id = ? AND review_type = ?`, taskID, reviewType)
	return err
}

// BeginTx starts a transaction on the shared connection.
func (s *MetadataStore) BeginTx() (*sql.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Begin()
}

func (s *MetadataStore) ListReviews(taskID, reviewType string) ([]*model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, task_id, review_type, result, worker_id, notes, created_at FROM reviews WHERE task_id = ?`
	args := []interface{}{taskID}
	if reviewType != "" {
		q += ` AND review_type = ?`
		args = append(args, reviewType)
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Review
	for rows.Next() {
		var r model.Review
		var rt, result string
		var workerID, notes sql.NullString
		if err := rows.Scan(&r.ID, &r.TaskID, &rt, &result, &workerID, &notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ReviewType, r.Result = model.ReviewType(rt), model.ReviewResult(result)
		r.WorkerID, r.Notes = workerID.String, notes.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// =============================================================================
// WORKERS
// =============================================================================

func (s *MetadataStore) InsertWorker(w *model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO workers (id, task_id, role, status, started_at, reason) VALUES (?,?,?,?,?,?)`,
		w.ID, w.TaskID, w.Role, string(w.Status), w.StartedAt, w.Reason)
	return err
}

func (s *MetadataStore) UpdateWorkerStatus(id string, status model.WorkerStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE workers SET status=?, reason=? WHERE id=?`, string(status), reason, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("worker not found: %s", id)
	}
	return nil
}

// ListWorkers returns every worker recorded for a task, most recent first.
func (s *MetadataStore) ListWorkers(taskID string) ([]*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, task_id, role, status, started_at, reason FROM workers
		WHERE task_id = ? ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Worker
	for rows.Next() {
		var w model.Worker
		var status string
		var reason sql.NullString
		if err := rows.Scan(&w.ID, &w.TaskID, &w.Role, &status, &w.StartedAt, &reason); err != nil {
			return nil, err
		}
		w.Status, w.Reason = model.WorkerStatus(status), reason.String
		out = append(out, &w)
	}
	return out, rows.Err()
}

// ListStaleWorkers returns active workers started before the given cutoff,
// used by the worker-sweep background task.
func (s *MetadataStore) ListStaleWorkers(cutoff time.Time) ([]*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, task_id, role, status, started_at, reason FROM workers
		WHERE status = 'active' AND started_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Worker
	for rows.Next() {
		var w model.Worker
		var status string
		var reason sql.NullString
		if err := rows.Scan(&w.ID, &w.TaskID, &w.Role, &status, &w.StartedAt, &reason); err != nil {
			return nil, err
		}
		w.Status, w.Reason = model.WorkerStatus(status), reason.String
		out = append(out, &w)
	}
	return out, rows.Err()
}

// =============================================================================
// SESSION HANDOFFS
// =============================================================================

func (s *MetadataStore) InsertHandoff(h *model.SessionHandoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO session_handoffs (id, handoff_content, needs_continuation, created_at, resumed_at)
		VALUES (?,?,?,?,?)`, h.ID, h.HandoffContent, h.NeedsContinuation, h.CreatedAt, h.ResumedAt)
	return err
}

// PendingHandoff returns the most recent unresumed handoff requiring
// continuation, or nil if none is pending.
func (s *MetadataStore) PendingHandoff() (*model.SessionHandoff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, handoff_content, needs_continuation, created_at, resumed_at
		FROM session_handoffs WHERE needs_continuation = 1 AND resumed_at IS NULL
		ORDER BY created_at DESC LIMIT 1`)

	var h model.SessionHandoff
	var resumedAt sql.NullTime
	if err := row.Scan(&h.ID, &h.HandoffContent, &h.NeedsContinuation, &h.CreatedAt, &resumedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if resumedAt.Valid {
		h.ResumedAt = &resumedAt.Time
	}
	return &h, nil
}

func (s *MetadataStore) MarkHandoffResumed(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE session_handoffs SET resumed_at=? WHERE id=?`, at, id)
	return err
}

// =============================================================================
// JOURNAL ENTRIES
// =============================================================================

func (s *MetadataStore) InsertJournalEntry(j *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO journal_entries (id, content, reflected, created_at) VALUES (?,?,?,?)`,
		j.ID, j.Content, j.Reflected, j.CreatedAt)
	return err
}

func (s *MetadataStore) ListUnreflectedJournalEntries(limit int) ([]*model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, content, reflected, created_at FROM journal_entries
		WHERE reflected = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JournalEntry
	for rows.Next() {
		var j model.JournalEntry
		if err := rows.Scan(&j.ID, &j.Content, &j.Reflected, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *MetadataStore) MarkJournalEntryReflected(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE journal_entries SET reflected=1 WHERE id=?`, id)
	return err
}

// MarkEntriesReflected marks multiple journal entries reflected in one
// transaction, for the dispatcher's mark_entries_reflected tool.
func (s *MetadataStore) MarkEntriesReflected(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE journal_entries SET reflected=1 WHERE id=?`, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetJournalEntry fetches a single journal entry by id, or (nil, nil) if
// absent.
func (s *MetadataStore) GetJournalEntry(id string) (*model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, content, reflected, created_at FROM journal_entries WHERE id=?`, id)
	var j model.JournalEntry
	if err := row.Scan(&j.ID, &j.Content, &j.Reflected, &j.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// ListJournalEntries returns journal entries in descending created_at order,
// at most limit of them (100 when limit <= 0).
func (s *MetadataStore) ListJournalEntries(limit int) ([]*model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT id, content, reflected, created_at FROM journal_entries
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JournalEntry
	for rows.Next() {
		var j model.JournalEntry
		if err := rows.Scan(&j.ID, &j.Content, &j.Reflected, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

// =============================================================================
// COUNTERS (DB-backed, shared across the daemon)
// =============================================================================

// IncrementCounter atomically increments a named counter and returns its new
// value. Uses an UPDATE-then-INSERT-OR-IGNORE fallback: the common case (the
// counter already exists) takes one UPDATE; only first-use pays for the
// INSERT OR IGNORE plus retry.
func (s *MetadataStore) IncrementCounter(name string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE counters SET value = value + ? WHERE name = ?`, delta, name)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO counters (name, value) VALUES (?, 0)`, name); err != nil {
			return 0, err
		}
		if _, err := s.db.Exec(`UPDATE counters SET value = value + ? WHERE name = ?`, delta, name); err != nil {
			return 0, err
		}
	}

	var val int64
	if err := s.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&val); err != nil {
		return 0, err
	}
	return val, nil
}

func (s *MetadataStore) GetCounter(name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var val int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&val)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return val, err
}

func (s *MetadataStore) SetCounter(name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	return err
}

func (s *MetadataStore) ResetCounter(name string) error {
	return s.SetCounter(name, 0)
}

// =============================================================================
// MERGE LOCK (Worktree Manager advisory counter)
// =============================================================================

// AcquireMergeLock increments the advisory holder count for a task's merge
// lock and returns the count after acquisition.
func (s *MetadataStore) AcquireMergeLock(taskID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO merge_locks (task_id, holders) VALUES (?, 1)
		ON CONFLICT(task_id) DO UPDATE SET holders = holders + 1`, taskID)
	if err != nil {
		return 0, err
	}
	var holders int
	if err := s.db.QueryRow(`SELECT holders FROM merge_locks WHERE task_id = ?`, taskID).Scan(&holders); err != nil {
		return 0, err
	}
	return holders, nil
}

// MergeLockHolders returns the current holder count for a task's merge lock;
// a task no one has ever locked reads as zero.
func (s *MetadataStore) MergeLockHolders(taskID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var holders int
	err := s.db.QueryRow(`SELECT holders FROM merge_locks WHERE task_id = ?`, taskID).Scan(&holders)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return holders, err
}

// ReleaseMergeLock decrements the holder count, floored at zero.
func (s *MetadataStore) ReleaseMergeLock(taskID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE merge_locks SET holders = MAX(0, holders - 1) WHERE task_id = ?`, taskID)
	if err != nil {
		return 0, err
	}
	var holders int
	if err := s.db.QueryRow(`SELECT holders FROM merge_locks WHERE task_id = ?`, taskID).Scan(&holders); err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return holders, nil
}
