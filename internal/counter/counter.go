// Package counter implements the file-backed half of the Counter & Session
// Bus: a per-session tool-invocation counter that short-lived hook processes
// can share without holding a persistent database connection (spec.md
// section 4.L). DB-backed counters (merge locks, batch triggers) live on
// MetadataStore directly; this package is only the tool_count file.
package counter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"calmd/internal/logging"
)

// fileState is the on-disk shape of the tool_count file.
type fileState struct {
	Count     int    `json:"count"`
	SessionID string `json:"session_id"`
}

// Read loads the counter file at path. Any read failure -- missing file,
// corrupted JSON -- is treated as (0, "") rather than propagated: hooks must
// never fail the host's tool call over a stale or absent counter.
func Read(path string) (count int, sessionID string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ""
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		logging.CounterWarn("tool_count file %s is corrupted, treating as (0, \"\"): %v", path, err)
		return 0, ""
	}
	return st.Count, st.SessionID
}

// Increment bumps the counter for sessionID, writing the result back
// atomically (temp file + rename). If the stored session id differs from
// sessionID, the count resets to 0 before incrementing, so a new host
// session never inherits a prior session's tally.
func Increment(path, sessionID string) (int, error) {
	count, storedSession := Read(path)
	if storedSession != sessionID {
		logging.CounterDebug("session changed (%q -> %q); resetting tool count", storedSession, sessionID)
		count = 0
	}
	count++
	if err := write(path, fileState{Count: count, SessionID: sessionID}); err != nil {
		return 0, err
	}
	return count, nil
}

// Reset zeroes the counter for sessionID.
func Reset(path, sessionID string) error {
	return write(path, fileState{Count: 0, SessionID: sessionID})
}

// write performs an atomic replace: write to a temp file in the same
// directory, then rename over the target, so a concurrent reader never
// observes a partially written file.
func write(path string, st fileState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// CurrentSessionID reads the daemon's persisted session id file, returning
// "" if absent -- used by hooks to detect whether the host's session
// changed since the last invocation.
func CurrentSessionID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteSessionID persists the current session id atomically.
func WriteSessionID(path, sessionID string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sessionID); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
