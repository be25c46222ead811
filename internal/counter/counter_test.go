package counter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementStartsAtOneForNewSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_count")

	n, err := Increment(path, "session-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Increment(path, "session-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIncrementResetsOnSessionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_count")

	_, err := Increment(path, "session-a")
	require.NoError(t, err)
	_, err = Increment(path, "session-a")
	require.NoError(t, err)

	n, err := Increment(path, "session-b")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a differing session id must reset the count before incrementing")
}

func TestReadMissingFileIsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	count, session := Read(path)
	assert.Equal(t, 0, count)
	assert.Equal(t, "", session)
}

func TestReadCorruptedFileIsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_count")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	count, session := Read(path)
	assert.Equal(t, 0, count)
	assert.Equal(t, "", session)
}

func TestResetZeroesCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_count")
	_, err := Increment(path, "session-a")
	require.NoError(t, err)

	require.NoError(t, Reset(path, "session-a"))

	count, session := Read(path)
	assert.Equal(t, 0, count)
	assert.Equal(t, "session-a", session)
}
