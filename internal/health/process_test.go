package health

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePID(t *testing.T, pid int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.pid")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644))
	return path
}

func TestIsRunningFalseWhenPIDFileMissing(t *testing.T) {
	running, pid := IsRunning(filepath.Join(t.TempDir(), "server.pid"))
	assert.False(t, running)
	assert.Equal(t, 0, pid)
}

func TestIsRunningFalseOnMalformedPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))

	running, _ := IsRunning(path)
	assert.False(t, running)
}

func TestIsRunningTrueForLiveProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	path := writePID(t, cmd.Process.Pid)
	running, pid := IsRunning(path)
	assert.True(t, running)
	assert.Equal(t, cmd.Process.Pid, pid)
}

func TestStopSendsSIGTERMAndRemovesPIDFile(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	path := writePID(t, cmd.Process.Pid)

	require.NoError(t, Stop(path, time.Second))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process was not reaped after Stop")
	}

	assert.False(t, IsProcessAlive(cmd.Process.Pid))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected pid file to be removed after Stop")
}

func TestStopIsNoOpWhenNothingRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	assert.NoError(t, Stop(path, time.Second))
}
