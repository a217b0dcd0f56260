package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func setupTestRunner(t *testing.T, timeout time.Duration) *Runner {
	t.Helper()

	dir := t.TempDir()
	runner, err := NewRunner(Config{
		DBPath:  filepath.Join(dir, "activities.db"),
		WorkDir: dir,
		Timeout: timeout,
	})
	require.NoError(t, err)
	return runner
}

func countTempScripts(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)

	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "paceline-script-") {
			count++
		}
	}
	return count
}

func TestNewRunner(t *testing.T) {
	t.Run("should require dataset path", func(t *testing.T) {
		_, err := NewRunner(Config{})
		assert.Error(t, err)
	})

	t.Run("should default interpreter and timeout", func(t *testing.T) {
		r, err := NewRunner(Config{DBPath: "/tmp/x.db"})
		require.NoError(t, err)
		assert.Equal(t, "python3", r.interpreter)
		assert.Equal(t, ScriptTimeout, r.timeout)
	})
}

func TestRunCapturesOutput(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 10*time.Second)

	result := r.Run(context.Background(), `print("X")`, "prints X")

	assert.Empty(t, result.Error)
	assert.Equal(t, "X", result.Output)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunAppendsStderr(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 10*time.Second)

	result := r.Run(context.Background(), `print("partial")
raise RuntimeError("boom")`, "raises")

	assert.Empty(t, result.Error)
	assert.NotEqual(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "partial")
	assert.Contains(t, result.Output, "[stderr]:")
	assert.Contains(t, result.Output, "boom")
}

func TestRunNoOutput(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 10*time.Second)

	result := r.Run(context.Background(), `pass`, "")

	assert.Empty(t, result.Error)
	assert.Equal(t, "(no output)", result.Output)
}

func TestRunTimeout(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 1*time.Second)

	before := countTempScripts(t)

	result := r.Run(context.Background(), `import time
time.sleep(30)`, "sleeps past the budget")

	assert.Contains(t, result.Error, "timed out")
	assert.Empty(t, result.Output)

	// The temporary script file is cleaned up even on timeout.
	assert.Equal(t, before, countTempScripts(t))
}

func TestRunPreambleInjectsDB(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 10*time.Second)

	result := r.Run(context.Background(), `print(DB_PATH.endswith("activities.db"))`, "checks preamble")

	assert.Empty(t, result.Error)
	assert.Equal(t, "True", result.Output)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunCleansUpOnSuccess(t *testing.T) {
	requirePython(t)
	r := setupTestRunner(t, 10*time.Second)

	before := countTempScripts(t)
	_ = r.Run(context.Background(), `print("ok")`, "")
	assert.Equal(t, before, countTempScripts(t))
}

func TestRunMissingInterpreter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRunner(Config{
		DBPath:      filepath.Join(dir, "activities.db"),
		Interpreter: filepath.Join(dir, "no-such-python"),
	})
	require.NoError(t, err)

	result := r.Run(context.Background(), `print("x")`, "")
	assert.NotEmpty(t, result.Error)
}
