// Package sandbox runs agent-authored Python scripts in an isolated,
// time-bounded subprocess with the dataset handle pre-wired.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// ScriptTimeout is the wall-clock budget for one script run.
const ScriptTimeout = 30 * time.Second

// stderrMarker separates appended stderr from captured stdout so partial
// output and the failure reason are both visible to the model.
const stderrMarker = "[stderr]:"

// RunResult is the ephemeral outcome of one script execution. Exactly one of
// Error or Output is meaningful. A nonzero exit code with useful output is
// still a valid result; it is not an error condition.
type RunResult struct {
	Output   string `json:"output,omitempty"`
	ExitCode int    `json:"return_code"`
	Error    string `json:"error,omitempty"`
}

// Runner executes one-shot scripts against the dataset.
type Runner struct {
	interpreter string
	dbPath      string
	workDir     string
	timeout     time.Duration
}

// Config configures a script runner.
type Config struct {
	// Interpreter is the Python binary to invoke. Defaults to python3.
	Interpreter string
	// DBPath is the dataset location injected into the script preamble.
	DBPath string
	// WorkDir is the working directory scripts run in. Defaults to the
	// dataset's parent directory so relative paths behave like the preamble.
	WorkDir string
	// Timeout overrides the default wall-clock budget. Used by tests.
	Timeout time.Duration
}

// NewRunner creates a script runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("dataset path is required")
	}

	interpreter := cfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(cfg.DBPath)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = ScriptTimeout
	}

	return &Runner{
		interpreter: interpreter,
		dbPath:      cfg.DBPath,
		workDir:     workDir,
		timeout:     timeout,
	}, nil
}

// Run writes the script to a temporary file with the fixed preamble, executes
// it, and captures combined output. The explanation is metadata only; it is
// logged but never executed. The temporary file is removed on every exit path.
func (r *Runner) Run(ctx context.Context, code, explanation string) RunResult {
	runID, err := gonanoid.New(8)
	if err != nil {
		return RunResult{Error: fmt.Sprintf("failed to generate run id: %v", err)}
	}

	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("paceline-script-%s.py", runID))
	if err := os.WriteFile(scriptPath, []byte(r.wrap(code)), 0o600); err != nil {
		return RunResult{Error: fmt.Sprintf("failed to write script: %v", err)}
	}
	defer os.Remove(scriptPath)

	log.Debug().
		Str("run_id", runID).
		Str("explanation", explanation).
		Msg("Running script")

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.interpreter, scriptPath)
	cmd.Dir = r.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		log.Warn().Str("run_id", runID).Dur("duration", duration).Msg("Script timed out")
		return RunResult{Error: fmt.Sprintf("Script timed out after %d seconds", int(r.timeout.Seconds()))}
	}

	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			// The interpreter never started (missing binary, bad workdir).
			return RunResult{Error: runErr.Error()}
		}
		exitCode = exitErr.ExitCode()
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += fmt.Sprintf("\n%s %s", stderrMarker, stderr.String())
	}
	output = strings.TrimSpace(output)
	if output == "" {
		output = "(no output)"
	}

	log.Debug().
		Str("run_id", runID).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("Script finished")

	return RunResult{Output: output, ExitCode: exitCode}
}

// wrap prefixes the script with the fixed preamble so it need not re-derive
// the dataset location.
func (r *Runner) wrap(code string) string {
	return fmt.Sprintf(`import sys
import os
sys.path.insert(0, %q)
os.chdir(%q)

import sqlite3
import json
from datetime import datetime, timedelta
from pathlib import Path

DB_PATH = %q

def get_db():
    conn = sqlite3.connect(DB_PATH)
    conn.row_factory = sqlite3.Row
    return conn

# User code below
%s
`, r.workDir, r.workDir, r.dbPath, code)
}
