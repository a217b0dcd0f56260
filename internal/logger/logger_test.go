package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "paceline.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().Str("component", "test").Msg("hello from test")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestNewInvalidLevelFallsBack(t *testing.T) {
	l, err := New(Config{Level: "shouty", Console: true})
	require.NoError(t, err)
	defer l.Close()
}

func TestRedactionInLogOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "paceline.log")

	l, err := New(Config{Level: "info", File: logFile, Redaction: true})
	require.NoError(t, err)
	defer l.Close()

	zl := l.GetZerolog()
	zl.Info().Msg("key is sk-ant-REDACTED")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[REDACTED]")
	assert.NotContains(t, string(data), "sk-ant-abcdefghijklmnop")
}

func TestRedactorPatterns(t *testing.T) {
	r := NewRedactor()

	cases := []struct {
		name  string
		input string
		leaks string
	}{
		{"anthropic key", "using sk-ant-REDACTED", "sk-ant-"},
		{"openai key", "using sk-abcdefghijklmnopqrstuvwxyz", "sk-abcdef"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
		{"refresh token", `{"refresh_token": "0123456789abcdef"}`, "0123456789abcdef"},
		{"shared secret", `secret="hunter2-hunter2"`, "hunter2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := r.Redact(tc.input)
			assert.Contains(t, out, "[REDACTED]")
			assert.NotContains(t, out, tc.leaks)
		})
	}
}

func TestRedactorAddPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.AddPattern(`internal-[0-9]+`))
	assert.Equal(t, "[REDACTED]", r.Redact("internal-42"))

	assert.Error(t, r.AddPattern(`([`))
}

func TestRedactorLeavesNormalTextAlone(t *testing.T) {
	r := NewRedactor()
	msg := "synced 120 activities in 3.4s"
	assert.Equal(t, msg, r.Redact(msg))
}
