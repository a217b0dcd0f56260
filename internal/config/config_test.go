package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Agent.Model)
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.Equal(t, 15, cfg.Agent.MaxTurns)
	assert.Equal(t, "python3", cfg.Sandbox.Interpreter)
	assert.Equal(t, 30, cfg.Sandbox.TimeoutSeconds)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfigString(t *testing.T) {
	out := DefaultConfig().String()
	assert.Contains(t, out, `"provider"`)
	assert.Contains(t, out, `"claude-sonnet-4-20250514"`)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.ModulesDir)
	assert.NotEmpty(t, cfg.Strava.TokenPath)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "paceline.json")
	content := `{
		"provider": {"name": "openai", "api_key": "sk-test-1234567890"},
		"agent": {"model": "gpt-4o", "max_turns": 8},
		"data_dir": "` + dir + `",
		"gateway": {"enabled": true, "port": 9090, "shared_secret": "s3cret"}
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, 8, cfg.Agent.MaxTurns)
	// Unset fields keep their defaults.
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, 9090, cfg.Gateway.Port)

	// Derived paths land under data_dir.
	assert.Equal(t, filepath.Join(dir, "db", "activities.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, "modules"), cfg.ModulesDir)
	assert.Equal(t, filepath.Join(dir, "context.md"), cfg.ContextPath)
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-fromenv")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-fromenv", cfg.Provider.APIKey)
}

func TestValidateConfigDefaultsPass(t *testing.T) {
	v := NewValidator()
	errs := v.ValidateConfig(DefaultConfig())
	assert.Empty(t, errs)
}

func TestValidateConfigCatchesProblems(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Provider.Name = "llama-farm"
	cfg.Agent.Model = ""
	cfg.Agent.MaxTurns = 500
	cfg.Gateway.Enabled = true
	cfg.Gateway.Port = 0
	cfg.Logging.Level = "loud"

	errs := v.ValidateConfig(cfg)
	require.NotEmpty(t, errs)

	var messages string
	for _, e := range errs {
		messages += e.Error() + "\n"
	}
	assert.Contains(t, messages, "invalid provider")
	assert.Contains(t, messages, "model is required")
	assert.Contains(t, messages, "max turns too large")
	assert.Contains(t, messages, "gateway port")
	assert.Contains(t, messages, "shared_secret")
	assert.Contains(t, messages, "invalid log level")
}

func TestValidateAPIKeyFormats(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-ant-abc123", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-abc123", "anthropic"))
	assert.NoError(t, v.ValidateAPIKey("sk-abc123", "openai"))
	assert.Error(t, v.ValidateAPIKey("", "openai"))
}

func TestValidateStravaScheduleNeedsCredentials(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Strava.SyncSchedule = "0 5 * * *"

	errs := v.ValidateConfig(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "client_id and client_secret")
}
