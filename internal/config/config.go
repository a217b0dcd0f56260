// Package config defines and loads the daemon configuration.
package config

import (
	"encoding/json"
)

// Config represents the main paceline configuration
type Config struct {
	// Model provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Agent behavior
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Dataset and workspace paths
	DataDir     string `json:"data_dir" mapstructure:"data_dir"`
	DBPath      string `json:"db_path" mapstructure:"db_path"`
	ContextPath string `json:"context_path" mapstructure:"context_path"`
	ModulesDir  string `json:"modules_dir" mapstructure:"modules_dir"`

	// Script sandbox
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`

	// Module publishing
	Publish PublishConfig `json:"publish" mapstructure:"publish"`

	// Chat gateway
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Activity ingestion
	Strava StravaConfig `json:"strava" mapstructure:"strava"`

	// Session registry
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ProviderConfig selects and authenticates the model provider
type ProviderConfig struct {
	Name   string `json:"name" mapstructure:"name"` // anthropic, openai
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// AgentConfig tunes the conversation loop
type AgentConfig struct {
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
	MaxTurns  int    `json:"max_turns" mapstructure:"max_turns"`
}

// SandboxConfig tunes script execution
type SandboxConfig struct {
	Interpreter    string `json:"interpreter" mapstructure:"interpreter"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// PublishConfig controls the git publish pipeline for created modules
type PublishConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	RepoDir    string `json:"repo_dir" mapstructure:"repo_dir"`
	MainBranch string `json:"main_branch" mapstructure:"main_branch"`
}

// GatewayConfig holds chat gateway configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// StravaConfig holds ingestion credentials and schedule
type StravaConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	TokenPath    string `json:"token_path" mapstructure:"token_path"`
	SyncSchedule string `json:"sync_schedule" mapstructure:"sync_schedule"` // cron, empty disables
}

// SessionsConfig controls the session registry
type SessionsConfig struct {
	IdleMinutes int `json:"idle_minutes" mapstructure:"idle_minutes"`
	Max         int `json:"max" mapstructure:"max"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name: "anthropic",
		},
		Agent: AgentConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			MaxTurns:  15,
		},
		Sandbox: SandboxConfig{
			Interpreter:    "python3",
			TimeoutSeconds: 30,
		},
		Publish: PublishConfig{
			Enabled:    false,
			MainBranch: "main",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Port:    8080,
		},
		Sessions: SessionsConfig{
			IdleMinutes: 120,
			Max:         200,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
