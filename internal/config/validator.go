package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates the provider name
func (v *Validator) ValidateProvider(name string) error {
	validProviders := []string{"anthropic", "openai"}
	for _, valid := range validProviders {
		if name == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", name, strings.Join(validProviders, ", "))
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateMaxTurns validates the tool loop budget
func (v *Validator) ValidateMaxTurns(turns int) error {
	if turns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", turns)
	}
	if turns > 100 {
		return fmt.Errorf("max turns too large (max 100), got %d", turns)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Provider.Name); err != nil {
		errors = append(errors, err)
	}
	if cfg.Provider.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.Provider.APIKey, cfg.Provider.Name); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Agent.Model == "" {
		errors = append(errors, fmt.Errorf("agent model is required"))
	}
	if cfg.Agent.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Agent.MaxTurns != 0 {
		if err := v.ValidateMaxTurns(cfg.Agent.MaxTurns); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Sandbox.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("sandbox timeout_seconds must be >= 0"))
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
			errors = append(errors, fmt.Errorf("gateway port must be between 1 and 65535, got %d", cfg.Gateway.Port))
		}
		if cfg.Gateway.SharedSecret == "" {
			errors = append(errors, fmt.Errorf("gateway shared_secret is required when the gateway is enabled"))
		}
	}

	if cfg.Publish.Enabled && cfg.Publish.RepoDir == "" {
		errors = append(errors, fmt.Errorf("publish repo_dir is required when publishing is enabled"))
	}

	if cfg.Strava.SyncSchedule != "" {
		if cfg.Strava.ClientID == "" || cfg.Strava.ClientSecret == "" {
			errors = append(errors, fmt.Errorf("strava client_id and client_secret are required when sync_schedule is set"))
		}
	}

	if cfg.Sessions.IdleMinutes < 0 {
		errors = append(errors, fmt.Errorf("sessions idle_minutes must be >= 0"))
	}
	if cfg.Sessions.Max < 0 {
		errors = append(errors, fmt.Errorf("sessions max must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
